package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/assessly/core/assessment"
)

type assessmentRepository struct {
	db *assessmentTable
}

func NewAssessmentRepository(db *DB) assessment.Repository {
	return &assessmentRepository{db: db.assessment}
}

func copyAssessment(a assessment.Assessment) assessment.Assessment {
	if a.TimeLimitMinutes != nil {
		limit := *a.TimeLimitMinutes
		a.TimeLimitMinutes = &limit
	}
	questions := make([]assessment.Question, len(a.Questions))
	for i, q := range a.Questions {
		q.Options = append([]assessment.Option(nil), q.Options...)
		questions[i] = q
	}
	a.Questions = questions
	return a
}

func (repo *assessmentRepository) GetAssessment(_ context.Context, id string) (assessment.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return copyAssessment(*a), nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (repo *assessmentRepository) SaveAssessment(_ context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.table[a.ID]; ok {
		a.CreatedAt = orig.CreatedAt
	}
	saved := copyAssessment(a)
	repo.db.table[a.ID] = &saved
	return copyAssessment(saved), nil
}

func (repo *assessmentRepository) QueryAssessments(_ context.Context) ([]assessment.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := make([]assessment.Assessment, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		all = append(all, copyAssessment(*a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}
