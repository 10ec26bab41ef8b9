package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/assessly/core/attempt"
)

type attemptRepository struct {
	db *attemptTable
}

func NewAttemptRepository(db *DB) attempt.Repository {
	return &attemptRepository{db: db.attempt}
}

func copyAttempt(a attempt.Attempt) attempt.Attempt {
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		a.SubmittedAt = &at
	}
	answers := make([]attempt.SavedAnswer, len(a.Answers))
	for i, sa := range a.Answers {
		sa.Answer = sa.Answer.Clone()
		answers[i] = sa
	}
	a.Answers = answers
	return a
}

func matches(a *attempt.Attempt, filter attempt.Filter) bool {
	return (filter.AssessmentID == "" || a.AssessmentID == filter.AssessmentID) &&
		(filter.LearnerID == "" || a.LearnerID == filter.LearnerID) &&
		(filter.Status == "" || a.Status == filter.Status)
}

// query returns matching attempts, most recently started first.
func (repo *attemptRepository) query(filter attempt.Filter) []attempt.Attempt {
	found := make([]attempt.Attempt, 0)
	for _, a := range repo.db.table {
		if matches(a, filter) {
			found = append(found, copyAttempt(*a))
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartedAt.After(found[j].StartedAt) })
	return found
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return copyAttempt(*a), nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) FindAttempt(_ context.Context, filter attempt.Filter) (attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if found := repo.query(filter); len(found) > 0 {
		return found[0], nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) QueryAttempts(_ context.Context, filter attempt.Filter) ([]attempt.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter), nil
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if a.Status == attempt.StatusInProgress {
		inProgress := attempt.Filter{AssessmentID: a.AssessmentID, LearnerID: a.LearnerID, Status: attempt.StatusInProgress}
		for _, other := range repo.db.table {
			if matches(other, inProgress) {
				return attempt.Attempt{}, attempt.ErrConflict
			}
		}
	}
	saved := copyAttempt(a)
	repo.db.table[a.ID] = &saved
	return copyAttempt(saved), nil
}

func (repo *attemptRepository) SaveAnswer(_ context.Context, attemptID string, ans attempt.SavedAnswer) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.table[attemptID]
	if !ok {
		return attempt.ErrNotFound
	}
	ans.Answer = ans.Answer.Clone()
	for i := range a.Answers {
		if a.Answers[i].QuestionID == ans.QuestionID {
			a.Answers[i] = ans
			return nil
		}
	}
	a.Answers = append(a.Answers, ans)
	return nil
}

func (repo *attemptRepository) FinishAttempt(_ context.Context, id string, status attempt.Status, at time.Time) (attempt.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.table[id]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if a.Status != attempt.StatusInProgress {
		return attempt.Attempt{}, attempt.ErrNotInProgress
	}
	a.Status = status
	a.SubmittedAt = &at
	return copyAttempt(*a), nil
}
