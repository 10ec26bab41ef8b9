package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
)

type (
	assessmentRow struct {
		ID                 string    `db:"id"`
		Title              string    `db:"title"`
		Description        string    `db:"description"`
		TimeLimitMinutes   null.Int  `db:"time_limit_minutes"`
		PassingScore       int       `db:"passing_score"`
		ShowScore          bool      `db:"show_score"`
		ShowCorrectAnswers bool      `db:"show_correct_answers"`
		CreatedAt          time.Time `db:"created_at"`
	}

	questionRow struct {
		AssessmentID string         `db:"assessment_id"`
		ID           string         `db:"id"`
		Position     int            `db:"position"`
		Type         string         `db:"type"`
		Prompt       string         `db:"prompt"`
		Points       int            `db:"points"`
		OptionIDs    pq.StringArray `db:"option_ids"`
		OptionLabels pq.StringArray `db:"option_labels"`
	}
)

func (r assessmentRow) toModel(questions []questionRow) assessment.Assessment {
	a := assessment.Assessment{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		TimeLimitMinutes:   r.TimeLimitMinutes.Ptr(),
		PassingScore:       r.PassingScore,
		ShowScore:          r.ShowScore,
		ShowCorrectAnswers: r.ShowCorrectAnswers,
		CreatedAt:          r.CreatedAt.UTC(),
		Questions:          make([]assessment.Question, 0, len(questions)),
	}
	for _, qr := range questions {
		q := assessment.Question{
			ID:     qr.ID,
			Type:   assessment.QuestionType(qr.Type),
			Prompt: qr.Prompt,
			Points: qr.Points,
		}
		for i, id := range qr.OptionIDs {
			opt := assessment.Option{ID: id}
			if i < len(qr.OptionLabels) {
				opt.Label = qr.OptionLabels[i]
			}
			q.Options = append(q.Options, opt)
		}
		a.Questions = append(a.Questions, q)
	}
	return a
}

type assessmentRepository struct {
	db core.DB
}

func NewAssessmentRepository(db core.DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

const selectQuestions = `
SELECT assessment_id, id, position, type, prompt, points, option_ids, option_labels
FROM question`

func (repo *assessmentRepository) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	var row assessmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM assessment WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "selecting assessment")
	}

	var questions []questionRow
	if err = repo.db.SelectContext(ctx, &questions, selectQuestions+` WHERE assessment_id = $1 ORDER BY position`, id); err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "selecting questions")
	}
	return row.toModel(questions), nil
}

func (repo *assessmentRepository) SaveAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	row := assessmentRow{
		ID:                 a.ID,
		Title:              a.Title,
		Description:        a.Description,
		TimeLimitMinutes:   null.IntFromPtr(a.TimeLimitMinutes),
		PassingScore:       a.PassingScore,
		ShowScore:          a.ShowScore,
		ShowCorrectAnswers: a.ShowCorrectAnswers,
		CreatedAt:          a.CreatedAt,
	}

	err := core.InTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := sqlx.NamedExecContext(ctx, tx, `
INSERT INTO assessment (id, title, description, time_limit_minutes, passing_score, show_score, show_correct_answers, created_at)
VALUES (:id, :title, :description, :time_limit_minutes, :passing_score, :show_score, :show_correct_answers, :created_at)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    time_limit_minutes = EXCLUDED.time_limit_minutes,
    passing_score = EXCLUDED.passing_score,
    show_score = EXCLUDED.show_score,
    show_correct_answers = EXCLUDED.show_correct_answers`, row)
		if err != nil {
			return errors.Wrap(err, "upserting assessment")
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM question WHERE assessment_id = $1`, a.ID); err != nil {
			return errors.Wrap(err, "deleting questions")
		}

		for i, q := range a.Questions {
			qr := questionRow{
				AssessmentID: a.ID,
				ID:           q.ID,
				Position:     i,
				Type:         string(q.Type),
				Prompt:       q.Prompt,
				Points:       q.Points,
				OptionIDs:    pq.StringArray{},
				OptionLabels: pq.StringArray{},
			}
			for _, opt := range q.Options {
				qr.OptionIDs = append(qr.OptionIDs, opt.ID)
				qr.OptionLabels = append(qr.OptionLabels, opt.Label)
			}
			_, err = sqlx.NamedExecContext(ctx, tx, `
INSERT INTO question (assessment_id, id, position, type, prompt, points, option_ids, option_labels)
VALUES (:assessment_id, :id, :position, :type, :prompt, :points, :option_ids, :option_labels)`, qr)
			if err != nil {
				return errors.Wrapf(err, "inserting question %s", q.ID)
			}
		}
		return nil
	})
	if err != nil {
		return assessment.Assessment{}, err
	}
	return repo.GetAssessment(ctx, a.ID)
}

func (repo *assessmentRepository) QueryAssessments(ctx context.Context) ([]assessment.Assessment, error) {
	var rows []assessmentRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM assessment ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "selecting assessments")
	}

	var questions []questionRow
	if err := repo.db.SelectContext(ctx, &questions, selectQuestions+` ORDER BY assessment_id, position`); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	byAssessment := make(map[string][]questionRow)
	for _, qr := range questions {
		byAssessment[qr.AssessmentID] = append(byAssessment[qr.AssessmentID], qr)
	}

	all := make([]assessment.Assessment, 0, len(rows))
	for _, row := range rows {
		all = append(all, row.toModel(byAssessment[row.ID]))
	}
	return all, nil
}
