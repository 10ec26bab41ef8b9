package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02" // malformed uuid
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

type (
	attemptRow struct {
		ID           string    `db:"id"`
		AssessmentID string    `db:"assessment_id"`
		LearnerID    string    `db:"learner_id"`
		Status       string    `db:"status"`
		StartedAt    time.Time `db:"started_at"`
		SubmittedAt  null.Time `db:"submitted_at"`
	}

	answerRow struct {
		AttemptID         string         `db:"attempt_id"`
		QuestionID        string         `db:"question_id"`
		Kind              string         `db:"kind"`
		AnswerText        null.String    `db:"answer_text"`
		SelectedOptionIDs pq.StringArray `db:"selected_option_ids"`
		SavedAt           time.Time      `db:"saved_at"`
	}
)

func (r attemptRow) toModel(answers []answerRow) attempt.Attempt {
	a := attempt.Attempt{
		ID:           r.ID,
		AssessmentID: r.AssessmentID,
		LearnerID:    r.LearnerID,
		Status:       attempt.Status(r.Status),
		StartedAt:    r.StartedAt.UTC(),
		Answers:      make([]attempt.SavedAnswer, 0, len(answers)),
	}
	if r.SubmittedAt.Valid {
		at := r.SubmittedAt.Time.UTC()
		a.SubmittedAt = &at
	}
	for _, ar := range answers {
		ans := attempt.Answer{Kind: assessment.AnswerKind(ar.Kind)}
		if ans.Kind == assessment.KindChoice {
			ans.SelectedOptionIDs = append([]string{}, ar.SelectedOptionIDs...)
		} else {
			ans.Text = ar.AnswerText.String
		}
		a.Answers = append(a.Answers, attempt.SavedAnswer{QuestionID: ar.QuestionID, Answer: ans, SavedAt: ar.SavedAt.UTC()})
	}
	return a
}

type attemptRepository struct {
	db core.DB
}

func NewAttemptRepository(db core.DB) attempt.Repository {
	return &attemptRepository{db: db}
}

func whereFilter(filter attempt.Filter) (string, []interface{}) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("assessment_id", filter.AssessmentID)
	add("learner_id", filter.LearnerID)
	add("status", string(filter.Status))

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// withAnswers loads the answers of every row, keeping the rows order.
func (repo *attemptRepository) withAnswers(ctx context.Context, db core.DBExecutor, rows []attemptRow) ([]attempt.Attempt, error) {
	if len(rows) == 0 {
		return []attempt.Attempt{}, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var answers []answerRow
	err := db.SelectContext(ctx, &answers,
		`SELECT * FROM answer WHERE attempt_id = ANY($1::uuid[]) ORDER BY saved_at, question_id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	byAttempt := make(map[string][]answerRow, len(rows))
	for _, ar := range answers {
		byAttempt[ar.AttemptID] = append(byAttempt[ar.AttemptID], ar)
	}

	all := make([]attempt.Attempt, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.toModel(byAttempt[r.ID]))
	}
	return all, nil
}

func (repo *attemptRepository) get(ctx context.Context, db core.DBExecutor, id string) (attempt.Attempt, error) {
	var row attemptRow
	err := db.GetContext(ctx, &row, `SELECT * FROM attempt WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) || pqCode(err) == invalidTextRepr {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	all, err := repo.withAnswers(ctx, db, []attemptRow{row})
	if err != nil {
		return attempt.Attempt{}, err
	}
	return all[0], nil
}

func (repo *attemptRepository) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	return repo.get(ctx, repo.db, id)
}

func (repo *attemptRepository) FindAttempt(ctx context.Context, filter attempt.Filter) (attempt.Attempt, error) {
	where, args := whereFilter(filter)
	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM attempt`+where+` ORDER BY started_at DESC LIMIT 1`, args...); err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	if len(rows) == 0 {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	all, err := repo.withAnswers(ctx, repo.db, rows)
	if err != nil {
		return attempt.Attempt{}, err
	}
	return all[0], nil
}

func (repo *attemptRepository) QueryAttempts(ctx context.Context, filter attempt.Filter) ([]attempt.Attempt, error) {
	where, args := whereFilter(filter)
	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM attempt`+where+` ORDER BY started_at DESC`, args...); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	return repo.withAnswers(ctx, repo.db, rows)
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	row := attemptRow{
		ID:           a.ID,
		AssessmentID: a.AssessmentID,
		LearnerID:    a.LearnerID,
		Status:       string(a.Status),
		StartedAt:    a.StartedAt,
		SubmittedAt:  null.TimeFromPtr(a.SubmittedAt),
	}
	_, err := sqlx.NamedExecContext(ctx, repo.db, `
INSERT INTO attempt (id, assessment_id, learner_id, status, started_at, submitted_at)
VALUES (:id, :assessment_id, :learner_id, :status, :started_at, :submitted_at)`, row)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return attempt.Attempt{}, attempt.ErrConflict
		}
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return repo.GetAttempt(ctx, a.ID)
}

func (repo *attemptRepository) SaveAnswer(ctx context.Context, attemptID string, ans attempt.SavedAnswer) error {
	row := answerRow{
		AttemptID:  attemptID,
		QuestionID: ans.QuestionID,
		Kind:       string(ans.Answer.Kind),
		SavedAt:    ans.SavedAt,
	}
	if ans.Answer.Kind == assessment.KindChoice {
		row.SelectedOptionIDs = append(pq.StringArray{}, ans.Answer.SelectedOptionIDs...)
	} else {
		row.AnswerText = null.StringFrom(ans.Answer.Text)
	}

	_, err := sqlx.NamedExecContext(ctx, repo.db, `
INSERT INTO answer (attempt_id, question_id, kind, answer_text, selected_option_ids, saved_at)
VALUES (:attempt_id, :question_id, :kind, :answer_text, :selected_option_ids, :saved_at)
ON CONFLICT (attempt_id, question_id) DO UPDATE SET
    kind = EXCLUDED.kind,
    answer_text = EXCLUDED.answer_text,
    selected_option_ids = EXCLUDED.selected_option_ids,
    saved_at = EXCLUDED.saved_at`, row)
	switch code := pqCode(err); {
	case err == nil:
		return nil
	case code == foreignKeyViolation, code == invalidTextRepr:
		return attempt.ErrNotFound
	}
	return errors.Wrap(err, "upserting answer")
}

func (repo *attemptRepository) FinishAttempt(ctx context.Context, id string, status attempt.Status, at time.Time) (attempt.Attempt, error) {
	var finished attempt.Attempt
	err := core.InTx(ctx, repo.db, func(tx core.DBExecutor) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE attempt SET status = $1, submitted_at = $2 WHERE id = $3 AND status = $4`,
			string(status), at, id, string(attempt.StatusInProgress))
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		switch {
		case n == 0:
			if _, err = repo.get(ctx, tx, id); err != nil {
				return err
			}
			return attempt.ErrNotInProgress
		case n > 1:
			return core.NewShutdownError(fmt.Sprintf("finishing attempt %s updated %d rows", id, n))
		}
		finished, err = repo.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	return finished, nil
}
