package attempt

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		// GetAttempt returns the attempt with its saved answers.
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		// FindAttempt returns the most recently started attempt matching the filter.
		FindAttempt(ctx context.Context, filter Filter) (Attempt, error)
		QueryAttempts(ctx context.Context, filter Filter) ([]Attempt, error)
		// CreateAttempt fails with ErrConflict when the learner already has an attempt in progress.
		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		// SaveAnswer upserts the answer keyed by (attempt, question).
		SaveAnswer(ctx context.Context, attemptID string, ans SavedAnswer) error
		// FinishAttempt moves an IN_PROGRESS attempt to status; ErrNotInProgress otherwise.
		FinishAttempt(ctx context.Context, id string, status Status, at time.Time) (Attempt, error)
	}

	Assessments interface {
		Get(ctx context.Context, id string) (assessment.Assessment, error)
	}

	// Service is the server side of the attempt boundary consumed by the player engine.
	Service struct {
		repo        Repository
		assessments Assessments
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(repo Repository, assessments Assessments, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:        repo,
		assessments: assessments,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

// loadOwned fetches an attempt, hiding attempts of other learners behind ErrNotFound.
func (svc *Service) loadOwned(ctx context.Context, learner core.Learner, id string) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.LearnerID != learner.ID {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

// expire marks an overdue attempt EXPIRED. Saved answers are kept.
func (svc *Service) expire(ctx context.Context, a Attempt, now time.Time) (Attempt, error) {
	expired, err := svc.repo.FinishAttempt(ctx, a.ID, StatusExpired, now)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "expiring attempt")
	}
	svc.logger.Info(fmt.Sprintf("attempt %s expired", a.ID))
	return expired, nil
}

// FindInProgress returns the learner's IN_PROGRESS attempt, or ErrNotFound.
// An attempt past its deadline (plus grace) is expired on the way and not returned.
func (svc *Service) FindInProgress(ctx context.Context, learner core.Learner, assessmentID string) (Attempt, error) {
	a, err := svc.repo.FindAttempt(ctx, Filter{AssessmentID: assessmentID, LearnerID: learner.ID, Status: StatusInProgress})
	if err != nil {
		return Attempt{}, err
	}
	asmt, err := svc.assessments.Get(ctx, assessmentID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting assessment")
	}
	if now := NowFunc().UTC(); a.Overdue(asmt.TimeLimitMinutes, now) {
		if _, err = svc.expire(ctx, a, now); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

// Start creates a new attempt. When one is already in progress it is returned instead.
func (svc *Service) Start(ctx context.Context, learner core.Learner, assessmentID string) (Attempt, error) {
	if _, err := svc.assessments.Get(ctx, assessmentID); err != nil {
		return Attempt{}, err
	}

	existing, err := svc.FindInProgress(ctx, learner, assessmentID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return Attempt{}, err
	}

	a, err := svc.repo.CreateAttempt(ctx, Attempt{
		ID:           uuid.New().String(),
		AssessmentID: assessmentID,
		LearnerID:    learner.ID,
		Status:       StatusInProgress,
		StartedAt:    NowFunc().UTC(),
		Answers:      []SavedAnswer{},
	})
	if errors.Is(err, ErrConflict) {
		// lost a race against another tab: resume theirs
		return svc.repo.FindAttempt(ctx, Filter{AssessmentID: assessmentID, LearnerID: learner.ID, Status: StatusInProgress})
	}
	if err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	svc.logger.Info(fmt.Sprintf("attempt %s started by %s on %s", a.ID, learner.ID, assessmentID))
	return a, nil
}

// Detail returns the attempt with its saved answers and the assessment questions.
func (svc *Service) Detail(ctx context.Context, learner core.Learner, id string) (Detail, error) {
	a, err := svc.loadOwned(ctx, learner, id)
	if err != nil {
		return Detail{}, err
	}
	asmt, err := svc.assessments.Get(ctx, a.AssessmentID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "getting assessment")
	}
	return Detail{
		Attempt:    a,
		Assessment: asmt.Summary(),
		Questions:  asmt.Questions,
	}, nil
}

func (svc *Service) SaveAnswer(ctx context.Context, learner core.Learner, id, questionID string, ans Answer) error {
	a, err := svc.loadOwned(ctx, learner, id)
	if err != nil {
		return err
	}
	if a.Status != StatusInProgress {
		return ErrNotInProgress
	}
	asmt, err := svc.assessments.Get(ctx, a.AssessmentID)
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}

	now := NowFunc().UTC()
	if a.Overdue(asmt.TimeLimitMinutes, now) {
		if _, err = svc.expire(ctx, a, now); err != nil {
			return err
		}
		return ErrDeadlinePassed
	}

	q, ok := asmt.Question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if err = CheckAnswer(q, ans); err != nil {
		return err
	}
	return svc.repo.SaveAnswer(ctx, a.ID, SavedAnswer{QuestionID: q.ID, Answer: ans.Clone(), SavedAt: now})
}

// Submit finishes the attempt. Submitting a finished attempt returns its result again.
func (svc *Service) Submit(ctx context.Context, learner core.Learner, id string) (Result, error) {
	a, err := svc.loadOwned(ctx, learner, id)
	if err != nil {
		return Result{}, err
	}
	asmt, err := svc.assessments.Get(ctx, a.AssessmentID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting assessment")
	}
	if a.Status.Finished() {
		return resultOf(a, asmt), nil
	}

	now := NowFunc().UTC()
	status := StatusCompleted
	if a.Overdue(asmt.TimeLimitMinutes, now) {
		status = StatusExpired
	}
	a, err = svc.repo.FinishAttempt(ctx, a.ID, status, now)
	if errors.Is(err, ErrNotInProgress) {
		// finished concurrently (double submit or expiry): report the stored outcome
		if a, err = svc.repo.GetAttempt(ctx, id); err != nil {
			return Result{}, err
		}
		return resultOf(a, asmt), nil
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "finishing attempt")
	}

	res := resultOf(a, asmt)
	svc.sendReceipt(learner, asmt, res)
	return res, nil
}

// ExpireOverdue expires every in-progress attempt past its deadline. Returns how many were expired.
func (svc *Service) ExpireOverdue(ctx context.Context) (int, error) {
	inProgress, err := svc.repo.QueryAttempts(ctx, Filter{Status: StatusInProgress})
	if err != nil {
		return 0, errors.Wrap(err, "querying attempts")
	}

	limits := make(map[string]*int)
	now := NowFunc().UTC()
	var n int
	for _, a := range inProgress {
		limit, ok := limits[a.AssessmentID]
		if !ok {
			asmt, err := svc.assessments.Get(ctx, a.AssessmentID)
			if err != nil {
				return n, errors.Wrap(err, "getting assessment")
			}
			limit = asmt.TimeLimitMinutes
			limits[a.AssessmentID] = limit
		}
		if !a.Overdue(limit, now) {
			continue
		}
		if _, err = svc.expire(ctx, a, now); err != nil {
			if errors.Is(err, ErrNotInProgress) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func resultOf(a Attempt, asmt assessment.Assessment) Result {
	res := Result{
		AttemptID:     a.ID,
		Status:        a.Status,
		Answered:      countAnswered(a.Answers),
		QuestionCount: len(asmt.Questions),
	}
	if a.SubmittedAt != nil {
		res.SubmittedAt = *a.SubmittedAt
	}
	return res
}

func countAnswered(answers []SavedAnswer) int {
	var n int
	for _, sa := range answers {
		if !sa.Answer.IsEmpty() {
			n++
		}
	}
	return n
}

type receiptData struct {
	LearnerName     string
	AssessmentTitle string
	SubmittedAt     string
	Answered        int
	QuestionCount   int
	Status          Status
}

func (svc *Service) sendReceipt(learner core.Learner, asmt assessment.Assessment, res Result) {
	if svc.mailSvc == nil || learner.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: learner.Name, Address: learner.Email}},
		Subject:      "Submission received: " + asmt.Title,
		TemplateName: "attempt_receipt",
		TemplateData: receiptData{
			LearnerName:     learner.Name,
			AssessmentTitle: asmt.Title,
			SubmittedAt:     res.SubmittedAt.Format(time.RFC1123),
			Answered:        res.Answered,
			QuestionCount:   res.QuestionCount,
			Status:          res.Status,
		},
	})
}
