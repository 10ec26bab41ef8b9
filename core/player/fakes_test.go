package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

var errUnavailable = &attempt.ServiceError{Op: "test", Kind: attempt.KindUnavailable, Err: errors.New("connection refused")}

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{now: time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fakeTicker struct{ c chan time.Time }

func newFakeTicker() *fakeTicker { return &fakeTicker{c: make(chan time.Time)} }

func (t *fakeTicker) C() <-chan time.Time         { return t.c }
func (t *fakeTicker) Stop()                       {}
func (t *fakeTicker) factory(time.Duration) Ticker { return t }

// tick reports whether a running clock received the tick.
func (t *fakeTicker) tick() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

type saveCall struct {
	AttemptID  string
	QuestionID string
	Answer     attempt.Answer
}

// fakeService is an in-memory AttemptService and Catalog.
type fakeService struct {
	mu        sync.Mutex
	now       func() time.Time
	summary   assessment.Summary
	questions []assessment.Question
	attempts  map[string]*attempt.Attempt
	seq       int

	findErr    error
	detailErrs []error
	saveErr    error
	saveBlock  chan struct{} // saves wait here, ignoring the context
	submitErrs []error
	submitGate chan struct{} // submissions wait here

	onSave    func(call saveCall)
	saves     []saveCall
	submits   int
	submitted map[string]attempt.Answer // server answers when the last submission was received
}

func newFakeService(now func() time.Time, timeLimit *int, questions ...assessment.Question) *fakeService {
	return &fakeService{
		now: now,
		summary: assessment.Summary{
			ID:               "asmt-1",
			Title:            "Geography",
			TimeLimitMinutes: timeLimit,
			QuestionCount:    len(questions),
		},
		questions: questions,
		attempts:  make(map[string]*attempt.Attempt),
	}
}

func (f *fakeService) AssessmentSummary(_ context.Context, id string) (assessment.Summary, error) {
	if id != f.summary.ID {
		return assessment.Summary{}, assessment.ErrNotFound
	}
	return f.summary, nil
}

func (f *fakeService) FindInProgressAttempt(_ context.Context, assessmentID string) (attempt.Attempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return attempt.Attempt{}, false, f.findErr
	}
	for _, a := range f.attempts {
		if a.AssessmentID == assessmentID && a.Status == attempt.StatusInProgress {
			return *a, true, nil
		}
	}
	return attempt.Attempt{}, false, nil
}

func (f *fakeService) StartAttempt(_ context.Context, assessmentID string) (attempt.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	a := &attempt.Attempt{
		ID:           fmt.Sprintf("att-%d", f.seq),
		AssessmentID: assessmentID,
		LearnerID:    "learner-1",
		Status:       attempt.StatusInProgress,
		StartedAt:    f.now(),
	}
	f.attempts[a.ID] = a
	return *a, nil
}

func (f *fakeService) GetAttemptDetail(_ context.Context, attemptID string) (attempt.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.detailErrs) > 0 {
		err := f.detailErrs[0]
		f.detailErrs = f.detailErrs[1:]
		return attempt.Detail{}, err
	}
	a, ok := f.attempts[attemptID]
	if !ok {
		return attempt.Detail{}, attempt.ErrNotFound
	}
	cp := *a
	cp.Answers = append([]attempt.SavedAnswer(nil), a.Answers...)
	return attempt.Detail{Attempt: cp, Assessment: f.summary, Questions: f.questions}, nil
}

func (f *fakeService) SaveAnswer(_ context.Context, attemptID, questionID string, ans attempt.Answer) error {
	call := saveCall{AttemptID: attemptID, QuestionID: questionID, Answer: ans}

	f.mu.Lock()
	block, onSave := f.saveBlock, f.onSave
	f.mu.Unlock()
	if onSave != nil {
		onSave(call)
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.saves = append(f.saves, call)
	if f.saveErr != nil {
		return f.saveErr
	}
	a, ok := f.attempts[attemptID]
	if !ok {
		return attempt.ErrNotFound
	}
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			a.Answers[i].Answer = ans.Clone()
			return nil
		}
	}
	a.Answers = append(a.Answers, attempt.SavedAnswer{QuestionID: questionID, Answer: ans.Clone(), SavedAt: f.now()})
	return nil
}

func (f *fakeService) SubmitAttempt(_ context.Context, attemptID string) (attempt.Result, error) {
	f.mu.Lock()
	f.submits++
	gate := f.submitGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return attempt.Result{}, err
	}
	a, ok := f.attempts[attemptID]
	if !ok {
		return attempt.Result{}, attempt.ErrNotFound
	}
	f.submitted = make(map[string]attempt.Answer, len(a.Answers))
	for _, sa := range a.Answers {
		f.submitted[sa.QuestionID] = sa.Answer
	}
	now := f.now()
	a.Status = attempt.StatusCompleted
	a.SubmittedAt = &now
	return attempt.Result{
		AttemptID:     a.ID,
		Status:        a.Status,
		SubmittedAt:   now,
		Answered:      len(a.Answers),
		QuestionCount: len(f.questions),
	}, nil
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeService) saveCalls() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.saves...)
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func mcq(id string, optionIDs ...string) assessment.Question {
	q := assessment.Question{ID: id, Type: assessment.TypeMCQ, Prompt: "Pick " + id, Points: 1}
	for _, oid := range optionIDs {
		q.Options = append(q.Options, assessment.Option{ID: oid, Label: "Label " + oid})
	}
	return q
}

func shortAnswer(id string) assessment.Question {
	return assessment.Question{ID: id, Type: assessment.TypeShortAnswer, Prompt: "Say " + id, Points: 1}
}

func minutes(n int) *int { return &n }

func newTestSession(t *testing.T, svc *fakeService, now *fakeNow, ticker *fakeTicker, opts ...func(*Options)) *Session {
	t.Helper()
	o := Options{
		TickInterval:         time.Second,
		FlushTimeout:         200 * time.Millisecond,
		SaveTimeout:          200 * time.Millisecond,
		SubmitRetryDelay:     10 * time.Millisecond,
		MaxAutoSubmitRetries: 3,
		EventBuffer:          1024,
		Now:                  now.Now,
		NewTicker:            ticker.factory,
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := NewSession(svc, svc, svc.summary.ID, o)
	if err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().Phase == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase = %s; want %s", s.State().Phase, want)
}

// drain collects the events emitted so far.
func drain(s *Session) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

// phases lists phase events, collapsing consecutive repeats.
func phases(events []Event) []Phase {
	var seq []Phase
	for _, e := range events {
		if e.Kind != EventPhase {
			continue
		}
		if n := len(seq); n > 0 && seq[n-1] == e.Phase {
			continue
		}
		seq = append(seq, e.Phase)
	}
	return seq
}

func count(events []Event, kind EventKind) int {
	var n int
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
