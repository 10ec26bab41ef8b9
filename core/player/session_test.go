package player

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

func startSession(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got := s.State().Phase; got != PhaseActive {
		t.Fatalf("phase = %s; want %s", got, PhaseActive)
	}
}

func TestNewSession_Validation(t *testing.T) {
	svc := newFakeService(time.Now, nil, mcq("q1", "a", "b"))
	if _, err := NewSession(nil, svc, "asmt-1", Options{}); err == nil {
		t.Error("NewSession(nil service) error = nil")
	}
	if _, err := NewSession(svc, svc, "", Options{}); err == nil {
		t.Error("NewSession(empty assessment) error = nil")
	}
}

func TestSession_InitWithoutAttempt(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, minutes(30), mcq("q1", "a", "b"))
	s := newTestSession(t, svc, now, newFakeTicker())

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	st := s.State()
	if st.Phase != PhaseNoAttempt {
		t.Errorf("phase = %s; want %s", st.Phase, PhaseNoAttempt)
	}
	if st.Assessment.Title != "Geography" || *st.Assessment.TimeLimitMinutes != 30 {
		t.Errorf("assessment = %+v; want the catalog summary", st.Assessment)
	}
	if err := s.SetAnswer(attempt.ChoiceAnswer("a")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetAnswer() error = %v; want %v", err, ErrReadOnly)
	}
	if svc.submitCount() != 0 || len(svc.saveCalls()) != 0 {
		t.Error("Init() caused writes")
	}
}

func TestSession_StartActivates(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, minutes(10), mcq("q1", "a", "b"), shortAnswer("q2"))
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)

	st := s.State()
	if st.AttemptID == "" || !st.StartedAt.Equal(now.Now()) {
		t.Errorf("attempt = %q started %v; want the server attempt", st.AttemptID, st.StartedAt)
	}
	if st.Index != 0 || st.Count != 2 || st.Question.ID != "q1" {
		t.Errorf("cursor = %d/%d on %v; want 0/2 on q1", st.Index, st.Count, st.Question)
	}
	if !st.Timed || st.Remaining != 10*time.Minute {
		t.Errorf("timed = %v, remaining = %v; want true, 10m", st.Timed, st.Remaining)
	}
	if len(s.Answers()) != 0 {
		t.Errorf("answers = %v; want empty", s.Answers())
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("second Start() error = %v; want %v", err, ErrInvalidPhase)
	}
}

func TestSession_ResumeRehydratesAnswers(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"), mcq("q3", "x", "y", "z"), shortAnswer("q4"))
	saved := []attempt.SavedAnswer{
		{QuestionID: "q1", Answer: attempt.ChoiceAnswer("b")},
		{QuestionID: "q2", Answer: attempt.TextAnswer("Kinshasa")},
		{QuestionID: "q3", Answer: attempt.ChoiceAnswer("x", "z")},
	}
	svc.attempts["att-9"] = &attempt.Attempt{
		ID:           "att-9",
		AssessmentID: "asmt-1",
		Status:       attempt.StatusInProgress,
		StartedAt:    now.Now().Add(-time.Hour),
		Answers:      saved,
	}

	s := newTestSession(t, svc, now, newFakeTicker())
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if got, want := phases(drain(s)), []Phase{PhaseResuming, PhaseActive}; !reflect.DeepEqual(got, want) {
		t.Errorf("phases = %v; want %v", got, want)
	}

	st := s.State()
	if st.Phase != PhaseActive || st.AttemptID != "att-9" || st.Index != 0 {
		t.Fatalf("state = %s on %q at %d; want ACTIVE on att-9 at 0", st.Phase, st.AttemptID, st.Index)
	}
	want := map[string]attempt.Answer{
		"q1": attempt.ChoiceAnswer("b"),
		"q2": attempt.TextAnswer("Kinshasa"),
		"q3": attempt.ChoiceAnswer("x", "z"),
	}
	if got := s.Answers(); !reflect.DeepEqual(got, want) {
		t.Errorf("answers = %v; want %v", got, want)
	}
	if !st.HasDraft || !st.DraftPersisted || !st.Draft.Equal(attempt.ChoiceAnswer("b")) {
		t.Errorf("draft = %v (has %v, persisted %v); want saved q1 answer", st.Draft, st.HasDraft, st.DraftPersisted)
	}
	if svc.submitCount() != 0 || len(svc.saveCalls()) != 0 {
		t.Error("resume caused writes")
	}
}

func TestSession_ResumeLookupFailureOffersStart(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"))
	svc.findErr = errUnavailable
	s := newTestSession(t, svc, now, newFakeTicker())

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v; want nil", err)
	}
	if got := s.State().Phase; got != PhaseNoAttempt {
		t.Fatalf("phase = %s; want %s", got, PhaseNoAttempt)
	}
	if count(drain(s), EventNotice) != 1 {
		t.Error("resume failure was not notified")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got := s.State().Phase; got != PhaseActive {
		t.Errorf("phase = %s; want %s", got, PhaseActive)
	}
}

func TestSession_LoadFailureRetry(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"))
	svc.attempts["att-1"] = &attempt.Attempt{ID: "att-1", AssessmentID: "asmt-1", Status: attempt.StatusInProgress, StartedAt: now.Now()}
	svc.detailErrs = []error{errUnavailable}
	s := newTestSession(t, svc, now, newFakeTicker())

	if err := s.Init(context.Background()); err == nil {
		t.Fatal("Init() error = nil; want load failure")
	}
	st := s.State()
	if st.Phase != PhaseError || st.LastError == nil || st.LastError.Op != OpLoad {
		t.Fatalf("state = %s, last error %v; want ERROR on load", st.Phase, st.LastError)
	}
	if st.AttemptID != "" || st.Question != nil {
		t.Errorf("partial state kept: %+v", st)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("Start() in ERROR error = %v; want %v", err, ErrInvalidPhase)
	}

	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	st = s.State()
	if st.Phase != PhaseActive || st.AttemptID != "att-1" || st.LastError != nil {
		t.Errorf("state = %s on %q (last error %v); want ACTIVE on att-1", st.Phase, st.AttemptID, st.LastError)
	}
}

func TestSession_CatalogFailureRetry(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"))
	s, err := NewSession(svc, &failingCatalog{svc: svc, fails: 1}, "asmt-1", Options{Now: now.Now})
	if err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}
	defer s.Close()

	if err := s.Init(context.Background()); err == nil {
		t.Fatal("Init() error = nil; want catalog failure")
	}
	if got := s.State().Phase; got != PhaseError {
		t.Fatalf("phase = %s; want %s", got, PhaseError)
	}
	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if st := s.State(); st.Phase != PhaseNoAttempt || st.Assessment.ID != "asmt-1" {
		t.Errorf("state = %s with %+v; want NO_ATTEMPT with summary", st.Phase, st.Assessment)
	}
}

// failingCatalog fails the first fails lookups.
type failingCatalog struct {
	svc   *fakeService
	mu    sync.Mutex
	fails int
}

func (c *failingCatalog) AssessmentSummary(ctx context.Context, id string) (assessment.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails > 0 {
		c.fails--
		return assessment.Summary{}, errUnavailable
	}
	return c.svc.AssessmentSummary(ctx, id)
}

func TestSession_SetAnswerShape(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"))
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)

	tests := []struct {
		name    string
		answer  attempt.Answer
		wantErr bool
	}{
		{name: "choice on mcq", answer: attempt.ChoiceAnswer("a", "b")},
		{name: "text on mcq", answer: attempt.TextAnswer("a"), wantErr: true},
		{name: "unknown option", answer: attempt.ChoiceAnswer("c"), wantErr: true},
		{name: "clearing", answer: attempt.ChoiceAnswer()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.SetAnswer(tc.answer)
			if (err != nil) != tc.wantErr {
				t.Errorf("SetAnswer() error = %v; wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr && !errors.Is(err, attempt.ErrAnswerMismatch) {
				t.Errorf("SetAnswer() error = %v; want %v", err, attempt.ErrAnswerMismatch)
			}
		})
	}
	if len(svc.saveCalls()) != 0 {
		t.Error("SetAnswer() caused network writes")
	}
}

func TestSession_NavigationSavesLeftQuestion(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"), shortAnswer("q3"))
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)

	var indexAtSave []int
	svc.set(func(f *fakeService) {
		f.onSave = func(saveCall) { indexAtSave = append(indexAtSave, s.State().Index) }
	})
	ctx := context.Background()

	if err := s.SetAnswer(attempt.ChoiceAnswer("a")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if err := s.SetAnswer(attempt.TextAnswer("second")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Prev(ctx); err != nil {
		t.Fatalf("Prev() failed: %v", err)
	}

	saves := svc.saveCalls()
	if len(saves) != 2 || saves[0].QuestionID != "q1" || saves[1].QuestionID != "q2" {
		t.Fatalf("saves = %+v; want q1 then q2", saves)
	}
	if !saves[0].Answer.Equal(attempt.ChoiceAnswer("a")) || saves[1].Answer.Text != "second" {
		t.Errorf("saved answers = %+v", saves)
	}
	if want := []int{0, 1}; !reflect.DeepEqual(indexAtSave, want) {
		t.Errorf("index during saves = %v; want %v", indexAtSave, want)
	}
	if st := s.State(); st.Index != 0 || !st.DraftPersisted {
		t.Errorf("index = %d, persisted = %v; want 0, true", st.Index, st.DraftPersisted)
	}

	// unchanged answers are not saved again
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if n := len(svc.saveCalls()); n != 2 {
		t.Errorf("saves = %d; want 2", n)
	}
}

func TestSession_SaveFailureDoesNotBlock(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"))
	svc.saveErr = errUnavailable
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)
	drain(s)

	if err := s.SetAnswer(attempt.ChoiceAnswer("b")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v; want nil", err)
	}
	if got := s.State().Index; got != 1 {
		t.Errorf("index = %d; want 1", got)
	}
	events := drain(s)
	if count(events, EventNotice) != 1 {
		t.Errorf("notices = %d; want 1", count(events, EventNotice))
	}
	if ans, ok := s.Answers()["q1"]; !ok || !ans.Equal(attempt.ChoiceAnswer("b")) {
		t.Errorf("q1 answer = %v; want kept locally", ans)
	}
}

func TestSession_NextOnLastQuestionRequestsSubmit(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, shortAnswer("q1"))
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)
	ctx := context.Background()

	if err := s.SetAnswer(attempt.TextAnswer("only")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	st := s.State()
	if !st.AwaitingConfirm || st.Phase != PhaseActive {
		t.Fatalf("state = %s, awaiting %v; want ACTIVE awaiting confirmation", st.Phase, st.AwaitingConfirm)
	}
	if saves := svc.saveCalls(); len(saves) != 1 || saves[0].QuestionID != "q1" {
		t.Errorf("saves = %+v; want the current question flushed", saves)
	}
	if svc.submitCount() != 0 {
		t.Error("submitted without confirmation")
	}

	s.CancelSubmit()
	if err := s.ConfirmSubmit(ctx); !errors.Is(err, ErrNotConfirming) {
		t.Errorf("ConfirmSubmit() after cancel error = %v; want %v", err, ErrNotConfirming)
	}
	if err := s.RequestSubmit(ctx); err != nil {
		t.Fatalf("RequestSubmit() failed: %v", err)
	}
	if err := s.ConfirmSubmit(ctx); err != nil {
		t.Fatalf("ConfirmSubmit() failed: %v", err)
	}
	st = s.State()
	if st.Phase != PhaseFinished || st.Result == nil || st.Result.Status != attempt.StatusCompleted {
		t.Errorf("state = %s, result %+v; want FINISHED and COMPLETED", st.Phase, st.Result)
	}
	if err := s.SetAnswer(attempt.TextAnswer("late")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetAnswer() after finish error = %v; want %v", err, ErrReadOnly)
	}
}

func TestSession_DoubleSubmitSingleCall(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, shortAnswer("q1"))
	gate := make(chan struct{})
	svc.submitGate = gate
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- s.Submit(ctx) }()
	waitPhase(t, s, PhaseSubmitting)

	if err := s.Submit(ctx); err != nil {
		t.Errorf("second Submit() error = %v; want nil", err)
	}
	if err := s.SetAnswer(attempt.TextAnswer("while submitting")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetAnswer() while submitting error = %v; want %v", err, ErrReadOnly)
	}
	if err := s.Next(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Next() while submitting error = %v; want %v", err, ErrReadOnly)
	}

	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if err := s.Submit(ctx); err != nil {
		t.Errorf("Submit() after finish error = %v; want nil", err)
	}
	if n := svc.submitCount(); n != 1 {
		t.Errorf("submitAttempt calls = %d; want 1", n)
	}
	if got := s.State().Phase; got != PhaseFinished {
		t.Errorf("phase = %s; want %s", got, PhaseFinished)
	}
}

func TestSession_SubmitFailureThenManualRetry(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"))
	svc.submitErrs = []error{errUnavailable}
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)
	ctx := context.Background()

	if err := s.SetAnswer(attempt.ChoiceAnswer("a")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if err := s.SetAnswer(attempt.TextAnswer("draft")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	before := s.Answers()

	if err := s.RequestSubmit(ctx); err != nil {
		t.Fatalf("RequestSubmit() failed: %v", err)
	}
	if err := s.ConfirmSubmit(ctx); err == nil {
		t.Fatal("ConfirmSubmit() error = nil; want submit failure")
	}
	st := s.State()
	if st.Phase != PhaseActive || st.LastError == nil || st.LastError.Op != OpSubmit {
		t.Fatalf("state = %s, last error %v; want ACTIVE with a submit error", st.Phase, st.LastError)
	}
	afterFailure := s.Answers()
	if !reflect.DeepEqual(before, afterFailure) {
		t.Errorf("answers changed by failure: %v; want %v", afterFailure, before)
	}
	if err := s.SetAnswer(attempt.TextAnswer("draft")); err != nil {
		t.Errorf("SetAnswer() after failure error = %v; want editable", err)
	}

	if err := s.RequestSubmit(ctx); err != nil {
		t.Fatalf("RequestSubmit() failed: %v", err)
	}
	if !reflect.DeepEqual(s.Answers(), afterFailure) {
		t.Errorf("answers differ between submissions")
	}
	if err := s.ConfirmSubmit(ctx); err != nil {
		t.Fatalf("ConfirmSubmit() failed: %v", err)
	}

	want := []Phase{PhaseActive, PhaseSubmitting, PhaseActive, PhaseSubmitting, PhaseFinished}
	if got := phases(drain(s)); !reflect.DeepEqual(got, want) {
		t.Errorf("phases = %v; want %v", got, want)
	}
	if n := svc.submitCount(); n != 2 {
		t.Errorf("submitAttempt calls = %d; want 2", n)
	}
	if s.State().Result == nil {
		t.Error("result missing")
	}
}

// Timed attempt: Q1 answered and saved by navigation, Q2 typed and never navigated away from.
// The deadline submits both.
func TestSession_TimeoutAutoSubmits(t *testing.T) {
	now := newFakeNow()
	ticker := newFakeTicker()
	svc := newFakeService(now.Now, minutes(1), mcq("q1", "optA", "optB"), shortAnswer("q2"))
	s := newTestSession(t, svc, now, ticker)
	startSession(t, s)
	ctx := context.Background()

	if err := s.SetAnswer(attempt.ChoiceAnswer("optA")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if saves := svc.saveCalls(); len(saves) != 1 || saves[0].QuestionID != "q1" {
		t.Fatalf("saves = %+v; want q1 saved on navigation", saves)
	}
	if err := s.SetAnswer(attempt.TextAnswer("hello")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}

	for i := 0; i < 59; i++ {
		now.Advance(time.Second)
		if !ticker.tick() {
			t.Fatalf("clock not ticking at %ds", i+1)
		}
	}
	if got := s.State().Phase; got != PhaseActive {
		t.Fatalf("phase at 59s = %s; want %s", got, PhaseActive)
	}
	now.Advance(time.Second)
	ticker.tick()
	waitPhase(t, s, PhaseFinished)

	events := drain(s)
	if n := count(events, EventTimeout); n != 1 {
		t.Errorf("timeout events = %d; want 1", n)
	}
	if n := svc.submitCount(); n != 1 {
		t.Errorf("submitAttempt calls = %d; want 1", n)
	}
	want := map[string]attempt.Answer{
		"q1": attempt.ChoiceAnswer("optA"),
		"q2": attempt.TextAnswer("hello"),
	}
	svc.mu.Lock()
	submitted := svc.submitted
	svc.mu.Unlock()
	if !reflect.DeepEqual(submitted, want) {
		t.Errorf("submitted answers = %v; want %v", submitted, want)
	}
}

// Untimed attempt left after navigating to Q2: Q1 survives, Q2's unsaved edit does not.
func TestSession_ResumeLosesUnsavedLastQuestion(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, mcq("q1", "a", "b"), shortAnswer("q2"))
	ctx := context.Background()

	first := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, first)
	if err := first.SetAnswer(attempt.ChoiceAnswer("b")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	if err := first.Next(ctx); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if err := first.SetAnswer(attempt.TextAnswer("never saved")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	attemptID := first.State().AttemptID
	first.Close()

	now.Advance(24 * time.Hour)
	second := newTestSession(t, svc, now, newFakeTicker())
	if err := second.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	st := second.State()
	if st.Phase != PhaseActive || st.AttemptID != attemptID {
		t.Fatalf("state = %s on %q; want ACTIVE on %q", st.Phase, st.AttemptID, attemptID)
	}
	if st.Index != 0 {
		t.Errorf("index = %d; want resume at 0", st.Index)
	}
	want := map[string]attempt.Answer{"q1": attempt.ChoiceAnswer("b")}
	if got := second.Answers(); !reflect.DeepEqual(got, want) {
		t.Errorf("answers = %v; want %v", got, want)
	}
	if svc.submitCount() != 0 {
		t.Error("closing the session submitted the attempt")
	}
}

func TestSession_TimeoutFailureRetriesAutomatically(t *testing.T) {
	now := newFakeNow()
	ticker := newFakeTicker()
	svc := newFakeService(now.Now, minutes(1), shortAnswer("q1"))
	svc.submitErrs = []error{errUnavailable, errUnavailable}
	s := newTestSession(t, svc, now, ticker)
	startSession(t, s)

	now.Advance(time.Minute)
	ticker.tick()
	waitPhase(t, s, PhaseFinished)

	if n := svc.submitCount(); n != 3 {
		t.Errorf("submitAttempt calls = %d; want 3", n)
	}
	if n := count(drain(s), EventTimeout); n != 1 {
		t.Errorf("timeout events = %d; want 1", n)
	}
}

func TestSession_AutoRetriesAreBounded(t *testing.T) {
	now := newFakeNow()
	ticker := newFakeTicker()
	svc := newFakeService(now.Now, minutes(1), shortAnswer("q1"))
	svc.submitErrs = []error{errUnavailable, errUnavailable, errUnavailable}
	s := newTestSession(t, svc, now, ticker, func(o *Options) { o.MaxAutoSubmitRetries = 2 })
	startSession(t, s)

	now.Advance(time.Minute)
	ticker.tick()

	deadline := time.Now().Add(2 * time.Second)
	for svc.submitCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	waitPhase(t, s, PhaseActive)
	if n := svc.submitCount(); n != 3 {
		t.Errorf("submitAttempt calls = %d; want 3", n)
	}

	// the learner can still submit by hand
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if got := s.State().Phase; got != PhaseFinished {
		t.Errorf("phase = %s; want %s", got, PhaseFinished)
	}
}

func TestSession_TimeoutDoesNotWaitForStuckSave(t *testing.T) {
	now := newFakeNow()
	ticker := newFakeTicker()
	svc := newFakeService(now.Now, minutes(1), shortAnswer("q1"), shortAnswer("q2"))
	block := make(chan struct{})
	defer close(block)
	s := newTestSession(t, svc, now, ticker, func(o *Options) { o.FlushTimeout = 20 * time.Millisecond })
	startSession(t, s)

	if err := s.SetAnswer(attempt.TextAnswer("pending")); err != nil {
		t.Fatalf("SetAnswer() failed: %v", err)
	}
	svc.set(func(f *fakeService) { f.saveBlock = block })

	now.Advance(time.Minute)
	ticker.tick()
	waitPhase(t, s, PhaseFinished)
	if n := svc.submitCount(); n != 1 {
		t.Errorf("submitAttempt calls = %d; want 1", n)
	}
}

func TestSession_ResumePastDeadlineSubmits(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, minutes(1), shortAnswer("q1"))
	svc.attempts["att-1"] = &attempt.Attempt{
		ID:           "att-1",
		AssessmentID: "asmt-1",
		Status:       attempt.StatusInProgress,
		StartedAt:    now.Now().Add(-10 * time.Minute),
	}
	s := newTestSession(t, svc, now, newFakeTicker())

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	waitPhase(t, s, PhaseFinished)
	if n := svc.submitCount(); n != 1 {
		t.Errorf("submitAttempt calls = %d; want 1", n)
	}
}

func TestSession_ClosedSession(t *testing.T) {
	now := newFakeNow()
	svc := newFakeService(now.Now, nil, shortAnswer("q1"))
	s := newTestSession(t, svc, now, newFakeTicker())
	startSession(t, s)
	s.Close()
	s.Close()

	if err := s.SetAnswer(attempt.TextAnswer("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("SetAnswer() error = %v; want %v", err, ErrClosed)
	}
	if err := s.Submit(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() error = %v; want %v", err, ErrClosed)
	}
	if _, ok := <-s.Events(); ok {
		// buffered events may remain; the channel must end closed
		for range s.Events() {
		}
	}
}
