package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

var (
	ErrReadOnly      = errors.New("answers are read-only outside an active attempt")
	ErrBusy          = errors.New("another operation is in progress")
	ErrInvalidPhase  = errors.New("operation not allowed in the current phase")
	ErrNotConfirming = errors.New("submission was not requested")
	ErrClosed        = errors.New("session closed")
)

type (
	// AttemptService is the server boundary. Failures are returned as typed errors (see attempt.KindOf).
	AttemptService interface {
		FindInProgressAttempt(ctx context.Context, assessmentID string) (attempt.Attempt, bool, error)
		StartAttempt(ctx context.Context, assessmentID string) (attempt.Attempt, error)
		GetAttemptDetail(ctx context.Context, attemptID string) (attempt.Detail, error)
		SaveAnswer(ctx context.Context, attemptID, questionID string, ans attempt.Answer) error
		SubmitAttempt(ctx context.Context, attemptID string) (attempt.Result, error)
	}

	Catalog interface {
		AssessmentSummary(ctx context.Context, assessmentID string) (assessment.Summary, error)
	}

	Options struct {
		TickInterval         time.Duration
		FlushTimeout         time.Duration // bound of the flush preceding a submission
		SaveTimeout          time.Duration // bound of a navigation save point
		SubmitRetryDelay     time.Duration
		MaxAutoSubmitRetries int
		EventBuffer          int

		Now       func() time.Time
		NewTicker func(d time.Duration) Ticker
		Logger    core.Logger
	}
)

func OptionsFromConfig(conf core.PlayerConfig, logger core.Logger) Options {
	return Options{
		TickInterval:         conf.TickInterval,
		FlushTimeout:         conf.FlushTimeout,
		SaveTimeout:          conf.SaveTimeout,
		SubmitRetryDelay:     conf.SubmitRetryDelay,
		MaxAutoSubmitRetries: conf.MaxAutoSubmitRetries,
		Logger:               logger,
	}
}

func (o *Options) setDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 3 * time.Second
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 5 * time.Second
	}
	if o.SubmitRetryDelay <= 0 {
		o.SubmitRetryDelay = 5 * time.Second
	}
	if o.MaxAutoSubmitRetries < 0 {
		o.MaxAutoSubmitRetries = 0
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
}

// Session drives one learner through one assessment:
// NO_ATTEMPT -> RESUMING -> ACTIVE -> SUBMITTING -> FINISHED, with ERROR on load failures.
type Session struct {
	svc          AttemptService
	catalog      Catalog
	assessmentID string
	opts         Options
	logger       core.Logger

	ctx    context.Context // background operations (timeout, auto retries)
	cancel context.CancelFunc

	mu              sync.Mutex
	phase           Phase
	busy            bool // init, start or retry in flight
	moving          bool // navigation save point in flight
	summary         assessment.Summary
	att             attempt.Attempt
	questions       []assessment.Question
	store           *AnswerStore
	nav             *Navigator
	clock           *Clock
	awaitingConfirm bool
	autoRetries     int
	retryTimer      *time.Timer
	result          *attempt.Result
	lastErr         *Notice
	failedOp        string
	failedAttemptID string
	closed          bool
	events          chan Event
}

func NewSession(svc AttemptService, catalog Catalog, assessmentID string, opts Options) (*Session, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(svc, "svc"),
		vala.IsNotNil(catalog, "catalog"),
		vala.StringNotEmpty(assessmentID, "assessmentID"),
	).Check(); err != nil {
		return nil, err
	}

	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:          svc,
		catalog:      catalog,
		assessmentID: assessmentID,
		opts:         opts,
		logger:       opts.Logger,
		ctx:          ctx,
		cancel:       cancel,
		phase:        PhaseNoAttempt,
		store:        NewAnswerStore(),
		events:       make(chan Event, opts.EventBuffer),
	}, nil
}

// Events delivers phase changes, ticks, the timeout and notices. Events are dropped when the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// Init loads the assessment metadata and resumes the learner's in-progress attempt, if any.
func (s *Session) Init(ctx context.Context) error {
	if err := s.acquire(PhaseNoAttempt); err != nil {
		return err
	}
	defer s.release()
	return s.init(ctx)
}

// Start creates a new attempt and makes it active.
func (s *Session) Start(ctx context.Context) error {
	if err := s.acquire(PhaseNoAttempt); err != nil {
		return err
	}
	defer s.release()
	return s.start(ctx)
}

// Retry repeats the operation that moved the session to ERROR.
func (s *Session) Retry(ctx context.Context) error {
	if err := s.acquire(PhaseError); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	op, attemptID := s.failedOp, s.failedAttemptID
	s.mu.Unlock()

	switch op {
	case OpLoad:
		s.setPhase(PhaseResuming)
		return s.load(ctx, attemptID)
	case OpStart:
		s.setPhase(PhaseNoAttempt)
		return s.start(ctx)
	default:
		s.setPhase(PhaseNoAttempt)
		return s.init(ctx)
	}
}

func (s *Session) init(ctx context.Context) error {
	summary, err := s.catalog.AssessmentSummary(ctx, s.assessmentID)
	if err != nil {
		s.fail(OpCatalog, "", err)
		return err
	}
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	found, ok, err := s.svc.FindInProgressAttempt(ctx, s.assessmentID)
	if err != nil {
		// a fresh start is offered instead
		s.notify(Notice{Level: LevelWarn, Op: OpResume, Err: err, Message: "could not look up a previous attempt"})
		return nil
	}
	if !ok {
		return nil
	}

	s.setPhase(PhaseResuming)
	return s.load(ctx, found.ID)
}

func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.summary.ID != ""
	s.mu.Unlock()
	if !loaded {
		summary, err := s.catalog.AssessmentSummary(ctx, s.assessmentID)
		if err != nil {
			s.fail(OpCatalog, "", err)
			return err
		}
		s.mu.Lock()
		s.summary = summary
		s.mu.Unlock()
	}

	a, err := s.svc.StartAttempt(ctx, s.assessmentID)
	if err != nil {
		s.fail(OpStart, "", err)
		return err
	}
	s.logger.Info(fmt.Sprintf("attempt %s started at %s", a.ID, a.StartedAt.Format(time.RFC3339)))
	return s.load(ctx, a.ID)
}

// load fetches the attempt detail and activates it. Nothing is kept on failure.
func (s *Session) load(ctx context.Context, attemptID string) error {
	detail, err := s.svc.GetAttemptDetail(ctx, attemptID)
	if err == nil && len(detail.Questions) == 0 {
		err = errors.New("assessment has no questions")
	}
	if err != nil {
		s.fail(OpLoad, attemptID, err)
		return err
	}

	if detail.Attempt.Status != attempt.StatusInProgress {
		s.mu.Lock()
		s.phase = PhaseNoAttempt
		s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
		s.mu.Unlock()
		s.notify(Notice{Level: LevelInfo, Op: OpResume, Message: fmt.Sprintf("previous attempt is %s", detail.Attempt.Status)})
		return nil
	}

	s.activate(detail)
	return nil
}

func (s *Session) activate(detail attempt.Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if detail.Assessment.ID != "" {
		s.summary = detail.Assessment
	}
	s.att = detail.Attempt
	s.questions = detail.Questions
	s.store = NewAnswerStore()
	s.store.Load(detail.Attempt.Answers)
	s.nav = NewNavigator(len(detail.Questions))
	s.clock = NewClock(detail.Attempt.StartedAt, s.summary.TimeLimitMinutes, ClockOptions{
		Interval:  s.opts.TickInterval,
		Now:       s.opts.Now,
		NewTicker: s.opts.NewTicker,
	})
	s.awaitingConfirm = false
	s.autoRetries = 0
	s.result = nil
	s.lastErr = nil
	s.failedOp, s.failedAttemptID = "", ""

	s.phase = PhaseActive
	s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	s.startClockLocked()
	s.logger.Info(fmt.Sprintf("attempt %s active with %d saved answers", s.att.ID, s.store.Len()))
}

// SetAnswer records the answer of the current question locally. It never blocks on the network.
func (s *Session) SetAnswer(ans attempt.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.phase != PhaseActive {
		return ErrReadOnly
	}
	q := s.questions[s.nav.Index()]
	if err := attempt.CheckAnswer(q, ans); err != nil {
		return err
	}
	s.store.Set(q.ID, ans)
	return nil
}

// Next saves the current answer, then moves forward. On the last question it requests submission.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if err := s.navigableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.nav.AtEnd() {
		s.mu.Unlock()
		return s.RequestSubmit(ctx)
	}
	nav := s.beginMoveLocked()
	s.mu.Unlock()
	defer s.endMove()

	nav.Next(func(index int) { _ = s.savePoint(ctx, index) })
	return nil
}

// Prev saves the current answer, then moves backward. It does nothing on the first question.
func (s *Session) Prev(ctx context.Context) error {
	s.mu.Lock()
	if err := s.navigableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	nav := s.beginMoveLocked()
	s.mu.Unlock()
	defer s.endMove()

	nav.Prev(func(index int) { _ = s.savePoint(ctx, index) })
	return nil
}

func (s *Session) navigableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.phase != PhaseActive:
		return ErrReadOnly
	case s.moving:
		return ErrBusy
	}
	return nil
}

func (s *Session) beginMoveLocked() *Navigator {
	s.moving = true
	s.awaitingConfirm = false
	return s.nav
}

func (s *Session) endMove() {
	s.mu.Lock()
	s.moving = false
	s.mu.Unlock()
}

// savePoint persists the answer of the question at index when it changed since the last save.
// A failure is reported as a notice only.
func (s *Session) savePoint(ctx context.Context, index int) error {
	s.mu.Lock()
	q, attemptID, store := s.questions[index], s.att.ID, s.store
	s.mu.Unlock()

	ans, version, dirty := store.Draft(q.ID)
	if !dirty {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	defer cancel()
	if err := s.svc.SaveAnswer(ctx, attemptID, q.ID, ans); err != nil {
		s.notify(Notice{Level: LevelWarn, Op: OpSave, QuestionID: q.ID, Err: err, Message: "answer not saved"})
		return err
	}
	store.MarkPersisted(q.ID, version)
	return nil
}

// RequestSubmit saves the current answer and waits for ConfirmSubmit.
func (s *Session) RequestSubmit(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.phase == PhaseSubmitting || s.phase == PhaseFinished:
		s.mu.Unlock()
		return nil
	case s.phase != PhaseActive:
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	index := s.nav.Index()
	s.mu.Unlock()

	_ = s.savePoint(ctx, index)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseActive {
		s.awaitingConfirm = true
		s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	}
	return nil
}

func (s *Session) ConfirmSubmit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitting || s.phase == PhaseFinished {
		s.mu.Unlock()
		return nil
	}
	if !s.awaitingConfirm {
		s.mu.Unlock()
		return ErrNotConfirming
	}
	s.mu.Unlock()
	return s.Submit(ctx)
}

func (s *Session) CancelSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingConfirm {
		s.awaitingConfirm = false
		s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	}
}

// Submit flushes unsaved answers within FlushTimeout, then submits the attempt.
// It is a no-op while a submission is in flight or once finished.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.phase == PhaseSubmitting || s.phase == PhaseFinished:
		s.mu.Unlock()
		return nil
	case s.phase != PhaseActive:
		s.mu.Unlock()
		return ErrInvalidPhase
	}

	s.phase = PhaseSubmitting
	s.awaitingConfirm = false
	s.clock.Stop()
	s.stopRetryLocked()
	attemptID, store := s.att.ID, s.store
	order := s.flushOrderLocked()
	s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	s.mu.Unlock()

	s.flush(ctx, attemptID, store, order)
	res, err := s.svc.SubmitAttempt(ctx, attemptID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return err
	}
	if err != nil {
		s.logger.Error(fmt.Sprintf("submitting attempt %s", attemptID), err)
		s.phase = PhaseActive
		s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
		s.noticeLocked(Notice{Level: LevelError, Op: OpSubmit, Err: err, Message: "submission failed, your answers are kept"})
		s.startClockLocked()
		s.scheduleRetryLocked()
		return err
	}

	s.phase = PhaseFinished
	s.result = &res
	s.lastErr = nil
	s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	s.logger.Info(fmt.Sprintf("attempt %s submitted: %s", attemptID, res.Status))
	return nil
}

// flushOrderLocked lists question IDs with the current question first.
func (s *Session) flushOrderLocked() []string {
	order := make([]string, 0, len(s.questions))
	current := s.nav.Index()
	order = append(order, s.questions[current].ID)
	for i, q := range s.questions {
		if i != current {
			order = append(order, q.ID)
		}
	}
	return order
}

// flush saves every dirty answer, giving up after FlushTimeout even if a save is stuck.
func (s *Session) flush(ctx context.Context, attemptID string, store *AnswerStore, order []string) {
	dirty := store.Dirty(order)
	if len(dirty) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, qid := range dirty {
			ans, version, ok := store.Draft(qid)
			if !ok {
				continue
			}
			if err := s.svc.SaveAnswer(ctx, attemptID, qid, ans); err != nil {
				s.notify(Notice{Level: LevelWarn, Op: OpSave, QuestionID: qid, Err: err, Message: "answer not saved"})
				if ctx.Err() != nil {
					return
				}
				continue
			}
			store.MarkPersisted(qid, version)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn(fmt.Sprintf("flush of attempt %s timed out, submitting anyway", attemptID))
	}
}

// scheduleRetryLocked resubmits automatically once the deadline has passed.
func (s *Session) scheduleRetryLocked() {
	if s.clock == nil || !s.clock.Fired() || s.autoRetries >= s.opts.MaxAutoSubmitRetries {
		return
	}
	s.autoRetries++
	s.retryTimer = time.AfterFunc(s.opts.SubmitRetryDelay, func() {
		_ = s.Submit(s.ctx)
	})
}

func (s *Session) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) startClockLocked() {
	if s.clock != nil && s.phase == PhaseActive {
		s.clock.Start(s.onTick, s.onTimeout)
	}
}

func (s *Session) onTick(remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(Event{Kind: EventTick, Phase: s.phase, Remaining: remaining})
}

func (s *Session) onTimeout() {
	s.mu.Lock()
	s.emitLocked(Event{Kind: EventTimeout, Phase: s.phase})
	attemptID := s.att.ID
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("attempt %s reached its deadline", attemptID))
	_ = s.Submit(s.ctx)
}

// State returns a snapshot of the observable state.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:           s.phase,
		Assessment:      s.summary,
		AttemptID:       s.att.ID,
		StartedAt:       s.att.StartedAt,
		AwaitingConfirm: s.awaitingConfirm,
		LastError:       s.lastErr,
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	if s.clock != nil {
		snap.Timed = s.clock.Timed()
		snap.Deadline, _ = s.clock.Deadline()
		snap.Remaining = s.clock.Remaining()
	}
	if s.nav != nil && len(s.questions) > 0 {
		snap.Index = s.nav.Index()
		snap.Count = s.nav.Len()
		q := s.questions[snap.Index]
		snap.Question = &q
		snap.Draft, snap.HasDraft = s.store.Get(q.ID)
		snap.DraftPersisted = s.store.IsPersisted(q.ID)
	}
	return snap
}

// Answers returns a copy of every answer held locally.
func (s *Session) Answers() map[string]attempt.Answer {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	return store.Entries()
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.clock != nil {
		s.clock.Stop()
	}
	s.stopRetryLocked()
	close(s.events)
}

func (s *Session) acquire(phase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.busy:
		return ErrBusy
	case s.phase != phase:
		return ErrInvalidPhase
	}
	s.busy = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	s.emitLocked(Event{Kind: EventPhase, Phase: p})
}

// fail moves to ERROR, dropping any partially loaded state.
func (s *Session) fail(op, attemptID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Error(fmt.Sprintf("%s failed for assessment %s", op, s.assessmentID), err)
	s.att = attempt.Attempt{}
	s.questions = nil
	s.store = NewAnswerStore()
	s.nav = nil
	s.clock = nil
	s.failedOp, s.failedAttemptID = op, attemptID
	s.phase = PhaseError
	s.emitLocked(Event{Kind: EventPhase, Phase: s.phase})
	s.noticeLocked(Notice{Level: LevelError, Op: op, Err: err, Message: "could not load the assessment"})
}

func (s *Session) notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noticeLocked(n)
}

func (s *Session) noticeLocked(n Notice) {
	if n.Level == LevelError {
		s.lastErr = &n
	}
	if n.Level == LevelWarn {
		s.logger.Warn(n.String())
	}
	s.emitLocked(Event{Kind: EventNotice, Phase: s.phase, Notice: &n})
}

func (s *Session) emitLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
