package player

import (
	"fmt"
	"time"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

type Phase string

const (
	PhaseNoAttempt  Phase = "NO_ATTEMPT"
	PhaseResuming   Phase = "RESUMING"
	PhaseActive     Phase = "ACTIVE"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseFinished   Phase = "FINISHED"
	PhaseError      Phase = "ERROR"
)

type EventKind int

const (
	EventPhase EventKind = iota + 1
	EventTick
	EventTimeout
	EventNotice
)

type NoticeLevel int

const (
	LevelInfo NoticeLevel = iota
	LevelWarn
	LevelError
)

func (l NoticeLevel) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// Operations reported by notices.
const (
	OpCatalog = "catalog"
	OpResume  = "resume"
	OpStart   = "start"
	OpLoad    = "load"
	OpSave    = "save"
	OpSubmit  = "submit"
)

// Notice is a non-blocking notification for the learner.
type Notice struct {
	Level      NoticeLevel
	Op         string
	QuestionID string
	Err        error
	Message    string
}

func (n Notice) String() string {
	if n.Err == nil {
		return n.Message
	}
	return fmt.Sprintf("%s: %v", n.Message, n.Err)
}

type Event struct {
	Kind      EventKind
	Phase     Phase
	Remaining time.Duration
	Notice    *Notice
}

// Snapshot is the state observable by the UI layer.
type Snapshot struct {
	Phase           Phase
	Assessment      assessment.Summary
	AttemptID       string
	StartedAt       time.Time
	Timed           bool
	Deadline        time.Time
	Remaining       time.Duration
	Index           int
	Count           int
	Question        *assessment.Question
	Draft           attempt.Answer
	HasDraft        bool
	DraftPersisted  bool
	AwaitingConfirm bool
	Result          *attempt.Result
	LastError       *Notice
}

// CanEdit reports whether learner input is currently accepted.
func (s Snapshot) CanEdit() bool { return s.Phase == PhaseActive }
