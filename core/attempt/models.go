package attempt

import (
	"time"

	"github.com/trezcool/assessly/core/assessment"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
)

func (s Status) Finished() bool { return s == StatusCompleted || s == StatusExpired }

// SubmitGrace absorbs network latency on auto-submission: writes are accepted
// until deadline + SubmitGrace, and a later submission marks the attempt EXPIRED.
const SubmitGrace = 30 * time.Second

// SavedAnswer is an Answer acknowledged by the server.
type SavedAnswer struct {
	QuestionID string    `json:"question_id"`
	Answer     Answer    `json:"answer"`
	SavedAt    time.Time `json:"saved_at"` // UTC
}

// Attempt is one learner's run through an assessment. startedAt is authoritative.
type Attempt struct {
	ID           string        `json:"id"`
	AssessmentID string        `json:"assessment_id"`
	LearnerID    string        `json:"learner_id"`
	Status       Status        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`             // UTC
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"` // UTC
	Answers      []SavedAnswer `json:"answers"`
}

// Deadline is startedAt + time limit. It is never stored, always derived.
func Deadline(startedAt time.Time, timeLimitMinutes *int) (time.Time, bool) {
	if timeLimitMinutes == nil {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*timeLimitMinutes) * time.Minute), true
}

// Overdue reports whether a timed attempt is past its deadline plus the grace period.
func (a Attempt) Overdue(timeLimitMinutes *int, now time.Time) bool {
	deadline, timed := Deadline(a.StartedAt, timeLimitMinutes)
	return timed && now.After(deadline.Add(SubmitGrace))
}

// Detail is everything the engine needs to resume an attempt.
type Detail struct {
	Attempt    Attempt               `json:"attempt"`
	Assessment assessment.Summary    `json:"assessment"`
	Questions  []assessment.Question `json:"questions"`
}

// Result is returned once an attempt is submitted.
type Result struct {
	AttemptID     string    `json:"attempt_id"`
	Status        Status    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Answered      int       `json:"answered"`
	QuestionCount int       `json:"question_count"`
}

// Filter selects attempts. Zero fields are ignored.
type Filter struct {
	AssessmentID string
	LearnerID    string
	Status       Status
}
