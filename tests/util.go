package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
)

func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	return validate
}

func Learner(id string) core.Learner {
	return core.Learner{ID: id, Name: "Learner " + id, Email: id + "@example.com"}
}

func Minutes(n int) *int { return &n }

// CreateAssessment stores an assessment with one question of each type.
func CreateAssessment(t *testing.T, repo assessment.Repository, id string, timeLimitMinutes *int) assessment.Assessment {
	t.Helper()
	a, err := repo.SaveAssessment(context.Background(), assessment.Assessment{
		ID:               id,
		Title:            "Assessment " + id,
		TimeLimitMinutes: timeLimitMinutes,
		PassingScore:     50,
		Questions: []assessment.Question{
			{
				ID:     "capital",
				Type:   assessment.TypeMCQ,
				Prompt: "Capital of the DRC?",
				Points: 2,
				Options: []assessment.Option{
					{ID: "kinshasa", Label: "Kinshasa"},
					{ID: "lubumbashi", Label: "Lubumbashi"},
					{ID: "goma", Label: "Goma"},
				},
			},
			{
				ID:      "river",
				Type:    assessment.TypeTrueFalse,
				Prompt:  "The Congo river crosses the equator twice.",
				Points:  1,
				Options: []assessment.Option{{ID: "true", Label: "True"}, {ID: "false", Label: "False"}},
			},
			{ID: "motto", Type: assessment.TypeShortAnswer, Prompt: "National motto?", Points: 1},
			{ID: "hello", Type: assessment.TypeCode, Prompt: "Print hello in Go.", Points: 3},
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAssessment() failed: %v", err)
	}
	return a
}

// EmailRecorder is a core.EmailService keeping the messages it was given.
type EmailRecorder struct {
	mu       sync.Mutex
	Messages []*core.EmailMessage
}

var _ core.EmailService = (*EmailRecorder)(nil)

func (r *EmailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, messages...)
}

func (r *EmailRecorder) Sent() []*core.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.EmailMessage(nil), r.Messages...)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}
