package assessment

import (
	"time"

	"github.com/trezcool/assessly/core"
)

// QuestionType is the declared type of a Question.
type QuestionType string

const (
	TypeMCQ         QuestionType = "mcq"
	TypeTrueFalse   QuestionType = "true_false"
	TypeShortAnswer QuestionType = "short_answer"
	TypeCode        QuestionType = "code"
)

var QuestionTypes = []QuestionType{TypeMCQ, TypeTrueFalse, TypeShortAnswer, TypeCode}

func (t QuestionType) Valid() bool {
	switch t {
	case TypeMCQ, TypeTrueFalse, TypeShortAnswer, TypeCode:
		return true
	}
	return false
}

// AnswerKind is the shape of answer a QuestionType accepts.
type AnswerKind string

const (
	KindChoice AnswerKind = "choice"
	KindText   AnswerKind = "text"
)

func (t QuestionType) AnswerKind() AnswerKind {
	if t == TypeMCQ || t == TypeTrueFalse {
		return KindChoice
	}
	return KindText
}

type Option struct {
	ID    string `json:"id" yaml:"id" validate:"required,alphanum_"`
	Label string `json:"label" yaml:"label" validate:"required"`
}

type Question struct {
	ID      string       `json:"id" yaml:"id" validate:"required,alphanum_"`
	Type    QuestionType `json:"type" yaml:"type" validate:"required,qtype"`
	Prompt  string       `json:"prompt" yaml:"prompt" validate:"required"`
	Points  int          `json:"points" yaml:"points" validate:"min=0"`
	Options []Option     `json:"options,omitempty" yaml:"options" validate:"dive"`
}

func (q Question) AnswerKind() AnswerKind { return q.Type.AnswerKind() }

func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Assessment is immutable for the duration of an attempt.
type Assessment struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	TimeLimitMinutes   *int       `json:"time_limit_minutes"` // nil: untimed
	PassingScore       int        `json:"passing_score"`      // percent
	ShowScore          bool       `json:"show_score"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	Questions          []Question `json:"questions"`
	CreatedAt          time.Time  `json:"created_at"` // UTC
}

func (a Assessment) Timed() bool { return a.TimeLimitMinutes != nil }

// TimeLimit returns the allowed duration and whether the assessment is timed.
func (a Assessment) TimeLimit() (time.Duration, bool) {
	if a.TimeLimitMinutes == nil {
		return 0, false
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute, true
}

// Question looks up a question by ID.
func (a Assessment) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (a Assessment) Summary() Summary {
	return Summary{
		ID:               a.ID,
		Title:            a.Title,
		Description:      a.Description,
		TimeLimitMinutes: a.TimeLimitMinutes,
		QuestionCount:    len(a.Questions),
		PassingScore:     a.PassingScore,
		ShowScore:        a.ShowScore,
	}
}

// Summary is the catalog metadata shown before an attempt is started.
type Summary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	TimeLimitMinutes *int   `json:"time_limit_minutes"`
	QuestionCount    int    `json:"question_count"`
	PassingScore     int    `json:"passing_score"`
	ShowScore        bool   `json:"show_score"`
}

// NewAssessment contains information needed to create a new Assessment.
type NewAssessment struct {
	ID                 string     `json:"id" yaml:"id" validate:"required,alphanum_"`
	Title              string     `json:"title" yaml:"title" validate:"required"`
	Description        string     `json:"description" yaml:"description"`
	TimeLimitMinutes   *int       `json:"time_limit_minutes" yaml:"time_limit_minutes" validate:"omitempty,min=1"`
	PassingScore       int        `json:"passing_score" yaml:"passing_score" validate:"min=0,max=100"`
	ShowScore          bool       `json:"show_score" yaml:"show_score"`
	ShowCorrectAnswers bool       `json:"show_correct_answers" yaml:"show_correct_answers"`
	Questions          []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

func (na *NewAssessment) Clean() {
	na.ID = core.CleanString(na.ID, true /* lower */)
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	for i := range na.Questions {
		q := &na.Questions[i]
		q.ID = core.CleanString(q.ID, true /* lower */)
		q.Type = QuestionType(core.CleanString(string(q.Type), true /* lower */))
		q.Prompt = core.CleanString(q.Prompt)
		for j := range q.Options {
			q.Options[j].ID = core.CleanString(q.Options[j].ID, true /* lower */)
			q.Options[j].Label = core.CleanString(q.Options[j].Label)
		}
	}
}
