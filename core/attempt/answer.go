package attempt

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
)

// Answer is a tagged variant: Kind says which of Text or SelectedOptionIDs is meaningful.
type Answer struct {
	Kind              assessment.AnswerKind `json:"kind"`
	Text              string                `json:"answer_text,omitempty"`
	SelectedOptionIDs []string              `json:"selected_option_ids,omitempty"`
}

func TextAnswer(text string) Answer {
	return Answer{Kind: assessment.KindText, Text: text}
}

func ChoiceAnswer(optionIDs ...string) Answer {
	ids := make([]string, len(optionIDs))
	copy(ids, optionIDs)
	return Answer{Kind: assessment.KindChoice, SelectedOptionIDs: ids}
}

// Clone returns a deep copy, so stored answers never share their option slice with callers.
func (a Answer) Clone() Answer {
	if a.SelectedOptionIDs != nil {
		ids := make([]string, len(a.SelectedOptionIDs))
		copy(ids, a.SelectedOptionIDs)
		a.SelectedOptionIDs = ids
	}
	return a
}

func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind || a.Text != b.Text || len(a.SelectedOptionIDs) != len(b.SelectedOptionIDs) {
		return false
	}
	for i := range a.SelectedOptionIDs {
		if a.SelectedOptionIDs[i] != b.SelectedOptionIDs[i] {
			return false
		}
	}
	return true
}

func (a Answer) IsEmpty() bool {
	if a.Kind == assessment.KindChoice {
		return len(a.SelectedOptionIDs) == 0
	}
	return a.Text == ""
}

// UnmarshalJSON rejects payloads populating the field the tag does not select.
func (a *Answer) UnmarshalJSON(data []byte) error {
	type plain Answer
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Kind {
	case assessment.KindText:
		if len(p.SelectedOptionIDs) > 0 {
			return errors.Wrap(ErrAnswerMismatch, "text answer with selected options")
		}
	case assessment.KindChoice:
		if p.Text != "" {
			return errors.Wrap(ErrAnswerMismatch, "choice answer with text")
		}
	default:
		return errors.Wrapf(ErrAnswerMismatch, "unknown answer kind %q", p.Kind)
	}
	*a = Answer(p)
	return nil
}

// CheckAnswer verifies the answer has the shape the question's declared type requires.
func CheckAnswer(q assessment.Question, a Answer) error {
	if a.Kind != q.AnswerKind() {
		return errors.Wrapf(ErrAnswerMismatch, "question %s expects a %s answer, got %s", q.ID, q.AnswerKind(), a.Kind)
	}
	if a.Kind == assessment.KindText {
		return nil
	}

	if q.Type == assessment.TypeTrueFalse && len(a.SelectedOptionIDs) > 1 {
		return errors.Wrapf(ErrAnswerMismatch, "question %s accepts a single option", q.ID)
	}
	seen := make(map[string]struct{}, len(a.SelectedOptionIDs))
	for _, id := range a.SelectedOptionIDs {
		if !q.HasOption(id) {
			return errors.Wrapf(ErrAnswerMismatch, "question %s has no option %q", q.ID, id)
		}
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrAnswerMismatch, "option %q selected twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
