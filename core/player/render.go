package player

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

// Affordance is the input control a question type is rendered with.
type Affordance string

const (
	AffordanceCheckboxes Affordance = "checkboxes" // mcq: any number of options
	AffordanceToggle     Affordance = "toggle"     // true_false: exactly one of two options
	AffordanceTextLine   Affordance = "text"
	AffordanceCodeEditor Affordance = "code"
)

func AffordanceFor(q assessment.Question) Affordance {
	switch q.Type {
	case assessment.TypeMCQ:
		return AffordanceCheckboxes
	case assessment.TypeTrueFalse:
		return AffordanceToggle
	case assessment.TypeCode:
		return AffordanceCodeEditor
	}
	return AffordanceTextLine
}

// ParseInput turns raw learner input into an answer of the shape q requires.
// Options are referenced by ID, label or 1-based position, separated by commas or spaces.
func ParseInput(q assessment.Question, raw string) (attempt.Answer, error) {
	switch AffordanceFor(q) {
	case AffordanceTextLine:
		return attempt.TextAnswer(strings.TrimSpace(raw)), nil
	case AffordanceCodeEditor:
		return attempt.TextAnswer(strings.TrimRight(raw, "\n")), nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	ids := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		id, ok := resolveOption(q, f)
		if !ok {
			return attempt.Answer{}, errors.Errorf("%q is not an option", f)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if q.Type == assessment.TypeTrueFalse && len(ids) > 1 {
		return attempt.Answer{}, errors.New("pick a single option")
	}

	ans := attempt.ChoiceAnswer(ids...)
	if err := attempt.CheckAnswer(q, ans); err != nil {
		return attempt.Answer{}, err
	}
	return ans, nil
}

func resolveOption(q assessment.Question, token string) (string, bool) {
	for _, opt := range q.Options {
		if opt.ID == token {
			return opt.ID, true
		}
	}
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Label, token) {
			return opt.ID, true
		}
	}
	if n, err := strconv.Atoi(token); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1].ID, true
	}
	return "", false
}

// FormatAnswer renders an answer for display. Selected options are shown by label.
func FormatAnswer(q assessment.Question, ans attempt.Answer) string {
	if ans.Kind == assessment.KindText {
		return ans.Text
	}
	labels := make([]string, 0, len(ans.SelectedOptionIDs))
	for _, id := range ans.SelectedOptionIDs {
		label := id
		for _, opt := range q.Options {
			if opt.ID == id {
				label = opt.Label
				break
			}
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, ", ")
}
