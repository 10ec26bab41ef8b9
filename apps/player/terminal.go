package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/player"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()

	// remaining times at which a countdown warning is printed
	countdownMarks = []time.Duration{5 * time.Minute, time.Minute, 10 * time.Second}
)

// terminal renders a player.Session as text and turns typed lines into session operations.
type terminal struct {
	session *player.Session
	out     io.Writer
	lines   <-chan string

	coding bool // collecting a multi-line code answer
	code   []string
	shown  player.Phase
	marks  map[time.Duration]bool
}

func newTerminal(session *player.Session, in io.Reader, out io.Writer) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &terminal{
		session: session,
		out:     out,
		lines:   lines,
		marks:   make(map[time.Duration]bool),
	}
}

// run returns when the learner quits, the input ends or ctx is done.
func (t *terminal) run(ctx context.Context) error {
	_ = t.session.Init(ctx)
	t.render()

	events := t.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.handleEvent(ev)
		case line, ok := <-t.lines:
			if !ok {
				return nil
			}
			if quit := t.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (t *terminal) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) handleEvent(ev player.Event) {
	switch ev.Kind {
	case player.EventPhase:
		if t.session.State().Phase != t.shown {
			t.render()
		}
	case player.EventTick:
		for _, mark := range countdownMarks {
			if ev.Remaining <= mark && ev.Remaining > 0 && !t.marks[mark] {
				t.marks[mark] = true
				t.printf("%s\n", color.YellowString("%s left", formatDuration(ev.Remaining)))
				break
			}
		}
	case player.EventTimeout:
		t.printf("%s\n", color.New(color.FgRed, color.Bold).Sprint("Time is up: submitting your answers..."))
	case player.EventNotice:
		t.notice(*ev.Notice)
	}
}

func (t *terminal) notice(n player.Notice) {
	switch n.Level {
	case player.LevelError:
		t.printf("%s\n", color.RedString("! %s", n))
	case player.LevelWarn:
		t.printf("%s\n", color.YellowString("! %s", n))
	default:
		t.printf("%s\n", color.CyanString("%s", n))
	}
}

func (t *terminal) handleLine(ctx context.Context, line string) (quit bool) {
	if t.coding {
		if strings.TrimSpace(line) == "." {
			t.coding = false
			code := strings.Join(t.code, "\n")
			t.code = nil
			t.answer(code)
		} else {
			t.code = append(t.code, line)
		}
		return false
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg := line, ""
	if i := strings.IndexAny(line, " \t"); i > 0 {
		cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
	}

	if t.session.State().AwaitingConfirm {
		switch cmd {
		case "y", "yes":
			t.check(t.session.ConfirmSubmit(ctx))
			t.render()
			return false
		case "n", "no":
			t.session.CancelSubmit()
			t.render()
			return false
		}
	}

	switch cmd {
	case "start":
		t.check(t.session.Start(ctx))
	case "retry":
		t.check(t.session.Retry(ctx))
	case "n", "next":
		t.check(t.session.Next(ctx))
	case "p", "prev":
		t.check(t.session.Prev(ctx))
	case "a", "answer":
		st := t.session.State()
		if st.Question != nil && arg == "" && player.AffordanceFor(*st.Question) == player.AffordanceCodeEditor && st.CanEdit() {
			t.coding = true
			t.printf("%s\n", faint("Type your code, then a line with a single '.' to finish."))
			return false
		}
		t.answer(arg)
		return false
	case "s", "submit":
		t.check(t.session.RequestSubmit(ctx))
	case "q", "quit":
		return true
	case "h", "help", "?":
		t.help()
		return false
	default:
		t.printf("%s\n", color.RedString("unknown command %q (h for help)", cmd))
		return false
	}
	t.render()
	return false
}

func (t *terminal) answer(raw string) {
	st := t.session.State()
	if st.Question == nil || !st.CanEdit() {
		t.check(player.ErrReadOnly)
		return
	}
	ans, err := player.ParseInput(*st.Question, raw)
	if err != nil {
		t.check(err)
		return
	}
	if err = t.session.SetAnswer(ans); err != nil {
		t.check(err)
		return
	}
	t.printf("%s %s\n", color.GreenString("answer set:"), player.FormatAnswer(*st.Question, ans))
}

func (t *terminal) check(err error) {
	switch {
	case err == nil:
	case errors.Is(err, player.ErrReadOnly), errors.Is(err, player.ErrInvalidPhase):
		t.printf("%s\n", color.YellowString("not now: the attempt is %s", t.session.State().Phase))
	case errors.Is(err, player.ErrBusy):
		t.printf("%s\n", color.YellowString("busy, try again"))
	case errors.Is(err, player.ErrNotConfirming):
		t.printf("%s\n", color.YellowString("type s to submit first"))
	default:
		t.printf("%s\n", color.RedString("%v", err))
	}
}

func (t *terminal) help() {
	t.printf("%s\n", bold("Commands"))
	t.printf("  start        start a new attempt\n")
	t.printf("  retry        retry after an error\n")
	t.printf("  n / p        next / previous question (saves your answer)\n")
	t.printf("  a <input>    answer: option numbers, ids or labels for choices; text otherwise\n")
	t.printf("  a            on a code question, enter a multi-line answer ended by '.'\n")
	t.printf("  s            submit (then y to confirm, n to go back)\n")
	t.printf("  q            quit (unsaved answers are lost)\n")
}

func (t *terminal) render() {
	st := t.session.State()
	t.shown = st.Phase

	t.printf("\n%s  %s\n", bold(st.Assessment.Title), faint("["+string(st.Phase)+"]"))
	switch st.Phase {
	case player.PhaseNoAttempt:
		limit := "untimed"
		if st.Assessment.TimeLimitMinutes != nil {
			limit = fmt.Sprintf("%d minutes", *st.Assessment.TimeLimitMinutes)
		}
		t.printf("%d questions, %s.\n", st.Assessment.QuestionCount, limit)
		t.printf("%s\n", faint("Type start to begin."))
	case player.PhaseResuming:
		t.printf("Resuming your attempt...\n")
	case player.PhaseActive:
		t.renderQuestion(st)
	case player.PhaseSubmitting:
		t.printf("Submitting...\n")
	case player.PhaseFinished:
		if res := st.Result; res != nil {
			t.printf("%s %s, %d/%d answered, submitted %s\n",
				color.GreenString("Done:"), res.Status, res.Answered, res.QuestionCount,
				res.SubmittedAt.Local().Format(time.Kitchen))
		}
	case player.PhaseError:
		if st.LastError != nil {
			t.printf("%s\n", color.RedString("%s", st.LastError))
		}
		t.printf("%s\n", faint("Type retry to try again."))
	}
}

func (t *terminal) renderQuestion(st player.Snapshot) {
	q := st.Question
	if q == nil {
		return
	}
	header := fmt.Sprintf("Question %d/%d", st.Index+1, st.Count)
	if st.Timed {
		header += "  " + color.YellowString("%s left", formatDuration(st.Remaining))
	}
	t.printf("%s\n%s\n", bold(header), q.Prompt)

	switch player.AffordanceFor(*q) {
	case player.AffordanceCheckboxes:
		for i, opt := range q.Options {
			mark := "[ ]"
			if st.HasDraft && selected(st, opt.ID) {
				mark = "[x]"
			}
			t.printf("  %s %d. %s\n", mark, i+1, opt.Label)
		}
	case player.AffordanceToggle:
		for i, opt := range q.Options {
			mark := "( )"
			if st.HasDraft && selected(st, opt.ID) {
				mark = "(*)"
			}
			t.printf("  %s %d. %s\n", mark, i+1, opt.Label)
		}
	case player.AffordanceTextLine:
		if st.HasDraft {
			t.printf("  > %s\n", st.Draft.Text)
		}
	case player.AffordanceCodeEditor:
		if st.HasDraft {
			for _, l := range strings.Split(st.Draft.Text, "\n") {
				t.printf("  | %s\n", l)
			}
		}
	}

	switch {
	case !st.HasDraft:
		t.printf("%s\n", faint(answerHint(*q)))
	case st.DraftPersisted:
		t.printf("%s\n", faint("saved"))
	default:
		t.printf("%s\n", faint("not saved yet: it is saved when you move on or submit"))
	}
	if st.AwaitingConfirm {
		t.printf("%s\n", color.New(color.Bold).Sprint("Submit your answers? (y/n)"))
	}
}

func selected(st player.Snapshot, optionID string) bool {
	for _, id := range st.Draft.SelectedOptionIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

func answerHint(q assessment.Question) string {
	switch player.AffordanceFor(q) {
	case player.AffordanceCheckboxes:
		return "a <numbers>: pick any options, e.g. a 1,3"
	case player.AffordanceToggle:
		return "a <number>: pick one option"
	case player.AffordanceCodeEditor:
		return "a: type your code"
	}
	return "a <text>: type your answer"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
