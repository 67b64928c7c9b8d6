package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/interview"
)

// terminal prints each new question once and plays cues as bells.
type terminal struct {
	w     io.Writer
	total int

	mu    sync.Mutex
	cycle uint64
}

func newTerminal(w io.Writer, total int) *terminal {
	return &terminal{w: w, total: total}
}

func (t *terminal) render(st interview.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !st.HasQuestion() || st.Cycle == t.cycle {
		return
	}
	t.cycle = st.Cycle

	if n := len(st.History); n > 0 {
		last := st.History[n-1]
		fmt.Fprintf(t.w, "  -> %s (%ds)\n", last.Feedback, last.TimeTaken)
	}

	fmt.Fprintf(t.w, "\nQuestion %d/%d [%ds]: %s\n> ", len(st.History)+1, t.total, st.RemainingSeconds, st.Question)
}

func (t *terminal) PlayCue(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch interview.Cue(name) {
	case interview.CueWarning:
		fmt.Fprint(t.w, "\a[10 seconds left] ")
	case interview.CueTimeUp:
		fmt.Fprint(t.w, "\a[time is up]\n")
	}
	return nil
}

func (t *terminal) summary(st interview.State, sum domain.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "\n\nInterview complete: %d/%d answered, average %.1fs per question.\n\n",
		sum.AnsweredCount, sum.TotalCount, sum.AverageTimeTaken)

	tw := tabwriter.NewWriter(t.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tQUESTION\tANSWER\tTIME\tFEEDBACK")
	for i, h := range st.History {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%ds\t%s\n", i+1, h.Question, h.Answer, h.TimeTaken, h.Feedback)
	}
	_ = tw.Flush()
}
