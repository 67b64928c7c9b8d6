// Package interview implements the candidate interview session: a pure state
// machine over an owned State value, and a Controller that applies the
// machine's effects (countdown, speech, cues) and serializes every event.
package interview

import (
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/question"
)

const (
	DefaultQuestionTime = 60 * time.Second
	DefaultWarningTime  = 10 * time.Second

	answerSkipped    = "(skipped)"
	answerNoResponse = "(no response)"

	feedbackSubmitted = "Feedback will appear here (connect AI later)."
	feedbackSkipped   = "Skipped"
	feedbackTimedOut  = "Timed out"
)

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
)

// State is one session's complete state. It is a value: transitions return a
// new State and never modify the history of the one they were given.
type State struct {
	Phase            Phase
	Question         string
	Draft            string
	RemainingSeconds int
	History          []domain.HistoryEntry
	SpeechEnabled    bool
	Listening        bool

	// Cycle identifies the active question period. Timer and transcript
	// callbacks carry the cycle they were started for and are dropped when
	// it no longer matches.
	Cycle             uint64
	QuestionStartTime time.Time
	Expiring          bool
}

// NewState returns a session that has not started yet, with speech output on.
func NewState() State {
	return State{
		Phase:         PhaseNotStarted,
		SpeechEnabled: true,
	}
}

func (s State) HasQuestion() bool {
	return s.Phase == PhaseInProgress && s.Question != ""
}

func (s State) asked(q string) bool {
	return slices.ContainsFunc(s.History, func(h domain.HistoryEntry) bool {
		return h.Question == q
	})
}

// Picker returns a uniformly distributed index in [0, n).
type Picker func(n int) int

type MachineConfig struct {
	Bank         question.Bank
	QuestionTime time.Duration
	WarningTime  time.Duration
	Pick         Picker
}

// Machine holds the immutable rules of a session. It is safe for concurrent
// use since it keeps no state of its own.
type Machine struct {
	bank         question.Bank
	questionTime int
	warningAt    int
	pick         Picker
}

func NewMachine(c MachineConfig) *Machine {
	m := &Machine{
		bank:         c.Bank,
		questionTime: int(DefaultQuestionTime / time.Second),
		warningAt:    int(DefaultWarningTime / time.Second),
		pick:         rand.IntN,
	}

	if c.QuestionTime > 0 {
		m.questionTime = max(1, int(c.QuestionTime/time.Second))
	}
	if c.WarningTime > 0 {
		m.warningAt = int(c.WarningTime / time.Second)
	}
	if c.Pick != nil {
		m.pick = c.Pick
	}

	return m
}

// Total is the number of questions in a full session.
func (m *Machine) Total() int {
	return m.bank.Len()
}

// QuestionTime is the number of seconds given to each question.
func (m *Machine) QuestionTime() int {
	return m.questionTime
}

var errNotInProgress = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("interview is not in progress"))

// Start begins a new session from NotStarted, or restarts a Completed one.
func (m *Machine) Start(st State, now time.Time) (State, []Effect, error) {
	if st.Phase == PhaseInProgress {
		return st, nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("interview already in progress"))
	}

	next := State{
		Phase:         PhaseInProgress,
		SpeechEnabled: st.SpeechEnabled,
		Cycle:         st.Cycle,
	}

	effects := []Effect{{Kind: EffectStopListening}}
	next, more := m.selectNext(next, now)
	return next, append(effects, more...), nil
}

// selectNext activates a random question that is not in the history yet, or
// completes the session when none is left.
func (m *Machine) selectNext(st State, now time.Time) (State, []Effect) {
	remaining := m.bank.Remaining(st.asked)
	if len(remaining) == 0 {
		st.Phase = PhaseCompleted
		st.Question = ""
		st.Draft = ""
		st.RemainingSeconds = 0
		st.Expiring = false
		st.Listening = false
		return st, []Effect{
			{Kind: EffectStopTimer},
			{Kind: EffectComplete},
		}
	}

	i := m.pick(len(remaining))
	if i < 0 || i >= len(remaining) {
		i = 0
	}

	st.Cycle++
	st.Question = remaining[i]
	st.Draft = ""
	st.RemainingSeconds = m.questionTime
	st.QuestionStartTime = now
	st.Expiring = false

	effects := []Effect{{Kind: EffectStartTimer, Cycle: st.Cycle}}
	if st.SpeechEnabled {
		effects = append(effects, Effect{Kind: EffectSpeak, Cycle: st.Cycle, Text: st.Question})
	}

	return st, effects
}

// UpdateDraft replaces the answer draft of the active question.
func (m *Machine) UpdateDraft(st State, text string) (State, error) {
	if !st.HasQuestion() {
		return st, errNotInProgress
	}

	st.Draft = text
	return st, nil
}

// Submit records the draft as the answer. A blank draft is ignored: nothing
// changes and no effect is returned.
func (m *Machine) Submit(st State, now time.Time) (State, []Effect, error) {
	if !st.HasQuestion() {
		return st, nil, errNotInProgress
	}

	if strings.TrimSpace(st.Draft) == "" {
		return st, nil, nil
	}

	next, effects := m.resolve(st, domain.OutcomeSubmitted, st.Draft, now)
	return next, effects, nil
}

// Skip records the active question as skipped.
func (m *Machine) Skip(st State, now time.Time) (State, []Effect, error) {
	if !st.HasQuestion() {
		return st, nil, errNotInProgress
	}

	next, effects := m.resolve(st, domain.OutcomeSkipped, answerSkipped, now)
	return next, effects, nil
}

// Tick is one second of the countdown for cycle. When the countdown reaches
// zero it asks for the time-up cue and for Expire to be called with now as
// the resolution time. Ticks for another cycle, or after expiry was
// requested, are ignored.
func (m *Machine) Tick(st State, cycle uint64, now time.Time) (State, []Effect) {
	if !st.HasQuestion() || st.Cycle != cycle || st.Expiring {
		return st, nil
	}

	st.RemainingSeconds = max(0, st.RemainingSeconds-1)

	var effects []Effect
	if m.warningAt > 0 && st.RemainingSeconds == m.warningAt {
		effects = append(effects, Effect{Kind: EffectCue, Cycle: cycle, Cue: CueWarning})
	}

	if st.RemainingSeconds == 0 {
		st.Expiring = true
		effects = append(effects,
			Effect{Kind: EffectStopTimer, Cycle: cycle},
			Effect{Kind: EffectCue, Cycle: cycle, Cue: CueTimeUp},
			Effect{Kind: EffectExpire, Cycle: cycle, At: now},
		)
	}

	return st, effects
}

// Expire records the active question as timed out, measuring time taken up
// to at rather than to the moment Expire runs.
func (m *Machine) Expire(st State, cycle uint64, at time.Time) (State, []Effect) {
	if !st.HasQuestion() || st.Cycle != cycle {
		return st, nil
	}

	return m.resolve(st, domain.OutcomeTimedOut, answerNoResponse, at)
}

// resolve ends the active question with the given outcome and moves on.
func (m *Machine) resolve(st State, outcome domain.Outcome, answer string, at time.Time) (State, []Effect) {
	effects := []Effect{
		{Kind: EffectStopListening, Cycle: st.Cycle},
		{Kind: EffectStopTimer, Cycle: st.Cycle},
	}
	st.Listening = false

	st.History = append(slices.Clip(st.History), domain.HistoryEntry{
		Question:  st.Question,
		Answer:    answer,
		TimeTaken: elapsedSeconds(st.QuestionStartTime, at),
		Outcome:   outcome,
		Feedback:  feedbackFor(outcome),
	})

	next, more := m.selectNext(st, at)
	return next, append(effects, more...)
}

// ToggleSpeech flips speech output. The active question is not replayed.
func (m *Machine) ToggleSpeech(st State) State {
	st.SpeechEnabled = !st.SpeechEnabled
	return st
}

func (m *Machine) StartListening(st State) (State, error) {
	if !st.HasQuestion() {
		return st, errNotInProgress
	}

	st.Listening = true
	return st, nil
}

func (m *Machine) StopListening(st State) State {
	st.Listening = false
	return st
}

// Transcript replaces the draft with a cumulative transcript of cycle.
func (m *Machine) Transcript(st State, cycle uint64, text string) State {
	if !st.HasQuestion() || !st.Listening || st.Cycle != cycle {
		return st
	}

	st.Draft = text
	return st
}

// Summarize reports a completed session.
func (m *Machine) Summarize(st State) (domain.Summary, error) {
	if st.Phase != PhaseCompleted {
		return domain.Summary{}, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("interview is not completed"))
	}

	return domain.Summary{
		AnsweredCount:    len(st.History),
		TotalCount:       m.bank.Len(),
		AverageTimeTaken: AverageTimeTaken(st.History),
	}, nil
}

// AverageTimeTaken is the mean time taken rounded to one decimal place, or 0
// for an empty history.
func AverageTimeTaken(history []domain.HistoryEntry) float64 {
	if len(history) == 0 {
		return 0
	}

	sum := decimal.Zero
	for _, h := range history {
		sum = sum.Add(decimal.NewFromInt(int64(h.TimeTaken)))
	}

	return sum.Div(decimal.NewFromInt(int64(len(history)))).Round(1).InexactFloat64()
}

// elapsedSeconds floors to whole seconds with a minimum of one.
func elapsedSeconds(start, end time.Time) int {
	return max(1, int(end.Sub(start)/time.Second))
}

func feedbackFor(o domain.Outcome) string {
	switch o {
	case domain.OutcomeSkipped:
		return feedbackSkipped
	case domain.OutcomeTimedOut:
		return feedbackTimedOut
	default:
		return feedbackSubmitted
	}
}
