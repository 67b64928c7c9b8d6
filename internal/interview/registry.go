package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/event"
	"github.com/victornm/mockinterview/internal/speech"
	"github.com/victornm/mockinterview/internal/telemetry"
)

const DefaultIdleTimeout = 30 * time.Minute

var errNoSession = errors.New(errors.CodeNotFound, errors.WithMessage("no interview session, start one first"))

// View is a session as rendered to the candidate's client.
type View struct {
	SessionID        string                `json:"session_id"`
	Phase            Phase                 `json:"phase"`
	Question         string                `json:"question,omitempty"`
	AnswerDraft      string                `json:"answer_draft"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	History          []domain.HistoryEntry `json:"history"`
	TotalCount       int                   `json:"total_count"`
	SpeechEnabled    bool                  `json:"speech_enabled"`
	Listening        bool                  `json:"listening"`
}

func NewView(sessionID string, total int, st State) View {
	history := st.History
	if history == nil {
		history = []domain.HistoryEntry{}
	}

	return View{
		SessionID:        sessionID,
		Phase:            st.Phase,
		Question:         st.Question,
		AnswerDraft:      st.Draft,
		RemainingSeconds: st.RemainingSeconds,
		History:          history,
		TotalCount:       total,
		SpeechEnabled:    st.SpeechEnabled,
		Listening:        st.Listening,
	}
}

// Hosted is one candidate's session held by the server, together with the
// browser bridge its speech goes through.
type Hosted struct {
	Owner      domain.Identity
	Controller *Controller
	Bridge     *speech.Bridge

	mu       sync.Mutex
	id       string
	lastSeen time.Time
	resolved int
}

// ID identifies the current run. Every Start issues a new one.
func (h *Hosted) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func (h *Hosted) View() View {
	return NewView(h.ID(), h.Controller.Total(), h.Controller.State())
}

func (h *Hosted) setID(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.id
	h.id = id
	return prev
}

func (h *Hosted) touch(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeen = now
}

func (h *Hosted) idleSince(now time.Time, d time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastSeen) >= d
}

// newlyResolved returns the entries of history not counted yet.
func (h *Hosted) newlyResolved(history []domain.HistoryEntry) []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(history) < h.resolved {
		// restarted
		h.resolved = 0
	}

	fresh := history[h.resolved:]
	h.resolved = len(history)
	return fresh
}

type RegistryConfig struct {
	Machine  *Machine
	EventBus *event.Bus
	Logger   *slog.Logger
	Now      func() time.Time

	IdleTimeout   time.Duration
	CueDelay      time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	BridgeOptions []speech.Option
}

// Registry hosts at most one session per candidate email.
type Registry struct {
	m         *Machine
	eb        *event.Bus
	logger    *slog.Logger
	now       func() time.Time
	idle      time.Duration
	cueDelay  time.Duration
	newTicker func(d time.Duration) Ticker
	bridge    []speech.Option

	cron *cron.Cron

	mu       sync.Mutex
	sessions map[string]*Hosted
}

func NewRegistry(c RegistryConfig) *Registry {
	r := &Registry{
		m:         c.Machine,
		eb:        c.EventBus,
		logger:    c.Logger,
		now:       c.Now,
		idle:      c.IdleTimeout,
		cueDelay:  c.CueDelay,
		newTicker: c.NewTickerFunc,
		bridge:    c.BridgeOptions,
		sessions:  make(map[string]*Hosted),
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.idle <= 0 {
		r.idle = DefaultIdleTimeout
	}

	return r
}

// Open returns the owner's session, creating an idle one if there is none.
func (r *Registry) Open(owner domain.Identity) *Hosted {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.sessions[owner.Email]
	if !ok {
		h = r.host(owner)
		r.sessions[owner.Email] = h
		telemetry.HostedSessions.Inc()
	}

	h.touch(r.now())
	return h
}

// Get returns the owner's session or a NotFound error.
func (r *Registry) Get(email string) (*Hosted, error) {
	r.mu.Lock()
	h, ok := r.sessions[email]
	r.mu.Unlock()

	if !ok {
		return nil, errNoSession
	}

	h.touch(r.now())
	return h, nil
}

// Start begins, or restarts after completion, the owner's session under a
// new session ID.
func (r *Registry) Start(owner domain.Identity) (*Hosted, error) {
	h := r.Open(owner)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	prev := h.setID(id.String())
	if err := h.Controller.Start(); err != nil {
		h.setID(prev)
		return nil, err
	}

	telemetry.SessionsStarted.Inc()
	r.logger.Info("interview: session started", "session", id.String(), "email", owner.Email)
	return h, nil
}

// Reap closes sessions nobody has used for the idle timeout and that have no
// browser attached. It returns how many were closed.
func (r *Registry) Reap() int {
	now := r.now()

	r.mu.Lock()
	var reaped []*Hosted
	for email, h := range r.sessions {
		if h.Bridge.Connected() || !h.idleSince(now, r.idle) {
			continue
		}
		delete(r.sessions, email)
		reaped = append(reaped, h)
	}
	r.mu.Unlock()

	for _, h := range reaped {
		h.Controller.Close()
		telemetry.HostedSessions.Dec()
		r.logger.Info("interview: idle session closed", "session", h.ID(), "email", h.Owner.Email)
	}

	return len(reaped)
}

// StartReaper runs Reap on the given cron schedule until Close.
func (r *Registry) StartReaper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Reap() }); err != nil {
		return fmt.Errorf("schedule reaper %q: %w", schedule, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the reaper and every hosted session.
func (r *Registry) Close() {
	r.mu.Lock()
	c := r.cron
	sessions := r.sessions
	r.sessions = make(map[string]*Hosted)
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	for _, h := range sessions {
		h.Controller.Close()
		telemetry.HostedSessions.Dec()
	}
}

func (r *Registry) host(owner domain.Identity) *Hosted {
	logger := r.logger.With("email", owner.Email)

	h := &Hosted{
		Owner:  owner,
		Bridge: speech.NewBridge(logger, r.bridge...),
	}

	h.Controller = NewController(Config{
		Machine:       r.m,
		Speaker:       h.Bridge,
		Recognizer:    h.Bridge,
		Cues:          h.Bridge,
		Logger:        logger,
		Now:           r.now,
		NewTickerFunc: r.newTicker,
		CueDelay:      r.cueDelay,
		OnChange: func(st State) {
			for _, e := range h.newlyResolved(st.History) {
				telemetry.Resolutions.WithLabelValues(string(e.Outcome)).Inc()
			}

			if err := h.Bridge.PushState(NewView(h.ID(), r.m.Total(), st)); err != nil {
				logger.Debug("interview: push state failed", "error", err)
			}
		},
		OnComplete: func(st State) {
			r.complete(h, st)
		},
	})

	return h
}

func (r *Registry) complete(h *Hosted, st State) {
	telemetry.SessionsCompleted.Inc()

	sum, err := r.m.Summarize(st)
	if err != nil {
		r.logger.Error("interview: summarize completed session", "session", h.ID(), "error", err)
		return
	}

	if r.eb == nil {
		return
	}

	r.eb.Publish(context.Background(), domain.EventInterviewCompleted{
		Result: domain.Result{
			SessionID:    h.ID(),
			Email:        h.Owner.Email,
			Summary:      sum,
			History:      st.History,
			CompleteTime: r.now(),
		},
	})
}
