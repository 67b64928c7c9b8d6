package interview

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
)

// DefaultCueDelay leaves the time-up cue a moment to play before a timed out
// question is resolved.
const DefaultCueDelay = 300 * time.Millisecond

// Speaker plays text to the candidate. Speak should cancel any utterance in
// flight and must not block for the length of the utterance.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Recognizer streams cumulative transcripts until ctx is cancelled or the
// recognition ends on its own, then closes the channel.
type Recognizer interface {
	Transcribe(ctx context.Context) (<-chan string, error)
}

// CuePlayer plays short audible cues such as the last-seconds warning.
type CuePlayer interface {
	PlayCue(ctx context.Context, name string) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	Machine    *Machine
	Speaker    Speaker
	Recognizer Recognizer
	Cues       CuePlayer
	Logger     *slog.Logger

	Now           func() time.Time
	NewTickerFunc func(d time.Duration) Ticker
	CueDelay      time.Duration

	// OnChange receives a snapshot after every applied event, in the order
	// the events were applied. It must not call back into the Controller.
	OnChange func(State)
	// OnComplete receives the final state when the last question resolves.
	OnComplete func(State)
}

// Controller owns one session State. Every user action, timer tick and
// transcript is applied under one lock, so there is exactly one writer at a
// time.
type Controller struct {
	m          *Machine
	speaker    Speaker
	recognizer Recognizer
	cues       CuePlayer
	logger     *slog.Logger

	now        func() time.Time
	newTicker  func(d time.Duration) Ticker
	cueDelay   time.Duration
	onChange   func(State)
	onComplete func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	st         State
	closed     bool
	stopTimer  context.CancelFunc
	stopListen context.CancelFunc
	listenGen  uint64
	seq        uint64
	announce   *Effect
	wake       chan struct{}

	// nmu orders observer calls; notified is the last delivered seq.
	nmu      sync.Mutex
	notified uint64
}

// notice is a snapshot taken under mu, numbered in apply order.
type notice struct {
	st        State
	seq       uint64
	completed bool
}

var ErrClosed = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("interview session is closed"))

func NewController(c Config) *Controller {
	ctl := &Controller{
		m:          c.Machine,
		speaker:    c.Speaker,
		recognizer: c.Recognizer,
		cues:       c.Cues,
		logger:     c.Logger,
		now:        c.Now,
		newTicker:  c.NewTickerFunc,
		cueDelay:   c.CueDelay,
		onChange:   c.OnChange,
		onComplete: c.OnComplete,
		st:         NewState(),
		wake:       make(chan struct{}, 1),
	}

	if ctl.logger == nil {
		ctl.logger = slog.Default()
	}
	if ctl.now == nil {
		ctl.now = time.Now
	}
	if ctl.newTicker == nil {
		ctl.newTicker = newTimeTicker
	}
	if ctl.cueDelay == 0 {
		ctl.cueDelay = DefaultCueDelay
	}

	ctl.ctx, ctl.cancel = context.WithCancel(context.Background())
	go ctl.announcer()

	return ctl
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot()
}

func (c *Controller) Total() int {
	return c.m.Total()
}

func (c *Controller) Start() error {
	return c.do(func(st State) (State, []Effect, error) {
		return c.m.Start(st, c.now())
	})
}

func (c *Controller) UpdateDraft(text string) error {
	return c.do(func(st State) (State, []Effect, error) {
		st, err := c.m.UpdateDraft(st, text)
		return st, nil, err
	})
}

func (c *Controller) Submit() error {
	return c.do(func(st State) (State, []Effect, error) {
		return c.m.Submit(st, c.now())
	})
}

func (c *Controller) Skip() error {
	return c.do(func(st State) (State, []Effect, error) {
		return c.m.Skip(st, c.now())
	})
}

func (c *Controller) ToggleSpeech() error {
	return c.do(func(st State) (State, []Effect, error) {
		return c.m.ToggleSpeech(st), nil, nil
	})
}

func (c *Controller) Summary() (domain.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.m.Summarize(c.st)
}

// StartListening opens a transcription stream for the active question. It
// does nothing when no recognizer is available or it fails to start. The
// recognizer is started outside the lock, and its stream is dropped if the
// question or the listen request changed meanwhile.
func (c *Controller) StartListening() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if !c.st.HasQuestion() {
		c.mu.Unlock()
		return errNotInProgress
	}

	if c.st.Listening || c.recognizer == nil {
		c.mu.Unlock()
		return nil
	}

	c.cancelListen()
	c.listenGen++
	gen, cycle := c.listenGen, c.st.Cycle
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopListen = cancel
	c.mu.Unlock()

	ch, err := c.recognizer.Transcribe(ctx)

	c.mu.Lock()
	current := !c.closed && gen == c.listenGen && cycle == c.st.Cycle && c.st.HasQuestion() && ctx.Err() == nil

	if err != nil || !current {
		if gen == c.listenGen {
			c.stopListen = nil
		}
		c.mu.Unlock()
		cancel()

		if err != nil {
			c.logger.DebugContext(c.ctx, "interview: speech recognition unavailable", "error", err)
		}
		return nil
	}

	c.st, _ = c.m.StartListening(c.st)
	n := c.capture(false)
	c.mu.Unlock()

	go c.consumeTranscripts(ch, cycle, gen)

	c.notify(n)
	return nil
}

func (c *Controller) StopListening() error {
	return c.do(func(st State) (State, []Effect, error) {
		return c.m.StopListening(st), []Effect{{Kind: EffectStopListening}}, nil
	})
}

// Close stops the countdown and any transcription. Calls after Close fail
// with ErrClosed and pending callbacks are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancelTimer()
	c.cancelListen()
	c.cancel()
}

func (c *Controller) consumeTranscripts(ch <-chan string, cycle, gen uint64) {
	for text := range ch {
		_ = c.do(func(st State) (State, []Effect, error) {
			if gen != c.listenGen {
				return st, nil, nil
			}
			return c.m.Transcript(st, cycle, text), nil, nil
		})
	}

	// Recognition ended by itself, e.g. the candidate stopped talking.
	_ = c.do(func(st State) (State, []Effect, error) {
		if gen != c.listenGen || !st.Listening {
			return st, nil, nil
		}
		return c.m.StopListening(st), []Effect{{Kind: EffectStopListening}}, nil
	})
}

func (c *Controller) countdown(ctx context.Context, cycle uint64) {
	t := c.newTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			_ = c.do(func(st State) (State, []Effect, error) {
				st, effects := c.m.Tick(st, cycle, c.now())
				return st, effects, nil
			})
		}
	}
}

func (c *Controller) expire(cycle uint64, at time.Time) {
	_ = c.do(func(st State) (State, []Effect, error) {
		st, effects := c.m.Expire(st, cycle, at)
		return st, effects, nil
	})
}

// do applies one transition and its effects, then notifies observers
// outside the lock.
func (c *Controller) do(transition func(st State) (State, []Effect, error)) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	next, effects, err := transition(c.st)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.st = next
	c.apply(effects)
	n := c.capture(hasEffect(effects, EffectComplete))
	c.mu.Unlock()

	c.notify(n)
	return nil
}

// apply must be called with c.mu held.
func (c *Controller) apply(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectStartTimer:
			c.cancelTimer()
			ctx, cancel := context.WithCancel(c.ctx)
			c.stopTimer = cancel
			go c.countdown(ctx, e.Cycle)

		case EffectStopTimer:
			c.cancelTimer()

		case EffectStopListening:
			c.cancelListen()

		case EffectSpeak:
			if c.speaker == nil {
				continue
			}
			c.announce = &e
			select {
			case c.wake <- struct{}{}:
			default:
			}

		case EffectCue:
			if c.cues == nil {
				continue
			}
			name := string(e.Cue)
			go func() {
				if err := c.cues.PlayCue(c.ctx, name); err != nil {
					c.logger.DebugContext(c.ctx, "interview: play cue failed", "cue", name, "error", err)
				}
			}()

		case EffectExpire:
			cycle, at := e.Cycle, e.At
			time.AfterFunc(c.cueDelay, func() { c.expire(cycle, at) })

		case EffectComplete:
			c.logger.InfoContext(c.ctx, "interview: completed", "answered", len(c.st.History))
		}
	}
}

func (c *Controller) cancelTimer() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

func (c *Controller) cancelListen() {
	if c.stopListen != nil {
		c.stopListen()
		c.stopListen = nil
	}
}

// announcer speaks the latest requested announcement, one at a time. An
// announcement whose question is no longer active is dropped.
func (c *Controller) announcer() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		c.mu.Lock()
		e := c.announce
		c.announce = nil
		stale := e == nil || e.Cycle != c.st.Cycle || !c.st.HasQuestion()
		c.mu.Unlock()

		if stale {
			continue
		}

		if err := c.speaker.Speak(c.ctx, e.Text); err != nil {
			c.logger.DebugContext(c.ctx, "interview: speak failed", "error", err)
		}
	}
}

func (c *Controller) snapshot() State {
	st := c.st
	st.History = slices.Clone(c.st.History)
	return st
}

// capture must be called with c.mu held.
func (c *Controller) capture(completed bool) notice {
	c.seq++
	return notice{st: c.snapshot(), seq: c.seq, completed: completed}
}

// notify delivers n unless a later snapshot was already delivered. The
// completion hook always runs.
func (c *Controller) notify(n notice) {
	c.nmu.Lock()
	defer c.nmu.Unlock()

	if c.onChange != nil && n.seq > c.notified {
		c.onChange(n.st)
	}
	c.notified = max(c.notified, n.seq)

	if n.completed && c.onComplete != nil {
		c.onComplete(n.st)
	}
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
