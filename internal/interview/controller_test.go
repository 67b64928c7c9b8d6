package interview_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/mockinterview/internal/interview"
	"github.com/victornm/mockinterview/internal/question"
)

const (
	waitFor = time.Second
	tickFor = 5 * time.Millisecond
)

func TestController_TimerExpiresQuestion(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 3*time.Second)

	require.NoError(t, h.ctl.Start())
	tk := h.nextTicker(t)

	for range 3 {
		h.clock.Advance(time.Second)
		tk.tick()
	}

	assert.Eventually(t, func() bool {
		return len(h.ctl.State().History) == 1
	}, waitFor, tickFor)

	st := h.ctl.State()
	assert.Equal(t, "(no response)", st.History[0].Answer)
	assert.Equal(t, 3, st.History[0].TimeTaken)
	assert.Equal(t, "Q2", st.Question)
	assert.Equal(t, 3, st.RemainingSeconds, "countdown restarts for the next question")
	assert.Eventually(t, func() bool { return h.cues.has("time_up") }, waitFor, tickFor)

	h.nextTicker(t)
	tk.waitStopped(t)
}

func TestController_ResolutionStopsCountdown(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 60*time.Second)

	require.NoError(t, h.ctl.Start())
	first := h.nextTicker(t)

	require.NoError(t, h.ctl.Skip())
	first.waitStopped(t)

	second := h.nextTicker(t)
	h.clock.Advance(time.Second)
	second.tick()

	assert.Eventually(t, func() bool {
		return h.ctl.State().RemainingSeconds == 59
	}, waitFor, tickFor)
}

func TestController_Speech(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2", "Q3"}, 60*time.Second)

	require.NoError(t, h.ctl.Start())
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Q1"}, h.speaker.texts())
	}, waitFor, tickFor)

	require.NoError(t, h.ctl.ToggleSpeech())
	require.NoError(t, h.ctl.Skip())
	assert.Never(t, func() bool { return len(h.speaker.texts()) > 1 }, 50*time.Millisecond, tickFor)

	require.NoError(t, h.ctl.ToggleSpeech())
	require.NoError(t, h.ctl.Skip())
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Q1", "Q3"}, h.speaker.texts())
	}, waitFor, tickFor)
}

func TestController_AnnouncesOnlyCurrentQuestion(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2", "Q3"}, 60*time.Second)
	h.speaker.holdOn = "Q1"
	h.speaker.hold = make(chan struct{})

	require.NoError(t, h.ctl.Start())
	require.Eventually(t, func() bool { return len(h.speaker.texts()) == 1 }, waitFor, tickFor)

	// Q2 becomes stale while Q1 is still being spoken.
	require.NoError(t, h.ctl.Skip())
	require.NoError(t, h.ctl.Skip())
	close(h.speaker.hold)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Q1", "Q3"}, h.speaker.texts())
	}, waitFor, tickFor)
	assert.Never(t, func() bool { return len(h.speaker.texts()) > 2 }, 50*time.Millisecond, tickFor)
}

func TestController_SpeechFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 60*time.Second)
	h.speaker.err = errors.New("no audio device")

	require.NoError(t, h.ctl.Start())
	require.NoError(t, h.ctl.Skip())

	assert.Equal(t, "Q2", h.ctl.State().Question)
}

func TestController_Transcription(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 60*time.Second)

	require.NoError(t, h.ctl.Start())
	require.NoError(t, h.ctl.StartListening())
	require.True(t, h.ctl.State().Listening)

	stream := h.recognizer.stream(t)
	stream.push("Hello")
	stream.push("Hello world")

	assert.Eventually(t, func() bool {
		return h.ctl.State().Draft == "Hello world"
	}, waitFor, tickFor)

	require.NoError(t, h.ctl.Submit())

	st := h.ctl.State()
	assert.False(t, st.Listening)
	assert.Equal(t, "Hello world", st.History[0].Answer)
	assert.Empty(t, st.Draft, "draft of the next question starts empty")
	stream.waitClosed(t)
}

func TestController_TranscriptionEndsByItself(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 60*time.Second)

	require.NoError(t, h.ctl.Start())
	require.NoError(t, h.ctl.StartListening())

	stream := h.recognizer.stream(t)
	stream.push("partial")
	stream.end()

	assert.Eventually(t, func() bool {
		return !h.ctl.State().Listening
	}, waitFor, tickFor)
	assert.Equal(t, "partial", h.ctl.State().Draft)
}

func TestController_StartListeningDoesNotBlockSession(t *testing.T) {
	r := &blockingRecognizer{
		entered: make(chan context.Context, 1),
		release: make(chan struct{}),
	}

	ctl := interview.NewController(interview.Config{
		Machine:       makeMachine([]string{"Q1", "Q2"}),
		Recognizer:    r,
		NewTickerFunc: (&tickers{created: make(chan *fakeTicker, 16)}).New,
	})
	t.Cleanup(ctl.Close)
	t.Cleanup(func() { close(r.release) })

	require.NoError(t, ctl.Start())

	listened := make(chan error, 1)
	go func() { listened <- ctl.StartListening() }()

	var ctx context.Context
	select {
	case ctx = <-r.entered:
	case <-time.After(waitFor):
		t.Fatal("recognizer was not started")
	}

	skipped := make(chan error, 1)
	go func() { skipped <- ctl.Skip() }()

	select {
	case err := <-skipped:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("skip waited for the recognizer to start")
	}

	select {
	case err := <-listened:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("start listening did not return")
	}

	assert.Error(t, ctx.Err(), "pending recognition is cancelled by the resolution")

	st := ctl.State()
	assert.Equal(t, "Q2", st.Question)
	assert.False(t, st.Listening)
}

func TestController_ListenAgainIgnoresOldStream(t *testing.T) {
	var (
		old   = make(chan string)
		fresh = make(chan string)
		r     = queuedRecognizer{streams: make(chan chan string, 2)}
	)
	r.streams <- old
	r.streams <- fresh

	ctl := interview.NewController(interview.Config{
		Machine:       makeMachine([]string{"Q1", "Q2"}),
		Recognizer:    r,
		NewTickerFunc: (&tickers{created: make(chan *fakeTicker, 16)}).New,
	})
	t.Cleanup(ctl.Close)

	require.NoError(t, ctl.Start())
	require.NoError(t, ctl.StartListening())
	require.NoError(t, ctl.StopListening())
	require.NoError(t, ctl.StartListening())

	// The second send returns once the first has been applied.
	old <- "left over"
	old <- "left over again"
	assert.Empty(t, ctl.State().Draft)

	fresh <- "new answer"
	assert.Eventually(t, func() bool {
		return ctl.State().Draft == "new answer"
	}, waitFor, tickFor)

	close(old)
	assert.Never(t, func() bool { return !ctl.State().Listening }, 50*time.Millisecond, tickFor)
}

func TestController_RecognizerUnavailable(t *testing.T) {
	tests := map[string]interview.Recognizer{
		"nil recognizer":     nil,
		"failing recognizer": failingRecognizer{},
	}

	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			ctl := interview.NewController(interview.Config{
				Machine:       makeMachine([]string{"Q1"}),
				Recognizer:    r,
				NewTickerFunc: (&tickers{created: make(chan *fakeTicker, 16)}).New,
			})
			t.Cleanup(ctl.Close)

			require.NoError(t, ctl.Start())
			require.NoError(t, ctl.StartListening())
			assert.False(t, ctl.State().Listening)
		})
	}
}

func TestController_OnComplete(t *testing.T) {
	var (
		mu        sync.Mutex
		completed []interview.State
		changes   int
	)

	ctl := interview.NewController(interview.Config{
		Machine:       makeMachine([]string{"Q1", "Q2"}),
		NewTickerFunc: (&tickers{created: make(chan *fakeTicker, 16)}).New,
		OnChange: func(interview.State) {
			mu.Lock()
			changes++
			mu.Unlock()
		},
		OnComplete: func(st interview.State) {
			mu.Lock()
			completed = append(completed, st)
			mu.Unlock()
		},
	})
	t.Cleanup(ctl.Close)

	require.NoError(t, ctl.Start())
	require.NoError(t, ctl.UpdateDraft("first answer"))
	require.NoError(t, ctl.Submit())
	require.NoError(t, ctl.Skip())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1)
	assert.Equal(t, interview.PhaseCompleted, completed[0].Phase)
	assert.Len(t, completed[0].History, 2)
	assert.Equal(t, 4, changes)

	sum, err := ctl.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.AnsweredCount)
	assert.Equal(t, 2, sum.TotalCount)
}

func TestController_OnChangeInOrder(t *testing.T) {
	prompts := make([]string, 40)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("Q%d", i+1)
	}

	var (
		mu      sync.Mutex
		lengths []int
	)

	ctl := interview.NewController(interview.Config{
		Machine:       makeMachine(prompts),
		NewTickerFunc: (&tickers{created: make(chan *fakeTicker, 64)}).New,
		OnChange: func(st interview.State) {
			mu.Lock()
			lengths = append(lengths, len(st.History))
			mu.Unlock()
		},
	})
	t.Cleanup(ctl.Close)

	require.NoError(t, ctl.Start())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctl.Skip()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, slices.IsSorted(lengths), "snapshots delivered out of order: %v", lengths)
	assert.Equal(t, 20, lengths[len(lengths)-1])
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, []string{"Q1", "Q2"}, 60*time.Second)

	require.NoError(t, h.ctl.Start())
	tk := h.nextTicker(t)

	h.ctl.Close()
	tk.waitStopped(t)

	assert.ErrorIs(t, h.ctl.Skip(), interview.ErrClosed)
	assert.ErrorIs(t, h.ctl.Start(), interview.ErrClosed)
}

type harness struct {
	ctl        *interview.Controller
	clock      *fakeClock
	tickers    *tickers
	speaker    *fakeSpeaker
	recognizer *fakeRecognizer
	cues       *fakeCues
}

func newHarness(t *testing.T, prompts []string, questionTime time.Duration) *harness {
	h := &harness{
		clock:      &fakeClock{now: t0},
		tickers:    &tickers{created: make(chan *fakeTicker, 16)},
		speaker:    &fakeSpeaker{},
		recognizer: &fakeRecognizer{streams: make(chan *fakeStream, 4)},
		cues:       &fakeCues{},
	}

	h.ctl = interview.NewController(interview.Config{
		Machine: interview.NewMachine(interview.MachineConfig{
			Bank:         question.MustNewBank(prompts),
			QuestionTime: questionTime,
			Pick:         first,
		}),
		Speaker:       h.speaker,
		Recognizer:    h.recognizer,
		Cues:          h.cues,
		Now:           h.clock.Now,
		NewTickerFunc: h.tickers.New,
		CueDelay:      time.Millisecond,
	})
	t.Cleanup(h.ctl.Close)

	return h
}

func (h *harness) nextTicker(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-h.tickers.created:
		return tk
	case <-time.After(waitFor):
		t.Fatal("countdown was not started")
		return nil
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type tickers struct {
	created chan *fakeTicker
}

func (ts *tickers) New(time.Duration) interview.Ticker {
	tk := &fakeTicker{c: make(chan time.Time), stopped: make(chan struct{})}
	ts.created <- tk
	return tk
}

type fakeTicker struct {
	c       chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *fakeTicker) tick() {
	t.c <- time.Time{}
}

func (t *fakeTicker) waitStopped(tb testing.TB) {
	tb.Helper()
	select {
	case <-t.stopped:
	case <-time.After(waitFor):
		tb.Fatal("countdown was not stopped")
	}
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error

	// hold blocks the announcement of holdOn until closed.
	holdOn string
	hold   chan struct{}
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	hold := s.hold
	s.mu.Unlock()

	if hold != nil && text == s.holdOn {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}

	return s.err
}

func (s *fakeSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeCues struct {
	mu    sync.Mutex
	names []string
}

func (c *fakeCues) PlayCue(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	return nil
}

func (c *fakeCues) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

type fakeRecognizer struct {
	streams chan *fakeStream
}

func (r *fakeRecognizer) Transcribe(ctx context.Context) (<-chan string, error) {
	s := &fakeStream{
		in:     make(chan string),
		out:    make(chan string),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	go func() {
		defer close(s.closed)
		defer close(s.out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case text := <-s.in:
				s.out <- text
			}
		}
	}()

	r.streams <- s
	return s.out, nil
}

func (r *fakeRecognizer) stream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-r.streams:
		return s
	case <-time.After(waitFor):
		t.Fatal("transcription was not started")
		return nil
	}
}

type fakeStream struct {
	in     chan string
	out    chan string
	done   chan struct{}
	closed chan struct{}
}

func (s *fakeStream) push(text string) {
	s.in <- text
}

func (s *fakeStream) end() {
	close(s.done)
}

func (s *fakeStream) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(waitFor):
		t.Fatal("transcription was not stopped")
	}
}

type failingRecognizer struct{}

func (failingRecognizer) Transcribe(context.Context) (<-chan string, error) {
	return nil, errors.New("microphone permission denied")
}

type blockingRecognizer struct {
	entered chan context.Context
	release chan struct{}
}

func (r *blockingRecognizer) Transcribe(ctx context.Context) (<-chan string, error) {
	r.entered <- ctx

	select {
	case <-r.release:
		return make(chan string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type queuedRecognizer struct {
	streams chan chan string
}

func (r queuedRecognizer) Transcribe(context.Context) (<-chan string, error) {
	return <-r.streams, nil
}
