package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	FrameSpeak         = "speak"
	FrameCancelSpeech  = "cancel_speech"
	FrameListen        = "listen"
	FrameStopListening = "stop_listening"
	FrameCue           = "cue"
	FrameState         = "state"

	FrameTranscript = "transcript"
	FrameListenEnd  = "listen_end"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultPingPeriod   = DefaultPongWait * 9 / 10
)

// transcriptBuffer only needs to absorb bursts: transcripts are cumulative,
// so dropping an older one loses nothing.
const transcriptBuffer = 8

// Frame is the JSON message exchanged with the browser.
type Frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Conn is the part of *websocket.Conn used by the bridge.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Option func(b *Bridge)

// WithWriteTimeout bounds every frame written to the browser.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.writeTimeout = d
		}
	}
}

// WithKeepalive pings the browser every pingPeriod and drops a connection
// that stays silent for pongWait. pingPeriod must be shorter than pongWait.
func WithKeepalive(pingPeriod, pongWait time.Duration) Option {
	return func(b *Bridge) {
		if pingPeriod > 0 && pongWait > pingPeriod {
			b.pingPeriod, b.pongWait = pingPeriod, pongWait
		}
	}
}

// Bridge delegates speech synthesis and recognition to a connected browser.
// Without a connection it behaves like Unavailable.
type Bridge struct {
	logger       *slog.Logger
	writeTimeout time.Duration
	pingPeriod   time.Duration
	pongWait     time.Duration

	wmu sync.Mutex

	mu   sync.Mutex
	conn Conn
	sub  chan string
}

func NewBridge(logger *slog.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		pingPeriod:   DefaultPingPeriod,
		pongWait:     DefaultPongWait,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Connected reports whether a browser is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Attach serves conn until it fails, goes silent for longer than the pong
// wait, or ctx is done, replacing any previous connection. When state is not
// nil it is sent first, once conn is in place. An active transcription ends
// when its connection goes away.
func (b *Bridge) Attach(ctx context.Context, conn Conn, state any) error {
	b.mu.Lock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()

	if state != nil {
		if err := b.PushState(state); err != nil {
			b.detach(conn)
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	defer b.detach(conn)

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	}
	if err := extend(); err != nil {
		return fmt.Errorf("speech: set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)
	go b.keepalive(conn, done)

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("speech: read frame: %w", err)
		}
		_ = extend()

		switch f.Type {
		case FrameTranscript:
			b.deliver(f.Text)
		case FrameListenEnd:
			b.mu.Lock()
			b.endLocked()
			b.mu.Unlock()
		default:
			b.logger.DebugContext(ctx, "speech: unknown frame", "type", f.Type)
		}
	}
}

// Speak asks the browser to drop any utterance in flight and read text.
func (b *Bridge) Speak(_ context.Context, text string) error {
	conn := b.current()
	if conn == nil {
		return ErrUnavailable
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()

	if err := b.writeLocked(conn, Frame{Type: FrameCancelSpeech}); err != nil {
		return err
	}
	return b.writeLocked(conn, Frame{Type: FrameSpeak, Text: text})
}

func (b *Bridge) PlayCue(_ context.Context, name string) error {
	return b.write(Frame{Type: FrameCue, Text: name})
}

// PushState sends data to the browser as a state frame. It is a no-op
// without a connection.
func (b *Bridge) PushState(data any) error {
	err := b.write(Frame{Type: FrameState, Data: data})
	if errors.Is(err, ErrUnavailable) {
		return nil
	}
	return err
}

// Transcribe starts recognition in the browser. The returned channel
// receives cumulative transcripts and is closed when ctx is done, the
// browser ends recognition, or the connection is lost.
func (b *Bridge) Transcribe(ctx context.Context) (<-chan string, error) {
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return nil, ErrUnavailable
	}

	b.endLocked()
	ch := make(chan string, transcriptBuffer)
	b.sub = ch
	b.mu.Unlock()

	if err := b.write(Frame{Type: FrameListen}); err != nil {
		b.mu.Lock()
		if b.sub == ch {
			b.endLocked()
		}
		b.mu.Unlock()
		return nil, err
	}

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		mine := b.sub == ch
		if mine {
			b.endLocked()
		}
		b.mu.Unlock()

		if mine {
			_ = b.write(Frame{Type: FrameStopListening})
		}
	}()

	return ch, nil
}

func (b *Bridge) deliver(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		return
	}

	select {
	case b.sub <- text:
	default:
		select {
		case <-b.sub:
		default:
		}
		b.sub <- text
	}
}

func (b *Bridge) detach(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == conn {
		b.conn = nil
		b.endLocked()
	}
}

// endLocked closes the active transcription stream, if any.
func (b *Bridge) endLocked() {
	if b.sub != nil {
		close(b.sub)
		b.sub = nil
	}
}

func (b *Bridge) current() Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

func (b *Bridge) write(f Frame) error {
	conn := b.current()
	if conn == nil {
		return ErrUnavailable
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()

	return b.writeLocked(conn, f)
}

// writeLocked must be called with b.wmu held. A failed write closes conn,
// which ends its Attach.
func (b *Bridge) writeLocked(conn Conn, f Frame) error {
	err := conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	if err == nil {
		err = conn.WriteJSON(f)
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("speech: write %s: %w", f.Type, err)
	}
	return nil
}

// keepalive pings conn until done. The browser's pongs extend the read
// deadline set in Attach.
func (b *Bridge) keepalive(conn Conn, done <-chan struct{}) {
	t := time.NewTicker(b.pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
		}

		b.wmu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if err == nil {
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		b.wmu.Unlock()

		if err != nil {
			b.logger.Debug("speech: ping failed", "error", err)
			_ = conn.Close()
			return
		}
	}
}
