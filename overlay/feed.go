package overlay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/telemetry"
)

// State is the feed connection state. Transitions:
// Disconnected -> Connecting -> Connected -> {Closing, Erroring} -> Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateErroring
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateErroring:
		return "erroring"
	}
	return "unknown"
}

// feedConn is the subset of *websocket.Conn the feed needs; swapped in tests.
type feedConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a feed connection. The default uses the gorilla dialer.
type DialFunc func(ctx context.Context, url string) (feedConn, error)

func gorillaDial(ctx context.Context, url string) (feedConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Feed maintains exactly one outbound connection to a remote hub and hands every
// decoded event to Handler. Loss of the connection schedules a single reconnect
// after a fixed delay; there is deliberately no backoff, jitter, or retry cap.
type Feed struct {
	URL     string
	Handler func(event.Event)

	// Dial, RetryDelay and HeartbeatEvery have working defaults; tests override them.
	Dial           DialFunc
	RetryDelay     time.Duration
	HeartbeatEvery time.Duration

	mu         sync.Mutex
	state      State
	retryTimer *time.Timer
	retryC     chan struct{}
}

// NewFeed creates a feed client for the given hub URL.
func NewFeed(url string, handler func(event.Event)) *Feed {
	return &Feed{
		URL:            url,
		Handler:        handler,
		Dial:           gorillaDial,
		RetryDelay:     5 * time.Second,
		HeartbeatEvery: 10 * time.Second,
		retryC:         make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	if prev != s {
		slog.Debug("feed state", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

// scheduleRetry transitions to Disconnected and arms the reconnect timer.
// The timer is single-slot: a second close/error while one is pending is a
// no-op, so duplicate reconnect attempts cannot stack. Returns whether a new
// timer was armed.
func (f *Feed) scheduleRetry(cause string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateDisconnected
	if f.retryTimer != nil {
		return false
	}
	slog.Info("feed reconnect scheduled", slog.String("cause", cause), slog.Duration("delay", f.RetryDelay))
	telemetry.FeedReconnect()
	f.retryTimer = time.AfterFunc(f.RetryDelay, func() {
		f.mu.Lock()
		f.retryTimer = nil
		f.mu.Unlock()
		select {
		case f.retryC <- struct{}{}:
		default:
		}
	})
	return true
}

// cancelRetry disarms a pending reconnect timer, if any. Safe to call twice.
func (f *Feed) cancelRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retryTimer != nil {
		f.retryTimer.Stop()
		f.retryTimer = nil
	}
}

// Run is the supervisor loop: connect, serve until the connection dies, wait for
// the reconnect timer, repeat. Returns when ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	defer f.cancelRetry()
	for {
		f.setState(StateConnecting)
		conn, err := f.Dial(ctx, f.URL)
		if err != nil {
			if ctx.Err() != nil {
				f.setState(StateDisconnected)
				return
			}
			f.setState(StateErroring)
			slog.Warn("feed dial failed", slog.String("url", f.URL), slog.Any("err", err))
			f.scheduleRetry("dial failed")
		} else {
			f.setState(StateConnected)
			slog.Info("feed connected", slog.String("url", f.URL))
			f.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			f.scheduleRetry("connection lost")
		}
		select {
		case <-ctx.Done():
			f.setState(StateDisconnected)
			return
		case <-f.retryC:
		}
	}
}

// serve pumps one live connection: a heartbeat writer and a read loop. Returns
// when the connection errors, closes, or ctx is canceled.
func (f *Feed) serve(ctx context.Context, conn feedConn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(f.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Clean shutdown path: close the socket so the read loop unblocks.
				f.setState(StateClosing)
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
					slog.Debug("feed heartbeat failed", slog.Any("err", err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.setState(StateErroring)
				slog.Warn("feed read error", slog.Any("err", err))
			}
			_ = conn.Close()
			return
		}
		var e event.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			// Malformed frames are dropped; the connection stays up.
			slog.Debug("malformed feed frame dropped", slog.Any("err", err))
			continue
		}
		if f.Handler != nil {
			f.Handler(e)
		}
	}
}
