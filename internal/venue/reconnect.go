package venue

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"venuemesh/internal/quote"
)

// ReconnectConfig holds the backoff/cooldown numbers: base 1s, cap
// 30s, 10 consecutive attempts before a 60s cool-down, then the cycle
// restarts.
type ReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	CoolDown       time.Duration
	ConnectTimeout time.Duration
	WatchdogIdle   time.Duration
}

// DefaultReconnectConfig returns the standard backoff/cooldown values.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    10,
		CoolDown:       60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		WatchdogIdle:   15 * time.Second,
	}
}

// ReconnectManager owns a single websocket connection and keeps it
// alive, generalizing the teacher's WSReconnectManager: subscriptions
// are venue-specific payloads replayed verbatim after every dial, a
// gobreaker.CircuitBreaker wraps the dial itself so that a venue deep
// in an outage stops being hammered once its consecutive-failure count
// trips the breaker, and state transitions are published as
// quote.ConnectionEvent instead of invoked as callbacks.
type ReconnectManager struct {
	venue  quote.VenueID
	url    string
	cfg    ReconnectConfig
	logger *zap.SugaredLogger

	breaker *gobreaker.CircuitBreaker

	conn   atomic.Pointer[websocket.Conn]
	closed atomic.Bool

	subscriptions [][]byte

	states chan quote.ConnectionEvent

	lastFrame atomic.Int64 // unix nano of last inbound frame
}

// NewReconnectManager builds a manager whose breaker trips after five
// consecutive dial failures and stays open for the configured
// cool-down, then probes again.
func NewReconnectManager(v quote.VenueID, url string, cfg ReconnectConfig, logger *zap.SugaredLogger) *ReconnectManager {
	m := &ReconnectManager{
		venue:  v,
		url:    url,
		cfg:    cfg,
		logger: logger,
		states: make(chan quote.ConnectionEvent, 16),
	}

	settings := gobreaker.Settings{
		Name:        string(v),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Infow("circuit breaker state change", "venue", name, "from", from.String(), "to", to.String())
		},
	}
	m.breaker = gobreaker.NewCircuitBreaker(settings)

	return m
}

// States returns the manager's connection-state event stream.
func (m *ReconnectManager) States() <-chan quote.ConnectionEvent {
	return m.states
}

// AddSubscription records a raw JSON payload to replay on every
// successful dial, including the first.
func (m *ReconnectManager) AddSubscription(payload []byte) {
	m.subscriptions = append(m.subscriptions, payload)
}

// Touch records that a frame was just received, resetting the
// watchdog clock. Adapters call this from their read loop.
func (m *ReconnectManager) Touch() {
	m.lastFrame.Store(time.Now().UnixNano())
}

// IdleFor reports how long it has been since the last inbound frame.
func (m *ReconnectManager) IdleFor() time.Duration {
	last := m.lastFrame.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

func (m *ReconnectManager) emit(state quote.ConnectionState, err error, breakerOpen bool) {
	select {
	case m.states <- quote.ConnectionEvent{Venue: m.venue, State: state, At: time.Now(), Err: err, BreakerOpen: breakerOpen}:
	default:
		m.logger.Warnw("dropped connection-state event, subscriber too slow", "venue", m.venue)
	}
}

// Connect dials through the circuit breaker, blocking the caller's
// goroutine for the duration of one dial attempt.
func (m *ReconnectManager) Connect(ctx context.Context) (*websocket.Conn, error) {
	m.emit(quote.StateConnecting, nil, false)

	result, err := m.breaker.Execute(func() (interface{}, error) {
		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
		dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
		conn, _, dialErr := dialer.DialContext(dialCtx, m.url, nil)
		if dialErr != nil {
			return nil, fmt.Errorf("dial %s: %w", m.url, dialErr)
		}
		return conn, nil
	})

	if err != nil {
		breakerOpen := err == gobreaker.ErrOpenState
		m.emit(quote.StateClosed, err, breakerOpen)
		return nil, err
	}

	conn := result.(*websocket.Conn)
	m.conn.Store(conn)
	m.lastFrame.Store(time.Now().UnixNano())

	for _, payload := range m.subscriptions {
		if writeErr := conn.WriteMessage(websocket.TextMessage, payload); writeErr != nil {
			m.logger.Warnw("subscription replay failed", "venue", m.venue, "error", writeErr)
		}
	}

	m.emit(quote.StateOpen, nil, false)
	return conn, nil
}

// RunWithReconnect calls handleConn repeatedly: once per successful
// connection, retrying with exponential backoff and jitter between
// attempts, until ctx is cancelled or Close is called. handleConn
// should block for the lifetime of the connection and return the
// error that ended it (nil on a clean Stop-triggered close).
func (m *ReconnectManager) RunWithReconnect(ctx context.Context, handleConn func(ctx context.Context, conn *websocket.Conn) error) {
	attempt := 0

	for {
		if ctx.Err() != nil || m.closed.Load() {
			return
		}

		conn, err := m.Connect(ctx)
		if err != nil {
			attempt++
			if attempt >= m.cfg.MaxAttempts {
				m.logger.Warnw("max reconnect attempts reached, cooling down", "venue", m.venue, "attempts", attempt)
				m.emit(quote.StateDegraded, err, true)
				if !sleepCtx(ctx, m.cfg.CoolDown) {
					return
				}
				attempt = 0
				continue
			}
			if !sleepCtx(ctx, backoffDelay(attempt, m.cfg.InitialDelay, m.cfg.MaxDelay)) {
				return
			}
			continue
		}

		attempt = 0
		runErr := handleConn(ctx, conn)
		m.conn.Store(nil)
		_ = conn.Close()

		if m.closed.Load() || ctx.Err() != nil {
			return
		}
		if runErr != nil {
			m.logger.Infow("connection ended, reconnecting", "venue", m.venue, "error", runErr)
			m.emit(quote.StateDegraded, runErr, false)
		}
	}
}

// Heartbeat sends payload on the live connection every interval until
// ctx is done. Venues that expect a client-initiated keep-alive frame,
// rather than relying on the WebSocket protocol's own ping/pong, stay
// subscribed as long as this keeps running.
func (m *ReconnectManager) Heartbeat(ctx context.Context, interval time.Duration, payload []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Send(payload); err != nil {
				m.logger.Debugw("heartbeat send failed", "venue", m.venue, "error", err)
			}
		}
	}
}

// Send writes a message on the live connection, if any.
func (m *ReconnectManager) Send(payload []byte) error {
	conn := m.conn.Load()
	if conn == nil {
		return newTransportError(string(m.venue), "not connected", nil)
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears down the manager; subsequent RunWithReconnect loops
// observe m.closed and exit.
func (m *ReconnectManager) Close() error {
	m.closed.Store(true)
	if conn := m.conn.Load(); conn != nil {
		return conn.Close()
	}
	return nil
}

// ForceReconnect closes the current connection without marking the
// manager closed, so RunWithReconnect's loop treats it as an ordinary
// transport drop and redials. Used by adapter watchdogs to enforce an
// idle-frame timeout.
func (m *ReconnectManager) ForceReconnect() {
	if conn := m.conn.Load(); conn != nil {
		_ = conn.Close()
	}
}

func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(cap) {
		d = float64(cap)
	}
	jitter := d * 0.2 * (rand.Float64()*2 - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
