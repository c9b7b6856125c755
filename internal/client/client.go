// Package client implements the resilient WebSocket connection manager
// that keeps one logical broker connection alive across an unreliable
// network: automatic reconnection with capped exponential backoff,
// periodic keepalive pings, and a typed best-effort send API.
package client

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/agent-relay/backend/internal/logging"
)

const (
	defaultReconnectDelay = time.Second
	defaultPingInterval   = 30 * time.Second

	// maxReconnectDelay caps the backoff so recovery stays bounded
	// while still avoiding reconnect storms against a degraded server.
	maxReconnectDelay = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// Config configures a connection manager.
type Config struct {
	// URL is the broker WebSocket endpoint.
	URL string

	// ReconnectDelay is the backoff base. Default 1s.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts caps consecutive failed reconnects.
	// Zero means unbounded.
	MaxReconnectAttempts int

	// PingInterval is the keepalive period. Default 30s.
	PingInterval time.Duration

	// Scheduler drives the reconnect and keepalive timers. Defaults to
	// the wall clock.
	Scheduler Scheduler

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// pingFrame is the application-level keepalive payload.
type pingFrame struct {
	Type string `json:"type"`
}

// Manager owns one WebSocket connection. Create with New, start with
// Start, and tear down with Close; a closed manager schedules no
// further work.
type Manager struct {
	cfg    Config
	sched  Scheduler
	dialer *websocket.Dialer

	mu        sync.Mutex
	enabled   bool
	conn      *websocket.Conn
	connected bool
	attempts  int
	lastMsg   []byte
	consumers []func([]byte)

	keepalive TimerHandle
	reconnect TimerHandle

	// gen identifies the current connection epoch; callbacks from a
	// superseded epoch are discarded.
	gen uint64
}

// New creates a manager. It does not connect; call Start.
func New(cfg Config) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = NewScheduler()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Manager{cfg: cfg, sched: sched, dialer: dialer}
}

// OnMessage registers a consumer for every parsed, non-keepalive frame.
// Consumers run on the read goroutine and must not block.
func (m *Manager) OnMessage(fn func(data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers = append(m.consumers, fn)
}

// Start enables the manager and opens the connection asynchronously.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = true
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// IsConnected reports whether the socket is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// ReconnectAttempts returns the consecutive failed attempt count. It
// resets to zero on every successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastMessage returns the most recent parsed, non-keepalive frame, or
// nil before any arrived.
func (m *Manager) LastMessage() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastMsg == nil {
		return nil
	}
	out := make([]byte, len(m.lastMsg))
	copy(out, m.lastMsg)
	return out
}

// SendMessage marshals v and writes it to the socket. When the socket
// is not open the message is silently dropped, never queued: sends are
// best-effort by contract.
func (m *Manager) SendMessage(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected || m.conn == nil {
		return
	}
	m.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Debug().Err(err).Msg("websocket write failed")
	}
}

// Reconnect forces an immediate reconnection and resets backoff state.
// Intended for retry UIs; a no-op once the manager is closed.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.stopTimersLocked()
	m.dropConnLocked()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

// Close disables the manager, cancels all timers, and closes the
// socket with a normal closure code so the server treats the
// disconnect as intentional.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.gen++
	m.stopTimersLocked()

	if m.conn != nil {
		m.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

func (m *Manager) stopTimersLocked() {
	if m.keepalive != nil {
		m.keepalive.Stop()
		m.keepalive = nil
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) dropConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

// dial opens the socket for the given epoch.
func (m *Manager) dial(gen uint64) {
	conn, resp, err := m.dialer.Dial(m.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	if !m.enabled || m.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		logging.Warn().Err(err).Str("url", m.cfg.URL).Msg("websocket dial failed")
		m.scheduleReconnectLocked(gen)
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.connected = true
	m.attempts = 0
	m.scheduleKeepaliveLocked(gen)
	m.mu.Unlock()

	logging.Info().Str("url", m.cfg.URL).Msg("websocket connected")
	go m.readLoop(conn, gen)
}

// readLoop consumes inbound frames until the connection drops, then
// hands control to the reconnect path.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(gen)
			return
		}
		m.handleMessage(data)
	}
}

// handleMessage parses one inbound frame. Keepalive echoes exist only
// to prove liveness and are swallowed; everything else becomes the
// last message and goes to the consumers.
func (m *Manager) handleMessage(data []byte) {
	if isPong(data) {
		return
	}

	m.mu.Lock()
	m.lastMsg = data
	consumers := make([]func([]byte), len(m.consumers))
	copy(consumers, m.consumers)
	m.mu.Unlock()

	for _, fn := range consumers {
		fn(data)
	}
}

// isPong recognizes both the typed frame and the bare text form.
func isPong(data []byte) bool {
	if string(data) == "pong" || string(data) == `"pong"` {
		return true
	}
	var frame pingFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return false
	}
	return frame.Type == "pong"
}

// handleDisconnect marks the socket down and schedules the next
// attempt under the backoff policy.
func (m *Manager) handleDisconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return
	}
	m.dropConnLocked()
	if m.keepalive != nil {
		m.keepalive.Stop()
		m.keepalive = nil
	}

	if !m.enabled {
		return
	}
	m.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms the backoff timer for the next dial,
// unless the attempt cap is exhausted.
func (m *Manager) scheduleReconnectLocked(gen uint64) {
	if m.cfg.MaxReconnectAttempts > 0 && m.attempts >= m.cfg.MaxReconnectAttempts {
		logging.Warn().Int("attempts", m.attempts).Msg("reconnect attempts exhausted")
		return
	}

	delay := BackoffDelay(m.cfg.ReconnectDelay, m.attempts)
	m.attempts++
	logging.Info().Dur("delay", delay).Int("attempt", m.attempts).Msg("scheduling reconnect")

	m.reconnect = m.sched.AfterFunc(delay, func() {
		m.mu.Lock()
		stale := !m.enabled || m.gen != gen
		m.mu.Unlock()
		if stale {
			return
		}
		m.dial(gen)
	})
}

// scheduleKeepaliveLocked arms the next application-level ping. The
// timer re-arms itself for as long as the same connection stays open.
func (m *Manager) scheduleKeepaliveLocked(gen uint64) {
	m.keepalive = m.sched.AfterFunc(m.cfg.PingInterval, func() {
		m.mu.Lock()
		if m.gen != gen || !m.connected || m.conn == nil {
			m.mu.Unlock()
			return
		}
		conn := m.conn
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(pingFrame{Type: "ping"})
		if err == nil {
			m.scheduleKeepaliveLocked(gen)
		}
		m.mu.Unlock()
		if err != nil {
			logging.Debug().Err(err).Msg("keepalive write failed")
		}
	})
}

// BackoffDelay computes the reconnect delay for the given consecutive
// attempt count: base doubled per attempt, capped at 30s.
func BackoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultReconnectDelay
	}
	if attempts > 30 {
		attempts = 30
	}
	d := base << uint(attempts)
	if d <= 0 || d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}
