package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakeScheduler captures scheduled callbacks so tests can fire timers
// deterministically instead of waiting on the wall clock.
type fakeScheduler struct {
	calls chan scheduledCall
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	f.stopped = true
	return true
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{calls: make(chan scheduledCall, 32)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	s.calls <- scheduledCall{delay: d, fn: fn}
	return &fakeTimer{}
}

// next returns the next scheduled callback or fails the test.
func (s *fakeScheduler) next(t *testing.T) scheduledCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled timer")
		return scheduledCall{}
	}
}

func (s *fakeScheduler) assertNothingScheduled(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case call := <-s.calls:
		t.Fatalf("unexpected timer scheduled with delay %v", call.delay)
	case <-time.After(window):
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second

	tests := []struct {
		name     string
		base     time.Duration
		attempts int
		want     time.Duration
	}{
		{"first attempt uses the base", base, 0, time.Second},
		{"second attempt doubles", base, 1, 2 * time.Second},
		{"third attempt doubles again", base, 2, 4 * time.Second},
		{"fifth attempt still below cap", base, 4, 16 * time.Second},
		{"sixth attempt hits the cap", base, 5, 30 * time.Second},
		{"large attempt counts stay capped", base, 50, 30 * time.Second},
		{"zero base falls back to the default", 0, 1, 2 * time.Second},
		{"sub-second base doubles normally", 500 * time.Millisecond, 1, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffDelay(tt.base, tt.attempts); got != tt.want {
				t.Errorf("BackoffDelay(%v, %d) = %v, want %v", tt.base, tt.attempts, got, tt.want)
			}
		})
	}
}

// For any attempt count the delay never exceeds the cap, and delays
// never decrease as attempts grow.
func TestBackoffDelayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delay is bounded by the cap", prop.ForAll(
		func(attempts int) bool {
			d := BackoffDelay(time.Second, attempts)
			return d > 0 && d <= maxReconnectDelay
		},
		gen.IntRange(0, 1000),
	))

	properties.Property("delay is non-decreasing in attempts", prop.ForAll(
		func(attempts int) bool {
			return BackoffDelay(time.Second, attempts) <= BackoffDelay(time.Second, attempts+1)
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestIsPong(t *testing.T) {
	pongs := []string{`pong`, `"pong"`, `{"type":"pong"}`}
	for _, data := range pongs {
		if !isPong([]byte(data)) {
			t.Errorf("%q should be recognized as a keepalive echo", data)
		}
	}

	notPongs := []string{`{"type":"message"}`, `{"type":"ping"}`, `{}`, `not json`, ``}
	for _, data := range notPongs {
		if isPong([]byte(data)) {
			t.Errorf("%q should not be treated as a keepalive echo", data)
		}
	}
}

func TestHandleMessage(t *testing.T) {
	t.Run("pong frames are swallowed", func(t *testing.T) {
		m := New(Config{URL: "ws://unused"})
		m.OnMessage(func([]byte) {
			t.Error("consumer should not see keepalive echoes")
		})

		m.handleMessage([]byte(`{"type":"pong"}`))
		m.handleMessage([]byte(`pong`))

		if m.LastMessage() != nil {
			t.Error("keepalive echoes must not become the last message")
		}
	})

	t.Run("real frames reach every consumer", func(t *testing.T) {
		m := New(Config{URL: "ws://unused"})
		var got []string
		m.OnMessage(func(data []byte) { got = append(got, string(data)) })
		m.OnMessage(func(data []byte) { got = append(got, string(data)) })

		payload := `{"type":"message","content":"hi"}`
		m.handleMessage([]byte(payload))

		if len(got) != 2 || got[0] != payload || got[1] != payload {
			t.Fatalf("expected both consumers to receive the frame, got %v", got)
		}
		if string(m.LastMessage()) != payload {
			t.Errorf("last message not recorded, got %q", m.LastMessage())
		}
	})
}

func TestSendMessage_DroppedWhenDisconnected(t *testing.T) {
	m := New(Config{URL: "ws://127.0.0.1:1"})

	// Never connected: sends are dropped, not queued, and must not
	// panic.
	m.SendMessage(map[string]string{"type": "chat", "content": "hi"})

	if m.IsConnected() {
		t.Error("manager should not report connected before Start")
	}
}

func TestReconnectBackoffSequence(t *testing.T) {
	sched := newFakeScheduler()
	m := New(Config{
		URL:            "ws://127.0.0.1:1", // nothing listens here
		ReconnectDelay: time.Second,
		Scheduler:      sched,
	})
	defer m.Close()

	m.Start()

	// Each failed dial schedules the next attempt with a doubled delay.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, wantDelay := range want {
		call := sched.next(t)
		if call.delay != wantDelay {
			t.Fatalf("attempt %d: scheduled delay %v, want %v", i, call.delay, wantDelay)
		}
		call.fn()
	}

	if m.ReconnectAttempts() < len(want) {
		t.Errorf("expected at least %d recorded attempts, got %d", len(want), m.ReconnectAttempts())
	}
}

func TestReconnectAttemptCap(t *testing.T) {
	sched := newFakeScheduler()
	m := New(Config{
		URL:                  "ws://127.0.0.1:1",
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 2,
		Scheduler:            sched,
	})
	defer m.Close()

	m.Start()

	sched.next(t).fn()
	sched.next(t).fn()

	// Cap reached: the third failure schedules nothing.
	sched.assertNothingScheduled(t, 200*time.Millisecond)
}

func TestCloseCancelsScheduledWork(t *testing.T) {
	sched := newFakeScheduler()
	m := New(Config{
		URL:            "ws://127.0.0.1:1",
		ReconnectDelay: time.Second,
		Scheduler:      sched,
	})

	m.Start()
	call := sched.next(t)

	m.Close()

	// Firing the stale timer after Close must not schedule anything new.
	call.fn()
	sched.assertNothingScheduled(t, 200*time.Millisecond)
}

func TestReconnectResetsBackoff(t *testing.T) {
	sched := newFakeScheduler()
	m := New(Config{
		URL:            "ws://127.0.0.1:1",
		ReconnectDelay: time.Second,
		Scheduler:      sched,
	})
	defer m.Close()

	m.Start()
	sched.next(t).fn()
	sched.next(t) // second attempt pending with doubled delay

	m.Reconnect()

	// Forced reconnect dials immediately; its failure schedules with
	// the base delay again.
	call := sched.next(t)
	if call.delay != time.Second {
		t.Errorf("after manual reconnect expected base delay, got %v", call.delay)
	}
}

// testBrokerServer is a minimal ws endpoint that answers keepalive pings
// and lets the test push frames to the client.
type testBrokerServer struct {
	srv   *httptest.Server
	pings chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newTestBrokerServer(t *testing.T) *testBrokerServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	s := &testBrokerServer{pings: make(chan struct{}, 8)}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame pingFrame
			if json.Unmarshal(data, &frame) == nil && frame.Type == "ping" {
				s.pings <- struct{}{}
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testBrokerServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *testBrokerServer) push(t *testing.T, payload string) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func waitConnected(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !m.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("manager never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerAgainstLiveServer(t *testing.T) {
	server := newTestBrokerServer(t)
	sched := newFakeScheduler()

	m := New(Config{
		URL:          server.url(),
		PingInterval: 30 * time.Second,
		Scheduler:    sched,
	})
	defer m.Close()

	frames := make(chan string, 8)
	m.OnMessage(func(data []byte) { frames <- string(data) })

	m.Start()
	waitConnected(t, m)

	t.Run("keepalive ping is sent when the timer fires", func(t *testing.T) {
		call := sched.next(t)
		if call.delay != 30*time.Second {
			t.Fatalf("keepalive scheduled with %v, want 30s", call.delay)
		}
		call.fn()

		select {
		case <-server.pings:
		case <-time.After(2 * time.Second):
			t.Fatal("server never received the keepalive ping")
		}

		// A successful ping re-arms the timer.
		if next := sched.next(t); next.delay != 30*time.Second {
			t.Fatalf("keepalive re-armed with %v, want 30s", next.delay)
		}
	})

	t.Run("pong replies never reach consumers", func(t *testing.T) {
		server.push(t, `{"type":"message","content":"real"}`)

		select {
		case got := <-frames:
			if !strings.Contains(got, "real") {
				t.Fatalf("unexpected frame %q", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("consumer never received the pushed frame")
		}

		select {
		case got := <-frames:
			t.Fatalf("pong should have been swallowed, consumer got %q", got)
		case <-time.After(100 * time.Millisecond):
		}
	})
}
