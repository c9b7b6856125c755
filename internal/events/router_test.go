package events

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestRouter_Dispatch(t *testing.T) {
	t.Run("action runs before listeners", func(t *testing.T) {
		r := NewRouter()
		var order []string

		r.RegisterAction("session_created", func() { order = append(order, "action") })
		r.Subscribe("session_created", func(json.RawMessage) { order = append(order, "listener") })

		r.Dispatch(Envelope{Event: "session_created"})

		if len(order) != 2 || order[0] != "action" || order[1] != "listener" {
			t.Fatalf("expected action before listener, got %v", order)
		}
	})

	t.Run("listener receives the data payload", func(t *testing.T) {
		r := NewRouter()
		var got string
		r.Subscribe("message", func(data json.RawMessage) {
			var payload struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				t.Errorf("payload should parse: %v", err)
				return
			}
			got = payload.Content
		})

		r.HandleMessage([]byte(`{"event":"message","data":{"content":"hello"}}`))

		if got != "hello" {
			t.Errorf("expected payload content hello, got %q", got)
		}
	})

	t.Run("unknown event with no registrations is harmless", func(t *testing.T) {
		r := NewRouter()
		r.Dispatch(Envelope{Event: "never_registered"})
	})

	t.Run("empty event name is dropped", func(t *testing.T) {
		r := NewRouter()
		called := false
		r.SetCatchAll(func() { called = true })

		r.Dispatch(Envelope{})

		if called {
			t.Error("empty event must not trigger the catch-all")
		}
	})
}

func TestRouter_CatchAll(t *testing.T) {
	t.Run("runs after normal events", func(t *testing.T) {
		r := NewRouter()
		var order []string
		r.RegisterAction("state_changed", func() { order = append(order, "action") })
		r.SetCatchAll(func() { order = append(order, "catchall") })

		r.Dispatch(Envelope{Event: "state_changed"})

		if len(order) != 2 || order[1] != "catchall" {
			t.Fatalf("catch-all should run last, got %v", order)
		}
	})

	t.Run("skipped for refresh", func(t *testing.T) {
		r := NewRouter()
		called := false
		r.SetCatchAll(func() { called = true })

		r.Dispatch(Envelope{Event: "refresh"})

		if called {
			t.Error("refresh must not re-trigger the catch-all")
		}
	})
}

func TestRouter_PanicIsolation(t *testing.T) {
	r := NewRouter()
	var survived []string

	r.Subscribe("message", func(json.RawMessage) { panic("listener bug") })
	r.Subscribe("message", func(json.RawMessage) { survived = append(survived, "second") })

	r.Dispatch(Envelope{Event: "message"})
	if len(survived) != 1 {
		t.Fatal("a panicking listener must not starve its peers")
	}

	// Dispatch keeps working for later frames.
	r.Dispatch(Envelope{Event: "message"})
	if len(survived) != 2 {
		t.Error("dispatch should survive listener panics")
	}
}

func TestRouter_Subscribe(t *testing.T) {
	t.Run("unsubscribe stops delivery and is idempotent", func(t *testing.T) {
		r := NewRouter()
		count := 0
		unsubscribe := r.Subscribe("message", func(json.RawMessage) { count++ })

		r.Dispatch(Envelope{Event: "message"})
		unsubscribe()
		unsubscribe()
		r.Dispatch(Envelope{Event: "message"})

		if count != 1 {
			t.Errorf("expected exactly 1 delivery, got %d", count)
		}
	})

	t.Run("unsubscribing one listener leaves the others", func(t *testing.T) {
		r := NewRouter()
		var first, second int
		un1 := r.Subscribe("message", func(json.RawMessage) { first++ })
		r.Subscribe("message", func(json.RawMessage) { second++ })

		un1()
		r.Dispatch(Envelope{Event: "message"})

		if first != 0 || second != 1 {
			t.Errorf("expected only the remaining listener to fire, got first=%d second=%d", first, second)
		}
	})
}

func TestRouter_HandleMessage_Malformed(t *testing.T) {
	r := NewRouter()
	called := false
	r.SetCatchAll(func() { called = true })

	for _, raw := range []string{`not json`, `42`, `"string"`, ``} {
		r.HandleMessage([]byte(raw))
	}

	if called {
		t.Error("malformed frames must be ignored entirely")
	}
}
