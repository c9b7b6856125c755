package main

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/agent-relay/backend/internal/events"
	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/ws"
)

func newTestView() (*events.Router, *view, chan string) {
	ui := &view{state: model.SessionStateIdle}
	router := events.NewRouter()
	router.SetCatchAll(ui.refreshStatus)
	attached := make(chan string, 1)
	subscribeFrames(router, ui, attached)
	return router, ui, attached
}

func dispatchFrame(t *testing.T, router *events.Router, frame ws.Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	router.Dispatch(events.Envelope{Event: string(frame.Type), Data: data})
}

func TestViewFollowsRoutedFrames(t *testing.T) {
	router, ui, attached := newTestView()

	dispatchFrame(t, router, ws.Frame{Type: ws.FrameTypeSessionCreated, SessionID: "s1", Name: "Work"})

	select {
	case id := <-attached:
		if id != "s1" {
			t.Fatalf("attached to wrong session %q", id)
		}
	default:
		t.Fatal("session_created should signal attachment")
	}
	if ui.session() != "s1" {
		t.Fatalf("view should track the created session, got %q", ui.session())
	}
	if ui.statusLine() != "session s1 state=idle" {
		t.Errorf("catch-all should have refreshed the status, got %q", ui.statusLine())
	}

	dispatchFrame(t, router, ws.Frame{Type: ws.FrameTypeStateChanged, SessionID: "s1", State: model.SessionStateBusy})
	if ui.statusLine() != "session s1 state=busy" {
		t.Errorf("status should follow state transitions, got %q", ui.statusLine())
	}

	// Closing an unrelated session leaves the attachment alone.
	dispatchFrame(t, router, ws.Frame{Type: ws.FrameTypeSessionClosed, SessionID: "other"})
	if ui.session() != "s1" {
		t.Errorf("unrelated close must not detach, got %q", ui.session())
	}

	dispatchFrame(t, router, ws.Frame{Type: ws.FrameTypeSessionClosed, SessionID: "s1"})
	if ui.session() != "" {
		t.Errorf("closing the attached session should detach, got %q", ui.session())
	}
	if ui.statusLine() != "not attached" {
		t.Errorf("status should reflect detachment, got %q", ui.statusLine())
	}
}

func TestViewResumeViaSessionState(t *testing.T) {
	router, ui, attached := newTestView()

	dispatchFrame(t, router, ws.Frame{
		Type:      ws.FrameTypeSessionState,
		SessionID: "s2",
		State:     model.SessionStateBusy,
	})

	select {
	case id := <-attached:
		if id != "s2" {
			t.Fatalf("attached to wrong session %q", id)
		}
	default:
		t.Fatal("session_state should signal attachment")
	}
	if ui.session() != "s2" || ui.statusLine() != "session s2 state=busy" {
		t.Errorf("view should adopt the resumed snapshot, got %q / %q", ui.session(), ui.statusLine())
	}
}
