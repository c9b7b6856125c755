// Command client is a minimal terminal client for the broker. It keeps
// a resilient connection to the server, routes every inbound frame
// through the event router into a local view of broker state, forwards
// stdin lines as chat turns, and prints every event it receives.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/agent-relay/backend/internal/client"
	"github.com/agent-relay/backend/internal/config"
	"github.com/agent-relay/backend/internal/events"
	"github.com/agent-relay/backend/internal/logging"
	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/ws"
)

// view is the client's local picture of broker state, kept in sync by
// the event router's listeners and consistency actions.
type view struct {
	mu        sync.Mutex
	sessionID string
	state     model.SessionState
	status    string
}

func (v *view) setSession(id string, state model.SessionState) {
	v.mu.Lock()
	v.sessionID = id
	v.state = state
	v.mu.Unlock()
}

func (v *view) setState(state model.SessionState) {
	v.mu.Lock()
	v.state = state
	v.mu.Unlock()
}

// clearIfCurrent detaches when the closed session is the attached one.
func (v *view) clearIfCurrent(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sessionID != id {
		return false
	}
	v.sessionID = ""
	v.state = model.SessionStateDisconnected
	return true
}

func (v *view) session() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionID
}

// refreshStatus recomputes the aggregate status line from the current
// fields. Idempotent; installed as the router's catch-all so the line
// stays consistent no matter which per-event listener ran.
func (v *view) refreshStatus() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sessionID == "" {
		v.status = "not attached"
		return
	}
	v.status = fmt.Sprintf("session %s state=%s", v.sessionID, v.state)
}

func (v *view) statusLine() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	sessionID := flag.String("session", "", "session id to subscribe to (created when empty)")
	cwd := flag.String("cwd", ".", "working directory for a newly created session")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console"})

	conn := client.New(client.Config{
		URL:                  cfg.Client.URL,
		ReconnectDelay:       cfg.Client.ReconnectDelay,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		PingInterval:         cfg.Client.PingInterval,
	})
	defer conn.Close()

	ui := &view{state: model.SessionStateIdle}
	router := events.NewRouter()

	// Attaching is the built-in synchronization action for "connected":
	// it runs before any listener and is safe to repeat on every
	// reconnect, since subscribing again simply replaces the callback
	// server-side.
	router.RegisterAction(string(ws.FrameTypeConnected), func() {
		switch {
		case *sessionID != "":
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeSubscribe, SessionID: *sessionID})
		case ui.session() != "":
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeSubscribe, SessionID: ui.session()})
		default:
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeCreateSession, Cwd: *cwd})
		}
	})
	router.SetCatchAll(ui.refreshStatus)

	// attached is signalled once a session id is known; buffered so
	// listeners never block the read goroutine.
	attached := make(chan string, 1)
	subscribeFrames(router, ui, attached)

	conn.OnMessage(func(data []byte) {
		var frame ws.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		router.Dispatch(events.Envelope{Event: string(frame.Type), Data: data})
	})

	conn.Start()

	current := <-attached
	fmt.Printf("attached to session %s. type to chat, /interrupt to stop a turn, /quit to exit\n", current)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/interrupt":
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeInterrupt, SessionID: ui.session()})
		case line == "/sessions":
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeListSessions})
		case line == "/status":
			fmt.Printf("-- %s\n", ui.statusLine())
		default:
			conn.SendMessage(ws.Frame{Type: ws.FrameTypeChat, SessionID: ui.session(), Content: line})
		}
	}
}

// subscribeFrames registers the per-frame listeners that keep the view
// current and print incoming events.
func subscribeFrames(router *events.Router, ui *view, attached chan string) {
	on := func(t ws.FrameType, fn func(frame *ws.Frame)) {
		router.Subscribe(string(t), func(data json.RawMessage) {
			var frame ws.Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				return
			}
			fn(&frame)
		})
	}

	notifyAttached := func(id string) {
		select {
		case attached <- id:
		default:
		}
	}

	on(ws.FrameTypeSessionCreated, func(f *ws.Frame) {
		ui.setSession(f.SessionID, model.SessionStateIdle)
		notifyAttached(f.SessionID)
	})

	on(ws.FrameTypeSessionState, func(f *ws.Frame) {
		ui.setSession(f.SessionID, f.State)
		notifyAttached(f.SessionID)
		for _, msg := range f.Messages {
			printMessage(&msg)
		}
	})

	on(ws.FrameTypeMessage, func(f *ws.Frame) {
		if f.Message != nil {
			printMessage(f.Message)
		}
	})

	on(ws.FrameTypeStateChanged, func(f *ws.Frame) {
		ui.setState(f.State)
		fmt.Printf("-- state: %s\n", f.State)
	})

	on(ws.FrameTypeError, func(f *ws.Frame) {
		fmt.Printf("-- error: %s\n", f.Error)
	})

	on(ws.FrameTypeSessionsList, func(f *ws.Frame) {
		for _, s := range f.Sessions {
			fmt.Printf("-- session %s (%s) state=%s subscribers=%d\n", s.ID, s.Name, s.State, s.Subscribers)
		}
	})

	on(ws.FrameTypeSessionClosed, func(f *ws.Frame) {
		if ui.clearIfCurrent(f.SessionID) {
			fmt.Printf("-- attached session closed: %s\n", f.SessionID)
			return
		}
		fmt.Printf("-- session closed: %s\n", f.SessionID)
	})
}

func printMessage(msg *model.ChatMessage) {
	if msg.ToolUse != nil {
		fmt.Printf("[%s] tool %s(%s)\n", msg.Role, msg.ToolUse.Name, msg.ToolUse.Input)
		return
	}
	fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
}
