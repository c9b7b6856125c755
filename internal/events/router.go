// Package events routes broker frames to application state stores,
// decoupling the stores from transport details. Each recognized event
// first triggers a fixed state-synchronization action, then any
// externally registered listeners.
package events

import (
	"sync"

	"github.com/goccy/go-json"

	"github.com/agent-relay/backend/internal/logging"
)

// Listener receives the data payload of a routed event.
type Listener func(data json.RawMessage)

// Action is a built-in state-synchronization step, typically an
// idempotent refresh of one state slice. Actions may run any number of
// times safely.
type Action func()

// Envelope is the {event, data} wire shape the router understands.
// Frames that do not parse into it are ignored.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Router dispatches inbound envelopes. Built-in actions run before
// external listeners and never depend on listener presence or
// ordering; a panicking listener cannot starve its peers or corrupt
// dispatch for later frames.
type Router struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]Listener
	actions   map[string]Action
	catchAll  Action
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		listeners: make(map[string]map[int]Listener),
		actions:   make(map[string]Action),
	}
}

// RegisterAction installs the built-in synchronization action for an
// event type, replacing any prior one.
func (r *Router) RegisterAction(event string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[event] = action
}

// SetCatchAll installs the consistency action that runs after every
// non-"refresh" event, keeping aggregate state eventually consistent
// even when the per-event action only updated one slice.
func (r *Router) SetCatchAll(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catchAll = action
}

// Subscribe registers a listener for an event type and returns its
// unsubscribe function. Multiple independent listeners per type are
// supported; unsubscribing twice is a no-op.
func (r *Router) Subscribe(event string, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.listeners[event]
	if !ok {
		set = make(map[int]Listener)
		r.listeners[event] = set
	}
	id := r.nextID
	r.nextID++
	set[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.listeners[event]; ok {
			delete(set, id)
		}
	}
}

// HandleMessage routes one raw frame. Frames that are not well-formed
// {event, data} envelopes are ignored.
func (r *Router) HandleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	r.Dispatch(env)
}

// Dispatch runs the built-in action, then the listeners, then the
// catch-all consistency action.
func (r *Router) Dispatch(env Envelope) {
	if env.Event == "" {
		return
	}

	r.mu.Lock()
	action := r.actions[env.Event]
	catchAll := r.catchAll
	var listeners []Listener
	for _, fn := range r.listeners[env.Event] {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	if action != nil {
		action()
	}

	for _, fn := range listeners {
		safeInvoke(env.Event, fn, env.Data)
	}

	if env.Event != "refresh" && catchAll != nil {
		catchAll()
	}
}

// safeInvoke isolates listener panics so one listener cannot prevent
// the others from running.
func safeInvoke(event string, fn Listener, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Str("event", event).Interface("panic", rec).Msg("event listener panicked")
		}
	}()
	fn(data)
}
