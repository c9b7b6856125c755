// Package session implements the broker's session state machine and the
// registry of live sessions.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-relay/backend/internal/logging"
	"github.com/agent-relay/backend/internal/metrics"
	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/workunit"
)

// EventType discriminates the events a session broadcasts.
type EventType string

const (
	// EventMessage carries one appended or updated chat message.
	EventMessage EventType = "message"

	// EventStateChanged carries a state transition.
	EventStateChanged EventType = "state_changed"

	// EventError carries a human-readable adapter failure.
	EventError EventType = "error"

	// EventClosed signals that the session reached its terminal state.
	EventClosed EventType = "closed"
)

// Event is one unit of session fan-out. Subscribers receive events
// synchronously, in exactly the order the session produced them.
type Event struct {
	Type      EventType
	SessionID string
	Message   *model.ChatMessage
	State     model.SessionState
	Error     string
}

// Subscriber is a delivery callback registered under a client ID.
// Callbacks run on the session's turn goroutine and must not block.
type Subscriber func(Event)

// Session owns one work unit's lifecycle: its state machine, its
// append-only message log, interrupt control, and its subscriber list.
// All mutation happens under the session's own mutex; events for one
// turn are produced by a single goroutine, so subscribers observe the
// work unit's increments without batching or reordering.
type Session struct {
	id        string
	name      string
	cwd       string
	createdAt time.Time
	adapter   workunit.Adapter

	mu          sync.Mutex
	state       model.SessionState
	messages    []model.ChatMessage
	subscribers map[string]Subscriber

	// cancel is non-nil only while state == busy.
	cancel context.CancelFunc

	// turn invalidates in-flight turn goroutines: each turn captures
	// the value at start and stops emitting once it no longer matches.
	turn uint64
}

// New constructs an idle session around the given adapter.
func New(id, name, cwd string, adapter workunit.Adapter) *Session {
	return &Session{
		id:          id,
		name:        name,
		cwd:         cwd,
		createdAt:   time.Now(),
		adapter:     adapter,
		state:       model.SessionStateIdle,
		subscribers: make(map[string]Subscriber),
	}
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session's display label.
func (s *Session) Name() string { return s.name }

// State returns the current state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns an immutable copy of the session's visible state.
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.SessionSnapshot {
	msgs := make([]model.ChatMessage, len(s.messages))
	copy(msgs, s.messages)
	return model.SessionSnapshot{
		ID:        s.id,
		Name:      s.name,
		Cwd:       s.cwd,
		State:     s.state,
		Messages:  msgs,
		CreatedAt: s.createdAt,
	}
}

// Summary returns the session's sessions_list entry.
func (s *Session) Summary() model.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionSummary{
		ID:          s.id,
		Name:        s.name,
		Cwd:         s.cwd,
		State:       s.state,
		Subscribers: len(s.subscribers),
		CreatedAt:   s.createdAt,
	}
}

// Subscribe registers callback under clientID and returns the snapshot
// taken atomically with the registration, so the caller misses no
// events between snapshot and first delivery. Subscribing twice under
// the same clientID replaces the prior callback.
func (s *Session) Subscribe(clientID string, callback Subscriber) model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[clientID] = callback
	return s.snapshotLocked()
}

// Unsubscribe removes clientID's callback. Unknown IDs are a no-op;
// disconnect races must never raise.
func (s *Session) Unsubscribe(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, clientID)
}

// SubscriberCount returns the number of registered subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// broadcastLocked delivers ev to every current subscriber. Callers hold
// s.mu, which serializes deliveries with state transitions.
func (s *Session) broadcastLocked(ev Event) {
	ev.SessionID = s.id
	for _, cb := range s.subscribers {
		cb(ev)
	}
	metrics.EventsBroadcast.Inc()
}

// Send starts one turn: it appends the user message, transitions to
// busy, and consumes the work unit's increment stream on a background
// goroutine, broadcasting every message update and state transition in
// order. A Send while busy is rejected with model.ErrSessionBusy; on a
// closed session it returns model.ErrSessionClosed.
func (s *Session) Send(content string) error {
	s.mu.Lock()

	switch s.state {
	case model.SessionStateDisconnected:
		s.mu.Unlock()
		return model.ErrSessionClosed
	case model.SessionStateBusy:
		s.mu.Unlock()
		return model.ErrSessionBusy
	}

	userMsg := model.ChatMessage{
		ID:        uuid.New().String(),
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
		Final:     true,
	}
	s.messages = append(s.messages, userMsg)
	s.broadcastLocked(Event{Type: EventMessage, Message: &userMsg})

	turnCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = model.SessionStateBusy
	gen := s.turn
	s.broadcastLocked(Event{Type: EventStateChanged, State: model.SessionStateBusy})
	s.mu.Unlock()

	go s.runTurn(turnCtx, gen, content)
	return nil
}

// runTurn drives one work unit invocation to completion.
func (s *Session) runTurn(ctx context.Context, gen uint64, content string) {
	stream, err := s.adapter.Start(ctx, content)
	if err != nil {
		s.finishTurn(gen, err)
		return
	}
	defer stream.Close()

	// The whole turn accumulates into a single assistant message id so
	// subscribers can render typing-style updates. Tool invocations
	// interleave as their own immediately-final messages.
	assistantID := uuid.New().String()
	accumulated := ""

	for {
		inc, err := stream.Next(ctx)
		if err != nil {
			if err == io.EOF {
				s.finishTurn(gen, nil)
			} else if ctx.Err() != nil {
				// Interrupted; interrupt() already restored idle.
				s.finishTurn(gen, nil)
			} else {
				s.finishTurn(gen, err)
			}
			return
		}

		if !s.applyIncrement(gen, assistantID, &accumulated, inc) {
			return
		}
	}
}

// applyIncrement folds one increment into the log and broadcasts it.
// Returns false when the turn has been invalidated by an interrupt or
// close.
func (s *Session) applyIncrement(gen uint64, assistantID string, accumulated *string, inc workunit.Increment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turn != gen || s.state != model.SessionStateBusy {
		return false
	}

	switch inc.Kind {
	case workunit.KindTextDelta:
		*accumulated = inc.Text
		msg := s.upsertAssistantLocked(assistantID, inc.Text, false)
		s.broadcastLocked(Event{Type: EventMessage, Message: &msg})

	case workunit.KindToolInvocation:
		if inc.Tool == nil {
			break
		}
		msg := model.ChatMessage{
			ID:        uuid.New().String(),
			Role:      model.RoleAssistant,
			Timestamp: time.Now(),
			ToolUse: &model.ToolUse{
				Name:   inc.Tool.Name,
				Input:  inc.Tool.Input,
				Output: inc.Tool.Output,
			},
			Final: true,
		}
		s.messages = append(s.messages, msg)
		s.broadcastLocked(Event{Type: EventMessage, Message: &msg})

	case workunit.KindResult:
		// The result is authoritative. Re-emit under the streaming id
		// only when it corrects the accumulated text; either way the
		// id is final from here on.
		if inc.Text != *accumulated {
			*accumulated = inc.Text
			msg := s.upsertAssistantLocked(assistantID, inc.Text, true)
			s.broadcastLocked(Event{Type: EventMessage, Message: &msg})
			break
		}
		for i := range s.messages {
			if s.messages[i].ID == assistantID {
				s.messages[i].Final = true
				break
			}
		}
	}
	return true
}

// upsertAssistantLocked replaces the streaming assistant message under
// id, appending it on first use, and returns a copy of the stored
// entry. A message already marked final is never touched again.
func (s *Session) upsertAssistantLocked(id, content string, final bool) model.ChatMessage {
	for i := range s.messages {
		if s.messages[i].ID == id {
			if !s.messages[i].Final {
				s.messages[i].Content = content
				s.messages[i].Final = final
			}
			return s.messages[i]
		}
	}
	msg := model.ChatMessage{
		ID:        id,
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Final:     final,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// finishTurn closes out a turn: nil err restores idle, a non-nil err
// records the failure and broadcasts it. Turns invalidated by interrupt
// or close are left alone.
func (s *Session) finishTurn(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turn != gen || s.state != model.SessionStateBusy {
		return
	}
	s.turn++
	s.cancel = nil

	if err != nil {
		s.state = model.SessionStateError
		metrics.AdapterFailures.Inc()
		logging.Error().Err(err).Str("session", s.id).Msg("work unit failed")
		s.broadcastLocked(Event{Type: EventError, Error: fmt.Sprintf("work unit failed: %v", err)})
		s.broadcastLocked(Event{Type: EventStateChanged, State: model.SessionStateError})
		return
	}

	s.state = model.SessionStateIdle
	s.broadcastLocked(Event{Type: EventStateChanged, State: model.SessionStateIdle})
}

// Interrupt cancels the in-flight turn, if any, and restores idle. It
// is a no-op when the session is not busy, is safe to call repeatedly,
// and never produces an error event: a user-initiated interrupt is not
// a failure. Subscribers see state_changed→idle and no further message
// events for the interrupted turn.
func (s *Session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.SessionStateBusy {
		return
	}
	s.cancel()
	s.cancel = nil
	s.turn++
	s.state = model.SessionStateIdle
	s.broadcastLocked(Event{Type: EventStateChanged, State: model.SessionStateIdle})
}

// Close transitions the session to its terminal state: it interrupts
// any in-flight work, notifies subscribers, and clears the subscriber
// set. Further transitions are rejected. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.SessionStateDisconnected {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.turn++
	s.state = model.SessionStateDisconnected
	s.broadcastLocked(Event{Type: EventClosed, State: model.SessionStateDisconnected})
	s.subscribers = make(map[string]Subscriber)
}
