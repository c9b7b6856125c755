package ws

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agent-relay/backend/internal/logging"
	"github.com/agent-relay/backend/internal/metrics"
	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SetCheckOrigin sets a custom origin checker for the WebSocket
// upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// Gateway terminates WebSocket connections, decodes the wire protocol,
// and routes frames to the session registry. It never mutates session
// state directly, only invokes session methods; a disconnect triggers
// exactly one subscription sweep.
type Gateway struct {
	manager *session.Manager
}

// NewGateway creates a gateway over the given registry.
func NewGateway(manager *session.Manager) *Gateway {
	return &Gateway{manager: manager}
}

// HandleConnection upgrades the request and serves the connection until
// the peer goes away. Sessions the client created keep running after
// the disconnect, which is what makes reconnect-and-resume work.
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(uuid.New().String(), conn)
	metrics.ConnectedClients.Inc()

	client.SendFrame(&Frame{Type: FrameTypeConnected, ClientID: client.ClientID()})

	go g.writePump(client)
	go g.readPump(client)

	return nil
}

// readPump pumps frames from the connection into the router.
func (g *Gateway) readPump(client *Client) {
	defer func() {
		g.manager.UnsubscribeClient(client.ClientID())
		client.Close()
		client.Conn().Close()
		metrics.ConnectedClients.Dec()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client", client.ClientID()).Msg("websocket read error")
			}
			return
		}
		g.HandleFrame(client, data)
	}
}

// writePump pumps queued frames onto the connection and keeps the
// transport alive with protocol-level pings.
func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case data, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per WebSocket message so JSON.parse works on
			// the other end.
			if err := client.Conn().WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleFrame decodes and routes one inbound frame. Malformed JSON and
// unrecognized types yield an error frame to the offending connection
// only; they never affect other clients.
func (g *Gateway) HandleFrame(client *Client, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.FramesRejected.Inc()
		client.SendFrame(&Frame{Type: FrameTypeError, Error: "invalid JSON frame"})
		return
	}

	switch frame.Type {
	case FrameTypePing:
		client.SendFrame(&Frame{Type: FrameTypePong})
	case FrameTypeCreateSession:
		g.handleCreateSession(client, &frame)
	case FrameTypeChat:
		g.handleChat(client, &frame)
	case FrameTypeInterrupt:
		g.handleInterrupt(client, &frame)
	case FrameTypeSubscribe:
		g.handleSubscribe(client, &frame)
	case FrameTypeListSessions:
		g.handleListSessions(client)
	case FrameTypeCloseSession:
		g.handleCloseSession(client, &frame)
	default:
		metrics.FramesRejected.Inc()
		client.SendFrame(&Frame{Type: FrameTypeError, Error: "unrecognized frame type: " + string(frame.Type)})
	}
}

// subscriber adapts session events into frames on the client's queue.
func subscriber(client *Client) session.Subscriber {
	return func(ev session.Event) {
		switch ev.Type {
		case session.EventMessage:
			client.SendFrame(&Frame{Type: FrameTypeMessage, SessionID: ev.SessionID, Message: ev.Message})
		case session.EventStateChanged:
			client.SendFrame(&Frame{Type: FrameTypeStateChanged, SessionID: ev.SessionID, State: ev.State})
		case session.EventError:
			client.SendFrame(&Frame{Type: FrameTypeError, SessionID: ev.SessionID, Error: ev.Error})
		case session.EventClosed:
			client.SendFrame(&Frame{Type: FrameTypeSessionClosed, SessionID: ev.SessionID})
		}
	}
}

// handleCreateSession registers a new session and auto-subscribes the
// requesting connection in the same operation, so the creator never
// misses the first events of their own session.
func (g *Gateway) handleCreateSession(client *Client, frame *Frame) {
	sess, err := g.manager.Create(&model.CreateSessionRequest{
		Name:    frame.Name,
		Cwd:     frame.Cwd,
		Context: frame.Context,
	})
	if err != nil {
		client.SendFrame(&Frame{Type: FrameTypeError, Error: err.Error()})
		return
	}

	sess.Subscribe(client.ClientID(), subscriber(client))
	client.SendFrame(&Frame{Type: FrameTypeSessionCreated, SessionID: sess.ID(), Name: sess.Name()})

	if frame.Prompt != "" {
		if err := sess.Send(frame.Prompt); err != nil {
			client.SendFrame(&Frame{Type: FrameTypeError, SessionID: sess.ID(), Error: err.Error()})
		}
	}

	logging.Info().Str("session", sess.ID()).Str("client", client.ClientID()).Msg("session created")
}

func (g *Gateway) handleChat(client *Client, frame *Frame) {
	sess, ok := g.manager.Get(frame.SessionID)
	if !ok {
		client.SendFrame(&Frame{Type: FrameTypeError, SessionID: frame.SessionID, Error: model.ErrSessionNotFound.Error()})
		return
	}

	if err := sess.Send(frame.Content); err != nil {
		client.SendFrame(&Frame{Type: FrameTypeError, SessionID: frame.SessionID, Error: err.Error()})
	}
}

func (g *Gateway) handleInterrupt(client *Client, frame *Frame) {
	sess, ok := g.manager.Get(frame.SessionID)
	if !ok {
		client.SendFrame(&Frame{Type: FrameTypeError, SessionID: frame.SessionID, Error: model.ErrSessionNotFound.Error()})
		return
	}
	sess.Interrupt()
}

// handleSubscribe registers the connection and replies with a full
// session_state snapshot. An unknown session id is reported, not
// silently dropped: the caller needs to know the session is gone.
func (g *Gateway) handleSubscribe(client *Client, frame *Frame) {
	sess, ok := g.manager.Get(frame.SessionID)
	if !ok {
		client.SendFrame(&Frame{Type: FrameTypeError, SessionID: frame.SessionID, Error: model.ErrSessionNotFound.Error()})
		return
	}

	snap := sess.Subscribe(client.ClientID(), subscriber(client))
	client.SendFrame(&Frame{
		Type:      FrameTypeSessionState,
		SessionID: snap.ID,
		Name:      snap.Name,
		State:     snap.State,
		Messages:  snap.Messages,
	})
}

func (g *Gateway) handleListSessions(client *Client) {
	sessions := g.manager.List()
	summaries := make([]model.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sess.Summary())
	}
	client.SendFrame(&Frame{Type: FrameTypeSessionsList, Sessions: summaries})
}

// handleCloseSession closes the session. Subscribers get the
// session_closed broadcast; the requester gets a direct reply as well
// in case it was not subscribed. Unknown ids are a no-op on the
// registry but still acknowledged.
func (g *Gateway) handleCloseSession(client *Client, frame *Frame) {
	g.manager.Close(frame.SessionID)
	client.SendFrame(&Frame{Type: FrameTypeSessionClosed, SessionID: frame.SessionID})
}
