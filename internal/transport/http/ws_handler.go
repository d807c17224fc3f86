package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/domain"
)

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

type WSHandler struct {
	registry *app.SessionRegistry
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewWSHandler(registry *app.SessionRegistry, config ConnectionConfig) *WSHandler {
	return &WSHandler{
		registry: registry,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

type inboundMessage struct {
	Type    domain.MessageType `json:"type"`
	Payload json.RawMessage    `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and routes client messages into the
// session registry. The connection id is the participant id.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newClient(uuid.NewString(), conn, h.config)
	c.log.Info().Str("remote", r.RemoteAddr).Msg("participant connected")
	go c.writePump()

	defer func() {
		h.registry.Disconnect(c.id)
		c.close()
		<-c.done
		c.log.Info().Msg("participant disconnected")
	}()

	conn.SetReadLimit(h.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))

		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			c.Send(domain.NewError("invalid message"))
			continue
		}
		h.dispatch(c, inbound)
	}
}

func (h *WSHandler) dispatch(c *client, inbound inboundMessage) {
	switch inbound.Type {
	case domain.MsgJoinQueue:
		_ = h.registry.JoinQueue(app.NewParticipant(c.id, c))
	case domain.MsgLeaveQueue:
		h.registry.LeaveQueue(c.id)
	case domain.MsgSubmitAnswer:
		var payload domain.SubmitAnswer
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Answer == nil {
			c.Send(domain.NewError("invalid answer payload"))
			return
		}
		if _, err := h.registry.SubmitAnswer(c.id, *payload.Answer); err != nil {
			// stale or out-of-duel answers are dropped silently
			if !errors.Is(err, domain.ErrSessionNotFound) {
				c.log.Debug().Err(err).Msg("answer ignored")
			}
		}
	default:
		c.Send(domain.NewError("unsupported message type"))
	}
}

// client is the server side of one websocket connection and implements app.Channel.
// All writes go through the writer goroutine to avoid concurrent writes on conn.
type client struct {
	id     string
	conn   *websocket.Conn
	config ConnectionConfig
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	send   chan domain.Message
	done   chan struct{}
}

func newClient(id string, conn *websocket.Conn, config ConnectionConfig) *client {
	buffer := config.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &client{
		id:     id,
		conn:   conn,
		config: config,
		log:    log.With().Str("participant_id", id).Logger(),
		send:   make(chan domain.Message, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues msg without blocking; messages for a full or closed connection are dropped.
func (c *client) Send(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("type", string(msg.Type)).Msg("send buffer full, dropping message")
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump closes the connection on exit, which also unblocks the read loop.
func (c *client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Error().Err(err).Msg("ws write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error().Err(err).Msg("ws ping error")
				return
			}
		}
	}
}
