package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"notifyhub/internal/metrics"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gorilla/websocket"
)

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time to write a frame to the peer
	PongWait       = 60 * time.Second    // no pong within this window = dead connection
	PingPeriod     = (PongWait * 9) / 10 // must be shorter than PongWait
	MaxMessageSize = 512                 // client frames are tiny subscribe/unsubscribe envelopes
	SendBufferSize = 64

	authorizeTimeout = 5 * time.Second
)

// Authorizer checks conversation membership before a subscription is accepted
type Authorizer interface {
	Authorize(ctx context.Context, conversationID, profileID string) error
}

// Client is one authenticated WebSocket connection. It may follow several conversations.
type Client struct {
	id          string
	UserID      string
	Conn        *websocket.Conn
	SendChannel chan []byte

	mux        *Multiplexer
	authorizer Authorizer
	logger     *slog.Logger

	// mu orders subscriptions against Close so a closed client never rejoins a room
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewClient(id, userID string, conn *websocket.Conn, mux *Multiplexer, authorizer Authorizer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:          id,
		UserID:      userID,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBufferSize),
		mux:         mux,
		authorizer:  authorizer,
		logger:      logger.With("client_id", id, "user_id", userID),
		done:        make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) HandleMessage(conversationID string, msg *models.Message) {
	f := newServerFrame(FrameMessage, conversationID)
	f.Message = msg
	c.send(f)
}

func (c *Client) HandleTyping(conversationID string, state *models.TypingState) {
	// no echo of the client's own typing indicator
	if state.ProfileID == c.UserID {
		return
	}
	f := newServerFrame(FrameTyping, conversationID)
	f.Typing = state
	c.send(f)
}

func (c *Client) HandleRead(conversationID string, receipt *models.ReadReceipt) {
	f := newServerFrame(FrameRead, conversationID)
	f.Read = receipt
	c.send(f)
}

// send never blocks the publisher. A full buffer drops the frame; clients
// resync from the REST history using after_seq.
func (c *Client) send(f *ServerFrame) {
	data, err := f.ToJSON()
	if err != nil {
		c.logger.Error("websocket_frame_marshal_failed", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.SendChannel <- data:
	default:
		c.logger.Warn("websocket_send_buffer_full", "conversation_id", f.ConversationID, "frame", f.Type)
	}
}

// handleFrame applies one client frame
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	frame, err := FrameFromJSON(data)
	if err != nil {
		c.send(newErrorFrame("", err.Error()))
		return
	}

	switch frame.Type {
	case FrameSubscribe:
		actx, cancel := context.WithTimeout(ctx, authorizeTimeout)
		err := c.authorizer.Authorize(actx, frame.ConversationID, c.UserID)
		cancel()
		if err != nil {
			c.send(newErrorFrame(frame.ConversationID, subscribeError(err)))
			return
		}
		if !c.subscribe(frame.ConversationID) {
			return
		}
		c.send(newServerFrame(FrameSubscribed, frame.ConversationID))
	case FrameUnsubscribe:
		c.mux.Unsubscribe(frame.ConversationID, c)
		c.send(newServerFrame(FrameUnsubscribed, frame.ConversationID))
	}
}

func (c *Client) subscribe(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.mux.Subscribe(conversationID, c)
	return true
}

func subscribeError(err error) string {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, service.ErrInvalidInput):
		return "invalid conversation id"
	default:
		return "subscription failed"
	}
}

// ReadPump reads client frames until the connection fails, then tears the client down
func (c *Client) ReadPump(ctx context.Context) {
	defer c.Close()

	c.Conn.SetReadLimit(MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket_read_failed", "error", err)
			}
			return
		}
		c.handleFrame(ctx, data)
	}
}

// WritePump drains SendChannel to the connection and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case data := <-c.SendChannel:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close unsubscribes the client everywhere and stops the write pump. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.mux.UnsubscribeAll(c)
	close(c.done)
	metrics.WebsocketConnections.Dec()
	c.logger.Info("websocket_disconnected")
}
