// Package server manages individual WebSocket connections, handling the
// read/write pumps and the event protocol for each one.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var validate = validator.New()

// Client represents one live connection to the relay. A connection is open
// from accept until its read pump exits; after that no further events from
// it are processed.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	closed bool
	log    *slog.Logger
}

// NewClient wraps a WebSocket connection with a freshly assigned connection
// id. The send channel is buffered so one slow reader does not stall the
// broadcast loop.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	id := uuid.NewString()
	if conn != nil && hub.maxMessageSize > 0 {
		conn.SetReadLimit(hub.maxMessageSize)
	}

	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    hub,
		addr:   addr,
		closed: false,
		log:    hub.log.With(slog.String("connection_id", id)),
	}
}

// ID returns the opaque connection identifier assigned at accept time.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing events.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.log.Warn("error setting initial read deadline", slog.Any("error", err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", slog.Any("error", err))
		}
		return nil
	})
}

// handleReadError logs the error appropriately and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("incoming frame exceeded maximum size", slog.Int64("limit", c.hub.maxMessageSize))
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("client disconnected", slog.Any("error", err))
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("connection closed", slog.Any("error", err))
		return true
	}

	c.log.Warn("websocket read error", slog.Any("error", err))
	return true
}

// dispatchEvent decodes an inbound envelope and routes it to its handler.
// Anything that fails to decode or validate is logged and dropped; the
// sending client gets no error signal.
func (c *Client) dispatchEvent(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("dropping undecodable event", slog.Any("error", err))
		return
	}

	switch env.Event {
	case EventJoin:
		c.handleJoin(env.Data)
	case EventSendMessage:
		c.handleSendMessage(env.Data)
	default:
		c.log.Debug("ignoring unknown event", slog.String("event", env.Event))
	}
}

// handleJoin records the announced display name. Re-announcing silently
// overwrites the previous name. No acknowledgment is sent.
func (c *Client) handleJoin(data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.log.Warn("dropping malformed join payload", slog.Any("error", err))
		return
	}
	if err := validate.Struct(payload); err != nil {
		c.log.Warn("dropping join with missing username", slog.Any("error", err))
		return
	}

	c.hub.registry.SetDisplayName(c.id, payload.Username)
	c.log.Info("client joined", slog.String("username", payload.Username))
}

// handleSendMessage runs the two-phase relay: persist first, then fan out.
// The broadcast carries the original candidate payload, not the stored form,
// so recipients never see the server-assigned timestamp. A persistence
// failure is terminal for the event: it is logged and nothing is broadcast,
// and the sender is told neither of success nor of failure.
func (c *Client) handleSendMessage(data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.log.Warn("dropping malformed message payload", slog.Any("error", err))
		return
	}
	if err := validate.Struct(payload); err != nil {
		c.log.Warn("dropping message with missing fields", slog.Any("error", err))
		return
	}

	stored, err := c.hub.store.Append(storeMessage(payload))
	if err != nil {
		c.log.Error("message persistence failed; not broadcasting",
			slog.String("sender", payload.Sender),
			slog.String("receiver", payload.Receiver),
			slog.Any("error", err),
		)
		return
	}

	out, err := encodeReceiveMessage(payload)
	if err != nil {
		c.log.Error("error encoding outbound event", slog.Any("error", err))
		return
	}

	c.log.Debug("message accepted",
		slog.String("sender", stored.Sender),
		slog.String("receiver", stored.Receiver),
		slog.Time("timestamp", stored.Timestamp),
	)
	select {
	case c.hub.broadcast <- BroadcastMessage{Payload: out}:
	case <-c.hub.ctx.Done():
		// Shutdown won the race; the message is stored but not delivered.
	}
}

func (c *Client) readPump() {
	defer func() {
		// During shutdown the hub loop is gone and nobody drains the
		// unregister channel; the process-wide teardown closes everything.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("error closing connection in readPump", slog.Any("error", err))
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		c.dispatchEvent(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleOutbound(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in writePump", slog.Any("error", err))
		}
	}
}

// handleOutbound writes one queued event, draining any others queued behind
// it into the same frame batch. A false return stops the write pump.
func (c *Client) handleOutbound(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("error setting write deadline", slog.Any("error", err))
		return false
	}

	if !ok {
		// Hub closed the send channel.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("error writing close message", slog.Any("error", err))
			}
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("error creating writer", slog.Any("error", err))
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Warn("error writing event", slog.Any("error", err))
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("error writing separator", slog.Any("error", err))
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Warn("error writing queued event", slog.Any("error", err))
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("error closing writer", slog.Any("error", err))
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("error setting write deadline for ping", slog.Any("error", err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing ping message", slog.Any("error", err))
		}
		return false
	}
	return true
}
