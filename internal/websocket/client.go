package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/models"
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

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Scanners connect from arbitrary hosts
	CheckOrigin: func(r *http.Request) bool { return true },
}

// State of a stream connection
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

var errClientClosed = errors.New("client closed")

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Declared camera id or a generated one. Used as the scan source and
	// not unique across connections.
	ID string

	state  atomic.Int32
	mu     sync.Mutex // guards send against close
	closed bool
}

// inboundMessage is the tagged envelope of every client message. Scan
// fields sit next to the tag.
type inboundMessage struct {
	Type string `json:"type"`
	models.Submission
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// trySend queues msg without blocking. False means closed or full.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.setState(StateClosed)
	close(c.send)
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.trySend(msg) {
		return errClientClosed
	}
	return nil
}

// readPump pumps messages from the websocket connection to the dispatcher.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Warn("WS read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
		c.dispatch(message)
	}
}

// dispatch routes one inbound frame by its type tag
func (c *Client) dispatch(message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.log.Warn("Ignoring malformed message", zap.String("client_id", c.ID), zap.Error(err))
		return
	}

	switch msg.Type {
	case "scan":
		c.handleScan(msg.Submission)
	case "ping":
		c.SendJSON(pongMessage{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	default:
		c.hub.log.Warn("Ignoring unknown message type", zap.String("client_id", c.ID), zap.String("type", msg.Type))
	}
}

func (c *Client) handleScan(sub models.Submission) {
	if c.hub.ingester == nil {
		c.SendJSON(errorMessage{Type: TypeError, Message: "scanning disabled", QRCode: sub.QRCode})
		return
	}
	// The ingest finishes even if this connection closes meanwhile
	res := c.hub.ingester.IngestSubmission(context.Background(), sub, c.ID, ingest.StreamDefaults())
	if res.OK() {
		c.SendJSON(scanAckMessage{
			Type:      TypeScanAck,
			ScanID:    res.ScanID,
			QRCode:    res.QRCode,
			Timestamp: res.Timestamp,
		})
		return
	}
	c.SendJSON(errorMessage{
		Type:    TypeError,
		Message: res.Message,
		QRCode:  res.QRCode,
		Status:  res.Status,
	})
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.hub.unregister(c)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

// ClientID picks the connection id: the declared camera id, else a
// generated one.
func ClientID(r *http.Request) string {
	if id := r.URL.Query().Get("cameraId"); id != "" {
		return id
	}
	return "client-" + uuid.New().String()
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("Upgrade failed", zap.Error(err))
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), ID: ClientID(r)}
	client.setState(StateConnecting)

	// Queued before registration so it precedes any broadcast
	client.SendJSON(connectedMessage{Type: TypeConnected, ClientID: client.ID, Timestamp: time.Now().UTC()})
	hub.register(client)

	go client.writePump()
	go client.readPump()
}
