package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/models"
)

// Outbound message types
const (
	TypeConnected   = "connected"
	TypeScanAck     = "scan_ack"
	TypeScanResult  = "scan_result"
	TypeStatsUpdate = "stats_update"
	TypePong        = "pong"
	TypeError       = "error"
)

// Hub owns the registry of open stream connections and fans out every
// accepted scan to them.
type Hub struct {
	// Registered connections. Several may share a camera id.
	clients map[*Client]struct{}
	mu      sync.RWMutex

	ingester ingest.Ingester
	log      *zap.Logger
}

// NewHub creates a new Hub. ingester may be nil for a broadcast-only hub.
func NewHub(ingester ingest.Ingester, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		ingester: ingester,
		log:      log.Named("hub"),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	client.setState(StateOpen)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("Client connected", zap.String("client_id", client.ID), zap.Int("connections", n))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()

	if ok {
		h.log.Info("Client disconnected", zap.String("client_id", client.ID))
	}
}

// snapshot copies the open connections so sends happen without the lock
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.State() == StateOpen {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast serializes message once and queues it on every open
// connection. A connection that cannot take it is dropped. Returns the
// number of connections reached.
func (h *Hub) Broadcast(message interface{}) int {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		h.log.Error("Error marshaling broadcast", zap.Error(err))
		return 0
	}

	return h.deliver(h.snapshot(), jsonMsg)
}

// deliver queues msg on each client and drops the ones with a full buffer
func (h *Hub) deliver(clients []*Client, msg []byte) int {
	sent := 0
	for _, c := range clients {
		if c.trySend(msg) {
			sent++
			continue
		}
		// Closed since the snapshot: its own pumps deregister it
		if c.State() == StateClosed {
			continue
		}
		h.log.Warn("Dropping slow client", zap.String("client_id", c.ID))
		h.unregister(c)
	}
	return sent
}

// BroadcastScan publishes an accepted scan as scan_result
func (h *Hub) BroadcastScan(scan models.ScanBroadcast) {
	h.Broadcast(scanResultMessage{Type: TypeScanResult, Data: scan})
}

// BroadcastStats publishes a stats_update
func (h *Hub) BroadcastStats(stats interface{}) int {
	return h.Broadcast(statsUpdateMessage{
		Type:      TypeStatsUpdate,
		Data:      stats,
		Timestamp: time.Now().UTC(),
	})
}

// SendTo queues a message for every open connection with the given id.
// Returns false when none took it.
func (h *Hub) SendTo(clientID string, message interface{}) bool {
	delivered := false
	for _, c := range h.snapshot() {
		if c.ID == clientID && c.SendJSON(message) == nil {
			delivered = true
		}
	}
	return delivered
}

// Count returns the number of registered connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

type scanResultMessage struct {
	Type string               `json:"type"`
	Data models.ScanBroadcast `json:"data"`
}

type statsUpdateMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type connectedMessage struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

type scanAckMessage struct {
	Type      string    `json:"type"`
	ScanID    uint64    `json:"scanId"`
	QRCode    string    `json:"qrCode"`
	Timestamp time.Time `json:"timestamp"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorMessage struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	QRCode  string         `json:"qrCode,omitempty"`
	Status  models.Outcome `json:"status,omitempty"`
}
