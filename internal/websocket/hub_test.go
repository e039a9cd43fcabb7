package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/models"
	"github.com/xelth-com/eckscan/internal/utils"
)

type envelope struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"clientId"`
	ScanID    uint64          `json:"scanId"`
	QRCode    string          `json:"qrCode"`
	Message   string          `json:"message"`
	Status    string          `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	pipeline := ingest.NewPipeline(database.NewMemoryStore(), utils.NewDeduplicator(500*time.Millisecond, 100), nil, zap.NewNop(), ingest.Options{})
	hub := NewHub(pipeline, zap.NewNop())
	pipeline.SetBroadcaster(hub)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/qr/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil reads until a message of the given type arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := readMessage(t, conn); msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message received", typ)
	return envelope{}
}

func waitForCount(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", hub.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectAssignsClientID(t *testing.T) {
	hub, srv := newTestServer(t)

	cam := dial(t, srv, "?cameraId=dock-1")
	if msg := readMessage(t, cam); msg.Type != TypeConnected || msg.ClientID != "dock-1" {
		t.Fatalf("unexpected first message: %+v", msg)
	}

	anon := dial(t, srv, "")
	msg := readMessage(t, anon)
	if msg.Type != TypeConnected || !strings.HasPrefix(msg.ClientID, "client-") {
		t.Fatalf("unexpected first message: %+v", msg)
	}
	waitForCount(t, hub, 2)
}

func TestScanAckAndBroadcast(t *testing.T) {
	_, srv := newTestServer(t)

	scanner := dial(t, srv, "?cameraId=cam-1")
	readMessage(t, scanner)
	watcher := dial(t, srv, "?cameraId=dashboard")
	readMessage(t, watcher)

	err := scanner.WriteJSON(map[string]any{"type": "scan", "qrCode": "SKU-001|WidgetA|BATCH7"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	ack := readUntil(t, scanner, TypeScanAck)
	if ack.ScanID != 1 || ack.QRCode != "SKU-001|WidgetA|BATCH7" {
		t.Errorf("unexpected ack: %+v", ack)
	}

	res := readUntil(t, watcher, TypeScanResult)
	var data models.ScanBroadcast
	if err := json.Unmarshal(res.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ScanID != 1 || data.ProductID != "SKU-001" || data.ProductName != "WidgetA" || data.CameraID != "cam-1" {
		t.Errorf("unexpected broadcast: %+v", data)
	}
	if data.Confidence != 0.9 {
		t.Errorf("stream default confidence = %v", data.Confidence)
	}
}

func TestDuplicateScanReportsError(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "?cameraId=cam-2")
	readMessage(t, conn)

	conn.WriteJSON(map[string]any{"type": "scan", "qrCode": "DUP-00001"})
	readUntil(t, conn, TypeScanAck)

	conn.WriteJSON(map[string]any{"type": "scan", "qrCode": "DUP-00001"})
	msg := readUntil(t, conn, TypeError)
	if msg.Status != string(models.OutcomeDuplicate) || msg.QRCode != "DUP-00001" {
		t.Errorf("unexpected error message: %+v", msg)
	}
}

func TestPingAndMalformedMessages(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "?cameraId=cam-3")
	readMessage(t, conn)

	// malformed input is ignored and the connection stays usable
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.WriteJSON(map[string]any{"type": "unknown"})
	conn.WriteJSON(map[string]any{"type": "ping"})

	msg := readMessage(t, conn)
	if msg.Type != TypePong {
		t.Fatalf("type = %s, want pong", msg.Type)
	}
	var ts int64
	if err := json.Unmarshal(msg.Timestamp, &ts); err != nil || ts == 0 {
		t.Errorf("pong timestamp = %s", msg.Timestamp)
	}
}

func TestClosedConnectionIsDeregistered(t *testing.T) {
	hub, srv := newTestServer(t)

	gone := dial(t, srv, "?cameraId=gone")
	readMessage(t, gone)
	stay := dial(t, srv, "?cameraId=stay")
	readMessage(t, stay)
	waitForCount(t, hub, 2)

	gone.Close()
	waitForCount(t, hub, 1)

	if n := hub.BroadcastStats(map[string]int{"totalScans": 3}); n != 1 {
		t.Errorf("broadcast reached %d connections, want 1", n)
	}
	msg := readMessage(t, stay)
	if msg.Type != TypeStatsUpdate || !strings.Contains(string(msg.Data), "totalScans") {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestSharedCameraIDKeepsBothConnections(t *testing.T) {
	hub, srv := newTestServer(t)

	first := dial(t, srv, "?cameraId=camera_1")
	readMessage(t, first)
	second := dial(t, srv, "?cameraId=camera_1")
	readMessage(t, second)
	waitForCount(t, hub, 2)

	if err := second.WriteJSON(map[string]any{"type": "scan", "qrCode": "SHARED-0001"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// the broadcast is queued before the sender's ack
	for name, conn := range map[string]*websocket.Conn{"first": first, "second": second} {
		res := readUntil(t, conn, TypeScanResult)
		var data models.ScanBroadcast
		if err := json.Unmarshal(res.Data, &data); err != nil {
			t.Fatalf("%s: decode data: %v", name, err)
		}
		if data.QRCode != "SHARED-0001" || data.CameraID != "camera_1" {
			t.Errorf("%s: unexpected broadcast: %+v", name, data)
		}
	}
	readUntil(t, second, TypeScanAck)
	if hub.Count() != 2 {
		t.Errorf("connections = %d, want 2", hub.Count())
	}
	if !hub.SendTo("camera_1", map[string]string{"type": "note"}) {
		t.Errorf("SendTo found no connection for camera_1")
	}
}

func TestBroadcastSkipsNonOpenClients(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	open := &Client{hub: hub, send: make(chan []byte, 1), ID: "open"}
	open.setState(StateOpen)
	pending := &Client{hub: hub, send: make(chan []byte, 1), ID: "pending"}
	pending.setState(StateConnecting)
	hub.clients[open] = struct{}{}
	hub.clients[pending] = struct{}{}

	if n := hub.Broadcast(map[string]string{"type": "x"}); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}
	if len(pending.send) != 0 {
		t.Errorf("connecting client received a broadcast")
	}

	// full buffer drops the client
	if n := hub.Broadcast(map[string]string{"type": "y"}); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
	if hub.Count() != 1 || open.State() != StateClosed {
		t.Errorf("slow client not dropped: count=%d state=%s", hub.Count(), open.State())
	}
}

func TestDeliverSkipsClientClosedAfterSnapshot(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hub := NewHub(nil, zap.New(core))
	live := &Client{hub: hub, send: make(chan []byte, 1), ID: "live"}
	gone := &Client{hub: hub, send: make(chan []byte, 1), ID: "gone"}
	for _, c := range []*Client{live, gone} {
		c.setState(StateOpen)
		hub.clients[c] = struct{}{}
	}

	clients := hub.snapshot()
	gone.close()

	if n := hub.deliver(clients, []byte(`{"type":"x"}`)); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}
	if logs.Len() != 0 {
		t.Errorf("closed client logged as slow: %v", logs.All())
	}
	if hub.Count() != 2 {
		t.Errorf("deliver deregistered a closed client: count = %d", hub.Count())
	}
}
