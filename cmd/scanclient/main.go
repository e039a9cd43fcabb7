package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

type scanMessage struct {
	Type           string  `json:"type"`
	QRCode         string  `json:"qrCode"`
	ProductName    string  `json:"productName,omitempty"`
	ProductID      string  `json:"productId,omitempty"`
	ProcessingTime int64   `json:"processingTime"`
	Confidence     float64 `json:"confidence"`
}

// scanclient streams codes to the server and prints every message it
// receives. Codes are taken from the command line.
func main() {
	var (
		server     = pflag.String("server", "ws://localhost:3000/api/qr/stream", "stream endpoint")
		cameraID   = pflag.String("camera", "camera_1", "camera id used as the connection id")
		pingEvery  = pflag.Duration("ping", 30*time.Second, "ping interval")
		confidence = pflag.Float64("confidence", 0.9, "confidence reported with each scan")
		stay       = pflag.Bool("stay", true, "keep listening after the scans are sent")
	)
	pflag.Parse()

	u, err := url.Parse(*server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad server url: %v\n", err)
		os.Exit(1)
	}
	q := u.Query()
	q.Set("cameraId", *cameraID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("✓ Connected to", u.String())

	// gorilla allows one concurrent writer
	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				fmt.Println("✗ Disconnected:", err)
				return
			}
			var head struct {
				Type string `json:"type"`
			}
			json.Unmarshal(data, &head)
			fmt.Printf("[%s] %s\n", head.Type, data)
		}
	}()

	for _, code := range pflag.Args() {
		if err := send(scanMessage{Type: "scan", QRCode: code, Confidence: *confidence}); err != nil {
			fmt.Fprintf(os.Stderr, "send %q: %v\n", code, err)
		}
	}

	if !*stay {
		time.Sleep(time.Second)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(*pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := send(map[string]string{"type": "ping"}); err != nil {
				fmt.Fprintf(os.Stderr, "ping: %v\n", err)
			}
		case <-sigs:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-done:
			return
		}
	}
}
