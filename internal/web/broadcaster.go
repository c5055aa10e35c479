package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event kinds on the status stream.
const (
	KindLog     = "log"     // a mirrored debug line
	KindCapture = "capture" // the outcome of a capture session
)

// StatusEvent is one entry on the SSE status stream. Log events carry a
// level and message; capture events additionally report the image size in
// bytes (zero when the capture failed).
type StatusEvent struct {
	Time  string `json:"t"`
	Kind  string `json:"kind"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
	Bytes int    `json:"bytes,omitempty"`
}

// StatusBroadcaster distributes status events to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events and a cleanup
// function. The caller must call the returned cleanup when done (e.g. on
// client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// publish timestamps evt and fans it out as JSON. Slow clients may miss
// events (non-blocking, buffered).
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Log publishes a log line at the given level.
func (b *StatusBroadcaster) Log(level, msg string) {
	b.publish(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// CaptureFinished publishes a successful capture with the image size.
func (b *StatusBroadcaster) CaptureFinished(bytes int) {
	b.publish(StatusEvent{Kind: KindCapture, Level: "info", Msg: "capture complete", Bytes: bytes})
}

// CaptureFailed publishes a failed capture with its error.
func (b *StatusBroadcaster) CaptureFailed(err error) {
	b.publish(StatusEvent{Kind: KindCapture, Level: "error", Msg: "capture failed: " + err.Error()})
}

// BroadcastWriter implements io.Writer; each Write becomes a log event.
// Used with debug.SetOutput to mirror debug output onto the stream.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Log("info", msg)
	}
	return len(p), nil
}
