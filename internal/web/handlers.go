package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// CaptureFunc runs one capture and returns the downloaded JPEG.
// It is called from the POST /capture handler in a goroutine.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// CameraInfo describes the configured camera, for the UI.
type CameraInfo struct {
	Device    string `json:"device"`
	Baud      int    `json:"baud"`
	ImageSize string `json:"image_size"`
	Mock      bool   `json:"mock"`
}

// statusInfo is the GET /config response: the camera plus the last capture.
type statusInfo struct {
	CameraInfo
	LastCaptureAt   string `json:"last_capture_at,omitempty"`
	LastCaptureSize int    `json:"last_capture_size,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Capture     CaptureFunc
	Info        CameraInfo

	runningMu sync.Mutex
	running   bool

	lastMu sync.RWMutex
	last   []byte
	lastAt time.Time

	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If capture is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, capture CaptureFunc, info CameraInfo, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Capture:     capture,
		Info:        info,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the camera description and last capture info as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	info := statusInfo{CameraInfo: h.Info}
	h.lastMu.RLock()
	if h.last != nil {
		info.LastCaptureAt = h.lastAt.Format(time.RFC3339)
		info.LastCaptureSize = len(h.last)
	}
	h.lastMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a capture.
// The serial link carries one session at a time, so concurrent requests
// are rejected with 409 Conflict.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if h.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		img, err := h.Capture(context.Background())
		if err != nil {
			h.Broadcaster.CaptureFailed(err)
			debug.Error(fmt.Errorf("capture: %w", err))
			return
		}
		h.lastMu.Lock()
		h.last = img
		h.lastAt = time.Now()
		h.lastMu.Unlock()
		h.Broadcaster.CaptureFinished(len(img))
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleLatestImage handles GET /image/latest, serving the most recent JPEG.
func (h *Handlers) HandleLatestImage(w http.ResponseWriter, r *http.Request) {
	h.lastMu.RLock()
	img := h.last
	at := h.lastAt
	h.lastMu.RUnlock()

	if img == nil {
		http.Error(w, "no capture yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.Write(img)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
