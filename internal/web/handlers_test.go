package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"
)

var testJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

func testStatic() fstest.MapFS {
	return fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body>SnapGo</body></html>")},
	}
}

func newTestHandlers(capture CaptureFunc) *Handlers {
	info := CameraInfo{Device: "/dev/serial0", Baud: 38400, ImageSize: "640x480"}
	return NewHandlers(NewStatusBroadcaster(), capture, info, testStatic())
}

func waitForImage(t *testing.T, h *Handlers) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.lastMu.RLock()
		got := h.last != nil
		h.lastMu.RUnlock()
		if got {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("capture result never stored")
}

func TestHandleCapture_StoresImage(t *testing.T) {
	h := newTestHandlers(func(ctx context.Context) ([]byte, error) {
		return testJPEG, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/capture", nil)
	w := httptest.NewRecorder()
	h.HandleCapture(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	waitForImage(t, h)

	req = httptest.NewRequest(http.MethodGet, "/image/latest", nil)
	w = httptest.NewRecorder()
	h.HandleLatestImage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), testJPEG) {
		t.Error("served image differs from captured image")
	}
}

func TestHandleCapture_ConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	h := newTestHandlers(func(ctx context.Context) ([]byte, error) {
		<-release
		return testJPEG, nil
	})

	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("first capture status = %d, want 202", w.Code)
	}

	w = httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("second capture status = %d, want 409", w.Code)
	}

	close(release)
	waitForImage(t, h)
}

func TestHandleCapture_NotConfigured(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandleCapture_ErrorBroadcastAndReleased(t *testing.T) {
	h := newTestHandlers(func(ctx context.Context) ([]byte, error) {
		return nil, context.DeadlineExceeded
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	evt := recvEvent(t, ch)
	if evt.Kind != KindCapture {
		t.Errorf("event kind = %q, want %q", evt.Kind, KindCapture)
	}
	if evt.Level != "error" {
		t.Errorf("event level = %q, want error", evt.Level)
	}

	// a failed capture must not leave the running flag set
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.runningMu.Lock()
		running := h.running
		h.runningMu.Unlock()
		if !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("running flag never cleared after failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleLatestImage_NoCaptureYet(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleLatestImage(w, httptest.NewRequest(http.MethodGet, "/image/latest", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var info statusInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Device != "/dev/serial0" || info.Baud != 38400 {
		t.Errorf("unexpected camera info: %+v", info)
	}
	if info.LastCaptureAt != "" {
		t.Errorf("last_capture_at = %q, want empty before any capture", info.LastCaptureAt)
	}
}

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("SnapGo")) {
		t.Error("index page missing expected content")
	}
}

func TestServer_RoutesAndShutdown(t *testing.T) {
	h := newTestHandlers(func(ctx context.Context) ([]byte, error) {
		return testJPEG, nil
	})
	srv := NewServer(0, h)

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/config")
	if err != nil {
		t.Fatalf("GET /config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /config status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/capture")
	if err != nil {
		t.Fatalf("GET /capture: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /capture status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStaticFS_ContainsIndex(t *testing.T) {
	if _, err := StaticFS().Open("index.html"); err != nil {
		t.Fatalf("embedded index.html missing: %v", err)
	}
}
