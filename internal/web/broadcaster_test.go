package web

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case raw := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			t.Fatalf("bad event payload %q: %v", raw, err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return StatusEvent{}
}

func TestLog_ReachesAllSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Log("info", "hello")

	for _, ch := range []<-chan string{ch1, ch2} {
		evt := recvEvent(t, ch)
		if evt.Kind != KindLog {
			t.Errorf("kind = %q, want %q", evt.Kind, KindLog)
		}
		if evt.Msg != "hello" {
			t.Errorf("msg = %q, want hello", evt.Msg)
		}
		if evt.Level != "info" {
			t.Errorf("level = %q, want info", evt.Level)
		}
	}
}

func TestCaptureFinished_CarriesByteCount(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.CaptureFinished(1837)

	evt := recvEvent(t, ch)
	if evt.Kind != KindCapture {
		t.Errorf("kind = %q, want %q", evt.Kind, KindCapture)
	}
	if evt.Bytes != 1837 {
		t.Errorf("bytes = %d, want 1837", evt.Bytes)
	}
	if evt.Level != "info" {
		t.Errorf("level = %q, want info", evt.Level)
	}
}

func TestCaptureFailed_IsErrorCaptureEvent(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.CaptureFailed(errors.New("frame not frozen"))

	evt := recvEvent(t, ch)
	if evt.Kind != KindCapture {
		t.Errorf("kind = %q, want %q", evt.Kind, KindCapture)
	}
	if evt.Level != "error" {
		t.Errorf("level = %q, want error", evt.Level)
	}
	if evt.Bytes != 0 {
		t.Errorf("bytes = %d, want 0 on failure", evt.Bytes)
	}
}

func TestPublish_UnsubscribedClientGetsNothing(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	// must not panic on closed channel
	b.Log("info", "after unsubscribe")

	select {
	case msg, ok := <-ch:
		if ok {
			t.Errorf("unexpected message after unsubscribe: %q", msg)
		}
	default:
	}
}

func TestPublish_SlowClientDoesNotBlock(t *testing.T) {
	b := NewStatusBroadcaster()
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		// more events than the channel buffer holds
		for i := 0; i < 200; i++ {
			b.Log("info", "flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

func TestBroadcastWriter_ForwardsLines(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	n, err := w.Write([]byte("capture done\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("capture done\n") {
		t.Errorf("n = %d, want %d", n, len("capture done\n"))
	}

	evt := recvEvent(t, ch)
	if evt.Kind != KindLog {
		t.Errorf("kind = %q, want %q", evt.Kind, KindLog)
	}
	if evt.Msg != "capture done" {
		t.Errorf("msg = %q, want trimmed line", evt.Msg)
	}
}

func TestBroadcastWriter_SkipsBlankWrites(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	if _, err := w.Write([]byte("  \n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case msg := <-ch:
		t.Errorf("unexpected event for blank write: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
