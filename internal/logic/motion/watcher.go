package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Detector is the camera-side contract for motion detection: arming the
// feature and polling for a pending motion frame.
type Detector interface {
	SetMotionDetect(enabled bool) error
	MotionDetected() (bool, error)
}

// Watcher arms the camera's motion detection and polls it on an interval,
// invoking a callback for every detected event. It shares the camera's
// serial link, so its polls must never overlap a capture session; callers
// pass a Detector that serializes port access against captures.
type Watcher struct {
	det      Detector
	interval time.Duration
	onMotion func()
}

// NewWatcher creates a watcher polling det every interval. onMotion runs
// synchronously in the polling loop for each event.
func NewWatcher(det Detector, interval time.Duration, onMotion func()) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Watcher{
		det:      det,
		interval: interval,
		onMotion: onMotion,
	}
}

// Run arms detection and polls until ctx is cancelled, then disarms.
// Poll errors are logged and the loop keeps going; only a failure to arm
// detection in the first place is fatal.
func (w *Watcher) Run(ctx context.Context) error {
	debug.Live("Motion: arming detection (poll every %v)", w.interval)
	if err := w.det.SetMotionDetect(true); err != nil {
		return fmt.Errorf("arm motion detection: %w", err)
	}
	defer func() {
		if err := w.det.SetMotionDetect(false); err != nil {
			debug.Error(fmt.Errorf("disarm motion detection: %w", err))
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Verbose("Motion: watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			detected, err := w.det.MotionDetected()
			if err != nil {
				debug.Error(fmt.Errorf("motion poll: %w", err))
				continue
			}
			if detected && w.onMotion != nil {
				w.onMotion()
			}
		}
	}
}
