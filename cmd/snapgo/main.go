package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/serial"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/motion"
	"github.com/cjeanneret/SnapGo/internal/protocol"
	"github.com/cjeanneret/SnapGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	outDir := flag.String("out", "", "override output directory for captured images")
	size := flag.String("size", "", "override image size (640x480, 320x240 or 160x120)")
	motionMode := flag.Bool("motion", false, "capture on motion detection instead of once")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Apply CLI overrides (empty means "use config default")
	if err := applyOverrides(cfg, *outDir, *size); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock serial", cfg.Serial.Mock)

	// Open the serial link
	debug.Step(1, "Opening serial port")
	port, err := serial.NewPort(cfg.Serial.Device, cfg.Serial.Baud, cfg.Serial.Mock)
	if err != nil {
		log.Fatalf("open serial port failed: %v", err)
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Printf("closing serial port failed: %v", err)
		}
	}()

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam := camera.NewVC0706(port, camera.Options{
		ReadTimeout: cfg.ReadTimeout(),
		ResetDelay:  cfg.ResetDelay(),
	})
	if err := setupCamera(cam, cfg); err != nil {
		log.Fatalf("camera setup failed: %v", err)
	}

	// Build runCapture closure over the camera and config. The gate
	// serializes every user of the UART: a capture session owns the port
	// for its whole run, and motion polls wait their turn.
	gate := &portGate{det: cam}
	runCapture := func(ctx context.Context) ([]byte, error) {
		return gate.capture(ctx, func(ctx context.Context) ([]byte, error) {
			return executeCapture(ctx, cfg, cam)
		})
	}

	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		info := web.CameraInfo{
			Device:    cfg.Serial.Device,
			Baud:      cfg.Serial.Baud,
			ImageSize: cfg.Camera.ImageSize,
			Mock:      cfg.Serial.Mock,
		}
		handlers := web.NewHandlers(broadcaster, runCapture, info, web.StaticFS())
		srv := web.NewServer(port, handlers)

		if *motionMode {
			watcher := newMotionWatcher(cfg, gate, runCapture)
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("motion watcher: %v", err)
					cancel()
				}
			}()
		}

		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if *motionMode {
		watcher := newMotionWatcher(cfg, gate, runCapture)
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("motion watcher: %v", err)
		}
		return
	}

	{
		// Run a single capture with current config
		if _, err := runCapture(ctx); err != nil {
			log.Fatalf("capture failed: %v", err)
		}
	}
}

// setupCamera verifies the link and applies the configured resolution and
// compression. A resolution change takes effect after the next reset, which
// every capture session performs first.
func setupCamera(cam *camera.VC0706, cfg *config.Config) error {
	if err := cam.Reset(); err != nil {
		return fmt.Errorf("initial reset: %w", err)
	}
	version, err := cam.Version()
	if err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	debug.Value("Camera version", version)

	if err := cam.SetImageSize(cfg.ImageSizeCode()); err != nil {
		return fmt.Errorf("set image size %s: %w", cfg.Camera.ImageSize, err)
	}
	debug.Value("Image size", cfg.Camera.ImageSize)

	if cfg.Camera.Compression > 0 {
		if err := cam.SetCompression(byte(cfg.Camera.Compression)); err != nil {
			return fmt.Errorf("set compression: %w", err)
		}
		debug.Value("Compression", cfg.Camera.Compression)
	}
	return nil
}

// executeCapture runs one capture session and writes the image to disk.
func executeCapture(ctx context.Context, cfg *config.Config, cam camera.Camera) ([]byte, error) {
	sess := capture.NewSession(cam, capture.Params{ChunkSize: cfg.Camera.ChunkSize})
	img, err := sess.Run(ctx)
	if err != nil {
		return nil, err
	}

	path := cfg.OutPath(time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	debug.Summary("Capture Complete")
	debug.Value("File", path)
	debug.Value("Size", len(img))
	return img, nil
}

// portGate serializes every user of the camera's serial link: the motion
// watcher's polls and capture sessions (web-triggered or motion-triggered)
// go through the same mutex, so one session owns the port for its whole
// run and no poll can steal bytes of an in-flight reply.
type portGate struct {
	mu  sync.Mutex
	det motion.Detector
}

func (g *portGate) SetMotionDetect(enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.det.SetMotionDetect(enabled)
}

func (g *portGate) MotionDetected() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.det.MotionDetected()
}

// capture holds the port for the full duration of run.
func (g *portGate) capture(ctx context.Context, run func(context.Context) ([]byte, error)) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return run(ctx)
}

// newMotionWatcher wires a watcher that triggers a capture per motion event.
// Capture failures are logged; the watcher keeps polling.
func newMotionWatcher(cfg *config.Config, gate *portGate, runCapture func(context.Context) ([]byte, error)) *motion.Watcher {
	return motion.NewWatcher(gate, cfg.MotionPoll(), func() {
		debug.Live("Motion detected, capturing")
		if _, err := runCapture(context.Background()); err != nil {
			debug.Error(fmt.Errorf("motion capture: %w", err))
		}
		// Capturing resets the camera, which disarms detection
		if err := gate.SetMotionDetect(true); err != nil {
			debug.Error(fmt.Errorf("rearm motion detection: %w", err))
		}
	})
}

// applyOverrides mutates cfg with CLI overrides. Empty values are ignored.
func applyOverrides(cfg *config.Config, outDir, size string) error {
	if outDir != "" {
		cfg.Capture.OutDir = outDir
	}
	if size != "" {
		if _, err := protocol.ParseImageSize(size); err != nil {
			return err
		}
		cfg.Camera.ImageSize = size
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
