package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrScannerRunning is returned by Start on a scanner that is already running.
var ErrScannerRunning = errors.New("scanner already running")

const defaultDebounce = 250 * time.Millisecond

// Scanner re-runs a Loader against a Registrar on a fixed interval until
// stopped. With watching enabled it also rescans shortly after a plugin file
// is created or written.
//
// Scans already in progress always run to completion; cancellation is only
// observed while waiting between scans.
type Scanner struct {
	loader   *Loader
	reg      Registrar
	interval time.Duration
	watch    bool
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu   sync.Mutex
	last     Report
	lastScan time.Time
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithWatch enables rescans on file system changes in the model directory.
func WithWatch(enabled bool) ScannerOption {
	return func(s *Scanner) { s.watch = enabled }
}

// WithDebounce sets how long the scanner waits after the last file system
// event before rescanning.
func WithDebounce(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.debounce = d }
}

// WithScannerLogger sets the scanner logger.
func WithScannerLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a stopped scanner.
func NewScanner(loader *Loader, reg Registrar, interval time.Duration, opts ...ScannerOption) (*Scanner, error) {
	if loader == nil || reg == nil {
		return nil, errors.New("loader and registrar are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %s", interval)
	}
	s := &Scanner{
		loader:   loader,
		reg:      reg,
		interval: interval,
		debounce: defaultDebounce,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the scan loop. The first interval scan happens one interval
// after Start; callers wanting models available immediately load once first.
// The loop also ends when ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrScannerRunning
		}
	}

	var watcher *fsnotify.Watcher
	if s.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(s.loader.Dir()); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", s.loader.Dir(), err)
		}
		watcher = w
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, watcher, s.done)

	s.logger.Info("model scanner started", "dir", s.loader.Dir(), "interval", s.interval.String(), "watch", s.watch)
	return nil
}

// Stop signals the loop and waits for it to exit. Stopping a scanner that
// is not running does nothing.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("model scanner stopped")
}

// Running reports whether the scan loop is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ScanOnce loads the directory into the registrar immediately. The scan is
// not interrupted by cancellation of ctx.
func (s *Scanner) ScanOnce(ctx context.Context) Report {
	rep, err := s.loader.Load(context.WithoutCancel(ctx), s.reg)
	if err != nil {
		s.logger.Error("model scan failed", "dir", s.loader.Dir(), "error", err)
	} else {
		s.logger.Debug("model scan finished",
			"files", rep.Files,
			"candidates", len(rep.Candidates),
			"added", rep.Added,
			"failures", len(rep.Failures),
			"rejected", len(rep.Rejected),
		)
	}

	s.lastMu.Lock()
	s.last = rep
	s.lastScan = time.Now()
	s.lastMu.Unlock()
	return rep
}

// LastReport returns the report of the most recent scan and when it
// finished. The time is zero before the first scan.
func (s *Scanner) LastReport() (Report, time.Time) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last, s.lastScan
}

func (s *Scanner) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher != nil {
		defer watcher.Close()
		events = watcher.Events
		errs = watcher.Errors
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.ScanOnce(ctx)
		case <-settle:
			settle = nil
			if ctx.Err() != nil {
				return
			}
			s.ScanOnce(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !IsPluginFile(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				settle = time.After(s.debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("model directory watch error", "error", err)
		}
	}
}
