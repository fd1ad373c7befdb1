// Package shutdown turns interrupt signals into hunt cancellation. The first
// signal cancels the hunt context so captured traffic still gets documented; a
// second signal forces an exit.
package shutdown

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/APIHunter/internal/logger"
)

// Cleanup releases a resource when the command exits.
type Cleanup func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds all cleanups together.
	Timeout time.Duration
	Signals []os.Signal
	// OnInterrupt runs on the first signal, after the context is cancelled.
	OnInterrupt func(sig os.Signal)
	// OnForce runs on the second signal. The CLI exits the process here.
	OnForce func(sig os.Signal)
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler owns the context a hunt runs under.
type Handler struct {
	cfg    Config
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	sigChan     chan os.Signal
	stop        chan struct{}
	listening   sync.Once
	closeOnce   sync.Once
	interrupts  atomic.Int32
	interrupted atomic.Bool

	mu       sync.Mutex
	cleanups []namedCleanup
	closeErr error
}

type namedCleanup struct {
	name string
	fn   Cleanup
}

// New creates a handler. Signals are not watched until Listen.
func New(cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = def.Signals
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cfg:     cfg,
		log:     log.WithComponent("shutdown"),
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
		stop:    make(chan struct{}),
	}
}

// NewDefault creates a handler with default configuration.
func NewDefault() *Handler {
	return New(DefaultConfig())
}

// Context is cancelled on the first signal or Interrupt.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether the hunt was interrupted.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Listen starts watching the configured signals.
func (h *Handler) Listen() {
	h.listening.Do(func() {
		signal.Notify(h.sigChan, h.cfg.Signals...)
		go h.watch()
	})
}

// Trigger delivers sig as if the process had received it.
func (h *Handler) Trigger(sig os.Signal) {
	select {
	case h.sigChan <- sig:
	default:
	}
}

func (h *Handler) watch() {
	for {
		select {
		case <-h.stop:
			return
		case sig := <-h.sigChan:
			if h.interrupts.Add(1) == 1 {
				h.log.Warnf("Received %s, stopping hunt and documenting partial results (repeat to force)", sig)
				h.Interrupt()
				if h.cfg.OnInterrupt != nil {
					h.cfg.OnInterrupt(sig)
				}
				continue
			}
			h.log.Warnf("Received %s again, forcing exit", sig)
			if h.cfg.OnForce != nil {
				h.cfg.OnForce(sig)
			}
			return
		}
	}
}

// Interrupt cancels the context without a signal.
func (h *Handler) Interrupt() {
	h.interrupted.Store(true)
	h.cancel()
}

// Register adds a cleanup. Cleanups run in reverse order on Close.
func (h *Handler) Register(name string, fn Cleanup) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
}

// RegisterFunc registers a cleanup that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Close stops watching signals, runs the cleanups within the timeout and
// releases the context. Later calls return the first result.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.stop)

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
		defer cancel()

		h.mu.Lock()
		cleanups := append([]namedCleanup(nil), h.cleanups...)
		h.mu.Unlock()

		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := run(ctx, cleanups[i]); err != nil {
				h.log.WithError(err).Warnf("Cleanup %s failed", cleanups[i].name)
				errs = append(errs, err)
			}
		}

		h.cancel()
		h.mu.Lock()
		h.closeErr = stderrors.Join(errs...)
		h.mu.Unlock()
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeErr
}

func run(ctx context.Context, c namedCleanup) error {
	done := make(chan error, 1)
	go func() {
		done <- c.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: c.name}
	}
}

// TimeoutError is returned when a cleanup outlives the timeout.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
