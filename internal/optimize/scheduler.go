package optimize

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs maintenance passes in the background at a fixed interval.
//
// All public methods are thread-safe. Start and Stop are idempotent in the
// sense that double Start returns an error without spawning a second
// goroutine and Stop on a stopped scheduler is a no-op.
type Scheduler struct {
	interval  time.Duration
	optimizer *Optimizer
	opts      Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	logger *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between maintenance passes. Defaults to 24h.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// WithOptions sets the maintenance options used for each pass.
func WithOptions(opts Options) SchedulerOption {
	return func(s *Scheduler) {
		s.opts = opts
	}
}

// NewScheduler creates a scheduler around an optimizer. It does not start
// automatically; call Start.
func NewScheduler(optimizer *Optimizer, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if optimizer == nil {
		return nil, errors.New("optimizer cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		interval:  24 * time.Hour,
		optimizer: optimizer,
		opts:      DefaultOptions(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins scheduled maintenance. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	// Fresh channel per run so Stop/Start cycles are safe.
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("maintenance scheduler started",
		zap.Duration("interval", s.interval))

	go s.run(s.stopCh)
	return nil
}

// Stop halts scheduled maintenance. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRunPass()
		case <-stopCh:
			return
		}
	}
}

// safeRunPass wraps one pass in panic recovery so a single bad pass cannot
// kill the scheduler goroutine.
func (s *Scheduler) safeRunPass() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance pass panicked, scheduler continues",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.optimizer.Optimize(ctx, s.opts); err != nil {
		s.logger.Error("scheduled maintenance failed", zap.Error(err))
	}
}
