package service

import (
	"context"
	"sync"
	"time"

	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/repository"

	"go.uber.org/zap"
)

// ReconcileConfig holds configuration for the reconcile scheduler.
type ReconcileConfig struct {
	// Threshold is how long a consumption marker may stay pending.
	Threshold time.Duration

	// Interval is how often the reconciler runs.
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration
}

// DefaultReconcileConfig returns default reconcile configuration.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Threshold:    15 * time.Minute,
		Interval:     10 * time.Minute,
		InitialDelay: time.Minute,
	}
}

// ReconcileScheduler periodically resolves purchase markers a crashed request
// left pending: completed if the credit reached the player, released otherwise.
type ReconcileScheduler struct {
	repo      repository.PlayerRepository
	config    ReconcileConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	lastRun   time.Time
	lastCount int64
}

// NewReconcileScheduler creates a new reconcile scheduler.
func NewReconcileScheduler(repo repository.PlayerRepository, config ReconcileConfig) *ReconcileScheduler {
	defaults := DefaultReconcileConfig()
	if config.Threshold == 0 {
		config.Threshold = defaults.Threshold
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}

	return &ReconcileScheduler{
		repo:   repo,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the reconcile scheduler.
func (s *ReconcileScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	logger.Info("reconcile scheduler started",
		zap.Duration("interval", s.config.Interval), zap.Duration("threshold", s.config.Threshold))

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runReconcile()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *ReconcileScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runReconcile()
		case <-s.stopCh:
			logger.Info("reconcile scheduler stopped")
			return
		}
	}
}

func (s *ReconcileScheduler) runReconcile() {
	if _, err := s.RunNow(context.Background()); err != nil {
		logger.Error("reconcile failed", zap.Error(err))
	}
}

// Stop stops the reconcile scheduler.
func (s *ReconcileScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate reconcile run.
func (s *ReconcileScheduler) RunNow(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	resolved, err := s.repo.ReconcilePendingTransactions(ctx, s.config.Threshold)
	if err != nil {
		return resolved, err
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastCount = resolved
	s.mu.Unlock()
	return resolved, nil
}

// LastRun returns when the last successful run finished and what it resolved.
func (s *ReconcileScheduler) LastRun() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastCount
}
