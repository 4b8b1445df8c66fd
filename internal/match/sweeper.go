package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veilchat/whispermatch/internal/logger"
)

// Sweeper is the periodic cleanup loop behind the matchmaking core. Each
// pass it expires overdue sessions (a backstop for timers lost to a
// restart), cancels waiting entries past the wait timeout, and archives
// then evicts terminal sessions past the retention window.
type Sweeper struct {
	svc      *Service
	archiver Archiver

	interval    time.Duration
	waitTimeout time.Duration // zero disables wait-timeout cancellation
	retention   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper creates a sweeper; archiver may be nil to skip archiving
func NewSweeper(svc *Service, archiver Archiver, interval, waitTimeout, retention time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		svc:         svc,
		archiver:    archiver,
		interval:    interval,
		waitTimeout: waitTimeout,
		retention:   retention,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	logger.Log.Info("Starting match sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("wait_timeout", s.waitTimeout),
		zap.Duration("retention", s.retention),
	)
	go s.run()
}

// Stop stops the sweeper
func (s *Sweeper) Stop() {
	s.cancel()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Sweep runs one cleanup pass; exported so tests and admin tooling can
// trigger it directly
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	now := start.UTC()

	expired := s.svc.ExpireDue(ctx)

	cancelled := 0
	if s.waitTimeout > 0 {
		cancelled = s.svc.CancelStaleWaiters(now.Add(-s.waitTimeout))
	}

	evicted, err := s.svc.Store().DeleteExpired(ctx, now.Add(-s.retention))
	if err != nil {
		logger.ErrorWithFields("Sweep failed to evict terminal sessions", err)
	}
	archived := 0
	if s.archiver != nil {
		for _, sess := range evicted {
			if err := s.archiver.Archive(ctx, sess); err != nil {
				logger.Log.Warn("Failed to archive session",
					logger.WithSessionID(sess.ID),
					zap.Error(err),
				)
				continue
			}
			archived++
		}
	}

	if expired > 0 || cancelled > 0 || len(evicted) > 0 {
		logger.Log.Info("Match sweep completed",
			zap.Int("expired", expired),
			zap.Int("wait_cancelled", cancelled),
			zap.Int("evicted", len(evicted)),
			zap.Int("archived", archived),
			zap.Duration("took", time.Since(start)),
		)
	}
}
