package auth

import (
	"context"
	"time"
)

// TokenCleaner purges expired credentials
type TokenCleaner interface {
	CleanupExpired(ctx context.Context) (CleanupReport, error)
}

// Sweeper periodically removes expired refresh tokens, reset tokens and
// blacklist entries.
type Sweeper struct {
	cleaner  TokenCleaner
	interval time.Duration
	logger   Logger
	done     chan struct{}
}

// NewSweeper creates a sweeper. A non positive interval defaults to one hour.
func NewSweeper(cleaner TokenCleaner, interval time.Duration, logger Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		cleaner:  cleaner,
		interval: interval,
		logger:   normalizeLogger(logger),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Done is closed once the loop has exited
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("token sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single cleanup pass
func (s *Sweeper) Sweep(ctx context.Context) CleanupReport {
	report, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("token sweep failed", "error", err)
		return report
	}

	if report.Total() > 0 {
		s.logger.Info("token sweep completed",
			"refresh_tokens", report.RefreshTokens,
			"reset_tokens", report.ResetTokens,
			"blacklisted", report.Blacklisted,
		)
	}
	return report
}
