// Package janitor periodically removes expired state: idle browser sessions
// and revocations of tokens that have expired anyway.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionCleaner deletes sessions idle for longer than retention.
type SessionCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// RevocationPurger drops revocation records that are no longer needed.
type RevocationPurger interface {
	PurgeRevocations(ctx context.Context) (int64, error)
}

// Config holds janitor configuration.
type Config struct {
	Interval  time.Duration
	Retention time.Duration // idle time before a session row is deleted
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute, Retention: 7 * 24 * time.Hour}
}

// Loop runs the cleanup phases on a ticker.
type Loop struct {
	sessions SessionCleaner
	tokens   RevocationPurger
	config   Config
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a janitor loop. tokens may be nil.
func NewLoop(sessions SessionCleaner, tokens RevocationPurger, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		sessions: sessions,
		tokens:   tokens,
		config:   cfg,
		logger:   logger.With("component", "janitor"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a first pass immediately, then one per interval. Blocks until
// ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("janitor started", "interval", l.config.Interval, "retention", l.config.Retention)
	defer close(l.doneCh)

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			l.logger.Error("tick error", "error", err)
		}
		select {
		case <-ctx.Done():
			l.logger.Info("janitor stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("janitor stopping (stop called)")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs a single cleanup pass.
func (l *Loop) Tick(ctx context.Context) error {
	if _, err := l.sessions.Cleanup(ctx, l.config.Retention); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if l.tokens == nil {
		return nil
	}
	n, err := l.tokens.PurgeRevocations(ctx)
	if err != nil {
		return fmt.Errorf("revocations: %w", err)
	}
	if n > 0 {
		l.logger.Debug("revocations purged", "count", n)
	}
	return nil
}
