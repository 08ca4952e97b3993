package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically drops presence records of connections that vanished
// without untracking, such as a gateway instance that crashed.
type Sweeper struct {
	engine  *cron.Cron
	gateway *Gateway
	ttl     time.Duration
	logger  *slog.Logger
}

func NewSweeper(gateway *Gateway, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:  cron.New(cron.WithSeconds()),
		gateway: gateway,
		ttl:     ttl,
		logger:  logger,
	}
}

// Register schedules the sweep, e.g. "@every 30s".
func (s *Sweeper) Register(spec string) error {
	if _, err := s.engine.AddJob(spec, s); err != nil {
		return err
	}
	return nil
}

// Run implements cron.Job.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := s.gateway.SweepPresence(ctx, s.gateway.now().Add(-s.ttl))
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Warn("presence sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("stale presence swept", "channels", n)
	}
}

func (s *Sweeper) Start() {
	if s.logger != nil {
		s.logger.Info("presence sweeper started", "ttl", s.ttl)
	}
	s.engine.Start()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.engine.Stop().Done()
	if s.logger != nil {
		s.logger.Info("presence sweeper stopped")
	}
}
