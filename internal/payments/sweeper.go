package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper runs ExpireStale on a cron schedule.
type Sweeper struct {
	sched    *cron.Cron
	rec      *Reconciler
	timeout  time.Duration
	deadline time.Duration
	logger   *zap.Logger
}

func NewSweeper(rec *Reconciler, schedule string, timeout time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	s := &Sweeper{
		sched:    cron.New(cron.WithParser(cronParser)),
		rec:      rec,
		timeout:  timeout,
		deadline: 25 * time.Second,
		logger:   logger,
	}
	if _, err := s.sched.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.sched.Start()
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.sched.Stop().Done()
}

func (s *Sweeper) sweep() {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("payment sweep panicked", zap.Any("panic", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.deadline)
	defer cancel()
	n, err := s.rec.ExpireStale(ctx, s.timeout)
	if err != nil {
		s.logger.Error("payment sweep failed", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("payment sweep expired payments", zap.Int("expired", n))
	}
}
