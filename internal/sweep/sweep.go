// Package sweep runs periodic maintenance: it reports rooms that have gone
// idle and evicts expired rate limiter windows. It never removes rooms.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"liveroom/internal/config"
	"liveroom/pkg/types"
)

// StaleLister is satisfied by the collaboration manager.
type StaleLister interface {
	StaleRooms(idle time.Duration) []types.RoomSnapshot
}

// Cleaner is satisfied by the transport rate limiter.
type Cleaner interface {
	Cleanup() int
}

// Reporter receives the result of each pass.
type Reporter interface {
	SweepCompleted(staleRooms int)
}

type Result struct {
	StaleRooms     []types.RoomSnapshot
	LimiterEvicted int
}

type Job struct {
	cfg      *config.SweepConfig
	rooms    StaleLister
	limiter  Cleaner
	reporter Reporter
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewJob wires a sweeper. limiter and reporter may be nil.
func NewJob(cfg *config.SweepConfig, rooms StaleLister, limiter Cleaner, reporter Reporter, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sweep")
	cl := cronLogger{logger.Sugar()}
	return &Job{
		cfg:      cfg,
		rooms:    rooms,
		limiter:  limiter,
		reporter: reporter,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the sweep. A disabled job starts nothing and returns nil.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.cfg.Enabled {
		j.logger.Info("room sweep is disabled, skipping scheduler")
		return nil
	}
	if j.started {
		return errors.New("sweep already started")
	}

	if _, err := j.cron.AddFunc(j.cfg.Schedule, func() { j.RunOnce() }); err != nil {
		return errors.Wrapf(err, "failed to schedule sweep %q", j.cfg.Schedule)
	}
	j.cron.Start()
	j.started = true

	j.logger.Info("room sweep started",
		zap.String("schedule", j.cfg.Schedule),
		zap.Duration("stale_after", j.cfg.StaleAfter))
	return nil
}

// Stop halts scheduling and waits for a running pass or ctx, whichever
// comes first.
func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	done := j.cron.Stop()
	j.mu.Unlock()

	select {
	case <-done.Done():
		j.logger.Info("room sweep stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single pass immediately.
func (j *Job) RunOnce() Result {
	var res Result
	res.StaleRooms = j.rooms.StaleRooms(j.cfg.StaleAfter)
	if j.limiter != nil {
		res.LimiterEvicted = j.limiter.Cleanup()
	}
	if j.reporter != nil {
		j.reporter.SweepCompleted(len(res.StaleRooms))
	}

	if len(res.StaleRooms) > 0 {
		j.logger.Info("stale rooms found",
			zap.Int("count", len(res.StaleRooms)),
			zap.Strings("room_ids", lo.Map(res.StaleRooms, func(r types.RoomSnapshot, _ int) string {
				return r.ID
			})))
	} else {
		j.logger.Debug("no stale rooms")
	}
	if res.LimiterEvicted > 0 {
		j.logger.Debug("rate limiter windows evicted", zap.Int("count", res.LimiterEvicted))
	}
	return res
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
