package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/internal/ratelimit"
)

// JanitorService periodically evicts idle rate-limit entries so the table
// does not grow with every conversation ever seen.
type JanitorService struct {
	Interval time.Duration
	MaxAge   time.Duration
	Limiter  *ratelimit.Limiter
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitorService initializes a JanitorService.
func NewJanitorService(interval, maxAge time.Duration, limiter *ratelimit.Limiter, logger zerolog.Logger) *JanitorService {
	return &JanitorService{
		Interval: interval,
		MaxAge:   maxAge,
		Limiter:  limiter,
		Logger:   logger,
	}
}

// Start launches the sweep loop in a separate goroutine.
func (j *JanitorService) Start() error {
	if j.ctx != nil {
		j.Logger.Warn().Msg("JanitorService is already running")
		return errors.New("janitor service is already running")
	}
	if j.Interval <= 0 {
		return errors.New("janitor service needs a positive interval")
	}

	j.ctx, j.cancel = context.WithCancel(context.Background())

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.runSweepLoop()
	}()

	j.Logger.Info().Dur("interval", j.Interval).Dur("max_age", j.MaxAge).Msg("JanitorService started successfully")
	return nil
}

// Stop gracefully stops the janitor service.
func (j *JanitorService) Stop() error {
	if j.ctx == nil {
		j.Logger.Warn().Msg("JanitorService is not running")
		return errors.New("janitor service is not running")
	}

	j.cancel()
	j.wg.Wait()

	j.ctx = nil
	j.cancel = nil

	j.Logger.Info().Msg("JanitorService stopped successfully")
	return nil
}

func (j *JanitorService) runSweepLoop() {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if removed := j.Limiter.Sweep(now, j.MaxAge); removed > 0 {
				j.Logger.Debug().Int("removed", removed).Int("remaining", j.Limiter.Len()).Msg("Evicted idle rate-limit entries")
			}
		case <-j.ctx.Done():
			return
		}
	}
}
