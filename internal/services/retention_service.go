package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/storage"
)

// RetentionService periodically deletes readings older than the
// retention horizon through the storage gateway.
type RetentionService struct {
	gateway  storage.Gateway
	interval time.Duration
	horizon  time.Duration
	logger   zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sweeping atomic.Bool
}

// NewRetentionService initializes a new RetentionService.
func NewRetentionService(gateway storage.Gateway, interval, horizon time.Duration,
	logger zerolog.Logger) *RetentionService {

	return &RetentionService{
		gateway:  gateway,
		interval: interval,
		horizon:  horizon,
		logger:   logger,
	}
}

// Start launches the sweep loop in a separate goroutine.
func (rs *RetentionService) Start() error {
	if rs.ctx != nil {
		rs.logger.Warn().Msg("RetentionService is already running")
		return errors.New("retention service is already running")
	}

	rs.ctx, rs.cancel = context.WithCancel(context.Background())

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		rs.runSweepLoop()
	}()

	rs.logger.Info().
		Dur("interval", rs.interval).
		Dur("horizon", rs.horizon).
		Msg("RetentionService started successfully")
	return nil
}

// Stop gracefully stops the retention service.
func (rs *RetentionService) Stop() error {
	if rs.ctx == nil {
		rs.logger.Warn().Msg("RetentionService is not running")
		return errors.New("retention service is not running")
	}

	rs.cancel()
	rs.wg.Wait()

	rs.ctx = nil
	rs.cancel = nil

	rs.logger.Info().Msg("RetentionService stopped successfully")
	return nil
}

// runSweepLoop fires a sweep on every tick. A tick that lands while
// the previous sweep is still executing is skipped, not queued.
func (rs *RetentionService) runSweepLoop() {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !rs.sweeping.CompareAndSwap(false, true) {
				rs.logger.Warn().Msg("Previous retention sweep still running, skipping this cycle")
				continue
			}

			rs.wg.Add(1)
			go func() {
				defer rs.wg.Done()
				defer rs.sweeping.Store(false)
				rs.sweep()
			}()

		case <-rs.ctx.Done():
			rs.logger.Info().Msg("RetentionService stopping gracefully")
			return
		}
	}
}

// sweep issues one delete through the gateway. Failures are logged and
// left for the next scheduled run; there is no retry within a cycle.
func (rs *RetentionService) sweep() {
	removed, err := rs.gateway.DeleteOlderThan(context.Background(), rs.horizon)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Retention sweep failed, next cycle will catch up")
		return
	}

	rs.logger.Info().Int64("rows_removed", removed).Msg("Retention sweep completed")
}
