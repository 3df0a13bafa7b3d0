package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kamostudio/restack/adapters/metrics"
	"github.com/kamostudio/restack/ports"
)

// Reaper periodically hard-deletes expired resources. Queries already filter
// expired rows; the reaper reclaims the storage behind them.
type Reaper struct {
	store   ports.ResourceStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
	cron    *cron.Cron
}

// NewReaper creates a reaper sweeping through the given store.
func NewReaper(store ports.ResourceStore, clk ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *Reaper {
	return &Reaper{
		store:   store,
		clock:   clk,
		logger:  logger,
		metrics: collector,
	}
}

// Start begins sweeping on the given cron schedule (e.g. "@every 1m").
func (r *Reaper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Sweep(context.Background()) }); err != nil {
		return err
	}
	r.cron = c
	c.Start()

	r.logger.Info().Str("schedule", schedule).Msg("expiry reaper started")
	return nil
}

// Stop stops the schedule. A sweep already running completes.
func (r *Reaper) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Sweep removes every resource expired at the time of the call. Errors are
// logged and reported via metrics; the next scheduled sweep runs regardless.
func (r *Reaper) Sweep(ctx context.Context) {
	n, err := r.store.DeleteExpired(ctx, r.clock.Now())
	if err != nil {
		r.logger.Error().Err(err).Msg("expiry sweep failed")
		if r.metrics != nil {
			r.metrics.ReaperErrors.Inc()
		}
		return
	}

	if r.metrics != nil {
		r.metrics.ResourcesReaped.Add(float64(n))
	}
	if n > 0 {
		r.logger.Info().Int64("removed", n).Msg("expired resources reaped")
	}
}
