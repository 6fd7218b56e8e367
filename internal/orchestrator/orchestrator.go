// File: internal/orchestrator/orchestrator.go
// Description: Manages the high-level lifecycle of one scrape: assembles the
// bus, sinks and adapter set for the run, opens the session and waits for the
// first terminal outcome (adapter completion, profile ceiling, caller
// cancellation). Everything it builds dies with the run.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/blocker"
	"github.com/quotescope/quotescope/internal/bus"
	"github.com/quotescope/quotescope/internal/config"
	"github.com/quotescope/quotescope/internal/records"
	"github.com/quotescope/quotescope/internal/session"
	"github.com/quotescope/quotescope/internal/sink"
)

// drainWait gives sinks a brief moment to flush after the session closes.
const drainWait = 200 * time.Millisecond

// Job identifies one page to scrape and how patiently to scrape it.
type Job struct {
	URL      string
	DealerID string
	CarID    string
	Profile  string
}

// Orchestrator runs scrape jobs sequentially. It owns nothing between runs;
// every run gets a fresh bus, sink set, adapter set and browser session.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *adapter.Registry
}

// New creates an Orchestrator.
func New(cfg *config.Config, logger *zap.Logger, registry *adapter.Registry) (*Orchestrator, error) {
	if cfg == nil || logger == nil || registry == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		registry: registry,
	}, nil
}

// Run executes one scrape job to its terminal outcome. A run that ends with a
// not-found placeholder is still a successful run; only infrastructure
// failures (bad config, sink setup, navigation) return an error.
func (o *Orchestrator) Run(ctx context.Context, job Job) error {
	profile, err := o.cfg.Profile(job.Profile)
	if err != nil {
		return err
	}

	meta := records.Metadata{
		PageURL:  job.URL,
		DealerID: job.DealerID,
		CarID:    job.CarID,
	}

	o.logger.Info("Starting scrape",
		zap.String("url", job.URL),
		zap.String("dealer_id", job.DealerID),
		zap.String("car_id", job.CarID),
		zap.String("profile", job.Profile),
		zap.Duration("ceiling", profile.Ceiling))

	events := bus.New(o.logger)
	sink.NewConsoleSink(o.logger).Attach(events)

	fileSink, err := sink.NewFileSink(o.cfg.Sink, o.logger)
	if err != nil {
		return fmt.Errorf("failed to set up result sink: %w", err)
	}
	fileSink.Attach(events)

	// Track whether anything reached the sinks, so a run that dies before any
	// adapter decides still leaves an audit trail.
	var saves atomic.Int64
	events.On(bus.TopicSave, func(bus.Event) { saves.Add(1) })

	deps := adapter.Deps{
		Logger:      o.logger,
		Events:      events,
		Blocker:     blocker.Compile(o.cfg.Blocker),
		GraceWindow: profile.GraceWindow,
	}
	adapters, err := o.registry.Build(o.cfg.Adapters, deps)
	if err != nil {
		return err
	}

	sess := session.New(o.cfg.Browser, adapters, o.logger)

	runCtx, cancel := context.WithTimeout(ctx, profile.Ceiling)
	defer cancel()

	// Backstop: whatever path leaves this function, the browser dies with it.
	defer func() {
		_ = sess.Close(true)
	}()

	if err := sess.Open(runCtx, job.URL, meta); err != nil {
		var navErr *session.NavigationError
		if errors.As(err, &navErr) {
			o.logger.Error("Navigation failed", zap.String("url", job.URL), zap.Error(err))
			events.Error("orchestrator", fmt.Sprintf("navigation failed: %v", navErr.Err), meta)
			if saves.Load() == 0 {
				events.Save("orchestrator",
					records.NewNotFound(nil, fmt.Sprintf("navigation failed: %v", navErr.Err)), meta)
			}
			return err
		}
		return err
	}

	graceful := false
	select {
	case <-sess.Done():
		o.logger.Info("Scrape complete", zap.String("url", job.URL))
		graceful = true
	case <-runCtx.Done():
		if ctx.Err() != nil {
			o.logger.Warn("Scrape cancelled", zap.String("url", job.URL))
		} else {
			o.logger.Warn("Scrape hit profile ceiling, forcing shutdown",
				zap.String("url", job.URL),
				zap.Duration("ceiling", profile.Ceiling))
		}
	}

	_ = sess.Close(!graceful)

	// A forced close skips the session's cleanup pass, so stop the grace
	// timers here; a timer firing after this point would race the audit save.
	if !graceful {
		for _, a := range adapters {
			a.Cleanup()
		}
	}

	// A run that produced no save at all (ceiling hit before any adapter
	// decided) still records the miss.
	if saves.Load() == 0 {
		events.Save("orchestrator", records.NewNotFound(nil, "scrape timed out"), meta)
	}

	time.Sleep(drainWait)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
