// Package orchestrator drives one sync run end to end: plan the window,
// fetch the sources, reconcile, derive the monthly view, normalize new
// projection reports and write everything to the destination.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MacroTracker/internal/aggregate"
	"MacroTracker/internal/config"
	"MacroTracker/internal/connector"
	"MacroTracker/internal/merge"
	"MacroTracker/internal/planner"
	"MacroTracker/internal/projection"
	"MacroTracker/internal/series"
	"MacroTracker/internal/store"
)

// Result summarizes a completed run.
type Result struct {
	RunID          string
	Mode           planner.Mode
	DailyRows      int
	MonthlyRows    int
	ProjectionRows int
}

// Orchestrator owns the connectors and the destination for sync runs.
type Orchestrator struct {
	cfg      *config.Config
	store    store.Store
	fetchers []connector.SeriesFetcher
	spot     *connector.Spot
	reports  *projection.Client
	log      zerolog.Logger
}

// New wires the connectors from config. Sources with no configured URL
// are simply not fetched; the index-rate source is always present since
// config validation requires it.
func New(cfg *config.Config, st store.Store, log zerolog.Logger) *Orchestrator {
	client := connector.NewHTTPClient(cfg.Sync.PerSourceTimeout, cfg.Sources.TLSVerifyExceptions)

	fetchers := []connector.SeriesFetcher{
		connector.NewIndexRate(cfg.Sources.IndexRateURL, cfg.Sources.IndexRatePageLimit, client, log),
	}
	if cfg.Sources.FXChartURL != "" {
		fetchers = append(fetchers, connector.NewFXChart(cfg.Sources.FXChartURL, client, log))
	}
	if cfg.Sources.BenchmarkURL != "" {
		fetchers = append(fetchers, connector.NewBenchmark(cfg.Sources.BenchmarkURL, client, log))
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    st,
		fetchers: fetchers,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
	if cfg.Sources.SpotURL != "" {
		o.spot = connector.NewSpot(cfg.Sources.SpotURL,
			connector.NewHTTPClient(cfg.Sync.SpotTimeout, cfg.Sources.TLSVerifyExceptions), log)
	}
	if cfg.Sources.ProjectionListURL != "" {
		o.reports = projection.NewClient(cfg.Sources.ProjectionListURL, cfg.Sources.ProjectionBaseURL, client, log)
	}
	return o
}

// Run executes one sync. requested, when non-nil, forces an overwrite
// from that date; otherwise the window continues from the destination
// cursor. The projection pipeline runs concurrently with the daily
// fetches; all destination writes happen sequentially afterwards.
func (o *Orchestrator) Run(ctx context.Context, requested *series.Date) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Logger()

	cursor, err := o.store.LastDailyDate()
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	plan, err := planner.Daily(cursor, requested, series.Today(), o.cfg.Epoch, o.cfg.EpochMin)
	if err != nil {
		return nil, err
	}
	log.Info().Stringer("mode", plan.Mode).Stringer("since", plan.Since).Stringer("until", plan.Until).
		Msg("run planned")

	// Projection discovery does not depend on the daily window; run it
	// alongside the fetches.
	projCh := make(chan map[series.ReportPeriod]series.ProjectionRecord, 1)
	go func() { projCh <- o.collectProjections(ctx, log) }()

	result := &Result{RunID: runID, Mode: plan.Mode}

	if plan.Mode != planner.ModeNoOp {
		merged, err := o.fetchDaily(ctx, log, plan)
		if err != nil {
			return nil, err
		}
		result.DailyRows = len(merged)

		switch plan.Mode {
		case planner.ModeOverwrite:
			if err := o.store.OverwriteDaily(merged); err != nil {
				return nil, fmt.Errorf("overwrite daily: %w", err)
			}
		case planner.ModeAppend:
			if err := o.store.AppendDaily(merged); err != nil {
				return nil, fmt.Errorf("append daily: %w", err)
			}
		}

		// The monthly view derives from the complete series, not just the
		// fetched window.
		full, err := o.store.ReadDaily()
		if err != nil {
			return nil, fmt.Errorf("read full daily series: %w", err)
		}
		monthly := aggregate.Monthly(full)
		if err := o.store.ReplaceMonthly(monthly); err != nil {
			return nil, fmt.Errorf("replace monthly: %w", err)
		}
		result.MonthlyRows = len(monthly)
	} else {
		log.Info().Msg("daily series up to date")
	}

	projections := <-projCh
	if len(projections) > 0 {
		if err := o.store.UpsertProjections(projections); err != nil {
			return nil, fmt.Errorf("upsert projections: %w", err)
		}
	}
	result.ProjectionRows = len(projections)

	if err := o.store.LogRun(store.RunEntry{
		ID:             runID,
		StartedAt:      started,
		Mode:           plan.Mode.String(),
		DailyRows:      result.DailyRows,
		MonthlyRows:    result.MonthlyRows,
		ProjectionRows: result.ProjectionRows,
	}); err != nil {
		log.Warn().Err(err).Msg("run log write failed")
	}

	log.Info().
		Int("daily_rows", result.DailyRows).
		Int("monthly_rows", result.MonthlyRows).
		Int("projection_rows", result.ProjectionRows).
		Dur("elapsed", time.Since(started)).
		Msg("run complete")
	return result, nil
}

type sourceResult struct {
	name series.SourceID
	data map[series.Date]float64
	err  error
}

// fetchDaily pulls all bulk sources concurrently, tops up FX with the
// spot quote and merges everything into daily records. A failure on the
// index-rate source aborts the run; any other source degrades to absent
// values.
func (o *Orchestrator) fetchDaily(ctx context.Context, log zerolog.Logger, plan planner.Plan) ([]series.DailyRecord, error) {
	sem := make(chan struct{}, o.cfg.Sync.Workers)
	results := make(chan sourceResult, len(o.fetchers))
	var wg sync.WaitGroup

	for _, f := range o.fetchers {
		wg.Add(1)
		go func(f connector.SeriesFetcher) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- sourceResult{name: f.Name(), err: ctx.Err()}
				return
			}

			fctx, cancel := context.WithTimeout(ctx, o.cfg.Sync.PerSourceTimeout)
			defer cancel()
			data, err := f.Fetch(fctx, plan.Since, plan.Until)
			results <- sourceResult{name: f.Name(), data: data, err: err}
		}(f)
	}
	wg.Wait()
	close(results)

	perSource := make(map[series.SourceID]map[series.Date]float64, len(o.fetchers))
	var fatal error
	for res := range results {
		if res.err != nil {
			if errors.Is(res.err, connector.ErrSourceOfRecord) {
				fatal = res.err
				continue
			}
			log.Warn().Str("source", string(res.name)).Err(res.err).Msg("source degraded to absent values")
			continue
		}
		perSource[res.name] = res.data
		log.Info().Str("source", string(res.name)).Int("rows", len(res.data)).Msg("source fetched")
	}
	if fatal != nil {
		return nil, fatal
	}

	o.applySpot(ctx, log, perSource, plan)

	return merge.Daily(perSource), nil
}

// applySpot overlays a same-day FX quote when one is available and falls
// inside the planned window.
func (o *Orchestrator) applySpot(ctx context.Context, log zerolog.Logger, perSource map[series.SourceID]map[series.Date]float64, plan planner.Plan) {
	if o.spot == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.Sync.SpotTimeout)
	defer cancel()
	quote, err := o.spot.Latest(sctx)
	if err != nil || quote == nil {
		return
	}

	fx := perSource[series.SourceFX]
	if fx == nil {
		fx = make(map[series.Date]float64)
	}
	if merge.ApplySpot(fx, quote, plan.Since, plan.Until) {
		perSource[series.SourceFX] = fx
		log.Info().Stringer("date", quote.Date).Float64("value", quote.Value).Msg("spot quote applied")
	} else {
		log.Debug().Stringer("date", quote.Date).Msg("spot quote outside window, ignored")
	}
}

// collectProjections discovers and normalizes new projection reports.
// Projection failures never fail the run; the daily series is the source
// of record, projections catch up on the next sync.
func (o *Orchestrator) collectProjections(ctx context.Context, log zerolog.Logger) map[series.ReportPeriod]series.ProjectionRecord {
	if o.reports == nil {
		return nil
	}

	known, err := o.store.KnownReportPeriods()
	if err != nil {
		log.Warn().Err(err).Msg("known report periods unavailable, skipping projections")
		return nil
	}

	floor := series.ReportPeriod{Year: o.cfg.Epoch.Year(), Month: o.cfg.Epoch.Month()}
	pubs, err := o.reports.ListPublications(ctx, floor)
	if err != nil {
		log.Warn().Err(err).Msg("publication listing unavailable, skipping projections")
		return nil
	}

	return o.reports.Normalize(ctx, pubs, known, o.cfg.Sync.ProjectionWorkers)
}
