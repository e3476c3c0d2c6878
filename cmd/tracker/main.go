package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"MacroTracker/internal/config"
	"MacroTracker/internal/logging"
	"MacroTracker/internal/orchestrator"
	"MacroTracker/internal/planner"
	"MacroTracker/internal/scheduler"
	"MacroTracker/internal/series"
	"MacroTracker/internal/store"
)

// Exit codes: 0 success, 1 run failure, 2 invalid date request, 3 the
// sources returned no data for a non-empty window.
const (
	exitOK      = 0
	exitFailure = 1
	exitBadDate = 2
	exitNoData  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	since := flag.String("since", "", "rebuild the daily series from this date (YYYY-MM-DD)")
	daemon := flag.Bool("daemon", false, "keep running and sync on the configured cron schedule")
	flag.Parse()
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		*cfgPath = v
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitFailure
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		return exitFailure
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		return exitFailure
	}

	// An unparsable date is rejected before anything touches the network.
	var requested *series.Date
	if *since != "" {
		d, err := series.ParseDate(*since)
		if err != nil {
			log.Error().Str("since", *since).Err(err).Msg("invalid start date")
			return exitBadDate
		}
		requested = &d
	}

	st, err := openStore(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return exitFailure
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg, st, log)

	if *daemon {
		if requested != nil {
			log.Warn().Msg("--since is ignored in daemon mode")
		}
		sched := scheduler.New(ctx, orch, log)
		if err := sched.Register(cfg.Schedule.Cron); err != nil {
			log.Error().Err(err).Msg("register cron task")
			return exitFailure
		}
		sched.Start()
		defer sched.Stop()

		if cfg.Schedule.RunOnStart {
			go sched.RunNow()
		}

		log.Info().Str("cron", cfg.Schedule.Cron).Msg("daemon running")
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		return exitOK
	}

	res, err := orch.Run(ctx, requested)
	if err != nil {
		if errors.Is(err, planner.ErrSinceInFuture) || errors.Is(err, planner.ErrSinceBeforeFloor) {
			log.Error().Err(err).Msg("invalid start date")
			return exitBadDate
		}
		log.Error().Err(err).Msg("sync failed")
		return exitFailure
	}
	if res.Mode != planner.ModeNoOp && res.DailyRows == 0 {
		log.Warn().Str("run_id", res.RunID).Msg("sources returned no data for the window")
		return exitNoData
	}
	return exitOK
}

func openStore(cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sheets":
		client := &http.Client{Timeout: 30 * time.Second}
		return store.NewSheets(store.SheetsConfig{
			BaseURL:         cfg.Store.Sheets.BaseURL,
			SpreadsheetID:   cfg.Store.Sheets.SpreadsheetID,
			Token:           cfg.Store.Sheets.Token,
			DailySheet:      cfg.Store.Sheets.DailySheet,
			MonthlySheet:    cfg.Store.Sheets.MonthlySheet,
			ProjectionSheet: cfg.Store.Sheets.ProjectionSheet,
		}, client, log), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath, log)
	default:
		return store.NewNoop(), nil
	}
}
