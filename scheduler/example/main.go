// Command example runs the scheduling service over the in-memory store
// (or Postgres when the config names a database) and seeds it with
// sample appointments.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/practicekit/libsched/scheduler"
	"github.com/practicekit/libsched/scheduler/api"
	"github.com/practicekit/libsched/scheduler/config"
	"github.com/practicekit/libsched/scheduler/recurrence"
	"github.com/practicekit/libsched/scheduler/storage"
	"github.com/practicekit/libsched/scheduler/storage/memory"
	"github.com/practicekit/libsched/scheduler/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("loading config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx := context.Background()

	var (
		store         storage.Storage
		routerCfg     = api.RouterConfig{MetricsEnabled: cfg.MetricsEnabled}
		engine        = recurrence.NewEngine()
		shutdownStore func()
	)
	engine.MaxOccurrences = cfg.MaxOccurrences

	if cfg.DatabaseURL != "" {
		pgStore, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connecting to database", "error", err)
			os.Exit(1)
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("ensuring schema", "error", err)
			os.Exit(1)
		}
		store = pgStore
		routerCfg.HealthChecker = pgStore
		shutdownStore = pgStore.Close
	} else {
		store = memory.New()
	}
	if shutdownStore != nil {
		defer shutdownStore()
	}

	sched, err := scheduler.New(scheduler.Config{
		Storage: store,
		Engine:  engine,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("creating scheduler", "error", err)
		os.Exit(1)
	}

	if err := seed(ctx, sched); err != nil {
		logger.Error("seeding sample data", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.NewHandler(sched, logger), routerCfg)

	logger.Info("starting scheduling service", "listen", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, router); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// seed creates a recurring therapy appointment and an out-of-office
// block so the API has something to serve.
func seed(ctx context.Context, sched *scheduler.Scheduler) error {
	start := nextWeekday(time.Now().UTC(), time.Tuesday).
		Truncate(time.Hour).Add(10 * time.Hour)

	_, err := sched.Create(ctx, &storage.EventRecord{
		Type:        storage.TypeAppointment,
		Title:       "Weekly therapy",
		ClinicianID: "dr-lindqvist",
		ClientID:    "jordan-reyes",
		LocationID:  "main-street",
		Start:       start,
		End:         start.Add(50 * time.Minute),
	}, &recurrence.Config{
		Interval:   2,
		Period:     recurrence.PeriodWeekly,
		WeeklyDays: []recurrence.Weekday{recurrence.Tuesday, recurrence.Thursday},
		End:        recurrence.Termination{Kind: recurrence.EndAfterCount, Count: 10},
	})
	if err != nil {
		return err
	}

	vacation := start.AddDate(0, 1, 0)
	_, err = sched.Create(ctx, &storage.EventRecord{
		Type:        storage.TypeOutOfOffice,
		Title:       "Vacation",
		ClinicianID: "dr-lindqvist",
		Start:       vacation,
		End:         vacation.AddDate(0, 0, 7),
		AllDay:      true,
	}, nil)
	return err
}

func nextWeekday(t time.Time, day time.Weekday) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for t.Weekday() != day {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
