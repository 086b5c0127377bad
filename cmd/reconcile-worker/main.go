// The reconcile worker watches for the two slot states a failed saga can
// leave behind: slots held by an appointment id with no appointment row
// (compensation failed) and slots still held by cancelled appointments
// (release after cancel failed). The former is flagged for an operator, the
// latter is released automatically.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/scheduling/internal/config"
	"github.com/clinicdesk/scheduling/internal/db"
	"github.com/clinicdesk/scheduling/internal/logging"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("dev", "reconcile-worker")
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "reconcile-worker")
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	slots := schedule.NewStore(schedule.NewPgRepository(pgPool), cfg.Location())

	// Run once at startup
	runOnce(rootCtx, slots, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, slots, logger)
		}
	}
}

func runOnce(ctx context.Context, slots *schedule.Store, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	orphans, err := slots.FindOrphanedSlots(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("orphan scan error")
		return
	}
	for _, o := range orphans {
		// Never auto-release these: the appointment write may still be in
		// flight, and silently freeing the slot would reopen double booking.
		logger.Warn().
			Str("slot_id", o.SlotID.String()).
			Str("consumed_by", o.ConsumedBy.String()).
			Time("slot_start", o.Start).
			Msg("slot consumed without appointment, manual reconciliation required")
	}

	released, err := slots.ReleaseCancelledHolds(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("release cancelled holds error")
		return
	}

	logger.Info().
		Int("orphans", len(orphans)).
		Int64("released", released).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
