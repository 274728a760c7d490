package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/marek/imagesim/internal/config"
	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/repository"
)

// One-shot maintenance pass over the metadata store: reports records stuck
// in a non-terminal status past the stuck threshold and, with -fail, moves
// the ones that are out of attempts to failed. Re-enqueueing is left to the
// sweeper inside a running API instance, which owns the worker pool.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "imagesim-sweep",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	failExhausted := flag.Bool("fail", false, "Fail stuck records that are out of attempts")
	limit := flag.Int("limit", 500, "Maximum records to inspect")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	imageRepo := repository.NewImageRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-cfg.Pipeline.StuckThreshold)
	stale, err := imageRepo.ListStale(ctx,
		[]domain.ImageStatus{domain.ImageStatusPending, domain.ImageStatusIndexing},
		cutoff, *limit)
	if err != nil {
		appLogger.WithError(err).Error("Failed to list stuck records")
		os.Exit(1)
	}

	exhausted := 0
	failed := 0
	for _, rec := range stale {
		log := appLogger.WithFields(logger.Fields{
			logger.FieldImageID: rec.ID,
			logger.FieldStatus:  string(rec.Status),
			logger.FieldAttempt: rec.AttemptCount,
		})
		log.Info("Stuck record")

		if rec.AttemptCount < cfg.Pipeline.MaxAttempts {
			continue
		}
		exhausted++

		if *failExhausted {
			moved, err := imageRepo.TransitionStatus(ctx, rec.ID, rec.Status, domain.ImageStatusFailed)
			if err != nil {
				log.WithError(err).Warn("Failed to fail record")
				continue
			}
			if moved {
				failed++
			}
		}
	}

	appLogger.WithFields(logger.Fields{
		"stuck":     len(stale),
		"exhausted": exhausted,
		"failed":    failed,
	}).Info("Sweep completed")
}
