package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/clypser/finance-bot/internal/config"
	infraBQ "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		projectID = flag.String("project", cfg.GCPProject, "GCP project ID (or set GCP_PROJECT env)")
		datasetID = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer repo.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	applied, err := repo.Migrate(ctx, *appliedBy)
	if err != nil {
		log.Error().Err(err).Msg("Migration failed")
		repo.Close()
		os.Exit(1)
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations applied")
}
