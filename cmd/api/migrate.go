package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/readalong-api/internal/config"
	"github.com/noah-isme/readalong-api/internal/database"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/internal/scoring"
	"github.com/noah-isme/readalong-api/internal/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema and seed default benchmarks into an empty table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger := newLogger(cfg)

		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		if err := service.EnsureBenchmarks(cmd.Context(), repository.NewBenchmarkRepository(db), logger); err != nil {
			return fmt.Errorf("seed benchmarks: %w", err)
		}
		logger.Info().Msg("schema migrated")
		return nil
	},
}

var seedBenchmarksCmd = &cobra.Command{
	Use:   "seed-benchmarks",
	Short: "Upsert reading benchmarks from a JSON file or the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		rows, err := readBenchmarks(path)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger := newLogger(cfg)

		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		written, err := service.SeedBenchmarks(cmd.Context(), repository.NewBenchmarkRepository(db), rows)
		if err != nil {
			return err
		}
		logger.Info().Int64("rows", written).Msg("benchmarks seeded")
		return nil
	},
}

func init() {
	seedBenchmarksCmd.Flags().String("file", "", "JSON array of {grade, wpm_min, wpm_max, comprehension_min, comprehension_max}")
}

func readBenchmarks(path string) ([]scoring.Benchmark, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmarks: %w", err)
	}
	var rows []scoring.Benchmark
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse benchmarks: %w", err)
	}
	return rows, nil
}
