package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/internal/scoring"
)

// ErrNoBenchmarks is returned when the benchmark table has not been seeded.
var ErrNoBenchmarks = errors.New("benchmark table is empty, run seed-benchmarks")

// SeedBenchmarks writes rows (the defaults when rows is empty) and returns how many were written.
func SeedBenchmarks(ctx context.Context, repo repository.BenchmarkRepository, rows []scoring.Benchmark) (int64, error) {
	if len(rows) == 0 {
		rows = scoring.DefaultBenchmarks
	}
	records := make([]models.Benchmark, 0, len(rows))
	for _, row := range rows {
		if row.WPMMin <= 0 || row.WPMMax <= row.WPMMin || row.ComprehensionMax <= row.ComprehensionMin {
			return 0, fmt.Errorf("benchmark for grade %d has an empty range", row.Grade)
		}
		records = append(records, models.BenchmarkFromScoring(row))
	}
	return repo.Upsert(ctx, records)
}

// EnsureBenchmarks seeds the defaults only when the table is empty.
func EnsureBenchmarks(ctx context.Context, repo repository.BenchmarkRepository, logger zerolog.Logger) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	written, err := SeedBenchmarks(ctx, repo, nil)
	if err != nil {
		return err
	}
	logger.Info().Int64("rows", written).Msg("seeded default reading benchmarks")
	return nil
}

// LoadBenchmarkTable reads the benchmark rows once into an immutable lookup.
func LoadBenchmarkTable(ctx context.Context, repo repository.BenchmarkRepository) (*scoring.Table, error) {
	rows, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load benchmarks: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoBenchmarks
	}
	benchmarks := make([]scoring.Benchmark, 0, len(rows))
	for _, row := range rows {
		benchmarks = append(benchmarks, row.ToScoring())
	}
	return scoring.NewTable(benchmarks), nil
}

// BenchmarkService exposes the loaded benchmark table.
type BenchmarkService interface {
	List(ctx context.Context) []dto.BenchmarkResponse
}

type benchmarkService struct {
	table *scoring.Table
}

// NewBenchmarkService wraps an already loaded table.
func NewBenchmarkService(table *scoring.Table) BenchmarkService {
	return &benchmarkService{table: table}
}

func (s *benchmarkService) List(ctx context.Context) []dto.BenchmarkResponse {
	return dto.NewBenchmarkResponseSlice(s.table)
}
