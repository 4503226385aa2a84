// Package loader parses the five declared source kinds into the
// canonical dataset. Sources are tolerant by design: a source that is
// absent or fails required-column validation is recorded in the
// dataset statuses and excluded, never fatal to the run. Individual
// rows that fail type coercion are dropped with a counted warning.
package loader

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/metrics"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// SchemaError reports a source that was supplied but whose shape is
// unusable: required columns missing or the file unreadable.
type SchemaError struct {
	Source  models.SourceKind
	Missing []string
	Cause   error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("source %s: missing required column(s): %s",
			e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("source %s: %v", e.Source, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// requiredColumns is the minimum column set per source kind. Optional
// columns absent from the data are filled with zero values downstream.
var requiredColumns = map[models.SourceKind][]string{
	models.SourceCatalog:     {"sku"},
	models.SourceReviews:     {"sku", "rating"},
	models.SourcePricing:     {"sku", "our_price", "competitor_price"},
	models.SourceCompetitors: {"competitor", "category"},
	models.SourcePerformance: {"sku", "views"},
}

// Loader converts declared source handles into a CanonicalDataset.
type Loader struct {
	logger *zap.Logger
}

// New creates a loader.
func New(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load parses every supplied handle. It only errors on context
// cancellation; per-source problems land in the dataset statuses so
// scoring can apply completeness penalties.
func (l *Loader) Load(ctx context.Context, handles map[models.SourceKind]models.SourceHandle, baseDir string) (*models.CanonicalDataset, error) {
	ds := &models.CanonicalDataset{
		Statuses: make(map[models.SourceKind]models.SourceStatus, len(models.AllSourceKinds)),
	}

	for _, kind := range models.AllSourceKinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		handle, ok := handles[kind]
		if !ok || handle.Empty() {
			ds.Statuses[kind] = models.SourceStatus{Kind: kind, Present: false}
			continue
		}

		rows, loadedFrom, err := readRows(handle, baseDir)
		if err != nil {
			schemaErr := &SchemaError{Source: kind, Cause: err}
			l.logger.Warn("source failed to load, treating as absent",
				zap.String("source", string(kind)),
				zap.Error(err),
			)
			metrics.SchemaFailures.WithLabelValues(string(kind)).Inc()
			ds.Statuses[kind] = models.SourceStatus{
				Kind: kind, Present: true, Valid: false,
				LoadedFrom: loadedFrom, Error: schemaErr.Error(),
			}
			continue
		}

		if missing := missingColumns(kind, rows); len(missing) > 0 {
			schemaErr := &SchemaError{Source: kind, Missing: missing}
			l.logger.Warn("source failed schema validation, treating as absent",
				zap.String("source", string(kind)),
				zap.Strings("missing_columns", missing),
			)
			metrics.SchemaFailures.WithLabelValues(string(kind)).Inc()
			ds.Statuses[kind] = models.SourceStatus{
				Kind: kind, Present: true, Valid: false,
				LoadedFrom: loadedFrom, Error: schemaErr.Error(),
			}
			continue
		}

		status := models.SourceStatus{Kind: kind, Present: true, Valid: true, LoadedFrom: loadedFrom}
		switch kind {
		case models.SourceCatalog:
			ds.Catalog, status = coerceCatalog(rows, status)
		case models.SourceReviews:
			ds.Reviews, status = coerceReviews(rows, status)
		case models.SourcePricing:
			ds.Pricing, status = coercePricing(rows, status)
		case models.SourceCompetitors:
			ds.Competitors, status = coerceCompetitors(rows, status)
		case models.SourcePerformance:
			ds.Performance, status = coercePerformance(rows, status)
		}

		metrics.RowsLoaded.WithLabelValues(string(kind)).Add(float64(status.RowsLoaded))
		metrics.RowsDropped.WithLabelValues(string(kind)).Add(float64(status.RowsDropped))
		if status.RowsDropped > 0 {
			l.logger.Warn("dropped rows during coercion",
				zap.String("source", string(kind)),
				zap.Int("dropped", status.RowsDropped),
				zap.Int("loaded", status.RowsLoaded),
			)
		}
		ds.Statuses[kind] = status
	}

	return ds, nil
}

// missingColumns returns required columns that appear in no row. An
// empty row set has no columns to validate and passes.
func missingColumns(kind models.SourceKind, rows []map[string]interface{}) []string {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			seen[strings.ToLower(strings.TrimSpace(col))] = true
		}
	}
	var missing []string
	for _, col := range requiredColumns[kind] {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	return missing
}
