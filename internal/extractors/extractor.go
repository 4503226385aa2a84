// Package extractors computes per-source evidence signals from the
// canonical dataset. Extractors are independent of each other and run
// in parallel; a failed extractor contributes an empty SignalSet and a
// completeness penalty instead of aborting the run.
package extractors

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// Options carries the brief constraints and thresholds that shape
// signal computation.
type Options struct {
	Constraints models.Constraints
	Thresholds  config.Thresholds
}

// ThemeCount is a counted recurring term or feature.
type ThemeCount struct {
	Theme string `json:"theme"`
	Count int    `json:"count"`
}

// StockRisk flags a SKU stocked well below its category median.
type StockRisk struct {
	SKU            string  `json:"sku"`
	Stock          int     `json:"stock"`
	CategoryMedian float64 `json:"category_median"`
}

// SKURate pairs a SKU with a computed percentage rate.
type SKURate struct {
	SKU  string  `json:"sku"`
	Rate float64 `json:"rate"`
}

// TierGap is the aggregate price gap for one pricing tier.
type TierGap struct {
	AvgGapPct     float64 `json:"avg_gap_pct"`
	GapPercentile float64 `json:"gap_percentile"` // share of pairs priced above the competitor
	PairCount     int     `json:"pair_count"`
}

// CatalogSignals are the catalog extractor's outputs.
type CatalogSignals struct {
	ItemCount         int                `json:"item_count"`
	StockRisks        []StockRisk        `json:"stock_risks"`
	FeaturePercentile map[string]float64 `json:"feature_percentile"` // sku -> percentile within category
	CategoryAvgPrice  map[string]float64 `json:"category_avg_price"`
}

// ReviewSignals are the reviews extractor's outputs.
type ReviewSignals struct {
	ReviewsUsed      int          `json:"reviews_used"`
	AvgRating        float64      `json:"avg_rating"`
	TrendDelta       float64      `json:"trend_delta"` // recent-window average minus overall; 0 without timestamps
	NegativeSharePct float64      `json:"negative_share_pct"`
	TopComplaints    []ThemeCount `json:"top_complaints"`
	LowConfidence    bool         `json:"low_confidence"`
}

// PricingSignals are the pricing extractor's outputs.
type PricingSignals struct {
	PairCount          int                `json:"pair_count"`
	AvgGapPct          float64            `json:"avg_gap_pct"`
	OverPricedSharePct float64            `json:"over_priced_share_pct"`
	PerTier            map[string]TierGap `json:"per_tier"`
	VolatileSKUs       []SKURate          `json:"volatile_skus"` // price spread across observations of the same sku/competitor pair
}

// CompetitorSignals are the competitor-listing extractor's outputs.
type CompetitorSignals struct {
	ListingCount int          `json:"listing_count"`
	FeatureGaps  []ThemeCount `json:"feature_gaps"`
	MatchedSKUs  int          `json:"matched_skus"`
}

// PerformanceSignals are the performance extractor's outputs.
type PerformanceSignals struct {
	TotalViews        float64   `json:"total_views"`
	AvgConversionPct  float64   `json:"avg_conversion_pct"`
	AvgReturnPct      float64   `json:"avg_return_pct"`
	Underperformers   []SKURate `json:"underperformers"`
	QualityViolations int       `json:"quality_violations"` // conversions>views or returns>conversions rows
	LowConfidence     bool      `json:"low_confidence"`
}

// SignalSet is one extractor's output. OK is false when the source was
// absent, invalid, or the extractor itself failed; downstream treats
// that as missing evidence, never as an abort.
type SignalSet struct {
	Kind        models.SourceKind   `json:"kind"`
	OK          bool                `json:"ok"`
	NoiseFlags  []string            `json:"noise_flags,omitempty"`
	Catalog     *CatalogSignals     `json:"catalog,omitempty"`
	Reviews     *ReviewSignals      `json:"reviews,omitempty"`
	Pricing     *PricingSignals     `json:"pricing,omitempty"`
	Competitors *CompetitorSignals  `json:"competitors,omitempty"`
	Performance *PerformanceSignals `json:"performance,omitempty"`
}

// Extractor consumes the canonical dataset and produces the SignalSet
// for its source kind.
type Extractor interface {
	Kind() models.SourceKind
	Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error)
}

// All returns the five extractors in canonical order.
func All() []Extractor {
	return []Extractor{
		&CatalogExtractor{},
		&ReviewsExtractor{},
		&PricingExtractor{},
		&CompetitorsExtractor{},
		&PerformanceExtractor{},
	}
}

// RunAll executes every extractor concurrently and collects results
// keyed by source kind. Extractor errors are logged and yield an empty
// SignalSet for that kind.
func RunAll(ctx context.Context, ds *models.CanonicalDataset, opts Options, logger *zap.Logger) (map[models.SourceKind]*SignalSet, error) {
	results := make(map[models.SourceKind]*SignalSet, 5)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, ex := range All() {
		ex := ex
		g.Go(func() error {
			set, err := ex.Extract(gctx, ds, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("extractor failed, recording empty signal set",
					zap.String("source", string(ex.Kind())),
					zap.Error(err),
				)
				set = &SignalSet{Kind: ex.Kind(), OK: false}
			}
			mu.Lock()
			results[ex.Kind()] = set
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
