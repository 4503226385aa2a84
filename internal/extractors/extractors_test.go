package extractors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

func testOptions() Options {
	return Options{Thresholds: config.Defaults().Thresholds}
}

func validStatuses(kinds ...models.SourceKind) map[models.SourceKind]models.SourceStatus {
	statuses := make(map[models.SourceKind]models.SourceStatus)
	for _, kind := range kinds {
		statuses[kind] = models.SourceStatus{Kind: kind, Present: true, Valid: true}
	}
	return statuses
}

func TestCatalogStockRiskAndPercentiles(t *testing.T) {
	ds := &models.CanonicalDataset{
		Catalog: []models.CatalogItem{
			{SKU: "A-1", Category: "audio", Price: 100, Stock: 100, Features: []string{"anc", "bt5"}},
			{SKU: "A-2", Category: "audio", Price: 120, Stock: 90, Features: []string{"anc"}},
			{SKU: "A-3", Category: "audio", Price: 80, Stock: 2, Features: nil},
		},
		Statuses: validStatuses(models.SourceCatalog),
	}

	set, err := (&CatalogExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	require.True(t, set.OK)
	require.NotNil(t, set.Catalog)

	// median stock 90; 2 < 90*0.25
	require.Len(t, set.Catalog.StockRisks, 1)
	assert.Equal(t, "A-3", set.Catalog.StockRisks[0].SKU)

	// A-1 has more features than both peers
	assert.InDelta(t, 66.6, set.Catalog.FeaturePercentile["A-1"], 0.1)
	assert.Equal(t, 0.0, set.Catalog.FeaturePercentile["A-3"])
	assert.InDelta(t, 100.0, set.Catalog.CategoryAvgPrice["audio"], 0.01)
}

func TestReviewsComplaintsAndNegativeShare(t *testing.T) {
	ds := &models.CanonicalDataset{
		Reviews: []models.Review{
			{SKU: "A-1", Rating: 2, Text: "battery drains fast"},
			{SKU: "A-1", Rating: 1, Text: "battery died in a week"},
			{SKU: "A-1", Rating: 2, Text: "poor quality, broke quickly"},
			{SKU: "A-1", Rating: 4, Text: "good value"},
			{SKU: "A-1", Rating: 3, Text: "slow delivery"},
		},
		Statuses: validStatuses(models.SourceReviews),
	}

	set, err := (&ReviewsExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	require.True(t, set.OK)
	rv := set.Reviews

	assert.Equal(t, 5, rv.ReviewsUsed)
	assert.InDelta(t, 2.4, rv.AvgRating, 0.01)
	assert.InDelta(t, 60.0, rv.NegativeSharePct, 0.01)
	assert.True(t, rv.LowConfidence) // under the 10-review sample floor

	require.NotEmpty(t, rv.TopComplaints)
	assert.Equal(t, "battery", rv.TopComplaints[0].Theme)
	assert.Equal(t, 2, rv.TopComplaints[0].Count)
}

func TestReviewsNegativeOnlyConstraint(t *testing.T) {
	ds := &models.CanonicalDataset{
		Reviews: []models.Review{
			{SKU: "A-1", Rating: 1, Text: "bad"},
			{SKU: "A-1", Rating: 5, Text: "great"},
		},
		Statuses: validStatuses(models.SourceReviews),
	}
	opts := testOptions()
	opts.Constraints.NegativeReviewsOnly = true

	set, err := (&ReviewsExtractor{}).Extract(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Reviews.ReviewsUsed)
	assert.InDelta(t, 1.0, set.Reviews.AvgRating, 0.01)
}

func TestReviewsTrendDeltaWithTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := func(days int) *time.Time {
		t := base.AddDate(0, 0, days)
		return &t
	}
	ds := &models.CanonicalDataset{
		Reviews: []models.Review{
			{SKU: "A-1", Rating: 5, Timestamp: ts(0)},
			{SKU: "A-1", Rating: 4, Timestamp: ts(1)},
			{SKU: "A-1", Rating: 1, Timestamp: ts(2)},
		},
		Statuses: validStatuses(models.SourceReviews),
	}

	set, err := (&ReviewsExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	// recent window (last third = latest review) rates 1 vs overall 3.33
	assert.Less(t, set.Reviews.TrendDelta, 0.0)
}

func TestPricingGapAndTiers(t *testing.T) {
	ds := &models.CanonicalDataset{
		Pricing: []models.PriceObservation{
			{SKU: "A-1", OurPrice: 100, Competitor: "Acme", CompetitorPrice: 80, Tier: "standard"},
			{SKU: "A-2", OurPrice: 90, Competitor: "Acme", CompetitorPrice: 100, Tier: "premium"},
		},
		Statuses: validStatuses(models.SourcePricing),
	}

	set, err := (&PricingExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	p := set.Pricing

	assert.Equal(t, 2, p.PairCount)
	assert.InDelta(t, 7.5, p.AvgGapPct, 0.01) // (25 + -10) / 2
	assert.InDelta(t, 50.0, p.OverPricedSharePct, 0.01)
	require.Contains(t, p.PerTier, "standard")
	require.Contains(t, p.PerTier, "premium")
	assert.InDelta(t, 25.0, p.PerTier["standard"].AvgGapPct, 0.01)
	assert.InDelta(t, 100.0, p.PerTier["standard"].GapPercentile, 0.01)
}

func TestPricingVolatility(t *testing.T) {
	ds := &models.CanonicalDataset{
		Pricing: []models.PriceObservation{
			{SKU: "A-1", OurPrice: 100, Competitor: "Acme", CompetitorPrice: 80},
			{SKU: "A-1", OurPrice: 120, Competitor: "Acme", CompetitorPrice: 80},
		},
		Statuses: validStatuses(models.SourcePricing),
	}

	set, err := (&PricingExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	require.Len(t, set.Pricing.VolatileSKUs, 1)
	assert.Equal(t, "A-1|Acme", set.Pricing.VolatileSKUs[0].SKU)
	assert.Greater(t, set.Pricing.VolatileSKUs[0].Rate, 0.0)
}

func TestPricingPremiumOnlyConstraint(t *testing.T) {
	ds := &models.CanonicalDataset{
		Pricing: []models.PriceObservation{
			{SKU: "A-1", OurPrice: 100, Competitor: "Acme", CompetitorPrice: 80, Tier: "standard"},
			{SKU: "A-2", OurPrice: 200, Competitor: "Lux", CompetitorPrice: 100, Tier: "premium"},
		},
		Statuses: validStatuses(models.SourcePricing),
	}
	opts := testOptions()
	opts.Constraints.PremiumCompetitorsOnly = true

	set, err := (&PricingExtractor{}).Extract(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Pricing.PairCount)
	assert.InDelta(t, 100.0, set.Pricing.AvgGapPct, 0.01)
}

func TestPricingNoiseFlagOnNonPositivePrices(t *testing.T) {
	ds := &models.CanonicalDataset{
		Pricing: []models.PriceObservation{
			{SKU: "A-1", OurPrice: 100, CompetitorPrice: 80},
			{SKU: "A-2", OurPrice: 0, CompetitorPrice: 80},
			{SKU: "A-3", OurPrice: -5, CompetitorPrice: 80},
		},
		Statuses: validStatuses(models.SourcePricing),
	}

	set, err := (&PricingExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	require.Len(t, set.NoiseFlags, 1)
	assert.Contains(t, set.NoiseFlags[0], "non-positive prices")
}

func TestCompetitorFeatureGaps(t *testing.T) {
	ds := &models.CanonicalDataset{
		Catalog: []models.CatalogItem{
			{SKU: "A-1", Category: "audio", Features: []string{"anc"}},
		},
		Competitors: []models.CompetitorListing{
			{Competitor: "Acme", CompetitorSKU: "X-A-1", Category: "audio", Features: []string{"anc", "wireless charging"}},
			{Competitor: "Lux", CompetitorSKU: "Y-2", Category: "audio", Features: []string{"wireless charging", "multipoint"}},
		},
		Statuses: validStatuses(models.SourceCatalog, models.SourceCompetitors),
	}

	set, err := (&CompetitorsExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	c := set.Competitors

	require.NotEmpty(t, c.FeatureGaps)
	assert.Equal(t, "wireless charging", c.FeatureGaps[0].Theme)
	assert.Equal(t, 2, c.FeatureGaps[0].Count)
	assert.Equal(t, 2, c.MatchedSKUs)
}

func TestPerformanceRatesAndLowConfidence(t *testing.T) {
	ds := &models.CanonicalDataset{
		Performance: []models.PerformanceSignal{
			{SKU: "A-1", Views: 100, Conversions: 1, Returns: 0},
		},
		Statuses: validStatuses(models.SourcePerformance),
	}

	set, err := (&PerformanceExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	p := set.Performance

	assert.InDelta(t, 1.0, p.AvgConversionPct, 0.01)
	assert.True(t, p.LowConfidence) // 100 views < 200 floor
	require.Len(t, p.Underperformers, 1)
	assert.Equal(t, "A-1", p.Underperformers[0].SKU)
}

func TestPerformanceFunnelViolationFlagged(t *testing.T) {
	ds := &models.CanonicalDataset{
		Performance: []models.PerformanceSignal{
			{SKU: "A-1", Views: 10, Conversions: 20, Returns: 0},
		},
		Statuses: validStatuses(models.SourcePerformance),
	}

	set, err := (&PerformanceExtractor{}).Extract(context.Background(), ds, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, set.Performance.QualityViolations)
	require.NotEmpty(t, set.NoiseFlags)
	assert.Contains(t, set.NoiseFlags[0], "funnel ordering")
}

func TestRunAllProducesFiveSets(t *testing.T) {
	ds := &models.CanonicalDataset{
		Catalog:  []models.CatalogItem{{SKU: "A-1", Category: "audio", Price: 100, Stock: 10}},
		Statuses: validStatuses(models.SourceCatalog),
	}

	sets, err := RunAll(context.Background(), ds, testOptions(), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sets, 5)
	assert.True(t, sets[models.SourceCatalog].OK)
	assert.False(t, sets[models.SourceReviews].OK)
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunAll(ctx, &models.CanonicalDataset{Statuses: map[models.SourceKind]models.SourceStatus{}}, testOptions(), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}
