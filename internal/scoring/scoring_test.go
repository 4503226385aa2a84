package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/extractors"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

func newScorer() *Scorer {
	return New(config.Defaults().Thresholds)
}

func datasetWith(kinds ...models.SourceKind) *models.CanonicalDataset {
	ds := &models.CanonicalDataset{Statuses: make(map[models.SourceKind]models.SourceStatus)}
	for _, kind := range kinds {
		ds.Statuses[kind] = models.SourceStatus{Kind: kind, Present: true, Valid: true, RowsLoaded: 10}
	}
	return ds
}

func TestCompletenessPerSourceShare(t *testing.T) {
	s := newScorer()

	score, label := s.Completeness(datasetWith())
	assert.Equal(t, 0, score)
	assert.Equal(t, "Low", label)

	score, label = s.Completeness(datasetWith(models.SourceCatalog, models.SourceReviews, models.SourcePricing))
	assert.Equal(t, 60, score)
	assert.Equal(t, "Medium", label)

	score, label = s.Completeness(datasetWith(models.AllSourceKinds...))
	assert.Equal(t, 100, score)
	assert.Equal(t, "High", label)
}

func TestCompletenessHalvesNoisySource(t *testing.T) {
	ds := datasetWith(models.SourceCatalog, models.SourceReviews)
	st := ds.Statuses[models.SourceReviews]
	st.RowsLoaded = 6
	st.RowsDropped = 4 // 40% dropped, over the 20% penalty threshold
	ds.Statuses[models.SourceReviews] = st

	score, _ := newScorer().Completeness(ds)
	assert.Equal(t, 30, score)
}

func TestCompletenessMonotonicInSources(t *testing.T) {
	s := newScorer()
	prev := -1
	var kinds []models.SourceKind
	for _, kind := range models.AllSourceKinds {
		kinds = append(kinds, kind)
		score, _ := s.Completeness(datasetWith(kinds...))
		assert.Greater(t, score, prev)
		prev = score
	}
}

func TestConfidenceZeroWithoutFindings(t *testing.T) {
	got := newScorer().Confidence(nil, datasetWith(models.AllSourceKinds...), nil, 100)
	assert.Equal(t, 0, got)
}

func TestConfidenceCappedByCompleteness(t *testing.T) {
	findings := []models.Finding{{Kind: models.FindingPricingGap, Strength: 1.0, SourceCount: 1}}
	ds := datasetWith(models.SourcePricing)

	// raw = 0.5*100 + 0.3*20 + 0 = 56, capped at completeness 20 + 20
	got := newScorer().Confidence(findings, ds, nil, 20)
	assert.Equal(t, 40, got)
}

func TestConfidenceMonotonicInStrength(t *testing.T) {
	ds := datasetWith(models.SourceCatalog, models.SourceReviews, models.SourcePricing)
	s := newScorer()
	weak := s.Confidence([]models.Finding{{Strength: 0.2}}, ds, nil, 60)
	strong := s.Confidence([]models.Finding{{Strength: 0.8}}, ds, nil, 60)
	assert.Greater(t, strong, weak)
}

func TestConfidenceAdequacyBonus(t *testing.T) {
	ds := datasetWith(models.SourceReviews, models.SourcePerformance)
	findings := []models.Finding{{Strength: 0.5}}
	s := newScorer()

	small := map[models.SourceKind]*extractors.SignalSet{
		models.SourceReviews: {Kind: models.SourceReviews, OK: true,
			Reviews: &extractors.ReviewSignals{ReviewsUsed: 4, LowConfidence: true}},
	}
	large := map[models.SourceKind]*extractors.SignalSet{
		models.SourceReviews: {Kind: models.SourceReviews, OK: true,
			Reviews: &extractors.ReviewSignals{ReviewsUsed: 40}},
		models.SourcePerformance: {Kind: models.SourcePerformance, OK: true,
			Performance: &extractors.PerformanceSignals{TotalViews: 5000}},
	}

	assert.Greater(t, s.Confidence(findings, ds, large, 60), s.Confidence(findings, ds, small, 60))
}

func TestConfidenceDeterministic(t *testing.T) {
	ds := datasetWith(models.SourceCatalog, models.SourcePricing)
	findings := []models.Finding{
		{Kind: models.FindingPricingGap, Strength: 0.62},
		{Kind: models.FindingStockRisk, Strength: 0.41},
	}
	s := newScorer()
	first := s.Confidence(findings, ds, nil, 40)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Confidence(findings, ds, nil, 40))
	}
}

func TestRiskFlagsMissingAndInvalidSources(t *testing.T) {
	ds := datasetWith(models.SourceCatalog)
	ds.Statuses[models.SourceReviews] = models.SourceStatus{
		Kind: models.SourceReviews, Present: true, Valid: false,
		Error: "reviews: missing required column(s): rating",
	}

	flags := newScorer().RiskFlags(nil, ds, nil)
	require.NotEmpty(t, flags)
	assert.Contains(t, flags[0], "Missing sources:")
	assert.Contains(t, flags[0], "pricing")
	assert.NotContains(t, flags[0], "reviews")
	assert.Contains(t, flags[1], "failed validation")
	assert.Contains(t, flags[1], "rating")
}

func TestRiskFlagsWeakAndAssumption(t *testing.T) {
	findings := []models.Finding{
		{Kind: models.FindingStockRisk, Strength: 0.1},
		{Kind: models.FindingQualityRisk, Strength: 0.7, Assumption: true},
	}

	flags := newScorer().RiskFlags(findings, datasetWith(models.AllSourceKinds...), nil)
	require.Len(t, flags, 2)
	assert.Contains(t, flags[0], "Weak evidence")
	assert.Contains(t, flags[1], "Assumption")
}

func TestRiskFlagsCarryExtractorNoise(t *testing.T) {
	sets := map[models.SourceKind]*extractors.SignalSet{
		models.SourcePricing: {Kind: models.SourcePricing, OK: true,
			NoiseFlags: []string{"Pricing feed has anomalies: 40% of records have non-positive prices."}},
	}

	flags := newScorer().RiskFlags(nil, datasetWith(models.AllSourceKinds...), sets)
	require.Len(t, flags, 1)
	assert.Contains(t, flags[0], "anomalies")
}

func TestRiskFlagsContradictions(t *testing.T) {
	findings := []models.Finding{
		{Kind: models.FindingQualityRisk, Strength: 0.6, Evidence: []models.EvidenceRef{
			{Source: models.SourceReviews, Signal: "trend_delta", Value: "-0.80"},
		}},
		{Kind: models.FindingReturnRisk, Strength: 0.6, Evidence: []models.EvidenceRef{
			{Source: models.SourceReviews, Signal: "trend_delta", Value: "0.40"},
		}},
	}

	flags := newScorer().RiskFlags(findings, datasetWith(models.AllSourceKinds...), nil)
	require.Len(t, flags, 1)
	assert.Contains(t, flags[0], "Contradictory findings")
	assert.Contains(t, flags[0], "trend_delta")
}
