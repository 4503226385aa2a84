package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/journal"
	"github.com/jaisveenkaur/insiteforge/internal/memory"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

func newTestEngine(t *testing.T, j *journal.Journal) (*Engine, memory.Store) {
	t.Helper()
	store, err := memory.NewFileStore(t.TempDir(), 20, zap.NewNop())
	require.NoError(t, err)
	return New(Options{Store: store, Journal: j, Logger: zap.NewNop()}), store
}

// fourSourceBrief describes an overpriced, poorly rated store with a
// high return rate. Competitor listings are deliberately absent.
func fourSourceBrief() *models.Brief {
	return &models.Brief{
		Mode:         "deep",
		BusinessGoal: "growth",
		Scope:        models.Scope{Type: "category", Value: "audio"},
		KPIPriority:  []string{"margin"},
		DataSources: map[models.SourceKind]models.SourceHandle{
			models.SourceCatalog: {Rows: []map[string]interface{}{
				{"sku": "A-1", "category": "audio", "price": 100, "stock": 50},
			}},
			models.SourceReviews: {Rows: []map[string]interface{}{
				{"sku": "A-1", "rating": 2, "text": "battery drains fast"},
				{"sku": "A-1", "rating": 1, "text": "battery died"},
				{"sku": "A-1", "rating": 2, "text": "battery barely lasts"},
				{"sku": "A-1", "rating": 3, "text": "average sound"},
				{"sku": "A-1", "rating": 2, "text": "poor quality"},
			}},
			models.SourcePricing: {Rows: []map[string]interface{}{
				{"sku": "A-1", "our_price": 100, "competitor": "Acme", "competitor_price": 80, "tier": "standard"},
			}},
			models.SourcePerformance: {Rows: []map[string]interface{}{
				{"sku": "A-1", "views": 1000, "conversions": 20, "returns": 5},
			}},
		},
	}
}

func findingKinds(rep *models.Report) map[models.FindingKind]bool {
	kinds := make(map[models.FindingKind]bool, len(rep.Findings))
	for _, f := range rep.Findings {
		kinds[f.Kind] = true
	}
	return kinds
}

func TestRunOverpricedStoreEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	rep, err := e.Run(context.Background(), fourSourceBrief(), "", "acme")
	require.NoError(t, err)

	assert.Equal(t, "deep", rep.Mode)
	assert.Equal(t, 80, rep.DataCompleteness)
	assert.Equal(t, "High", rep.CompletenessLabel)
	assert.False(t, rep.Degraded)
	assert.NotEmpty(t, rep.RunID)

	kinds := findingKinds(rep)
	assert.True(t, kinds[models.FindingPricingGap], "expected a pricing gap finding")
	assert.True(t, kinds[models.FindingQualityRisk], "expected a quality risk finding")
	assert.True(t, kinds[models.FindingReturnRisk], "expected a return risk finding")
	assert.True(t, kinds[models.FindingPositioningRisk], "expected the cross-source positioning finding")

	require.NotEmpty(t, rep.Risks)
	assert.Contains(t, rep.Risks[0], "Missing sources: competitors")

	assert.Greater(t, rep.ConfidenceScore, 0)
	assert.LessOrEqual(t, rep.ConfidenceScore, rep.DataCompleteness+20)
	assert.Contains(t, rep.Report, "## Executive Summary")
	assert.Contains(t, rep.Report, "battery")
}

func TestRunIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := e.Run(ctx, fourSourceBrief(), "", "acme")
	require.NoError(t, err)
	second, err := e.Run(ctx, fourSourceBrief(), "", "acme")
	require.NoError(t, err)

	assert.Equal(t, first.ConfidenceScore, second.ConfidenceScore)
	assert.Equal(t, first.DataCompleteness, second.DataCompleteness)
	assert.Equal(t, first.Risks, second.Risks)
	require.Equal(t, len(first.Findings), len(second.Findings))
	for i := range first.Findings {
		assert.Equal(t, first.Findings[i].Claim, second.Findings[i].Claim)
		assert.Equal(t, first.Findings[i].Strength, second.Findings[i].Strength)
	}
}

func TestRunQuickTrimsOutput(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	brief := fourSourceBrief()
	brief.Mode = "quick"

	rep, err := e.Run(context.Background(), brief, "", "acme")
	require.NoError(t, err)

	assert.Equal(t, "quick", rep.Mode)
	assert.LessOrEqual(t, len(rep.Findings), 5)
	assert.Contains(t, rep.Report, "# Quick Research Report")
	assert.NotContains(t, rep.Report, "## Supporting Evidence")
}

func TestRunDeepDegradesWithTwoSources(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	brief := fourSourceBrief()
	delete(brief.DataSources, models.SourceCatalog)
	delete(brief.DataSources, models.SourcePerformance)

	rep, err := e.Run(context.Background(), brief, "", "acme")
	require.NoError(t, err)

	assert.Equal(t, "degraded_deep", rep.Mode)
	assert.True(t, rep.Degraded)
	assert.Contains(t, rep.Report, "degraded to a directional report")
}

func TestRunMalformedRowsStillComplete(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	brief := fourSourceBrief()
	rows := brief.DataSources[models.SourcePricing].Rows
	rows = append(rows, map[string]interface{}{
		"sku": "A-2", "our_price": "not a number", "competitor": "Acme", "competitor_price": 50,
	})
	brief.DataSources[models.SourcePricing] = models.SourceHandle{Rows: rows}

	rep, err := e.Run(context.Background(), brief, "", "acme")
	require.NoError(t, err)
	// pricing dropped half its rows, so its completeness share is halved
	assert.Equal(t, 70, rep.DataCompleteness)
}

func TestRunRejectsInvalidBrief(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	brief := fourSourceBrief()
	brief.BusinessGoal = "dominate"

	_, err := e.Run(context.Background(), brief, "", "acme")
	assert.ErrorIs(t, err, models.ErrInvalidBrief)
}

func TestRunUpdatesMemoryWhenAsked(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	brief := fourSourceBrief()
	brief.UpdateMemory = true
	brief.Scope.Marketplaces = []string{"amazon.de"}

	_, err := e.Run(ctx, brief, "", "acme")
	require.NoError(t, err)
	_, err = e.Run(ctx, brief, "", "acme")
	require.NoError(t, err)

	rec, err := store.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"margin"}, rec.PreferredKPIs)
	assert.Equal(t, []string{"amazon.de"}, rec.Marketplaces)
	assert.Equal(t, []string{"audio"}, rec.Categories)
	assert.Equal(t, []string{"growth analysis of audio"}, rec.PastThemes)
}

func TestRunLeavesMemoryAloneByDefault(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Run(ctx, fourSourceBrief(), "", "acme")
	require.NoError(t, err)

	rec, err := store.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, rec.PreferredKPIs)
	assert.Empty(t, rec.Categories)
}

func TestRunMemoryBiasReordersFindings(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := store.Update(ctx, "acme", memory.RunSummary{KPIs: []string{"margin"}})
	require.NoError(t, err)

	rep, err := e.Run(ctx, fourSourceBrief(), "", "acme")
	require.NoError(t, err)

	require.NotEmpty(t, rep.Findings)
	// every top-ranked finding speaks to the preferred KPI
	assert.Contains(t, rep.Findings[0].KPIs, "margin")
}

func TestRunJournalsCompletedRuns(t *testing.T) {
	j, err := journal.Open(t.TempDir()+"/runs.db", zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	e, _ := newTestEngine(t, j)
	ctx := context.Background()

	rep, err := e.Run(ctx, fourSourceBrief(), "", "acme")
	require.NoError(t, err)

	entries, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rep.RunID, entries[0].RunID)
	assert.Equal(t, "deep", entries[0].Mode)
	assert.Equal(t, rep.ConfidenceScore, entries[0].Confidence)
}

func TestRunCancelledContext(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	brief := fourSourceBrief()
	brief.UpdateMemory = true

	_, err := e.Run(ctx, brief, "", "acme")
	require.ErrorIs(t, err, context.Canceled)

	rec, err := store.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, rec.PreferredKPIs)
}
