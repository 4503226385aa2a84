// Package reasoner joins extractor signals across sources into
// findings: cited, evidence-backed claims. Memory biases the order
// findings appear in, never their content; a finding is only ever
// created from signals that exist.
package reasoner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/extractors"
	"github.com/jaisveenkaur/insiteforge/internal/memory"
	"github.com/jaisveenkaur/insiteforge/internal/metrics"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// Reasoner synthesizes findings from signal sets.
type Reasoner struct {
	thresholds config.Thresholds
	logger     *zap.Logger
}

// New creates a reasoner.
func New(thresholds config.Thresholds, logger *zap.Logger) *Reasoner {
	return &Reasoner{thresholds: thresholds, logger: logger}
}

// Reason produces the ordered finding list for a run. Candidates with
// no citable evidence are rejected; candidates citing a SKU absent
// from a loaded catalog are downgraded to flagged assumptions.
func (r *Reasoner) Reason(
	ctx context.Context,
	sets map[models.SourceKind]*extractors.SignalSet,
	ds *models.CanonicalDataset,
	rec *memory.Record,
	brief *models.Brief,
) ([]models.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []models.Finding
	candidates = append(candidates, r.pricingFindings(sets)...)
	candidates = append(candidates, r.qualityFindings(sets)...)
	candidates = append(candidates, r.performanceFindings(sets)...)
	candidates = append(candidates, r.competitorFindings(sets)...)
	candidates = append(candidates, r.catalogFindings(sets)...)
	candidates = append(candidates, r.positioningFindings(sets)...)
	if brief.WantsNextCategory() {
		if f, ok := r.nextCategoryFinding(sets, rec); ok {
			candidates = append(candidates, f)
		}
	}

	accepted := make([]models.Finding, 0, len(candidates))
	catalogLoaded := ds.SourcePresent(models.SourceCatalog)
	knownSKUs := make(map[string]bool, len(ds.Catalog))
	for _, item := range ds.Catalog {
		knownSKUs[strings.ToLower(item.SKU)] = true
	}

	for _, f := range candidates {
		if len(f.Evidence) == 0 || f.SourceCount == 0 {
			metrics.FindingsRejected.Inc()
			r.logger.Debug("rejected finding without evidence", zap.String("kind", string(f.Kind)))
			continue
		}
		// A finding naming a SKU the loaded catalog does not know is
		// kept, but flagged as an assumption rather than dropped.
		if catalogLoaded {
			for _, ev := range f.Evidence {
				if ev.SKU != "" && !knownSKUs[strings.ToLower(ev.SKU)] {
					f.Assumption = true
					break
				}
			}
		}
		f.ID = uuid.New().String()
		accepted = append(accepted, f)
		metrics.FindingsEmitted.WithLabelValues(string(f.Kind)).Inc()
	}

	accepted = resolveSlots(accepted)
	orderFindings(accepted, rec)
	return accepted, nil
}

// resolveSlots keeps one finding per narrative slot: higher source
// count wins, then higher strength.
func resolveSlots(findings []models.Finding) []models.Finding {
	best := make(map[models.FindingKind]models.Finding)
	order := make([]models.FindingKind, 0, len(findings))
	for _, f := range findings {
		current, seen := best[f.Kind]
		if !seen {
			best[f.Kind] = f
			order = append(order, f.Kind)
			continue
		}
		if f.SourceCount > current.SourceCount ||
			(f.SourceCount == current.SourceCount && f.Strength > current.Strength) {
			best[f.Kind] = f
		}
	}
	out := make([]models.Finding, 0, len(order))
	for _, kind := range order {
		out = append(out, best[kind])
	}
	return out
}

// orderFindings sorts by strength, then stably promotes findings
// aligned with the recorded KPI preferences.
func orderFindings(findings []models.Finding, rec *memory.Record) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].SourceCount != findings[j].SourceCount {
			return findings[i].SourceCount > findings[j].SourceCount
		}
		return findings[i].Strength > findings[j].Strength
	})
	if rec == nil || len(rec.PreferredKPIs) == 0 {
		return
	}
	preferred := func(f models.Finding) bool {
		for _, kpi := range f.KPIs {
			if rec.HasKPI(kpi) {
				return true
			}
		}
		return false
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return preferred(findings[i]) && !preferred(findings[j])
	})
}

func (r *Reasoner) pricingFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	set := sets[models.SourcePricing]
	if set == nil || !set.OK || set.Pricing == nil || set.Pricing.PairCount == 0 {
		return nil
	}
	p := set.Pricing

	var findings []models.Finding
	if p.AvgGapPct > 0 {
		f := models.Finding{
			Kind: models.FindingPricingGap,
			Claim: fmt.Sprintf("Average price sits %.1f%% above the competitor set across %d matched pair(s).",
				p.AvgGapPct, p.PairCount),
			Evidence: []models.EvidenceRef{
				{Source: models.SourcePricing, Signal: "avg_price_gap_pct", Value: fmt.Sprintf("%.1f", p.AvgGapPct)},
				{Source: models.SourcePricing, Signal: "pair_count", Value: fmt.Sprintf("%d", p.PairCount)},
			},
			Strength:    clamp01(p.AvgGapPct/50 + 0.3),
			SourceCount: 1,
			KPIs:        []string{"margin", "pricing"},
		}
		findings = append(findings, f)
	}
	if len(p.VolatileSKUs) > 0 {
		top := p.VolatileSKUs[0]
		sku := top.SKU
		if idx := strings.Index(sku, "|"); idx > 0 {
			sku = sku[:idx]
		}
		findings = append(findings, models.Finding{
			Kind: models.FindingPricingGap,
			Claim: fmt.Sprintf("Price volatility detected on %d sku/competitor pair(s); largest spread %.2f on %s.",
				len(p.VolatileSKUs), top.Rate, sku),
			Evidence: []models.EvidenceRef{
				{Source: models.SourcePricing, Signal: "price_volatility", Value: fmt.Sprintf("%.2f", top.Rate), SKU: sku},
			},
			Strength:    clamp01(0.25 + float64(len(p.VolatileSKUs))*0.05),
			SourceCount: 1,
			KPIs:        []string{"pricing"},
		})
	}
	return findings
}

func (r *Reasoner) qualityFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	set := sets[models.SourceReviews]
	if set == nil || !set.OK || set.Reviews == nil || set.Reviews.ReviewsUsed == 0 {
		return nil
	}
	rv := set.Reviews
	if rv.AvgRating >= 3.5 && len(rv.TopComplaints) == 0 {
		return nil
	}

	evidence := []models.EvidenceRef{
		{Source: models.SourceReviews, Signal: "avg_rating", Value: fmt.Sprintf("%.2f", rv.AvgRating)},
		{Source: models.SourceReviews, Signal: "negative_share_pct", Value: fmt.Sprintf("%.1f", rv.NegativeSharePct)},
	}
	claim := fmt.Sprintf("Customer dissatisfaction signal: average rating %.2f with %.1f%% negative share.",
		rv.AvgRating, rv.NegativeSharePct)
	sourceCount := 1

	// TrendDelta is signed, so citing it lets the scorer spot a rating
	// that is recovering while the rest of the evidence points down.
	if rv.TrendDelta != 0 {
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourceReviews, Signal: "trend_delta",
			Value: fmt.Sprintf("%.2f", rv.TrendDelta),
		})
	}

	if len(rv.TopComplaints) > 0 {
		top := rv.TopComplaints[0]
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourceReviews, Signal: "top_complaint",
			Value: fmt.Sprintf("%s (%d)", top.Theme, top.Count),
		})
		claim = fmt.Sprintf("Quality risk: average rating %.2f with recurring complaint %q (%d mention(s)).",
			rv.AvgRating, top.Theme, top.Count)
	}

	// Corroborate with return rate when performance data exists.
	if perf := sets[models.SourcePerformance]; perf != nil && perf.OK && perf.Performance != nil && perf.Performance.AvgReturnPct > 0 {
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourcePerformance, Signal: "avg_return_pct",
			Value: fmt.Sprintf("%.1f", perf.Performance.AvgReturnPct),
		})
		sourceCount++
	}

	strength := clamp01((5-rv.AvgRating)/4*0.8 + rv.NegativeSharePct/100*0.2)
	if rv.LowConfidence {
		strength *= 0.7
	}
	return []models.Finding{{
		Kind:        models.FindingQualityRisk,
		Claim:       claim,
		Evidence:    evidence,
		Strength:    strength,
		SourceCount: sourceCount,
		KPIs:        []string{"rating", "retention"},
	}}
}

func (r *Reasoner) performanceFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	set := sets[models.SourcePerformance]
	if set == nil || !set.OK || set.Performance == nil {
		return nil
	}
	p := set.Performance

	var findings []models.Finding
	if len(p.Underperformers) > 0 {
		skus := make([]string, 0, 3)
		evidence := make([]models.EvidenceRef, 0, 3)
		for i, up := range p.Underperformers {
			if i == 3 {
				break
			}
			skus = append(skus, up.SKU)
			evidence = append(evidence, models.EvidenceRef{
				Source: models.SourcePerformance, Signal: "conversion_rate_pct",
				Value: fmt.Sprintf("%.2f", up.Rate), SKU: up.SKU,
			})
		}
		strength := clamp01(0.4 + float64(len(p.Underperformers))*0.08)
		if p.LowConfidence {
			strength *= 0.7
		}
		findings = append(findings, models.Finding{
			Kind: models.FindingConversionDrag,
			Claim: fmt.Sprintf("Execution bottleneck: %d underperforming SKU(s) below the conversion floor (%s).",
				len(p.Underperformers), strings.Join(skus, ", ")),
			Evidence:    evidence,
			Strength:    strength,
			SourceCount: 1,
			KPIs:        []string{"conversion", "growth"},
		})
	}
	if p.AvgReturnPct >= 20 {
		strength := clamp01(p.AvgReturnPct / 100)
		if p.LowConfidence {
			strength *= 0.7
		}
		findings = append(findings, models.Finding{
			Kind: models.FindingReturnRisk,
			Claim: fmt.Sprintf("Return rate averages %.1f%% of conversions, eroding realized revenue.",
				p.AvgReturnPct),
			Evidence: []models.EvidenceRef{
				{Source: models.SourcePerformance, Signal: "avg_return_pct", Value: fmt.Sprintf("%.1f", p.AvgReturnPct)},
			},
			Strength:    strength,
			SourceCount: 1,
			KPIs:        []string{"retention", "margin"},
		})
	}
	return findings
}

func (r *Reasoner) competitorFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	set := sets[models.SourceCompetitors]
	if set == nil || !set.OK || set.Competitors == nil || len(set.Competitors.FeatureGaps) == 0 {
		return nil
	}
	c := set.Competitors

	gaps := make([]string, 0, 3)
	evidence := make([]models.EvidenceRef, 0, 3)
	for i, gap := range c.FeatureGaps {
		if i == 3 {
			break
		}
		gaps = append(gaps, gap.Theme)
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourceCompetitors, Signal: "feature_gap",
			Value: fmt.Sprintf("%s (%d)", gap.Theme, gap.Count),
		})
	}
	sourceCount := 1
	if cat := sets[models.SourceCatalog]; cat != nil && cat.OK && cat.Catalog != nil {
		// The gap set is defined against our catalog features, so a
		// loaded catalog corroborates the claim.
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourceCatalog, Signal: "catalog_items",
			Value: fmt.Sprintf("%d", cat.Catalog.ItemCount),
		})
		sourceCount++
	}
	return []models.Finding{{
		Kind: models.FindingFeatureGap,
		Claim: fmt.Sprintf("Competitors carry features absent from our catalog: %s.",
			strings.Join(gaps, ", ")),
		Evidence:    evidence,
		Strength:    clamp01(0.3 + float64(c.FeatureGaps[0].Count)*0.1),
		SourceCount: sourceCount,
		KPIs:        []string{"growth"},
	}}
}

func (r *Reasoner) catalogFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	set := sets[models.SourceCatalog]
	if set == nil || !set.OK || set.Catalog == nil || len(set.Catalog.StockRisks) == 0 {
		return nil
	}
	risks := set.Catalog.StockRisks

	skus := make([]string, 0, 3)
	evidence := make([]models.EvidenceRef, 0, 3)
	for i, risk := range risks {
		if i == 3 {
			break
		}
		skus = append(skus, risk.SKU)
		evidence = append(evidence, models.EvidenceRef{
			Source: models.SourceCatalog, Signal: "stock_vs_category_median",
			Value: fmt.Sprintf("%d vs %.0f", risk.Stock, risk.CategoryMedian), SKU: risk.SKU,
		})
	}
	return []models.Finding{{
		Kind: models.FindingStockRisk,
		Claim: fmt.Sprintf("Stockout exposure: %d SKU(s) stocked far below their category median (%s).",
			len(risks), strings.Join(skus, ", ")),
		Evidence:    evidence,
		Strength:    clamp01(0.35 + float64(len(risks))*0.08),
		SourceCount: 1,
		KPIs:        []string{"growth"},
	}}
}

// positioningFindings is the flagship cross-source join: priced above
// the competitor median while converting below par.
func (r *Reasoner) positioningFindings(sets map[models.SourceKind]*extractors.SignalSet) []models.Finding {
	pricing := sets[models.SourcePricing]
	perf := sets[models.SourcePerformance]
	if pricing == nil || !pricing.OK || pricing.Pricing == nil || pricing.Pricing.PairCount == 0 {
		return nil
	}
	if perf == nil || !perf.OK || perf.Performance == nil {
		return nil
	}
	p := pricing.Pricing
	pf := perf.Performance
	if p.AvgGapPct <= 0 || pf.AvgConversionPct >= r.thresholds.UnderperformerConv*2 {
		return nil
	}

	strength := clamp01(p.AvgGapPct/40*0.6 + 0.3)
	if pf.LowConfidence {
		strength *= 0.8
	}
	return []models.Finding{{
		Kind: models.FindingPositioningRisk,
		Claim: fmt.Sprintf("Positioning risk: prices average %.1f%% above competitors while conversion sits at %.2f%%.",
			p.AvgGapPct, pf.AvgConversionPct),
		Evidence: []models.EvidenceRef{
			{Source: models.SourcePricing, Signal: "avg_price_gap_pct", Value: fmt.Sprintf("%.1f", p.AvgGapPct)},
			{Source: models.SourcePerformance, Signal: "avg_conversion_pct", Value: fmt.Sprintf("%.2f", pf.AvgConversionPct)},
		},
		Strength:    strength,
		SourceCount: 2,
		KPIs:        []string{"pricing", "conversion", "margin"},
	}}
}

// nextCategoryFinding scores categories by average price with a margin
// bias when "margin" is a preferred KPI and a novelty bias for
// categories memory has not seen.
func (r *Reasoner) nextCategoryFinding(sets map[models.SourceKind]*extractors.SignalSet, rec *memory.Record) (models.Finding, bool) {
	set := sets[models.SourceCatalog]
	if set == nil || !set.OK || set.Catalog == nil || len(set.Catalog.CategoryAvgPrice) == 0 {
		return models.Finding{}, false
	}

	marginBias := rec != nil && rec.HasKPI("margin")
	type scored struct {
		category string
		score    float64
	}
	var ranked []scored
	for category, avgPrice := range set.Catalog.CategoryAvgPrice {
		score := avgPrice
		if marginBias {
			score *= 1.25
		}
		if rec == nil || !rec.HasCategory(category) {
			score *= 1.15
		}
		ranked = append(ranked, scored{category, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].category < ranked[j].category
	})

	best := ranked[0]
	return models.Finding{
		Kind: models.FindingNextCategory,
		Claim: fmt.Sprintf("Explore %q next based on margin-oriented and novelty-weighted category scoring.",
			best.category),
		Evidence: []models.EvidenceRef{
			{Source: models.SourceCatalog, Signal: "category_avg_price",
				Value: fmt.Sprintf("%s: %.2f", best.category, set.Catalog.CategoryAvgPrice[best.category])},
		},
		Strength:    0.5,
		SourceCount: 1,
		KPIs:        []string{"growth", "margin"},
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
