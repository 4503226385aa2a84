package extractors

import (
	"context"
	"fmt"
	"sort"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// PerformanceExtractor computes conversion and return rates. Below the
// minimum-evidence view threshold the signals are still computed but
// marked low-confidence, never suppressed.
type PerformanceExtractor struct{}

func (e *PerformanceExtractor) Kind() models.SourceKind { return models.SourcePerformance }

func (e *PerformanceExtractor) Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &SignalSet{Kind: models.SourcePerformance}
	if !ds.SourcePresent(models.SourcePerformance) || len(ds.Performance) == 0 {
		return set, nil
	}

	signals := &PerformanceSignals{}
	var conversionRates, returnRates []float64

	for _, sig := range ds.Performance {
		signals.TotalViews += sig.Views
		if sig.Conversions > sig.Views || sig.Returns > sig.Conversions {
			signals.QualityViolations++
		}
		if sig.Views > 0 {
			rate := sig.Conversions / sig.Views * 100
			conversionRates = append(conversionRates, rate)
			if rate < opts.Thresholds.UnderperformerConv {
				signals.Underperformers = append(signals.Underperformers, SKURate{SKU: sig.SKU, Rate: rate})
			}
		}
		if sig.Conversions > 0 {
			returnRates = append(returnRates, sig.Returns/sig.Conversions*100)
		}
	}

	signals.AvgConversionPct = mean(conversionRates)
	signals.AvgReturnPct = mean(returnRates)
	signals.LowConfidence = signals.TotalViews < opts.Thresholds.MinSampleViews

	sort.Slice(signals.Underperformers, func(i, j int) bool {
		if signals.Underperformers[i].Rate != signals.Underperformers[j].Rate {
			return signals.Underperformers[i].Rate < signals.Underperformers[j].Rate
		}
		return signals.Underperformers[i].SKU < signals.Underperformers[j].SKU
	})
	if len(signals.Underperformers) > 5 {
		signals.Underperformers = signals.Underperformers[:5]
	}

	if signals.QualityViolations > 0 {
		set.NoiseFlags = append(set.NoiseFlags,
			fmt.Sprintf("Performance signals contain %d row(s) violating funnel ordering (conversions>views or returns>conversions).",
				signals.QualityViolations))
	}
	st := ds.Statuses[models.SourcePerformance]
	if rate := st.DroppedRate(); rate > opts.Thresholds.NoisyViewsRatio {
		set.NoiseFlags = append(set.NoiseFlags,
			"Performance signals are incomplete: a high share of rows were missing views.")
	}

	set.OK = true
	set.Performance = signals
	return set, nil
}
