package extractors

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// PricingExtractor computes price-gap aggregates per tier and price
// volatility across repeated observations of the same sku/competitor
// pair.
type PricingExtractor struct{}

func (e *PricingExtractor) Kind() models.SourceKind { return models.SourcePricing }

func (e *PricingExtractor) Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &SignalSet{Kind: models.SourcePricing}
	if !ds.SourcePresent(models.SourcePricing) || len(ds.Pricing) == 0 {
		return set, nil
	}

	premiumOnly := opts.Constraints.PremiumCompetitorsOnly

	signals := &PricingSignals{PerTier: make(map[string]TierGap)}
	var gaps []float64
	overPriced := 0
	nonPositive := 0
	tierGaps := make(map[string][]float64)
	pairPrices := make(map[string][]float64) // sku|competitor -> our prices seen

	for _, obs := range ds.Pricing {
		if obs.OurPrice <= 0 || obs.CompetitorPrice <= 0 {
			nonPositive++
			continue
		}
		if premiumOnly && obs.Tier != "premium" {
			continue
		}
		gapPct := (obs.OurPrice - obs.CompetitorPrice) / obs.CompetitorPrice * 100
		gaps = append(gaps, gapPct)
		if gapPct > 0 {
			overPriced++
		}
		tier := obs.Tier
		if tier == "" {
			tier = "standard"
		}
		tierGaps[tier] = append(tierGaps[tier], gapPct)
		key := obs.SKU + "|" + obs.Competitor
		pairPrices[key] = append(pairPrices[key], obs.OurPrice)
	}

	signals.PairCount = len(gaps)
	if len(gaps) > 0 {
		signals.AvgGapPct = mean(gaps)
		signals.OverPricedSharePct = float64(overPriced) / float64(len(gaps)) * 100
	}
	for tier, tg := range tierGaps {
		above := 0
		for _, g := range tg {
			if g > 0 {
				above++
			}
		}
		signals.PerTier[tier] = TierGap{
			AvgGapPct:     mean(tg),
			GapPercentile: float64(above) / float64(len(tg)) * 100,
			PairCount:     len(tg),
		}
	}

	for key, prices := range pairPrices {
		if len(prices) < 2 {
			continue
		}
		if spread := stddev(prices); spread > 0 {
			signals.VolatileSKUs = append(signals.VolatileSKUs, SKURate{SKU: key, Rate: spread})
		}
	}
	sort.Slice(signals.VolatileSKUs, func(i, j int) bool {
		if signals.VolatileSKUs[i].Rate != signals.VolatileSKUs[j].Rate {
			return signals.VolatileSKUs[i].Rate > signals.VolatileSKUs[j].Rate
		}
		return signals.VolatileSKUs[i].SKU < signals.VolatileSKUs[j].SKU
	})

	if total := len(ds.Pricing); total > 0 {
		if ratio := float64(nonPositive) / float64(total); ratio > opts.Thresholds.NoisyPricingRatio {
			set.NoiseFlags = append(set.NoiseFlags,
				fmt.Sprintf("Pricing feed has anomalies: %.0f%% of records have non-positive prices.", ratio*100))
		}
	}

	set.OK = true
	set.Pricing = signals
	return set, nil
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
