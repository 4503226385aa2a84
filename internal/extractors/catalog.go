package extractors

import (
	"context"
	"sort"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// CatalogExtractor derives stock-risk flags and feature-count
// percentiles within each category.
type CatalogExtractor struct{}

func (e *CatalogExtractor) Kind() models.SourceKind { return models.SourceCatalog }

func (e *CatalogExtractor) Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &SignalSet{Kind: models.SourceCatalog}
	if !ds.SourcePresent(models.SourceCatalog) || len(ds.Catalog) == 0 {
		return set, nil
	}

	byCategory := make(map[string][]models.CatalogItem)
	for _, item := range ds.Catalog {
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	signals := &CatalogSignals{
		ItemCount:         len(ds.Catalog),
		FeaturePercentile: make(map[string]float64, len(ds.Catalog)),
		CategoryAvgPrice:  make(map[string]float64, len(byCategory)),
	}

	for category, items := range byCategory {
		stocks := make([]float64, 0, len(items))
		prices := make([]float64, 0, len(items))
		for _, item := range items {
			stocks = append(stocks, float64(item.Stock))
			if item.Price > 0 {
				prices = append(prices, item.Price)
			}
		}
		stockMedian := median(stocks)
		signals.CategoryAvgPrice[category] = mean(prices)

		// Stock below a fraction of the category median flags risk.
		for _, item := range items {
			if stockMedian > 0 && float64(item.Stock) < stockMedian*opts.Thresholds.LowStockRatio {
				signals.StockRisks = append(signals.StockRisks, StockRisk{
					SKU:            item.SKU,
					Stock:          item.Stock,
					CategoryMedian: stockMedian,
				})
			}
		}

		// Feature-count percentile: share of category peers with
		// strictly fewer features.
		counts := make([]int, len(items))
		for i, item := range items {
			counts[i] = len(item.Features)
		}
		for _, item := range items {
			below := 0
			for _, c := range counts {
				if c < len(item.Features) {
					below++
				}
			}
			signals.FeaturePercentile[item.SKU] = float64(below) / float64(len(items)) * 100
		}
	}

	sort.Slice(signals.StockRisks, func(i, j int) bool {
		return signals.StockRisks[i].SKU < signals.StockRisks[j].SKU
	})

	set.OK = true
	set.Catalog = signals
	return set, nil
}
