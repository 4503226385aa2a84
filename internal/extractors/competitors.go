package extractors

import (
	"context"
	"strings"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// CompetitorsExtractor finds features competitors carry that the
// matched catalog items lack. Listings match catalog items by category
// plus loose name/sku correlation; listings that match nothing still
// contribute to the global feature-gap set.
type CompetitorsExtractor struct{}

func (e *CompetitorsExtractor) Kind() models.SourceKind { return models.SourceCompetitors }

func (e *CompetitorsExtractor) Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &SignalSet{Kind: models.SourceCompetitors}
	if !ds.SourcePresent(models.SourceCompetitors) || len(ds.Competitors) == 0 {
		return set, nil
	}

	premiumOnly := opts.Constraints.PremiumCompetitorsOnly

	ourFeatures := make(map[string]bool)
	catalogByCategory := make(map[string][]models.CatalogItem)
	for _, item := range ds.Catalog {
		catalogByCategory[normalize(item.Category)] = append(catalogByCategory[normalize(item.Category)], item)
		for _, f := range item.Features {
			if n := normalize(f); n != "" {
				ourFeatures[n] = true
			}
		}
	}

	signals := &CompetitorSignals{ListingCount: len(ds.Competitors)}
	gapCounter := make(map[string]int)
	for _, listing := range ds.Competitors {
		if premiumOnly && listing.Tier != "premium" {
			continue
		}
		if matchesCatalog(listing, catalogByCategory) {
			signals.MatchedSKUs++
		}
		for _, f := range listing.Features {
			n := normalize(f)
			if n != "" && !ourFeatures[n] {
				gapCounter[n]++
			}
		}
	}
	signals.FeatureGaps = topN(gapCounter, 5)

	set.OK = true
	set.Competitors = signals
	return set, nil
}

// matchesCatalog reports whether a listing correlates with any catalog
// item: same category plus a loose sku-token overlap.
func matchesCatalog(listing models.CompetitorListing, byCategory map[string][]models.CatalogItem) bool {
	items, ok := byCategory[normalize(listing.Category)]
	if !ok {
		return false
	}
	compSKU := normalize(listing.CompetitorSKU)
	if compSKU == "" {
		// Category match alone is a weak but acceptable correlation.
		return len(items) > 0
	}
	for _, item := range items {
		sku := normalize(item.SKU)
		if sku == "" {
			continue
		}
		if strings.Contains(compSKU, sku) || strings.Contains(sku, compSKU) {
			return true
		}
	}
	return len(items) > 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
