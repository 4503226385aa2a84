package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies one of the five logical data sources. Callers
// declare the kind explicitly per handle; it is never inferred from
// file naming.
type SourceKind string

const (
	SourceCatalog     SourceKind = "catalog"
	SourceReviews     SourceKind = "reviews"
	SourcePricing     SourceKind = "pricing"
	SourceCompetitors SourceKind = "competitors"
	SourcePerformance SourceKind = "performance_signals"
)

// AllSourceKinds lists the expected kinds in canonical order.
var AllSourceKinds = []SourceKind{
	SourceCatalog,
	SourceReviews,
	SourcePricing,
	SourceCompetitors,
	SourcePerformance,
}

// Valid reports whether k is one of the five declared kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceCatalog, SourceReviews, SourcePricing, SourceCompetitors, SourcePerformance:
		return true
	}
	return false
}

// Mode is the requested analysis depth.
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeDeep  Mode = "deep"
)

// ParseMode normalizes and validates a raw mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeQuick:
		return ModeQuick, nil
	case ModeDeep:
		return ModeDeep, nil
	}
	return "", fmt.Errorf("unsupported mode %q: use 'quick' or 'deep'", raw)
}

// ValidGoals are the business goals the engine understands.
var ValidGoals = map[string]bool{
	"growth":           true,
	"retention":        true,
	"profitability":    true,
	"market expansion": true,
}

// ErrInvalidBrief is returned when a brief is structurally unusable.
// This is the only hard user-facing failure in the engine; every data
// problem downstream degrades into risk flags instead.
var ErrInvalidBrief = errors.New("invalid analysis brief")

// CatalogItem is one row of the product catalog, keyed by SKU.
type CatalogItem struct {
	SKU      string   `json:"sku"`
	Category string   `json:"category"`
	Price    float64  `json:"price"`
	Stock    int      `json:"stock"`
	Features []string `json:"features"`
}

// Review is a single customer review. SKU is not required to resolve
// into the catalog.
type Review struct {
	SKU       string     `json:"sku"`
	Rating    float64    `json:"rating"` // 1-5; rows outside range are dropped at load time
	Text      string     `json:"text"`
	Themes    []string   `json:"themes,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PriceObservation pairs our price with one competitor's price for a SKU.
type PriceObservation struct {
	SKU             string  `json:"sku"`
	OurPrice        float64 `json:"our_price"`
	Competitor      string  `json:"competitor"`
	CompetitorPrice float64 `json:"competitor_price"`
	Tier            string  `json:"tier,omitempty"`
}

// CompetitorListing is a competitor catalog entry. Its SKU namespace is
// independent from ours; joins happen through PriceObservation or
// category match.
type CompetitorListing struct {
	Competitor    string   `json:"competitor"`
	CompetitorSKU string   `json:"competitor_sku"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	Tier          string   `json:"tier,omitempty"`
	Features      []string `json:"features"`
}

// PerformanceSignal is marketplace funnel data for a SKU. The
// conversions<=views and returns<=conversions relations are not
// enforced at load time; violations surface as data-quality flags.
type PerformanceSignal struct {
	SKU         string  `json:"sku"`
	Views       float64 `json:"views"`
	Conversions float64 `json:"conversions"`
	Returns     float64 `json:"returns"`
}

// SourceStatus records how a single source fared during loading.
type SourceStatus struct {
	Kind        SourceKind `json:"kind"`
	Present     bool       `json:"present"`
	Valid       bool       `json:"valid"`
	LoadedFrom  string     `json:"loaded_from,omitempty"` // path or "inline"
	RowsLoaded  int        `json:"rows_loaded"`
	RowsDropped int        `json:"rows_dropped"`
	Error       string     `json:"error,omitempty"`
}

// DroppedRate returns the fraction of rows dropped during coercion.
func (s SourceStatus) DroppedRate() float64 {
	total := s.RowsLoaded + s.RowsDropped
	if total == 0 {
		return 0
	}
	return float64(s.RowsDropped) / float64(total)
}

// CanonicalDataset is the validated in-memory form of all supplied
// sources. Absent or invalid sources leave their slice empty and are
// accounted for in Statuses.
type CanonicalDataset struct {
	Catalog     []CatalogItem
	Reviews     []Review
	Pricing     []PriceObservation
	Competitors []CompetitorListing
	Performance []PerformanceSignal

	Statuses map[SourceKind]SourceStatus
}

// PresentSources counts sources that loaded and passed validation.
func (d *CanonicalDataset) PresentSources() int {
	n := 0
	for _, st := range d.Statuses {
		if st.Present && st.Valid {
			n++
		}
	}
	return n
}

// SourcePresent reports whether the given kind loaded and validated.
func (d *CanonicalDataset) SourcePresent(kind SourceKind) bool {
	st, ok := d.Statuses[kind]
	return ok && st.Present && st.Valid
}

// EvidenceRef cites one signal backing a finding.
type EvidenceRef struct {
	Source SourceKind `json:"source"`
	Signal string     `json:"signal"` // signal name, e.g. "avg_price_gap_pct"
	Value  string     `json:"value"`  // rendered value at reasoning time
	SKU    string     `json:"sku,omitempty"`
}

// FindingKind labels the narrative slot a finding competes for.
type FindingKind string

const (
	FindingPricingGap      FindingKind = "pricing_gap"
	FindingQualityRisk     FindingKind = "quality_risk"
	FindingConversionDrag  FindingKind = "conversion_drag"
	FindingReturnRisk      FindingKind = "return_risk"
	FindingFeatureGap      FindingKind = "feature_gap"
	FindingStockRisk       FindingKind = "stock_risk"
	FindingPositioningRisk FindingKind = "positioning_risk"
	FindingNextCategory    FindingKind = "next_category"
)

// Finding is an evidence-backed claim produced by the reasoner. It is
// immutable once created and owned by the current run.
type Finding struct {
	ID          string        `json:"id"`
	Kind        FindingKind   `json:"kind"`
	Claim       string        `json:"claim"`
	Evidence    []EvidenceRef `json:"evidence"`
	Strength    float64       `json:"strength"` // 0-1
	SourceCount int           `json:"source_count"`
	Assumption  bool          `json:"assumption,omitempty"` // cites a SKU missing from the catalog
	KPIs        []string      `json:"kpis,omitempty"`       // KPIs this finding speaks to, for memory bias
}

// Report is the final structured output of a run.
type Report struct {
	RunID             string    `json:"run_id"`
	Mode              string    `json:"mode"` // quick | deep | degraded_deep
	Report            string    `json:"report"`
	ConfidenceScore   int       `json:"confidence_score"`
	DataCompleteness  int       `json:"data_completeness"`
	CompletenessLabel string    `json:"completeness_label"` // High | Medium | Low
	Risks             []string  `json:"risks"`
	Recommendations   []string  `json:"recommendations"`
	Findings          []Finding `json:"findings"`
	Degraded          bool      `json:"degraded,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}
