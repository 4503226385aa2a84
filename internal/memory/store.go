// Package memory persists cross-run user preferences (domain memory).
// The record biases finding ordering at reasoning time and is only
// mutated by the explicit update step after a run assembles.
package memory

import (
	"context"
	"strings"
	"time"
)

// Record is the per-identity domain memory. Sets are deduplicated on
// update; PastThemes is most-recent-first and bounded.
type Record struct {
	PreferredKPIs []string `json:"preferred_kpis"`
	Marketplaces  []string `json:"target_marketplaces"`
	Categories    []string `json:"product_categories"`
	PastThemes    []string `json:"past_analysis_themes"`
	LastUpdated   string   `json:"last_updated,omitempty"`
}

// Empty returns a usable zero record. A missing persisted record is
// never an error.
func Empty() *Record { return &Record{} }

// HasKPI reports whether a KPI is recorded, case-insensitively.
func (r *Record) HasKPI(kpi string) bool {
	kpi = strings.ToLower(strings.TrimSpace(kpi))
	for _, k := range r.PreferredKPIs {
		if strings.ToLower(k) == kpi {
			return true
		}
	}
	return false
}

// HasCategory reports whether a category has been analyzed before.
func (r *Record) HasCategory(category string) bool {
	category = strings.ToLower(strings.TrimSpace(category))
	for _, c := range r.Categories {
		if strings.ToLower(c) == category {
			return true
		}
	}
	return false
}

// RunSummary is what a completed run contributes to memory.
type RunSummary struct {
	KPIs         []string
	Marketplaces []string
	Category     string
	Theme        string
}

// Store is the persistence capability handed to the engine. Both
// backends serialize writers; concurrent updates resolve last-write-wins.
type Store interface {
	// Load returns the record for an identity, or an empty record when
	// none is persisted.
	Load(ctx context.Context, key string) (*Record, error)
	// Update merges a run summary into the persisted record and
	// returns the result.
	Update(ctx context.Context, key string, summary RunSummary) (*Record, error)
	Close() error
}

// merge folds a run summary into a copy of the record, deduplicating
// sets and keeping themes most-recent-first under the cap.
func merge(rec *Record, summary RunSummary, themeCap int) *Record {
	out := &Record{
		PreferredKPIs: append([]string(nil), rec.PreferredKPIs...),
		Marketplaces:  append([]string(nil), rec.Marketplaces...),
		Categories:    append([]string(nil), rec.Categories...),
		PastThemes:    append([]string(nil), rec.PastThemes...),
	}
	for _, kpi := range summary.KPIs {
		out.PreferredKPIs = appendUnique(out.PreferredKPIs, kpi)
	}
	for _, mp := range summary.Marketplaces {
		out.Marketplaces = appendUnique(out.Marketplaces, mp)
	}
	if summary.Category != "" {
		out.Categories = appendUnique(out.Categories, summary.Category)
	}
	if summary.Theme != "" {
		out.PastThemes = prependTheme(out.PastThemes, summary.Theme, themeCap)
	}
	out.LastUpdated = time.Now().UTC().Format("2006-01-02")
	return out
}

func appendUnique(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, item) {
			return list
		}
	}
	return append(list, item)
}

func prependTheme(themes []string, theme string, limit int) []string {
	theme = strings.TrimSpace(theme)
	filtered := make([]string, 0, len(themes)+1)
	filtered = append(filtered, theme)
	for _, t := range themes {
		if !strings.EqualFold(t, theme) {
			filtered = append(filtered, t)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}
