package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope narrows the analysis to a category, product, or marketplace.
type Scope struct {
	Type         string   `json:"type" yaml:"type"` // "category" | "product" | "marketplace"
	Value        string   `json:"value" yaml:"value"`
	Marketplaces []string `json:"marketplaces,omitempty" yaml:"marketplaces,omitempty"`
}

// SourceHandle points at one source's rows: a file path (JSON or CSV)
// or inline rows. Exactly one of Path/Rows should be set.
type SourceHandle struct {
	Path string                   `json:"path,omitempty" yaml:"path,omitempty"`
	Rows []map[string]interface{} `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Empty reports whether the handle carries no data at all.
func (h *SourceHandle) Empty() bool {
	return h == nil || (h.Path == "" && len(h.Rows) == 0)
}

// Brief is the caller-supplied analysis request. Sources are declared
// per kind; the engine never guesses a source's kind from its filename.
type Brief struct {
	Mode         string                      `json:"mode" yaml:"mode"`
	BusinessGoal string                      `json:"business_goal" yaml:"business_goal"`
	Scope        Scope                       `json:"scope" yaml:"scope"`
	Region       string                      `json:"region,omitempty" yaml:"region,omitempty"`
	Timeframe    string                      `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
	KPIPriority  []string                    `json:"kpi_priority,omitempty" yaml:"kpi_priority,omitempty"`
	Constraints  []string                    `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Query        string                      `json:"query,omitempty" yaml:"query,omitempty"`
	QueryType    string                      `json:"query_type,omitempty" yaml:"query_type,omitempty"`
	DataSources  map[SourceKind]SourceHandle `json:"data_sources" yaml:"data_sources"`

	UpdateMemory  bool   `json:"update_memory,omitempty" yaml:"update_memory,omitempty"`
	AnalysisTheme string `json:"analysis_theme,omitempty" yaml:"analysis_theme,omitempty"`
}

// Constraints captures the free-text constraint directives the engine
// understands.
type Constraints struct {
	NegativeReviewsOnly    bool
	PremiumCompetitorsOnly bool
	OptimizeMargins        bool
}

// ParseConstraints scans the brief's constraint lines for known
// directives. Unknown text is ignored.
func (b *Brief) ParseConstraints() Constraints {
	text := strings.ToLower(strings.Join(b.Constraints, " "))
	return Constraints{
		NegativeReviewsOnly:    strings.Contains(text, "negative review"),
		PremiumCompetitorsOnly: strings.Contains(text, "premium competitor"),
		OptimizeMargins:        strings.Contains(text, "margin"),
	}
}

// Validate normalizes the brief in place and returns ErrInvalidBrief
// for structural problems: bad mode, unknown goal, missing scope, or a
// source declared under an unknown kind.
func (b *Brief) Validate() error {
	mode, err := ParseMode(b.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBrief, err)
	}
	b.Mode = string(mode)

	goal := strings.ToLower(strings.TrimSpace(b.BusinessGoal))
	if !ValidGoals[goal] {
		allowed := make([]string, 0, len(ValidGoals))
		for g := range ValidGoals {
			allowed = append(allowed, g)
		}
		sort.Strings(allowed)
		return fmt.Errorf("%w: unsupported business_goal %q (allowed: %s)",
			ErrInvalidBrief, b.BusinessGoal, strings.Join(allowed, ", "))
	}
	b.BusinessGoal = goal

	if strings.TrimSpace(b.Scope.Type) == "" || strings.TrimSpace(b.Scope.Value) == "" {
		return fmt.Errorf("%w: scope requires both type and value", ErrInvalidBrief)
	}

	for kind := range b.DataSources {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown source kind %q", ErrInvalidBrief, kind)
		}
	}
	return nil
}

// WantsNextCategory reports whether the brief asks for a next-category
// recommendation.
func (b *Brief) WantsNextCategory() bool {
	if b.QueryType == "next_category" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Query), "what category should i explore next")
}

// LoadBrief reads a brief from a JSON or YAML file, keyed on extension.
func LoadBrief(path string) (*Brief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brief: %w", err)
	}
	var brief Brief
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &brief); err != nil {
			return nil, fmt.Errorf("parse brief yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &brief); err != nil {
			return nil, fmt.Errorf("parse brief json: %w", err)
		}
	}
	return &brief, nil
}
