// Package scoring turns findings and source statuses into the
// report-level confidence and completeness scores plus risk flags.
// Scoring is strictly deterministic: identical inputs always produce
// identical scores.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/extractors"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// Result is the scoring output consumed by the mode controller and the
// assembler.
type Result struct {
	Confidence        int      `json:"confidence"`
	Completeness      int      `json:"completeness"`
	CompletenessLabel string   `json:"completeness_label"`
	RiskFlags         []string `json:"risk_flags"`
	SourcesPresent    int      `json:"sources_present"`
}

// Scorer computes run scores.
type Scorer struct {
	thresholds config.Thresholds
}

// New creates a scorer.
func New(thresholds config.Thresholds) *Scorer {
	return &Scorer{thresholds: thresholds}
}

// Completeness scores source coverage: each of the five kinds
// contributes an equal share when loaded and valid, halved when its
// dropped-row rate exceeds the penalty threshold. Adding a valid
// source never lowers the score.
func (s *Scorer) Completeness(ds *models.CanonicalDataset) (int, string) {
	perSource := 100.0 / float64(len(models.AllSourceKinds))
	var score float64
	for _, kind := range models.AllSourceKinds {
		st, ok := ds.Statuses[kind]
		if !ok || !st.Present || !st.Valid {
			continue
		}
		weight := perSource
		if st.DroppedRate() > s.thresholds.DroppedRowPenalty {
			weight /= 2
		}
		score += weight
	}
	n := int(math.Round(score))
	return n, completenessLabel(n)
}

func completenessLabel(score int) string {
	switch {
	case score >= 80:
		return "High"
	case score >= 50:
		return "Medium"
	default:
		return "Low"
	}
}

// Confidence aggregates finding strength, source coverage, and sample
// adequacy into a 0-100 score. The aggregation is a documented
// weighted mean capped at completeness plus a fixed headroom, so
// confidence can never race far ahead of coverage. Each term is
// monotonic: stronger findings, more present sources, and larger
// samples only ever raise the score.
func (s *Scorer) Confidence(
	findings []models.Finding,
	ds *models.CanonicalDataset,
	sets map[models.SourceKind]*extractors.SignalSet,
	completeness int,
) int {
	if len(findings) == 0 {
		return 0
	}

	var strengthSum float64
	for _, f := range findings {
		strengthSum += f.Strength
	}
	avgStrength := strengthSum / float64(len(findings))

	sourceFrac := float64(ds.PresentSources()) / float64(len(models.AllSourceKinds))

	adequacy := 0.0
	if set := sets[models.SourceReviews]; set != nil && set.OK && set.Reviews != nil && !set.Reviews.LowConfidence {
		adequacy += 0.5
	}
	if set := sets[models.SourcePerformance]; set != nil && set.OK && set.Performance != nil && !set.Performance.LowConfidence {
		adequacy += 0.5
	}

	raw := 0.5*avgStrength*100 + 0.3*sourceFrac*100 + 0.2*adequacy*100
	capped := math.Min(raw, float64(completeness)+20)
	return int(math.Round(math.Max(capped, 5)))
}

// RiskFlags collects every externally visible trace of recovered
// problems: missing/invalid sources, weak findings retained for lack
// of alternatives, contradictory findings, extractor noise flags, and
// assumption downgrades. Output order is deterministic.
func (s *Scorer) RiskFlags(
	findings []models.Finding,
	ds *models.CanonicalDataset,
	sets map[models.SourceKind]*extractors.SignalSet,
) []string {
	var flags []string

	var missing, invalid []string
	for _, kind := range models.AllSourceKinds {
		st, ok := ds.Statuses[kind]
		switch {
		case !ok || !st.Present:
			missing = append(missing, string(kind))
		case !st.Valid:
			invalid = append(invalid, st.Error)
		}
	}
	if len(missing) > 0 {
		flags = append(flags, "Missing sources: "+strings.Join(missing, ", "))
	}
	for _, e := range invalid {
		flags = append(flags, "Source failed validation: "+e)
	}

	for _, kind := range models.AllSourceKinds {
		if set := sets[kind]; set != nil {
			flags = append(flags, set.NoiseFlags...)
		}
	}

	for _, f := range findings {
		if f.Strength < s.thresholds.WeakEvidence {
			flags = append(flags, fmt.Sprintf("Weak evidence: finding %q retained at strength %.2f with no stronger alternative.",
				f.Kind, f.Strength))
		}
		if f.Assumption {
			flags = append(flags, fmt.Sprintf("Assumption: finding %q cites a SKU not present in the loaded catalog.", f.Kind))
		}
	}

	flags = append(flags, contradictions(findings)...)
	return flags
}

// contradictions flags pairs of findings citing the same signal with
// opposite directional values. Most cited signals are one-directional
// percentages and can never disagree; the check bites on signed signals
// such as the reviews trend_delta.
func contradictions(findings []models.Finding) []string {
	type direction struct {
		kind models.FindingKind
		sign int
	}
	seen := make(map[string]direction)
	var flags []string
	for _, f := range findings {
		for _, ev := range f.Evidence {
			v, err := strconv.ParseFloat(strings.TrimSpace(ev.Value), 64)
			if err != nil || v == 0 {
				continue
			}
			sign := 1
			if v < 0 {
				sign = -1
			}
			key := string(ev.Source) + "/" + ev.Signal
			if prev, ok := seen[key]; ok && prev.sign != sign && prev.kind != f.Kind {
				flags = append(flags, fmt.Sprintf("Contradictory findings: %q and %q disagree on %s.",
					prev.kind, f.Kind, ev.Signal))
				continue
			}
			seen[key] = direction{kind: f.Kind, sign: sign}
		}
	}
	sort.Strings(flags)
	return flags
}
