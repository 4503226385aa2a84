// Package report renders findings, scores, and recommendations into
// the mode-shaped output. The assembler fails closed: with zero
// surviving findings it states "insufficient evidence" instead of
// fabricating content.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/extractors"
	"github.com/jaisveenkaur/insiteforge/internal/metrics"
	"github.com/jaisveenkaur/insiteforge/internal/models"
	"github.com/jaisveenkaur/insiteforge/internal/modes"
	"github.com/jaisveenkaur/insiteforge/internal/scoring"
)

// Assembler renders the final report.
type Assembler struct {
	gen        Generator
	thresholds config.Thresholds
	logger     *zap.Logger
}

// New creates an assembler. A nil generator disables prose sections.
func New(gen Generator, thresholds config.Thresholds, logger *zap.Logger) *Assembler {
	if gen == nil {
		gen = NoopGenerator{}
	}
	return &Assembler{gen: gen, thresholds: thresholds, logger: logger}
}

// Input bundles everything the assembler needs for one run.
type Input struct {
	RunID    string
	Brief    *models.Brief
	Decision modes.Decision
	Findings []models.Finding
	Scores   scoring.Result
	Sets     map[models.SourceKind]*extractors.SignalSet
	Statuses map[models.SourceKind]models.SourceStatus
}

// Assemble renders the mode-appropriate report.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recommendations := a.recommendations(in)

	var body string
	if in.Decision.State == modes.StateQuick {
		body = a.renderQuick(in, recommendations)
	} else {
		body = a.renderDeep(ctx, in, recommendations)
	}

	return &models.Report{
		RunID:             in.RunID,
		Mode:              in.Decision.OutputMode(),
		Report:            body,
		ConfidenceScore:   in.Scores.Confidence,
		DataCompleteness:  in.Scores.Completeness,
		CompletenessLabel: in.Scores.CompletenessLabel,
		Risks:             append([]string(nil), in.Scores.RiskFlags...),
		Recommendations:   recommendations,
		Findings:          in.Findings,
		Degraded:          in.Decision.Degraded,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// recommendations derives the action list from the surviving findings,
// with the business goal shaping priority.
func (a *Assembler) recommendations(in Input) []string {
	var recs []string
	seen := make(map[models.FindingKind]bool)
	for _, f := range in.Findings {
		if seen[f.Kind] {
			continue
		}
		seen[f.Kind] = true
		switch f.Kind {
		case models.FindingQualityRisk:
			recs = append(recs, "Prioritize the top complaint themes in the next sprint and validate impact on rating and return rate.")
		case models.FindingPricingGap, models.FindingPositioningRisk:
			recs = append(recs, "Run price-position tests on over-priced SKUs against their closest competitor alternatives.")
		case models.FindingConversionDrag:
			recs = append(recs, "Shift traffic allocation toward SKUs with stronger conversion and lower complaint density.")
		case models.FindingReturnRisk:
			recs = append(recs, "Audit high-return SKUs for listing accuracy and packaging issues before scaling spend.")
		case models.FindingFeatureGap:
			recs = append(recs, "Close the highest-frequency feature gaps versus competitors to improve value perception.")
		case models.FindingStockRisk:
			recs = append(recs, "Replenish low-stock SKUs flagged against their category median before demand peaks.")
		case models.FindingNextCategory:
			recs = append(recs, f.Claim)
		}
	}
	if in.Brief.BusinessGoal == "profitability" && len(in.Findings) > 0 {
		recs = append([]string{
			"Prioritize margin protection by reducing discount dependency on SKUs that are already price-competitive.",
		}, recs...)
	}
	if len(recs) == 0 {
		recs = append(recs, "Supply additional data sources; current evidence is too thin for targeted recommendations.")
	}
	return recs
}

func (a *Assembler) renderQuick(in Input, recs []string) string {
	var b strings.Builder
	b.WriteString("# Quick Research Report\n")
	fmt.Fprintf(&b, "- Mode: Quick\n- Business Goal: %s\n\n", title(in.Brief.BusinessGoal))

	b.WriteString("## Bullet Insights\n")
	if len(in.Findings) == 0 {
		b.WriteString("- Insufficient evidence: no finding survived the rejection rules. Supply more sources and re-run.\n")
	}
	for _, f := range in.Findings {
		fmt.Fprintf(&b, "- %s\n", f.Claim)
	}

	b.WriteString("\n## Key Metrics\n")
	a.writeKeyMetrics(&b, in.Sets)

	b.WriteString("\n## Immediate Recommendations\n")
	for _, rec := range recs {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	b.WriteString("\n## Confidence & Reliability\n")
	a.writeReliability(&b, in)
	return b.String()
}

// renderDeep renders the fixed deep section order; DegradedDeep shares
// the shape with the degradation notice leading the summary.
func (a *Assembler) renderDeep(ctx context.Context, in Input, recs []string) string {
	var b strings.Builder
	if in.Decision.State == modes.StateDegradedDeep {
		b.WriteString("# Deep Research Report (Degraded)\n")
	} else {
		b.WriteString("# Deep Research Report\n")
	}
	modeLabel := "Deep"
	if in.Decision.State == modes.StateDegradedDeep {
		modeLabel = "Degraded Deep"
	}
	fmt.Fprintf(&b, "- Mode: %s\n- Business Goal: %s\n\n", modeLabel, title(in.Brief.BusinessGoal))

	b.WriteString("## Executive Summary\n")
	if in.Decision.Degraded {
		fmt.Fprintf(&b, "- %s\n", in.Decision.Notice)
	}
	b.WriteString(a.executiveSummary(ctx, in))

	b.WriteString("\n## Key Findings\n")
	if len(in.Findings) == 0 {
		b.WriteString("- Insufficient evidence: no finding survived the rejection rules. The sections below reflect raw source coverage only.\n")
	}
	for _, f := range in.Findings {
		fmt.Fprintf(&b, "- %s\n", f.Claim)
	}

	b.WriteString("\n## Supporting Evidence\n")
	if in.Decision.FullEvidence() {
		for _, f := range in.Findings {
			for _, ev := range f.Evidence {
				sku := ""
				if ev.SKU != "" {
					sku = " sku=" + ev.SKU
				}
				fmt.Fprintf(&b, "- [%s] %s = %s%s\n", ev.Source, ev.Signal, ev.Value, sku)
			}
		}
	}
	b.WriteString(a.citations(in.Statuses))

	b.WriteString("\n## Competitive Insights\n")
	a.writeCompetitive(&b, in.Sets)

	b.WriteString("\n## Risks & Opportunities\n- Risks:\n")
	if len(in.Scores.RiskFlags) == 0 {
		b.WriteString("  - No severe data quality or coverage risk detected.\n")
	}
	for _, flag := range in.Scores.RiskFlags {
		fmt.Fprintf(&b, "  - %s\n", flag)
	}
	b.WriteString("- Opportunities:\n")
	b.WriteString("  - Improve conversion by targeting complaint-prone SKUs with listing and packaging fixes.\n")
	b.WriteString("  - Gain share through feature-led differentiation where competitors dominate perception.\n")

	b.WriteString("\n## Strategic Recommendations\n")
	for _, rec := range recs {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	b.WriteString("\n## Confidence & Reliability\n")
	a.writeReliability(&b, in)
	return b.String()
}

// executiveSummary asks the generator to phrase the findings; on any
// failure within the timeout it falls back to a templated summary.
func (a *Assembler) executiveSummary(ctx context.Context, in Input) string {
	templated := a.templatedSummary(in)
	if len(in.Findings) == 0 {
		return templated
	}

	facts := a.summaryFacts(in)
	genCtx, cancel := context.WithTimeout(ctx, a.thresholds.GenerationTimeout())
	defer cancel()

	prose, err := a.gen.Generate(genCtx, facts)
	if err != nil {
		if !errors.Is(err, ErrGenerationUnavailable) {
			a.logger.Warn("prose generation failed, using templated summary", zap.Error(err))
			metrics.GenerationFallbacks.Inc()
		}
		return templated
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(prose), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(&b, "- %s\n", strings.TrimPrefix(line, "- "))
		}
	}
	if b.Len() == 0 {
		return templated
	}
	return b.String()
}

func (a *Assembler) templatedSummary(in Input) string {
	if len(in.Findings) == 0 {
		return "- Available data was insufficient to support any evidence-backed finding.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "- Multi-source analysis produced %d evidence-backed finding(s); the strongest: %s\n",
		len(in.Findings), in.Findings[0].Claim)
	fmt.Fprintf(&b, "- Confidence %d%% against %d%% data completeness (%s).\n",
		in.Scores.Confidence, in.Scores.Completeness, in.Scores.CompletenessLabel)
	return b.String()
}

func (a *Assembler) summaryFacts(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business goal: %s. Scope: %s %s.\n", in.Brief.BusinessGoal, in.Brief.Scope.Type, in.Brief.Scope.Value)
	for _, f := range in.Findings {
		fmt.Fprintf(&b, "Finding (%s, strength %.2f): %s\n", f.Kind, f.Strength, f.Claim)
	}
	fmt.Fprintf(&b, "Confidence %d%%, completeness %d%%.\n", in.Scores.Confidence, in.Scores.Completeness)
	return b.String()
}

func (a *Assembler) citations(statuses map[models.SourceKind]models.SourceStatus) string {
	var parts []string
	for _, kind := range models.AllSourceKinds {
		if st, ok := statuses[kind]; ok && st.Present && st.Valid {
			parts = append(parts, fmt.Sprintf("%s: %s", kind, st.LoadedFrom))
		}
	}
	if len(parts) == 0 {
		return "- Citations: none (no source loaded)\n"
	}
	return "- Citations: " + strings.Join(parts, ", ") + "\n"
}

func (a *Assembler) writeKeyMetrics(b *strings.Builder, sets map[models.SourceKind]*extractors.SignalSet) {
	if set := sets[models.SourceReviews]; set != nil && set.OK && set.Reviews != nil {
		fmt.Fprintf(b, "- Reviews used: %d\n- Average rating: %.2f\n- Negative review share: %.1f%%\n",
			set.Reviews.ReviewsUsed, set.Reviews.AvgRating, set.Reviews.NegativeSharePct)
		if len(set.Reviews.TopComplaints) > 0 {
			var themes []string
			for _, tc := range set.Reviews.TopComplaints {
				themes = append(themes, fmt.Sprintf("%s (%d)", tc.Theme, tc.Count))
			}
			fmt.Fprintf(b, "- Top complaints: %s\n", strings.Join(themes, ", "))
		}
	}
	if set := sets[models.SourcePricing]; set != nil && set.OK && set.Pricing != nil && set.Pricing.PairCount > 0 {
		fmt.Fprintf(b, "- Avg price gap vs competitors: %.1f%% across %d pair(s)\n",
			set.Pricing.AvgGapPct, set.Pricing.PairCount)
	}
	if set := sets[models.SourcePerformance]; set != nil && set.OK && set.Performance != nil {
		fmt.Fprintf(b, "- Avg conversion rate: %.2f%%\n- Avg return rate: %.1f%%\n",
			set.Performance.AvgConversionPct, set.Performance.AvgReturnPct)
	}
}

func (a *Assembler) writeCompetitive(b *strings.Builder, sets map[models.SourceKind]*extractors.SignalSet) {
	set := sets[models.SourceCompetitors]
	if set == nil || !set.OK || set.Competitors == nil {
		b.WriteString("- Competitor listings were not available this run.\n")
		return
	}
	if len(set.Competitors.FeatureGaps) > 0 {
		var gaps []string
		for _, gap := range set.Competitors.FeatureGaps {
			gaps = append(gaps, fmt.Sprintf("%s (%d)", gap.Theme, gap.Count))
		}
		fmt.Fprintf(b, "- Feature gaps observed: %s\n", strings.Join(gaps, ", "))
	} else {
		b.WriteString("- No feature gaps detected against the loaded catalog.\n")
	}
	fmt.Fprintf(b, "- Listings analyzed: %d (%d matched to catalog items)\n",
		set.Competitors.ListingCount, set.Competitors.MatchedSKUs)
	if pricing := sets[models.SourcePricing]; pricing != nil && pricing.OK && pricing.Pricing != nil && pricing.Pricing.PairCount > 0 {
		fmt.Fprintf(b, "- Over-priced exposure: %.1f%% of tracked matches\n", pricing.Pricing.OverPricedSharePct)
	}
}

// writeReliability emits the numeric scores and the risk-flag list;
// every report shape carries this section.
func (a *Assembler) writeReliability(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "- Confidence Score: %d%%\n", in.Scores.Confidence)
	fmt.Fprintf(b, "- Data Completeness: %s (%d%%)\n", in.Scores.CompletenessLabel, in.Scores.Completeness)
	b.WriteString("- Risk Flags:\n")
	if len(in.Scores.RiskFlags) == 0 {
		b.WriteString("  - None\n")
		return
	}
	for _, flag := range in.Scores.RiskFlags {
		fmt.Fprintf(b, "  - %s\n", flag)
	}
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
