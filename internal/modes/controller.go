// Package modes governs the Quick/Deep/DegradedDeep state machine.
// Deep is gated on a preliminary completeness pass; an under-supplied
// Deep request degrades to quick-shaped output with an explicit
// notice, never a silent relabel.
package modes

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/metrics"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// State is a node in the run's mode state machine.
type State string

const (
	StateQuick        State = "quick"
	StateDeep         State = "deep"
	StateDegradedDeep State = "degraded_deep"
	StateAssembled    State = "assembled"
)

// DegradeReason explains why a Deep request fell back.
type DegradeReason string

const (
	ReasonLowCompleteness DegradeReason = "low_completeness"
	ReasonTooFewSources   DegradeReason = "too_few_sources"
)

// Decision is the controller's verdict for one run. It is immutable
// once made; the assembler consumes it as-is.
type Decision struct {
	Requested models.Mode
	State     State
	Degraded  bool
	Reason    DegradeReason
	Notice    string
}

// OutputMode is the mode string stamped on the report.
func (d Decision) OutputMode() string { return string(d.State) }

// Controller decides the final mode from the preliminary scores.
type Controller struct {
	thresholds config.Thresholds
	logger     *zap.Logger
}

// New creates a mode controller.
func New(thresholds config.Thresholds, logger *zap.Logger) *Controller {
	return &Controller{thresholds: thresholds, logger: logger}
}

// Decide applies the transition rule: Deep requires completeness at or
// above the gate and at least the minimum source count; anything less
// transitions to DegradedDeep. Quick always proceeds as Quick.
func (c *Controller) Decide(requested models.Mode, completeness, sourcesPresent int) Decision {
	if requested == models.ModeQuick {
		return Decision{Requested: requested, State: StateQuick}
	}

	var reason DegradeReason
	switch {
	case sourcesPresent < c.thresholds.DeepMinSources:
		reason = ReasonTooFewSources
	case completeness < c.thresholds.DeepMinCompleteness:
		reason = ReasonLowCompleteness
	default:
		return Decision{Requested: requested, State: StateDeep}
	}

	notice := fmt.Sprintf(
		"Deep analysis was degraded to a directional report: %s (completeness %d%%, %d of %d sources present). Add the missing sources for full depth.",
		degradeText(reason), completeness, sourcesPresent, len(models.AllSourceKinds))

	c.logger.Info("deep mode degraded",
		zap.String("reason", string(reason)),
		zap.Int("completeness", completeness),
		zap.Int("sources_present", sourcesPresent),
	)
	metrics.ModeDegradations.Inc()

	return Decision{
		Requested: requested,
		State:     StateDegradedDeep,
		Degraded:  true,
		Reason:    reason,
		Notice:    notice,
	}
}

func degradeText(reason DegradeReason) string {
	switch reason {
	case ReasonTooFewSources:
		return "fewer than the minimum data sources were available"
	case ReasonLowCompleteness:
		return "data completeness fell below the deep-analysis gate"
	default:
		return "insufficient data"
	}
}

// TrimFindings applies the mode's retrieval depth: Quick and degraded
// output keep the strongest N findings, Deep keeps everything.
func (c *Controller) TrimFindings(d Decision, findings []models.Finding) []models.Finding {
	if d.State == StateDeep {
		return findings
	}
	n := c.thresholds.QuickTopN
	if n <= 0 || len(findings) <= n {
		return findings
	}
	return findings[:n]
}

// FullEvidence reports whether the output carries complete citation
// lists. Quick output carries claims only.
func (d Decision) FullEvidence() bool {
	return d.State == StateDeep || d.State == StateDegradedDeep
}
