package modes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/models"
)

func newController() *Controller {
	return New(config.Defaults().Thresholds, zap.NewNop())
}

func TestQuickAlwaysPasses(t *testing.T) {
	d := newController().Decide(models.ModeQuick, 0, 0)
	assert.Equal(t, StateQuick, d.State)
	assert.False(t, d.Degraded)
	assert.Empty(t, d.Notice)
	assert.Equal(t, "quick", d.OutputMode())
	assert.False(t, d.FullEvidence())
}

func TestDeepGrantedAboveGate(t *testing.T) {
	d := newController().Decide(models.ModeDeep, 60, 3)
	assert.Equal(t, StateDeep, d.State)
	assert.False(t, d.Degraded)
	assert.Equal(t, "deep", d.OutputMode())
	assert.True(t, d.FullEvidence())
}

func TestDeepDegradesOnLowCompleteness(t *testing.T) {
	d := newController().Decide(models.ModeDeep, 40, 3)
	assert.Equal(t, StateDegradedDeep, d.State)
	assert.True(t, d.Degraded)
	assert.Equal(t, ReasonLowCompleteness, d.Reason)
	assert.Contains(t, d.Notice, "degraded")
	assert.Contains(t, d.Notice, "completeness 40%")
	assert.True(t, d.FullEvidence())
}

func TestDeepDegradesOnTooFewSources(t *testing.T) {
	// source count is checked before the completeness gate
	d := newController().Decide(models.ModeDeep, 90, 2)
	assert.Equal(t, ReasonTooFewSources, d.Reason)
	assert.Contains(t, d.Notice, "2 of 5 sources present")
}

func TestDeepBoundaryValues(t *testing.T) {
	c := newController()
	assert.Equal(t, StateDeep, c.Decide(models.ModeDeep, 50, 3).State)
	assert.Equal(t, StateDegradedDeep, c.Decide(models.ModeDeep, 49, 3).State)
	assert.Equal(t, StateDegradedDeep, c.Decide(models.ModeDeep, 50, 2).State)
}

func TestTrimFindingsByMode(t *testing.T) {
	c := newController()
	findings := make([]models.Finding, 8)
	for i := range findings {
		findings[i] = models.Finding{Claim: fmt.Sprintf("claim %d", i)}
	}

	deep := c.TrimFindings(Decision{State: StateDeep}, findings)
	assert.Len(t, deep, 8)

	quick := c.TrimFindings(Decision{State: StateQuick}, findings)
	assert.Len(t, quick, 5)
	assert.Equal(t, "claim 0", quick[0].Claim)

	degraded := c.TrimFindings(Decision{State: StateDegradedDeep}, findings)
	assert.Len(t, degraded, 5)
}

func TestTrimFindingsShortList(t *testing.T) {
	c := newController()
	findings := []models.Finding{{Claim: "only"}}
	assert.Len(t, c.TrimFindings(Decision{State: StateQuick}, findings), 1)
}
