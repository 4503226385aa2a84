// Package engine wires the analysis pipeline: load, extract in
// parallel, reason, score, decide mode, assemble, then persist memory
// and the run journal. Data problems degrade into risk flags; only a
// structurally invalid brief fails a run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/extractors"
	"github.com/jaisveenkaur/insiteforge/internal/journal"
	"github.com/jaisveenkaur/insiteforge/internal/loader"
	"github.com/jaisveenkaur/insiteforge/internal/memory"
	"github.com/jaisveenkaur/insiteforge/internal/metrics"
	"github.com/jaisveenkaur/insiteforge/internal/models"
	"github.com/jaisveenkaur/insiteforge/internal/modes"
	"github.com/jaisveenkaur/insiteforge/internal/reasoner"
	"github.com/jaisveenkaur/insiteforge/internal/report"
	"github.com/jaisveenkaur/insiteforge/internal/scoring"
)

// Engine runs end-to-end analyses. It holds no per-run state; the
// memory store is the only cross-run dependency and is passed in
// explicitly so the reasoner stays testable.
type Engine struct {
	cfg       *config.Config
	loader    *loader.Loader
	reasoner  *reasoner.Reasoner
	scorer    *scoring.Scorer
	modes     *modes.Controller
	assembler *report.Assembler
	store     memory.Store
	journal   *journal.Journal
	logger    *zap.Logger
}

// Options configures engine construction.
type Options struct {
	Config    *config.Config
	Store     memory.Store
	Journal   *journal.Journal // optional
	Generator report.Generator // optional; nil forces templated output
	Logger    *zap.Logger
}

// New assembles an engine from its collaborators.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		loader:    loader.New(logger),
		reasoner:  reasoner.New(cfg.Thresholds, logger),
		scorer:    scoring.New(cfg.Thresholds),
		modes:     modes.New(cfg.Thresholds, logger),
		assembler: report.New(opts.Generator, cfg.Thresholds, logger),
		store:     opts.Store,
		journal:   opts.Journal,
		logger:    logger,
	}
}

// Run executes one analysis. baseDir resolves relative source paths in
// the brief (normally the brief file's directory); identity keys the
// domain memory record. Cancelling ctx discards partial results and
// skips both the memory update and the journal write.
func (e *Engine) Run(ctx context.Context, brief *models.Brief, baseDir, identity string) (*models.Report, error) {
	if err := brief.Validate(); err != nil {
		return nil, err
	}

	mode := models.Mode(brief.Mode)
	metrics.RunsStarted.WithLabelValues(string(mode)).Inc()
	started := time.Now()
	runID := uuid.New().String()

	logger := e.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))
	logger.Info("analysis run started",
		zap.String("business_goal", brief.BusinessGoal),
		zap.String("scope", brief.Scope.Type+":"+brief.Scope.Value),
	)

	// Memory is read before reasoning even when updates are disabled.
	rec, err := e.store.Load(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return nil, e.fail(mode, ctx.Err())
		}
		logger.Warn("memory load failed, proceeding with empty record", zap.Error(err))
		metrics.MemoryLoadFailures.Inc()
		rec = memory.Empty()
	}

	ds, err := e.loader.Load(ctx, brief.DataSources, baseDir)
	if err != nil {
		return nil, e.fail(mode, err)
	}

	opts := extractors.Options{
		Constraints: brief.ParseConstraints(),
		Thresholds:  e.cfg.Thresholds,
	}
	sets, err := extractors.RunAll(ctx, ds, opts, logger)
	if err != nil {
		return nil, e.fail(mode, err)
	}

	findings, err := e.reasoner.Reason(ctx, sets, ds, rec, brief)
	if err != nil {
		return nil, e.fail(mode, err)
	}

	completeness, label := e.scorer.Completeness(ds)
	confidence := e.scorer.Confidence(findings, ds, sets, completeness)
	scores := scoring.Result{
		Confidence:        confidence,
		Completeness:      completeness,
		CompletenessLabel: label,
		RiskFlags:         e.scorer.RiskFlags(findings, ds, sets),
		SourcesPresent:    ds.PresentSources(),
	}

	decision := e.modes.Decide(mode, completeness, ds.PresentSources())
	trimmed := e.modes.TrimFindings(decision, findings)

	rep, err := e.assembler.Assemble(ctx, report.Input{
		RunID:    runID,
		Brief:    brief,
		Decision: decision,
		Findings: trimmed,
		Scores:   scores,
		Sets:     sets,
		Statuses: ds.Statuses,
	})
	if err != nil {
		return nil, e.fail(mode, err)
	}

	// A cancelled run must not touch memory or the journal.
	if err := ctx.Err(); err != nil {
		return nil, e.fail(mode, err)
	}

	if brief.UpdateMemory {
		summary := memory.RunSummary{
			KPIs:         brief.KPIPriority,
			Marketplaces: brief.Scope.Marketplaces,
			Theme:        brief.AnalysisTheme,
		}
		if brief.Scope.Type == "category" || brief.Scope.Type == "product" {
			summary.Category = brief.Scope.Value
		}
		if summary.Theme == "" {
			summary.Theme = fmt.Sprintf("%s analysis of %s", brief.BusinessGoal, brief.Scope.Value)
		}
		if _, err := e.store.Update(ctx, identity, summary); err != nil {
			logger.Warn("memory update failed", zap.Error(err))
			rep.Risks = append(rep.Risks, "Memory update failed; preferences from this run were not persisted.")
		}
	}

	if e.journal != nil {
		entry := journal.Entry{
			RunID:        runID,
			Mode:         rep.Mode,
			BusinessGoal: brief.BusinessGoal,
			ScopeValue:   brief.Scope.Value,
			Confidence:   rep.ConfidenceScore,
			Completeness: rep.DataCompleteness,
			FindingCount: len(rep.Findings),
			RiskCount:    len(rep.Risks),
			Degraded:     rep.Degraded,
			CreatedAt:    rep.GeneratedAt,
		}
		if err := e.journal.Record(ctx, entry); err != nil {
			logger.Warn("journal write failed", zap.Error(err))
		}
	}

	metrics.RunsCompleted.WithLabelValues(string(mode), "ok").Inc()
	metrics.RunDuration.WithLabelValues(string(mode)).Observe(time.Since(started).Seconds())
	logger.Info("analysis run completed",
		zap.String("final_mode", rep.Mode),
		zap.Int("findings", len(rep.Findings)),
		zap.Int("confidence", rep.ConfidenceScore),
		zap.Int("completeness", rep.DataCompleteness),
	)
	return rep, nil
}

func (e *Engine) fail(mode models.Mode, err error) error {
	metrics.RunsCompleted.WithLabelValues(string(mode), "error").Inc()
	return err
}
