package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jaisveenkaur/insiteforge/internal/config"
	"github.com/jaisveenkaur/insiteforge/internal/engine"
	"github.com/jaisveenkaur/insiteforge/internal/journal"
	"github.com/jaisveenkaur/insiteforge/internal/memory"
	"github.com/jaisveenkaur/insiteforge/internal/models"
	"github.com/jaisveenkaur/insiteforge/internal/report"
)

func main() {
	var (
		briefPath    = flag.String("brief", "", "path to the analysis brief (JSON or YAML)")
		outputPath   = flag.String("output", "out/research_report.md", "report output file path")
		configPath   = flag.String("config", "config/insiteforge.yaml", "engine configuration file")
		identity     = flag.String("identity", "default", "memory record identity (user/session key)")
		updateMemory = flag.Bool("update-memory", false, "persist this brief's preferences to domain memory")
		history      = flag.Int("history", 0, "print the last N journaled runs and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			logger.Fatal("create journal dir", zap.Error(err))
		}
		jnl, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			logger.Fatal("open journal", zap.Error(err))
		}
		defer jnl.Close()
	}

	if *history > 0 {
		if jnl == nil {
			logger.Fatal("journal disabled in config, no history available")
		}
		printHistory(ctx, jnl, *history)
		return
	}

	if *briefPath == "" {
		fmt.Fprintln(os.Stderr, "usage: insiteforge --brief brief.json [--output report.md] [--update-memory]")
		os.Exit(2)
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("memory store", zap.Error(err))
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("metrics server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	brief, err := models.LoadBrief(*briefPath)
	if err != nil {
		logger.Fatal("load brief", zap.Error(err))
	}
	if *updateMemory {
		brief.UpdateMemory = true
	}

	var gen report.Generator
	if g := report.NewOpenAIGenerator(cfg.Thresholds.GenerationModel, cfg.Thresholds.GenerationRPM, logger); g != nil {
		gen = g
	}

	eng := engine.New(engine.Options{
		Config:    cfg,
		Store:     store,
		Journal:   jnl,
		Generator: gen,
		Logger:    logger,
	})

	rep, err := eng.Run(ctx, brief, filepath.Dir(*briefPath), *identity)
	if err != nil {
		if errors.Is(err, models.ErrInvalidBrief) {
			fmt.Fprintf(os.Stderr, "brief rejected: %v\n", err)
			os.Exit(2)
		}
		logger.Fatal("analysis run failed", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}
	if err := os.WriteFile(*outputPath, []byte(rep.Report), 0o644); err != nil {
		logger.Fatal("write report", zap.Error(err))
	}

	fmt.Printf("Report written to %s (mode=%s confidence=%d%% completeness=%d%%)\n",
		*outputPath, rep.Mode, rep.ConfidenceScore, rep.DataCompleteness)
	if brief.UpdateMemory {
		fmt.Println("Domain memory updated.")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func newStore(cfg *config.Config, logger *zap.Logger) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "redis":
		return memory.NewRedisStore(cfg.Memory.RedisAddr, cfg.Thresholds.MemoryThemeCap, logger)
	default:
		return memory.NewFileStore(cfg.Memory.Path, cfg.Thresholds.MemoryThemeCap, logger)
	}
}

func printHistory(ctx context.Context, jnl *journal.Journal, n int) {
	entries, err := jnl.Recent(ctx, n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No runs recorded yet.")
		return
	}
	for _, e := range entries {
		degraded := ""
		if e.Degraded {
			degraded = " (degraded)"
		}
		fmt.Printf("%s  %s%s  goal=%s scope=%s confidence=%d%% completeness=%d%% findings=%d risks=%d\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.Mode, degraded,
			e.BusinessGoal, e.ScopeValue, e.Confidence, e.Completeness, e.FindingCount, e.RiskCount)
	}
}
