package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Thresholds holds the tunable knobs of the analysis engine. Values
// come from insiteforge.yaml with environment overrides; every field
// has a working default so the engine runs with no config file at all.
type Thresholds struct {
	// Scoring
	WeakEvidence      float64 `mapstructure:"weak_evidence"`       // findings below this strength get a risk flag
	MinSampleViews    float64 `mapstructure:"min_sample_views"`    // performance sample-size floor
	MinSampleReviews  int     `mapstructure:"min_sample_reviews"`  // review volume floor
	DroppedRowPenalty float64 `mapstructure:"dropped_row_penalty"` // dropped-row rate above which a source counts half
	// Modes
	DeepMinCompleteness int `mapstructure:"deep_min_completeness"` // completeness gate for Deep
	DeepMinSources      int `mapstructure:"deep_min_sources"`      // present-source gate for Deep
	QuickTopN           int `mapstructure:"quick_top_n"`           // finding cap in Quick output
	// Extraction
	LowStockRatio      float64 `mapstructure:"low_stock_ratio"`     // stock-risk threshold vs category median
	UnderperformerConv float64 `mapstructure:"underperformer_conv"` // conversion % below which a SKU underperforms
	NoisyRatingRatio   float64 `mapstructure:"noisy_rating_ratio"`  // missing-rating ratio that flags reviews as noisy
	NoisyPricingRatio  float64 `mapstructure:"noisy_pricing_ratio"` // non-positive-price ratio that flags pricing
	NoisyViewsRatio    float64 `mapstructure:"noisy_views_ratio"`   // missing-views ratio that flags performance
	// Memory
	MemoryThemeCap int `mapstructure:"memory_theme_cap"` // past-theme history bound
	// Generation
	GenerationTimeoutMs int    `mapstructure:"generation_timeout_ms"`
	GenerationRPM       int    `mapstructure:"generation_rpm"`
	GenerationModel     string `mapstructure:"generation_model"`
}

// Config is the full engine configuration.
type Config struct {
	Thresholds Thresholds `mapstructure:"thresholds"`
	Memory     struct {
		Backend   string `mapstructure:"backend"` // "file" | "redis"
		Path      string `mapstructure:"path"`
		RedisAddr string `mapstructure:"redis_addr"`
	} `mapstructure:"memory"`
	Journal struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"journal"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// Defaults returns a fully populated configuration.
func Defaults() *Config {
	c := &Config{}
	c.Thresholds = Thresholds{
		WeakEvidence:        0.35,
		MinSampleViews:      200,
		MinSampleReviews:    10,
		DroppedRowPenalty:   0.20,
		DeepMinCompleteness: 50,
		DeepMinSources:      3,
		QuickTopN:           5,
		LowStockRatio:       0.25,
		UnderperformerConv:  2.0,
		NoisyRatingRatio:    0.30,
		NoisyPricingRatio:   0.20,
		NoisyViewsRatio:     0.30,
		MemoryThemeCap:      20,
		GenerationTimeoutMs: 15000,
		GenerationRPM:       30,
		GenerationModel:     "gpt-4o-mini",
	}
	c.Memory.Backend = "file"
	c.Memory.Path = "data/domain_memory.json"
	c.Journal.Enabled = true
	c.Journal.Path = "data/runs.db"
	c.Metrics.Enabled = false
	c.Metrics.Port = 2112
	c.Logging.Level = "info"
	return c
}

// Load reads configuration from INSITEFORGE_CONFIG or the given path,
// falling back to defaults when no file is present. Environment
// variables prefixed INSITEFORGE_ override file values.
func Load(path string) (*Config, error) {
	if env := os.Getenv("INSITEFORGE_CONFIG"); env != "" {
		path = env
	}

	v := viper.New()
	v.SetEnvPrefix("INSITEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// GenerationTimeout returns the prose-generation deadline as a duration.
func (t Thresholds) GenerationTimeout() time.Duration {
	if t.GenerationTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(t.GenerationTimeoutMs) * time.Millisecond
}
