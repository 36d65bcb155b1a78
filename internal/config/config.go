// Package config defines all configuration for the filtering pipeline.
// Config is loaded from a YAML file whose path the caller supplies, with
// fields overridable via TXOF_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Constants ConstantsConfig `mapstructure:"constants"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ConstantsConfig holds the filter state machine's tunable constants
// (spec §4.5). Defaults match the specification exactly; overriding
// them is meant for testing against a different oracle, not production
// tuning.
//
//   - Alpha:        EMA smoothing weight applied to the previous EMA.
//   - Gamma0/1/2:    outlier-tolerance multipliers (γ₀ < γ₁ < γ₂).
//   - Lambda:        absolute spread ceiling below which any quote is
//     automatically non-outlier.
//   - OpenResetKey:  the time_key sentinel at which ema_prev/q_hat_prev
//     reset to absent (market open).
type ConstantsConfig struct {
	Alpha        float64 `mapstructure:"alpha"`
	Gamma0       float64 `mapstructure:"gamma0"`
	Gamma1       float64 `mapstructure:"gamma1"`
	Gamma2       float64 `mapstructure:"gamma2"`
	Lambda       float64 `mapstructure:"lambda"`
	OpenResetKey string  `mapstructure:"open_reset_key"`
}

// EngineConfig tunes the orchestrator's optional intra-snapshot
// parallelism (spec §5 — only products within one snapshot may run
// concurrently; snapshots themselves are always strictly sequential).
type EngineConfig struct {
	ParallelProducts  bool `mapstructure:"parallel_products"`
	MaxProductWorkers int  `mapstructure:"max_product_workers"`
}

// StoreConfig sets where per-day checkpoints are persisted. Empty
// disables checkpointing.
type StoreConfig struct {
	CheckpointDir string `mapstructure:"checkpoint_dir"`
}

// LoggingConfig selects the slog handler used by the engine.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the specification's fixed constants (§4.5): α=0.95,
// γ₀=1.2, γ₁=1.5, γ₂=2.0, λ=15, reset key "090000".
func Default() Config {
	return Config{
		Constants: ConstantsConfig{
			Alpha:        0.95,
			Gamma0:       1.2,
			Gamma1:       1.5,
			Gamma2:       2.0,
			Lambda:       15,
			OpenResetKey: "090000",
		},
		Engine: EngineConfig{
			ParallelProducts:  false,
			MaxProductWorkers: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a YAML file with env var overrides, seeded
// with Default() so an incomplete file still yields the spec's fixed
// constants.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TXOF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dir := os.Getenv("TXOF_CHECKPOINT_DIR"); dir != "" {
		cfg.Store.CheckpointDir = dir
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Constants.Alpha <= 0 || c.Constants.Alpha >= 1 {
		return fmt.Errorf("constants.alpha must be in (0, 1)")
	}
	if !(c.Constants.Gamma0 < c.Constants.Gamma1 && c.Constants.Gamma1 < c.Constants.Gamma2) {
		return fmt.Errorf("constants.gamma0 < gamma1 < gamma2 must hold")
	}
	if c.Constants.Lambda <= 0 {
		return fmt.Errorf("constants.lambda must be > 0")
	}
	if c.Constants.OpenResetKey == "" {
		return fmt.Errorf("constants.open_reset_key is required")
	}
	if c.Engine.ParallelProducts && c.Engine.MaxProductWorkers <= 0 {
		return fmt.Errorf("engine.max_product_workers must be > 0 when parallel_products is enabled")
	}
	return nil
}

// NewLogger builds the slog logger selected by LoggingConfig, matching
// the handler-selection logic every entry point in this repo's lineage
// uses: JSON handler for "json" format, text handler otherwise.
func (c LoggingConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.Level)}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
