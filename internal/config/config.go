// Package config loads the one strongly-typed configuration object the
// process is built from. No component reads the environment directly.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ksred/exec-engine/internal/emergency"
	"github.com/ksred/exec-engine/internal/execution"
	"github.com/ksred/exec-engine/internal/risk"
	"github.com/ksred/exec-engine/internal/splitter"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Account   AccountConfig    `mapstructure:"account"`
	Risk      RiskConfig       `mapstructure:"risk"`
	Splitter  splitter.Config  `mapstructure:"splitter"`
	Execution execution.Config `mapstructure:"execution"`
	Emergency emergency.Config `mapstructure:"emergency"`
	Auth      AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AccountConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
}

type RiskConfig struct {
	Limits risk.Limits `mapstructure:"limits"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// Load reads config.yaml (if present), .env, and EXEC_-prefixed
// environment variables into a validated Config.
func Load(configPath string) (*Config, error) {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/exec-engine")
	}

	v.SetEnvPrefix("EXEC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would trade with nonsensical
// limits. Called once at load; components assume a valid config after.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}
	if c.Risk.Limits.DailyLossLimit <= 0 || c.Risk.Limits.DailyLossLimit >= 1 {
		return fmt.Errorf("risk.limits.daily_loss_limit must be in (0,1)")
	}
	if c.Risk.Limits.TotalLossLimit <= 0 || c.Risk.Limits.TotalLossLimit >= 1 {
		return fmt.Errorf("risk.limits.total_loss_limit must be in (0,1)")
	}
	if c.Risk.Limits.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk.limits.max_consecutive_losses must be positive")
	}
	if c.Splitter.ImpactThreshold <= 0 || c.Splitter.ImpactThreshold > 1 {
		return fmt.Errorf("splitter.impact_threshold must be in (0,1]")
	}
	if c.Splitter.MaxAdaptiveChildren <= 0 || c.Splitter.IcebergMaxChildren <= 0 {
		return fmt.Errorf("splitter child caps must be positive")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must not be negative")
	}
	if c.Execution.SlippageRatio < 0 || c.Execution.SlippageRatio >= 0.1 {
		return fmt.Errorf("execution.slippage_ratio must be in [0,0.1)")
	}
	if c.Emergency.Interval <= 0 {
		return fmt.Errorf("emergency.interval must be positive")
	}
	if c.Emergency.PortfolioEmergencyPct >= c.Emergency.PortfolioCriticalPct {
		return fmt.Errorf("emergency portfolio thresholds out of order")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "exec-engine.db")
	v.SetDefault("account.initial_capital", 10_000_000.0)

	limits := risk.DefaultLimits()
	v.SetDefault("risk.limits.daily_loss_limit", limits.DailyLossLimit)
	v.SetDefault("risk.limits.total_loss_limit", limits.TotalLossLimit)
	v.SetDefault("risk.limits.max_consecutive_losses", limits.MaxConsecutiveLosses)

	sp := splitter.DefaultConfig()
	v.SetDefault("splitter.impact_threshold", sp.ImpactThreshold)
	v.SetDefault("splitter.max_adaptive_children", sp.MaxAdaptiveChildren)
	v.SetDefault("splitter.min_adaptive_delay", sp.MinAdaptiveDelay)
	v.SetDefault("splitter.max_adaptive_delay", sp.MaxAdaptiveDelay)
	v.SetDefault("splitter.twap_slices", sp.TWAPSlices)
	v.SetDefault("splitter.twap_interval", sp.TWAPInterval)
	v.SetDefault("splitter.vwap_interval", sp.VWAPInterval)
	v.SetDefault("splitter.iceberg_interval", sp.IcebergInterval)
	v.SetDefault("splitter.iceberg_max_children", sp.IcebergMaxChildren)
	v.SetDefault("splitter.iceberg_volume_ratio", sp.IcebergVolumeRatio)
	v.SetDefault("splitter.price_offset_step", sp.PriceOffsetStep)
	v.SetDefault("splitter.trading_minutes", sp.TradingMinutes)

	ex := execution.DefaultConfig()
	v.SetDefault("execution.max_retries", ex.MaxRetries)
	v.SetDefault("execution.slippage_ratio", ex.SlippageRatio)

	em := emergency.DefaultConfig()
	v.SetDefault("emergency.interval", em.Interval)
	v.SetDefault("emergency.portfolio_emergency_pct", em.PortfolioEmergencyPct)
	v.SetDefault("emergency.portfolio_critical_pct", em.PortfolioCriticalPct)
	v.SetDefault("emergency.position_critical_pct", em.PositionCriticalPct)
	v.SetDefault("emergency.benchmark_crash_pct", em.BenchmarkCrashPct)
	v.SetDefault("emergency.breaker_cool_down", em.BreakerCoolDown)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_secret", "")
}
