package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: test-secret\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10_000_000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.03, cfg.Risk.Limits.DailyLossLimit)
	assert.Equal(t, 0.10, cfg.Risk.Limits.TotalLossLimit)
	assert.Equal(t, 3, cfg.Risk.Limits.MaxConsecutiveLosses)
	assert.Equal(t, 0.05, cfg.Splitter.ImpactThreshold)
	assert.Equal(t, 10, cfg.Splitter.TWAPSlices)
	assert.Equal(t, 3, cfg.Execution.MaxRetries)
	assert.Equal(t, 0.003, cfg.Execution.SlippageRatio)
	assert.Equal(t, 30*time.Second, cfg.Emergency.Interval)
	assert.Equal(t, -0.15, cfg.Emergency.PortfolioEmergencyPct)
	assert.Equal(t, 30*time.Minute, cfg.Emergency.BreakerCoolDown)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
account:
  initial_capital: 500000
splitter:
  impact_threshold: 0.02
  twap_interval: 30s
emergency:
  interval: 5s
  breaker_cool_down: 10m
auth:
  jwt_secret: test-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 500_000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.02, cfg.Splitter.ImpactThreshold)
	assert.Equal(t, 30*time.Second, cfg.Splitter.TWAPInterval)
	assert.Equal(t, 5*time.Second, cfg.Emergency.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Emergency.BreakerCoolDown)
}

func TestLoad_MissingSecretRejected(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 0\nauth:\n  jwt_secret: s\n"},
		{"zero capital", "account:\n  initial_capital: 0\nauth:\n  jwt_secret: s\n"},
		{"daily loss out of range", "risk:\n  limits:\n    daily_loss_limit: 1.5\nauth:\n  jwt_secret: s\n"},
		{"impact threshold zero", "splitter:\n  impact_threshold: 0\nauth:\n  jwt_secret: s\n"},
		{"negative retries", "execution:\n  max_retries: -1\nauth:\n  jwt_secret: s\n"},
		{"thresholds out of order", "emergency:\n  portfolio_emergency_pct: -0.05\n  portfolio_critical_pct: -0.10\nauth:\n  jwt_secret: s\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}
