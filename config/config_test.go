package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "payroll.db", cfg.DB.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Payroll.Workers)
	assert.Equal(t, 5, cfg.Payroll.TopN)
	assert.False(t, cfg.Payroll.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Payroll.Scheduler.Interval)

	hours, err := cfg.Payroll.DailyHours()
	require.NoError(t, err)
	assert.Equal(t, "8", hours.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: A config file and an env override for the worker count
	// WHEN: Loading
	// THEN: File values apply and the env wins over the file
	path := writeConfig(t, `
server:
  port: 9090
db:
  path: ":memory:"
log:
  format: console
payroll:
  workers: 2
  standard_daily_hours: "7.5"
  company_id: acme
  scheduler:
    enabled: true
    interval: 30m
`)
	t.Setenv("PAYROLL_PAYROLL_WORKERS", "16")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.DB.Path)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 16, cfg.Payroll.Workers)
	assert.Equal(t, "acme", cfg.Payroll.CompanyID)
	assert.True(t, cfg.Payroll.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Payroll.Scheduler.Interval)

	hours, err := cfg.Payroll.DailyHours()
	require.NoError(t, err)
	assert.Equal(t, "7.5", hours.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"no workers", "payroll:\n  workers: 0\n"},
		{"bad daily hours", "payroll:\n  standard_daily_hours: \"eight\"\n"},
		{"zero daily hours", "payroll:\n  standard_daily_hours: \"0\"\n"},
		{"negative grace", "payroll:\n  default_grace_minutes: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
