package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeEnv(t,
		"SERVER_PORT=9090",
		"AUTH_JWT_SECRET=secret",
		"STAKING_STATIC_PRICE=1.25",
		"STAKING_UNSTAKE_DELAY=48h",
		"ROLES_SLASHERS=0x00000000000000000000000000000000000000b1",
		"SCHEDULER_DECAY_INTERVAL=30m",
	)
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "/api/v1", cfg.Server.Endpoint)
	require.Equal(t, TokenModeMemory, cfg.Staking.TokenMode)
	require.Equal(t, "PRTY", cfg.Staking.Asset)
	require.Equal(t, "1.25", cfg.Staking.StaticPrice)
	require.Equal(t, 3, cfg.Staking.MaxSlashCount)
	require.Equal(t, "*", cfg.Roles.Workers)
	require.False(t, cfg.Database.Enabled())

	delay, err := cfg.Staking.UnstakeDelayDuration()
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, delay)

	interval, err := cfg.Scheduler.DecayIntervalDuration()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, interval)

	ttl, err := cfg.Auth.TokenTTLDuration()
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, ttl)
}

func TestLoadFileFromEnvironmentOnly(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STAKING_STATIC_PRICE", "2")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Auth.JWTSecret)
	require.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadFileValidation(t *testing.T) {
	base := []string{"AUTH_JWT_SECRET=secret", "STAKING_STATIC_PRICE=1"}
	tests := []struct {
		name  string
		extra []string
		want  string
	}{
		{"unknown token mode", []string{"STAKING_TOKEN_MODE=paper"}, "invalid STAKING_TOKEN_MODE"},
		{"ethereum without rpc", []string{"STAKING_TOKEN_MODE=ethereum"}, "ethereum token mode requires"},
		{"partial database", []string{"DATABASE_HOST=localhost"}, "missing required database configuration"},
		{"bad treasury", []string{"ETHEREUM_TREASURY_ADDRESS=treasury"}, "invalid ETHEREUM_TREASURY_ADDRESS"},
		{"bad delay", []string{"STAKING_UNSTAKE_DELAY=soon"}, "invalid STAKING_UNSTAKE_DELAY"},
		{"negative interval", []string{"SCHEDULER_DECAY_INTERVAL=-1h"}, "must be positive"},
		{"slash count too high", []string{"STAKING_MAX_SLASH_COUNT=300"}, "STAKING_MAX_SLASH_COUNT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeEnv(t, append(append([]string(nil), base...), tt.extra...)...))
			require.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadFile(writeEnv(t, "STAKING_STATIC_PRICE=1"))
	require.ErrorContains(t, err, "AUTH_JWT_SECRET")

	_, err = LoadFile(writeEnv(t, "AUTH_JWT_SECRET=secret"))
	require.ErrorContains(t, err, "STAKING_STATIC_PRICE")
}

func TestMembers(t *testing.T) {
	accounts, everyone, err := Members("0x00000000000000000000000000000000000000b1, ,0x00000000000000000000000000000000000000b2")
	require.NoError(t, err)
	require.False(t, everyone)
	require.Len(t, accounts, 2)

	_, everyone, err = Members("0x00000000000000000000000000000000000000b1,*")
	require.NoError(t, err)
	require.True(t, everyone)

	_, _, err = Members("nobody")
	require.Error(t, err)
}

func TestConfigManager(t *testing.T) {
	path := writeEnv(t, "AUTH_JWT_SECRET=first", "STAKING_STATIC_PRICE=1")
	cm := &ConfigManager{configPath: ".env"}
	cm.SetConfigPath(path)
	require.Equal(t, path, cm.GetConfigPath())

	cfg, err := cm.GetConfig()
	require.NoError(t, err)
	require.Equal(t, "first", cfg.Auth.JWTSecret)

	require.NoError(t, os.WriteFile(path, []byte("AUTH_JWT_SECRET=second\nSTAKING_STATIC_PRICE=1\n"), 0o600))
	cached, err := cm.GetConfig()
	require.NoError(t, err)
	require.Equal(t, "first", cached.Auth.JWTSecret)

	reloaded, err := cm.ReloadConfig()
	require.NoError(t, err)
	require.Equal(t, "second", reloaded.Auth.JWTSecret)
}
