package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "ENV", "")
	setEnv(t, "API_KEYS", "")
	setEnv(t, "SNAPSHOT_INTERVAL", "")
	setEnv(t, "DATABASE_URL", "")
	setEnv(t, "ALLOWED_ORIGINS", "")
	setEnv(t, "RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultSnapshotInterval, cfg.SnapshotInterval)
	assert.Equal(t, DefaultRateLimitPerMinute, cfg.RateLimitPerMinute)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.APIKeys)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_WithValues(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "staging")
	setEnv(t, "API_KEYS", "sk_live_abc:tenant-a, sk_live_def:tenant-b")
	setEnv(t, "SNAPSHOT_INTERVAL", "15m")
	setEnv(t, "ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	setEnv(t, "RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotInterval)
	assert.Equal(t, map[string]string{
		"sk_live_abc": "tenant-a",
		"sk_live_def": "tenant-b",
	}, cfg.APIKeys)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
}

func TestLoad_BadInterval(t *testing.T) {
	setEnv(t, "SNAPSHOT_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SNAPSHOT_INTERVAL")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "development needs nothing",
			config:  Config{Env: "development"},
			wantErr: "",
		},
		{
			name: "production with keys and secret",
			config: Config{
				Env:         "production",
				APIKeys:     map[string]string{"k": "tenant-a"},
				AdminSecret: "s3cret",
			},
			wantErr: "",
		},
		{
			name:    "production without keys",
			config:  Config{Env: "production", AdminSecret: "s3cret"},
			wantErr: "API_KEYS is required",
		},
		{
			name: "production without admin secret",
			config: Config{
				Env:     "production",
				APIKeys: map[string]string{"k": "tenant-a"},
			},
			wantErr: "ADMIN_SECRET is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{"empty", "", map[string]string{}, false},
		{"single pair", "key1:tenant-a", map[string]string{"key1": "tenant-a"}, false},
		{"multiple with spaces", " key1:tenant-a , key2:tenant-b ", map[string]string{"key1": "tenant-a", "key2": "tenant-b"}, false},
		{"trailing comma tolerated", "key1:tenant-a,", map[string]string{"key1": "tenant-a"}, false},
		{"missing tenant", "key1", nil, true},
		{"empty key", ":tenant-a", nil, true},
		{"empty tenant", "key1:", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAPIKeys(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInterval(t *testing.T) {
	d, err := parseInterval("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSnapshotInterval, d)

	d, err = parseInterval("30s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	// Zero disables the worker and is valid.
	d, err = parseInterval("0")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	_, err = parseInterval("-1h")
	assert.Error(t, err)

	_, err = parseInterval("often")
	assert.Error(t, err)
}

func TestParseRateLimit(t *testing.T) {
	n, err := parseRateLimit("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRateLimitPerMinute, n)

	// Zero disables rate limiting and is valid.
	n, err = parseRateLimit("0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseRateLimit("-5")
	assert.Error(t, err)

	_, err = parseRateLimit("lots")
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList(""))
	assert.Equal(t, []string{"a"}, parseList("a"))
	assert.Equal(t, []string{"a", "b"}, parseList(" a , b ,"))
}
