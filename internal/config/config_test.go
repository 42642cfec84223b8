package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("empty input uses defaults", func(t *testing.T) {
		cfg, err := parse(nil)
		require.NoError(t, err)

		assert.Equal(t, defaultParts, cfg.Parts)
		assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
		assert.Equal(t, defaultRetryDelay, cfg.RetryDelay)
		assert.NotEmpty(t, cfg.DownloadDir)
		assert.Zero(t, cfg.ThrottleSpeed)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		cfg, err := parse([]byte(`
downloadDir: /srv/ps3
parts: 8
maxRetries: 5
retryDelay: 1s
throttleSpeed: 1048576
`))
		require.NoError(t, err)

		assert.Equal(t, "/srv/ps3", cfg.DownloadDir)
		assert.Equal(t, 8, cfg.Parts)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, time.Second, cfg.RetryDelay)
		assert.Equal(t, int64(1048576), cfg.ThrottleSpeed)
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		cfg, err := parse([]byte("parts: 2\n"))
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.Parts)
		assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := parse([]byte("parts: [not a number"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty download dir",
			mutate:  func(c *Config) { c.DownloadDir = "" },
			wantErr: true,
		},
		{
			name:    "zero parts",
			mutate:  func(c *Config) { c.Parts = 0 },
			wantErr: true,
		},
		{
			name:    "too many parts",
			mutate:  func(c *Config) { c.Parts = 64 },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "negative throttle",
			mutate:  func(c *Config) { c.ThrottleSpeed = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultDownloadDir(t *testing.T) {
	dir := DefaultDownloadDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, "PS3 Updates")
}
