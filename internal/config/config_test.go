package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	assert.Equal(t, 30*time.Second, cfg.SMTPDialTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.AuthEnabled())

	ic := cfg.Ingest()
	assert.Equal(t, int64(10<<20), ic.MaxUploadSize)
	assert.Empty(t, ic.EmailAliases)
	assert.Equal(t, 4, ic.Workers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("CORS_ORIGINS", "https://app.example.com,http://localhost:3000")
	t.Setenv("API_TOKENS", "alpha:1,beta:2")
	t.Setenv("MAX_UPLOAD_SIZE", "2048")
	t.Setenv("EMAIL_HEADER_ALIASES", "email| mail |")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, map[string]int64{"alpha": 1, "beta": 2}, cfg.Tokens)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, int64(2048), cfg.Ingest().MaxUploadSize)
	assert.Equal(t, []string{"email", "mail"}, cfg.Ingest().EmailAliases)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing key", map[string]string{"ENCRYPTION_KEY": ""}},
		{"short key", map[string]string{"ENCRYPTION_KEY": "short"}},
		{"bad token user", map[string]string{"ENCRYPTION_KEY": testKey, "API_TOKENS": "alpha:nope"}},
		{"zero upload size", map[string]string{"ENCRYPTION_KEY": testKey, "MAX_UPLOAD_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
