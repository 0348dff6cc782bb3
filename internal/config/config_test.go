package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_STORE_FILE", "/tmp/session-test.json")

	c, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "Go Auth Session", c.GetAppName())
	require.Equal(t, "DEV", c.GetEnv())
	require.True(t, c.IsDev())
	require.Equal(t, "https://accounts.google.com", c.GetIssuer())
	require.Equal(t, []string{"openid", "email", "profile"}, c.GetScopes())
	require.Equal(t, "", c.GetPrompt())
	require.Equal(t, 8085, c.GetRedirectPort())
	require.Empty(t, c.GetInterceptURLPrefixes())
	require.Zero(t, c.GetRenewalLead())
	require.Equal(t, config.StoreFile, c.GetStoreBackend())
	require.Equal(t, "GoAuthSession", c.GetStoreNamespace())
	require.Equal(t, "/tmp/session-test.json", c.GetStoreFile())
	require.Equal(t, "127.0.0.1:8790", c.GetAgentAddr())
	require.Empty(t, c.GetProxyUpstream())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_ENV", "PROD")
	t.Setenv("SESSION_CLIENT_ID", "client-1")
	t.Setenv("SESSION_SCOPES", "openid,https://www.googleapis.com/auth/drive.readonly")
	t.Setenv("SESSION_PROMPT", "consent")
	t.Setenv("SESSION_INTERCEPT_URL_PREFIXES", "https://api.example.com/,https://files.example.com/")
	t.Setenv("SESSION_RENEWAL_LEAD", "1m")
	t.Setenv("SESSION_STORE", "Memory")

	c, err := config.Load()
	require.NoError(t, err)

	require.False(t, c.IsDev())
	require.Equal(t, "client-1", c.GetClientID())
	require.Equal(t, []string{"openid", "https://www.googleapis.com/auth/drive.readonly"}, c.GetScopes())
	require.Equal(t, "consent", c.GetPrompt())
	require.Equal(t, []string{"https://api.example.com/", "https://files.example.com/"}, c.GetInterceptURLPrefixes())
	require.Equal(t, time.Minute, c.GetRenewalLead())
	require.Equal(t, config.StoreMemory, c.GetStoreBackend())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"prompt":         {"SESSION_PROMPT": "always"},
		"backend":        {"SESSION_STORE": "sqlite"},
		"redis url":      {"SESSION_STORE": "redis"},
		"negative lead":  {"SESSION_RENEWAL_LEAD": "-5s"},
		"bad port value": {"SESSION_REDIRECT_PORT": "eighty"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}
