package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_BACKEND_BASE_URL", "http://lms.local")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.UploadMaxSizeMB)
	require.Equal(t, int64(50*1024*1024), cfg.UploadMaxBytes())
	require.Equal(t, 2, cfg.RefreshRetries)
	require.Equal(t, time.Second, cfg.RefreshBaseDelay)
	require.InDelta(t, 1.5, cfg.RefreshBackoffFactor, 0.0001)
	require.Equal(t, time.Second, cfg.TimerTickInterval)
	require.Equal(t, "gema.submissions", cfg.EventSubject)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 30*time.Second, cfg.QuizClaimTTL)
	require.Equal(t, 2*time.Minute, cfg.UploadProxyTimeout)
}

func TestLoadKeepsClaimTTLAboveBackendTimeout(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_BACKEND_BASE_URL", "http://lms.local")
	t.Setenv("GEMA_BACKEND_TIMEOUT", "40s")
	t.Setenv("GEMA_QUIZ_CLAIM_TTL", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 80*time.Second, cfg.QuizClaimTTL)
}

func TestLoadRequiresSecretAndBackend(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")
	t.Setenv("GEMA_BACKEND_BASE_URL", "http://lms.local")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_BACKEND_BASE_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_BACKEND_BASE_URL", "http://lms.local")
	t.Setenv("GEMA_REFRESH_BASE_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
}
