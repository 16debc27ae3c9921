package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	// Run from an empty directory so a developer's .env cannot leak in.
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("DATABASE_URL", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "Thank You for Your Order!", cfg.EmailSubject)
	assert.Equal(t, 10*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 5, cfg.CheckoutRateLimit)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, "http://localhost:8080", cfg.TrackingBaseURL())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ParsesOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DELIVERY_TIMEOUT", "3")
	t.Setenv("CHECKOUT_RATE_WINDOW", "90s")
	t.Setenv("TRACK_OPENS", "false")
	t.Setenv("EMAIL_RECIPIENT_OVERRIDE", "qa@maison.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 90*time.Second, cfg.CheckoutRateWindow)
	assert.Empty(t, cfg.TrackingBaseURL())
	assert.Equal(t, "qa@maison.test", cfg.RecipientOverride)
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("RESEND_API_KEY", "")
	t.Setenv("EMAIL_FROM_ADDR", "not-an-address")
	t.Setenv("ENV", "qa")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"JWT_SECRET", "RESEND_API_KEY", "EMAIL_FROM_ADDR", "ENV must be"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadDotEnv_RealEnvWins(t *testing.T) {
	setBaseEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nSTORE_NAME=\"From File\"\nJWT_SECRET=file-secret\n"), 0o600))

	t.Setenv("STORE_NAME", "")
	loadDotEnv(path)

	assert.Equal(t, "From File", os.Getenv("STORE_NAME"))
	assert.Equal(t, "secret", os.Getenv("JWT_SECRET"))
}
