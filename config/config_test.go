package config

import (
	"os"
	"testing"
	"time"

	"github.com/pairlink/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, 90*time.Second, cfg.QRTimeout.Duration)
	assert.Equal(t, 3*time.Minute, cfg.PairingTimeout.Duration)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Sweeps.ExpiredInterval.Duration)

	// Pairing window must be at least as long as the QR window: the user
	// has extra manual steps in pairing mode.
	assert.GreaterOrEqual(t, cfg.PairingTimeout.Duration, cfg.QRTimeout.Duration)
}

func TestLoadFromBytes(t *testing.T) {
	data := []byte(`
max_sessions: 3
qr_timeout: 45s
pairing_timeout: 2m
reconnect:
  max_attempts: 5
  delay: 1s
sweeps:
  expired_interval: 30m
  unscanned_max_age: 300
`)

	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, 45*time.Second, cfg.QRTimeout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.PairingTimeout.Duration)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Sweeps.ExpiredInterval.Duration)
	// Bare integers are seconds
	assert.Equal(t, 5*time.Minute, cfg.Sweeps.UnscannedMaxAge.Duration)

	// Unspecified knobs keep defaults
	assert.Equal(t, 30*time.Minute, cfg.Sweeps.OrphanInterval.Duration)
}

func TestDurationAcceptsStringAndSeconds(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("qr_timeout: 45s\npairing_timeout: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.QRTimeout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.PairingTimeout.Duration)
}

func TestLoadFromBytesInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero ceiling", "max_sessions: 0"},
		{"negative attempts", "reconnect:\n  max_attempts: -1"},
		{"bad duration", "qr_timeout: banana"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))
		})
	}
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("PAIRLINK_TEST_TOKEN", "sekrit")
	defer os.Unsetenv("PAIRLINK_TEST_TOKEN")

	cfg, err := LoadFromBytes([]byte("api:\n  file_access_token: ${PAIRLINK_TEST_TOKEN}\n"))
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.API.FileAccessToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/pairlink.yml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestResolvedDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/pairlink-test"
	assert.Equal(t, "/tmp/pairlink-test/credentials", cfg.CredentialsDir())
	assert.Equal(t, "/tmp/pairlink-test/sessions.json", cfg.RegistryPath())
}
