package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pairlink/core/errors"
	"github.com/pairlink/core/pkg/paths"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultFileName is the config file looked up in the pairlink config dir.
const DefaultFileName = "pairlink.yml"

// Load reads and parses a pairlink configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	return LoadFromBytes(data)
}

// LoadDefault loads the configuration from the standard location.
// A missing file is not an error: the daemon runs on defaults.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DefaultFileName)
}

// LoadFromBytes parses configuration data, expands ${ENV} references,
// applies defaults and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxSessions:    10,
		SessionTTL:     Duration{24 * time.Hour},
		PermanentTTL:   Duration{10 * 365 * 24 * time.Hour},
		QRTimeout:      Duration{90 * time.Second},
		PairingTimeout: Duration{3 * time.Minute},
		Reconnect: ReconnectConfig{
			MaxAttempts: 3,
			Delay:       Duration{2 * time.Second},
		},
		Pairing: PairingConfig{
			SettleDelay:    Duration{3 * time.Second},
			RequestRetries: 3,
			RequestBackoff: Duration{500 * time.Millisecond},
		},
		Finalize: FinalizeConfig{
			WelcomeText: "pairlink session established. This number is now linked.",
			CloseGrace:  Duration{2 * time.Second},
		},
		Sweeps: SweepConfig{
			ExpiredInterval:   Duration{time.Hour},
			OrphanInterval:    Duration{30 * time.Minute},
			InvalidInterval:   Duration{15 * time.Minute},
			UnscannedInterval: Duration{5 * time.Minute},
			MinAge:            Duration{10 * time.Minute},
			UnscannedMaxAge:   Duration{10 * time.Minute},
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.MaxSessions <= 0 {
		return errors.ConfigInvalid("max_sessions must be positive")
	}
	if c.QRTimeout.Duration <= 0 || c.PairingTimeout.Duration <= 0 {
		return errors.ConfigInvalid("connection timeouts must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.ConfigInvalid("reconnect.max_attempts must not be negative")
	}
	if c.Sweeps.ExpiredInterval.Duration <= 0 ||
		c.Sweeps.OrphanInterval.Duration <= 0 ||
		c.Sweeps.InvalidInterval.Duration <= 0 ||
		c.Sweeps.UnscannedInterval.Duration <= 0 {
		return errors.ConfigInvalid("sweep intervals must be positive")
	}
	if c.Sweeps.MinAge.Duration < 0 {
		return errors.ConfigInvalid("sweeps.min_age must not be negative")
	}
	return nil
}

// ResolvedDataDir returns the configured data directory, falling back to
// the XDG default.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return expandPath(c.DataDir)
	}
	return paths.DataDir()
}

// CredentialsDir returns the per-session credential root under the data dir.
func (c *Config) CredentialsDir() string {
	return filepath.Join(c.ResolvedDataDir(), "credentials")
}

// RegistryPath returns the session registry document path under the data dir.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.ResolvedDataDir(), "sessions.json")
}

// ConnectTimeout returns the per-mode connection deadline window.
func (c *Config) ConnectTimeout(pairing bool) time.Duration {
	if pairing {
		return c.PairingTimeout.Duration
	}
	return c.QRTimeout.Duration
}

// expandEnvVars replaces ${VAR} references with environment values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRegex.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// expandPath expands tilde in file paths.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
