package config

import (
	"fmt"
	"time"

	"github.com/pairlink/core/logging"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so values like "30s" or "1h" can be used
// directly in pairlink.yml.
type Duration struct {
	time.Duration
}

// UnmarshalYAML decodes a duration from either a string ("90s", "1h30m")
// or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// An int scalar also decodes into a string ("300"), which
	// ParseDuration rejects, so the tag decides the branch.
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration value on line %d", value.Line)
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML encodes the duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config is the top-level pairlink.yml structure.
type Config struct {
	// MaxSessions is the ceiling on concurrently active (non-terminal)
	// sessions. Creation requests beyond it are refused.
	MaxSessions int `yaml:"max_sessions"`

	// SessionTTL is the registry expiry applied to a session at creation.
	SessionTTL Duration `yaml:"session_ttl"`

	// PermanentTTL replaces SessionTTL once a session is verified good.
	PermanentTTL Duration `yaml:"permanent_ttl"`

	// QRTimeout bounds a QR-mode connection attempt. The window is short:
	// the challenge is displayed immediately and must be scanned promptly.
	QRTimeout Duration `yaml:"qr_timeout"`

	// PairingTimeout bounds a pairing-mode attempt. Longer than QRTimeout
	// since the user must receive and type a code on their phone.
	PairingTimeout Duration `yaml:"pairing_timeout"`

	// DataDir overrides the default data directory (credentials + registry).
	DataDir string `yaml:"data_dir"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Finalize  FinalizeConfig  `yaml:"finalize"`
	Sweeps    SweepConfig     `yaml:"sweeps"`
	API       APIConfig       `yaml:"api"`

	Logging logging.Config `yaml:"logging"`
}

// ReconnectConfig controls the bounded retry loop for transient
// disconnects before a session reaches CONNECTED.
type ReconnectConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Delay       Duration `yaml:"delay"`
}

// PairingConfig controls the pairing-code request flow.
type PairingConfig struct {
	// SettleDelay is how long to wait after the socket is up before
	// requesting a pairing code from the server.
	SettleDelay Duration `yaml:"settle_delay"`
	// RequestRetries bounds retries of the code request itself.
	RequestRetries int      `yaml:"request_retries"`
	RequestBackoff Duration `yaml:"request_backoff"`
}

// FinalizeConfig controls the post-connect delivery check.
type FinalizeConfig struct {
	// WelcomeText is the human-readable notice sent after the machine
	// notice during finalization.
	WelcomeText string `yaml:"welcome_text"`
	// CloseGrace is how long to keep the socket open after a successful
	// finalization before closing it.
	CloseGrace Duration `yaml:"close_grace"`
}

// SweepConfig controls the cleanup scheduler intervals.
type SweepConfig struct {
	ExpiredInterval   Duration `yaml:"expired_interval"`
	OrphanInterval    Duration `yaml:"orphan_interval"`
	InvalidInterval   Duration `yaml:"invalid_interval"`
	UnscannedInterval Duration `yaml:"unscanned_interval"`

	// MinAge is the grace period before the invalid-session sweep may
	// delete a directory: fresh credentials may not be fully written yet.
	MinAge Duration `yaml:"min_age"`

	// UnscannedMaxAge is how long an active session may sit without
	// reaching CONNECTED before the unscanned sweep force-stops it.
	UnscannedMaxAge Duration `yaml:"unscanned_max_age"`
}

// APIConfig configures the daemon's HTTP surface.
type APIConfig struct {
	// FileAccessToken gates the credential-file read endpoints and the
	// forced-delete override. Empty disables the check (local socket only).
	FileAccessToken string `yaml:"file_access_token"`
}
