// Package paths provides XDG-compliant path resolution for pairlink.
//
// Resolution order:
// 1. PAIRLINK_HOME (portable root) → $PAIRLINK_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/pairlink
// 3. Platform defaults → ~/.config/pairlink, ~/.local/share/pairlink, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("PAIRLINK_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if home := os.Getenv("PAIRLINK_HOME"); home != "" {
		return filepath.Join(home, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("PAIRLINK_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the pairlink configuration directory.
// Used for config files like pairlink.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "pairlink")
}

// DataDir returns the pairlink data directory.
// Used for session credential material and the session registry.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "pairlink")
}

// StateDir returns the pairlink state directory.
// Used for runtime state: logs, pidfile, socket.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "pairlink")
}

// CredentialsDir returns the root directory holding per-session
// credential directories.
func CredentialsDir() string {
	return filepath.Join(DataDir(), "credentials")
}

// RegistryPath returns the path to the session registry document.
func RegistryPath() string {
	return filepath.Join(DataDir(), "sessions.json")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	return filepath.Join(StateDir(), "pairlinkd.sock")
}

// PidFilePath returns the path to the daemon's pid file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "pairlinkd.pid")
}

// LogDir returns the directory for daemon log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}
