// Package workspace resolves the on-disk layout for a chat workspace.
// Each workspace owns its database, log file, and instance lock, so
// two host applications never share mutable chat state.
package workspace

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.candid.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".candid")
}

// Dir returns the workspace-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "workspaces", name)
}

// DBPath returns the chat database path for a workspace.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "chat.db")
}

// LockPath returns the instance lock file path for a workspace.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the log directory for a workspace.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the chat core log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chat.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the workspace directory tree with owner-only
// permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
