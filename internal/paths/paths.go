// Package paths resolves the default on-disk locations used by memo.
package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Name used for directory and file naming.
const appName = "memo"

// History returns the directory holding per-node digest records.
//
//	Linux:   $XDG_STATE_HOME/memo/history or ~/.local/state/memo/history
//	macOS:   ~/Library/Application Support/memo/history
func History() string {
	return filepath.Join(xdg.StateHome, appName, "history")
}

// Cache returns the root directory of the local artifact cache.
//
//	Linux:   $XDG_CACHE_HOME/memo or ~/.cache/memo
//	macOS:   ~/Library/Caches/memo
func Cache() string {
	return filepath.Join(xdg.CacheHome, appName)
}
