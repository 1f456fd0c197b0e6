// Package allowlist implements the StoragePath policy domain (spec §3):
// every submitted job folder is validated by file-system resolution, then
// prefix containment against a configured set of allowed directories.
package allowlist

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// ErrNotExist distinguishes a folder that does not exist on disk from one
// that exists but falls outside the configured allow-list (spec §4.1's
// PATH_NOT_FOUND vs UNAUTHORIZED_PATH error codes).
var ErrNotExist = errors.New("allowlist: folder does not exist")

// Entry is a single StoragePath allow-list entry.
type Entry struct {
	Path  string `yaml:"path"`
	Label string `yaml:"label,omitempty"`
}

type fileFormat struct {
	Paths []Entry `yaml:"paths"`
}

// AllowList validates a candidate folder against a set of allowed absolute
// directories. Safe for concurrent use; Reload swaps the policy atomically.
type AllowList struct {
	mu      sync.RWMutex
	entries []Entry
	logger  *slog.Logger
}

func New(entries []Entry, logger *slog.Logger) *AllowList {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllowList{
		entries: entries,
		logger:  logger.With(slog.String("component", "allowlist")),
	}
}

// LoadFile reads a YAML allow-list file of the form:
//
//	paths:
//	  - path: /media/movies
//	    label: movies
//	  - path: /media/tv
func LoadFile(path string, logger *slog.Logger) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("allowlist: read %s: %w", path, err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("allowlist: parse %s: %w", path, err)
	}
	return New(ff.Paths, logger), nil
}

// Reload atomically replaces the allow-list's entries.
func (a *AllowList) Reload(entries []Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = entries
}

// Validate resolves folder on the file system and checks it against the
// allow-list by prefix containment. Returns the resolved absolute path on
// success.
func (a *AllowList) Validate(folder string) (string, error) {
	if folder == "" {
		return "", fmt.Errorf("allowlist: folder must not be empty")
	}
	if !filepath.IsAbs(folder) {
		return "", fmt.Errorf("allowlist: folder must be an absolute path")
	}

	resolved, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("allowlist: resolve %s: %w", folder, err)
	}
	resolved = filepath.Clean(resolved)

	if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotExist, resolved)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, entry := range a.entries {
		allowed := filepath.Clean(entry.Path)
		if resolved == allowed || strings.HasPrefix(resolved, allowed+string(filepath.Separator)) {
			return resolved, nil
		}
	}

	a.logger.Warn("folder outside allowed storage paths", slog.String("folder", resolved))
	return "", fmt.Errorf("allowlist: %s is outside the allowed storage paths", resolved)
}

// Entries returns a copy of the current allow-list.
func (a *AllowList) Entries() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}
