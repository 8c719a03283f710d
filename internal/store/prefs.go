package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// activeWorkspacePref is the fixed key the active workspace selection is
// stored under inside the preference file.
const activeWorkspacePref = "tabala.activeWorkspace"

// Prefs persists per-context UI preferences to a small JSON file. The
// shared store never sees these values; each context keeps its own.
// An empty path keeps the preferences in memory only.
type Prefs struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewPrefs opens the preference file at path, loading existing values
// when the file is present.
func NewPrefs(path string) (*Prefs, error) {
	p := &Prefs{path: path, values: make(map[string]string)}
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.values); err != nil {
			return nil, fmt.Errorf("decode prefs %s: %w", path, err)
		}
	}
	return p, nil
}

// ActiveWorkspace returns the persisted active workspace id, if any.
func (p *Prefs) ActiveWorkspace() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.values[activeWorkspacePref]
	return id, ok && id != ""
}

// SetActiveWorkspace persists the active workspace id.
func (p *Prefs) SetActiveWorkspace(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[activeWorkspacePref] = id
	return p.flushLocked()
}

// flushLocked writes the preference map atomically via a temp file and
// rename, so a crash mid-write never leaves a truncated file behind.
func (p *Prefs) flushLocked() error {
	if p.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("create prefs temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write prefs temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close prefs temp: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace prefs %s: %w", p.path, err)
	}
	return nil
}
