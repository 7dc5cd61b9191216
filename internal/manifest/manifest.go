// Package manifest records where every documented name was written so that
// builds can be compared, verified and pruned.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the manifest's name inside the output directory.
const FileName = "manifest.json"

// Manifest maps dotted names to output paths. Entries holds the scanned
// units; intermediate packages synthesized for them are kept apart in
// Synthetic. It carries no timestamps so identical inputs produce
// byte-identical files.
type Manifest struct {
	RootIndex string            `json:"root_index"`
	Entries   map[string]string `json:"entries"`
	Synthetic map[string]string `json:"synthetic"`
	Aliases   map[string]string `json:"aliases"`
}

// Source is what a manifest is built from.
type Source interface {
	RootIndex() string
	Entries() map[string]string
	Synthetic() map[string]string
	Aliases() map[string]string
}

// FromTable snapshots a link table.
func FromTable(src Source) *Manifest {
	return &Manifest{
		RootIndex: src.RootIndex(),
		Entries:   src.Entries(),
		Synthetic: src.Synthetic(),
		Aliases:   src.Aliases(),
	}
}

// ToJSON serializes the manifest with sorted keys and a trailing newline.
func (m *Manifest) ToJSON() ([]byte, error) {
	if m.Entries == nil {
		m.Entries = map[string]string{}
	}
	if m.Synthetic == nil {
		m.Synthetic = map[string]string{}
	}
	if m.Aliases == nil {
		m.Aliases = map[string]string{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// FromJSON deserializes a manifest.
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Hash is the sha256 of the serialized manifest.
func (m *Manifest) Hash() (string, error) {
	data, err := m.ToJSON()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Paths returns every output path (root index included) sorted and deduplicated.
func (m *Manifest) Paths() []string {
	seen := make(map[string]struct{}, len(m.Entries)+len(m.Synthetic)+1)
	if m.RootIndex != "" {
		seen[m.RootIndex] = struct{}{}
	}
	for _, p := range m.Entries {
		seen[p] = struct{}{}
	}
	for _, p := range m.Synthetic {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Stale lists paths recorded in prev that m no longer produces.
func (m *Manifest) Stale(prev *Manifest) []string {
	if prev == nil {
		return nil
	}
	current := make(map[string]struct{})
	for _, p := range m.Paths() {
		current[p] = struct{}{}
	}
	var out []string
	for _, p := range prev.Paths() {
		if _, ok := current[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the manifest in dir. A missing file returns (nil, nil).
func Load(dir string) (*Manifest, error) {
	// #nosec G304 -- reads the manifest from the configured output directory
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return FromJSON(data)
}

// Write stores the manifest in dir atomically.
func (m *Manifest) Write(dir string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ensure manifest dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename manifest: %w", err)
	}
	return nil
}
