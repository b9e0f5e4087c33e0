package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/checkline-lab/checkline/internal/aggregate"
)

// Spec declares one file-backed source. Specs are loaded at startup from
// *.yaml files in a config directory, one spec per file.
type Spec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // snapshot | raygun
	Glob     string `yaml:"glob"`
	Currency string `yaml:"currency"`
}

const (
	KindSnapshot = "snapshot"
	KindRaygun   = "raygun"
)

// FileSystemManifest loads source specs from a directory. Specs are loaded
// once and cached in memory — no hot reload.
type FileSystemManifest struct {
	dir   string
	specs map[string]Spec // keyed by Name
}

// NewFileSystemManifest creates a manifest and eagerly loads all specs from
// dir. Returns an error if any spec file is malformed or invalid. A missing
// directory is valid and yields zero specs.
func NewFileSystemManifest(dir string) (*FileSystemManifest, error) {
	m := &FileSystemManifest{
		dir:   dir,
		specs: make(map[string]Spec),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileSystemManifest) load() error {
	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil // no manifest directory — valid (zero file sources configured)
	}
	if err != nil {
		return fmt.Errorf("source manifest dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source manifest path %q is not a directory", m.dir)
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("reading source manifest dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(m.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading source spec %s: %w", path, err)
		}

		var spec Spec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("parsing source spec %s: %w", path, err)
		}
		if spec.Name == "" {
			continue // skip empty / comment-only files
		}

		if spec.Kind != KindSnapshot && spec.Kind != KindRaygun {
			return fmt.Errorf("source %q: unsupported kind %q", spec.Name, spec.Kind)
		}
		if strings.TrimSpace(spec.Glob) == "" {
			return fmt.Errorf("source %q: glob must not be empty", spec.Name)
		}

		if _, exists := m.specs[spec.Name]; exists {
			return fmt.Errorf("source %q: duplicate source name (check multiple YAML files)", spec.Name)
		}
		m.specs[spec.Name] = spec
	}
	return nil
}

// Specs returns all loaded specs, sorted by name for a deterministic
// adapter order (the authoritative-total fold depends on it).
func (m *FileSystemManifest) Specs() []Spec {
	specs := make([]Spec, 0, len(m.specs))
	for _, spec := range m.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// BuildAdapters turns specs into adapters. defaultCurrency applies to specs
// that don't pin their own.
func BuildAdapters(specs []Spec, defaultCurrency string) []aggregate.Adapter {
	adapters := make([]aggregate.Adapter, 0, len(specs))
	for _, spec := range specs {
		code := spec.Currency
		if code == "" {
			code = defaultCurrency
		}
		switch spec.Kind {
		case KindRaygun:
			adapters = append(adapters, NewRaygunAdapter(spec.Name, spec.Glob))
		default:
			adapters = append(adapters, NewSnapshotAdapter(spec.Name, spec.Glob, code))
		}
	}
	return adapters
}
