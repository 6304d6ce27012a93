// File: internal/apps/registry.go
package apps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// packageRegex follows the Android application id grammar: at least two
// dot-separated segments, each starting with a letter.
var packageRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

// DefaultPackages seeds a registry when no registry file exists yet.
var DefaultPackages = map[string]string{
	"美团外卖": "com.sankuai.meituan.takeoutnew",
	"饿了么":  "me.ele",
	"爱奇艺":  "com.qiyi.video",
	"懂车帝":  "com.ss.android.auto",
	"滴滴出行": "com.sdu.didi.psnger",
	"携程":   "ctrip.android.view",
}

// Entry is one display-name to package mapping.
type Entry struct {
	Name    string `yaml:"name" json:"name"`
	Package string `yaml:"package" json:"package"`
}

// Registry maps app display names to package ids. Readers may run
// concurrently; Set takes the write lock, so an update is never observed
// half-applied.
type Registry struct {
	mu       sync.RWMutex
	packages map[string]string
}

// NewRegistry copies initial into a new registry.
func NewRegistry(initial map[string]string) *Registry {
	r := &Registry{packages: make(map[string]string, len(initial))}
	for name, pkg := range initial {
		r.packages[name] = pkg
	}
	return r
}

// Lookup returns the package registered for name.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.packages[strings.TrimSpace(name)]
	return pkg, ok
}

// Set inserts or replaces the mapping for name.
func (r *Registry) Set(name, pkg string) error {
	name = strings.TrimSpace(name)
	pkg = strings.TrimSpace(pkg)
	if name == "" {
		return errors.New("app name cannot be empty")
	}
	if !ValidPackage(pkg) {
		return fmt.Errorf("invalid package id %q", pkg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[name] = pkg
	return nil
}

// All returns every entry sorted by name.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.packages))
	for name, pkg := range r.packages {
		entries = append(entries, Entry{Name: name, Package: pkg})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packages)
}

// ValidPackage reports whether pkg looks like an Android application id.
func ValidPackage(pkg string) bool {
	return packageRegex.MatchString(pkg)
}

type registryFile struct {
	Apps []Entry `yaml:"apps"`
}

// LoadFile reads a registry from a yaml file. A missing file yields a
// registry seeded with DefaultPackages. Later duplicates win.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRegistry(DefaultPackages), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read app registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse app registry %s: %w", path, err)
	}

	r := NewRegistry(nil)
	for _, e := range file.Apps {
		if err := r.Set(e.Name, e.Package); err != nil {
			return nil, fmt.Errorf("app registry %s: %w", path, err)
		}
	}
	return r, nil
}

// SaveFile writes the registry to path atomically.
func SaveFile(path string, r *Registry) error {
	data, err := yaml.Marshal(registryFile{Apps: r.All()})
	if err != nil {
		return fmt.Errorf("failed to encode app registry: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write app registry: %w", err)
	}
	return os.Rename(tmp, path)
}
