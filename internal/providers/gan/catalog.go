package gan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"stylegan-api/internal/stylegan"
)

// Manifest is the optional <stem>.yaml sidecar of a checkpoint.
type Manifest struct {
	Description string `yaml:"description"`
	Dataset     string `yaml:"dataset"`
	ZDim        int    `yaml:"z_dim"`
	WDim        int    `yaml:"w_dim"`
	Seed        uint64 `yaml:"seed"`
}

// Entry is one checkpoint found on disk.
type Entry struct {
	Descriptor stylegan.ModelDescriptor
	Path       string
	Manifest   Manifest
}

// Backend builds a generator for a catalog entry.
type Backend func(ctx context.Context, e Entry) (stylegan.Generator, error)

// Catalog indexes the checkpoints under a models directory. Every
// descriptor it hands out carries the catalog's version tag.
type Catalog struct {
	dir     string
	version string

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog scans dir once. Call Refresh to pick up new files.
func NewCatalog(dir, version string) (*Catalog, error) {
	c := &Catalog{dir: dir, version: strings.TrimSpace(version), entries: map[string]Entry{}}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Version returns the tag stamped on descriptors.
func (c *Catalog) Version() string {
	return c.version
}

// Refresh rescans the directory for *.pkl checkpoints. Files whose name does
// not follow img<N>res<N>fid<N> are skipped.
func (c *Catalog) Refresh() error {
	files, err := filepath.Glob(filepath.Join(c.dir, "*"+stylegan.ModelFileExt))
	if err != nil {
		return fmt.Errorf("gan: scan %s: %w", c.dir, err)
	}
	entries := make(map[string]Entry, len(files))
	for _, path := range files {
		d, err := stylegan.ParseDescriptor(path)
		if err != nil {
			continue
		}
		manifest, err := readManifest(strings.TrimSuffix(path, stylegan.ModelFileExt) + ".yaml")
		if err != nil {
			return err
		}
		entries[d.Stem()] = Entry{Descriptor: d.WithVersion(c.version), Path: path, Manifest: manifest}
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("gan: read manifest %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("gan: parse manifest %s: %w", path, err)
	}
	return m, nil
}

// List returns the available descriptors ordered by stem.
func (c *Catalog) List() []stylegan.ModelDescriptor {
	c.mu.RLock()
	out := make([]stylegan.ModelDescriptor, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Descriptor)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Stem() < out[j].Stem() })
	return out
}

// Entries returns the catalog entries ordered by stem.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.Stem() < out[j].Descriptor.Stem() })
	return out
}

// Lookup finds the entry for d. A descriptor with a different version tag
// does not match.
func (c *Catalog) Lookup(d stylegan.ModelDescriptor) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[d.Stem()]
	c.mu.RUnlock()
	if !ok || (d.Version != "" && d.Version != c.version) {
		return Entry{}, fmt.Errorf("%w: %s", stylegan.ErrModelNotFound, d)
	}
	return e, nil
}

// Resolve turns a checkpoint stem or filename into a catalog descriptor.
func (c *Catalog) Resolve(name string) (stylegan.ModelDescriptor, error) {
	d, err := stylegan.ParseDescriptor(name)
	if err != nil {
		return stylegan.ModelDescriptor{}, fmt.Errorf("%w: %v", stylegan.ErrModelNotFound, err)
	}
	e, err := c.Lookup(d)
	if err != nil {
		return stylegan.ModelDescriptor{}, err
	}
	return e.Descriptor, nil
}

// Loader adapts the catalog to stylegan.Loader using backend to build
// generators.
func (c *Catalog) Loader(backend Backend) stylegan.Loader {
	return stylegan.LoaderFunc(func(ctx context.Context, d stylegan.ModelDescriptor) (stylegan.Generator, error) {
		e, err := c.Lookup(d)
		if err != nil {
			return nil, err
		}
		return backend(ctx, e)
	})
}
