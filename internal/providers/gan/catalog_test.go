package gan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stylegan-api/internal/stylegan"
)

func writeModelDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCatalogScansCheckpoints(t *testing.T) {
	dir := writeModelDir(t, map[string]string{
		"img31res256fid12.pkl":  "weights",
		"img31res256fid12.yaml": "description: faces\nz_dim: 16\nw_dim: 8\nseed: 99\n",
		"img5res64fid40.pkl":    "weights",
		"ffhq.pkl":              "not matching",
		"notes.txt":             "ignored",
	})
	cat, err := NewCatalog(dir, "stylegan2_ada")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	list := cat.List()
	if len(list) != 2 {
		t.Fatalf("List = %v, want 2 entries", list)
	}
	if list[0].Stem() != "img31res256fid12" || list[1].Stem() != "img5res64fid40" {
		t.Fatalf("List order = %v", list)
	}
	if list[0].Version != "stylegan2_ada" {
		t.Fatalf("version not stamped: %+v", list[0])
	}

	e, err := cat.Lookup(stylegan.ModelDescriptor{Images: 31, Resolution: 256, FID: 12})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.Manifest.ZDim != 16 || e.Manifest.WDim != 8 || e.Manifest.Seed != 99 || e.Manifest.Description != "faces" {
		t.Fatalf("manifest = %+v", e.Manifest)
	}
}

func TestCatalogLookupMisses(t *testing.T) {
	dir := writeModelDir(t, map[string]string{"img31res256fid12.pkl": "w"})
	cat, err := NewCatalog(dir, "v1")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	tests := []stylegan.ModelDescriptor{
		{Images: 1, Resolution: 256, FID: 12},
		{Images: 31, Resolution: 256, FID: 12, Version: "v2"},
	}
	for _, d := range tests {
		if _, err := cat.Lookup(d); !errors.Is(err, stylegan.ErrModelNotFound) {
			t.Fatalf("Lookup(%v) err = %v, want ErrModelNotFound", d, err)
		}
	}
	if _, err := cat.Resolve("img31res256fid12"); err != nil {
		t.Fatalf("Resolve stem: %v", err)
	}
	if _, err := cat.Resolve("garbage"); !errors.Is(err, stylegan.ErrModelNotFound) {
		t.Fatalf("Resolve garbage err = %v", err)
	}
}

func TestCatalogRejectsBadManifest(t *testing.T) {
	dir := writeModelDir(t, map[string]string{
		"img31res256fid12.pkl":  "w",
		"img31res256fid12.yaml": "z_dim: [not, a, number",
	})
	if _, err := NewCatalog(dir, ""); err == nil {
		t.Fatalf("expected manifest parse error")
	}
}

func TestCatalogLoaderThroughModelCache(t *testing.T) {
	dir := writeModelDir(t, map[string]string{
		"img1res16fid3.pkl":  "w",
		"img1res16fid3.yaml": "z_dim: 8\nw_dim: 8\n",
	})
	cat, err := NewCatalog(dir, "v1")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	cache := stylegan.NewModelCache(cat.Loader(SyntheticBackend))
	m, err := cache.Get(context.Background(), cat.List()[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info := m.Info(); info.Layers != 6 || info.WDim != 8 || info.Resolution != 16 {
		t.Fatalf("info = %+v", info)
	}
	_, err = cache.Get(context.Background(), stylegan.ModelDescriptor{Images: 2, Resolution: 16, FID: 3, Version: "v1"})
	if !errors.Is(err, stylegan.ErrModelLoad) || !errors.Is(err, stylegan.ErrModelNotFound) {
		t.Fatalf("err = %v, want load failure wrapping not found", err)
	}
}
