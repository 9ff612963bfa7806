package storekit_test

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/gobeaver/storekit"
	_ "github.com/gobeaver/storekit/driver/local"
	_ "github.com/gobeaver/storekit/driver/memory"
)

func newTestRegistry(t *testing.T) *storekit.Registry {
	t.Helper()
	registry, err := storekit.NewRegistryFromMap(map[string]any{
		"backends": map[string]any{
			"disk": map[string]any{
				"type":    "local",
				"options": map[string]any{"root": t.TempDir()},
			},
			"scratch": map[string]any{
				"type": "memory",
			},
		},
		"stores": map[string]any{
			"reports": map[string]any{"backend": "disk", "root_path": "teams/analytics"},
			"raw":     map[string]any{"backend": "disk", "root_path": "raw"},
			"tmp":     map[string]any{"backend": "scratch"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })
	return registry
}

func TestEndToEndLocal(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	reports, err := registry.GetStore("reports")
	if err != nil {
		t.Fatal(err)
	}

	if err := reports.Write(ctx, "2026/q1.csv", strings.NewReader("region,total\nemea,42\n")); err != nil {
		t.Fatal(err)
	}
	if err := reports.WriteAtomic(ctx, "2026/summary.json", strings.NewReader(`{"rows":1}`)); err != nil {
		t.Fatal(err)
	}

	data, err := reports.ReadBytes(ctx, "2026/q1.csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "region,total") {
		t.Errorf("content = %q", data)
	}

	infos, err := reports.ListFiles(ctx, "2026", false)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Path.String())
	}
	sort.Strings(names)
	want := []string{"2026/q1.csv", "2026/summary.json"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("listed paths = %v, want %v", names, want)
	}

	info, err := reports.GetFileInfo(ctx, "2026/q1.csv")
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentType != "text/csv" {
		t.Errorf("ContentType = %q", info.ContentType)
	}
}

func TestStoresShareOneBackend(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	reports, err := registry.GetStore("reports")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := registry.GetStore("raw")
	if err != nil {
		t.Fatal(err)
	}

	// Each store only sees its own root.
	if err := reports.Write(ctx, "only-here.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := raw.IsFile(ctx, "only-here.txt"); ok {
		t.Error("file written under one root is visible under another")
	}
	if ok, _ := reports.IsFile(ctx, "only-here.txt"); !ok {
		t.Error("file not visible under its own root")
	}
}

func TestGlobAcrossStore(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	tmp, err := registry.GetStore("tmp")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"a.csv", "b.txt", "deep/c.csv"} {
		if err := tmp.Write(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := tmp.Glob(ctx, "**.csv")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, info := range matches {
		got = append(got, info.Path.String())
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a.csv" || got[1] != "deep/c.csv" {
		t.Errorf("Glob = %v", got)
	}
}

// Folder lifecycle differs by backend family: the local driver keeps
// directories alive while empty, the memory driver does too, while
// object-store drivers drop a prefix with its last object. This pins
// the filesystem side of that contract.
func TestFolderLifecycle(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	for _, name := range []string{"reports", "tmp"} {
		t.Run(name, func(t *testing.T) {
			store, err := registry.GetStore(name)
			if err != nil {
				t.Fatal(err)
			}
			if err := store.Write(ctx, "hold/one.txt", strings.NewReader("x")); err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(ctx, "hold/one.txt", false); err != nil {
				t.Fatal(err)
			}
			if ok, _ := store.IsFolder(ctx, "hold"); !ok {
				t.Error("folder vanished with its last file")
			}
			if err := store.DeleteFolder(ctx, "hold", false, false); err != nil {
				t.Errorf("deleting the now-empty folder = %v", err)
			}
		})
	}
}

func TestChecksumMatchesAcrossBackends(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	const content = "hello world"
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	for _, name := range []string{"reports", "tmp"} {
		t.Run(name, func(t *testing.T) {
			store, err := registry.GetStore(name)
			if err != nil {
				t.Fatal(err)
			}
			if err := store.Write(ctx, "sum.txt", strings.NewReader(content)); err != nil {
				t.Fatal(err)
			}
			sum, err := store.Checksum(ctx, "sum.txt", storekit.ChecksumSHA256)
			if err != nil {
				t.Fatal(err)
			}
			if sum != want {
				t.Errorf("Checksum = %s, want %s", sum, want)
			}
		})
	}
}

func TestErrorTaxonomyEndToEnd(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	store, err := registry.GetStore("reports")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.ReadBytes(ctx, "missing.txt"); !storekit.IsNotFound(err) {
		t.Errorf("read of missing file = %v", err)
	}
	if err := store.Write(ctx, "../escape.txt", strings.NewReader("x")); !storekit.IsInvalidPath(err) {
		t.Errorf("traversal write = %v", err)
	}
	if err := store.Write(ctx, "dup.txt", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, "dup.txt", strings.NewReader("b")); !storekit.IsAlreadyExists(err) {
		t.Errorf("duplicate write = %v", err)
	}
}

func TestRegistryCloseReleasesStores(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	store, err := registry.GetStore("tmp")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, "a.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := registry.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.GetStore("tmp"); err == nil {
		t.Error("GetStore succeeded after Close")
	}
}
