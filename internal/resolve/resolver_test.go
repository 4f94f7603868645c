package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dotkeep/dotkeep/internal/manifest"
	"github.com/rs/zerolog"
)

func collect(r *Resolver, specs []manifest.ItemSpec) []manifest.ResolvedItem {
	var items []manifest.ResolvedItem
	for item := range r.Resolve(specs) {
		items = append(items, item)
	}
	return items
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveLiteral(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".bashrc"), "export PATH\n")

	r := New(root, zerolog.Nop())

	t.Run("present file", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".bashrc"}})
		if len(items) != 1 {
			t.Fatalf("got %d items, want 1", len(items))
		}
		if items[0].Outcome != manifest.OutcomeIncluded {
			t.Errorf("outcome = %s, want included", items[0].Outcome)
		}
		if items[0].RelPath != ".bashrc" {
			t.Errorf("rel path = %s, want .bashrc", items[0].RelPath)
		}
	})

	t.Run("present directory", func(t *testing.T) {
		writeFile(t, filepath.Join(root, ".vim", "vimrc"), "set nocompatible\n")
		items := collect(r, []manifest.ItemSpec{{Path: ".vim"}})
		if len(items) != 1 || items[0].Outcome != manifest.OutcomeIncluded {
			t.Fatalf("directory item not resolved as included: %+v", items)
		}
	})

	t.Run("absent", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".zshrc"}})
		if len(items) != 1 {
			t.Fatalf("got %d items, want 1", len(items))
		}
		if items[0].Outcome != manifest.OutcomeMissing {
			t.Errorf("outcome = %s, want missing", items[0].Outcome)
		}
	})
}

func TestResolveWildcard(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ssh", "id_ed25519.pub"), "key1")
	writeFile(t, filepath.Join(root, ".ssh", "id_rsa.pub"), "key2")
	writeFile(t, filepath.Join(root, ".ssh", "id_rsa"), "private")
	writeFile(t, filepath.Join(root, ".ssh", "keys.d", "extra.pub"), "nested")

	r := New(root, zerolog.Nop())

	t.Run("matches files one level deep", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".ssh/*.pub", Wildcard: true}})
		if len(items) != 2 {
			t.Fatalf("got %d items, want 2: %+v", len(items), items)
		}
		if items[0].RelPath != ".ssh/id_ed25519.pub" || items[1].RelPath != ".ssh/id_rsa.pub" {
			t.Errorf("unexpected matches: %+v", items)
		}
		for _, item := range items {
			if item.Outcome != manifest.OutcomeIncluded {
				t.Errorf("outcome for %s = %s, want included", item.RelPath, item.Outcome)
			}
		}
	})

	t.Run("never matches directories", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".ssh/*", Wildcard: true}})
		for _, item := range items {
			if item.RelPath == ".ssh/keys.d" {
				t.Error("wildcard matched a directory")
			}
		}
	})

	t.Run("never recurses", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".ssh/*.pub", Wildcard: true}})
		for _, item := range items {
			if item.RelPath == ".ssh/keys.d/extra.pub" {
				t.Error("wildcard recursed into a subdirectory")
			}
		}
	})

	t.Run("absent parent yields no entries", func(t *testing.T) {
		items := collect(r, []manifest.ItemSpec{{Path: ".missing/*.conf", Wildcard: true}})
		if len(items) != 0 {
			t.Fatalf("got %d items, want 0", len(items))
		}
	})
}

func TestResolveIsRestartable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".bashrc"), "a")
	writeFile(t, filepath.Join(root, ".gitconfig"), "b")

	r := New(root, zerolog.Nop())
	specs := []manifest.ItemSpec{{Path: ".bashrc"}, {Path: ".gitconfig"}, {Path: ".zshrc"}}

	seq := r.Resolve(specs)
	first := collect(r, specs)

	// Consuming the same sequence again yields the same items.
	var second []manifest.ResolvedItem
	for item := range seq {
		second = append(second, item)
	}

	if len(first) != len(second) {
		t.Fatalf("sequence not restartable: %d vs %d items", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("item %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestResolvePreservesSpecOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".zshrc"), "z")
	writeFile(t, filepath.Join(root, ".bashrc"), "b")

	r := New(root, zerolog.Nop())
	items := collect(r, []manifest.ItemSpec{{Path: ".zshrc"}, {Path: ".bashrc"}})

	if items[0].RelPath != ".zshrc" || items[1].RelPath != ".bashrc" {
		t.Errorf("spec order not preserved: %+v", items)
	}
}
