package manifest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestItemSpecValidate(t *testing.T) {
	t.Run("valid literal", func(t *testing.T) {
		if err := (ItemSpec{Path: ".bashrc"}).Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("valid nested", func(t *testing.T) {
		if err := (ItemSpec{Path: ".config/nvim/init.lua"}).Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("valid wildcard", func(t *testing.T) {
		if err := (ItemSpec{Path: ".ssh/*.pub", Wildcard: true}).Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := (ItemSpec{}).Validate(); err == nil {
			t.Fatal("expected error for empty path")
		}
	})

	t.Run("absolute path", func(t *testing.T) {
		if err := (ItemSpec{Path: "/etc/passwd"}).Validate(); err == nil {
			t.Fatal("expected error for absolute path")
		}
	})

	t.Run("traversal", func(t *testing.T) {
		if err := (ItemSpec{Path: "../outside"}).Validate(); err == nil {
			t.Fatal("expected error for traversal path")
		}
		if err := (ItemSpec{Path: ".config/../../outside"}).Validate(); err == nil {
			t.Fatal("expected error for embedded traversal")
		}
	})
}

func TestManifestCounts(t *testing.T) {
	m := New(uuid.New(), "host", "user")
	m.Record(ResolvedItem{RelPath: ".bashrc", Outcome: OutcomeIncluded})
	m.Record(ResolvedItem{RelPath: ".vim", Outcome: OutcomePartialCopy, Detail: "1 entries skipped"})
	m.Record(ResolvedItem{RelPath: ".zshrc", Outcome: OutcomeMissing, Detail: "not present"})
	m.Record(ResolvedItem{RelPath: ".gitconfig", Outcome: OutcomeIncluded})

	included, partial, missing := m.Counts()
	if included != 2 {
		t.Errorf("included = %d, want 2", included)
	}
	if partial != 1 {
		t.Errorf("partial = %d, want 1", partial)
	}
	if missing != 1 {
		t.Errorf("missing = %d, want 1", missing)
	}
}

func TestManifestRender(t *testing.T) {
	m := New(uuid.New(), "myhost", "alice")
	m.Record(ResolvedItem{RelPath: ".bashrc", Outcome: OutcomeIncluded})
	m.Record(ResolvedItem{RelPath: ".vim", Outcome: OutcomePartialCopy, Detail: "2 entries skipped: permission denied"})
	m.Record(ResolvedItem{RelPath: ".zshrc", Outcome: OutcomeMissing, Detail: "not present"})

	out := m.Render()

	for _, want := range []string{
		"Hostname:    myhost",
		"User:        alice",
		"1 included, 1 partial, 1 missing",
		"Included:",
		"Partially copied:",
		"Missing:",
		".bashrc",
		".vim (2 entries skipped: permission denied)",
		".zshrc (not present)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q in:\n%s", want, out)
		}
	}
}

func TestManifestRenderOmitsEmptySections(t *testing.T) {
	m := New(uuid.New(), "h", "u")
	m.Record(ResolvedItem{RelPath: ".bashrc", Outcome: OutcomeIncluded})

	out := m.Render()
	if strings.Contains(out, "Missing:") {
		t.Error("render should omit empty Missing section")
	}
	if strings.Contains(out, "Partially copied:") {
		t.Error("render should omit empty PartialCopy section")
	}
}
