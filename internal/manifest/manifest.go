// Package manifest defines the backup item model and the per-run manifest
// embedded in every archive.
package manifest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how an item ended up in (or out of) an archive.
type Outcome string

const (
	// OutcomeIncluded means the item was copied in full.
	OutcomeIncluded Outcome = "included"
	// OutcomePartialCopy means the item is a directory and at least one
	// sub-entry could not be copied.
	OutcomePartialCopy Outcome = "partial_copy"
	// OutcomeMissing means the item does not exist or could not be read at all.
	OutcomeMissing Outcome = "missing"
)

// ItemSpec is a configured backup target, relative to the source root.
// A wildcard spec expands exactly one directory level under its parent
// directory and matches regular files only.
type ItemSpec struct {
	Path     string `yaml:"path"`
	Wildcard bool   `yaml:"wildcard,omitempty"`
}

// Validate checks that the spec path is usable as a root-relative target.
func (s ItemSpec) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("item spec: path is required")
	}
	if strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("item spec %q: path must be relative to the source root", s.Path)
	}
	for _, part := range strings.Split(s.Path, "/") {
		if part == ".." {
			return fmt.Errorf("item spec %q: path must not traverse outside the source root", s.Path)
		}
	}
	return nil
}

// ResolvedItem is one concrete filesystem entry matched from an ItemSpec.
// Wildcard specs produce zero or more resolved items.
type ResolvedItem struct {
	Spec       ItemSpec `yaml:"spec"`
	RelPath    string   `yaml:"path"`
	SourcePath string   `yaml:"source"`
	Outcome    Outcome  `yaml:"outcome"`
	// Detail carries the failure description for partial or missing items.
	Detail string `yaml:"detail,omitempty"`
}

// Manifest is the per-run record of item outcomes, embedded as
// human-readable metadata inside the archive. Immutable once written.
type Manifest struct {
	JobID     uuid.UUID      `yaml:"job_id"`
	CreatedAt time.Time      `yaml:"created_at"`
	Hostname  string         `yaml:"hostname"`
	User      string         `yaml:"user"`
	Items     []ResolvedItem `yaml:"items"`
}

// New creates an empty manifest for one backup job.
func New(jobID uuid.UUID, hostname, user string) *Manifest {
	return &Manifest{
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
		Hostname:  hostname,
		User:      user,
	}
}

// Record appends an item outcome to the manifest, preserving order.
func (m *Manifest) Record(item ResolvedItem) {
	m.Items = append(m.Items, item)
}

// Counts returns the aggregate outcome tallies.
func (m *Manifest) Counts() (included, partial, missing int) {
	for _, item := range m.Items {
		switch item.Outcome {
		case OutcomeIncluded:
			included++
		case OutcomePartialCopy:
			partial++
		case OutcomeMissing:
			missing++
		}
	}
	return included, partial, missing
}

// Render produces the human-readable manifest block written into the
// archive README.
func (m *Manifest) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Backup job:  %s\n", m.JobID)
	fmt.Fprintf(&b, "Created at:  %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Hostname:    %s\n", m.Hostname)
	fmt.Fprintf(&b, "User:        %s\n", m.User)

	included, partial, missing := m.Counts()
	fmt.Fprintf(&b, "Items:       %d included, %d partial, %d missing\n", included, partial, missing)
	b.WriteString("\n")

	byOutcome := make(map[Outcome][]ResolvedItem)
	for _, item := range m.Items {
		byOutcome[item.Outcome] = append(byOutcome[item.Outcome], item)
	}

	for _, outcome := range []Outcome{OutcomeIncluded, OutcomePartialCopy, OutcomeMissing} {
		items := byOutcome[outcome]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].RelPath < items[j].RelPath })
		fmt.Fprintf(&b, "%s:\n", outcomeHeading(outcome))
		for _, item := range items {
			if item.Detail != "" {
				fmt.Fprintf(&b, "  %s (%s)\n", item.RelPath, item.Detail)
			} else {
				fmt.Fprintf(&b, "  %s\n", item.RelPath)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func outcomeHeading(o Outcome) string {
	switch o {
	case OutcomeIncluded:
		return "Included"
	case OutcomePartialCopy:
		return "Partially copied"
	case OutcomeMissing:
		return "Missing"
	default:
		return string(o)
	}
}
