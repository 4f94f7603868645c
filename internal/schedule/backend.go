// Package schedule manages recurring backup registrations across the
// cron, anacron and systemd job stores, idempotently.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Marker is the tag recognizing this tool's own entries in a shared job
// store. Install and remove only ever touch marked entries.
const Marker = "dotkeep:scheduled-backup"

// State is the installation state of a (marker, backend) pair.
type State string

const (
	StateInstalled    State = "installed"
	StateNotInstalled State = "not installed"
)

// InstallOutcome reports what an Install call did.
type InstallOutcome string

const (
	// OutcomeInstalled means a new entry was written.
	OutcomeInstalled InstallOutcome = "installed"
	// OutcomeAlreadyInstalled means a marked entry already existed and the
	// store was left untouched.
	OutcomeAlreadyInstalled InstallOutcome = "already installed"
)

// StoreError reports a job-store read or write failure. The store is
// either fully updated or left unchanged, never partially written.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Config describes the recurring backup to register.
type Config struct {
	// DayOfWeek is 0-6, Sunday first.
	DayOfWeek int
	// Hour is 0-23.
	Hour int
	// Push enables publishing after each scheduled backup.
	Push bool
	// Executable is the absolute path of the dotkeep binary to invoke.
	Executable string
	// LogPath receives the scheduled run's stdout and stderr.
	LogPath string
}

// Validate checks the trigger fields.
func (c Config) Validate() error {
	if c.DayOfWeek < 0 || c.DayOfWeek > 6 {
		return fmt.Errorf("day of week %d out of range [0,6]", c.DayOfWeek)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("hour %d out of range [0,23]", c.Hour)
	}
	if c.Executable == "" {
		return fmt.Errorf("executable path is required")
	}
	return nil
}

// CronSpec returns the weekly trigger expression for the config and
// validates it with the cron parser before it ever reaches a store.
func (c Config) CronSpec() (string, error) {
	spec := fmt.Sprintf("0 %d * * %d", c.Hour, c.DayOfWeek)
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("cron expression %q: %w", spec, err)
	}
	return spec, nil
}

// CommandLine returns the shell command a job store entry runs.
func (c Config) CommandLine() string {
	var b strings.Builder
	b.WriteString(c.Executable)
	b.WriteString(" backup")
	if c.Push {
		b.WriteString(" --push")
	}
	if c.LogPath != "" {
		fmt.Fprintf(&b, " >> %s 2>&1", c.LogPath)
	}
	return b.String()
}

// Backend is one job store capable of running the backup on a recurring
// trigger. Implementations only append or remove their own marked
// entries and preserve everything else in the store.
type Backend interface {
	Name() string
	Available() bool
	Install(ctx context.Context, cfg Config) (InstallOutcome, error)
	Remove(ctx context.Context) (bool, error)
	Status(ctx context.Context) (State, error)
}
