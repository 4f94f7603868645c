package schedule

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// anacronJobID is the job identifier column of the anacrontab entry.
const anacronJobID = "dotkeep-backup"

// AnacronBackend manages a user-level anacrontab file. Anacron is the
// missed-run catch-up store: a weekly job it owns executes on next boot
// when the machine slept through the cron trigger.
type AnacronBackend struct {
	tabPath string
	logger  zerolog.Logger
}

// DefaultAnacrontabPath returns the user-level anacrontab location
// (~/.anacron/anacrontab).
func DefaultAnacrontabPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".anacron", "anacrontab"), nil
}

// NewAnacronBackend creates an anacron backend managing the given tab file.
func NewAnacronBackend(tabPath string, logger zerolog.Logger) *AnacronBackend {
	return &AnacronBackend{
		tabPath: tabPath,
		logger:  logger.With().Str("component", "anacron").Logger(),
	}
}

// Name returns the backend identifier.
func (b *AnacronBackend) Name() string { return "anacron" }

// Available reports whether the anacron binary can be found.
func (b *AnacronBackend) Available() bool {
	_, err := exec.LookPath("anacron")
	return err == nil
}

// Install appends a marked weekly catch-up entry unless one is present.
func (b *AnacronBackend) Install(ctx context.Context, cfg Config) (InstallOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "validate", Err: err}
	}

	lines, err := b.read()
	if err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}

	for _, line := range lines {
		if b.marked(line) {
			b.logger.Debug().Msg("marked anacrontab entry already present")
			return OutcomeAlreadyInstalled, nil
		}
	}

	// period=7 days, delay=15 minutes after anacron starts.
	entry := fmt.Sprintf("7\t15\t%s\t%s # %s", anacronJobID, cfg.CommandLine(), Marker)
	lines = append(lines, entry)

	if err := b.write(lines); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	b.logger.Info().Str("entry", entry).Str("tab", b.tabPath).Msg("anacrontab entry installed")
	return OutcomeInstalled, nil
}

// Remove deletes exactly the marked entries.
func (b *AnacronBackend) Remove(ctx context.Context) (bool, error) {
	lines, err := b.read()
	if err != nil {
		return false, &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}

	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if b.marked(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}

	if removed == 0 {
		return false, nil
	}

	if err := b.write(kept); err != nil {
		return false, &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	b.logger.Info().Int("removed", removed).Msg("anacrontab entries removed")
	return true, nil
}

// Status reports whether a marked entry exists. It never mutates the store.
func (b *AnacronBackend) Status(ctx context.Context) (State, error) {
	lines, err := b.read()
	if err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}
	for _, line := range lines {
		if b.marked(line) {
			return StateInstalled, nil
		}
	}
	return StateNotInstalled, nil
}

// marked recognizes this tool's entries by marker tag or job identifier.
func (b *AnacronBackend) marked(line string) bool {
	if strings.Contains(line, Marker) {
		return true
	}
	fields := strings.Fields(line)
	return len(fields) >= 3 && fields[2] == anacronJobID
}

func (b *AnacronBackend) read() ([]string, error) {
	data, err := os.ReadFile(b.tabPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

// write replaces the tab file atomically via rename.
func (b *AnacronBackend) write(lines []string) error {
	dir := filepath.Dir(b.tabPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".anacrontab-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, b.tabPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
