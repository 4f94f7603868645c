package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// CronBackend manages the user crontab through the crontab binary. The
// table is replaced wholesale on write, so an update is atomic from the
// store's point of view.
type CronBackend struct {
	binary string
	logger zerolog.Logger
}

// NewCronBackend creates a cron backend using the crontab binary on PATH.
func NewCronBackend(logger zerolog.Logger) *CronBackend {
	return NewCronBackendWithBinary("crontab", logger)
}

// NewCronBackendWithBinary creates a cron backend with a custom crontab
// binary path.
func NewCronBackendWithBinary(binary string, logger zerolog.Logger) *CronBackend {
	return &CronBackend{
		binary: binary,
		logger: logger.With().Str("component", "cron").Logger(),
	}
}

// Name returns the backend identifier.
func (b *CronBackend) Name() string { return "cron" }

// Available reports whether the crontab binary can be found.
func (b *CronBackend) Available() bool {
	_, err := exec.LookPath(b.binary)
	return err == nil
}

// Install appends a marked weekly entry to the crontab unless one is
// already present. Unmarked entries are preserved byte for byte.
func (b *CronBackend) Install(ctx context.Context, cfg Config) (InstallOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "validate", Err: err}
	}
	spec, err := cfg.CronSpec()
	if err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "validate", Err: err}
	}

	lines, err := b.read(ctx)
	if err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}

	for _, line := range lines {
		if strings.Contains(line, Marker) {
			b.logger.Debug().Msg("marked crontab entry already present")
			return OutcomeAlreadyInstalled, nil
		}
	}

	entry := fmt.Sprintf("%s %s # %s", spec, cfg.CommandLine(), Marker)
	lines = append(lines, entry)

	if err := b.write(ctx, lines); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	b.logger.Info().Str("entry", entry).Msg("crontab entry installed")
	return OutcomeInstalled, nil
}

// Remove deletes exactly the marked entries. It reports false when there
// was nothing to remove.
func (b *CronBackend) Remove(ctx context.Context) (bool, error) {
	lines, err := b.read(ctx)
	if err != nil {
		return false, &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}

	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if strings.Contains(line, Marker) {
			removed++
			continue
		}
		kept = append(kept, line)
	}

	if removed == 0 {
		return false, nil
	}

	if err := b.write(ctx, kept); err != nil {
		return false, &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	b.logger.Info().Int("removed", removed).Msg("crontab entries removed")
	return true, nil
}

// Status reports whether a marked entry exists. It never mutates the store.
func (b *CronBackend) Status(ctx context.Context) (State, error) {
	lines, err := b.read(ctx)
	if err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}
	for _, line := range lines {
		if strings.Contains(line, Marker) {
			return StateInstalled, nil
		}
	}
	return StateNotInstalled, nil
}

// read returns the current crontab lines. An empty crontab is not an error.
func (b *CronBackend) read(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, b.binary, "-l")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// crontab -l exits non-zero when the user has no crontab yet.
		if strings.Contains(stderr.String(), "no crontab") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	content := strings.TrimRight(stdout.String(), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

// write replaces the crontab with the given lines in one operation.
func (b *CronBackend) write(ctx context.Context, lines []string) error {
	cmd := exec.CommandContext(ctx, b.binary, "-")
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n") + "\n")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
