package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	systemdServiceName = "dotkeep-backup.service"
	systemdTimerName   = "dotkeep-backup.timer"
)

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// SystemdBackend registers the backup as a systemd user timer. It is the
// native scheduler variant for systems without cron; Persistent=true
// gives it anacron-like catch-up on its own.
type SystemdBackend struct {
	unitDir   string
	systemctl string
	logger    zerolog.Logger
}

// DefaultSystemdUnitDir returns the user unit directory
// (~/.config/systemd/user).
func DefaultSystemdUnitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

// NewSystemdBackend creates a systemd backend writing units into unitDir.
func NewSystemdBackend(unitDir string, logger zerolog.Logger) *SystemdBackend {
	return &SystemdBackend{
		unitDir:   unitDir,
		systemctl: "systemctl",
		logger:    logger.With().Str("component", "systemd").Logger(),
	}
}

// Name returns the backend identifier.
func (b *SystemdBackend) Name() string { return "systemd" }

// Available reports whether systemctl can be found.
func (b *SystemdBackend) Available() bool {
	_, err := exec.LookPath(b.systemctl)
	return err == nil
}

// Install writes the service and timer units and enables the timer. The
// unit names act as the marker: nothing outside them is touched.
func (b *SystemdBackend) Install(ctx context.Context, cfg Config) (InstallOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "validate", Err: err}
	}

	timerPath := filepath.Join(b.unitDir, systemdTimerName)
	if _, err := os.Stat(timerPath); err == nil {
		b.logger.Debug().Msg("timer unit already present")
		return OutcomeAlreadyInstalled, nil
	}

	if err := os.MkdirAll(b.unitDir, 0o755); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	servicePath := filepath.Join(b.unitDir, systemdServiceName)
	if err := os.WriteFile(servicePath, []byte(b.serviceUnit(cfg)), 0o644); err != nil {
		return "", &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}
	if err := os.WriteFile(timerPath, []byte(b.timerUnit(cfg)), 0o644); err != nil {
		// Keep the store all-or-nothing.
		os.Remove(servicePath)
		return "", &StoreError{Backend: b.Name(), Op: "write", Err: err}
	}

	if err := b.runSystemctl(ctx, "daemon-reload"); err != nil {
		b.logger.Warn().Err(err).Msg("daemon-reload failed; timer will load on next login")
	}
	if err := b.runSystemctl(ctx, "enable", "--now", systemdTimerName); err != nil {
		os.Remove(servicePath)
		os.Remove(timerPath)
		return "", &StoreError{Backend: b.Name(), Op: "enable", Err: err}
	}

	b.logger.Info().Str("timer", timerPath).Msg("systemd timer installed")
	return OutcomeInstalled, nil
}

// Remove disables the timer and deletes exactly this tool's units.
func (b *SystemdBackend) Remove(ctx context.Context) (bool, error) {
	timerPath := filepath.Join(b.unitDir, systemdTimerName)
	servicePath := filepath.Join(b.unitDir, systemdServiceName)

	if _, err := os.Stat(timerPath); os.IsNotExist(err) {
		return false, nil
	}

	if err := b.runSystemctl(ctx, "disable", "--now", systemdTimerName); err != nil {
		b.logger.Warn().Err(err).Msg("disable failed; removing unit files anyway")
	}

	var firstErr error
	for _, path := range []string{timerPath, servicePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return false, &StoreError{Backend: b.Name(), Op: "remove", Err: firstErr}
	}

	b.logger.Info().Msg("systemd timer removed")
	return true, nil
}

// Status reports whether the timer unit exists. It never mutates the store.
func (b *SystemdBackend) Status(ctx context.Context) (State, error) {
	if _, err := os.Stat(filepath.Join(b.unitDir, systemdTimerName)); err == nil {
		return StateInstalled, nil
	}
	return StateNotInstalled, nil
}

func (b *SystemdBackend) serviceUnit(cfg Config) string {
	args := cfg.Executable + " backup"
	if cfg.Push {
		args += " --push"
	}
	unit := fmt.Sprintf(`[Unit]
Description=dotkeep scheduled dotfiles backup

[Service]
Type=oneshot
ExecStart=%s
`, args)
	if cfg.LogPath != "" {
		unit += fmt.Sprintf("StandardOutput=append:%s\nStandardError=append:%s\n", cfg.LogPath, cfg.LogPath)
	}
	return unit
}

func (b *SystemdBackend) timerUnit(cfg Config) string {
	return fmt.Sprintf(`[Unit]
Description=Weekly dotkeep backup trigger

[Timer]
OnCalendar=%s *-*-* %02d:00:00
Persistent=true

[Install]
WantedBy=timers.target
`, dayNames[cfg.DayOfWeek], cfg.Hour)
}

func (b *SystemdBackend) runSystemctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, b.systemctl, append([]string{"--user"}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
