package schedule

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// fakeSystemctl records invocations and succeeds unless told otherwise.
func fakeSystemctl(t *testing.T, fail bool) (binary, logPath string) {
	t.Helper()

	dir := t.TempDir()
	logPath = filepath.Join(dir, "systemctl.log")
	binary = filepath.Join(dir, "systemctl")

	script := `#!/bin/sh
echo "$@" >> "$SYSTEMCTL_TEST_LOG"
`
	if fail {
		script += `case "$*" in
*enable*) echo 'Failed to enable unit' >&2; exit 1 ;;
esac
`
	}
	script += "exit 0\n"

	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYSTEMCTL_TEST_LOG", logPath)
	return binary, logPath
}

func systemdFixture(t *testing.T, failEnable bool) (*SystemdBackend, string, string) {
	t.Helper()
	unitDir := filepath.Join(t.TempDir(), "systemd", "user")
	backend := NewSystemdBackend(unitDir, zerolog.Nop())
	binary, logPath := fakeSystemctl(t, failEnable)
	backend.systemctl = binary
	return backend, unitDir, logPath
}

func TestSystemdInstall(t *testing.T) {
	backend, unitDir, logPath := systemdFixture(t, false)
	ctx := context.Background()

	cfg := cronConfig()
	cfg.DayOfWeek = 3
	cfg.Hour = 5

	outcome, err := backend.Install(ctx, cfg)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if outcome != OutcomeInstalled {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeInstalled)
	}

	service, err := os.ReadFile(filepath.Join(unitDir, systemdServiceName))
	if err != nil {
		t.Fatalf("service unit not written: %v", err)
	}
	if !strings.Contains(string(service), "Type=oneshot") {
		t.Errorf("service unit not oneshot:\n%s", service)
	}
	if !strings.Contains(string(service), "ExecStart=/usr/local/bin/dotkeep backup --push") {
		t.Errorf("service unit command wrong:\n%s", service)
	}
	if !strings.Contains(string(service), "StandardOutput=append:") {
		t.Errorf("service unit does not append to the run log:\n%s", service)
	}

	timer, err := os.ReadFile(filepath.Join(unitDir, systemdTimerName))
	if err != nil {
		t.Fatalf("timer unit not written: %v", err)
	}
	if !strings.Contains(string(timer), "OnCalendar=Wed *-*-* 05:00:00") {
		t.Errorf("timer trigger wrong:\n%s", timer)
	}
	if !strings.Contains(string(timer), "Persistent=true") {
		t.Errorf("timer not persistent:\n%s", timer)
	}

	log, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "--user enable --now "+systemdTimerName) {
		t.Errorf("timer not enabled:\n%s", log)
	}
}

func TestSystemdInstallIdempotent(t *testing.T) {
	backend, _, _ := systemdFixture(t, false)
	ctx := context.Background()

	if _, err := backend.Install(ctx, cronConfig()); err != nil {
		t.Fatal(err)
	}

	outcome, err := backend.Install(ctx, cronConfig())
	if err != nil {
		t.Fatalf("second Install() error = %v", err)
	}
	if outcome != OutcomeAlreadyInstalled {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeAlreadyInstalled)
	}
}

func TestSystemdInstallEnableFailureRollsBack(t *testing.T) {
	backend, unitDir, _ := systemdFixture(t, true)

	_, err := backend.Install(context.Background(), cronConfig())
	if err == nil {
		t.Fatal("expected error from enable failure")
	}

	for _, name := range []string{systemdServiceName, systemdTimerName} {
		if _, statErr := os.Stat(filepath.Join(unitDir, name)); !os.IsNotExist(statErr) {
			t.Errorf("%s left behind after failed install", name)
		}
	}
}

func TestSystemdRemove(t *testing.T) {
	backend, unitDir, logPath := systemdFixture(t, false)
	ctx := context.Background()

	if _, err := backend.Install(ctx, cronConfig()); err != nil {
		t.Fatal(err)
	}

	removed, err := backend.Remove(ctx)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true")
	}

	for _, name := range []string{systemdServiceName, systemdTimerName} {
		if _, statErr := os.Stat(filepath.Join(unitDir, name)); !os.IsNotExist(statErr) {
			t.Errorf("%s survived removal", name)
		}
	}

	log, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "--user disable --now "+systemdTimerName) {
		t.Errorf("timer not disabled:\n%s", log)
	}

	// A second remove has nothing to do.
	removed, err = backend.Remove(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second Remove() = true")
	}
}

func TestSystemdStatus(t *testing.T) {
	backend, _, _ := systemdFixture(t, false)
	ctx := context.Background()

	state, err := backend.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateNotInstalled {
		t.Errorf("state = %s, want %s", state, StateNotInstalled)
	}

	if _, err := backend.Install(ctx, cronConfig()); err != nil {
		t.Fatal(err)
	}

	state, err = backend.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateInstalled {
		t.Errorf("state = %s, want %s", state, StateInstalled)
	}
}
