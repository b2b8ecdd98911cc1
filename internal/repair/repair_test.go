package repair_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tagpipe/internal/config"
	"tagpipe/internal/repair"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repair.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestNewCommandRunnerDisabled(t *testing.T) {
	if r := repair.NewCommandRunner(config.Repair{Enabled: false, Command: "true"}, nil); r != nil {
		t.Fatal("disabled repair should produce nil runner")
	}
	if r := repair.NewCommandRunner(config.Repair{Enabled: true, Command: "   "}, nil); r != nil {
		t.Fatal("empty command should produce nil runner")
	}
}

func TestRunPassesItemIDsOnStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "received.txt")
	script := writeScript(t, "cat > "+out)

	runner := repair.NewCommandRunner(config.Repair{Enabled: true, Command: script}, nil)
	if runner == nil {
		t.Fatal("expected runner")
	}
	if err := runner.Run(context.Background(), []string{"item-1", "item-2"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	received, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(received) != "item-1\nitem-2\n" {
		t.Fatalf("unexpected stdin payload: %q", received)
	}
}

func TestRunReportsCommandFailure(t *testing.T) {
	script := writeScript(t, "echo 'thumbnail tool missing' >&2; exit 3")

	runner := repair.NewCommandRunner(config.Repair{Enabled: true, Command: script}, nil)
	err := runner.Run(context.Background(), []string{"item-1"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "thumbnail tool missing") {
		t.Fatalf("error should carry command output: %v", err)
	}
}

func TestRunTimesOut(t *testing.T) {
	script := writeScript(t, "sleep 5")

	runner := repair.NewCommandRunner(config.Repair{
		Enabled: true, Command: script, TimeoutSeconds: 1,
	}, nil)
	err := runner.Run(context.Background(), []string{"item-1"})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRunNoItemsIsNoop(t *testing.T) {
	script := writeScript(t, "exit 1")
	runner := repair.NewCommandRunner(config.Repair{Enabled: true, Command: script}, nil)
	if err := runner.Run(context.Background(), nil); err != nil {
		t.Fatalf("no-op run should not execute command: %v", err)
	}
}
