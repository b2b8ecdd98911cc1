package repair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"tagpipe/internal/config"
	"tagpipe/internal/logging"
)

const defaultTimeout = 10 * time.Minute

// Runner attempts to repair the media behind the given item IDs.
type Runner interface {
	Run(ctx context.Context, itemIDs []string) error
}

// CommandRunner shells out to a configured repair command. The command
// string is split on whitespace into program and arguments; item IDs are
// written to its stdin one per line.
type CommandRunner struct {
	program string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandRunner builds a runner from the repair config section. It
// returns nil when repair is disabled or no command is configured.
func NewCommandRunner(cfg config.Repair, logger *slog.Logger) *CommandRunner {
	if !cfg.Enabled {
		return nil
	}
	fields := strings.Fields(cfg.Command)
	if len(fields) == 0 {
		return nil
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandRunner{
		program: fields[0],
		args:    fields[1:],
		timeout: timeout,
		logger:  logger.With(logging.String(logging.FieldComponent, "repair")),
	}
}

// Run executes the repair command once for the whole batch of items.
func (r *CommandRunner) Run(ctx context.Context, itemIDs []string) error {
	if r == nil {
		return errors.New("repair: runner not configured")
	}
	if len(itemIDs) == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdin bytes.Buffer
	for _, id := range itemIDs {
		stdin.WriteString(id)
		stdin.WriteByte('\n')
	}

	cmd := exec.CommandContext(runCtx, r.program, r.args...)
	cmd.Stdin = &stdin
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Info("running repair command",
		logging.String("command", r.program),
		logging.Int("items", len(itemIDs)))

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		detail := strings.TrimSpace(output.String())
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("repair: command timed out after %s: %s", r.timeout, detail)
		}
		return fmt.Errorf("repair: command failed: %w: %s", err, detail)
	}

	r.logger.Info("repair command finished",
		logging.Duration("elapsed", elapsed),
		logging.Int("items", len(itemIDs)))
	return nil
}
