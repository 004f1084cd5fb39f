// Package runner runs host processes for the stack services.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
)

// Exec runs commands with os/exec. Output is captured in full; stack commands
// print little and the log tail is bounded.
type Exec struct {
	env []string
}

// NewExec returns a runner whose children inherit the process environment
// plus extra KEY=VALUE pairs.
func NewExec(extraEnv ...string) *Exec {
	return &Exec{env: append(os.Environ(), extraEnv...)}
}

func (e *Exec) Run(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = e.env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	logger.DebugContext(ctx, "Executing command", "command", cmd.String(), "dir", cmd.Dir)
	start := time.Now()
	err := c.Run()

	res := domain.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.DebugContext(ctx, "Command exited", "command", cmd.String(), "exit_code", res.ExitCode, "duration", time.Since(start))
			return res, nil
		}
		// A missing working directory also reports ENOENT; keep its own text.
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && pathErr.Op == "chdir" {
			return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%s: %w", cmd.Name, domain.ErrCommandNotFound)
		}
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	logger.DebugContext(ctx, "Command finished", "command", cmd.String(), "duration", time.Since(start))
	return res, nil
}

func (e *Exec) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, domain.ErrCommandNotFound)
	}
	return path, nil
}
