// Package compose reads compose stack state through the docker CLI.
package compose

import (
	"context"
	"errors"
	"strings"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

const logTail = "--tail=100"

type CLI struct {
	runner ports.CommandRunner
	docker string
}

func NewCLI(runner ports.CommandRunner) *CLI {
	return &CLI{runner: runner, docker: "docker"}
}

// Status lists all compose projects and picks project out of the listing.
func (c *CLI) Status(ctx context.Context, project string) (domain.StackStatus, error) {
	res, err := c.runner.Run(ctx, domain.Command{
		Name: c.docker,
		Args: []string{"compose", "ls", "--all", "--format", "{{.Name}}\t{{.Status}}"},
	})
	if err != nil {
		if errors.Is(err, domain.ErrCommandNotFound) {
			logger.ErrorContext(ctx, "Docker not found", "error", err)
			return domain.StackStatus{Running: false, Status: domain.StatusDockerNotFound}, nil
		}
		return domain.StackStatus{}, err
	}

	status := ParseList(res.Stdout, project)
	if res.ExitCode != 0 && !status.Running {
		status.Status = domain.StatusError
	}
	return status, nil
}

// ParseList interprets `docker compose ls` output in NAME<TAB>STATUS form.
func ParseList(output, project string) domain.StackStatus {
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		name, status, _ := strings.Cut(line, "\t")
		if strings.TrimSpace(name) != project {
			continue
		}
		text := strings.TrimSpace(status)
		if text == "" {
			text = domain.StatusUnknown
		}
		return domain.StackStatus{
			Running: strings.Contains(strings.ToLower(text), "running"),
			Status:  text,
		}
	}
	return domain.StackStatus{Running: false, Status: domain.StatusNotInstalled}
}

// Logs returns the last 100 lines of the stack, optionally for one service.
// stderr is only reported when the command fails.
func (c *CLI) Logs(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error) {
	args := []string{"compose", "logs", logTail}
	if service != "" {
		args = append(args, service)
	}

	res, err := c.runner.Run(ctx, domain.Command{Name: c.docker, Args: args, Dir: stack.Dir})
	if err != nil {
		return domain.LogOutput{}, err
	}

	out := domain.LogOutput{Logs: res.Stdout}
	if res.ExitCode != 0 {
		out.Error = res.Stderr
	}
	return out, nil
}
