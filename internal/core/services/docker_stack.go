package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/cli"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

// CommandError reports a command that ran but exited non-zero.
type CommandError struct {
	Command domain.Command
	Result  domain.CommandResult
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' returned non-zero exit status %d.", e.Command, e.Result.ExitCode)
	if detail := strings.TrimSpace(e.Result.Stderr); detail != "" {
		msg += "\n" + detail
	}
	return msg
}

// DockerStackService exposes getStatus, install, remove, restart, getLogs and
// getStackInfo for one compose stack.
type DockerStackService struct {
	stack   domain.Stack
	runner  ports.CommandRunner
	backend ports.ComposeBackend
}

func NewDockerStackService(stack domain.Stack, runner ports.CommandRunner, backend ports.ComposeBackend) *DockerStackService {
	return &DockerStackService{
		stack:   stack,
		runner:  runner,
		backend: backend,
	}
}

func (s *DockerStackService) Name() string {
	return s.stack.Service
}

func (s *DockerStackService) Stack() domain.Stack {
	return s.stack
}

func (s *DockerStackService) Methods() map[string]Handler {
	return map[string]Handler{
		"getStatus": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Status(ctx)
		},
		"install": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Install(ctx)
		},
		"remove": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Remove(ctx)
		},
		"restart": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Restart(ctx)
		},
		"getLogs": func(ctx context.Context, params map[string]any) (any, error) {
			return s.Logs(ctx, stringParam(params, "service", ""))
		},
		"getStackInfo": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Info(ctx)
		},
	}
}

func (s *DockerStackService) Status(ctx context.Context) (domain.StackStatus, error) {
	status, err := s.backend.Status(ctx, s.stack.Project)
	if err != nil {
		return domain.StackStatus{}, err
	}
	running := 0.0
	if status.Running {
		running = 1
	}
	stackRunning.WithLabelValues(s.stack.Service).Set(running)
	return status, nil
}

func (s *DockerStackService) Install(ctx context.Context) (domain.ActionResult, error) {
	if err := s.mkconf(ctx, "install"); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{Status: "installed"}, nil
}

func (s *DockerStackService) Remove(ctx context.Context) (domain.ActionResult, error) {
	if err := s.mkconf(ctx, "remove"); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{Status: "removed"}, nil
}

// Restart runs the mkconf restart verb, or restarts only RestartContainer
// when the stack names one.
func (s *DockerStackService) Restart(ctx context.Context) (domain.ActionResult, error) {
	if s.stack.RestartContainer == "" {
		if err := s.mkconf(ctx, "restart"); err != nil {
			return domain.ActionResult{}, err
		}
		return domain.ActionResult{Status: "restarted"}, nil
	}

	cmd := domain.Command{
		Name: "docker",
		Args: []string{
			"compose",
			"-f", s.stack.ComposeFile(),
			"--env-file", s.stack.EnvFile(),
			"restart", s.stack.RestartContainer,
		},
	}
	if err := s.run(ctx, cmd); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{Status: "restarted"}, nil
}

// Logs never fails: backend errors are reported in the payload.
func (s *DockerStackService) Logs(ctx context.Context, service string) (domain.LogOutput, error) {
	out, err := s.backend.Logs(ctx, s.stack, service)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to get logs", "service", s.stack.Service, "error", err)
		return domain.LogOutput{Logs: "", Error: err.Error()}, nil
	}
	return out, nil
}

// Info parses the stack's compose file.
func (s *DockerStackService) Info(ctx context.Context) (domain.StackInfo, error) {
	opts, err := cli.NewProjectOptions(
		[]string{s.stack.ComposeFile()},
		cli.WithWorkingDirectory(s.stack.Dir),
		cli.WithOsEnv,
		cli.WithDotEnv,
		cli.WithName(s.stack.Project),
	)
	if err != nil {
		return domain.StackInfo{}, err
	}
	project, err := opts.LoadProject(ctx)
	if err != nil {
		return domain.StackInfo{}, fmt.Errorf("failed to load compose project: %w", err)
	}

	info := domain.StackInfo{
		Project:     project.Name,
		Directory:   s.stack.Dir,
		ComposeFile: s.stack.ComposeFile(),
		Services:    make([]domain.StackService, 0, len(project.Services)),
	}
	for name, svc := range project.Services {
		entry := domain.StackService{
			Name:          name,
			Image:         svc.Image,
			ContainerName: svc.ContainerName,
			Ports:         make([]string, 0, len(svc.Ports)),
		}
		for _, p := range svc.Ports {
			if p.Published == "" {
				entry.Ports = append(entry.Ports, fmt.Sprintf("%d/%s", p.Target, p.Protocol))
				continue
			}
			entry.Ports = append(entry.Ports, fmt.Sprintf("%s:%d/%s", p.Published, p.Target, p.Protocol))
		}
		info.Services = append(info.Services, entry)
	}
	sort.Slice(info.Services, func(i, j int) bool {
		return info.Services[i].Name < info.Services[j].Name
	})
	return info, nil
}

func (s *DockerStackService) mkconf(ctx context.Context, verb string) error {
	return s.run(ctx, domain.Command{
		Name: "/bin/bash",
		Args: []string{s.stack.Mkconf, verb},
	})
}

func (s *DockerStackService) run(ctx context.Context, cmd domain.Command) error {
	logger.DebugContext(ctx, "Executing command", "command", cmd.String())
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "Command finished", "exit_code", res.ExitCode,
		"stdout", strings.TrimSpace(res.Stdout), "stderr", strings.TrimSpace(res.Stderr))
	if res.ExitCode != 0 {
		return &CommandError{Command: cmd, Result: res}
	}
	return nil
}
