package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"omvstack.control/internal/core/domain"
)

func testStack() domain.Stack {
	return domain.Stack{
		Service: "Immich",
		Project: "immich",
		Dir:     "/srv/dev-disk-by-label-data/immich",
		Mkconf:  "/usr/share/openmediavault/mkconf/immich",
	}
}

func TestDockerStackService_Actions(t *testing.T) {
	tests := []struct {
		name   string
		run    func(*DockerStackService, context.Context) (domain.ActionResult, error)
		verb   string
		status string
	}{
		{"install", (*DockerStackService).Install, "install", "installed"},
		{"remove", (*DockerStackService).Remove, "remove", "removed"},
		{"restart", (*DockerStackService).Restart, "restart", "restarted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			svc := NewDockerStackService(testStack(), runner, &mockBackend{})

			res, err := tt.run(svc, context.Background())
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if res.Status != tt.status {
				t.Errorf("Status = %q, want %q", res.Status, tt.status)
			}

			calls := runner.Calls()
			if len(calls) != 1 {
				t.Fatalf("expected 1 command, got %d", len(calls))
			}
			want := []string{"/bin/bash", "/usr/share/openmediavault/mkconf/immich", tt.verb}
			if !reflect.DeepEqual(calls[0].Argv(), want) {
				t.Errorf("argv = %q, want %q", calls[0].Argv(), want)
			}
		})
	}
}

func TestDockerStackService_RestartContainer(t *testing.T) {
	stack := testStack()
	stack.RestartContainer = "immich-server"
	runner := &mockRunner{}
	svc := NewDockerStackService(stack, runner, &mockBackend{})

	if _, err := svc.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	want := []string{
		"docker", "compose",
		"-f", "/srv/dev-disk-by-label-data/immich/docker-compose.yml",
		"--env-file", "/srv/dev-disk-by-label-data/immich/.env",
		"restart", "immich-server",
	}
	if got := runner.Calls()[0].Argv(); !reflect.DeepEqual(got, want) {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

func TestDockerStackService_ActionFailure(t *testing.T) {
	runner := &mockRunner{RunFunc: func(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
		return domain.CommandResult{ExitCode: 2, Stderr: "compose file missing\n"}, nil
	}}
	svc := NewDockerStackService(testStack(), runner, &mockBackend{})

	_, err := svc.Install(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	want := "Command '/bin/bash /usr/share/openmediavault/mkconf/immich install' returned non-zero exit status 2.\ncompose file missing"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDockerStackService_RunnerError(t *testing.T) {
	runner := &mockRunner{RunFunc: func(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
		return domain.CommandResult{}, domain.ErrCommandNotFound
	}}
	svc := NewDockerStackService(testStack(), runner, &mockBackend{})

	if _, err := svc.Remove(context.Background()); !errors.Is(err, domain.ErrCommandNotFound) {
		t.Errorf("Remove() error = %v", err)
	}
}

func TestDockerStackService_Logs(t *testing.T) {
	var gotService string
	backend := &mockBackend{LogsFunc: func(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error) {
		gotService = service
		if service == "broken" {
			return domain.LogOutput{}, errors.New("chdir /srv/dev-disk-by-label-data/immich: no such file or directory")
		}
		return domain.LogOutput{Logs: "immich-server-1  | ready\n"}, nil
	}}
	svc := NewDockerStackService(testStack(), &mockRunner{}, backend)

	handler := svc.Methods()["getLogs"]
	res, err := handler(context.Background(), map[string]any{"service": "immich-server"})
	if err != nil {
		t.Fatalf("getLogs error = %v", err)
	}
	if gotService != "immich-server" {
		t.Errorf("service = %q", gotService)
	}
	if out := res.(domain.LogOutput); out.Logs != "immich-server-1  | ready\n" {
		t.Errorf("Logs = %q", out.Logs)
	}

	out, err := svc.Logs(context.Background(), "broken")
	if err != nil {
		t.Fatalf("Logs() must not fail, got %v", err)
	}
	if out.Logs != "" || !strings.Contains(out.Error, "no such file") {
		t.Errorf("Logs() = %+v", out)
	}
}

func TestDockerStackService_Status(t *testing.T) {
	backend := &mockBackend{StatusFunc: func(ctx context.Context, project string) (domain.StackStatus, error) {
		if project != "immich" {
			t.Errorf("project = %q", project)
		}
		return domain.StackStatus{Running: true, Status: "running(4)"}, nil
	}}
	svc := NewDockerStackService(testStack(), &mockRunner{}, backend)

	status, err := svc.Status(context.Background())
	if err != nil || !status.Running {
		t.Errorf("Status() = %+v, %v", status, err)
	}
}

func TestDockerStackService_Info(t *testing.T) {
	dir := t.TempDir()
	compose := `services:
  server:
    image: ghcr.io/immich-app/immich-server:release
    container_name: immich_server
    ports:
      - "2283:2283"
  redis:
    image: redis:7
`
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(compose), 0o644); err != nil {
		t.Fatal(err)
	}

	stack := testStack()
	stack.Dir = dir
	svc := NewDockerStackService(stack, &mockRunner{}, &mockBackend{})

	info, err := svc.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Project != "immich" {
		t.Errorf("Project = %q", info.Project)
	}
	if len(info.Services) != 2 || info.Services[0].Name != "redis" || info.Services[1].Name != "server" {
		t.Fatalf("Services = %+v", info.Services)
	}
	server := info.Services[1]
	if server.ContainerName != "immich_server" {
		t.Errorf("ContainerName = %q", server.ContainerName)
	}
	if len(server.Ports) != 1 || server.Ports[0] != "2283:2283/tcp" {
		t.Errorf("Ports = %v", server.Ports)
	}
}
