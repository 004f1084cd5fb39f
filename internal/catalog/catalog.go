// Package catalog holds the built-in panels and the backend services behind
// them.
package catalog

import (
	"fmt"
	"path/filepath"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/ports"
	"omvstack.control/internal/core/services"
	"omvstack.control/internal/panel"
)

const (
	DefaultStackRoot = "/srv/dev-disk-by-label-data"
	DefaultMkconfDir = "/usr/share/openmediavault/mkconf"
)

// Definition pairs a panel with the stack it manages. Stack is nil for tool
// panels such as StoreCLI.
type Definition struct {
	Panel panel.Descriptor
	Stack *domain.Stack
}

// Definitions returns every built-in panel.
func Definitions(stackRoot, mkconfDir string) []Definition {
	if stackRoot == "" {
		stackRoot = DefaultStackRoot
	}
	if mkconfDir == "" {
		mkconfDir = DefaultMkconfDir
	}

	stack := func(service, project, restartContainer string) *domain.Stack {
		return &domain.Stack{
			Service:          service,
			Project:          project,
			Dir:              filepath.Join(stackRoot, project),
			Mkconf:           filepath.Join(mkconfDir, project),
			RestartContainer: restartContainer,
		}
	}
	certbotDir := filepath.Join(stackRoot, "certbot")

	return []Definition{
		{
			Panel: panel.Descriptor{ID: "drone", Title: "Drone", Service: "Drone", Position: 92, WebPort: 8080},
			Stack: stack("Drone", "drone", ""),
		},
		{
			Panel: panel.Descriptor{ID: "drone-ci", Title: "Drone CI", Service: "DroneCI", Position: 92},
			Stack: stack("DroneCI", "drone-ci", "drone-server"),
		},
		{
			Panel: panel.Descriptor{ID: "gitea", Title: "Gitea", Service: "Gitea", Position: 91, WebPort: 3080},
			Stack: stack("Gitea", "gitea", ""),
		},
		{
			Panel: panel.Descriptor{ID: "immich", Title: "Immich", Service: "Immich", Position: 90, WebPort: 2285},
			Stack: stack("Immich", "immich", "immich-server"),
		},
		{
			Panel: panel.Descriptor{
				ID:       "certbot",
				Title:    "Certbot",
				Service:  "Certbot",
				Position: 92,
				Actions:  []panel.Action{panel.ActionInstall, panel.ActionRestart, panel.ActionLogs, panel.ActionRemove},
				StatusFields: []panel.Field{
					{Name: "status", Label: "Status", Default: "Loading..."},
					{Name: "running", Label: "Running", Default: "Loading..."},
				},
				RemoveConfirm: fmt.Sprintf("Removing Certbot will delete certificates stored under %s. Continue?", certbotDir),
				Messages: map[panel.Action]panel.Message{
					panel.ActionInstall: {Wait: "Configuring Certbot stack...", Success: "Certbot stack prepared and running."},
					panel.ActionRestart: {Wait: "Restarting Certbot services...", Success: "Certbot services restarted."},
					panel.ActionRemove:  {Wait: "Removing Certbot stack...", Success: "Certbot stack removed."},
				},
				Info: []panel.InfoItem{{Label: "Stack directory", Value: certbotDir}},
			},
			Stack: stack("Certbot", "certbot", ""),
		},
		{
			Panel: panel.Descriptor{
				ID:       "storecli",
				Title:    "StoreCLI RAID",
				Service:  "StoreCLI",
				Position: 95,
				Actions:  []panel.Action{panel.ActionRefresh, panel.ActionController, panel.ActionEventLog},
				StatusFields: []panel.Field{
					{Name: "installed", Label: "Binary Available", Default: "No"},
					{Name: "binary", Label: "Binary Path", Default: "Not detected"},
					{Name: "version", Label: "Version", Default: "Unknown"},
					{Name: "summary", Label: "Summary", Multiline: true},
					{Name: "controllerHints", Label: "Controller Hints", Multiline: true},
					{Name: "error", Label: "Errors", Multiline: true},
				},
			},
		},
	}
}

// Workspace registers every definition's panel.
func Workspace(defs []Definition) (*panel.Workspace, error) {
	ws := panel.NewWorkspace()
	for _, def := range defs {
		if err := ws.Register(def.Panel); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

// Services builds the backend service for every definition. Stack services are
// also returned as status sources for the poller.
func Services(defs []Definition, runner ports.CommandRunner, backend ports.ComposeBackend) ([]services.Service, []services.StatusSource) {
	var (
		svcs    []services.Service
		sources []services.StatusSource
	)
	for _, def := range defs {
		if def.Stack == nil {
			svcs = append(svcs, services.NewStoreCLIService(def.Panel.Service, runner))
			continue
		}
		stack := services.NewDockerStackService(*def.Stack, runner, backend)
		svcs = append(svcs, stack)
		sources = append(sources, stack)
	}
	return svcs, sources
}
