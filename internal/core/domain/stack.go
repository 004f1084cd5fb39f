package domain

import "path/filepath"

// Stack describes one docker compose project managed through an mkconf script.
type Stack struct {
	// Service is the RPC routing identifier, e.g. "Immich".
	Service string `json:"service"`
	// Project is the compose project name, e.g. "immich".
	Project string `json:"project"`
	// Dir holds docker-compose.yml and .env.
	Dir string `json:"dir"`
	// Mkconf is the script invoked with install, remove or restart.
	Mkconf string `json:"mkconf"`
	// RestartContainer, when set, makes restart target a single compose
	// service instead of running the mkconf script.
	RestartContainer string `json:"restart_container,omitempty"`
}

func (s Stack) ComposeFile() string {
	return filepath.Join(s.Dir, "docker-compose.yml")
}

func (s Stack) EnvFile() string {
	return filepath.Join(s.Dir, ".env")
}

// Stack status values reported next to the running flag.
const (
	StatusNotInstalled   = "not-installed"
	StatusUnknown        = "unknown"
	StatusError          = "error"
	StatusDockerNotFound = "docker-not-found"
)

type StackStatus struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

type LogOutput struct {
	Logs  string `json:"logs"`
	Error string `json:"error"`
}

type ActionResult struct {
	Status string `json:"status"`
}

// StackService is one entry of a parsed compose file.
type StackService struct {
	Name          string   `json:"name"`
	Image         string   `json:"image"`
	ContainerName string   `json:"container_name,omitempty"`
	Ports         []string `json:"ports"`
}

type StackInfo struct {
	Project     string         `json:"project"`
	Directory   string         `json:"directory"`
	ComposeFile string         `json:"compose_file"`
	Services    []StackService `json:"services"`
}
