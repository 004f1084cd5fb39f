package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

var (
	ErrBinaryNotFound = errors.New("storecli binary is not available on this system")

	showArgPattern    = regexp.MustCompile(`^[A-Za-z0-9_./:-]+$`)
	controllerPattern = regexp.MustCompile(`^[0-9]+$`)

	storeCLICandidates = []string{"storecli", "storecli64", "storcli", "storcli64"}
)

const missingBinaryMessage = "No storecli/storcli binary found. Install Broadcom's StoreCLI package " +
	"and ensure it is available in the system PATH."

type StoreCLIStatus struct {
	Installed       bool    `json:"installed"`
	Binary          *string `json:"binary"`
	Version         string  `json:"version"`
	Summary         string  `json:"summary"`
	ControllerHints string  `json:"controllerHints"`
	Error           string  `json:"error"`
}

type ShowResult struct {
	Command    string `json:"command"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

// StoreCLIService exposes read-only StoreCLI queries for RAID controllers.
type StoreCLIService struct {
	name   string
	runner ports.CommandRunner
}

func NewStoreCLIService(name string, runner ports.CommandRunner) *StoreCLIService {
	return &StoreCLIService{name: name, runner: runner}
}

func (s *StoreCLIService) Name() string {
	return s.name
}

func (s *StoreCLIService) Methods() map[string]Handler {
	return map[string]Handler{
		"getStatus": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Status(ctx), nil
		},
		"getControllerDetails": func(ctx context.Context, params map[string]any) (any, error) {
			args, ok := params["arguments"]
			if !ok {
				args = []any{"show", "all"}
			}
			return s.Show(ctx, stringParam(params, "controller", "all"), args)
		},
		"runShowCommand": func(ctx context.Context, params map[string]any) (any, error) {
			args, ok := params["arguments"]
			if !ok {
				args = []any{}
			}
			return s.Show(ctx, stringParam(params, "controller", "all"), args)
		},
		"getLogs": func(ctx context.Context, _ map[string]any) (any, error) {
			return s.Logs(ctx), nil
		},
	}
}

func (s *StoreCLIService) detectBinary() string {
	for _, candidate := range storeCLICandidates {
		if path, err := s.runner.LookPath(candidate); err == nil {
			return path
		}
	}
	return ""
}

// Status reports binary availability, version and the controller summary.
func (s *StoreCLIService) Status(ctx context.Context) StoreCLIStatus {
	status := StoreCLIStatus{}

	binary := s.detectBinary()
	if binary == "" {
		status.Error = missingBinaryMessage
		return status
	}
	status.Installed = true
	status.Binary = &binary

	var errs []string
	version, err := s.exec(ctx, binary, "-v")
	switch {
	case err != nil:
		errs = append(errs, err.Error())
	case version.ExitCode == 0:
		status.Version = firstNonEmpty(version.Stdout, version.Stderr)
	default:
		errs = append(errs, firstNonEmpty(version.Stderr, version.Stdout))
	}

	summary, err := s.exec(ctx, binary, "show", "summary")
	switch {
	case err != nil:
		errs = append(errs, err.Error())
	case summary.ExitCode == 0:
		status.Summary = strings.TrimSpace(summary.Stdout)
	default:
		errs = append(errs, firstNonEmpty(summary.Stderr, summary.Stdout))
	}

	status.ControllerHints = controllerHints(status.Summary)
	status.Error = joinNonEmpty(errs)
	return status
}

// Show runs `<binary> <controller> show ...` after validating both parts.
func (s *StoreCLIService) Show(ctx context.Context, controller string, arguments any) (ShowResult, error) {
	binary := s.detectBinary()
	if binary == "" {
		return ShowResult{}, ErrBinaryNotFound
	}

	target, err := SafeController(controller)
	if err != nil {
		return ShowResult{}, err
	}
	cleaned, err := SanitizeShowArgs(arguments)
	if err != nil {
		return ShowResult{}, err
	}

	argv := append([]string{target}, cleaned...)
	res, err := s.exec(ctx, binary, argv...)
	if err != nil {
		return ShowResult{}, err
	}
	return ShowResult{
		Command:    shellescape.QuoteCommand(append([]string{binary}, argv...)),
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ReturnCode: res.ExitCode,
	}, nil
}

// Logs returns the controller event log. Failures land in the error field.
func (s *StoreCLIService) Logs(ctx context.Context) domain.LogOutput {
	res, err := s.Show(ctx, "all", []any{"show", "events"})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to collect StoreCLI logs", "error", err)
		return domain.LogOutput{Logs: "", Error: err.Error()}
	}
	return domain.LogOutput{Logs: res.Stdout, Error: res.Stderr}
}

func (s *StoreCLIService) exec(ctx context.Context, binary string, args ...string) (domain.CommandResult, error) {
	cmd := domain.Command{Name: binary, Args: args}
	logger.DebugContext(ctx, "Executing command", "command", cmd.String())
	return s.runner.Run(ctx, cmd)
}

// SafeController maps a user supplied controller id to a StoreCLI target.
func SafeController(controller string) (string, error) {
	if controller == "" {
		controller = "all"
	}
	controller = strings.ToLower(strings.TrimSpace(controller))
	switch {
	case controller == "all" || controller == "*" || controller == "call":
		return "/call", nil
	case controllerPattern.MatchString(controller):
		return "/c" + controller, nil
	default:
		return "", paramErrorf("Invalid controller identifier")
	}
}

// SanitizeShowArgs validates a read-only argument list. Blank entries are
// dropped and the first remaining argument must be "show".
func SanitizeShowArgs(arguments any) ([]string, error) {
	var values []any
	switch t := arguments.(type) {
	case []any:
		values = t
	case []string:
		for _, v := range t {
			values = append(values, v)
		}
	default:
		return nil, paramErrorf("Arguments must be a non-empty list")
	}
	if len(values) == 0 {
		return nil, paramErrorf("Arguments must be a non-empty list")
	}

	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, paramErrorf("Command arguments must be strings")
		}
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}
		if !showArgPattern.MatchString(str) {
			return nil, paramErrorf("Invalid characters in argument: %s", str)
		}
		cleaned = append(cleaned, str)
	}

	if len(cleaned) == 0 {
		return nil, paramErrorf("No valid arguments supplied")
	}
	if strings.ToLower(cleaned[0]) != "show" {
		return nil, paramErrorf("Only read-only 'show' commands are permitted")
	}
	return cleaned, nil
}

func controllerHints(summary string) string {
	var hints []string
	for _, line := range strings.Split(summary, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "controller") || strings.HasPrefix(lower, "ctl") {
			hints = append(hints, trimmed)
		}
	}
	return strings.Join(hints, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, "\n")
}
