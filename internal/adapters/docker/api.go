// Package docker reads compose stack state from the docker Engine API.
package docker

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"omvstack.control/internal/core/circuitbreaker"
	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
)

const (
	projectLabel = "com.docker.compose.project"
	serviceLabel = "com.docker.compose.service"
	logTail      = "100"
)

type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, container string, options container.LogsOptions) (io.ReadCloser, error)
}

// API implements the compose backend on top of the Engine API, so status
// polling does not fork a docker CLI per stack.
type API struct {
	cli        *client.Client
	containers containerAPI
	breaker    *circuitbreaker.CircuitBreaker
}

func NewAPI() (*API, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &API{
		cli:        cli,
		containers: cli,
		breaker:    circuitbreaker.New("docker-api"),
	}, nil
}

func (a *API) Close() error {
	if a.cli == nil {
		return nil
	}
	return a.cli.Close()
}

// Ping checks that the daemon answers.
func (a *API) Ping(ctx context.Context) error {
	if a.cli == nil {
		return errors.New("docker client not configured")
	}
	return a.breaker.Execute(ctx, func() error {
		_, err := a.cli.Ping(ctx)
		return err
	})
}

// Status summarises the project's containers the way `docker compose ls`
// does, e.g. "running(2), exited(1)".
func (a *API) Status(ctx context.Context, project string) (domain.StackStatus, error) {
	var (
		list        []container.Summary
		unavailable bool
	)
	err := a.breaker.ExecuteWithFallback(ctx, func() error {
		var err error
		list, err = a.containers.ContainerList(ctx, listOptions(project, ""))
		return err
	}, func() error {
		unavailable = true
		return nil
	})
	if err != nil && client.IsErrConnectionFailed(err) {
		unavailable, err = true, nil
	}
	if unavailable {
		logger.WarnContext(ctx, "Docker daemon unavailable", "project", project)
		return domain.StackStatus{Running: false, Status: domain.StatusError}, nil
	}
	if err != nil {
		return domain.StackStatus{}, err
	}
	if len(list) == 0 {
		return domain.StackStatus{Running: false, Status: domain.StatusNotInstalled}, nil
	}

	states := make([]string, 0, len(list))
	for _, c := range list {
		states = append(states, string(c.State))
	}
	status := SummariseStates(states)
	return domain.StackStatus{
		Running: strings.Contains(strings.ToLower(status), "running"),
		Status:  status,
	}, nil
}

// Logs returns the last lines of every container in the stack, prefixed with
// the container name. service narrows the output to one compose service.
func (a *API) Logs(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error) {
	list, err := a.list(ctx, stack.Project, service)
	if err != nil {
		return domain.LogOutput{}, err
	}

	type named struct{ id, name string }
	targets := make([]named, 0, len(list))
	for _, c := range list {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		targets = append(targets, named{c.ID, name})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })

	var (
		logs   strings.Builder
		errs   []string
		prefix int
	)
	for _, t := range targets {
		prefix = max(prefix, len(t.name))
	}
	for _, t := range targets {
		rc, err := a.containers.ContainerLogs(ctx, t.id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Tail:       logTail,
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", t.name, err))
			continue
		}
		err = demultiplexStream(rc, func(_ byte, line string) {
			fmt.Fprintf(&logs, "%-*s  | %s\n", prefix, t.name, line)
		})
		rc.Close()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", t.name, err))
		}
	}

	return domain.LogOutput{Logs: logs.String(), Error: strings.Join(errs, "\n")}, nil
}

func (a *API) list(ctx context.Context, project, service string) ([]container.Summary, error) {
	var list []container.Summary
	err := a.breaker.Execute(ctx, func() error {
		var err error
		list, err = a.containers.ContainerList(ctx, listOptions(project, service))
		return err
	})
	return list, err
}

func listOptions(project, service string) container.ListOptions {
	args := filters.NewArgs(filters.Arg("label", projectLabel+"="+project))
	if service != "" {
		args.Add("label", serviceLabel+"="+service)
	}
	return container.ListOptions{All: true, Filters: args}
}

// SummariseStates counts container states, e.g. ["running", "exited",
// "running"] becomes "exited(1), running(2)".
func SummariseStates(states []string) string {
	counts := make(map[string]int)
	for _, s := range states {
		if s == "" {
			s = domain.StatusUnknown
		}
		counts[s]++
	}

	names := make([]string, 0, len(counts))
	for s := range counts {
		names = append(names, s)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, s := range names {
		parts = append(parts, fmt.Sprintf("%s(%d)", s, counts[s]))
	}
	return strings.Join(parts, ", ")
}

// demultiplexStream reads Docker's multiplexed log format and calls fn for
// every line. Containers started with a TTY send a raw stream, which is read
// line by line with stream type 1.
// Header: [1 byte stream type][3 bytes padding][4 bytes size]
func demultiplexStream(r io.Reader, fn func(stream byte, line string)) error {
	br := bufio.NewReader(r)
	header, err := br.Peek(8)
	if err != nil && len(header) == 0 {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if !isFrameHeader(header) {
		scanner := bufio.NewScanner(br)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			fn(1, scanner.Text())
		}
		return scanner.Err()
	}

	var pending [3]strings.Builder
	flush := func(stream byte, final bool) {
		buf := &pending[stream]
		text := buf.String()
		buf.Reset()
		lines := strings.Split(text, "\n")
		last := lines[len(lines)-1]
		for _, line := range lines[:len(lines)-1] {
			fn(stream, strings.TrimSuffix(line, "\r"))
		}
		if final {
			if last != "" {
				fn(stream, last)
			}
			return
		}
		buf.WriteString(last)
	}

	hdr := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, hdr); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		stream := hdr[0]
		if stream > 2 {
			return fmt.Errorf("invalid stream type %d", stream)
		}
		size := binary.BigEndian.Uint32(hdr[4:8])
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}
		pending[stream].Write(payload)
		flush(stream, false)
	}

	for stream := range pending {
		flush(byte(stream), true)
	}
	return nil
}

func isFrameHeader(h []byte) bool {
	if len(h) < 8 {
		return false
	}
	return h[0] <= 2 && h[1] == 0 && h[2] == 0 && h[3] == 0
}
