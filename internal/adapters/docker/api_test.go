package docker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"

	"omvstack.control/internal/core/circuitbreaker"
	"omvstack.control/internal/core/domain"
)

type fakeContainers struct {
	list    []container.Summary
	listErr error
	logs    map[string][]byte
	opts    container.ListOptions
}

func (f *fakeContainers) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.opts = options
	return f.list, f.listErr
}

func (f *fakeContainers) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	data, ok := f.logs[id]
	if !ok {
		return nil, errors.New("no such container")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestAPI(f *fakeContainers) *API {
	return &API{containers: f, breaker: circuitbreaker.New("docker-test")}
}

func frame(stream byte, payload string) []byte {
	hdr := make([]byte, 8)
	hdr[0] = stream
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(payload)))
	return append(hdr, payload...)
}

func TestAPI_Status(t *testing.T) {
	tests := []struct {
		name       string
		containers []container.Summary
		want       string
		running    bool
	}{
		{"none", nil, domain.StatusNotInstalled, false},
		{"running", []container.Summary{{ID: "a", State: "running"}, {ID: "b", State: "running"}}, "running(2)", true},
		{"mixed", []container.Summary{{ID: "a", State: "running"}, {ID: "b", State: "exited"}, {ID: "c", State: "running"}}, "exited(1), running(2)", true},
		{"stopped", []container.Summary{{ID: "a", State: "exited"}}, "exited(1)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeContainers{list: tt.containers}
			status, err := newTestAPI(f).Status(context.Background(), "gitea")
			if err != nil {
				t.Fatal(err)
			}
			if status.Status != tt.want || status.Running != tt.running {
				t.Errorf("Status() = %+v", status)
			}
			if got := f.opts.Filters.Get("label"); len(got) != 1 || got[0] != "com.docker.compose.project=gitea" {
				t.Errorf("label filter = %v", got)
			}
			if !f.opts.All {
				t.Error("stopped containers must be listed")
			}
		})
	}
}

func TestAPI_StatusListError(t *testing.T) {
	f := &fakeContainers{listErr: errors.New("permission denied")}
	if _, err := newTestAPI(f).Status(context.Background(), "gitea"); err == nil {
		t.Error("expected error")
	}
}

func TestAPI_StatusBreakerOpen(t *testing.T) {
	f := &fakeContainers{listErr: errors.New("daemon hung up")}
	api := newTestAPI(f)

	for i := 0; i < 3; i++ {
		if _, err := api.Status(context.Background(), "gitea"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	status, err := api.Status(context.Background(), "gitea")
	if err != nil {
		t.Fatalf("open breaker error = %v", err)
	}
	if status.Status != domain.StatusError || status.Running {
		t.Errorf("open breaker status = %+v", status)
	}
}

func TestAPI_Logs(t *testing.T) {
	server := append(frame(1, "listening on :3000\nready"), frame(1, "\n")...)
	server = append(server, frame(2, "warn: slow query\n")...)
	f := &fakeContainers{
		list: []container.Summary{
			{ID: "db1", Names: []string{"/gitea-db"}},
			{ID: "srv1", Names: []string{"/gitea"}},
			{ID: "gone", Names: []string{"/gitea-old"}},
		},
		logs: map[string][]byte{
			"srv1": server,
			"db1":  []byte("database system is ready\n"),
		},
	}

	out, err := newTestAPI(f).Logs(context.Background(), domain.Stack{Project: "gitea"}, "server")
	if err != nil {
		t.Fatal(err)
	}
	want := "gitea      | listening on :3000\n" +
		"gitea      | ready\n" +
		"gitea      | warn: slow query\n" +
		"gitea-db   | database system is ready\n"
	if out.Logs != want {
		t.Errorf("Logs =\n%q\nwant\n%q", out.Logs, want)
	}
	if !strings.Contains(out.Error, "gitea-old: no such container") {
		t.Errorf("Error = %q", out.Error)
	}
	if got := f.opts.Filters.Get("label"); len(got) != 2 {
		t.Errorf("label filters = %v", got)
	}
}

func TestDemultiplexStream(t *testing.T) {
	var lines []string
	collect := func(stream byte, line string) { lines = append(lines, strconv.Itoa(int(stream))+":"+line) }

	data := append(frame(1, "a\nb"), frame(2, "err\n")...)
	data = append(data, frame(1, "c\n")...)
	if err := demultiplexStream(bytes.NewReader(data), collect); err != nil {
		t.Fatal(err)
	}
	want := []string{"1:a", "2:err", "1:bc"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}

	lines = nil
	if err := demultiplexStream(strings.NewReader("tty line one\ntty line two\n"), collect); err != nil {
		t.Fatal(err)
	}
	if strings.Join(lines, "|") != "1:tty line one|1:tty line two" {
		t.Errorf("raw lines = %q", lines)
	}

	lines = nil
	if err := demultiplexStream(strings.NewReader(""), collect); err != nil || len(lines) != 0 {
		t.Errorf("empty stream = %q, %v", lines, err)
	}
}
