package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"omvstack.control/internal/panel"
)

type fakeCaller struct {
	calls []string
}

func (f *fakeCaller) Call(ctx context.Context, service, method string, params map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, method)
	switch method {
	case "getStatus":
		return map[string]any{"running": false, "status": "not-installed"}, nil
	case "getLogs":
		return map[string]any{"logs": "", "error": ""}, nil
	}
	return map[string]any{}, nil
}

func newPanel(t *testing.T, caller panel.Caller, ui *UI) *panel.Panel {
	t.Helper()
	p, err := panel.New(panel.Descriptor{ID: "gitea", Title: "Gitea", Service: "Gitea", WebPort: 3080}, caller, ui)
	if err != nil {
		t.Fatal(err)
	}
	ui.Layout(p.Descriptor().StatusFields)
	return p
}

func TestUI_Status(t *testing.T) {
	var out bytes.Buffer
	ui := New(strings.NewReader(""), &out, &out, false)
	p := newPanel(t, &fakeCaller{}, ui)

	if err := p.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "Status:   not-installed\nRunning:  No\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestUI_RemoveConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		assumeYes bool
		removed   bool
	}{
		{"declined", "n\n", false, false},
		{"eof", "", false, false},
		{"accepted", "yes\n", false, true},
		{"assume yes", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			caller := &fakeCaller{}
			ui := New(strings.NewReader(tt.input), &out, &out, tt.assumeYes)
			p := newPanel(t, caller, ui)

			if err := p.Remove(context.Background()); err != nil {
				t.Fatal(err)
			}
			removed := len(caller.calls) > 0 && caller.calls[0] == "remove"
			if removed != tt.removed {
				t.Errorf("calls = %v, output = %q", caller.calls, out.String())
			}
		})
	}
}

func TestUI_LogsRefresh(t *testing.T) {
	var out bytes.Buffer
	caller := &fakeCaller{}
	ui := New(strings.NewReader("r\n\n"), &out, &out, false)
	p := newPanel(t, caller, ui)

	if err := p.ViewLogs(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(caller.calls) != 2 {
		t.Errorf("calls = %v", caller.calls)
	}
	if strings.Count(out.String(), "== Gitea Logs ==\nNo logs available") != 2 {
		t.Errorf("output = %q", out.String())
	}
}

func TestUI_Open(t *testing.T) {
	var out bytes.Buffer
	ui := New(strings.NewReader(""), &out, &out, true)
	p := newPanel(t, &fakeCaller{}, ui)

	if _, err := p.OpenWebInterface("nas.local"); err != nil {
		t.Fatal(err)
	}
	if ui.URL() != "http://nas.local:3080" || out.String() != "http://nas.local:3080\n" {
		t.Errorf("url = %q, output = %q", ui.URL(), out.String())
	}
}
