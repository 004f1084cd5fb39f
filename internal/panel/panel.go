// Package panel implements the service control panels as headless
// controllers. A front end supplies a UI and a Caller; the panel decides which
// remote call to issue and what to show.
package panel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"strconv"
	"sync"
)

var (
	// ErrBusy is returned when the same action is still outstanding.
	ErrBusy = errors.New("action already in progress")
	// ErrNoWebInterface is returned by OpenWebInterface for panels without a
	// web port.
	ErrNoWebInterface = errors.New("panel has no web interface")
	// ErrUnknownAction is returned by Press for actions not on the bar.
	ErrUnknownAction = errors.New("unknown action")
)

const (
	NoLogsPlaceholder   = "No logs available"
	NoOutputPlaceholder = "No output"
)

// Caller issues one remote call.
type Caller interface {
	Call(ctx context.Context, service, method string, params map[string]any) (map[string]any, error)
}

// UI is what a front end renders. Confirm and Prompt block until the user
// answers. ShowText returns true when the user asked to refresh the content.
type UI interface {
	SetBusy(busy bool, msg string)
	SetFields(fields map[string]string)
	Info(title, msg string)
	Error(msg string)
	Confirm(title, msg string) bool
	Prompt(title, msg string) (string, bool)
	ShowText(title, body string) bool
	OpenURL(url string)
}

// Guard tracks outstanding actions. Front ends that build a Panel per request
// share one Guard so a second press is rejected across requests.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]bool
}

func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]bool)}
}

func (g *Guard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[key] {
		return false
	}
	g.inflight[key] = true
	return true
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// Busy reports whether action is outstanding on panel id.
func (g *Guard) Busy(id string, action Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[id+"/"+string(action)]
}

type Option func(*Panel)

// WithGuard shares the in-flight tracking with other panels.
func WithGuard(g *Guard) Option {
	return func(p *Panel) { p.guard = g }
}

// WithHost sets the host the web interface URL is built on.
func WithHost(host string) Option {
	return func(p *Panel) { p.host = host }
}

type Panel struct {
	desc   Descriptor
	caller Caller
	ui     UI
	guard  *Guard
	host   string

	mu       sync.RWMutex
	snapshot map[string]any
	fields   map[string]string
}

func New(desc Descriptor, caller Caller, ui UI, opts ...Option) (*Panel, error) {
	desc = desc.WithDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if caller == nil || ui == nil {
		return nil, errors.New("panel needs a caller and a ui")
	}

	p := &Panel{
		desc:   desc,
		caller: caller,
		ui:     ui,
		host:   "localhost",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.guard == nil {
		p.guard = NewGuard()
	}
	p.fields = formatFields(desc.StatusFields, nil)
	return p, nil
}

func (p *Panel) Descriptor() Descriptor {
	return p.desc
}

// Fields returns the rendered status fields.
func (p *Panel) Fields() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.fields)
}

// Snapshot returns the payload of the last successful status call.
func (p *Panel) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.snapshot)
}

// Press runs the action bound to a button.
func (p *Panel) Press(ctx context.Context, action Action) error {
	if !p.desc.Has(action) {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	switch action {
	case ActionInstall:
		return p.Install(ctx)
	case ActionRestart:
		return p.Restart(ctx)
	case ActionRemove:
		return p.Remove(ctx)
	case ActionLogs:
		return p.ViewLogs(ctx)
	case ActionOpen:
		_, err := p.OpenWebInterface(p.host)
		return err
	case ActionRefresh:
		return p.guarded(ActionRefresh, func() error { return p.Refresh(ctx) })
	case ActionController:
		return p.ShowController(ctx)
	case ActionEventLog:
		return p.ViewEventLog(ctx)
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

// Mount loads the status fields for the first time.
func (p *Panel) Mount(ctx context.Context) error {
	return p.Refresh(ctx)
}

// Refresh issues the status call. A failed call leaves the fields untouched.
func (p *Panel) Refresh(ctx context.Context) error {
	res, err := p.caller.Call(ctx, p.desc.Service, p.desc.StatusMethod, nil)
	if err != nil {
		p.ui.Error(err.Error())
		return err
	}

	fields := formatFields(p.desc.StatusFields, res)
	p.mu.Lock()
	p.snapshot = res
	p.fields = fields
	p.mu.Unlock()

	p.ui.SetFields(maps.Clone(fields))
	return nil
}

func (p *Panel) Install(ctx context.Context) error {
	return p.guarded(ActionInstall, func() error { return p.run(ctx, ActionInstall, "install") })
}

func (p *Panel) Restart(ctx context.Context) error {
	return p.guarded(ActionRestart, func() error { return p.run(ctx, ActionRestart, "restart") })
}

// Remove asks for confirmation and issues the remove call only on yes.
func (p *Panel) Remove(ctx context.Context) error {
	return p.guarded(ActionRemove, func() error {
		if !p.ui.Confirm("Confirmation", p.desc.RemoveConfirm) {
			return nil
		}
		return p.run(ctx, ActionRemove, "remove")
	})
}

// run issues a state changing call and refreshes the fields on success.
func (p *Panel) run(ctx context.Context, action Action, method string) error {
	msg := p.desc.message(action)

	p.ui.SetBusy(true, msg.Wait)
	_, err := p.caller.Call(ctx, p.desc.Service, method, nil)
	p.ui.SetBusy(false, "")
	if err != nil {
		p.ui.Error(err.Error())
		return err
	}

	p.ui.Info(p.desc.Title, msg.Success)
	return p.Refresh(ctx)
}

// ViewLogs shows the stack logs until the viewer is closed.
func (p *Panel) ViewLogs(ctx context.Context) error {
	return p.guarded(ActionLogs, func() error {
		for {
			res, err := p.busyCall(ctx, "getLogs", nil)
			if err != nil {
				return err
			}
			if !p.ui.ShowText(p.desc.Title+" Logs", LogText(res)) {
				return nil
			}
		}
	})
}

// OpenWebInterface opens the web interface on host and returns its URL.
func (p *Panel) OpenWebInterface(host string) (string, error) {
	url, err := p.WebURL(host)
	if err != nil {
		return "", err
	}
	p.ui.OpenURL(url)
	return url, nil
}

func (p *Panel) WebURL(host string) (string, error) {
	if p.desc.WebPort == 0 {
		return "", ErrNoWebInterface
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(p.desc.WebPort)) + p.desc.WebPath, nil
}

// ShowController prompts for a controller and shows its details. An empty
// answer issues no call.
func (p *Panel) ShowController(ctx context.Context) error {
	return p.guarded(ActionController, func() error {
		answer, ok := p.ui.Prompt("Controller ID", `Enter controller number or "all"`)
		if !ok || answer == "" {
			return nil
		}
		return p.controllerDetails(ctx, answer)
	})
}

// ControllerDetails shows the details of one controller without prompting.
func (p *Panel) ControllerDetails(ctx context.Context, controller string) error {
	return p.guarded(ActionController, func() error { return p.controllerDetails(ctx, controller) })
}

func (p *Panel) controllerDetails(ctx context.Context, controller string) error {
	res, err := p.busyCall(ctx, "getControllerDetails", map[string]any{
		"controller": controller,
		"arguments":  []any{"show", "all"},
	})
	if err != nil {
		return err
	}
	p.ui.ShowText("Controller Details", OutputText(stringField(res, "stdout"), stringField(res, "stderr")))
	return nil
}

func (p *Panel) ViewEventLog(ctx context.Context) error {
	return p.guarded(ActionEventLog, func() error {
		res, err := p.busyCall(ctx, "getLogs", nil)
		if err != nil {
			return err
		}
		p.ui.ShowText("Event Log", OutputText(stringField(res, "logs"), stringField(res, "error")))
		return nil
	})
}

func (p *Panel) busyCall(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	p.ui.SetBusy(true, "")
	res, err := p.caller.Call(ctx, p.desc.Service, method, params)
	p.ui.SetBusy(false, "")
	if err != nil {
		p.ui.Error(err.Error())
		return nil, err
	}
	return res, nil
}

func (p *Panel) guarded(action Action, fn func() error) error {
	key := p.desc.ID + "/" + string(action)
	if !p.guard.acquire(key) {
		return ErrBusy
	}
	defer p.guard.release(key)
	return fn()
}

// LogText is the log viewer body for a getLogs payload.
func LogText(res map[string]any) string {
	if errText := stringField(res, "error"); errText != "" {
		return "Error retrieving logs: " + errText
	}
	if logs := stringField(res, "logs"); logs != "" {
		return logs
	}
	return NoLogsPlaceholder
}

// OutputText is the output window body for a command result.
func OutputText(stdout, stderr string) string {
	content := stdout
	if content == "" {
		content = NoOutputPlaceholder
	}
	if stderr != "" {
		content += "\n\nErrors:\n" + stderr
	}
	return content
}
