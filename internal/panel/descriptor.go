package panel

import (
	"errors"
	"fmt"
)

// Action names one button of a panel's action bar.
type Action string

const (
	ActionInstall    Action = "install"
	ActionRestart    Action = "restart"
	ActionRemove     Action = "remove"
	ActionLogs       Action = "logs"
	ActionOpen       Action = "open"
	ActionRefresh    Action = "refresh"
	ActionController Action = "controller"
	ActionEventLog   Action = "eventlog"
)

var actionLabels = map[Action]string{
	ActionInstall:    "Install",
	ActionRestart:    "Restart",
	ActionRemove:     "Remove",
	ActionLogs:       "View Logs",
	ActionOpen:       "Open Web Interface",
	ActionRefresh:    "Refresh Summary",
	ActionController: "Controller Details",
	ActionEventLog:   "View Event Log",
}

// Label is the button text.
func (a Action) Label() string {
	if label, ok := actionLabels[a]; ok {
		return label
	}
	return string(a)
}

// ParseAction maps a button name to an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := actionLabels[a]
	return a, ok
}

// Field is one read-only status field filled from the status payload.
type Field struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Default   string `json:"default"`
	Multiline bool   `json:"multiline,omitempty"`
}

// Message holds the busy text shown while an action runs and the text shown
// once it succeeded.
type Message struct {
	Wait    string `json:"wait"`
	Success string `json:"success"`
}

// InfoItem is a static label/value pair rendered next to the status fields.
type InfoItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Descriptor is the static configuration of one panel.
type Descriptor struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Service       string             `json:"service"`
	StatusMethod  string             `json:"status_method"`
	WebPort       int                `json:"web_port,omitempty"`
	WebPath       string             `json:"web_path,omitempty"`
	Path          string             `json:"path"`
	Position      int                `json:"position"`
	Actions       []Action           `json:"actions"`
	StatusFields  []Field            `json:"status_fields"`
	RemoveConfirm string             `json:"remove_confirm,omitempty"`
	Messages      map[Action]Message `json:"messages,omitempty"`
	Info          []InfoItem         `json:"info,omitempty"`
}

// DefaultStatusFields are the fields of a docker stack panel.
func DefaultStatusFields() []Field {
	return []Field{
		{Name: "status", Label: "Status", Default: "Unknown"},
		{Name: "running", Label: "Running", Default: "Unknown"},
	}
}

// DefaultActions is the action bar of a docker stack panel. Open Web
// Interface is inserted second when the panel has a web port.
func DefaultActions(webPort int) []Action {
	actions := []Action{ActionInstall, ActionRestart, ActionRemove, ActionLogs}
	if webPort > 0 {
		actions = append([]Action{ActionInstall, ActionOpen}, actions[1:]...)
	}
	return actions
}

// WithDefaults fills every unset optional field.
func (d Descriptor) WithDefaults() Descriptor {
	if d.StatusMethod == "" {
		d.StatusMethod = "getStatus"
	}
	if d.Path == "" {
		d.Path = "/service"
	}
	if d.Actions == nil {
		d.Actions = DefaultActions(d.WebPort)
	}
	if d.StatusFields == nil {
		d.StatusFields = DefaultStatusFields()
	}
	if d.RemoveConfirm == "" {
		d.RemoveConfirm = fmt.Sprintf("Are you sure you want to remove %s? This will delete all data.", d.Title)
	}

	messages := map[Action]Message{
		ActionInstall: {fmt.Sprintf("Installing %s...", d.Title), fmt.Sprintf("%s has been installed.", d.Title)},
		ActionRestart: {fmt.Sprintf("Restarting %s...", d.Title), fmt.Sprintf("%s restarted.", d.Title)},
		ActionRemove:  {fmt.Sprintf("Removing %s...", d.Title), fmt.Sprintf("%s stack removed.", d.Title)},
	}
	for action, msg := range d.Messages {
		messages[action] = msg
	}
	d.Messages = messages

	return d
}

func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return errors.New("panel id is required")
	case d.Title == "":
		return fmt.Errorf("panel %s: title is required", d.ID)
	case d.Service == "":
		return fmt.Errorf("panel %s: service is required", d.ID)
	case d.WebPort < 0 || d.WebPort > 65535:
		return fmt.Errorf("panel %s: invalid web port %d", d.ID, d.WebPort)
	}
	for _, a := range d.Actions {
		if _, ok := actionLabels[a]; !ok {
			return fmt.Errorf("panel %s: unknown action %q", d.ID, a)
		}
		if a == ActionOpen && d.WebPort == 0 {
			return fmt.Errorf("panel %s: %s needs a web port", d.ID, a.Label())
		}
	}
	return nil
}

// Has reports whether the action is on the panel's bar.
func (d Descriptor) Has(action Action) bool {
	for _, a := range d.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (d Descriptor) message(action Action) Message {
	if msg, ok := d.Messages[action]; ok {
		return msg
	}
	return Message{}
}
