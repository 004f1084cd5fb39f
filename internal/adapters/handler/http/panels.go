package http

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/panel"
)

const (
	flashKey      = "flash"
	flashErrorKey = "flash_error"
)

type fieldView struct {
	Label     string
	Value     string
	Multiline bool
}

type actionView struct {
	Label    string
	URL      string
	Busy     bool
	Link     bool
	External bool
	Input    bool
}

type panelPage struct {
	Desc       panel.Descriptor
	Fields     []fieldView
	Actions    []actionView
	Flash      string
	FlashError string
}

type dialogPage struct {
	Title   string
	Message string
	URL     string
	PanelID string
}

type textPage struct {
	Title      string
	Body       string
	RefreshURL string
	PanelID    string
}

// newPanel builds a per-request panel sharing the server's in-flight guard.
func (s *Server) newPanel(w http.ResponseWriter, r *http.Request, ui *webUI) (*panel.Panel, bool) {
	id := chi.URLParam(r, "id")
	desc, ok := s.workspace.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	p, err := panel.New(desc, s.engine, ui, panel.WithGuard(s.guard), panel.WithHost(requestHost(r)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return p, true
}

func (s *Server) handlePanelList(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string)
	if s.poller != nil {
		for _, snap := range s.poller.Snapshots() {
			status[snap.Service] = snap.Status.Status
		}
	}
	s.render(w, "list", struct {
		Panels   []panel.Descriptor
		Status   map[string]string
		SignedIn bool
	}{s.workspace.Panels(), status, s.sessions.GetBool(r.Context(), authenticatedKey)})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	ui := &webUI{}
	p, ok := s.newPanel(w, r, ui)
	if !ok {
		return
	}
	// A failed status call is reported on the page; the defaults stay.
	_ = p.Mount(r.Context())

	desc := p.Descriptor()
	fields := p.Fields()
	page := panelPage{
		Desc:       desc,
		Flash:      s.sessions.PopString(r.Context(), flashKey),
		FlashError: joinLines(s.sessions.PopString(r.Context(), flashErrorKey), ui.flashError()),
	}
	for _, f := range desc.StatusFields {
		page.Fields = append(page.Fields, fieldView{Label: f.Label, Value: fields[f.Name], Multiline: f.Multiline})
	}
	for _, action := range desc.Actions {
		page.Actions = append(page.Actions, s.actionView(desc, action))
	}
	s.render(w, "panel", page)
}

func (s *Server) actionView(desc panel.Descriptor, action panel.Action) actionView {
	base := "/panels/" + desc.ID + "/"
	v := actionView{
		Label: action.Label(),
		URL:   base + string(action),
		Busy:  s.guard.Busy(desc.ID, action),
	}
	switch action {
	case panel.ActionLogs:
		v.Link = true
		v.URL = base + "logs"
	case panel.ActionOpen:
		v.Link = true
		v.External = true
	case panel.ActionController:
		v.Input = true
	}
	return v
}

func (s *Server) handlePanelAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, ok := panel.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch action {
	case panel.ActionLogs:
		http.Redirect(w, r, "/panels/"+id+"/logs", http.StatusSeeOther)
		return
	case panel.ActionOpen:
		http.Redirect(w, r, "/panels/"+id+"/open", http.StatusSeeOther)
		return
	case panel.ActionController:
		s.handlePanelController(w, r)
		return
	}

	ui := &webUI{confirmed: r.PostFormValue("confirm") == "yes"}
	p, ok := s.newPanel(w, r, ui)
	if !ok {
		return
	}

	err := p.Press(r.Context(), action)
	if errors.Is(err, panel.ErrUnknownAction) {
		http.NotFound(w, r)
		return
	}
	recordPress(id, action, err, ui)

	switch {
	case errors.Is(err, panel.ErrBusy):
		s.flashBusy(r, action)
	case ui.confirm != nil && !ui.confirmed:
		s.render(w, "confirm", dialogPage{
			Title:   ui.confirm.Title,
			Message: ui.confirm.Message,
			URL:     r.URL.Path,
			PanelID: id,
		})
		return
	case ui.text != nil:
		s.render(w, "text", textPage{Title: ui.text.Title, Body: ui.text.Body, PanelID: id})
		return
	}

	if err != nil && !errors.Is(err, panel.ErrBusy) {
		logger.WarnContext(r.Context(), "Panel action failed", "panel", id, "action", action, "error", err)
	}
	s.flash(r, ui)
	http.Redirect(w, r, "/panels/"+id, http.StatusSeeOther)
}

// handlePanelController shows controller details for the submitted
// controller, or asks for one when the form is empty.
func (s *Server) handlePanelController(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ui := &webUI{answer: strings.TrimSpace(r.PostFormValue("controller"))}
	p, ok := s.newPanel(w, r, ui)
	if !ok {
		return
	}
	if !p.Descriptor().Has(panel.ActionController) {
		http.NotFound(w, r)
		return
	}

	err := p.ShowController(r.Context())
	switch {
	case errors.Is(err, panel.ErrBusy):
		s.flashBusy(r, panel.ActionController)
	case ui.prompt != nil:
		s.render(w, "prompt", dialogPage{
			Title:   ui.prompt.Title,
			Message: ui.prompt.Message,
			URL:     "/panels/" + id + "/controller",
			PanelID: id,
		})
		return
	case ui.text != nil:
		s.render(w, "text", textPage{Title: ui.text.Title, Body: ui.text.Body, PanelID: id})
		return
	}

	s.flash(r, ui)
	http.Redirect(w, r, "/panels/"+id, http.StatusSeeOther)
}

func (s *Server) handlePanelLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ui := &webUI{}
	p, ok := s.newPanel(w, r, ui)
	if !ok {
		return
	}
	if !p.Descriptor().Has(panel.ActionLogs) {
		http.NotFound(w, r)
		return
	}

	err := p.ViewLogs(r.Context())
	if errors.Is(err, panel.ErrBusy) {
		s.flashBusy(r, panel.ActionLogs)
	}
	if ui.text == nil {
		s.flash(r, ui)
		http.Redirect(w, r, "/panels/"+id, http.StatusSeeOther)
		return
	}
	s.render(w, "text", textPage{
		Title:      ui.text.Title,
		Body:       ui.text.Body,
		RefreshURL: r.URL.Path,
		PanelID:    id,
	})
}

func (s *Server) handlePanelOpen(w http.ResponseWriter, r *http.Request) {
	ui := &webUI{}
	p, ok := s.newPanel(w, r, ui)
	if !ok {
		return
	}
	url, err := p.OpenWebInterface(requestHost(r))
	if errors.Is(err, panel.ErrNoWebInterface) {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) flash(r *http.Request, ui *webUI) {
	if msg := ui.flash(); msg != "" {
		s.sessions.Put(r.Context(), flashKey, msg)
	}
	if msg := ui.flashError(); msg != "" {
		s.sessions.Put(r.Context(), flashErrorKey, msg)
	}
}

func (s *Server) flashBusy(r *http.Request, action panel.Action) {
	s.sessions.Put(r.Context(), flashErrorKey, action.Label()+" is already in progress")
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logger.Error("Failed to render page", "page", name, "error", err)
	}
}

// requestHost is the host part of the request, without the port.
func requestHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	return strings.Trim(host, "[]")
}

func joinLines(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
