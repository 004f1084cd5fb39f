package http

import "strings"

type dialog struct {
	Title   string
	Message string
}

type textView struct {
	Title string
	Body  string
}

// webUI records what a panel asked to show during one request so the handler
// can render it afterwards. Answers to Confirm and Prompt come from the
// submitted form.
type webUI struct {
	confirmed bool
	answer    string

	fields  map[string]string
	infos   []string
	errors  []string
	confirm *dialog
	prompt  *dialog
	text    *textView
	url     string
}

// SetBusy is a no-op: the call completes within the request, and the action
// bar reads in-flight state from the shared guard.
func (u *webUI) SetBusy(busy bool, msg string) {}

func (u *webUI) SetFields(fields map[string]string) {
	u.fields = fields
}

func (u *webUI) Info(title, msg string) {
	u.infos = append(u.infos, msg)
}

func (u *webUI) Error(msg string) {
	u.errors = append(u.errors, msg)
}

func (u *webUI) Confirm(title, msg string) bool {
	u.confirm = &dialog{Title: title, Message: msg}
	return u.confirmed
}

func (u *webUI) Prompt(title, msg string) (string, bool) {
	if u.answer != "" {
		return u.answer, true
	}
	u.prompt = &dialog{Title: title, Message: msg}
	return "", false
}

// ShowText never asks for a refresh; the log page reloads itself instead.
func (u *webUI) ShowText(title, body string) bool {
	u.text = &textView{Title: title, Body: body}
	return false
}

func (u *webUI) OpenURL(url string) {
	u.url = url
}

func (u *webUI) flash() string {
	return strings.Join(u.infos, "\n")
}

func (u *webUI) flashError() string {
	return strings.Join(u.errors, "\n")
}
