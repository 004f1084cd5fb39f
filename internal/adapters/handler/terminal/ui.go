// Package terminal renders panels on a terminal.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"omvstack.control/internal/panel"
)

// UI implements panel.UI on line-oriented streams. Questions are read from in
// one line at a time; end of input answers no.
type UI struct {
	in        *bufio.Reader
	out       io.Writer
	errOut    io.Writer
	assumeYes bool

	layout   []panel.Field
	reported bool
	url      string
}

func New(in io.Reader, out, errOut io.Writer, assumeYes bool) *UI {
	return &UI{
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		assumeYes: assumeYes,
	}
}

// Layout sets the order and labels SetFields prints with.
func (u *UI) Layout(fields []panel.Field) {
	u.layout = fields
}

// Reported tells whether an error was already shown to the user.
func (u *UI) Reported() bool {
	return u.reported
}

// URL is the last URL passed to OpenURL.
func (u *UI) URL() string {
	return u.url
}

func (u *UI) SetBusy(busy bool, msg string) {
	if busy && msg != "" {
		fmt.Fprintln(u.errOut, msg)
	}
}

func (u *UI) SetFields(fields map[string]string) {
	width := 0
	for _, f := range u.layout {
		width = max(width, len(f.Label))
	}
	for _, f := range u.layout {
		value := fields[f.Name]
		if f.Multiline && strings.Contains(value, "\n") {
			fmt.Fprintf(u.out, "%s:\n%s\n", f.Label, indent(value))
			continue
		}
		fmt.Fprintf(u.out, "%-*s  %s\n", width+1, f.Label+":", value)
	}
}

func (u *UI) Info(title, msg string) {
	fmt.Fprintln(u.out, msg)
}

func (u *UI) Error(msg string) {
	u.reported = true
	fmt.Fprintln(u.errOut, "Error: "+msg)
}

func (u *UI) Confirm(title, msg string) bool {
	if u.assumeYes {
		return true
	}
	fmt.Fprintf(u.out, "%s [y/N]: ", msg)
	answer, _ := u.readLine()
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

func (u *UI) Prompt(title, msg string) (string, bool) {
	fmt.Fprintf(u.out, "%s: ", msg)
	return u.readLine()
}

// ShowText prints the body. In interactive mode the user may answer "r" to
// have it fetched again.
func (u *UI) ShowText(title, body string) bool {
	fmt.Fprintf(u.out, "== %s ==\n%s\n", title, strings.TrimRight(body, "\n"))
	if u.assumeYes {
		return false
	}
	fmt.Fprint(u.out, "[r] refresh, Enter to close: ")
	answer, _ := u.readLine()
	return strings.EqualFold(answer, "r")
}

func (u *UI) OpenURL(url string) {
	u.url = url
	fmt.Fprintln(u.out, url)
}

func (u *UI) readLine() (string, bool) {
	line, err := u.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(u.out)
		return "", false
	}
	return strings.TrimSpace(line), true
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
