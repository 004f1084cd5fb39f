package domain

import (
	"errors"
	"strings"
)

// Command is one process invocation. Dir is the working directory, empty
// meaning the caller's.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Argv returns the full argument vector.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ErrCommandNotFound is wrapped by runners when the executable is missing.
var ErrCommandNotFound = errors.New("executable file not found")
