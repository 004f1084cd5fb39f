package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"omvstack.control/internal/core/domain"
)

func TestExec_Run(t *testing.T) {
	r := NewExec("OMVSTACK_TEST=1")

	res, err := r.Run(context.Background(), domain.Command{
		Name: "/bin/sh",
		Args: []string{"-c", "echo out; echo err >&2; echo $OMVSTACK_TEST; pwd; exit 3"},
		Dir:  "/",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if res.Stdout != "out\n1\n/\n" || res.Stderr != "err\n" {
		t.Errorf("unexpected output: %+v", res)
	}
}

func TestExec_MissingBinary(t *testing.T) {
	r := NewExec()

	_, err := r.Run(context.Background(), domain.Command{Name: "omvstack-definitely-missing"})
	if !errors.Is(err, domain.ErrCommandNotFound) {
		t.Errorf("Run() error = %v", err)
	}
	if _, err := r.LookPath("omvstack-definitely-missing"); !errors.Is(err, domain.ErrCommandNotFound) {
		t.Errorf("LookPath() error = %v", err)
	}
	if path, err := r.LookPath("sh"); err != nil || !strings.HasSuffix(path, "/sh") {
		t.Errorf("LookPath(sh) = %q, %v", path, err)
	}
}

func TestExec_MissingDir(t *testing.T) {
	_, err := NewExec().Run(context.Background(), domain.Command{Name: "true", Dir: "/nonexistent/stack/gitea"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrCommandNotFound) {
		t.Errorf("missing dir reported as missing binary: %v", err)
	}
	if !strings.Contains(err.Error(), "/nonexistent/stack/gitea") {
		t.Errorf("error = %q, want the directory", err)
	}

	_, err = NewExec().Run(context.Background(), domain.Command{Name: "/nonexistent/bin/storcli64", Dir: "/"})
	if !errors.Is(err, domain.ErrCommandNotFound) {
		t.Errorf("absolute missing binary = %v", err)
	}
}
