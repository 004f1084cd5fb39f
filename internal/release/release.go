// Package release reads plugin versions and finds the plugins touched since
// the last release.
package release

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

// PluginPrefix marks a top-level plugin directory.
const PluginPrefix = "openmediavault-"

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

// ReadVersion returns the version of the newest entry in
// <root>/<plugin>/debian/changelog.
func ReadVersion(root, plugin string) (string, error) {
	changelog := filepath.Join(root, plugin, "debian", "changelog")
	f, err := os.Open(changelog)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("Missing changelog for %s", plugin)
		}
		return "", err
	}
	defer f.Close()

	var first string
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		first = sc.Text()
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", changelog, err)
	}

	open := strings.Index(first, "(")
	if open < 0 || !strings.Contains(first, ")") {
		return "", fmt.Errorf("Malformed changelog header in %s", changelog)
	}
	version, _, _ := strings.Cut(first[open+1:], ")")
	version = strings.TrimSpace(version)
	if !semverRe.MatchString(version) {
		return "", fmt.Errorf("Version '%s' in %s is not valid SemVer", version, changelog)
	}
	return version, nil
}

// ReadVersions maps every plugin to its version.
func ReadVersions(root string, plugins []string) (map[string]string, error) {
	versions := make(map[string]string, len(plugins))
	for _, plugin := range plugins {
		v, err := ReadVersion(root, plugin)
		if err != nil {
			return nil, err
		}
		versions[plugin] = v
	}
	return versions, nil
}

// Changes is the payload consumed by the release workflow.
type Changes struct {
	Plugins    []string `json:"plugins"`
	HasChanges bool     `json:"has_changes"`
}

// Repo inspects a plugin checkout through git.
type Repo struct {
	root   string
	runner ports.CommandRunner
}

func NewRepo(root string, runner ports.CommandRunner) *Repo {
	return &Repo{root: root, runner: runner}
}

// ChangedPlugins lists plugins touched between base and head. Without a base
// the latest v* tag is used; without tags every plugin counts as changed. A
// failing diff yields no plugins.
func (r *Repo) ChangedPlugins(ctx context.Context, base, head string) (Changes, error) {
	if head == "" {
		head = "HEAD"
	}

	var plugins map[string]bool
	if base == "" {
		base = r.latestTag(ctx)
	}
	if base == "" {
		all, err := r.allPlugins()
		if err != nil {
			return Changes{}, err
		}
		plugins = all
	} else {
		plugins = r.diffPlugins(ctx, base, head)
	}

	list := make([]string, 0, len(plugins))
	for p := range plugins {
		list = append(list, p)
	}
	sort.Strings(list)
	return Changes{Plugins: list, HasChanges: len(list) > 0}, nil
}

func (r *Repo) git(ctx context.Context, args ...string) (string, bool) {
	res, err := r.runner.Run(ctx, domain.Command{Name: "git", Args: args, Dir: r.root})
	if err != nil {
		logger.WarnContext(ctx, "Unable to run git", "args", args, "error", err)
		return "", false
	}
	if res.ExitCode != 0 {
		logger.DebugContext(ctx, "git exited non-zero", "args", args, "code", res.ExitCode, "stderr", res.Stderr)
		return res.Stdout, false
	}
	return res.Stdout, true
}

func (r *Repo) latestTag(ctx context.Context) string {
	out, ok := r.git(ctx, "describe", "--tags", "--abbrev=0", "--match", "v*")
	if !ok {
		return ""
	}
	return strings.TrimSpace(out)
}

func (r *Repo) diffPlugins(ctx context.Context, base, head string) map[string]bool {
	plugins := make(map[string]bool)
	out, ok := r.git(ctx, "diff", "--name-only", base+".."+head)
	if !ok {
		logger.WarnContext(ctx, "Unable to compute git diff", "base", base, "head", head)
		return plugins
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		top, _, _ := strings.Cut(filepath.ToSlash(line), "/")
		if r.isPlugin(top) {
			plugins[top] = true
		}
	}
	return plugins
}

func (r *Repo) isPlugin(name string) bool {
	if !strings.HasPrefix(name, PluginPrefix) {
		return false
	}
	info, err := os.Stat(filepath.Join(r.root, name))
	return err == nil && info.IsDir()
}

func (r *Repo) allPlugins() (map[string]bool, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	plugins := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), PluginPrefix) {
			plugins[e.Name()] = true
		}
	}
	return plugins, nil
}
