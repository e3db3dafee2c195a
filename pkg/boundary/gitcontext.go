package boundary

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// GitContext is the git-derived slice of a Session's structured context
// (spec §3 names `git_commits`/`files_changed` but does not specify how
// they are gathered; SPEC_FULL §C adds this capture as local,
// synchronous, best-effort).
type GitContext struct {
	Commits      []string
	FilesChanged []string
}

// CaptureGitContext runs git log/diff/status against projectPath. Git
// being absent, or projectPath not being a repository, yields an empty
// GitContext rather than an error — this is local tooling glue, never a
// reason to fail a Session write.
func CaptureGitContext(projectPath string) GitContext {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	commits := runGit(ctx, projectPath, "log", "-10", "--pretty=format:%h %s")
	stat := runGit(ctx, projectPath, "diff", "--stat", "HEAD")
	porcelain := runGit(ctx, projectPath, "status", "--porcelain")

	return GitContext{
		Commits:      splitNonEmpty(commits),
		FilesChanged: mergeFileLists(stat, porcelain),
	}
}

func runGit(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return out.String()
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func mergeFileLists(diffStat, porcelain string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, line := range strings.Split(diffStat, "\n") {
		if idx := strings.Index(line, "|"); idx > 0 {
			add(line[:idx])
		}
	}
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) > 3 {
			add(line[3:])
		}
	}
	return out
}
