// Package git wraps the git worktree operations the orchestrator needs.
// Like tmux, the git binary being absent is fatal at construction; failures
// of individual operations carry git's stderr for the user.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrGitNotInstalled is returned by New when no git binary is in PATH.
var ErrGitNotInstalled = errors.New("git binary not found in PATH")

// commandTimeout bounds git invocations. Worktree creation touches the
// object store and can be slow on large repos, so this is generous.
const commandTimeout = 30 * time.Second

// Git runs worktree operations against a single repository.
type Git struct {
	repoDir string
}

// New creates a Git wrapper rooted at repoDir.
func New(repoDir string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotInstalled
	}
	return &Git{repoDir: repoDir}, nil
}

// run executes a git command in the repo directory and returns stdout.
func (g *Git) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CreateWorktree creates a worktree for branch under worktreeRoot and
// returns its path. The branch is created if it does not exist yet;
// an existing branch is checked out as-is.
func (g *Git) CreateWorktree(worktreeRoot, branch string) (string, error) {
	// Branch names contain slashes; flatten for the directory name.
	dirName := strings.ReplaceAll(branch, "/", "-")
	path := filepath.Join(worktreeRoot, dirName)

	if g.branchExists(branch) {
		if _, err := g.run("worktree", "add", path, branch); err != nil {
			return "", err
		}
		return path, nil
	}
	if _, err := g.run("worktree", "add", "-b", branch, path); err != nil {
		return "", err
	}
	return path, nil
}

// RemoveWorktree removes a worktree directory and prunes its registration.
// Local modifications in the worktree block removal unless force is set.
func (g *Git) RemoveWorktree(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := g.run(args...); err != nil {
		return err
	}
	_, _ = g.run("worktree", "prune")
	return nil
}

// branchExists checks for a local branch ref.
func (g *Git) branchExists(branch string) bool {
	_, err := g.run("show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// CurrentBranch returns the checked-out branch of the repo.
func (g *Git) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}
