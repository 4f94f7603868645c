// Package publish pushes archives to a git-based remote store and
// enforces the retention cap while doing so.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Git wraps the git CLI for the small set of operations publishing needs.
type Git struct {
	binary string
	logger zerolog.Logger
}

// NewGit creates a new Git wrapper.
func NewGit(logger zerolog.Logger) *Git {
	return NewGitWithBinary("git", logger)
}

// NewGitWithBinary creates a Git wrapper with a custom binary path.
func NewGitWithBinary(binary string, logger zerolog.Logger) *Git {
	return &Git{
		binary: binary,
		logger: logger.With().Str("component", "git").Logger(),
	}
}

// Clone clones url into dest.
func (g *Git) Clone(ctx context.Context, url, dest string) error {
	if _, err := g.run(ctx, "", "clone", url, dest); err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// Add stages paths in the repository at dir.
func (g *Git) Add(ctx context.Context, dir string, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// Remove stages the deletion of paths in the repository at dir.
func (g *Git) Remove(ctx context.Context, dir string, paths ...string) error {
	args := append([]string{"rm", "--quiet", "--"}, paths...)
	if _, err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	return nil
}

// Commit records staged changes with the given message.
func (g *Git) Commit(ctx context.Context, dir, message string) error {
	if _, err := g.run(ctx, dir, "commit", "--message", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push pushes the current branch to the remote's default integration branch.
func (g *Git) Push(ctx context.Context, dir string) error {
	if _, err := g.run(ctx, dir, "push", "origin", "HEAD"); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.logger.Debug().
		Str("command", g.binary).
		Strs("args", args).
		Str("dir", dir).
		Msg("executing git command")

	err := cmd.Run()
	if err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
	}

	return stdout.Bytes(), nil
}
