package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

// Git implements VCS by running git.
type Git struct {
	exec system.CommandExecutor
	bin  string
}

// NewGit creates a Git. bin defaults to "git".
func NewGit(exec system.CommandExecutor, bin string) *Git {
	if bin == "" {
		bin = "git"
	}
	return &Git{exec: exec, bin: bin}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	out, err := g.exec.Execute(ctx, g.bin, args...)
	return strings.TrimSpace(string(out)), err
}

// exitCode returns the process exit status in err's chain, or -1.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func (g *Git) Clone(ctx context.Context, url, dir string) error {
	if _, err := g.run(ctx, "", "clone", "--", url, dir); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

func (g *Git) RemoteURL(ctx context.Context, dir, remote string) (string, error) {
	out, err := g.run(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		if strings.Contains(strings.ToLower(system.Stderr(err)), "no such remote") {
			return "", fmt.Errorf("%s: %w", remote, ErrNoRemote)
		}
		return "", fmt.Errorf("git remote get-url %s: %w", remote, err)
	}
	return out, nil
}

func (g *Git) AddRemote(ctx context.Context, dir, remote, url string) error {
	if _, err := g.run(ctx, dir, "remote", "add", remote, url); err != nil {
		return fmt.Errorf("git remote add %s: %w", remote, err)
	}
	return nil
}

func (g *Git) Fetch(ctx context.Context, dir, remote string, refs ...string) error {
	args := append([]string{"fetch", remote}, refs...)
	if _, err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("git fetch %s: %w", remote, err)
	}
	return nil
}

func (g *Git) RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	out, err := g.run(ctx, dir, "ls-remote", "--symref", remote, "HEAD")
	if err == nil {
		for _, line := range strings.Split(out, "\n") {
			// ref: refs/heads/main	HEAD
			if rest, ok := strings.CutPrefix(line, "ref: refs/heads/"); ok {
				if branch, _, ok := strings.Cut(rest, "\t"); ok {
					return branch, nil
				}
			}
		}
	}

	// Fall back to the locally recorded remote HEAD, then common names.
	if ref, err := g.run(ctx, dir, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD"); err == nil {
		if _, branch, ok := strings.Cut(ref, "/"); ok {
			return branch, nil
		}
	}
	for _, name := range []string{"main", "master"} {
		if _, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/remotes/"+remote+"/"+name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not determine default branch of %s", remote)
}

func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse --abbrev-ref HEAD: %w", err)
	}
	return out, nil
}

func (g *Git) Checkout(ctx context.Context, dir, branch string) error {
	if _, err := g.run(ctx, dir, "checkout", branch); err != nil {
		return fmt.Errorf("git checkout %s: %w", branch, err)
	}
	return nil
}

func (g *Git) CheckoutTracking(ctx context.Context, dir, remote, branch string) error {
	if _, err := g.run(ctx, dir, "checkout", "-B", branch, "--track", remote+"/"+branch); err != nil {
		return fmt.Errorf("git checkout %s from %s: %w", branch, remote, err)
	}
	return nil
}

func (g *Git) CreateBranch(ctx context.Context, dir, branch, startPoint string) error {
	if _, err := g.run(ctx, dir, "checkout", "-b", branch, startPoint); err != nil {
		return fmt.Errorf("git checkout -b %s: %w", branch, err)
	}
	return nil
}

func (g *Git) BranchExists(ctx context.Context, dir, branch string) (bool, error) {
	_, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git rev-parse %s: %w", branch, err)
}

func (g *Git) RevParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--verify", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return out, nil
}

func (g *Git) ResetHard(ctx context.Context, dir, ref string) error {
	if _, err := g.run(ctx, dir, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("git reset --hard %s: %w", ref, err)
	}
	return nil
}

func (g *Git) IsIgnored(ctx context.Context, dir, path string) (bool, error) {
	_, err := g.run(ctx, dir, "check-ignore", "-q", "--", path)
	switch {
	case err == nil:
		return true, nil
	case exitCode(err) == 1:
		return false, nil
	default:
		return false, fmt.Errorf("git check-ignore %s: %w", path, err)
	}
}

func (g *Git) Add(ctx context.Context, dir string, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

func (g *Git) HasStagedChanges(ctx context.Context, dir string) (bool, error) {
	_, err := g.run(ctx, dir, "diff", "--cached", "--quiet")
	switch {
	case err == nil:
		return false, nil
	case exitCode(err) == 1:
		return true, nil
	default:
		return false, fmt.Errorf("git diff --cached: %w", err)
	}
}

func (g *Git) Commit(ctx context.Context, dir, message string) error {
	if _, err := g.run(ctx, dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

func (g *Git) Push(ctx context.Context, dir, remote, branch string, opts PushOptions) error {
	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "--set-upstream")
	}
	if opts.ForceWithLease {
		lease := "--force-with-lease=refs/heads/" + branch
		if opts.ExpectedSHA != "" {
			lease += ":" + opts.ExpectedSHA
		}
		args = append(args, lease)
	}
	args = append(args, remote, branch)

	if _, err := g.run(ctx, dir, args...); err != nil {
		return classifyPushError(remote, branch, err)
	}
	return nil
}

func classifyPushError(remote, branch string, err error) error {
	lower := strings.ToLower(system.Stderr(err))
	switch {
	case strings.Contains(lower, "protected branch"), strings.Contains(lower, "gh006"):
		return fmt.Errorf("git push %s %s: %w: %v", remote, branch, ErrProtectedBranch, err)
	case strings.Contains(lower, "stale info"):
		return fmt.Errorf("git push %s %s: %w: %v", remote, branch, ErrStaleLease, err)
	case strings.Contains(lower, "non-fast-forward"), strings.Contains(lower, "fetch first"):
		return fmt.Errorf("git push %s %s: %w: %v", remote, branch, ErrNonFastForward, err)
	default:
		return fmt.Errorf("git push %s %s: %w", remote, branch, err)
	}
}

func (g *Git) CommitsAhead(ctx context.Context, dir, base, head string) (int, error) {
	out, err := g.run(ctx, dir, "rev-list", "--count", base+".."+head)
	if err != nil {
		return 0, fmt.Errorf("git rev-list %s..%s: %w", base, head, err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("git rev-list: unexpected output %q", out)
	}
	return n, nil
}

var _ VCS = (*Git)(nil)
