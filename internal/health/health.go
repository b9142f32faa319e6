package health

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

// Status represents the outcome of one check
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusSkipped   Status = "skipped"

	// CheckTimeout bounds each external command.
	CheckTimeout = 10 * time.Second
)

// CheckResult is the outcome of a single named check
type CheckResult struct {
	Name   string
	Status Status
	Detail string
}

// Report collects every check in the order run.
type Report struct {
	Checks []CheckResult
}

// Healthy reports whether no check failed. Skipped checks do not count.
func (r *Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// Failed returns the checks that failed.
func (r *Report) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status == StatusUnhealthy {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) add(name string, status Status, detail string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Status: status, Detail: detail})
}

// CheckBinary runs "<bin> --version" and returns the first output line.
func CheckBinary(ctx context.Context, exec system.CommandExecutor, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	out, err := exec.Execute(ctx, bin, "--version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// CheckAuth verifies gh holds a token for host.
func CheckAuth(ctx context.Context, exec system.CommandExecutor, gh, host string) error {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	_, err := exec.Execute(ctx, gh, "auth", "status", "--hostname", host)
	return err
}

// CheckWritable verifies dir can be created and written to.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".forage-pr-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Check runs every preflight check for cfg. Auth is skipped when gh itself
// is missing.
func Check(ctx context.Context, exec system.CommandExecutor, cfg *config.Config, workspaceRoot string) *Report {
	r := &Report{}

	if v, err := CheckBinary(ctx, exec, cfg.Provider.Git); err != nil {
		r.add("git", StatusUnhealthy, fmt.Sprintf("%s not usable: %v", cfg.Provider.Git, err))
	} else {
		r.add("git", StatusHealthy, v)
	}

	ghOK := false
	if v, err := CheckBinary(ctx, exec, cfg.Provider.GH); err != nil {
		r.add("gh", StatusUnhealthy, fmt.Sprintf("%s not usable: %v", cfg.Provider.GH, err))
	} else {
		ghOK = true
		r.add("gh", StatusHealthy, v)
	}

	switch {
	case !ghOK:
		r.add("auth", StatusSkipped, "gh unavailable")
	case CheckAuth(ctx, exec, cfg.Provider.GH, cfg.Provider.Host) != nil:
		r.add("auth", StatusUnhealthy, "not logged in to "+cfg.Provider.Host)
	default:
		r.add("auth", StatusHealthy, cfg.Provider.Host)
	}

	if err := CheckWritable(workspaceRoot); err != nil {
		r.add("workspace", StatusUnhealthy, err.Error())
	} else {
		r.add("workspace", StatusHealthy, workspaceRoot)
	}

	return r
}
