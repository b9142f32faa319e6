// Package pipeline drives one issue from lookup to verified pull request:
// conflict check, fork, workspace, clone, upstream sync, branch, agent and
// publish. Every stage is a terminal decision point; the first failure
// aborts the run and leaves the workspace on disk for inspection.
package pipeline

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/agent"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/fork"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/publish"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/retry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/stage"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

// Stage names, in execution order.
const (
	StageResolve   = "resolve"
	StageForkCheck = "fork-check"
	StageFork      = "fork"
	StageWorkspace = "workspace"
	StageClone     = "clone"
	StageSync      = "sync"
	StageBranch    = "branch"
	StageAgent     = "agent"
	StagePublish   = "publish"
)

// Target is what a run works on.
type Target struct {
	Issue forge.IssueRef

	// Branch continues an existing task branch instead of creating one.
	Branch string
	// BranchRepo holds Branch when it lives outside the pushed repository.
	BranchRepo forge.Repo
}

// Result describes a finished or aborted run.
type Result struct {
	RunID string

	// Fork is the repository pushed to, or nil for a direct push.
	Fork      *forge.Repo
	Branch    string
	Workspace *workspace.Handle

	// WorkspaceRemoved is set when the workspace was reaped.
	WorkspaceRemoved bool

	Publish *publish.Result

	// FailedStage names the stage that aborted the run.
	FailedStage string
}

// Pipeline composes the stages of a run.
type Pipeline struct {
	provider forge.Provider
	cfg      *config.Config

	detector    *fork.ConflictDetector
	provisioner *fork.Provisioner
	workspaces  *workspace.Manager
	cloner      *workspace.Cloner
	syncer      *workspace.UpstreamSyncer
	branches    *workspace.BranchManager

	vcs    vcs.VCS
	runner *retry.Runner
	reads  retry.Policy
	agent  agent.Agent
	audit  *audit.Logger
	newID  func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAgent sets the agent run between branching and publishing.
func WithAgent(a agent.Agent) Option {
	return func(p *Pipeline) {
		p.agent = a
	}
}

// WithAudit records stage events for every run.
func WithAudit(l *audit.Logger) Option {
	return func(p *Pipeline) {
		p.audit = l
	}
}

// WithRunIDs substitutes the run ID generator.
func WithRunIDs(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// New creates a Pipeline. Workspaces are created under root.
func New(provider forge.Provider, v vcs.VCS, runner *retry.Runner, cfg *config.Config, root string, opts ...Option) *Pipeline {
	urlFor := workspace.HTTPSURL(cfg.Provider.Host)
	p := &Pipeline{
		provider:    provider,
		cfg:         cfg,
		detector:    fork.NewConflictDetector(provider, fork.NewRootResolver(provider)),
		provisioner: fork.NewProvisioner(provider, runner, cfg),
		workspaces:  workspace.NewManager(root, cfg.Workspace.Keep),
		cloner:      workspace.NewCloner(v, urlFor),
		syncer:      workspace.NewUpstreamSyncer(v, urlFor, cfg.Sync.AllowForceWithLease),
		branches:    workspace.NewBranchManager(v, urlFor),
		vcs:         v,
		runner:      runner,
		reads:       retry.ExponentialPolicy("provider read", cfg.Retry.ForkAttempts, cfg.Retry.ForkBaseDelay),
		newID:       audit.NewRunID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the state threaded through the stages.
type run struct {
	target Target
	res    *Result

	user     string
	meta     *forge.RepoMeta
	needFork bool
	pushRepo forge.Repo
	base     string
}

// Run executes every stage for target. On failure the returned Result
// names the failed stage and the kept workspace.
func (p *Pipeline) Run(ctx context.Context, target Target) (*Result, error) {
	r := &run{
		target: target,
		res:    &Result{RunID: p.newID()},
	}
	log := logging.With("run", r.res.RunID, "issue", target.Issue.String())
	log.Info("run started")
	p.record(r, audit.Event{Type: audit.EventRunStart, Details: target.Issue.String()})

	var observe stage.Observer
	if p.audit != nil {
		observe = p.audit.Observer(r.res.RunID)
	}

	noFork := func(r *run) bool { return !r.needFork }
	steps := []stage.Step[run]{
		{Name: StageResolve, Run: p.resolve},
		{Name: StageForkCheck, Run: p.checkFork, Skip: noFork},
		{Name: StageFork, Run: p.ensureFork, Skip: noFork},
		{Name: StageWorkspace, Run: p.claimWorkspace},
		{Name: StageClone, Run: p.clone},
		{Name: StageSync, Run: p.sync, Skip: noFork},
		{Name: StageBranch, Run: p.branch},
		{Name: StageAgent, Run: p.runAgent, Skip: func(*run) bool { return p.agent == nil }},
		{Name: StagePublish, Run: p.publish},
	}

	err := stage.Run(ctx, r, steps, observe)
	if err != nil {
		r.res.FailedStage = stage.StageOf(err)
	}

	if h := r.res.Workspace; h != nil {
		removed, rerr := p.workspaces.Release(h, err == nil)
		if rerr != nil {
			log.Warn("workspace cleanup failed", "path", h.Path, "error", rerr)
		}
		r.res.WorkspaceRemoved = removed
		if !removed {
			log.Info("workspace kept", "path", h.Path)
		}
	}

	end := audit.Event{Type: audit.EventRunEnd}
	if err != nil {
		end.Stage = r.res.FailedStage
		end.Kind = errors.KindOf(err)
		end.ExitCode = errors.GetExitCode(err)
		end.Details = err.Error()
	} else if pr := r.res.Publish; pr != nil && pr.PullRequest != nil {
		end.Details = pr.PullRequest.URL
	}
	p.record(r, end)

	if err != nil {
		log.Error("run failed", "stage", r.res.FailedStage, "error", err)
		return r.res, err
	}
	log.Info("run finished", "url", end.Details)
	return r.res, nil
}

func (p *Pipeline) record(r *run, e audit.Event) {
	if p.audit == nil {
		return
	}
	e.Run = r.res.RunID
	if err := p.audit.Log(e); err != nil {
		logging.Warn("audit write failed", "run", r.res.RunID, "error", err)
	}
}

func (p *Pipeline) warn(r *run, stageName, msg string) {
	logging.Warn(msg, "stage", stageName)
	p.record(r, audit.Event{Type: audit.EventWarning, Stage: stageName, Details: msg})
}

// resolve looks up the viewer and the target, and decides whether the
// branch goes through a fork.
func (p *Pipeline) resolve(ctx context.Context, r *run) error {
	repo := r.target.Issue.Repo

	var user string
	err := p.read(ctx, "determine the authenticated user", func() (err error) {
		user, err = p.provider.CurrentUser(ctx)
		return err
	})
	if err != nil {
		return p.readFailure(ctx, "determine the authenticated user", err).
			WithCommand(p.cfg.Provider.GH, "auth", "status")
	}
	r.user = user

	var meta *forge.RepoMeta
	err = p.read(ctx, "look up "+repo.String(), func() (err error) {
		meta, err = p.provider.RepositoryMeta(ctx, repo)
		return err
	})
	if err != nil {
		return p.readFailure(ctx, "read "+repo.String(), err).
			WithCommand(p.cfg.Provider.GH, "repo", "view", repo.String())
	}
	r.meta = meta
	r.base = meta.DefaultBranch

	switch p.cfg.Fork.Mode {
	case config.ForkAlways:
		r.needFork = true
	case config.ForkNever:
		if !meta.CanPush {
			return errors.PermissionDenied(fmt.Sprintf("push to %s", repo), nil).
				WithHint("fork.mode is %q but %s cannot push to %s; set fork.mode to %q", config.ForkNever, user, repo, config.ForkAuto)
		}
	default:
		r.needFork = !meta.CanPush
	}

	r.pushRepo = repo
	logging.Debug("target resolved", "repo", repo, "user", user, "can_push", meta.CanPush, "fork", r.needFork, "base", r.base)
	return nil
}

// read retries fn through transient provider failures. Missing or
// forbidden resources end the loop at once.
func (p *Pipeline) read(ctx context.Context, op string, fn func() error) error {
	return p.runner.Run(ctx, p.reads, func(attempt int) error {
		err := fn()
		if errors.Is(err, forge.ErrPermission) || errors.Is(err, forge.ErrNotFound) {
			return retry.Permanent(err)
		}
		if err != nil {
			logging.Debug("provider read failed", "op", op, "attempt", attempt, "error", err)
		}
		return err
	})
}

// readFailure classifies an error returned by read.
func (p *Pipeline) readFailure(ctx context.Context, op string, err error) *errors.Error {
	var ex *retry.ExhaustedError
	switch {
	case errors.As(err, &ex):
		return errors.TransientExhausted(op, ex.Attempts, ex.Err)
	case ctx.Err() != nil:
		return errors.Wrap(errors.ExitGeneralError, errors.KindGeneral, op+" interrupted", err)
	default:
		return errors.PermissionDenied(op, err)
	}
}

func (p *Pipeline) checkFork(ctx context.Context, r *run) error {
	res, err := p.detector.Check(ctx, r.target.Issue.Repo, r.user)
	if err != nil {
		return err
	}
	if res.Degraded {
		p.warn(r, StageForkCheck, "fork conflict check degraded; fork root could not be determined")
	}
	return nil
}

func (p *Pipeline) ensureFork(ctx context.Context, r *run) error {
	f, err := p.provisioner.EnsureFork(ctx, r.target.Issue.Repo, r.user)
	if err != nil {
		return err
	}
	r.res.Fork = &f
	r.pushRepo = f
	return nil
}

func (p *Pipeline) claimWorkspace(ctx context.Context, r *run) error {
	h, err := p.workspaces.Create(r.target.Issue, r.res.RunID)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, errors.KindGeneral, "claim workspace", err)
	}
	r.res.Workspace = h
	return nil
}

func (p *Pipeline) clone(ctx context.Context, r *run) error {
	_, err := p.cloner.Clone(ctx, r.pushRepo, r.res.Workspace)
	return err
}

func (p *Pipeline) sync(ctx context.Context, r *run) error {
	def, err := p.syncer.Sync(ctx, r.res.Workspace, r.res.Fork, r.target.Issue.Repo)
	if err != nil {
		return err
	}
	if def != "" {
		r.base = def
	}
	return nil
}

func (p *Pipeline) branch(ctx context.Context, r *run) error {
	name, err := p.branches.CreateOrCheckout(ctx, r.res.Workspace, workspace.BranchRequest{
		Issue:        r.target.Issue.Number,
		Base:         r.base,
		Existing:     r.target.Branch,
		ExistingRepo: r.target.BranchRepo,
	})
	if err != nil {
		return err
	}
	r.res.Branch = name
	return nil
}

func (p *Pipeline) runAgent(ctx context.Context, r *run) error {
	return p.agent.Run(ctx, agent.Task{
		Issue:     r.target.Issue,
		Branch:    r.res.Branch,
		Workspace: r.res.Workspace.Path,
		Fork:      r.res.Fork,
	})
}

func (p *Pipeline) publish(ctx context.Context, r *run) error {
	publisher := publish.NewPublisher(p.provider, p.vcs, p.runner, p.cfg, publish.WithObserver(p.publishObserver(r)))

	res, err := publisher.Publish(ctx, publish.Request{
		Workspace: r.res.Workspace,
		Issue:     r.target.Issue,
		Branch:    r.res.Branch,
		Base:      r.base,
		Fork:      r.res.Fork,
	})
	r.res.Publish = res
	if res != nil {
		for _, w := range res.Warnings {
			p.record(r, audit.Event{Type: audit.EventWarning, Stage: StagePublish, Details: w})
		}
	}
	return err
}

// publishObserver nests publisher states under the publish stage in the
// audit log.
func (p *Pipeline) publishObserver(r *run) stage.Observer {
	if p.audit == nil {
		return nil
	}
	inner := p.audit.Observer(r.res.RunID)
	return func(e stage.Event) {
		e.Stage = StagePublish + "/" + e.Stage
		inner(e)
	}
}
