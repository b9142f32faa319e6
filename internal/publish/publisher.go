package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	shellquote "github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/retry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/stage"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

// Request describes the branch to publish.
type Request struct {
	Workspace *workspace.Handle

	// Issue names the issue and the repository the pull request targets.
	Issue forge.IssueRef
	// IssueTitle is looked up from the provider when empty.
	IssueTitle string

	Branch string
	Base   string

	// Fork is the repository the branch is pushed to, or nil when pushing
	// to the target directly.
	Fork *forge.Repo
}

// HeadRef is the head as the target repository's compare endpoint sees it.
func (r Request) HeadRef() string {
	if r.Fork != nil {
		return r.Fork.Owner + ":" + r.Branch
	}
	return r.Branch
}

// Result reports how far a Publish got.
type Result struct {
	// State is the last state entered. On failure it is the state that
	// failed.
	State State

	MarkerPath  string
	PullRequest *forge.PullRequest
	Linked      bool

	AssigneeDropped bool
	Warnings        []string
}

// Publisher runs the publication state machine.
type Publisher struct {
	provider forge.Provider
	vcs      vcs.VCS
	runner   *retry.Runner
	cfg      config.PullRequestConfig
	compare  retry.Policy
	reads    retry.Policy
	observe  stage.Observer
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithObserver reports every state transition to fn.
func WithObserver(fn stage.Observer) Option {
	return func(p *Publisher) {
		p.observe = fn
	}
}

// NewPublisher creates a Publisher.
func NewPublisher(p forge.Provider, v vcs.VCS, runner *retry.Runner, cfg *config.Config, opts ...Option) *Publisher {
	pub := &Publisher{
		provider: p,
		vcs:      v,
		runner:   runner,
		cfg:      cfg.PullRequest,
		compare:  retry.PollPolicy("compare", cfg.Retry.CompareAttempts, cfg.Retry.CompareStep),
		reads:    retry.ExponentialPolicy("provider read", cfg.Retry.ForkAttempts, cfg.Retry.ForkBaseDelay),
	}
	for _, opt := range opts {
		opt(pub)
	}
	return pub
}

// run is the state shared by the steps of one Publish.
type run struct {
	req Request
	res *Result

	marker     string
	comparison *forge.Comparison
	title      string
	body       string
	claimed    *forge.PullRequest
}

// Publish drives req through the state machine. The returned Result is
// non-nil even on error.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	r := &run{req: req, res: &Result{}}

	steps := []stage.Step[run]{
		{Name: StateStaging.String(), Run: p.stage},
		{Name: StateCommitted.String(), Run: p.commit},
		{Name: StatePushed.String(), Run: p.push},
		{Name: StateSyncing.String(), Run: p.sync},
		{Name: StateCreating.String(), Run: p.create},
		{Name: StateVerifying.String(), Run: p.verify},
		{Name: "linking", Run: p.link},
		{Name: "commenting", Run: p.comment, Skip: func(*run) bool { return !p.cfg.CommentOnIssue }},
	}

	if err := stage.Run(ctx, r, steps, p.observe); err != nil {
		return r.res, err
	}
	return r.res, nil
}

func (r *run) enter(s State) {
	r.res.State = s
	logging.Debug("publish state", "state", s.String(), "branch", r.req.Branch)
}

func (r *run) warn(msg string, args ...any) {
	r.res.Warnings = append(r.res.Warnings, msg)
	logging.Warn(msg, args...)
}

// read retries fn through transient provider failures. ErrPermission ends
// the loop at once, and so does ErrNotFound unless lag is set, in which
// case a missing resource is taken to be one the provider has not caught
// up on yet.
func (p *Publisher) read(ctx context.Context, op string, lag bool, fn func() error) error {
	return p.runner.Run(ctx, p.reads, func(attempt int) error {
		err := fn()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, forge.ErrPermission):
			return retry.Permanent(err)
		case errors.Is(err, forge.ErrNotFound) && !lag:
			return retry.Permanent(err)
		}
		logging.Debug("provider read failed", "op", op, "attempt", attempt, "error", err)
		return err
	})
}

// stage writes the task marker, falling back to the placeholder path when
// the marker is ignored, and stages it.
func (p *Publisher) stage(ctx context.Context, r *run) error {
	r.enter(StateStaging)
	dir := r.req.Workspace.Path

	var candidates []string
	for _, c := range []string{p.cfg.MarkerFile, p.cfg.PlaceholderFile} {
		if c != "" {
			candidates = append(candidates, c)
		}
	}

	for _, c := range candidates {
		ignored, err := p.vcs.IsIgnored(ctx, dir, c)
		if err != nil {
			return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "check ignore rules", err)
		}
		if ignored {
			logging.Debug("marker path ignored", "path", c)
			continue
		}
		r.marker = c
		break
	}
	if r.marker == "" {
		return errors.PathIgnored(candidates...)
	}
	if r.marker != p.cfg.MarkerFile {
		r.warn("marker path is ignored, using placeholder", "marker", p.cfg.MarkerFile, "placeholder", r.marker)
	}

	full, err := securejoin.SecureJoin(dir, r.marker)
	if err != nil {
		return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "resolve marker path", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "create marker directory", err)
	}
	if err := os.WriteFile(full, renderMarker(r.req), 0644); err != nil {
		return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "write marker", err)
	}
	r.res.MarkerPath = r.marker

	if err := p.vcs.Add(ctx, dir, r.marker); err != nil {
		return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "stage marker", err)
	}
	staged, err := p.vcs.HasStagedChanges(ctx, dir)
	if err != nil {
		return errors.Wrap(errors.ExitStaging, errors.KindGeneral, "inspect index", err)
	}
	if !staged {
		return errors.NothingToCommit(r.marker)
	}
	return nil
}

func renderMarker(req Request) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", req.Issue)
	if req.IssueTitle != "" {
		fmt.Fprintf(&b, "title: %s\n", req.IssueTitle)
	}
	fmt.Fprintf(&b, "branch: %s\n", req.Branch)
	fmt.Fprintf(&b, "base: %s\n", req.Base)
	if req.Fork != nil {
		fmt.Fprintf(&b, "fork: %s\n", req.Fork)
	}
	if req.Workspace.RunID != "" {
		fmt.Fprintf(&b, "run: %s\n", req.Workspace.RunID)
	}
	return []byte(b.String())
}

// CommitMessage is the message used for the marker commit.
func CommitMessage(issue forge.IssueRef) string {
	return fmt.Sprintf("Start work on #%d\n\nRefs %s", issue.Number, issue)
}

func (p *Publisher) commit(ctx context.Context, r *run) error {
	r.enter(StateCommitted)
	if err := p.vcs.Commit(ctx, r.req.Workspace.Path, CommitMessage(r.req.Issue)); err != nil {
		return errors.BranchFailed("commit on", r.req.Branch, err)
	}
	return nil
}

func (p *Publisher) push(ctx context.Context, r *run) error {
	r.enter(StatePushed)
	dir := r.req.Workspace.Path
	err := p.vcs.Push(ctx, dir, "origin", r.req.Branch, vcs.PushOptions{SetUpstream: true})
	if err == nil {
		return p.confirmPush(ctx, r)
	}
	e := errors.BranchFailed("push of", r.req.Branch, err)
	if errors.Is(err, vcs.ErrNonFastForward) {
		e.WithHint("the remote branch has commits this workspace does not; integrate them and push again")
		e.WithCommand("git", "-C", dir, "pull", "--rebase", "origin", r.req.Branch)
	}
	e.WithCommand("git", "-C", dir, "push", "--set-upstream", "origin", r.req.Branch)
	return e
}

// confirmPush reads the pushed branch back from the provider and checks it
// points at the local commit. A branch that is not visible yet is lag.
func (p *Publisher) confirmPush(ctx context.Context, r *run) error {
	dir := r.req.Workspace.Path
	repo := r.req.Workspace.Origin
	local, err := p.vcs.RevParse(ctx, dir, r.req.Branch)
	if err != nil {
		return errors.BranchFailed("inspect", r.req.Branch, err).
			WithCommand("git", "-C", dir, "rev-parse", r.req.Branch)
	}

	var remote string
	err = p.read(ctx, "read back "+r.req.Branch, true, func() error {
		remote = ""
		b, err := p.provider.GetBranch(ctx, repo, r.req.Branch)
		if err != nil {
			return err
		}
		remote = b.SHA
		if remote != local {
			return fmt.Errorf("%s on %s is at %s, pushed %s", r.req.Branch, repo, remote, local)
		}
		return nil
	})
	if err == nil {
		logging.Debug("push confirmed", "repo", repo, "branch", r.req.Branch, "sha", local)
		return nil
	}

	api := fmt.Sprintf("repos/%s/branches/%s", repo, r.req.Branch)
	var ex *retry.ExhaustedError
	switch {
	case errors.As(err, &ex) && remote != "" && remote != local:
		return errors.PushVerification(repo.String(), r.req.Branch, local, remote).
			WithCommand("gh", "api", api, "--jq", ".commit.sha")
	case errors.As(err, &ex):
		return errors.TransientExhausted("read back "+r.req.Branch+" from "+repo.String(), ex.Attempts, ex.Err).
			WithCommand("gh", "api", api, "--jq", ".commit.sha")
	case errors.Is(err, forge.ErrPermission):
		return errors.PermissionDenied("read "+api, err).
			WithCommand("gh", "auth", "status")
	default:
		return err
	}
}

// sync polls the target's compare endpoint until it sees the pushed head
// ahead of base.
func (p *Publisher) sync(ctx context.Context, r *run) error {
	r.enter(StateSyncing)
	repo := r.req.Issue.Repo
	head := r.req.HeadRef()

	err := p.runner.Run(ctx, p.compare, func(attempt int) error {
		c, err := p.provider.Compare(ctx, repo, r.req.Base, head)
		if err != nil {
			if errors.Is(err, forge.ErrPermission) {
				return retry.Permanent(errors.PermissionDenied("compare "+repo.String(), err))
			}
			return err
		}
		r.comparison = c
		logging.Debug("compare", "attempt", attempt, "status", c.Status, "ahead_by", c.AheadBy)
		if c.AheadBy >= 1 {
			return nil
		}
		return fmt.Errorf("%s is %d commits ahead of %s", head, c.AheadBy, r.req.Base)
	})
	if err == nil {
		return nil
	}

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		return err
	}
	r.comparison = nil
	e := errors.SyncTimeout(r.req.Base, head, exhausted.Attempts)
	if local, lerr := p.vcs.CommitsAhead(ctx, r.req.Workspace.Path, "origin/"+r.req.Base, r.req.Branch); lerr == nil && local > 0 {
		e.WithHint("the workspace has %d commit(s) on %s that the provider does not report yet; retry later", local, r.req.Branch)
	}
	e.WithCommand("gh", "api", fmt.Sprintf("repos/%s/compare/%s...%s", repo, r.req.Base, head), "--jq", ".ahead_by")
	return e
}

// Title renders the pull request title.
func (p *Publisher) Title(issue forge.IssueRef, title string) string {
	if title == "" {
		title = issue.String()
	}
	return strings.NewReplacer(
		"{number}", strconv.Itoa(issue.Number),
		"{title}", title,
	).Replace(p.cfg.TitleTemplate)
}

func body(req Request) string {
	return fmt.Sprintf("Fixes #%d\n\nBranch `%s`, opened by forage-pr.\n", req.Issue.Number, req.Branch)
}

func (p *Publisher) create(ctx context.Context, r *run) error {
	r.enter(StateCreating)
	repo := r.req.Issue.Repo
	if r.comparison == nil || r.comparison.AheadBy < 1 {
		return errors.SyncTimeout(r.req.Base, r.req.HeadRef(), 0)
	}

	issueTitle := r.req.IssueTitle
	if issueTitle == "" {
		var issue *forge.Issue
		err := p.read(ctx, "read issue", false, func() (err error) {
			issue, err = p.provider.GetIssue(ctx, repo, r.req.Issue.Number)
			return err
		})
		if err != nil {
			logging.Debug("issue lookup failed", "issue", r.req.Issue, "error", err)
		} else {
			issueTitle = issue.Title
		}
	}
	r.title = p.Title(r.req.Issue, issueTitle)
	r.body = body(r.req)

	spec := forge.PullRequestSpec{
		Base:     r.req.Base,
		Head:     r.req.Branch,
		Title:    r.title,
		Body:     r.body,
		Assignee: p.cfg.Assignee,
		Draft:    p.cfg.Draft,
	}
	if r.req.Fork != nil {
		spec.HeadOwner = r.req.Fork.Owner
	}

	pr, err := p.provider.CreatePullRequest(ctx, repo, spec)
	if err != nil && errors.Is(err, forge.ErrAssigneeInvalid) && spec.Assignee != "" {
		r.warn("assignee is not a collaborator, creating pull request unassigned", "assignee", spec.Assignee)
		r.res.AssigneeDropped = true
		spec.Assignee = ""
		pr, err = p.provider.CreatePullRequest(ctx, repo, spec)
	}

	switch {
	case err == nil:
	case errors.Is(err, forge.ErrAlreadyExists):
		var existing *forge.PullRequest
		ferr := p.read(ctx, "find existing pull request", true, func() (err error) {
			existing, err = p.provider.FindPullRequest(ctx, repo, spec.HeadOwner, spec.Head)
			return err
		})
		if ferr != nil {
			return errors.PullRequestFailed("pull request reported as existing but could not be found", ferr).
				WithCommand("gh", "pr", "list", "--repo", repo.String(), "--head", spec.Head)
		}
		logging.Info("reusing existing pull request", "number", existing.Number, "url", existing.URL)
		pr = existing
	case errors.Is(err, forge.ErrNoCommitsBetween):
		return errors.NoCommitsBetween(spec.Base, spec.HeadRef(), err).
			WithCommand("gh", "api", fmt.Sprintf("repos/%s/compare/%s...%s", repo, spec.Base, spec.HeadRef()), "--jq", ".ahead_by")
	default:
		args := []string{"gh", "pr", "create", "--repo", repo.String(), "--base", spec.Base, "--head", spec.HeadRef(), "--title", spec.Title, "--body", spec.Body}
		if spec.Draft {
			args = append(args, "--draft")
		}
		return errors.PullRequestFailed("create pull request", err).WithCommand(args...)
	}

	r.claimed = pr
	return nil
}

// verify re-reads the claimed pull request by number.
func (p *Publisher) verify(ctx context.Context, r *run) error {
	r.enter(StateVerifying)
	repo := r.req.Issue.Repo

	number := strconv.Itoa(r.claimed.Number)
	view := []string{"gh", "pr", "view", number, "--repo", repo.String(), "--json", "headRefName,headRepositoryOwner,baseRefName"}

	var got *forge.PullRequest
	err := p.read(ctx, "read back pull request #"+number, true, func() (err error) {
		got, err = p.provider.GetPullRequest(ctx, repo, r.claimed.Number)
		return err
	})
	if err != nil {
		return errors.PullRequestFailed(fmt.Sprintf("pull request #%d (%s) was reported but cannot be read back", r.claimed.Number, r.claimed.URL), err).
			WithCommand(view...).
			WithCommand("gh", "pr", "list", "--repo", repo.String(), "--head", r.req.Branch)
	}
	if got.HeadRef != r.req.Branch {
		return errors.PullRequestVerification(fmt.Sprintf("pull request #%d has head %s, expected %s", got.Number, got.HeadRef, r.req.Branch)).
			WithCommand(view...)
	}
	if r.req.Fork != nil && got.HeadOwner != "" && !strings.EqualFold(got.HeadOwner, r.req.Fork.Owner) {
		return errors.PullRequestVerification(fmt.Sprintf("pull request #%d comes from %s, expected %s", got.Number, got.HeadOwner, r.req.Fork.Owner)).
			WithCommand(view...)
	}
	if got.BaseRef != "" && got.BaseRef != r.req.Base {
		return errors.PullRequestVerification(fmt.Sprintf("pull request #%d targets %s, expected %s", got.Number, got.BaseRef, r.req.Base)).
			WithCommand(view...)
	}

	r.res.PullRequest = got
	logging.Info("pull request verified", "number", got.Number, "url", got.URL)
	return nil
}

// link checks that the provider records the pull request as closing the
// issue. A missing link is only a warning.
func (p *Publisher) link(ctx context.Context, r *run) error {
	repo := r.req.Issue.Repo
	pr := r.res.PullRequest

	var refs []forge.IssueRef
	err := p.read(ctx, "read linked issues", true, func() (err error) {
		refs, err = p.provider.LinkedIssues(ctx, repo, pr.Number)
		return err
	})
	if err != nil {
		logging.Debug("linked issue lookup failed", "number", pr.Number, "error", err)
	}
	for _, ref := range refs {
		if ref.Number == r.req.Issue.Number && ref.Repo.Equal(r.req.Issue.Repo) {
			r.res.Linked = true
			r.enter(StateLinked)
			return nil
		}
	}

	r.enter(StateLinkWarned)
	r.warn(LinkRemediation(repo, pr.Number, r.req.Issue.Number), "number", pr.Number, "issue", r.req.Issue.String())
	return nil
}

// LinkRemediation is the warning for a pull request that does not close
// its issue.
func LinkRemediation(repo forge.Repo, pr, issue int) string {
	return fmt.Sprintf("pull request #%d is not linked to issue #%d; link it with: %s",
		pr, issue, shellquote.Join("gh", "pr", "edit", strconv.Itoa(pr), "--repo", repo.String(), "--body", fmt.Sprintf("Fixes #%d", issue)))
}

func (p *Publisher) comment(ctx context.Context, r *run) error {
	pr := r.res.PullRequest
	msg := fmt.Sprintf("Opened %s for this issue.", pr.URL)
	if err := p.provider.PostIssueComment(ctx, r.req.Issue.Repo, r.req.Issue.Number, msg); err != nil {
		r.warn("could not comment on issue", "issue", r.req.Issue.String(), "error", err)
	}
	return nil
}
