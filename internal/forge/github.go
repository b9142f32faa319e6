package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

const forksPerPage = 100

var (
	httpStatusRe = regexp.MustCompile(`\(HTTP (\d{3})\)`)
	pullNumberRe = regexp.MustCompile(`/pull/(\d+)`)
)

// GitHub implements Provider with the gh CLI.
type GitHub struct {
	exec system.CommandExecutor
	bin  string
	host string
}

// NewGitHub creates a gh-backed Provider. bin defaults to "gh", host to
// github.com.
func NewGitHub(exec system.CommandExecutor, bin, host string) *GitHub {
	if bin == "" {
		bin = "gh"
	}
	if host == "" {
		host = "github.com"
	}
	return &GitHub{exec: exec, bin: bin, host: host}
}

// ghRepoRef mirrors the owner/name fields of gh api repository JSON.
type ghRepoRef struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (r *ghRepoRef) repo() Repo {
	return Repo{Owner: r.Owner.Login, Name: r.Name}
}

type ghRepo struct {
	ghRepoRef
	Fork          bool       `json:"fork"`
	Parent        *ghRepoRef `json:"parent"`
	Source        *ghRepoRef `json:"source"`
	DefaultBranch string     `json:"default_branch"`
	Permissions   *struct {
		Push bool `json:"push"`
	} `json:"permissions"`
}

// ghPR mirrors the fields we request from gh pr view/list.
type ghPR struct {
	Number              int    `json:"number"`
	URL                 string `json:"url"`
	State               string `json:"state"` // "OPEN", "MERGED", "CLOSED"
	IsDraft             bool   `json:"isDraft"`
	HeadRefName         string `json:"headRefName"`
	BaseRefName         string `json:"baseRefName"`
	HeadRepositoryOwner struct {
		Login string `json:"login"`
	} `json:"headRepositoryOwner"`
}

const ghPRFields = "number,url,state,isDraft,headRefName,baseRefName,headRepositoryOwner"

func (p *ghPR) pullRequest() *PullRequest {
	return &PullRequest{
		Number:    p.Number,
		URL:       p.URL,
		State:     p.State,
		IsDraft:   p.IsDraft,
		HeadRef:   p.HeadRefName,
		HeadOwner: p.HeadRepositoryOwner.Login,
		BaseRef:   p.BaseRefName,
	}
}

func (g *GitHub) api(ctx context.Context, args ...string) ([]byte, error) {
	full := []string{"api"}
	if g.host != "github.com" {
		full = append(full, "--hostname", g.host)
	}
	return g.exec.Execute(ctx, g.bin, append(full, args...)...)
}

// repoArg is the --repo value for porcelain gh commands.
func (g *GitHub) repoArg(r Repo) string {
	if g.host != "github.com" {
		return g.host + "/" + r.String()
	}
	return r.String()
}

// httpStatus extracts the status gh api prints as "(HTTP 404)".
func httpStatus(err error) int {
	m := httpStatusRe.FindStringSubmatch(system.Stderr(err))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// apiError maps well-known HTTP statuses onto the package sentinels.
func apiError(what string, err error) error {
	switch httpStatus(err) {
	case 404:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case 401, 403:
		return fmt.Errorf("%s: %w: %v", what, ErrPermission, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func decode(what string, out []byte, v any) error {
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("%s: failed to parse gh output: %w", what, err)
	}
	return nil
}

func (g *GitHub) RepositoryMeta(ctx context.Context, repo Repo) (*RepoMeta, error) {
	out, err := g.api(ctx, "repos/"+repo.String())
	if err != nil {
		return nil, apiError("get repository "+repo.String(), err)
	}

	var r ghRepo
	if err := decode("get repository "+repo.String(), out, &r); err != nil {
		return nil, err
	}

	meta := &RepoMeta{
		Repo:          r.repo(),
		IsFork:        r.Fork,
		DefaultBranch: r.DefaultBranch,
		CanPush:       r.Permissions != nil && r.Permissions.Push,
	}
	if r.Parent != nil {
		p := r.Parent.repo()
		meta.Parent = &p
	}
	if r.Source != nil {
		s := r.Source.repo()
		meta.Source = &s
	}
	return meta, nil
}

func (g *GitHub) ListForks(ctx context.Context, repo Repo) ([]Repo, error) {
	var forks []Repo
	for page := 1; ; page++ {
		out, err := g.api(ctx, fmt.Sprintf("repos/%s/forks?per_page=%d&page=%d", repo, forksPerPage, page))
		if err != nil {
			return nil, apiError("list forks of "+repo.String(), err)
		}

		var batch []ghRepoRef
		if err := decode("list forks of "+repo.String(), out, &batch); err != nil {
			return nil, err
		}
		for i := range batch {
			forks = append(forks, batch[i].repo())
		}
		if len(batch) < forksPerPage {
			return forks, nil
		}
		logging.Debug("listing next page of forks", "repo", repo, "page", page+1)
	}
}

func (g *GitHub) CurrentUser(ctx context.Context) (string, error) {
	out, err := g.api(ctx, "user")
	if err != nil {
		return "", apiError("get current user", err)
	}
	var u struct {
		Login string `json:"login"`
	}
	if err := decode("get current user", out, &u); err != nil {
		return "", err
	}
	if u.Login == "" {
		return "", fmt.Errorf("get current user: empty login")
	}
	return u.Login, nil
}

func (g *GitHub) CreateFork(ctx context.Context, repo Repo, opts ForkOptions) ForkOutcome {
	args := []string{"-X", "POST", "repos/" + repo.String() + "/forks"}
	if opts.Name != "" {
		args = append(args, "-f", "name="+opts.Name)
	}
	if opts.DefaultBranchOnly {
		args = append(args, "-F", "default_branch_only=true")
	}

	out, err := g.api(ctx, args...)
	if err != nil {
		return classifyForkError(err)
	}

	var r ghRepo
	if err := json.Unmarshal(out, &r); err != nil || r.Name == "" {
		return ForkOutcome{Status: ForkTransient, Reason: "fork accepted but response was unreadable"}
	}
	return ForkOutcome{Status: ForkCreated, Fork: r.repo()}
}

// classifyForkError turns a failed fork request into an outcome. This is the
// only place provider diagnostics for forks are pattern matched.
func classifyForkError(err error) ForkOutcome {
	stderr := strings.TrimSpace(system.Stderr(err))
	lower := strings.ToLower(stderr)
	reason := stderr
	if reason == "" {
		reason = err.Error()
	}

	switch status := httpStatus(err); {
	case strings.Contains(lower, "already exists"):
		return ForkOutcome{Status: ForkExists, Reason: reason}
	case strings.Contains(lower, "empty repositor"), strings.Contains(lower, "no git content"), strings.Contains(lower, "contains no commits"):
		return ForkOutcome{Status: ForkEmpty, Reason: reason}
	case status == 429 || status >= 500:
		return ForkOutcome{Status: ForkTransient, Reason: reason}
	case status >= 400:
		return ForkOutcome{Status: ForkPermission, Reason: reason}
	default:
		// No HTTP status usually means the request never completed.
		return ForkOutcome{Status: ForkTransient, Reason: reason}
	}
}

func (g *GitHub) GetBranch(ctx context.Context, repo Repo, branch string) (*Branch, error) {
	out, err := g.api(ctx, "repos/"+repo.String()+"/branches/"+branch)
	if err != nil {
		return nil, apiError("get branch "+branch, err)
	}
	var b struct {
		Name   string `json:"name"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := decode("get branch "+branch, out, &b); err != nil {
		return nil, err
	}
	return &Branch{Name: b.Name, SHA: b.Commit.SHA}, nil
}

func (g *GitHub) Compare(ctx context.Context, repo Repo, base, head string) (*Comparison, error) {
	what := fmt.Sprintf("compare %s...%s", base, head)
	out, err := g.api(ctx, fmt.Sprintf("repos/%s/compare/%s...%s", repo, base, head))
	if err != nil {
		return nil, apiError(what, err)
	}
	var c struct {
		Status   string `json:"status"`
		AheadBy  int    `json:"ahead_by"`
		BehindBy int    `json:"behind_by"`
	}
	if err := decode(what, out, &c); err != nil {
		return nil, err
	}
	return &Comparison{Status: c.Status, AheadBy: c.AheadBy, BehindBy: c.BehindBy}, nil
}

func (g *GitHub) CreateFileContent(ctx context.Context, repo Repo, path string, content []byte, message string) error {
	_, err := g.api(ctx, "-X", "PUT", "repos/"+repo.String()+"/contents/"+path,
		"-f", "message="+message,
		"-f", "content="+base64.StdEncoding.EncodeToString(content))
	if err != nil {
		if s := httpStatus(err); s == 404 || s == 403 || s == 401 {
			return fmt.Errorf("write %s to %s: %w: %v", path, repo, ErrPermission, err)
		}
		return fmt.Errorf("write %s to %s: %w", path, repo, err)
	}
	return nil
}

func (g *GitHub) CreatePullRequest(ctx context.Context, repo Repo, spec PullRequestSpec) (*PullRequest, error) {
	args := []string{"pr", "create",
		"--repo", g.repoArg(repo),
		"--base", spec.Base,
		"--head", spec.HeadRef(),
		"--title", spec.Title,
		"--body-file", "-",
	}
	if spec.Draft {
		args = append(args, "--draft")
	}
	if spec.Assignee != "" {
		args = append(args, "--assignee", spec.Assignee)
	}

	out, err := g.exec.ExecuteWithStdin(ctx, spec.Body, g.bin, args...)
	if err != nil {
		lower := strings.ToLower(system.Stderr(err))
		switch {
		case strings.Contains(lower, "no commits between"):
			return nil, fmt.Errorf("create pull request: %w", ErrNoCommitsBetween)
		case strings.Contains(lower, "already exists"):
			return nil, fmt.Errorf("create pull request: %w", ErrAlreadyExists)
		case spec.Assignee != "" && (strings.Contains(lower, "could not assign") || strings.Contains(lower, "assignee")):
			return nil, fmt.Errorf("create pull request: %w: %s", ErrAssigneeInvalid, spec.Assignee)
		}
		return nil, fmt.Errorf("create pull request: %w", err)
	}

	// gh prints the new pull request URL on the last line.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	prURL := strings.TrimSpace(lines[len(lines)-1])
	m := pullNumberRe.FindStringSubmatch(prURL)
	if m == nil {
		return nil, fmt.Errorf("create pull request: unexpected gh output %q", prURL)
	}
	n, _ := strconv.Atoi(m[1])
	return &PullRequest{Number: n, URL: prURL, HeadRef: spec.Head, HeadOwner: spec.HeadOwner, BaseRef: spec.Base}, nil
}

// prNotFound reports whether gh could not find the pull request.
func prNotFound(err error) bool {
	lower := strings.ToLower(system.Stderr(err))
	return httpStatus(err) == 404 ||
		strings.Contains(lower, "could not resolve to a pullrequest") ||
		strings.Contains(lower, "no pull requests found")
}

func (g *GitHub) GetPullRequest(ctx context.Context, repo Repo, number int) (*PullRequest, error) {
	out, err := g.exec.Execute(ctx, g.bin, "pr", "view", strconv.Itoa(number), "--repo", g.repoArg(repo), "--json", ghPRFields)
	if err != nil {
		if prNotFound(err) {
			return nil, fmt.Errorf("pull request #%d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("pull request #%d: %w", number, err)
	}
	var pr ghPR
	if err := decode("view pull request", out, &pr); err != nil {
		return nil, err
	}
	return pr.pullRequest(), nil
}

func (g *GitHub) FindPullRequest(ctx context.Context, repo Repo, headOwner, head string) (*PullRequest, error) {
	out, err := g.exec.Execute(ctx, g.bin, "pr", "list", "--repo", g.repoArg(repo), "--head", head, "--state", "open", "--json", ghPRFields)
	if err != nil {
		return nil, fmt.Errorf("list pull requests for %s: %w", head, err)
	}
	var prs []ghPR
	if err := decode("list pull requests", out, &prs); err != nil {
		return nil, err
	}
	for i := range prs {
		if headOwner == "" || strings.EqualFold(prs[i].HeadRepositoryOwner.Login, headOwner) {
			return prs[i].pullRequest(), nil
		}
	}
	return nil, fmt.Errorf("pull request for %s: %w", head, ErrNotFound)
}

func (g *GitHub) LinkedIssues(ctx context.Context, repo Repo, number int) ([]IssueRef, error) {
	out, err := g.exec.Execute(ctx, g.bin, "pr", "view", strconv.Itoa(number), "--repo", g.repoArg(repo), "--json", "closingIssuesReferences")
	if err != nil {
		if prNotFound(err) {
			return nil, fmt.Errorf("pull request #%d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("linked issues of #%d: %w", number, err)
	}
	var resp struct {
		ClosingIssuesReferences []struct {
			Number     int       `json:"number"`
			Repository ghRepoRef `json:"repository"`
		} `json:"closingIssuesReferences"`
	}
	if err := decode("linked issues", out, &resp); err != nil {
		return nil, err
	}
	refs := make([]IssueRef, 0, len(resp.ClosingIssuesReferences))
	for _, r := range resp.ClosingIssuesReferences {
		refs = append(refs, IssueRef{Repo: r.Repository.repo(), Number: r.Number})
	}
	return refs, nil
}

func (g *GitHub) PostIssueComment(ctx context.Context, repo Repo, issue int, body string) error {
	if _, err := g.exec.ExecuteWithStdin(ctx, body, g.bin, "issue", "comment", strconv.Itoa(issue), "--repo", g.repoArg(repo), "--body-file", "-"); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", issue, err)
	}
	return nil
}

func (g *GitHub) GetIssue(ctx context.Context, repo Repo, number int) (*Issue, error) {
	out, err := g.exec.Execute(ctx, g.bin, "issue", "view", strconv.Itoa(number), "--repo", g.repoArg(repo), "--json", "number,title,state,url")
	if err != nil {
		if httpStatus(err) == 404 || strings.Contains(strings.ToLower(system.Stderr(err)), "could not resolve to an issue") {
			return nil, fmt.Errorf("issue #%d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("issue #%d: %w", number, err)
	}
	var is Issue
	if err := decode("view issue", out, &is); err != nil {
		return nil, err
	}
	return &is, nil
}

var _ Provider = (*GitHub)(nil)
