package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

func ghErr(stderr string) error {
	return &system.CommandError{Name: "gh", Stderr: stderr, Err: errors.New("exit status 1")}
}

func newTestGitHub() (*GitHub, *system.MockExecutor) {
	mock := system.NewMockExecutor()
	return NewGitHub(mock, "gh", ""), mock
}

func TestGitHub_RepositoryMeta(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api repos/me/app", []byte(`{
		"name": "app", "owner": {"login": "me"}, "fork": true,
		"parent": {"name": "app", "owner": {"login": "mid"}},
		"source": {"name": "app", "owner": {"login": "octo"}},
		"default_branch": "trunk", "permissions": {"push": true}
	}`), nil)

	meta, err := gh.RepositoryMeta(context.Background(), Repo{"me", "app"})
	require.NoError(t, err)

	assert.Equal(t, Repo{"me", "app"}, meta.Repo)
	assert.True(t, meta.IsFork)
	require.NotNil(t, meta.Source)
	assert.Equal(t, Repo{"octo", "app"}, *meta.Source)
	require.NotNil(t, meta.Parent)
	assert.Equal(t, Repo{"mid", "app"}, *meta.Parent)
	assert.Equal(t, "trunk", meta.DefaultBranch)
	assert.True(t, meta.CanPush)
}

func TestGitHub_RepositoryMeta_NotFound(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api repos/me/app", nil, ghErr("gh: Not Found (HTTP 404)"))

	_, err := gh.RepositoryMeta(context.Background(), Repo{"me", "app"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_ListForks_Paginates(t *testing.T) {
	gh, mock := newTestGitHub()

	page := func(owners ...string) []byte {
		var refs []map[string]any
		for _, o := range owners {
			refs = append(refs, map[string]any{"name": "app", "owner": map[string]string{"login": o}})
		}
		out, _ := json.Marshal(refs)
		return out
	}
	full := make([]string, forksPerPage)
	for i := range full {
		full[i] = fmt.Sprintf("user%d", i)
	}
	mock.AddResponse("gh api repos/octo/app/forks?per_page=100&page=1", page(full...), nil)
	mock.AddResponse("gh api repos/octo/app/forks?per_page=100&page=2", page("me"), nil)

	forks, err := gh.ListForks(context.Background(), Repo{"octo", "app"})
	require.NoError(t, err)

	assert.Len(t, forks, forksPerPage+1)
	assert.Equal(t, Repo{"me", "app"}, forks[len(forks)-1])
	assert.Len(t, mock.CommandsMatching("gh api repos/octo/app/forks"), 2)
}

func TestGitHub_CurrentUser(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api user", []byte(`{"login":"me"}`), nil)

	user, err := gh.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", user)
}

func TestGitHub_CreateFork_Args(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api -X POST repos/octo/app/forks", []byte(`{"name":"octo-app","owner":{"login":"me"}}`), nil)

	out := gh.CreateFork(context.Background(), Repo{"octo", "app"}, ForkOptions{Name: "octo-app", DefaultBranchOnly: true})

	assert.Equal(t, ForkCreated, out.Status)
	assert.Equal(t, Repo{"me", "octo-app"}, out.Fork)

	cmd, ok := mock.LastCommand()
	require.True(t, ok)
	assert.Equal(t, "gh api -X POST repos/octo/app/forks -f name=octo-app -F default_branch_only=true", cmd.Line())
}

func TestGitHub_CreateFork_Classification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		output []byte
		want   ForkStatus
	}{
		{"name taken", ghErr("gh: Name already exists on this account (HTTP 422)"), nil, ForkExists},
		{"empty source", ghErr("gh: The repository exists, but it contains no Git content. Empty repositories cannot be forked. (HTTP 403)"), nil, ForkEmpty},
		{"server error", ghErr("gh: Server Error (HTTP 502)"), nil, ForkTransient},
		{"rate limited", ghErr("gh: API rate limit exceeded (HTTP 429)"), nil, ForkTransient},
		{"network", ghErr("error connecting to api.github.com"), nil, ForkTransient},
		{"forbidden", ghErr("gh: Resource not accessible by integration (HTTP 403)"), nil, ForkPermission},
		{"not found", ghErr("gh: Not Found (HTTP 404)"), nil, ForkPermission},
		{"unreadable success", nil, []byte("not json"), ForkTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh, mock := newTestGitHub()
			mock.AddResponse("gh api -X POST repos/octo/app/forks", tt.output, tt.err)

			out := gh.CreateFork(context.Background(), Repo{"octo", "app"}, ForkOptions{})
			assert.Equal(t, tt.want, out.Status, "reason: %s", out.Reason)
			if tt.err != nil {
				assert.NotEmpty(t, out.Reason)
			}
		})
	}
}

func TestGitHub_Compare(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api repos/octo/app/compare/main...me:issue-1-abcdef012345",
		[]byte(`{"status":"ahead","ahead_by":2,"behind_by":0}`), nil)

	c, err := gh.Compare(context.Background(), Repo{"octo", "app"}, "main", "me:issue-1-abcdef012345")
	require.NoError(t, err)
	assert.Equal(t, &Comparison{Status: "ahead", AheadBy: 2}, c)
}

func TestGitHub_Compare_NotVisible(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh api repos/octo/app/compare/main...me:b", nil, ghErr("gh: Not Found (HTTP 404)"))

	_, err := gh.Compare(context.Background(), Repo{"octo", "app"}, "main", "me:b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_CreateFileContent(t *testing.T) {
	gh, mock := newTestGitHub()

	err := gh.CreateFileContent(context.Background(), Repo{"octo", "app"}, "README.md", []byte("hi"), "Initial commit")
	require.NoError(t, err)

	cmd, _ := mock.LastCommand()
	assert.Equal(t, "gh api -X PUT repos/octo/app/contents/README.md -f message=Initial commit -f content=aGk=", cmd.Line())

	mock.AddResponse("gh api -X PUT repos/octo/app/contents/README.md", nil, ghErr("gh: Not Found (HTTP 404)"))
	err = gh.CreateFileContent(context.Background(), Repo{"octo", "app"}, "README.md", []byte("hi"), "Initial commit")
	assert.ErrorIs(t, err, ErrPermission)
}

func TestGitHub_CreatePullRequest(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh pr create", []byte("Creating draft pull request\nhttps://github.com/octo/app/pull/42\n"), nil)

	pr, err := gh.CreatePullRequest(context.Background(), Repo{"octo", "app"}, PullRequestSpec{
		Base:      "main",
		Head:      "issue-7-abcdef012345",
		HeadOwner: "me",
		Title:     "Fix #7",
		Body:      "Fixes #7",
		Assignee:  "octocat",
		Draft:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "https://github.com/octo/app/pull/42", pr.URL)

	cmd, _ := mock.LastCommand()
	assert.Equal(t, "Fixes #7", cmd.Stdin)
	assert.Contains(t, cmd.Args, "me:issue-7-abcdef012345")
	assert.Contains(t, cmd.Args, "--draft")
	assert.Contains(t, cmd.Args, "--assignee")
	assert.NotContains(t, strings.Join(cmd.Args, " "), "--force")
}

func TestGitHub_CreatePullRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		assignee string
		want     error
	}{
		{"no commits", "pull request create failed: GraphQL: No commits between main and me:b (createPullRequest)", "", ErrNoCommitsBetween},
		{"already exists", `a pull request for branch "b" into branch "main" already exists:`, "", ErrAlreadyExists},
		{"assignee", "could not assign user: 'ghost' not found", "ghost", ErrAssigneeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh, mock := newTestGitHub()
			mock.AddResponse("gh pr create", nil, ghErr(tt.stderr))

			_, err := gh.CreatePullRequest(context.Background(), Repo{"octo", "app"}, PullRequestSpec{Base: "main", Head: "b", Assignee: tt.assignee})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("generic", func(t *testing.T) {
		gh, mock := newTestGitHub()
		mock.AddResponse("gh pr create", nil, ghErr("GraphQL: something broke"))

		_, err := gh.CreatePullRequest(context.Background(), Repo{"octo", "app"}, PullRequestSpec{Base: "main", Head: "b"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAssigneeInvalid)
		assert.NotErrorIs(t, err, ErrNoCommitsBetween)
	})
}

func TestGitHub_GetPullRequest(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh pr view 42", []byte(`{"number":42,"url":"https://github.com/octo/app/pull/42","state":"OPEN","isDraft":true,
		"headRefName":"issue-7-abcdef012345","baseRefName":"main","headRepositoryOwner":{"login":"me"}}`), nil)

	pr, err := gh.GetPullRequest(context.Background(), Repo{"octo", "app"}, 42)
	require.NoError(t, err)
	assert.Equal(t, &PullRequest{
		Number: 42, URL: "https://github.com/octo/app/pull/42", State: "OPEN", IsDraft: true,
		HeadRef: "issue-7-abcdef012345", HeadOwner: "me", BaseRef: "main",
	}, pr)

	mock.AddResponse("gh pr view 43", nil, ghErr("GraphQL: Could not resolve to a PullRequest with the number of 43."))
	_, err = gh.GetPullRequest(context.Background(), Repo{"octo", "app"}, 43)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_FindPullRequest_FiltersOwner(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh pr list", []byte(`[
		{"number":1,"headRefName":"b","headRepositoryOwner":{"login":"someone"}},
		{"number":2,"headRefName":"b","headRepositoryOwner":{"login":"Me"}}
	]`), nil)

	pr, err := gh.FindPullRequest(context.Background(), Repo{"octo", "app"}, "me", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, pr.Number)

	_, err = gh.FindPullRequest(context.Background(), Repo{"octo", "app"}, "nobody", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitHub_LinkedIssues(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh pr view 42", []byte(`{"closingIssuesReferences":[
		{"number":7,"repository":{"name":"app","owner":{"login":"octo"}}}
	]}`), nil)

	refs, err := gh.LinkedIssues(context.Background(), Repo{"octo", "app"}, 42)
	require.NoError(t, err)
	assert.Equal(t, []IssueRef{{Repo: Repo{"octo", "app"}, Number: 7}}, refs)
}

func TestGitHub_GetIssue(t *testing.T) {
	gh, mock := newTestGitHub()
	mock.AddResponse("gh issue view 7", []byte(`{"number":7,"title":"Crash on start","state":"OPEN","url":"https://github.com/octo/app/issues/7"}`), nil)

	is, err := gh.GetIssue(context.Background(), Repo{"octo", "app"}, 7)
	require.NoError(t, err)
	assert.Equal(t, "Crash on start", is.Title)
}

func TestGitHub_EnterpriseHost(t *testing.T) {
	mock := system.NewMockExecutor()
	gh := NewGitHub(mock, "gh", "git.example.com")
	mock.AddResponse("gh api --hostname git.example.com user", []byte(`{"login":"me"}`), nil)

	_, err := gh.CurrentUser(context.Background())
	require.NoError(t, err)

	_ = gh.PostIssueComment(context.Background(), Repo{"octo", "app"}, 7, "hello")
	cmd, _ := mock.LastCommand()
	assert.Contains(t, cmd.Args, "git.example.com/octo/app")
	assert.Equal(t, "hello", cmd.Stdin)
}
