package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/pipeline"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/publish"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/testutil"
)

const runID = "run1"

var (
	target = forge.Repo{Owner: "octo", Name: "app"}
	fork   = forge.Repo{Owner: testutil.User, Name: "app"}
	issue  = forge.IssueRef{Repo: target, Number: 7}
)

func newEnv(t *testing.T) *testutil.TestEnv {
	t.Helper()
	env := testutil.NewTestEnv(t)
	t.Cleanup(env.Cleanup)
	env.AddIssue(7, "Crash on start")
	return env
}

func run(t *testing.T, env *testutil.TestEnv, target pipeline.Target) (*pipeline.Result, error) {
	t.Helper()
	p, err := env.App.Pipeline(pipeline.WithRunIDs(func() string { return runID }))
	require.NoError(t, err)
	return p.Run(context.Background(), target)
}

func events(t *testing.T, env *testutil.TestEnv) []audit.Event {
	t.Helper()
	evs, err := env.App.Audit().Events(runID)
	require.NoError(t, err)
	return evs
}

func stageStatus(evs []audit.Event, stage string) audit.EventType {
	var last audit.EventType
	for _, e := range evs {
		if e.Stage == stage {
			last = e.Type
		}
	}
	return last
}

func TestRun_ThroughFork(t *testing.T) {
	env := newEnv(t)
	env.AddUpstream(target, false)
	env.AddForkRemote(target, fork)

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.NoError(t, err)

	require.NotNil(t, res.Fork)
	assert.Equal(t, fork, *res.Fork)
	assert.True(t, naming.IsValidBranchName(res.Branch), "branch %q", res.Branch)
	assert.Equal(t, publish.StateLinked, res.Publish.State)
	assert.True(t, res.WorkspaceRemoved)
	assert.Empty(t, env.WorkspaceDirs())
	assert.Empty(t, res.FailedStage)

	pr := env.Provider.PullRequests[res.Publish.PullRequest.Number]
	assert.Equal(t, testutil.User, pr.HeadOwner)
	assert.Equal(t, res.Branch, pr.HeadRef)
	assert.Equal(t, "Fix #7: Crash on start", pr.Title)
	assert.Equal(t, 1, env.Provider.Calls("CreateFork"))

	evs := events(t, env)
	require.NotEmpty(t, evs)
	assert.Equal(t, audit.EventRunStart, evs[0].Type)
	assert.Equal(t, audit.EventRunEnd, evs[len(evs)-1].Type)
	assert.Equal(t, pr.URL, evs[len(evs)-1].Details)
	for _, s := range []string{pipeline.StageForkCheck, pipeline.StageFork, pipeline.StageSync, pipeline.StageBranch, pipeline.StagePublish, "publish/verifying"} {
		assert.Equal(t, audit.EventStageSuccess, stageStatus(evs, s), s)
	}
	assert.Equal(t, audit.EventStageSkipped, stageStatus(evs, pipeline.StageAgent))
}

func TestRun_DirectPushSkipsForkStages(t *testing.T) {
	env := newEnv(t)
	env.AddUpstream(target, true)

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.NoError(t, err)

	assert.Nil(t, res.Fork)
	assert.Zero(t, env.Provider.Calls("CreateFork"))
	assert.Zero(t, env.Provider.Calls("ListForks"))
	assert.Empty(t, env.Provider.PullRequests[res.Publish.PullRequest.Number].HeadOwner)

	evs := events(t, env)
	for _, s := range []string{pipeline.StageForkCheck, pipeline.StageFork, pipeline.StageSync} {
		assert.Equal(t, audit.EventStageSkipped, stageStatus(evs, s), s)
	}
}

func TestRun_ForkModes(t *testing.T) {
	t.Run("always forks even with push access", func(t *testing.T) {
		env := newEnv(t)
		env.Config.Fork.Mode = config.ForkAlways
		env.AddUpstream(target, true)
		env.AddForkRemote(target, fork)

		res, err := run(t, env, pipeline.Target{Issue: issue})
		require.NoError(t, err)
		require.NotNil(t, res.Fork)
		assert.Equal(t, fork, *res.Fork)
	})

	t.Run("never refuses without push access", func(t *testing.T) {
		env := newEnv(t)
		env.Config.Fork.Mode = config.ForkNever
		env.AddUpstream(target, false)

		res, err := run(t, env, pipeline.Target{Issue: issue})
		require.Error(t, err)
		assert.Equal(t, errors.KindPermissionDenied, errors.KindOf(err))
		assert.Equal(t, pipeline.StageResolve, res.FailedStage)
		assert.Nil(t, res.Workspace)
		assert.Zero(t, env.Provider.Calls("CreateFork"))
	})
}

func TestRun_ForkConflictIsFatal(t *testing.T) {
	env := newEnv(t)
	root := target
	other := forge.Repo{Owner: "other", Name: "app"}
	env.AddUpstream(root, false)
	env.Provider.AddFork(root, other)
	env.Provider.AddFork(root, forge.Repo{Owner: testutil.User, Name: "app"})

	res, err := run(t, env, pipeline.Target{Issue: forge.IssueRef{Repo: other, Number: 7}})
	require.Error(t, err)
	assert.Equal(t, errors.ExitForkConflict, errors.GetExitCode(err))
	assert.Equal(t, pipeline.StageForkCheck, res.FailedStage)
	assert.Zero(t, env.Provider.Calls("CreateFork"))
	assert.Empty(t, env.WorkspaceDirs())
}

func TestRun_SyncTimeoutKeepsWorkspace(t *testing.T) {
	env := newEnv(t)
	env.AddUpstream(target, false)
	env.AddForkRemote(target, fork)
	env.Provider.CompareResults = []forge.Comparison{{Status: "identical"}}

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.Error(t, err)
	assert.Equal(t, errors.ExitSyncTimeout, errors.GetExitCode(err))
	assert.Equal(t, pipeline.StagePublish, res.FailedStage)
	assert.Equal(t, publish.StateSyncing, res.Publish.State)
	assert.Zero(t, env.Provider.Calls("CreatePullRequest"))

	assert.False(t, res.WorkspaceRemoved)
	_, statErr := os.Stat(res.Workspace.Path)
	assert.NoError(t, statErr)

	evs := events(t, env)
	end := evs[len(evs)-1]
	assert.Equal(t, audit.EventRunEnd, end.Type)
	assert.Equal(t, errors.KindSyncTimeout, end.Kind)
	assert.Equal(t, pipeline.StagePublish, end.Stage)
}

func TestRun_Agent(t *testing.T) {
	env := newEnv(t)
	env.Config.Agent.Command = "fixer --issue 7"
	env.AddUpstream(target, false)
	env.AddForkRemote(target, fork)

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.NoError(t, err)

	cmd, ok := env.Executor.LastCommand()
	require.True(t, ok)
	assert.Equal(t, "fixer --issue 7", cmd.Line())
	assert.Equal(t, res.Workspace.Path, cmd.Dir)
	assert.Contains(t, cmd.Env, "FORAGE_PR_BRANCH="+res.Branch)
	assert.Contains(t, cmd.Env, "FORAGE_PR_FORK=me/app")
}

func TestRun_AgentFailureAborts(t *testing.T) {
	env := newEnv(t)
	env.Config.Agent.Command = "fixer"
	env.Executor.InteractiveErr = fmt.Errorf("exit status 1")
	env.AddUpstream(target, false)
	env.AddForkRemote(target, fork)

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.Error(t, err)
	assert.Equal(t, errors.KindAgent, errors.KindOf(err))
	assert.Equal(t, pipeline.StageAgent, res.FailedStage)
	assert.Nil(t, res.Publish)
	assert.Zero(t, env.Provider.Calls("CreatePullRequest"))
	assert.Len(t, env.WorkspaceDirs(), 1)
}

func TestRun_KeepWorkspace(t *testing.T) {
	env := newEnv(t)
	env.Config.Workspace.Keep = true
	env.AddUpstream(target, true)

	res, err := run(t, env, pipeline.Target{Issue: issue})
	require.NoError(t, err)
	assert.False(t, res.WorkspaceRemoved)
	assert.Equal(t, []string{res.Workspace.Name}, env.WorkspaceDirs())
}

func TestRun_ContinueExistingBranch(t *testing.T) {
	const existing = "issue-7-0123456789ab"
	env := newEnv(t)
	env.AddUpstream(target, false)
	env.AddForkRemote(target, fork)
	env.VCS.AdvanceRemote(env.URL(fork), existing)

	res, err := run(t, env, pipeline.Target{Issue: issue, Branch: existing})
	require.NoError(t, err)
	assert.Equal(t, existing, res.Branch)
	assert.Empty(t, env.VCS.Calls("CreateBranch"))
	assert.Equal(t, existing, env.Provider.PullRequests[res.Publish.PullRequest.Number].HeadRef)
}

// unsteadyForge fails the first fail[method] calls of the lookups resolve
// makes with err, then defers to the wrapped forge.
type unsteadyForge struct {
	*forge.MockProvider
	err   error
	fail  map[string]int
	calls map[string]int
}

func (u *unsteadyForge) trip(method string) error {
	u.calls[method]++
	if u.fail[method] > 0 {
		u.fail[method]--
		return fmt.Errorf("%s: %w", method, u.err)
	}
	return nil
}

func (u *unsteadyForge) CurrentUser(ctx context.Context) (string, error) {
	if err := u.trip("CurrentUser"); err != nil {
		return "", err
	}
	return u.MockProvider.CurrentUser(ctx)
}

func (u *unsteadyForge) RepositoryMeta(ctx context.Context, repo forge.Repo) (*forge.RepoMeta, error) {
	if err := u.trip("RepositoryMeta"); err != nil {
		return nil, err
	}
	return u.MockProvider.RepositoryMeta(ctx, repo)
}

func runUnsteady(t *testing.T, env *testutil.TestEnv, u *unsteadyForge) (*pipeline.Result, error) {
	t.Helper()
	p := pipeline.New(u, env.VCS, env.App.Runner, env.Config, env.Paths.WorkspaceRoot(env.Config),
		pipeline.WithAudit(env.App.Audit()),
		pipeline.WithRunIDs(func() string { return runID }))
	return p.Run(context.Background(), pipeline.Target{Issue: issue})
}

func TestRun_ResolveRetriesTransientFailures(t *testing.T) {
	for _, method := range []string{"CurrentUser", "RepositoryMeta"} {
		t.Run(method, func(t *testing.T) {
			env := newEnv(t)
			env.AddUpstream(target, true)
			u := &unsteadyForge{
				MockProvider: env.Provider,
				err:          fmt.Errorf("HTTP 502 Bad Gateway"),
				fail:         map[string]int{method: 2},
				calls:        map[string]int{},
			}

			res, err := runUnsteady(t, env, u)
			require.NoError(t, err)
			assert.Equal(t, publish.StateLinked, res.Publish.State)
			assert.Equal(t, 3, u.calls[method])
			delays := env.Timer.Delays()
			require.GreaterOrEqual(t, len(delays), 2)
			assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays[:2])
		})
	}
}

func TestRun_ResolveGivesUpAfterPolicy(t *testing.T) {
	env := newEnv(t)
	env.AddUpstream(target, true)
	u := &unsteadyForge{
		MockProvider: env.Provider,
		err:          fmt.Errorf("HTTP 503"),
		fail:         map[string]int{"RepositoryMeta": 100},
		calls:        map[string]int{},
	}

	res, err := runUnsteady(t, env, u)
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
	assert.Equal(t, pipeline.StageResolve, res.FailedStage)
	assert.Equal(t, env.Config.Retry.ForkAttempts, u.calls["RepositoryMeta"])
	assert.Contains(t, err.Error(), fmt.Sprintf("after %d attempts", env.Config.Retry.ForkAttempts))
	assert.Contains(t, errors.GetRemediation(err), "gh repo view octo/app")
}

func TestRun_ResolvePermissionIsNotRetried(t *testing.T) {
	env := newEnv(t)
	env.AddUpstream(target, true)
	u := &unsteadyForge{
		MockProvider: env.Provider,
		err:          forge.ErrPermission,
		fail:         map[string]int{"CurrentUser": 100},
		calls:        map[string]int{},
	}

	_, err := runUnsteady(t, env, u)
	require.Error(t, err)
	assert.Equal(t, errors.KindPermissionDenied, errors.KindOf(err))
	assert.Equal(t, 1, u.calls["CurrentUser"])
	assert.Contains(t, errors.GetRemediation(err), "gh auth status")
}

func TestRun_FatalErrorsCarryRemediation(t *testing.T) {
	other := forge.Repo{Owner: "other", Name: "app"}

	tests := []struct {
		name  string
		setup func(env *testutil.TestEnv) forge.IssueRef
		kind  errors.Kind
	}{
		{"fork conflict", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, false)
			env.Provider.AddFork(target, other)
			env.Provider.AddFork(target, fork)
			return forge.IssueRef{Repo: other, Number: 7}
		}, errors.KindForkConflict},
		{"fork creation exhausted", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, false)
			env.Provider.SetError("CreateFork", fmt.Errorf("HTTP 502"))
			return issue
		}, errors.KindTransient},
		{"no push access", func(env *testutil.TestEnv) forge.IssueRef {
			env.Config.Fork.Mode = config.ForkNever
			env.AddUpstream(target, false)
			return issue
		}, errors.KindPermissionDenied},
		{"empty source", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, false).Empty = true
			env.Provider.SetError("CreateFileContent", fmt.Errorf("HTTP 403: %w", forge.ErrPermission))
			return issue
		}, errors.KindEmptyRepository},
		{"diverged fork", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, false)
			env.AddForkRemote(target, fork)
			env.VCS.RewriteRemote(env.URL(target), "main")
			return issue
		}, errors.KindHistoryDivergence},
		{"clone", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.VCS.SetError("Clone", fmt.Errorf("fatal: could not read from remote repository"))
			return issue
		}, errors.KindClone},
		{"branch", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.VCS.SetError("CreateBranch", fmt.Errorf("fatal: not a valid object name"))
			return issue
		}, errors.KindBranch},
		{"agent", func(env *testutil.TestEnv) forge.IssueRef {
			env.Config.Agent.Command = "fixer"
			env.Executor.InteractiveErr = fmt.Errorf("exit status 1")
			env.AddUpstream(target, true)
			return issue
		}, errors.KindAgent},
		{"marker ignored", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.VCS.Ignored = map[string]bool{
				env.Config.PullRequest.MarkerFile:      true,
				env.Config.PullRequest.PlaceholderFile: true,
			}
			return issue
		}, errors.KindPathIgnored},
		{"pushed branch mismatch", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.Provider.RemoteBranches = func(forge.Repo, string) string { return "ffffffffffffffffffffffffffffffffffffffff" }
			return issue
		}, errors.KindVerification},
		{"sync timeout", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.Provider.CompareResults = []forge.Comparison{{Status: "identical"}}
			return issue
		}, errors.KindSyncTimeout},
		{"no commits between", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.Provider.CreatePRErrors = []error{fmt.Errorf("create: %w", forge.ErrNoCommitsBetween)}
			return issue
		}, errors.KindNoCommits},
		{"pull request creation", func(env *testutil.TestEnv) forge.IssueRef {
			env.AddUpstream(target, true)
			env.Provider.CreatePRErrors = []error{fmt.Errorf("HTTP 502")}
			return issue
		}, errors.KindPullRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			ref := tt.setup(env)

			_, err := run(t, env, pipeline.Target{Issue: ref})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.NotEmpty(t, errors.GetRemediation(err), "%v", err)
		})
	}
}
