package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
)

type state struct {
	ran []string
}

func step(name string, err error) Step[state] {
	return Step[state]{
		Name: name,
		Run: func(ctx context.Context, s *state) error {
			s.ran = append(s.ran, name)
			return err
		},
	}
}

func TestRun_ShortCircuits(t *testing.T) {
	boom := ferrors.SyncTimeout("main", "b", 5)
	var events []Event
	s := &state{}

	err := Run(context.Background(), s, []Step[state]{
		step("a", nil),
		step("b", boom),
		step("c", nil),
	}, func(e Event) { events = append(events, e) })

	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, s.ran)
	assert.Equal(t, "b", StageOf(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ferrors.ExitSyncTimeout, ferrors.GetExitCode(err), "exit code survives the stage wrapper")

	var statuses []Status
	for _, e := range events {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []Status{StatusStarted, StatusSucceeded, StatusStarted, StatusFailed}, statuses)
}

func TestRun_Skip(t *testing.T) {
	s := &state{}
	skipped := step("skipped", errors.New("must not run"))
	skipped.Skip = func(*state) bool { return true }

	err := Run(context.Background(), s, []Step[state]{step("a", nil), skipped, step("c", nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, s.ran)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &state{}

	err := Run(ctx, s, []Step[state]{step("a", nil)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.ran)
}

func TestStageOf_Plain(t *testing.T) {
	assert.Equal(t, "", StageOf(errors.New("x")))
}
