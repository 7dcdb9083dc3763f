package worktreeinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitions(t *testing.T) {
	step := StepPending
	for _, want := range []Step{
		StepValidating, StepCheckingBranch, StepCreatingWorktree, StepSyncing, StepReady,
	} {
		next, err := ApplyTransition(step, EventAdvance)
		require.NoError(t, err)
		assert.Equal(t, want, next)
		step = next
	}
	assert.True(t, step.Terminal())
}

func TestAnyActiveStepCanFailOrCancel(t *testing.T) {
	for _, step := range []Step{
		StepPending, StepValidating, StepCheckingBranch, StepCreatingWorktree, StepSyncing,
	} {
		next, err := ApplyTransition(step, EventFail)
		require.NoError(t, err, step)
		assert.Equal(t, StepFailed, next)

		next, err = ApplyTransition(step, EventCancel)
		require.NoError(t, err, step)
		assert.Equal(t, StepCancelled, next)
	}
}

func TestTerminalStepsRejectAdvance(t *testing.T) {
	for _, step := range []Step{StepReady, StepFailed, StepCancelled} {
		_, err := ApplyTransition(step, EventAdvance)
		assert.Error(t, err, step)
	}
}

func TestOnlyFailedIsRetryable(t *testing.T) {
	next, err := ApplyTransition(StepFailed, EventRetry)
	require.NoError(t, err)
	assert.Equal(t, StepPending, next)

	for _, step := range []Step{StepReady, StepCancelled, StepPending, StepSyncing} {
		_, err := ApplyTransition(step, EventRetry)
		assert.Error(t, err, step)
	}
}

func TestCancellableSteps(t *testing.T) {
	assert.True(t, StepPending.Cancellable())
	assert.True(t, StepValidating.Cancellable())
	assert.True(t, StepCheckingBranch.Cancellable())
	assert.False(t, StepCreatingWorktree.Cancellable())
	assert.False(t, StepSyncing.Cancellable())
	assert.False(t, StepReady.Cancellable())
}
