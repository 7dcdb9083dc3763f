// Package worktreeinit runs background jobs that provision git worktrees:
// validate the repository, check the branch, create the worktree, then
// reconcile the result into the project's tracked worktree list, reporting
// step-by-step progress along the way.
package worktreeinit

import "fmt"

// Step is the lifecycle state of a worktree init job.
type Step string

const (
	StepPending          Step = "pending"
	StepValidating       Step = "validating"
	StepCheckingBranch   Step = "checking_branch"
	StepCreatingWorktree Step = "creating_worktree"
	StepSyncing          Step = "syncing"
	StepReady            Step = "ready"
	StepFailed           Step = "failed"
	StepCancelled        Step = "cancelled"
)

// Terminal reports whether the job has finished, successfully or not.
func (s Step) Terminal() bool {
	switch s {
	case StepReady, StepFailed, StepCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request is honored in this step.
// Creation and syncing are destructive-side-effect steps: once the worktree
// is being written, cancel waits for the step boundary (where rollback is
// possible) instead of interrupting mid-operation.
func (s Step) Cancellable() bool {
	switch s {
	case StepPending, StepValidating, StepCheckingBranch:
		return true
	}
	return false
}

// Event is a job transition trigger.
type Event string

const (
	EventAdvance Event = "advance"
	EventFail    Event = "fail"
	EventCancel  Event = "cancel"
	EventRetry   Event = "retry"
)

// transitionTable defines all valid step transitions.
// Key: current step → event → new step.
var transitionTable = map[Step]map[Event]Step{
	StepPending: {
		EventAdvance: StepValidating,
		EventFail:    StepFailed,
		EventCancel:  StepCancelled,
	},
	StepValidating: {
		EventAdvance: StepCheckingBranch,
		EventFail:    StepFailed,
		EventCancel:  StepCancelled,
	},
	StepCheckingBranch: {
		EventAdvance: StepCreatingWorktree,
		EventFail:    StepFailed,
		EventCancel:  StepCancelled,
	},
	StepCreatingWorktree: {
		EventAdvance: StepSyncing,
		EventFail:    StepFailed,
		EventCancel:  StepCancelled,
	},
	StepSyncing: {
		EventAdvance: StepReady,
		EventFail:    StepFailed,
		EventCancel:  StepCancelled,
	},
	StepFailed: {
		EventRetry: StepPending,
	},
}

// ApplyTransition returns the new step for the given current step and event.
// Returns an error if the transition is not valid.
func ApplyTransition(current Step, event Event) (Step, error) {
	events, ok := transitionTable[current]
	if !ok {
		return "", fmt.Errorf("no transitions defined for step %q", current)
	}
	next, ok := events[event]
	if !ok {
		return "", fmt.Errorf("invalid transition: %q + %q", current, event)
	}
	return next, nil
}
