package worktreeinit

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/project"
	"github.com/kastheco/haven/session/git"
)

func TestMain(m *testing.M) {
	log.Initialize(false)
	code := m.Run()
	log.Close()
	os.Exit(code)
}

func initTestRepo(t *testing.T) string {
	t.Helper()

	repo := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", append([]string{"-C", repo}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("init\n"), 0644))

	cmd := exec.Command("git", "-C", repo, "add", ".")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git add: %s", out)

	cmd = exec.Command("git", "-C", repo, "commit", "-m", "initial")
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "git commit: %s", out)

	return repo
}

func newTestManager(t *testing.T) (*Manager, *project.SQLiteStore) {
	t.Helper()
	store, err := project.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(git.NewClient(), store, NewSetupRunner("/bin/sh")), store
}

func waitTerminal(t *testing.T, m *Manager, jobID string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = m.Job(jobID)
		return ok && job.Step.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return job
}

func TestStartValidatesInputs(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Start(Request{Branch: "x"})
	assert.Error(t, err)
	_, err = m.Start(Request{ProjectPath: "/tmp"})
	assert.Error(t, err)
}

func TestJobCreatesBranchAndWorktree(t *testing.T) {
	repo := initTestRepo(t)
	m, store := newTestManager(t)
	require.NoError(t, store.Upsert(project.Project{ID: "p1", Name: "repo", Path: repo}))

	jobID, err := m.Start(Request{
		ProjectID:    "p1",
		ProjectPath:  repo,
		Branch:       "feature/new",
		CreateBranch: true,
	})
	require.NoError(t, err)

	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepReady, job.Step, "message: %s error: %s", job.Message, job.Err)
	assert.Equal(t, filepath.Join(repo, ".worktrees", "feature-new"), job.WorktreePath)

	_, statErr := os.Stat(job.WorktreePath)
	assert.NoError(t, statErr)

	worktrees, err := store.Worktrees("p1")
	require.NoError(t, err)
	require.Len(t, worktrees, 1)
	assert.Equal(t, "feature/new", worktrees[0].Branch)
}

func TestJobHonorsConfiguredWorktreeDir(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)
	m.WorktreeDir = ".wt"

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/alt", CreateBranch: true})
	require.NoError(t, err)

	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepReady, job.Step, "message: %s error: %s", job.Message, job.Err)
	assert.Equal(t, filepath.Join(repo, ".wt", "feature-alt"), job.WorktreePath)

	_, statErr := os.Stat(job.WorktreePath)
	assert.NoError(t, statErr)
}

func TestJobExistingBranch(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	cmd := exec.Command("git", "-C", repo, "branch", "existing")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git branch: %s", out)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "existing"})
	require.NoError(t, err)

	job := waitTerminal(t, m, jobID)
	assert.Equal(t, StepReady, job.Step, "message: %s error: %s", job.Message, job.Err)
}

func TestJobFailsWhenNotARepo(t *testing.T) {
	m, _ := newTestManager(t)

	jobID, err := m.Start(Request{ProjectPath: t.TempDir(), Branch: "x", CreateBranch: true})
	require.NoError(t, err)

	job := waitTerminal(t, m, jobID)
	assert.Equal(t, StepFailed, job.Step)
	assert.Contains(t, job.Err, "not a git repository")
}

func TestJobFailsOnBranchConflict(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	// createBranch=true with an existing branch fails.
	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "main", CreateBranch: true, TargetPath: filepath.Join(repo, ".worktrees", "m1")})
	require.NoError(t, err)
	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepFailed, job.Step)
	assert.Contains(t, job.Err, "already exists")

	// createBranch=false with a missing branch fails.
	jobID, err = m.Start(Request{ProjectPath: repo, Branch: "ghost"})
	require.NoError(t, err)
	job = waitTerminal(t, m, jobID)
	require.Equal(t, StepFailed, job.Step)
	assert.Contains(t, job.Err, "does not exist")
}

func TestJobFailsOnNonEmptyTarget(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	target := git.WorktreePath(repo, "occupied")
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "junk"), []byte("x"), 0644))

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "occupied", CreateBranch: true})
	require.NoError(t, err)

	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepFailed, job.Step)
	assert.Contains(t, job.Err, "not empty")
}

func TestSecondJobForSamePathRejected(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/dup", CreateBranch: true})
	require.NoError(t, err)

	// While the first is active, the same target is rejected, regardless of
	// how the path is spelled.
	_, err = m.Start(Request{
		ProjectPath:  repo,
		Branch:       "other",
		CreateBranch: true,
		TargetPath:   filepath.Join(repo, ".", ".worktrees", "feature-dup"),
	})
	if err == nil {
		// The first job may already have finished on a fast machine; then
		// the second start is legitimate.
		job := waitTerminal(t, m, jobID)
		assert.True(t, job.Step.Terminal())
		return
	}
	assert.Contains(t, err.Error(), "already running")
	waitTerminal(t, m, jobID)
}

func TestRetryAfterFailure(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	// Fail once: branch missing with createBranch=false.
	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "late-branch"})
	require.NoError(t, err)
	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepFailed, job.Step)

	// Create the branch, then retry the same job.
	cmd := exec.Command("git", "-C", repo, "branch", "late-branch")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git branch: %s", out)

	require.NoError(t, m.Retry(jobID))
	job = waitTerminal(t, m, jobID)
	assert.Equal(t, StepReady, job.Step, "message: %s error: %s", job.Message, job.Err)
	assert.Empty(t, job.Err)
}

func TestRetryRejectsUnfinishedAndSucceeded(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/ok", CreateBranch: true})
	require.NoError(t, err)
	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepReady, job.Step)

	assert.Error(t, m.Retry(jobID))
	assert.Error(t, m.Retry("nonexistent"))
}

func TestCancelBeforeStart(t *testing.T) {
	repo := initTestRepo(t)
	store, err := project.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// A slow setup phase is irrelevant here; cancel a job that hasn't begun
	// by marking it cancelled before its goroutine gets scheduled.
	m := NewManager(git.NewClient(), store, nil)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/c", CreateBranch: true})
	require.NoError(t, err)
	_ = m.Cancel(jobID) // may race a fast completion; either way job terminates

	job := waitTerminal(t, m, jobID)
	assert.True(t, job.Step == StepCancelled || job.Step == StepReady)
	if job.Step == StepCancelled {
		_, statErr := os.Stat(job.WorktreePath)
		assert.True(t, os.IsNotExist(statErr), "cancelled job must leave no worktree behind")
	}
}

func TestCancelFinishedJobRejected(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/done", CreateBranch: true})
	require.NoError(t, err)
	waitTerminal(t, m, jobID)

	assert.Error(t, m.Cancel(jobID))
}

func TestSubscribeSeesStepProgression(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	ch, cancel := m.Subscribe()
	defer cancel()

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/sub", CreateBranch: true})
	require.NoError(t, err)
	waitTerminal(t, m, jobID)

	var steps []Step
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case p := <-ch:
			steps = append(steps, p.Step)
			if p.Step.Terminal() {
				break collect
			}
		case <-deadline:
			break collect
		}
	}

	require.NotEmpty(t, steps)
	assert.Equal(t, StepReady, steps[len(steps)-1])
	assert.Contains(t, steps, StepValidating)
	assert.Contains(t, steps, StepCreatingWorktree)
}

func TestDiagnosticsDump(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/diag", CreateBranch: true})
	require.NoError(t, err)
	waitTerminal(t, m, jobID)

	dump, err := m.Diagnostics(jobID)
	require.NoError(t, err)

	var parsed struct {
		Job     Job        `json:"job"`
		History []Progress `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(dump), &parsed))
	assert.Equal(t, jobID, parsed.Job.ID)
	require.NotEmpty(t, parsed.History)
	for _, p := range parsed.History {
		assert.False(t, p.At.IsZero())
	}

	_, err = m.Diagnostics("nope")
	assert.Error(t, err)
}

func TestJobsFilterAndOrder(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	a, err := m.Start(Request{ProjectID: "p1", ProjectPath: repo, Branch: "feature/a", CreateBranch: true})
	require.NoError(t, err)
	waitTerminal(t, m, a)
	b, err := m.Start(Request{ProjectID: "p2", ProjectPath: repo, Branch: "feature/b", CreateBranch: true})
	require.NoError(t, err)
	waitTerminal(t, m, b)

	assert.Len(t, m.Jobs("p1"), 1)
	assert.Len(t, m.Jobs("p2"), 1)
	all := m.Jobs("")
	require.Len(t, all, 2)
	assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt))
}

func TestSetupCommandsRunInWorktree(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	havenDir := filepath.Join(repo, ".haven")
	require.NoError(t, os.MkdirAll(havenDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(havenDir, "setup.toml"),
		[]byte("setup = [\"touch setup-ran\"]\n"),
		0644,
	))

	// Commit so the worktree is created from a clean HEAD; the .haven dir is
	// copied over by the setup runner regardless.
	cmd := exec.Command("git", "-C", repo, "add", ".")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git add: %s", out)
	cmd = exec.Command("git", "-C", repo, "commit", "-m", "setup config")
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "git commit: %s", out)

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/setup", CreateBranch: true})
	require.NoError(t, err)
	job := waitTerminal(t, m, jobID)
	require.Equal(t, StepReady, job.Step, "message: %s error: %s", job.Message, job.Err)
	assert.Empty(t, job.Warnings)

	_, statErr := os.Stat(filepath.Join(job.WorktreePath, "setup-ran"))
	assert.NoError(t, statErr, "setup command must run inside the worktree")
}

func TestSetupFailureIsWarningNotError(t *testing.T) {
	repo := initTestRepo(t)
	m, _ := newTestManager(t)

	havenDir := filepath.Join(repo, ".haven")
	require.NoError(t, os.MkdirAll(havenDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(havenDir, "setup.toml"),
		[]byte("setup = [\"exit 3\"]\n"),
		0644,
	))

	jobID, err := m.Start(Request{ProjectPath: repo, Branch: "feature/warn", CreateBranch: true})
	require.NoError(t, err)
	job := waitTerminal(t, m, jobID)

	require.Equal(t, StepReady, job.Step, "setup failure must not fail the job")
	require.NotEmpty(t, job.Warnings)
	assert.True(t, strings.Contains(job.Warnings[0], "setup command failed"))
}
