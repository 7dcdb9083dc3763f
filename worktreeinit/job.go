package worktreeinit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/project"
	"github.com/kastheco/haven/session/git"
)

// Request describes one worktree to provision.
type Request struct {
	ProjectID    string
	ProjectPath  string
	Branch       string
	CreateBranch bool
	// TargetPath overrides the default <repo>/.worktrees/<branch> location.
	TargetPath string
}

// Job is a point-in-time view of one provisioning job.
type Job struct {
	ID           string    `json:"jobId"`
	ProjectID    string    `json:"projectId,omitempty"`
	ProjectPath  string    `json:"projectPath"`
	Branch       string    `json:"branch"`
	CreateBranch bool      `json:"createBranch"`
	WorktreePath string    `json:"worktreePath"`
	Step         Step      `json:"step"`
	Message      string    `json:"message"`
	Err          string    `json:"error,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Progress is one published step transition.
type Progress struct {
	JobID   string    `json:"jobId"`
	Step    Step      `json:"step"`
	Message string    `json:"message"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type jobState struct {
	job             Job
	cancelRequested bool
	history         []Progress
}

// Manager runs worktree init jobs, one goroutine each, and fans progress
// out to subscribers. At most one active job may exist per normalized
// target path; a second request for the same path is rejected, not queued.
type Manager struct {
	gitClient *git.Client
	store     project.Store
	setup     *SetupRunner

	// WorktreeDir names the directory under the repo root that worktrees
	// are created in. Empty means git.WorktreeDirName. Set before the first
	// Start call.
	WorktreeDir string

	mu      sync.Mutex
	jobs    map[string]*jobState
	subs    map[int]chan Progress
	nextSub int
}

// NewManager returns a manager syncing results into store. store may be nil
// when no project database is attached; setup may be nil to skip post-create
// setup commands.
func NewManager(gitClient *git.Client, store project.Store, setup *SetupRunner) *Manager {
	return &Manager{
		gitClient: gitClient,
		store:     store,
		setup:     setup,
		jobs:      make(map[string]*jobState),
		subs:      make(map[int]chan Progress),
	}
}

// Start validates the request and launches a job for it, returning the job
// id. It fails synchronously on empty inputs and when another active job
// already targets the same worktree path.
func (m *Manager) Start(req Request) (string, error) {
	if strings.TrimSpace(req.ProjectPath) == "" {
		return "", fmt.Errorf("project path is required")
	}
	if strings.TrimSpace(req.Branch) == "" {
		return "", fmt.Errorf("branch name is required")
	}

	worktreePath := req.TargetPath
	if worktreePath == "" {
		worktreePath = git.WorktreePathIn(req.ProjectPath, m.WorktreeDir, req.Branch)
	}
	normalized := normalizePath(worktreePath)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, js := range m.jobs {
		if !js.job.Step.Terminal() && normalizePath(js.job.WorktreePath) == normalized {
			return "", fmt.Errorf("a worktree job for %s is already running", worktreePath)
		}
	}

	now := time.Now()
	js := &jobState{job: Job{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		ProjectPath:  req.ProjectPath,
		Branch:       req.Branch,
		CreateBranch: req.CreateBranch,
		WorktreePath: worktreePath,
		Step:         StepPending,
		Message:      "queued",
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	m.jobs[js.job.ID] = js

	go m.run(js)
	return js.job.ID, nil
}

// Cancel requests cancellation. In the non-destructive steps the job stops
// at the next boundary; once creation has run, the created worktree is
// rolled back before the job reports cancelled. Finished jobs return an
// error.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	if js.job.Step.Terminal() {
		return fmt.Errorf("job %s already finished (%s)", jobID, js.job.Step)
	}
	js.cancelRequested = true
	return nil
}

// Retry relaunches a failed job with identical parameters.
func (m *Manager) Retry(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	next, err := ApplyTransition(js.job.Step, EventRetry)
	if err != nil {
		return fmt.Errorf("job %s is not retryable: %w", jobID, err)
	}
	js.cancelRequested = false
	js.job.Err = ""
	js.job.Warnings = nil
	m.applyLocked(js, next, "queued", nil)

	go m.run(js)
	return nil
}

// Job returns a snapshot of the job.
func (m *Manager) Job(jobID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return js.job, true
}

// Jobs returns snapshots of every job for the project (all jobs when
// projectID is empty), newest first.
func (m *Manager) Jobs(projectID string) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []Job
	for _, js := range m.jobs {
		if projectID != "" && js.job.ProjectID != projectID {
			continue
		}
		jobs = append(jobs, js.job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Subscribe returns a channel of progress events for all jobs and a cancel
// function. Slow subscribers drop events rather than stalling jobs.
func (m *Manager) Subscribe() (<-chan Progress, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Progress, 64)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
}

// Diagnostics returns a copyable JSON dump of the job and its step history
// with timestamps.
func (m *Manager) Diagnostics(jobID string) (string, error) {
	m.mu.Lock()
	js, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("unknown job %s", jobID)
	}
	dump := struct {
		Job     Job        `json:"job"`
		History []Progress `json:"history"`
	}{js.job, append([]Progress(nil), js.history...)}
	m.mu.Unlock()

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	return string(data), nil
}

// normalizePath makes target paths comparable so "one active job per
// target" can't be dodged with a differently spelled path.
func normalizePath(p string) string {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (m *Manager) run(js *jobState) {
	if m.cancelIfRequested(js) {
		return
	}
	m.advance(js, "validating repository")

	if err := m.validate(js); err != nil {
		m.fail(js, err)
		return
	}
	if m.cancelIfRequested(js) {
		return
	}
	m.advance(js, "checking branch "+js.job.Branch)

	if err := m.checkBranch(js); err != nil {
		m.fail(js, err)
		return
	}
	if m.cancelIfRequested(js) {
		return
	}
	m.advance(js, "creating worktree at "+js.job.WorktreePath)

	if err := m.gitClient.AddWorktree(js.job.ProjectPath, js.job.WorktreePath, js.job.Branch, js.job.CreateBranch); err != nil {
		m.fail(js, err)
		return
	}
	// Past the point of no return: a cancel now must undo the worktree.
	if m.rollbackIfCancelled(js) {
		return
	}
	m.advance(js, "syncing project state")

	if err := m.sync(js); err != nil {
		m.fail(js, err)
		return
	}
	if m.rollbackIfCancelled(js) {
		return
	}
	m.apply(js, StepReady, "worktree ready at "+js.job.WorktreePath, nil)
}

func (m *Manager) validate(js *jobState) error {
	if !git.IsGitRepo(js.job.ProjectPath) {
		return fmt.Errorf("%s is not a git repository", js.job.ProjectPath)
	}
	entries, err := os.ReadDir(js.job.WorktreePath)
	if err == nil && len(entries) > 0 {
		return fmt.Errorf("target path %s already exists and is not empty", js.job.WorktreePath)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to inspect target path: %w", err)
	}
	return nil
}

func (m *Manager) checkBranch(js *jobState) error {
	exists, err := git.BranchExists(js.job.ProjectPath, js.job.Branch)
	if err != nil {
		return err
	}
	if js.job.CreateBranch && exists {
		return fmt.Errorf("branch %s already exists", js.job.Branch)
	}
	if !js.job.CreateBranch && !exists {
		return fmt.Errorf("branch %s does not exist", js.job.Branch)
	}
	return nil
}

func (m *Manager) sync(js *jobState) error {
	if m.store != nil && js.job.ProjectID != "" {
		err := m.store.AddOrUpdateWorktree(project.TrackedWorktree{
			ProjectID: js.job.ProjectID,
			Path:      js.job.WorktreePath,
			Branch:    js.job.Branch,
		})
		if err != nil {
			return fmt.Errorf("failed to record worktree: %w", err)
		}
	}

	// Refresh the live listing so stale administrative entries don't shadow
	// the new worktree.
	if _, err := m.gitClient.ListWorktrees(js.job.ProjectPath); err != nil {
		log.WarningLog.Printf("worktree listing refresh failed for %s: %v", js.job.ProjectPath, err)
	}

	if m.setup != nil {
		warnings := m.setup.Prepare(js.job.ProjectPath, js.job.WorktreePath, js.job.Branch)
		if len(warnings) > 0 {
			m.mu.Lock()
			js.job.Warnings = append(js.job.Warnings, warnings...)
			m.mu.Unlock()
			for _, w := range warnings {
				log.WarningLog.Printf("worktree setup for %s: %s", js.job.WorktreePath, w)
			}
		}
	}
	return nil
}

// cancelIfRequested honors a cancel before any destructive work happened.
func (m *Manager) cancelIfRequested(js *jobState) bool {
	m.mu.Lock()
	requested := js.cancelRequested
	m.mu.Unlock()
	if !requested {
		return false
	}
	m.apply(js, StepCancelled, "cancelled", nil)
	return true
}

// rollbackIfCancelled honors a cancel that arrived after the worktree was
// created: the worktree is removed so cancel never leaves a half-provisioned
// tree behind.
func (m *Manager) rollbackIfCancelled(js *jobState) bool {
	m.mu.Lock()
	requested := js.cancelRequested
	m.mu.Unlock()
	if !requested {
		return false
	}
	if err := m.gitClient.RemoveWorktree(js.job.ProjectPath, js.job.WorktreePath); err != nil {
		log.ErrorLog.Printf("rollback of %s failed: %v", js.job.WorktreePath, err)
	}
	if m.store != nil && js.job.ProjectID != "" {
		if err := m.store.RemoveWorktree(js.job.ProjectID, js.job.WorktreePath); err != nil {
			log.WarningLog.Printf("failed to untrack rolled-back worktree: %v", err)
		}
	}
	m.apply(js, StepCancelled, "cancelled, worktree rolled back", nil)
	return true
}

func (m *Manager) advance(js *jobState, message string) {
	next, err := ApplyTransition(js.job.Step, EventAdvance)
	if err != nil {
		// Transition table and run loop disagree; treat as a failure.
		m.fail(js, err)
		return
	}
	m.apply(js, next, message, nil)
}

func (m *Manager) fail(js *jobState, cause error) {
	log.ErrorLog.Printf("worktree job %s failed in %s: %v", js.job.ID, js.job.Step, cause)
	m.apply(js, StepFailed, "worktree creation failed", cause)
}

func (m *Manager) apply(js *jobState, step Step, message string, cause error) {
	m.mu.Lock()
	m.applyLocked(js, step, message, cause)
	m.mu.Unlock()
}

func (m *Manager) applyLocked(js *jobState, step Step, message string, cause error) {
	js.job.Step = step
	js.job.Message = message
	js.job.UpdatedAt = time.Now()
	if cause != nil {
		js.job.Err = cause.Error()
	}

	p := Progress{
		JobID:   js.job.ID,
		Step:    step,
		Message: message,
		Err:     js.job.Err,
		At:      js.job.UpdatedAt,
	}
	if step != StepFailed {
		p.Err = ""
	}
	js.history = append(js.history, p)
	for _, ch := range m.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
