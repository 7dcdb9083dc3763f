// Package project persists project metadata: registered projects, their
// tags, and the git worktrees haven tracks for each project.
package project

import "time"

// Project is one registered project directory.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TrackedWorktree is a worktree haven created or adopted for a project.
type TrackedWorktree struct {
	ProjectID string    `json:"project_id"`
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Store is the interface for project metadata persistence. SQLiteStore is
// the only implementation; the seam exists so tests of higher layers can
// substitute fakes.
type Store interface {
	// Upsert inserts the project or updates it in place by id.
	Upsert(p Project) error
	// Get returns the project by id.
	Get(id string) (Project, error)
	// GetByPath returns the project registered at path.
	GetByPath(path string) (Project, error)
	// List returns all projects ordered by name.
	List() ([]Project, error)
	// Delete removes the project and its tracked worktrees.
	Delete(id string) error

	// SetTags replaces the project's tag list.
	SetTags(projectID string, tags []string) error

	// AddOrUpdateWorktree records a worktree, keyed by path: a second call
	// with the same path updates the branch instead of inserting.
	AddOrUpdateWorktree(wt TrackedWorktree) error
	// Worktrees lists the project's tracked worktrees ordered by path.
	Worktrees(projectID string) ([]TrackedWorktree, error)
	// RemoveWorktree drops the tracked worktree at path.
	RemoveWorktree(projectID, path string) error

	Close() error
}
