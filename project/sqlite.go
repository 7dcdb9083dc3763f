package project

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrNotFound is returned when a project id or path has no row.
var ErrNotFound = errors.New("project not found")

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	path       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS project_tags (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	tag        TEXT NOT NULL,
	UNIQUE(project_id, tag)
);

CREATE TABLE IF NOT EXISTS project_worktrees (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	branch     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	UNIQUE(project_id, path)
);
`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// schema migrations. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL improves concurrent read performance on real files.
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run schema migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the project or updates name/path in place by id.
func (s *SQLiteStore) Upsert(p Project) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO projects (id, name, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, path = excluded.path
	`
	if _, err := s.db.Exec(q, p.ID, p.Name, p.Path, createdAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	if p.Tags != nil {
		return s.SetTags(p.ID, p.Tags)
	}
	return nil
}

// Get returns the project by id.
func (s *SQLiteStore) Get(id string) (Project, error) {
	return s.getBy("id", id)
}

// GetByPath returns the project registered at path.
func (s *SQLiteStore) GetByPath(path string) (Project, error) {
	return s.getBy("path", path)
}

func (s *SQLiteStore) getBy(col, val string) (Project, error) {
	q := fmt.Sprintf("SELECT id, name, path, created_at FROM projects WHERE %s = ?", col)
	var p Project
	var createdAt string
	err := s.db.QueryRow(q, val).Scan(&p.ID, &p.Name, &p.Path, &createdAt)
	if err == sql.ErrNoRows {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project by %s: %w", col, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	tags, err := s.tags(p.ID)
	if err != nil {
		return Project{}, err
	}
	p.Tags = tags
	return p, nil
}

// List returns all projects ordered by name.
func (s *SQLiteStore) List() ([]Project, error) {
	rows, err := s.db.Query("SELECT id, name, path, created_at FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	for i := range projects {
		tags, err := s.tags(projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Tags = tags
	}
	return projects, nil
}

// Delete removes the project; tags and worktrees cascade.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTags replaces the project's tag list.
func (s *SQLiteStore) SetTags(projectID string, tags []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tag update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM project_tags WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("clear tags for %s: %w", projectID, err)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO project_tags (project_id, tag) VALUES (?, ?)",
			projectID, tag,
		); err != nil {
			return fmt.Errorf("insert tag %s: %w", tag, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) tags(projectID string) ([]string, error) {
	rows, err := s.db.Query("SELECT tag FROM project_tags WHERE project_id = ? ORDER BY tag", projectID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddOrUpdateWorktree records a worktree keyed by (project, path); repeated
// calls for the same path update the branch, so the syncing step of a
// worktree job is idempotent.
func (s *SQLiteStore) AddOrUpdateWorktree(wt TrackedWorktree) error {
	createdAt := wt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO project_worktrees (project_id, path, branch, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET branch = excluded.branch
	`
	if _, err := s.db.Exec(q, wt.ProjectID, wt.Path, wt.Branch, createdAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record worktree %s: %w", wt.Path, err)
	}
	return nil
}

// Worktrees lists the project's tracked worktrees ordered by path.
func (s *SQLiteStore) Worktrees(projectID string) ([]TrackedWorktree, error) {
	rows, err := s.db.Query(
		"SELECT project_id, path, branch, created_at FROM project_worktrees WHERE project_id = ? ORDER BY path",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	defer rows.Close()

	var worktrees []TrackedWorktree
	for rows.Next() {
		var wt TrackedWorktree
		var createdAt string
		if err := rows.Scan(&wt.ProjectID, &wt.Path, &wt.Branch, &createdAt); err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		wt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		worktrees = append(worktrees, wt)
	}
	return worktrees, rows.Err()
}

// RemoveWorktree drops the tracked worktree at path.
func (s *SQLiteStore) RemoveWorktree(projectID, path string) error {
	if _, err := s.db.Exec(
		"DELETE FROM project_worktrees WHERE project_id = ? AND path = ?",
		projectID, path,
	); err != nil {
		return fmt.Errorf("remove worktree %s: %w", path, err)
	}
	return nil
}
