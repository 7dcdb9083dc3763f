package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kastheco/haven/log"
)

// FileStore persists workspaces as JSON files under a directory, one file
// per project keyed by a hash of the project path.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspaces directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) filePath(projectPath string) string {
	sum := sha256.Sum256([]byte(projectPath))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".json")
}

// Load reads the saved workspace for projectPath. Returns (nil, nil) when no
// save exists; the caller builds a default workspace. Unparseable files are
// treated the same as absent ones so a corrupt save never blocks opening a
// project.
func (s *FileStore) Load(projectPath string) (*Workspace, error) {
	data, err := os.ReadFile(s.filePath(projectPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace file: %w", err)
	}
	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		log.WarningLog.Printf("discarding unparseable workspace for %s: %v", projectPath, err)
		return nil, nil
	}
	return &ws, nil
}

// Save writes the workspace atomically: marshal to a temp file in the same
// directory, then rename over the target, so a crash mid-write never leaves
// a truncated save.
func (s *FileStore) Save(ws *Workspace) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace: %w", err)
	}

	target := s.filePath(ws.ProjectPath)
	tmp, err := os.CreateTemp(s.dir, ".workspace-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp workspace file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write workspace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close workspace file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace workspace file: %w", err)
	}
	return nil
}

// SnapshotFunc asks the terminal layer for a session's current serialized
// buffer. ok is false when the session has no live process and no cached
// buffer, in which case the previously saved state is kept.
type SnapshotFunc func(sessionID string) (string, bool)

// Saver debounces workspace writes so rapid structural changes (resize
// drags, split churn) collapse into one save. Callers mark the workspace
// dirty after every mutation; the save runs on the saver's own goroutine and
// never blocks the caller. Failures are logged and retried on the next
// debounce window.
type Saver struct {
	store    *FileStore
	snapshot SnapshotFunc
	debounce time.Duration

	mu     sync.Mutex
	latest *Workspace
	timer  *time.Timer

	// flushMu serializes flushes: a timer that re-armed while a save was in
	// flight waits for it instead of writing concurrently.
	flushMu sync.Mutex
}

// NewSaver returns a saver writing through store. snapshot may be nil when
// no terminal layer is attached (saves then keep prior SavedState).
func NewSaver(store *FileStore, snapshot SnapshotFunc, debounce time.Duration) *Saver {
	return &Saver{store: store, snapshot: snapshot, debounce: debounce}
}

// MarkDirty records ws as the state to persist and (re)arms the debounce
// timer. Only the most recent workspace is written. The copy is taken here,
// on the caller's goroutine, so the caller may keep mutating ws immediately
// while the flush reads a stable snapshot.
func (s *Saver) MarkDirty(ws *Workspace) {
	copied := ws.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = copied
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// Flush cancels any pending debounce and writes the latest state now. Called
// on teardown so a quick quit doesn't lose the last debounce window.
func (s *Saver) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Saver) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	ws := s.latest
	s.timer = nil
	s.mu.Unlock()
	if ws == nil {
		return
	}

	if s.snapshot != nil {
		for _, id := range ws.SessionIDs() {
			state, ok := s.snapshot(id)
			if !ok {
				continue
			}
			if sess, found := ws.Sessions[id]; found {
				sess.SavedState = state
			}
		}
	}

	if err := s.store.Save(ws); err != nil {
		// Not user-facing; the state stays latest and the next debounce
		// window retries.
		log.ErrorLog.Printf("workspace save failed: %v", err)
	}
}
