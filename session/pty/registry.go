// Package pty maps stable session keys to at most one live shell process
// each, shared across any number of UI pane mounts. It owns process
// lifecycle (spawn, grace-period teardown), multiplexes output to
// subscribers, and serves buffer snapshots for persistence.
package pty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kastheco/haven/log"
)

var (
	// ErrNotAcquired is returned for operations on a key with no acquired
	// entry. Callers must Acquire before anything else.
	ErrNotAcquired = errors.New("session not acquired")
	// ErrNoProcess is returned when writing to a session whose process has
	// exited or was never ensured.
	ErrNoProcess = errors.New("session has no live process")
)

// Key identifies a registry entry. The window label partitions sessions per
// application window so two windows showing the same project don't share
// shells.
type Key struct {
	WindowLabel string
	SessionID   string
}

func (k Key) String() string {
	return k.WindowLabel + "/" + k.SessionID
}

// SpawnSpec describes how to start a session's shell.
type SpawnSpec struct {
	Cwd  string
	Cols int
	Rows int
	// Saved seeds the terminal surface with a previously persisted buffer
	// so the pane shows its old content until the shell draws.
	Saved string
}

// Event is one output notification: a chunk of process output, or the final
// exit notice after which no more data follows for that process.
type Event struct {
	Data     []byte
	Exited   bool
	ExitCode int
}

// Subscriber receives events in process order. Returning an error marks the
// subscription broken; the registry tears the entry down immediately since a
// shell nobody can observe is worse than none.
type Subscriber func(Event) error

// SessionInfo describes one live entry, for diagnostics.
type SessionInfo struct {
	SessionID   string
	RefCount    int
	Live        bool
	Subscribers int
}

type process struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

type inflight struct {
	done chan struct{}
	err  error
}

type entry struct {
	key      Key
	refCount int
	closed   bool

	proc    *process
	pending *inflight
	term    *terminal

	killTimer *time.Timer

	// subMu orders fan-out: the reader goroutine holds it while feeding the
	// terminal and dispatching, so subscribe replay can never miss or
	// duplicate a chunk.
	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int

	wantCols, wantRows int
	resizing           bool
}

// Registry is the shared session table. A single mutex guards the entry map
// and all ref-count mutation; process creation is coalesced through a
// per-entry in-flight handle every concurrent caller waits on.
type Registry struct {
	factory PtyFactory
	shell   string
	grace   time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
	// cached holds the final snapshot of reaped entries so a remount after
	// teardown can still restore what the screen looked like.
	cached map[Key]string
}

// NewRegistry returns a registry spawning shell for each session, killing
// processes grace after their last reference is released.
func NewRegistry(shell string, grace time.Duration) *Registry {
	return NewRegistryWithDeps(MakePtyFactory(), shell, grace)
}

// NewRegistryWithDeps is NewRegistry with an injectable pty factory for
// tests.
func NewRegistryWithDeps(factory PtyFactory, shell string, grace time.Duration) *Registry {
	return &Registry{
		factory: factory,
		shell:   shell,
		grace:   grace,
		entries: make(map[Key]*entry),
		cached:  make(map[Key]string),
	}
}

// Acquire increments the key's reference count, creating the entry on first
// use and cancelling any pending grace-period kill.
func (r *Registry) Acquire(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[key]
	if e == nil {
		e = &entry{key: key, subs: make(map[int]Subscriber)}
		r.entries[key] = e
	}
	e.refCount++
	if e.killTimer != nil {
		e.killTimer.Stop()
		e.killTimer = nil
	}
}

// Release decrements the reference count. At zero the entry is not torn down
// immediately: a grace timer starts, absorbing the unmount/remount churn of
// tab switches and re-renders. A new Acquire before the timer fires keeps
// the shell alive.
func (r *Registry) Release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[key]
	if e == nil {
		return
	}
	if e.refCount > 0 {
		e.refCount--
	}
	if e.refCount > 0 || e.killTimer != nil {
		return
	}
	e.killTimer = time.AfterFunc(r.grace, func() {
		r.teardown(key, false)
	})
}

// EnsureProcess guarantees the key has a live shell, spawning one if needed.
// Concurrent callers for the same key coalesce onto a single spawn: at most
// one process per key ever, regardless of mount churn. On spawn failure the
// error goes to every coalesced waiter and the entry is left without a
// handle so a later call can retry.
func (r *Registry) EnsureProcess(ctx context.Context, key Key, spec SpawnSpec) error {
	for {
		r.mu.Lock()
		e := r.entries[key]
		if e == nil || e.closed {
			r.mu.Unlock()
			return ErrNotAcquired
		}
		if e.proc != nil {
			r.mu.Unlock()
			return nil
		}
		if e.pending != nil {
			pending := e.pending
			r.mu.Unlock()
			select {
			case <-pending.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if pending.err != nil {
				return pending.err
			}
			// Spawn succeeded (or the process already exited again); loop
			// to observe the current state.
			continue
		}

		pending := &inflight{done: make(chan struct{})}
		e.pending = pending
		r.mu.Unlock()

		err := r.spawn(e, spec)

		r.mu.Lock()
		e.pending = nil
		r.mu.Unlock()
		pending.err = err
		close(pending.done)
		return err
	}
}

func (r *Registry) spawn(e *entry, spec SpawnSpec) error {
	cols, rows := spec.Cols, spec.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	r.mu.Lock()
	term := e.term
	saved := spec.Saved
	if term == nil {
		if cached, ok := r.cached[e.key]; ok && saved == "" {
			saved = cached
		}
		delete(r.cached, e.key)
	}
	r.mu.Unlock()

	if term == nil {
		term = newTerminal(cols, rows)
		term.seed(saved)
	} else {
		term.resize(cols, rows)
	}

	shellCmd := exec.Command(r.shell)
	shellCmd.Dir = spec.Cwd
	shellCmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := r.factory.Start(shellCmd, uint16(cols), uint16(rows))
	if err != nil {
		log.ErrorLog.Printf("failed to spawn shell for %s: %v", e.key, err)
		return fmt.Errorf("failed to spawn shell %s: %w", r.shell, err)
	}

	p := &process{ptmx: ptmx, cmd: shellCmd}

	r.mu.Lock()
	if e.closed {
		r.mu.Unlock()
		_ = ptmx.Close()
		if shellCmd.Process != nil {
			_ = shellCmd.Process.Kill()
		}
		return ErrNotAcquired
	}
	e.proc = p
	e.term = term
	e.wantCols, e.wantRows = cols, rows
	r.mu.Unlock()

	go r.readLoop(e, p)
	return nil
}

// readLoop is the single reader for one process. Feeding the terminal and
// dispatching to subscribers happen under the entry's fan-out lock, so
// subscribers observe chunks in the exact order the process produced them.
func (r *Registry) readLoop(e *entry, p *process) {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			r.fanOut(e, Event{Data: data})
		}
		if err != nil {
			break
		}
	}

	code := 0
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	r.mu.Lock()
	closed := e.closed
	if e.proc == p {
		e.proc = nil
	}
	r.mu.Unlock()

	if !closed {
		log.InfoLog.Printf("shell for %s exited with code %d", e.key, code)
		r.fanOut(e, Event{Exited: true, ExitCode: code})
	}
}

func (r *Registry) fanOut(e *entry, ev Event) {
	e.subMu.Lock()
	if len(ev.Data) > 0 && e.term != nil {
		e.term.write(ev.Data)
	}
	var broken bool
	for id, fn := range e.subs {
		if err := fn(ev); err != nil {
			log.ErrorLog.Printf("subscriber %d for %s failed: %v", id, e.key, err)
			broken = true
		}
	}
	e.subMu.Unlock()

	if broken {
		r.teardown(e.key, true)
	}
}

// SubscribeOutput registers a listener for the key's output. The current
// screen contents are replayed to the new subscriber first, then live chunks
// follow in order. The returned function unsubscribes.
func (r *Registry) SubscribeOutput(key Key, fn Subscriber) (func(), error) {
	r.mu.Lock()
	e := r.entries[key]
	if e == nil || e.closed {
		r.mu.Unlock()
		return nil, ErrNotAcquired
	}
	r.mu.Unlock()

	e.subMu.Lock()
	if e.term != nil {
		if snap := e.term.serialize(); snap != "" {
			if err := fn(Event{Data: []byte(snap)}); err != nil {
				e.subMu.Unlock()
				r.teardown(key, true)
				return nil, fmt.Errorf("output subscription failed: %w", err)
			}
		}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}, nil
}

// Write forwards keystroke bytes to the key's process.
func (r *Registry) Write(key Key, p []byte) error {
	r.mu.Lock()
	e := r.entries[key]
	var proc *process
	if e != nil {
		proc = e.proc
	}
	r.mu.Unlock()
	if proc == nil {
		return ErrNoProcess
	}
	_, err := proc.ptmx.Write(p)
	return err
}

// Resize requests new pty geometry. Calls are coalesced: a burst of resizes
// during a drag applies only the latest size, on a worker goroutine so the
// caller never blocks on the tty ioctl.
func (r *Registry) Resize(key Key, cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	r.mu.Lock()
	e := r.entries[key]
	if e == nil || e.closed {
		r.mu.Unlock()
		return
	}
	e.wantCols, e.wantRows = cols, rows
	if e.resizing {
		r.mu.Unlock()
		return
	}
	e.resizing = true
	r.mu.Unlock()

	go r.applyResizes(e)
}

func (r *Registry) applyResizes(e *entry) {
	appliedCols, appliedRows := -1, -1
	for {
		r.mu.Lock()
		cols, rows := e.wantCols, e.wantRows
		proc := e.proc
		term := e.term
		if (cols == appliedCols && rows == appliedRows) || e.closed {
			e.resizing = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		if term != nil {
			term.resize(cols, rows)
		}
		if proc != nil {
			if err := setPtySize(proc.ptmx, uint16(cols), uint16(rows)); err != nil {
				// Best effort: the next resize or respawn re-applies.
				log.WarningLog.Printf("resize failed for %s: %v", e.key, err)
			}
		}
		appliedCols, appliedRows = cols, rows
	}
}

// Snapshot returns the key's serialized screen contents: from the live
// terminal surface when present, otherwise the snapshot cached at teardown.
func (r *Registry) Snapshot(key Key) (string, bool) {
	r.mu.Lock()
	e := r.entries[key]
	var term *terminal
	if e != nil {
		term = e.term
	}
	cached, hasCached := r.cached[key]
	r.mu.Unlock()

	if term != nil {
		return term.serialize(), true
	}
	if hasCached {
		return cached, true
	}
	return "", false
}

// ListSessions enumerates the window's entries, for diagnostics.
func (r *Registry) ListSessions(windowLabel string) []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SessionInfo
	for key, e := range r.entries {
		if key.WindowLabel != windowLabel {
			continue
		}
		e.subMu.Lock()
		subs := len(e.subs)
		e.subMu.Unlock()
		out = append(out, SessionInfo{
			SessionID:   key.SessionID,
			RefCount:    e.refCount,
			Live:        e.proc != nil,
			Subscribers: subs,
		})
	}
	return out
}

// teardown kills the key's process and removes the entry, caching a final
// snapshot. When force is false (grace timer path) it aborts if the entry
// was re-acquired since the timer was armed.
func (r *Registry) teardown(key Key, force bool) {
	r.mu.Lock()
	e := r.entries[key]
	if e == nil {
		r.mu.Unlock()
		return
	}
	if !force && e.refCount > 0 {
		r.mu.Unlock()
		return
	}
	e.closed = true
	if e.killTimer != nil {
		e.killTimer.Stop()
		e.killTimer = nil
	}
	if e.term != nil {
		r.cached[key] = e.term.serialize()
	}
	proc := e.proc
	e.proc = nil
	delete(r.entries, key)
	r.mu.Unlock()

	if e.term != nil {
		e.term.close()
	}
	if proc != nil {
		_ = proc.ptmx.Close()
		if proc.cmd.Process != nil {
			_ = proc.cmd.Process.Kill()
		}
	}
}

// CloseAll tears down every entry. Called on application teardown after the
// saver has flushed.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	r.mu.Unlock()
	for _, key := range keys {
		r.teardown(key, true)
	}
	r.factory.Close()
}
