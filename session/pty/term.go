package pty

import (
	"sync"

	"github.com/charmbracelet/x/vt"
)

// terminal wraps a vt emulator behind a mutex. The registry's reader
// goroutine writes process output into it while the UI thread asks for
// renders and the saver asks for snapshots.
type terminal struct {
	mu     sync.Mutex
	emu    *vt.Emulator
	closed bool
}

func newTerminal(cols, rows int) *terminal {
	return &terminal{emu: vt.NewEmulator(cols, rows)}
}

// seed replays a previously serialized buffer so a restored pane shows its
// old content before the live process produces anything.
func (t *terminal) seed(state string) {
	if state == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.emu.Write([]byte(state))
}

func (t *terminal) write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	_, _ = t.emu.Write(p)
}

func (t *terminal) resize(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.emu.Resize(cols, rows)
}

// serialize renders the current screen including styling escapes, suitable
// for persistence and for seeding a fresh emulator.
func (t *terminal) serialize() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ""
	}
	return t.emu.Render()
}

func (t *terminal) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	_ = t.emu.Close()
}
