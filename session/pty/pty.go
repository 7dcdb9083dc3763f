package pty

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PtyFactory abstracts OS pty allocation so tests can fake process spawns.
type PtyFactory interface {
	// Start launches cmd attached to a new pty of the given size and
	// returns the master end.
	Start(cmd *exec.Cmd, cols, rows uint16) (*os.File, error)
	// Close closes every master the factory handed out.
	Close()
}

type ptyFactory struct {
	mu    sync.Mutex
	files []*os.File
}

// MakePtyFactory returns the real pty factory.
func MakePtyFactory() PtyFactory {
	return &ptyFactory{}
}

func (f *ptyFactory) Start(cmd *exec.Cmd, cols, rows uint16) (*os.File, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.files = append(f.files, ptmx)
	f.mu.Unlock()
	return ptmx, nil
}

func (f *ptyFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		_ = file.Close()
	}
	f.files = nil
}

func setPtySize(ptmx *os.File, cols, rows uint16) error {
	return pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}
