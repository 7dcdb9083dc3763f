package cmd_test

import (
	"os/exec"
	"sync"
)

// MockCmdExec fakes cmd.Executor. Every invocation's argv is recorded so
// tests can assert on the exact commands a component would have run.
type MockCmdExec struct {
	RunFunc    func(cmd *exec.Cmd) error
	OutputFunc func(cmd *exec.Cmd) ([]byte, error)

	mu    sync.Mutex
	calls []*exec.Cmd
}

func (e *MockCmdExec) Run(cmd *exec.Cmd) error {
	e.record(cmd)
	return e.RunFunc(cmd)
}

func (e *MockCmdExec) Output(cmd *exec.Cmd) ([]byte, error) {
	e.record(cmd)
	return e.OutputFunc(cmd)
}

func (e *MockCmdExec) record(cmd *exec.Cmd) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, cmd)
}

// Calls returns the commands executed so far, in order.
func (e *MockCmdExec) Calls() []*exec.Cmd {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*exec.Cmd(nil), e.calls...)
}

// Args returns the argv of the i-th executed command.
func (e *MockCmdExec) Args(i int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i].Args
}

// NewMockExecutor returns a *MockCmdExec with succeed-quietly defaults.
// Callers may override RunFunc and OutputFunc before use.
func NewMockExecutor() *MockCmdExec {
	return &MockCmdExec{
		RunFunc: func(cmd *exec.Cmd) error {
			return nil
		},
		OutputFunc: func(cmd *exec.Cmd) ([]byte, error) {
			return nil, nil
		},
	}
}
