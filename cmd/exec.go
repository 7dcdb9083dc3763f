// Package cmd wraps subprocess execution behind an Executor interface so
// that code shelling out to git (and friends) can be tested with a mock.
package cmd

import "os/exec"

// Executor runs external commands. Production code uses MakeExecutor();
// tests substitute a MockCmdExec from cmd/cmd_test.
type Executor interface {
	Run(cmd *exec.Cmd) error
	Output(cmd *exec.Cmd) ([]byte, error)
}

type realExecutor struct{}

func (realExecutor) Run(cmd *exec.Cmd) error {
	return cmd.Run()
}

func (realExecutor) Output(cmd *exec.Cmd) ([]byte, error) {
	return cmd.Output()
}

// MakeExecutor returns an Executor that runs commands for real.
func MakeExecutor() Executor {
	return realExecutor{}
}
