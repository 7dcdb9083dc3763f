package worktreeinit

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kastheco/haven/cmd"
)

const (
	setupDirName  = ".haven"
	setupFileName = "setup.toml"

	maxSetupOutput = 4000
)

// setupConfig is the parsed .haven/setup.toml of a repository.
//
//	setup = ["npm install", "cp ../.env.local ."]
type setupConfig struct {
	Setup []string `toml:"setup"`
}

// SetupRunner prepares a freshly created worktree: it copies the repo's
// .haven directory over and runs the configured setup commands inside the
// worktree. Failures are demoted to warnings, never blocking the job — a
// worktree with a missed npm install is still a usable worktree.
type SetupRunner struct {
	cmdExec cmd.Executor
	shell   string
}

// NewSetupRunner returns a runner executing commands through shell.
func NewSetupRunner(shell string) *SetupRunner {
	return &SetupRunner{cmdExec: cmd.MakeExecutor(), shell: shell}
}

// NewSetupRunnerWithExec is NewSetupRunner with an injectable executor.
func NewSetupRunnerWithExec(exec cmd.Executor, shell string) *SetupRunner {
	return &SetupRunner{cmdExec: exec, shell: shell}
}

// Prepare runs the post-create environment setup and returns any warnings.
func (r *SetupRunner) Prepare(repoPath, worktreePath, branch string) []string {
	var warnings []string

	if err := copySetupDir(repoPath, worktreePath); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to copy %s directory: %v", setupDirName, err))
	}

	commands, err := loadSetupCommands(repoPath)
	if err != nil {
		return append(warnings, err.Error())
	}
	for _, command := range commands {
		if err := r.runCommand(repoPath, worktreePath, branch, command); err != nil {
			// Later commands likely depend on this one; stop here.
			return append(warnings, err.Error())
		}
	}
	return warnings
}

func loadSetupCommands(repoPath string) ([]string, error) {
	path := filepath.Join(repoPath, setupDirName, setupFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg setupConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var commands []string
	for _, command := range cfg.Setup {
		command = strings.TrimSpace(command)
		if command != "" {
			commands = append(commands, command)
		}
	}
	return commands, nil
}

func (r *SetupRunner) runCommand(repoPath, worktreePath, branch, command string) error {
	shellCmd := exec.Command(r.shell, "-lc", command)
	shellCmd.Dir = worktreePath
	shellCmd.Env = append(os.Environ(),
		"HAVEN_WORKTREE_BRANCH="+branch,
		"HAVEN_ROOT_PATH="+repoPath,
	)

	out, err := r.cmdExec.Output(shellCmd)
	if err != nil {
		return fmt.Errorf("setup command failed: $ %s: %v\n%s", command, err, truncateOutput(out))
	}
	return nil
}

func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= maxSetupOutput {
		return s
	}
	return s[:maxSetupOutput] + "\n...(output truncated)"
}

// copySetupDir copies the repo's .haven directory into the worktree so setup
// config travels with it. Existing files in the worktree win; symlinks are
// skipped.
func copySetupDir(repoPath, worktreePath string) error {
	source := filepath.Join(repoPath, setupDirName)
	if st, err := os.Stat(source); err != nil || !st.IsDir() {
		return nil
	}
	target := filepath.Join(worktreePath, setupDirName)
	return copyDir(source, target)
}

func copyDir(source, target string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if entry.IsDir() {
			if err := copyDir(src, dst); err != nil {
				return err
			}
			continue
		}
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
