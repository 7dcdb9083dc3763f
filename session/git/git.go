// Package git wraps the repository operations haven needs: branch
// inspection through go-git and worktree manipulation through the git CLI,
// which is the only reliable way to drive `git worktree`.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kastheco/haven/cmd"
)

// WorktreeDirName is the directory under the repository root that holds
// haven-managed worktrees.
const WorktreeDirName = ".worktrees"

// Branch is one local branch of a repository.
type Branch struct {
	Name      string
	IsCurrent bool
	IsDefault bool
}

// Worktree is one entry from the repository's worktree list.
type Worktree struct {
	Path   string
	Branch string
}

// Client runs git operations against local repositories.
type Client struct {
	cmdExec cmd.Executor
}

// NewClient returns a client using the real git binary.
func NewClient() *Client {
	return &Client{cmdExec: cmd.MakeExecutor()}
}

// NewClientWithExec returns a client with an injectable executor for tests.
func NewClientWithExec(exec cmd.Executor) *Client {
	return &Client{cmdExec: exec}
}

func (c *Client) run(dir string, args ...string) (string, error) {
	gitCmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := c.cmdExec.Output(gitCmd)
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// IsGitRepo reports whether path is the root of a git repository.
func IsGitRepo(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

// BranchExists reports whether the local branch exists in the repository.
func BranchExists(repoPath, branch string) (bool, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to open repository: %w", err)
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	if err == nil {
		return true, nil
	}
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to check branch %s: %w", branch, err)
}

// ListBranches returns the repository's local branches. The current branch
// is flagged, as is the default one (main, falling back to master).
func (c *Client) ListBranches(repoPath string) ([]Branch, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	current := ""
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		current = head.Name().Short()
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	var branches []Branch
	seen := make(map[string]bool)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		seen[name] = true
		branches = append(branches, Branch{Name: name, IsCurrent: name == current})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}

	def := "main"
	if !seen["main"] && seen["master"] {
		def = "master"
	}
	for i := range branches {
		branches[i].IsDefault = branches[i].Name == def
	}
	return branches, nil
}

// AddWorktree creates a worktree for branch at worktreePath. With
// createBranch the branch is created from HEAD as part of the add.
func (c *Client) AddWorktree(repoPath, worktreePath, branch string, createBranch bool) error {
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0755); err != nil {
		return fmt.Errorf("failed to create worktrees directory: %w", err)
	}
	var err error
	if createBranch {
		_, err = c.run(repoPath, "worktree", "add", "-b", branch, worktreePath)
	} else {
		_, err = c.run(repoPath, "worktree", "add", worktreePath, branch)
	}
	if err != nil {
		return fmt.Errorf("failed to create worktree for %s: %w", branch, err)
	}
	return nil
}

// ListWorktrees parses `git worktree list --porcelain`.
func (c *Client) ListWorktrees(repoPath string) ([]Worktree, error) {
	out, err := c.run(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var worktrees []Worktree
	var cur Worktree
	flush := func() {
		if cur.Path != "" {
			worktrees = append(worktrees, cur)
		}
		cur = Worktree{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return worktrees, nil
}

// RemoveWorktree removes the worktree at worktreePath and prunes stale
// administrative files.
func (c *Client) RemoveWorktree(repoPath, worktreePath string) error {
	if _, err := c.run(repoPath, "worktree", "remove", "-f", worktreePath); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	return c.Prune(repoPath)
}

// Prune cleans up worktree administrative files for deleted trees.
func (c *Client) Prune(repoPath string) error {
	if _, err := c.run(repoPath, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}

var branchSanitizeRe = regexp.MustCompile(`\s+`)

// SanitizeBranch turns a branch name into a single path segment.
func SanitizeBranch(branch string) string {
	branch = branchSanitizeRe.ReplaceAllString(strings.TrimSpace(branch), "-")
	return strings.ReplaceAll(branch, "/", "-")
}

// WorktreePath is the deterministic location for a branch's worktree, so
// repeated requests for the same branch land on the same directory.
func WorktreePath(repoPath, branch string) string {
	return WorktreePathIn(repoPath, WorktreeDirName, branch)
}

// WorktreePathIn is WorktreePath with the containing directory name taken
// from configuration instead of the default.
func WorktreePathIn(repoPath, dirName, branch string) string {
	if dirName == "" {
		dirName = WorktreeDirName
	}
	return filepath.Join(repoPath, dirName, SanitizeBranch(branch))
}
