package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/haven/log"
)

func TestMain(m *testing.M) {
	log.Initialize(false)
	code := m.Run()
	log.Close()
	os.Exit(code)
}

func initTestRepo(t *testing.T) string {
	t.Helper()

	repo := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", append([]string{"-C", repo}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("init\n"), 0644))

	cmd := exec.Command("git", "-C", repo, "add", ".")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git add: %s", out)

	cmd = exec.Command("git", "-C", repo, "commit", "-m", "initial")
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "git commit: %s", out)

	return repo
}

func TestIsGitRepo(t *testing.T) {
	assert.True(t, IsGitRepo(initTestRepo(t)))
	assert.False(t, IsGitRepo(t.TempDir()))
}

func TestBranchExists(t *testing.T) {
	repo := initTestRepo(t)

	ok, err := BranchExists(repo, "main")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = BranchExists(repo, "feature/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListBranches(t *testing.T) {
	repo := initTestRepo(t)

	cmd := exec.Command("git", "-C", repo, "branch", "feature-x")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git branch: %s", out)

	branches, err := NewClient().ListBranches(repo)
	require.NoError(t, err)
	require.Len(t, branches, 2)

	byName := map[string]Branch{}
	for _, b := range branches {
		byName[b.Name] = b
	}
	assert.True(t, byName["main"].IsCurrent)
	assert.True(t, byName["main"].IsDefault)
	assert.False(t, byName["feature-x"].IsDefault)
}

func TestAddListRemoveWorktree(t *testing.T) {
	repo := initTestRepo(t)
	client := NewClient()

	wtPath := WorktreePath(repo, "feature/one")
	require.NoError(t, client.AddWorktree(repo, wtPath, "feature/one", true))

	worktrees, err := client.ListWorktrees(repo)
	require.NoError(t, err)
	require.Len(t, worktrees, 2, "main checkout plus the new worktree")

	var found bool
	for _, wt := range worktrees {
		if wt.Branch == "feature/one" {
			found = true
			assert.Equal(t, wtPath, wt.Path)
		}
	}
	assert.True(t, found)

	// The branch now exists, so creating it again must fail.
	err = client.AddWorktree(repo, WorktreePath(repo, "feature/one")+"-b", "feature/one", true)
	assert.Error(t, err)

	require.NoError(t, client.RemoveWorktree(repo, wtPath))
	worktrees, err = client.ListWorktrees(repo)
	require.NoError(t, err)
	assert.Len(t, worktrees, 1)

	// Branch survives worktree removal.
	ok, err := BranchExists(repo, "feature/one")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddWorktreeExistingBranch(t *testing.T) {
	repo := initTestRepo(t)
	client := NewClient()

	cmd := exec.Command("git", "-C", repo, "branch", "existing")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git branch: %s", out)

	wtPath := WorktreePath(repo, "existing")
	require.NoError(t, client.AddWorktree(repo, wtPath, "existing", false))

	_, statErr := os.Stat(wtPath)
	assert.NoError(t, statErr)
}

func TestSanitizeBranch(t *testing.T) {
	assert.Equal(t, "feature-login", SanitizeBranch("feature/login"))
	assert.Equal(t, "fix-a-b", SanitizeBranch(" fix/a b "))
}

func TestWorktreePathDeterministic(t *testing.T) {
	a := WorktreePath("/repo", "feature/login")
	assert.Equal(t, filepath.Join("/repo", ".worktrees", "feature-login"), a)
	assert.Equal(t, a, WorktreePath("/repo", "feature/login"))
}

func TestWorktreePathIn(t *testing.T) {
	assert.Equal(t, filepath.Join("/repo", ".wt", "feature-login"), WorktreePathIn("/repo", ".wt", "feature/login"))
	// Empty dir name falls back to the default.
	assert.Equal(t, WorktreePath("/repo", "x"), WorktreePathIn("/repo", "", "x"))
}
