package pty

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

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

// MockPtyFactory hands out one end of a socketpair as the pty master; the
// test keeps the other end to play the role of the shell process.
type MockPtyFactory struct {
	t *testing.T

	StartErr   error
	StartDelay time.Duration

	mu      sync.Mutex
	spawns  int32
	cmds    []*exec.Cmd
	remotes []*os.File
}

func NewMockPtyFactory(t *testing.T) *MockPtyFactory {
	return &MockPtyFactory{t: t}
}

func (pt *MockPtyFactory) Start(cmd *exec.Cmd, cols, rows uint16) (*os.File, error) {
	if pt.StartDelay > 0 {
		time.Sleep(pt.StartDelay)
	}
	if pt.StartErr != nil {
		return nil, pt.StartErr
	}
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	local := os.NewFile(uintptr(fds[0]), "fake-pty-local")
	remote := os.NewFile(uintptr(fds[1]), "fake-pty-remote")

	atomic.AddInt32(&pt.spawns, 1)
	pt.mu.Lock()
	pt.cmds = append(pt.cmds, cmd)
	pt.remotes = append(pt.remotes, remote)
	pt.mu.Unlock()
	return local, nil
}

func (pt *MockPtyFactory) Close() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, f := range pt.remotes {
		_ = f.Close()
	}
	pt.remotes = nil
}

func (pt *MockPtyFactory) Spawns() int {
	return int(atomic.LoadInt32(&pt.spawns))
}

func (pt *MockPtyFactory) Remote(i int) *os.File {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.remotes[i]
}

func newTestRegistry(t *testing.T, grace time.Duration) (*Registry, *MockPtyFactory) {
	factory := NewMockPtyFactory(t)
	r := NewRegistryWithDeps(factory, "/bin/sh", grace)
	t.Cleanup(r.CloseAll)
	return r, factory
}

func testKey(id string) Key {
	return Key{WindowLabel: "main", SessionID: id}
}

func TestEnsureProcessSpawnsOnce(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)

	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{Cwd: t.TempDir()}))
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{Cwd: t.TempDir()}))
	assert.Equal(t, 1, factory.Spawns())
}

func TestEnsureProcessConcurrentCallsCoalesce(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	factory.StartDelay = 20 * time.Millisecond
	key := testKey("s1")
	r.Acquire(key)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.EnsureProcess(context.Background(), key, SpawnSpec{Cwd: t.TempDir()})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, factory.Spawns(), "concurrent callers must share one spawn")
}

func TestEnsureProcessRequiresAcquire(t *testing.T) {
	r, _ := newTestRegistry(t, time.Second)
	err := r.EnsureProcess(context.Background(), testKey("s1"), SpawnSpec{})
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestSpawnFailureIsRetryable(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	factory.StartErr = errors.New("no such shell")
	key := testKey("s1")
	r.Acquire(key)

	err := r.EnsureProcess(context.Background(), key, SpawnSpec{})
	require.Error(t, err)

	factory.StartErr = nil
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))
	assert.Equal(t, 1, factory.Spawns())
}

func TestOutputFanOutOrder(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	var mu sync.Mutex
	var got []byte
	unsub, err := r.SubscribeOutput(key, func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Data...)
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	remote := factory.Remote(0)
	for _, chunk := range []string{"one ", "two ", "three"} {
		_, err := remote.Write([]byte(chunk))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "one two three"
	}, 2*time.Second, 5*time.Millisecond, "chunks must arrive in process order")
}

func TestSubscribeReplaysCurrentScreen(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	_, err := factory.Remote(0).Write([]byte("hello-replay"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot(key)
		return ok && len(snap) > 0
	}, 2*time.Second, 5*time.Millisecond)

	var mu sync.Mutex
	var first []byte
	unsub, err := r.SubscribeOutput(key, func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		if first == nil {
			first = ev.Data
		}
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, first, "subscribe must replay the current screen")
	assert.Contains(t, string(first), "hello-replay")
}

func TestReleaseKillsAfterGrace(t *testing.T) {
	r, _ := newTestRegistry(t, 20*time.Millisecond)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	r.Release(key)

	require.Eventually(t, func() bool {
		return len(r.ListSessions("main")) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReacquireWithinGraceCancelsKill(t *testing.T) {
	r, factory := newTestRegistry(t, 50*time.Millisecond)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	r.Release(key)
	r.Acquire(key)
	time.Sleep(120 * time.Millisecond)

	sessions := r.ListSessions("main")
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Live)
	assert.Equal(t, 1, factory.Spawns(), "remount within the grace window must not respawn")
}

func TestProcessExitNotifiesAndAllowsRespawn(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	var exited atomic.Bool
	unsub, err := r.SubscribeOutput(key, func(ev Event) error {
		if ev.Exited {
			exited.Store(true)
		}
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, factory.Remote(0).Close())

	require.Eventually(t, exited.Load, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))
	assert.Equal(t, 2, factory.Spawns())
}

func TestSubscriberErrorTearsDownImmediately(t *testing.T) {
	r, factory := newTestRegistry(t, time.Hour)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	_, err := r.SubscribeOutput(key, func(ev Event) error {
		return errors.New("pane gone")
	})
	if err == nil {
		// Replay was empty; trigger the failure with live output.
		_, werr := factory.Remote(0).Write([]byte("data"))
		require.NoError(t, werr)
	}

	require.Eventually(t, func() bool {
		return len(r.ListSessions("main")) == 0
	}, 2*time.Second, 5*time.Millisecond, "broken subscriber must tear the entry down")
}

func TestSnapshotCachedAcrossTeardown(t *testing.T) {
	r, factory := newTestRegistry(t, 10*time.Millisecond)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	_, err := factory.Remote(0).Write([]byte("remember me"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot(key)
		return ok && len(snap) > 0
	}, 2*time.Second, 5*time.Millisecond)

	r.Release(key)
	require.Eventually(t, func() bool {
		return len(r.ListSessions("main")) == 0
	}, 2*time.Second, 5*time.Millisecond)

	snap, ok := r.Snapshot(key)
	require.True(t, ok, "teardown must cache the final snapshot")
	assert.Contains(t, snap, "remember me")
}

func TestWriteForwardsToProcess(t *testing.T) {
	r, factory := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{}))

	require.NoError(t, r.Write(key, []byte("ls -la\r")))

	buf := make([]byte, 64)
	n, err := factory.Remote(0).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ls -la\r", string(buf[:n]))
}

func TestWriteWithoutProcess(t *testing.T) {
	r, _ := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	assert.ErrorIs(t, r.Write(key, []byte("x")), ErrNoProcess)
}

func TestResizeCoalescesBursts(t *testing.T) {
	r, _ := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{Cols: 80, Rows: 24}))

	// A drag produces a burst; none of these block and the entry stays live.
	for i := 0; i < 50; i++ {
		r.Resize(key, 80+i, 24)
	}
	sessions := r.ListSessions("main")
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Live)
}

func TestSavedStateSeedsTerminal(t *testing.T) {
	r, _ := newTestRegistry(t, time.Second)
	key := testKey("s1")
	r.Acquire(key)
	require.NoError(t, r.EnsureProcess(context.Background(), key, SpawnSpec{Saved: "restored contents"}))

	snap, ok := r.Snapshot(key)
	require.True(t, ok)
	assert.Contains(t, snap, "restored contents")
}

func TestListSessionsFiltersByWindow(t *testing.T) {
	r, _ := newTestRegistry(t, time.Second)
	r.Acquire(Key{WindowLabel: "main", SessionID: "a"})
	r.Acquire(Key{WindowLabel: "other", SessionID: "b"})

	assert.Len(t, r.ListSessions("main"), 1)
	assert.Len(t, r.ListSessions("other"), 1)
	assert.Empty(t, r.ListSessions("third"))
}
