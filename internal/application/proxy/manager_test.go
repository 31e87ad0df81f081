package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boringcache.com/setup/internal/core/tags"
	"boringcache.com/setup/internal/infrastructure/env"
	"boringcache.com/setup/internal/infrastructure/lockstore"
)

type spawnRecord struct {
	name    string
	args    []string
	logPath string
}

type managerFixture struct {
	manager *Manager
	store   *lockstore.DiskStore
	spawns  []spawnRecord

	spawnPid   int
	spawnErr   error
	aliveState map[int]bool
	termErrs   map[int]error
	terminated []int
	killed     []int
}

func newManagerFixture(t *testing.T, withToken bool) *managerFixture {
	t.Helper()

	values := map[string]string{}
	if withToken {
		values["BORINGCACHE_API_TOKEN"] = "tok_test"
	}

	store := lockstore.NewDiskStore(t.TempDir())
	f := &managerFixture{
		store:      store,
		spawnPid:   777,
		aliveState: map[int]bool{},
		termErrs:   map[int]error{},
	}

	m := NewManager(store, env.NewMapProvider(values), zerolog.Nop())
	m.poll = 5 * time.Millisecond
	m.grace = 5 * time.Millisecond
	m.spawn = func(name string, args, extraEnv []string, logPath string) (int, error) {
		f.spawns = append(f.spawns, spawnRecord{name: name, args: args, logPath: logPath})
		return f.spawnPid, f.spawnErr
	}
	m.alive = func(pid int) bool { return f.aliveState[pid] }
	m.terminate = func(pid int) error {
		f.terminated = append(f.terminated, pid)
		return f.termErrs[pid]
	}
	m.kill = func(pid int) error {
		f.killed = append(f.killed, pid)
		return nil
	}
	f.manager = m
	return f
}

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

// closedPort returns a port nothing is listening on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func healthServer(t *testing.T, status int) (*httptest.Server, int) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/" {
			w.WriteHeader(status)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server, serverPort(t, server)
}

// TestStart_NoToken_FailsWithAuthRequired tests the auth precondition
func TestStart_NoToken_FailsWithAuthRequired(t *testing.T) {
	f := newManagerFixture(t, false)

	_, err := f.manager.Start(context.Background(), Config{Port: 5000, Tags: "a"})
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, f.spawns)
}

// TestStart_EmptyTagList_FailsWithNoTags tests tag validation
func TestStart_EmptyTagList_FailsWithNoTags(t *testing.T) {
	f := newManagerFixture(t, true)

	_, err := f.manager.Start(context.Background(), Config{Port: 5000, Tags: " , , "})
	assert.ErrorIs(t, err, tags.ErrNoTags)
	assert.Empty(t, f.spawns)
}

// TestStart_FreshPort_SpawnsAndRecordsPid tests the spawn path
func TestStart_FreshPort_SpawnsAndRecordsPid(t *testing.T) {
	f := newManagerFixture(t, true)
	port := closedPort(t)

	handle, err := f.manager.Start(context.Background(), Config{Port: port, Tags: "b, a ,b"})
	require.NoError(t, err)
	assert.Equal(t, Handle{PID: 777, Port: port}, handle)

	require.Len(t, f.spawns, 1)
	spawn := f.spawns[0]
	assert.Equal(t, "boringcache", spawn.name)
	assert.Equal(t, []string{"proxy", "--port", strconv.Itoa(port), "--tags", "b,a"}, spawn.args)
	assert.Equal(t, f.store.Path(LogKey(port)), spawn.logPath)

	recorded, err := f.store.Get("boringcache-proxy.pid")
	require.NoError(t, err)
	assert.Equal(t, "777", recorded)
}

// TestStart_HealthyPort_ReusesWithoutSpawning tests the reuse path
func TestStart_HealthyPort_ReusesWithoutSpawning(t *testing.T) {
	_, port := healthServer(t, http.StatusOK)
	f := newManagerFixture(t, true)
	require.NoError(t, f.store.Put("boringcache-proxy.pid", "4242"))

	handle, err := f.manager.Start(context.Background(), Config{Port: port, Tags: "a"})
	require.NoError(t, err)

	assert.Equal(t, 4242, handle.PID, "handle pid should match the recorded pid file")
	assert.Empty(t, f.spawns, "no second process may be spawned")
}

// TestStart_HealthyPortWithUnreadablePidFile_ReturnsSentinel tests the -1 sentinel
func TestStart_HealthyPortWithUnreadablePidFile_ReturnsSentinel(t *testing.T) {
	_, port := healthServer(t, http.StatusUnauthorized)

	tests := []struct {
		name    string
		pidFile *string
	}{
		{name: "PidFileAbsent", pidFile: nil},
		{name: "PidFileGarbage", pidFile: strPtr("not-a-pid")},
		{name: "PidFileNonPositive", pidFile: strPtr("-5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t, true)
			if tt.pidFile != nil {
				require.NoError(t, f.store.Put("boringcache-proxy.pid", *tt.pidFile))
			}

			handle, err := f.manager.Start(context.Background(), Config{Port: port, Tags: "a"})
			require.NoError(t, err)
			assert.Equal(t, ReusedPID, handle.PID)
			assert.Empty(t, f.spawns)
		})
	}
}

func strPtr(s string) *string { return &s }

// TestStart_SpawnFailure_Surfaces tests that a bind-race loser's error propagates
func TestStart_SpawnFailure_Surfaces(t *testing.T) {
	f := newManagerFixture(t, true)
	f.spawnErr = errors.New("bind: address already in use")

	_, err := f.manager.Start(context.Background(), Config{Port: closedPort(t), Tags: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

// TestHealthy_StatusHandling tests which statuses count as up
func TestHealthy_StatusHandling(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "OK_IsUp", status: http.StatusOK, want: true},
		{name: "AuthChallenge_IsUp", status: http.StatusUnauthorized, want: true},
		{name: "ServerError_IsDown", status: http.StatusInternalServerError, want: false},
		{name: "NotFoundOnHealthPath_IsDown", status: http.StatusNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, port := healthServer(t, tt.status)
			f := newManagerFixture(t, true)
			assert.Equal(t, tt.want, f.manager.Healthy(context.Background(), port))
		})
	}
}

// TestHealthy_NoListener_IsDown tests probe against a closed port
func TestHealthy_NoListener_IsDown(t *testing.T) {
	f := newManagerFixture(t, true)
	assert.False(t, f.manager.Healthy(context.Background(), closedPort(t)))
}

// TestWaitReady_HealthyEndpoint_ReturnsPromptly tests the ready path
func TestWaitReady_HealthyEndpoint_ReturnsPromptly(t *testing.T) {
	_, port := healthServer(t, http.StatusOK)
	f := newManagerFixture(t, true)

	err := f.manager.WaitReady(context.Background(), port, time.Second, 0)
	assert.NoError(t, err)
}

// TestWaitReady_DeadPid_FailsBeforeTimeout tests crash detection
func TestWaitReady_DeadPid_FailsBeforeTimeout(t *testing.T) {
	f := newManagerFixture(t, true)
	port := closedPort(t)
	f.aliveState[777] = false

	logPath := f.store.Path(LogKey(port))
	require.NoError(t, os.WriteFile(logPath, []byte("fatal: missing workspace\n"), 0o644))

	start := time.Now()
	err := f.manager.WaitReady(context.Background(), port, 10*time.Second, 777)
	elapsed := time.Since(start)

	var crashed *CrashedError
	require.True(t, errors.As(err, &crashed))
	assert.Equal(t, 777, crashed.PID)
	assert.Contains(t, crashed.LogTail, "missing workspace")
	assert.Less(t, elapsed, 5*time.Second, "crash must fail well before the timeout")
}

// TestWaitReady_Timeout_FailsWithLogTail tests deadline behavior
func TestWaitReady_Timeout_FailsWithLogTail(t *testing.T) {
	f := newManagerFixture(t, true)
	port := closedPort(t)
	f.aliveState[777] = true

	require.NoError(t, os.WriteFile(f.store.Path(LogKey(port)), []byte("still starting\n"), 0o644))

	err := f.manager.WaitReady(context.Background(), port, 30*time.Millisecond, 777)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, port, timeout.Port)
	assert.Contains(t, timeout.LogTail, "still starting")
}

// TestWaitReady_NoPid_TimesOutWithoutLivenessChecks tests the pid-less wait
func TestWaitReady_NoPid_TimesOutWithoutLivenessChecks(t *testing.T) {
	f := newManagerFixture(t, true)

	err := f.manager.WaitReady(context.Background(), closedPort(t), 20*time.Millisecond, 0)

	var timeout *TimeoutError
	assert.True(t, errors.As(err, &timeout))
}

// TestStop_NonPositivePid_SendsNothing tests the no-op contract
func TestStop_NonPositivePid_SendsNothing(t *testing.T) {
	for _, pid := range []int{0, -1, -42} {
		f := newManagerFixture(t, true)
		f.manager.Stop(pid)
		assert.Empty(t, f.terminated, "pid %d", pid)
		assert.Empty(t, f.killed, "pid %d", pid)
	}
}

// TestStop_GracefulExit_NoKill tests the graceful path
func TestStop_GracefulExit_NoKill(t *testing.T) {
	f := newManagerFixture(t, true)
	f.aliveState[777] = false

	f.manager.Stop(777)

	assert.Equal(t, []int{777}, f.terminated)
	assert.Empty(t, f.killed)
}

// TestStop_SurvivesGrace_Killed tests the forced path
func TestStop_SurvivesGrace_Killed(t *testing.T) {
	f := newManagerFixture(t, true)
	f.aliveState[777] = true

	f.manager.Stop(777)

	assert.Equal(t, []int{777}, f.terminated)
	assert.Equal(t, []int{777}, f.killed)
}

// TestStop_ProcessAlreadyGone_TreatedAsStopped tests ESRCH handling
func TestStop_ProcessAlreadyGone_TreatedAsStopped(t *testing.T) {
	f := newManagerFixture(t, true)
	f.termErrs[777] = os.ErrProcessDone

	f.manager.Stop(777)

	assert.Equal(t, []int{777}, f.terminated)
	assert.Empty(t, f.killed, "no kill after an already-gone signal error")
}

// TestStop_OtherSignalError_IsNonFatalWarning tests that Stop never escalates
func TestStop_OtherSignalError_IsNonFatalWarning(t *testing.T) {
	f := newManagerFixture(t, true)
	f.termErrs[777] = fmt.Errorf("operation not permitted")

	f.manager.Stop(777)

	assert.Equal(t, []int{777}, f.terminated)
	assert.Empty(t, f.killed)
}

// TestLogKey_IsPerPort tests log file naming
func TestLogKey_IsPerPort(t *testing.T) {
	assert.Equal(t, "boringcache-proxy-5000.log", LogKey(5000))
	assert.NotEqual(t, LogKey(5000), LogKey(5001))
}
