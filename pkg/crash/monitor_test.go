package crash

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testdb "github.com/codeready-toolchain/loom/test/database"
)

func newTestMonitors(t *testing.T) *Monitors {
	t.Helper()
	return NewMonitors(testdb.NewTestClient(t).Client)
}

func TestEnsureCreatesThenReturnsExisting(t *testing.T) {
	ctx := context.Background()
	monitors := newTestMonitors(t)

	first, err := monitors.Ensure(ctx, "org-1", "nightly-sync", time.Hour, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, MonitorUnknown, first.Status)

	second, err := monitors.Ensure(ctx, "org-1", "nightly-sync", time.Hour, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestPingTransitionsStatus(t *testing.T) {
	ctx := context.Background()
	monitors := newTestMonitors(t)

	_, err := monitors.Ensure(ctx, "org-1", "backup", time.Hour, 0)
	require.NoError(t, err)

	started, err := monitors.Ping(ctx, "org-1", "backup", PingStart)
	require.NoError(t, err)
	require.Equal(t, MonitorInProgress, started.Status)

	ok, err := monitors.Ping(ctx, "org-1", "backup", PingOK)
	require.NoError(t, err)
	require.Equal(t, MonitorOK, ok.Status)
	require.NotNil(t, ok.LastPingAt)

	failed, err := monitors.Ping(ctx, "org-1", "backup", PingFail)
	require.NoError(t, err)
	require.Equal(t, MonitorFailed, failed.Status)
}

func TestPingUnknownMonitorReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	monitors := newTestMonitors(t)

	_, err := monitors.Ping(ctx, "org-1", "never-registered", PingOK)
	require.Error(t, err)
}

func TestListFlagsOverdueMonitorsAsFailed(t *testing.T) {
	ctx := context.Background()
	monitors := newTestMonitors(t)

	_, err := monitors.Ensure(ctx, "org-1", "stale-job", time.Millisecond, 0)
	require.NoError(t, err)
	_, err = monitors.Ping(ctx, "org-1", "stale-job", PingOK)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	list, err := monitors.List(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, MonitorFailed, list[0].Status)
}
