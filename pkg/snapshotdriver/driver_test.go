package snapshotdriver

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func bootTestManager(t *testing.T) *catalog.Manager {
	t.Helper()
	dir := t.TempDir()
	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))

	mgr, err := catalog.NewManager(catalog.Config{
		NodeID:   "node-1",
		BindAddr: addr,
		DataDir:  dir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown() })

	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 10*time.Millisecond, "manager never won its own election")
	return mgr
}

func singleBlockReplication(n int) *types.ReplicationInfo {
	return &types.ReplicationInfo{
		LivePlacement: types.PlacementInfo{NumReplicas: n},
	}
}

// TestRunOnceSkipsTerminalSnapshots confirms a nil rpc client (no
// tablet servers to actually dial in this test) still lets RunOnce
// dispatch without panicking, and that an already-complete snapshot
// is never touched again.
func TestRunOnceSkipsTerminalSnapshots(t *testing.T) {
	mgr := bootTestManager(t)
	mgr.TSHeartbeat(catalog.HeartbeatRequest{
		UUID:          "ts-1",
		InstanceSeqno: 1,
		Registration:  types.TSRegistration{Cloud: "aws", Region: "us-east", Zone: "1a", RPCAddresses: []string{"127.0.0.1:9200"}},
	})

	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	table, err := mgr.CreateTable(catalog.CreateTableRequest{
		Name: "accounts", NamespaceID: ns.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(1),
	})
	require.NoError(t, err)

	snap, err := mgr.CreateSnapshot(catalog.CreateSnapshotRequest{TableIDs: []string{table.ID}})
	require.NoError(t, err)
	for tabletID := range snap.TabletStates {
		require.NoError(t, mgr.ReportTabletSnapshotDone(snap.ID, tabletID, true))
	}
	done, err := mgr.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, types.SnapshotComplete, done.State)

	d := New(mgr, nil, time.Hour)
	require.NotPanics(t, func() { d.RunOnce() })

	after, err := mgr.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, types.SnapshotComplete, after.State)
}

func TestRunOnceIsNoopWhenNotLeader(t *testing.T) {
	// Never bootstrapped, so this manager cannot win an election.
	mgr, err := catalog.NewManager(catalog.Config{
		NodeID:   "node-1",
		BindAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t)),
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown() })
	require.False(t, mgr.IsLeader())

	d := New(mgr, nil, time.Hour)
	require.NotPanics(t, func() { d.RunOnce() })
}
