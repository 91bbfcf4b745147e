package catalog

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vanguarddb/vanguard/pkg/types"
)

// freePort asks the OS for an unused TCP port, then immediately
// releases it for the Raft transport to rebind.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// newTestManager boots a single-node Manager rooted at itself and waits
// for it to win its own Raft election before returning.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))

	mgr, err := NewManager(Config{
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

func liveTabletServer(t *testing.T, mgr *Manager, uuid string, cloud, region, zone string) {
	t.Helper()
	mgr.tservers.Heartbeat(HeartbeatRequest{
		UUID:          uuid,
		InstanceSeqno: 1,
		Registration:  types.TSRegistration{Cloud: cloud, Region: region, Zone: zone},
	})
}

func singleBlockReplication(n int) *types.ReplicationInfo {
	return &types.ReplicationInfo{
		LivePlacement: types.PlacementInfo{
			NumReplicas: n,
		},
	}
}

func TestNamespaceTableTabletLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}

	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	require.Equal(t, types.NamespaceCreated, ns.State)

	_, err = mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.ErrorIs(t, err, ErrAlreadyPresent)

	table, err := mgr.CreateTable(CreateTableRequest{
		Name:            "accounts",
		NamespaceID:     ns.ID,
		NumTablets:      3,
		ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)
	require.Equal(t, types.TableRunning, table.State)
	require.Len(t, table.TabletIDs, 3)

	tablets := mgr.ListTabletsForTable(table.ID)
	require.Len(t, tablets, 3)
	for _, tablet := range tablets {
		require.Equal(t, 3, ReplicaCount(tablet))
	}

	require.NoError(t, mgr.DeleteTable(table.ID))
	deleted, err := mgr.GetTable(table.ID)
	require.NoError(t, err)
	require.Equal(t, types.TableDeleted, deleted.State)

	require.NoError(t, mgr.DeleteNamespace(ns.ID))
}

func TestSnapshotCreateRestoreHappyPath(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}
	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	table, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: ns.ID, NumTablets: 2, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)

	snap, err := mgr.CreateSnapshot(CreateSnapshotRequest{TableIDs: []string{table.ID}})
	require.NoError(t, err)
	require.Equal(t, types.SnapshotCreating, snap.State)

	for tabletID := range snap.TabletStates {
		require.NoError(t, mgr.ReportTabletSnapshotDone(snap.ID, tabletID, true))
	}
	done, err := mgr.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, types.SnapshotComplete, done.State)

	require.NoError(t, mgr.RestoreSnapshot(snap.ID))
	restoring, err := mgr.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, types.SnapshotRestoring, restoring.State)

	for tabletID := range restoring.TabletStates {
		require.NoError(t, mgr.ReportTabletSnapshotDone(snap.ID, tabletID, true))
	}
	finished, err := mgr.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, types.SnapshotComplete, finished.State)
}

func TestParallelSnapshotConflict(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}
	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	table, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: ns.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)

	_, err = mgr.CreateSnapshot(CreateSnapshotRequest{TableIDs: []string{table.ID}})
	require.NoError(t, err)

	_, err = mgr.CreateSnapshot(CreateSnapshotRequest{TableIDs: []string{table.ID}})
	require.ErrorIs(t, err, ErrParallelSnapshotOperation)
}

func TestCDCStreamLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}
	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	table, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: ns.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)

	stream, err := mgr.CreateCDCStream(table.ID, map[string]string{"wal_retention_secs": "3600"})
	require.NoError(t, err)
	require.Equal(t, types.CDCStreamActive, stream.State)

	reread, err := mgr.GetTable(table.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3600), reread.WALRetentionSecs)

	again, err := mgr.CreateCDCStream(table.ID, nil)
	require.NoError(t, err)
	require.Equal(t, stream.ID, again.ID, "creating a stream for an already-streamed table is idempotent")

	require.NoError(t, mgr.RecordCDCCheckpoint("tablet-x", stream.ID, "checkpoint-1", nil))
	row, err := mgr.GetCDCCheckpoint("tablet-x", stream.ID)
	require.NoError(t, err)
	require.Equal(t, "checkpoint-1", row.Checkpoint)

	require.NoError(t, mgr.DeleteCDCStream(stream.ID))
	deleting, err := mgr.GetCDCStream(stream.ID)
	require.NoError(t, err)
	require.Equal(t, types.CDCStreamDeleting, deleting.State)

	cleaner := NewCDCCleaner(mgr, time.Hour)
	cleaner.runOnce()
	_, err = mgr.GetCDCStream(stream.ID)
	require.ErrorIs(t, err, ErrNotFound, "the cleaner should have removed the stream entity entirely")
}

func TestSetupUniverseReplicationSchemaMismatch(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}
	ns, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	consumerTable, err := mgr.CreateTable(CreateTableRequest{
		Name:        "accounts",
		NamespaceID: ns.ID,
		NumTablets:  1,
		Schema: &types.Schema{Columns: []types.Column{
			{Name: "id", DataType: "int64", IsKey: true},
		}},
		ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)

	producerSchema := &types.Schema{Columns: []types.Column{
		{Name: "id", DataType: "int64", IsKey: true},
		{Name: "balance", DataType: "int64"},
	}}

	_, err = mgr.SetupUniverseReplication(SetupUniverseReplicationRequest{
		ProducerID:              "producer-1",
		ProducerMasterAddresses: []string{"10.0.0.1:7100"},
		ProducerTables:          map[string]*types.Schema{"producer-table-1": producerSchema},
		ConsumerTableIDs:        map[string]string{"producer-table-1": consumerTable.ID},
	})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	universe, err := mgr.GetUniverseReplication("producer-1")
	require.NoError(t, err)
	require.Equal(t, types.UniverseFailed, universe.State)
}
