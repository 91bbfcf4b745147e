package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanguarddb/vanguard/pkg/types"
)

// setupReplicatedTable wires up a minimal consumer-registry entry for
// one producer table/tablet pair mapping onto consumerTable, bypassing
// the producer-cluster RPC stages SetupUniverseReplication normally
// drives, exactly as its doc comment says a caller may.
func setupReplicatedTable(t *testing.T, mgr *Manager, producerID, producerTableID, producerTabletID string, consumerTable *types.Table) {
	t.Helper()
	_, err := mgr.SetupUniverseReplication(SetupUniverseReplicationRequest{
		ProducerID:              producerID,
		ProducerMasterAddresses: []string{"127.0.0.1:9999"},
		ProducerTables:          map[string]*types.Schema{producerTableID: nil},
		ProducerTabletIDs:       map[string][]string{producerTableID: {producerTabletID}},
		ConsumerTableIDs:        map[string]string{producerTableID: consumerTable.ID},
		ProducerStreamIDs:       map[string]string{producerTableID: "stream-" + producerTableID},
	})
	require.NoError(t, err)
}

func TestRecomputeNamespaceSafeTimesClampsToSystemNamespace(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}

	sysNS, err := mgr.CreateNamespace(systemNamespaceName, types.NamespaceTypeOther)
	require.NoError(t, err)
	sysTable, err := mgr.CreateTable(CreateTableRequest{
		Name: "sys-table", NamespaceID: sysNS.ID, NumTablets: 1,
		ReplicationInfo: &types.ReplicationInfo{LivePlacement: types.PlacementInfo{NumReplicas: 1}},
	})
	require.NoError(t, err)

	bankNS, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	bankTable, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: bankNS.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)

	setupReplicatedTable(t, mgr, "prod-sys", "p-sys-table", "p-sys-tablet", sysTable)
	setupReplicatedTable(t, mgr, "prod-bank", "p-bank-table", "p-bank-tablet", bankTable)

	require.NoError(t, mgr.UpdateSafeTime("prod-sys", "p-sys-tablet", 1000<<hybridTimeLogicalBits))
	require.NoError(t, mgr.UpdateSafeTime("prod-bank", "p-bank-tablet", 5000<<hybridTimeLogicalBits))

	require.NoError(t, mgr.RecomputeNamespaceSafeTimes())

	sysSafeTime, err := mgr.NamespaceSafeTime(sysNS.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1000<<hybridTimeLogicalBits), sysSafeTime)

	bankSafeTime, err := mgr.NamespaceSafeTime(bankNS.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1000<<hybridTimeLogicalBits), bankSafeTime, "bank namespace's safe time should be clamped down to the system namespace's lower value")
}

func TestRecomputeNamespaceSafeTimesNeverRegresses(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}

	bankNS, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	bankTable, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: bankNS.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)
	setupReplicatedTable(t, mgr, "prod-bank", "p-bank-table", "p-bank-tablet", bankTable)

	require.NoError(t, mgr.UpdateSafeTime("prod-bank", "p-bank-tablet", 5000<<hybridTimeLogicalBits))
	require.NoError(t, mgr.RecomputeNamespaceSafeTimes())
	first, err := mgr.NamespaceSafeTime(bankNS.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(5000<<hybridTimeLogicalBits), first)

	// UpdateSafeTime itself already drops a regressing report, but a stale
	// recompute of an unrelated namespace must not regress this one either.
	require.NoError(t, mgr.RecomputeNamespaceSafeTimes())
	second, err := mgr.NamespaceSafeTime(bankNS.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRecomputeNamespaceSafeTimesDeletesStaleRows(t *testing.T) {
	mgr := newTestManager(t)
	for i := 1; i <= 3; i++ {
		liveTabletServer(t, mgr, fmt.Sprintf("ts-%d", i), "aws", "us-east", "1a")
	}

	bankNS, err := mgr.CreateNamespace("bank", types.NamespaceTypeYSQL)
	require.NoError(t, err)
	bankTable, err := mgr.CreateTable(CreateTableRequest{
		Name: "accounts", NamespaceID: bankNS.ID, NumTablets: 1, ReplicationInfo: singleBlockReplication(3),
	})
	require.NoError(t, err)
	setupReplicatedTable(t, mgr, "prod-bank", "p-bank-table", "p-bank-tablet", bankTable)
	require.NoError(t, mgr.UpdateSafeTime("prod-bank", "p-bank-tablet", 5000<<hybridTimeLogicalBits))

	require.NoError(t, mgr.DeleteUniverseReplication("prod-bank"))
	require.NoError(t, mgr.RecomputeNamespaceSafeTimes())

	_, err = mgr.MinSafeTime("prod-bank")
	require.Error(t, err, "safe-time rows orphaned by a deleted universe should be cleaned up")
}
