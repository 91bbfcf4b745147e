package catalog

import (
	"fmt"

	"github.com/vanguarddb/vanguard/pkg/placement"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// SetReplicationInfo installs ri as the cluster-wide default placement
// policy, bumping ClusterConfig.Version.
func (m *Manager) SetReplicationInfo(ri *types.ReplicationInfo) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	live := m.tservers.AllLive(defaultHeartbeatStaleAfter)
	if err := placementValidateOrNil(ri, live); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
	}
	return m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		cfg.ReplicationInfo = ri
	})
}

// SetServerBlacklist replaces the set of tablet servers the Load
// Balancer must evacuate all replicas from.
func (m *Manager) SetServerBlacklist(uuids []string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	return m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		cfg.ServerBlacklist = append([]string(nil), uuids...)
	})
}

// SetLeaderBlacklist replaces the set of tablet servers the Load
// Balancer must move tablet leadership off of, distinct from a full
// ServerBlacklist evacuation.
func (m *Manager) SetLeaderBlacklist(uuids []string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	return m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		cfg.LeaderBlacklist = append([]string(nil), uuids...)
	})
}

// ChangeEncryptionInfo enables or disables cluster-wide encryption at
// rest and records the active universe key.
func (m *Manager) ChangeEncryptionInfo(enabled bool, universeKeyID string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	return m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		cfg.EncryptionInfo.Enabled = enabled
		if enabled {
			cfg.EncryptionInfo.UniverseKeyID = universeKeyID
			cfg.EncryptionInfo.KeyVersion++
		}
	})
}

// IsEncryptionEnabled reports whether cluster-wide encryption at rest is
// currently enabled.
func (m *Manager) IsEncryptionEnabled() bool {
	return m.ClusterConfig().EncryptionInfo.Enabled
}

// mutateClusterConfig runs mutate against a dirty copy of the current
// cluster config, bumps its version, and commits it.
func (m *Manager) mutateClusterConfig(mutate func(*types.ClusterConfig)) error {
	current := m.ClusterConfig()
	txn, err := beginTxn[types.ClusterConfig](m, storage.KindClusterConfig, "cluster_config", *current.Clone())
	if err != nil {
		return err
	}
	mutate(txn.Dirty())
	txn.Dirty().Version = current.Version + 1
	return txn.Commit()
}

// placementValidateOrNil validates ri against live servers, tolerating a
// nil ri (clearing the cluster-wide policy is always allowed).
func placementValidateOrNil(ri *types.ReplicationInfo, live []*types.TabletServer) error {
	if ri == nil {
		return nil
	}
	return placement.Validate(ri, live)
}
