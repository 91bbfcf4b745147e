package catalog

import (
	"fmt"

	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// GetTablet returns the tablet with the given id.
func (m *Manager) GetTablet(id string) (*types.Tablet, error) {
	t, ok := m.registry.getTablet(id)
	if !ok {
		return nil, fmt.Errorf("%w: tablet %q", ErrNotFound, id)
	}
	return t, nil
}

// ListTablets returns every known tablet.
func (m *Manager) ListTablets() []*types.Tablet {
	return m.registry.listTablets()
}

// AddReplica adds a new replica of tabletID on the given tablet server,
// starting in state STARTING. It is how the Load Balancer corrects
// under-replication and wrong-placement; the actual tablet-server RPC
// that brings the replica up to date is not issued here: the caller
// issues it first (pkg/balancer sends ChangeConfig before AddReplica).
func (m *Manager) AddReplica(tabletID, tsUUID string, memberType types.MemberType) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	tablet, ok := m.registry.getTablet(tabletID)
	if !ok {
		return fmt.Errorf("%w: tablet %q", ErrNotFound, tabletID)
	}
	if _, exists := tablet.ReplicaLocations[tsUUID]; exists {
		return fmt.Errorf("%w: tablet %q already has a replica on %q", ErrAlreadyPresent, tabletID, tsUUID)
	}

	txn, err := beginTxn[types.Tablet](m, storage.KindTablet, tabletID, *tablet)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()
	if dirty.ReplicaLocations == nil {
		dirty.ReplicaLocations = make(map[string]*types.ReplicaLocation)
	}
	dirty.ReplicaLocations[tsUUID] = &types.ReplicaLocation{
		Role:       types.RoleFollower,
		MemberType: memberType,
		State:      types.ReplicaStarting,
	}
	return txn.Commit()
}

// RemoveReplica removes the replica of tabletID on the given tablet
// server, correcting over-replication or completing a relocation.
func (m *Manager) RemoveReplica(tabletID, tsUUID string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	tablet, ok := m.registry.getTablet(tabletID)
	if !ok {
		return fmt.Errorf("%w: tablet %q", ErrNotFound, tabletID)
	}
	if _, exists := tablet.ReplicaLocations[tsUUID]; !exists {
		return fmt.Errorf("%w: tablet %q has no replica on %q", ErrNotFound, tabletID, tsUUID)
	}

	txn, err := beginTxn[types.Tablet](m, storage.KindTablet, tabletID, *tablet)
	if err != nil {
		return err
	}
	delete(txn.Dirty().ReplicaLocations, tsUUID)
	return txn.Commit()
}

// MoveLeader marks newLeaderUUID as the tablet's leader replica and
// demotes every other voter to follower. It does not itself perform the
// Raft leadership transfer on the tablet's peer group — that RPC is
// issued by the caller first (pkg/balancer sends LeaderStepDown before
// MoveLeader).
func (m *Manager) MoveLeader(tabletID, newLeaderUUID string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	tablet, ok := m.registry.getTablet(tabletID)
	if !ok {
		return fmt.Errorf("%w: tablet %q", ErrNotFound, tabletID)
	}
	loc, exists := tablet.ReplicaLocations[newLeaderUUID]
	if !exists || loc.MemberType != types.MemberVoter {
		return fmt.Errorf("catalog: %q is not a voter of tablet %q", newLeaderUUID, tabletID)
	}

	txn, err := beginTxn[types.Tablet](m, storage.KindTablet, tabletID, *tablet)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()
	for uuid, rl := range dirty.ReplicaLocations {
		if rl.MemberType != types.MemberVoter {
			continue
		}
		if uuid == newLeaderUUID {
			rl.Role = types.RoleLeader
		} else if rl.Role == types.RoleLeader {
			rl.Role = types.RoleFollower
		}
	}
	return txn.Commit()
}

// ReplicaCount returns the number of voter replicas a tablet currently
// has, used by the Load Balancer to detect under/over-replication.
func ReplicaCount(t *types.Tablet) int {
	n := 0
	for _, rl := range t.ReplicaLocations {
		if rl.MemberType == types.MemberVoter {
			n++
		}
	}
	return n
}
