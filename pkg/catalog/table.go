package catalog

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vanguarddb/vanguard/pkg/placement"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// CreateTableRequest describes a new table to create.
type CreateTableRequest struct {
	Name             string
	NamespaceID      string
	Schema           *types.Schema
	PartitionSchema  *types.PartitionSchema
	ReplicationInfo  *types.ReplicationInfo // nil means "use the cluster-wide policy"
	NumTablets       int
	WALRetentionSecs int64
}

// CreateTable creates a table, splits its key space into NumTablets
// tablets, and assigns each tablet's initial replicas under the
// resolved replication policy.
func (m *Manager) CreateTable(req CreateTableRequest) (*types.Table, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}
	if _, ok := m.registry.getNamespace(req.NamespaceID); !ok {
		return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, req.NamespaceID)
	}
	if _, ok := m.registry.findTableByName(req.NamespaceID, req.Name); ok {
		return nil, fmt.Errorf("%w: table %q", ErrAlreadyPresent, req.Name)
	}
	if req.NumTablets <= 0 {
		req.NumTablets = 1
	}

	ri := req.ReplicationInfo
	if ri == nil {
		ri = m.ClusterConfig().ReplicationInfo
	}
	if ri == nil {
		return nil, fmt.Errorf("catalog: no replication policy: neither the table nor the cluster config specifies one")
	}

	live := m.tservers.AllLive(defaultHeartbeatStaleAfter)
	if err := placement.Validate(ri, live); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
	}

	table := &types.Table{
		ID:               uuid.New().String(),
		Name:             req.Name,
		NamespaceID:      req.NamespaceID,
		Schema:           req.Schema,
		PartitionSchema:  req.PartitionSchema,
		ReplicationInfo:  req.ReplicationInfo,
		State:            types.TablePreparing,
		WALRetentionSecs: req.WALRetentionSecs,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	partitions := splitKeyspace(req.NumTablets)
	tablets := make([]*types.Tablet, 0, len(partitions))
	for _, part := range partitions {
		assignments, err := placement.AssignReplicas(ri, live)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
		}
		tablet := &types.Tablet{
			ID:               uuid.New().String(),
			TableID:          table.ID,
			Partition:        part,
			State:            types.TabletPreparing,
			ReplicaLocations: make(map[string]*types.ReplicaLocation, len(assignments)),
			CreatedAt:        time.Now(),
		}
		for i, a := range assignments {
			role := types.RoleFollower
			if i == 0 && a.MemberType == types.MemberVoter {
				role = types.RoleLeader
			}
			if a.MemberType == types.MemberObserver {
				role = types.RoleNonParticipant
			}
			tablet.ReplicaLocations[a.TabletServer.UUID] = &types.ReplicaLocation{
				Role:       role,
				MemberType: a.MemberType,
				State:      types.ReplicaStarting,
			}
		}
		tablets = append(tablets, tablet)
		table.TabletIDs = append(table.TabletIDs, tablet.ID)
	}

	for _, tablet := range tablets {
		txn, err := beginTxn[types.Tablet](m, storage.KindTablet, tablet.ID, types.Tablet{})
		if err != nil {
			return nil, err
		}
		*txn.Dirty() = *tablet
		if err := txn.Commit(); err != nil {
			return nil, err
		}
	}

	table.State = types.TableRunning
	txn, err := beginTxn[types.Table](m, storage.KindTable, table.ID, types.Table{})
	if err != nil {
		return nil, err
	}
	*txn.Dirty() = *table
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return table, nil
}

// splitKeyspace divides the full two-byte hash range into n
// contiguous, roughly equal partitions.
func splitKeyspace(n int) []types.Partition {
	const space = 1 << 16
	step := space / n
	out := make([]types.Partition, 0, n)
	for i := 0; i < n; i++ {
		var start, end []byte
		if i > 0 {
			start = encodeHashKey(i * step)
		}
		if i < n-1 {
			end = encodeHashKey((i + 1) * step)
		}
		out = append(out, types.Partition{StartKey: start, EndKey: end})
	}
	return out
}

func encodeHashKey(v int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

// GetTable returns the table with the given id.
func (m *Manager) GetTable(id string) (*types.Table, error) {
	t, ok := m.registry.getTable(id)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, id)
	}
	return t, nil
}

// ListTables returns every known table.
func (m *Manager) ListTables() []*types.Table {
	return m.registry.listTables()
}

// ListTabletsForTable returns a table's tablets ordered by partition
// start key.
func (m *Manager) ListTabletsForTable(tableID string) []*types.Tablet {
	return m.registry.listTabletsForTable(tableID)
}

// DeleteTable marks a table DELETING, marks all its tablets DELETED,
// then marks the table DELETED.
func (m *Manager) DeleteTable(id string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	table, ok := m.registry.getTable(id)
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, id)
	}

	txn, err := beginTxn[types.Table](m, storage.KindTable, id, *table)
	if err != nil {
		return err
	}
	txn.Dirty().State = types.TableDeleting
	if err := txn.Commit(); err != nil {
		return err
	}

	for _, tabletID := range table.TabletIDs {
		tablet, ok := m.registry.getTablet(tabletID)
		if !ok {
			continue
		}
		txn, err := beginTxn[types.Tablet](m, storage.KindTablet, tabletID, *tablet)
		if err != nil {
			return err
		}
		txn.Dirty().State = types.TabletDeleted
		if err := txn.Commit(); err != nil {
			return err
		}
	}

	table, ok = m.registry.getTable(id)
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, id)
	}
	txn, err = beginTxn[types.Table](m, storage.KindTable, id, *table)
	if err != nil {
		return err
	}
	txn.Dirty().State = types.TableDeleted
	return txn.Commit()
}
