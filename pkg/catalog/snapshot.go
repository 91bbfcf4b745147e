package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// CreateSnapshotRequest names the tables to include. Their owning
// namespaces and all of their tablets are captured too.
type CreateSnapshotRequest struct {
	TableIDs []string
}

// CreateSnapshot captures the current metadata of the given tables (and
// their namespaces and tablets) into a new Snapshot in state CREATING.
// Only one snapshot operation may be in flight across the whole
// cluster at a time.
func (m *Manager) CreateSnapshot(req CreateSnapshotRequest) (*types.Snapshot, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}
	if len(req.TableIDs) == 0 {
		return nil, fmt.Errorf("catalog: snapshot requires at least one table")
	}
	if m.registry.anySnapshotInFlight("") {
		return nil, ErrParallelSnapshotOperation
	}

	var entries []types.SnapshotEntry
	tabletStates := make(map[string]types.TabletSnapshotState)
	seenNamespaces := make(map[string]bool)

	for _, tableID := range req.TableIDs {
		table, ok := m.registry.getTable(tableID)
		if !ok {
			return nil, fmt.Errorf("%w: table %q", ErrNotFound, tableID)
		}
		if !seenNamespaces[table.NamespaceID] {
			ns, ok := m.registry.getNamespace(table.NamespaceID)
			if !ok {
				return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, table.NamespaceID)
			}
			data, err := json.Marshal(ns)
			if err != nil {
				return nil, err
			}
			entries = append(entries, types.SnapshotEntry{Kind: types.EntryNamespace, ID: ns.ID, Metadata: data})
			seenNamespaces[table.NamespaceID] = true
		}

		tableData, err := json.Marshal(table)
		if err != nil {
			return nil, err
		}
		entries = append(entries, types.SnapshotEntry{Kind: types.EntryTable, ID: table.ID, Metadata: tableData})

		for _, tabletID := range table.TabletIDs {
			tablet, ok := m.registry.getTablet(tabletID)
			if !ok {
				continue
			}
			tabletData, err := json.Marshal(tablet)
			if err != nil {
				return nil, err
			}
			entries = append(entries, types.SnapshotEntry{Kind: types.EntryTablet, ID: tablet.ID, TableID: table.ID, Metadata: tabletData})
			tabletStates[tablet.ID] = types.TabletSnapshotCreating
		}
	}

	snap := types.Snapshot{
		ID:           uuid.New().String(),
		State:        types.SnapshotCreating,
		Entries:      entries,
		TabletStates: tabletStates,
		CreatedAt:    time.Now(),
	}
	txn, err := beginTxn[types.Snapshot](m, storage.KindSnapshot, snap.ID, types.Snapshot{})
	if err != nil {
		return nil, err
	}
	*txn.Dirty() = snap
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	metrics.SnapshotsTotal.WithLabelValues(string(types.SnapshotCreating)).Inc()
	return &snap, nil
}

// GetSnapshot returns the snapshot with the given id.
func (m *Manager) GetSnapshot(id string) (*types.Snapshot, error) {
	s, ok := m.registry.getSnapshot(id)
	if !ok {
		return nil, fmt.Errorf("%w: snapshot %q", ErrNotFound, id)
	}
	return s, nil
}

// ListSnapshots returns every known snapshot.
func (m *Manager) ListSnapshots() []*types.Snapshot {
	return m.registry.listSnapshots()
}

// RestoreSnapshot starts restoring a COMPLETE snapshot, provided every
// namespace/table/tablet it references still exists. A snapshot whose
// referenced entities have since been dropped cannot be restored;
// the dropped entities are not rebuilt.
func (m *Manager) RestoreSnapshot(id string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	snap, ok := m.registry.getSnapshot(id)
	if !ok {
		return fmt.Errorf("%w: snapshot %q", ErrNotFound, id)
	}
	if snap.State != types.SnapshotComplete {
		return fmt.Errorf("catalog: snapshot %q is not restorable from state %s", id, snap.State)
	}
	if m.registry.anySnapshotInFlight(id) {
		return ErrParallelSnapshotOperation
	}
	if err := m.checkSnapshotEntriesExist(snap); err != nil {
		return err
	}

	txn, err := beginTxn[types.Snapshot](m, storage.KindSnapshot, id, *snap)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()
	dirty.State = types.SnapshotRestoring
	for tabletID := range dirty.TabletStates {
		dirty.TabletStates[tabletID] = types.TabletSnapshotRestoring
	}
	return txn.Commit()
}

// DeleteSnapshot starts deleting a terminal (non in-flight) snapshot.
func (m *Manager) DeleteSnapshot(id string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	snap, ok := m.registry.getSnapshot(id)
	if !ok {
		return fmt.Errorf("%w: snapshot %q", ErrNotFound, id)
	}
	if !snap.State.IsTerminal() {
		return ErrParallelSnapshotOperation
	}

	txn, err := beginTxn[types.Snapshot](m, storage.KindSnapshot, id, *snap)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()
	dirty.State = types.SnapshotDeleting
	for tabletID := range dirty.TabletStates {
		dirty.TabletStates[tabletID] = types.TabletSnapshotDeleting
	}
	return txn.Commit()
}

// ReportTabletSnapshotDone records the outcome of one tablet server's
// half of a create/restore/delete operation; pkg/snapshotdriver calls
// it directly once each tablet RPC returns. The snapshot moves to its next
// terminal state once every tablet has reported in.
func (m *Manager) ReportTabletSnapshotDone(snapshotID, tabletID string, success bool) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	snap, ok := m.registry.getSnapshot(snapshotID)
	if !ok {
		return fmt.Errorf("%w: snapshot %q", ErrNotFound, snapshotID)
	}
	if snap.State.IsTerminal() {
		return nil // late callback for an operation that already finished
	}

	txn, err := beginTxn[types.Snapshot](m, storage.KindSnapshot, snapshotID, *snap)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()

	if !success {
		dirty.TabletStates[tabletID] = types.TabletSnapshotFailed
		dirty.State = types.SnapshotFailed
		metrics.SnapshotsTotal.WithLabelValues(string(types.SnapshotFailed)).Inc()
		return txn.Commit()
	}

	switch dirty.State {
	case types.SnapshotDeleting:
		dirty.TabletStates[tabletID] = types.TabletSnapshotDeleted
	default:
		dirty.TabletStates[tabletID] = types.TabletSnapshotComplete
	}

	if allTabletStatesTerminal(dirty) {
		switch dirty.State {
		case types.SnapshotDeleting:
			dirty.State = types.SnapshotDeleted
		default:
			dirty.State = types.SnapshotComplete
		}
		metrics.SnapshotsTotal.WithLabelValues(string(dirty.State)).Inc()
	}
	return txn.Commit()
}

func allTabletStatesTerminal(s *types.Snapshot) bool {
	for _, st := range s.TabletStates {
		if st != types.TabletSnapshotComplete && st != types.TabletSnapshotDeleted {
			return false
		}
	}
	return true
}

func (m *Manager) checkSnapshotEntriesExist(snap *types.Snapshot) error {
	for _, e := range snap.Entries {
		switch e.Kind {
		case types.EntryNamespace:
			if _, ok := m.registry.getNamespace(e.ID); !ok {
				return fmt.Errorf("%w: namespace %q referenced by snapshot %q no longer exists", ErrNotSupported, e.ID, snap.ID)
			}
		case types.EntryTable:
			if _, ok := m.registry.getTable(e.ID); !ok {
				return fmt.Errorf("%w: table %q referenced by snapshot %q no longer exists", ErrNotSupported, e.ID, snap.ID)
			}
		case types.EntryTablet:
			if _, ok := m.registry.getTablet(e.ID); !ok {
				return fmt.Errorf("%w: tablet %q referenced by snapshot %q no longer exists", ErrNotSupported, e.ID, snap.ID)
			}
		}
	}
	return nil
}
