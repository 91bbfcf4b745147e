package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/vanguarddb/vanguard/pkg/types"
)

// ImportSnapshotRequest carries the entries of a snapshot exported from
// another cluster (or this one, for an idempotency check), identified
// by their IDs in the source cluster.
type ImportSnapshotRequest struct {
	Entries []types.SnapshotEntry
}

// ImportSnapshotResult maps every source-cluster entity ID to the ID it
// now has in this cluster: a freshly created one, or the ID of an
// already-present entity the import matched by name.
type ImportSnapshotResult struct {
	NamespaceIDMap map[string]string
	TableIDMap     map[string]string
	TabletIDMap    map[string]string
}

// ImportSnapshot installs the namespaces, tables and tablets described
// by req in two passes: namespaces first, then tables, so the table
// pass can resolve the namespace IDs the first pass remapped. Each
// table's tablets are mapped while that table is handled, by position:
// its tablet entries, in the order they appear in req, are paired with
// the table's tablet IDs in order. Tablets are not matched by partition
// key range, and entries beyond the table's tablet count stay unmapped.
// It is idempotent: importing the same snapshot twice matches
// existing namespaces/tables by name instead of creating duplicates, so
// retrying a partially-applied import is always safe.
func (m *Manager) ImportSnapshot(req ImportSnapshotRequest) (*ImportSnapshotResult, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}

	result := &ImportSnapshotResult{
		NamespaceIDMap: make(map[string]string),
		TableIDMap:     make(map[string]string),
		TabletIDMap:    make(map[string]string),
	}

	for _, e := range req.Entries {
		if e.Kind != types.EntryNamespace {
			continue
		}
		var ns types.Namespace
		if err := json.Unmarshal(e.Metadata, &ns); err != nil {
			return nil, fmt.Errorf("catalog: decode imported namespace %q: %w", e.ID, err)
		}
		if existing, ok := m.registry.findNamespaceByName(ns.Name, ns.Type); ok {
			result.NamespaceIDMap[e.ID] = existing.ID
			continue
		}
		created, err := m.CreateNamespace(ns.Name, ns.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog: import namespace %q: %w", ns.Name, err)
		}
		result.NamespaceIDMap[e.ID] = created.ID
	}

	for _, e := range req.Entries {
		if e.Kind != types.EntryTable {
			continue
		}
		var t types.Table
		if err := json.Unmarshal(e.Metadata, &t); err != nil {
			return nil, fmt.Errorf("catalog: decode imported table %q: %w", e.ID, err)
		}
		namespaceID, ok := result.NamespaceIDMap[t.NamespaceID]
		if !ok {
			namespaceID = t.NamespaceID // referenced namespace was not part of this import
		}

		tabletEntries := tabletEntriesForTable(req.Entries, e.ID)

		var tableID string
		if existing, ok := m.registry.findTableByName(namespaceID, t.Name); ok {
			tableID = existing.ID
		} else {
			created, err := m.CreateTable(CreateTableRequest{
				Name:             t.Name,
				NamespaceID:      namespaceID,
				Schema:           t.Schema,
				PartitionSchema:  t.PartitionSchema,
				ReplicationInfo:  t.ReplicationInfo,
				NumTablets:       len(tabletEntries),
				WALRetentionSecs: t.WALRetentionSecs,
			})
			if err != nil {
				return nil, fmt.Errorf("catalog: import table %q: %w", t.Name, err)
			}
			tableID = created.ID
		}
		result.TableIDMap[e.ID] = tableID

		newTable, err := m.GetTable(tableID)
		if err != nil {
			return nil, err
		}
		for i, oldEntry := range tabletEntries {
			if i >= len(newTable.TabletIDs) {
				break
			}
			result.TabletIDMap[oldEntry.ID] = newTable.TabletIDs[i]
		}
	}

	return result, nil
}

// tabletEntriesForTable returns entries's EntryTablet members belonging
// to the table entry tableEntryID, in the order they appear in entries.
func tabletEntriesForTable(entries []types.SnapshotEntry, tableEntryID string) []types.SnapshotEntry {
	var out []types.SnapshotEntry
	for _, e := range entries {
		if e.Kind == types.EntryTablet && e.TableID == tableEntryID {
			out = append(out, e)
		}
	}
	return out
}
