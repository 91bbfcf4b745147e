package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// cdcStateTableName is the internal table CDC checkpoints are
// conceptually stored under, lazily created in the system namespace on
// the first CreateCDCStream call. The checkpoint rows themselves still
// live in the dedicated KindCDCState bucket (pkg/storage), keyed by
// (tablet_id, stream_id); this table entity exists so the system
// namespace accurately reflects every internal table a deployment
// actually created, matching what ListTables over that namespace would
// show.
const cdcStateTableName = "cdc_state"

// CreateCDCStream opens a change-data-capture subscription over table,
// bumping its WAL retention when options carries a larger
// wal_retention_secs than the table currently has. Creating a stream
// for a table that already has one active is idempotent: the existing
// stream is returned rather than a duplicate created.
func (m *Manager) CreateCDCStream(tableID string, options map[string]string) (*types.CDCStream, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}
	table, ok := m.registry.getTable(tableID)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, tableID)
	}
	if existing, ok := m.registry.findCDCStreamByTable(tableID); ok {
		return existing, nil
	}
	if err := m.ensureCDCStateTable(); err != nil {
		return nil, err
	}

	if raw, ok := options["wal_retention_secs"]; ok {
		if retention, err := strconv.ParseInt(raw, 10, 64); err == nil && retention > table.WALRetentionSecs {
			if err := m.bumpWALRetention(table, retention); err != nil {
				return nil, err
			}
		}
	}

	stream := types.CDCStream{
		ID:        uuid.New().String(),
		TableID:   tableID,
		Options:   options,
		State:     types.CDCStreamActive,
		CreatedAt: time.Now(),
	}
	txn, err := beginTxn[types.CDCStream](m, storage.KindCDCStream, stream.ID, types.CDCStream{})
	if err != nil {
		return nil, err
	}
	*txn.Dirty() = stream
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	metrics.CDCStreamsTotal.WithLabelValues(string(types.CDCStreamActive)).Inc()
	return &stream, nil
}

// ensureCDCStateTable lazily creates the system namespace and its
// cdc_state table on first use. A name collision on either - raced by
// a concurrent CreateCDCStream call, or left over from a previous run
// - is treated as success rather than an error.
func (m *Manager) ensureCDCStateTable() error {
	ns, err := m.CreateNamespace(systemNamespaceName, types.NamespaceTypeOther)
	if err != nil {
		if !errors.Is(err, ErrAlreadyPresent) {
			return err
		}
		ns, _ = m.registry.findNamespaceByName(systemNamespaceName, types.NamespaceTypeOther)
	}

	_, err = m.CreateTable(CreateTableRequest{
		Name:            cdcStateTableName,
		NamespaceID:     ns.ID,
		NumTablets:      1,
		ReplicationInfo: &types.ReplicationInfo{LivePlacement: types.PlacementInfo{NumReplicas: 1}},
	})
	if err != nil && !errors.Is(err, ErrAlreadyPresent) {
		return err
	}
	return nil
}

func (m *Manager) bumpWALRetention(table *types.Table, retentionSecs int64) error {
	txn, err := beginTxn[types.Table](m, storage.KindTable, table.ID, *table)
	if err != nil {
		return err
	}
	txn.Dirty().WALRetentionSecs = retentionSecs
	return txn.Commit()
}

// GetCDCStream returns the stream with the given id.
func (m *Manager) GetCDCStream(id string) (*types.CDCStream, error) {
	s, ok := m.registry.getCDCStream(id)
	if !ok {
		return nil, fmt.Errorf("%w: cdc stream %q", ErrNotFound, id)
	}
	return s, nil
}

// ListCDCStreams returns every known stream.
func (m *Manager) ListCDCStreams() []*types.CDCStream {
	return m.registry.listCDCStreams()
}

// DeleteCDCStream marks an active stream DELETING; the CDC cleaner
// finalizes the removal and drops its checkpoint rows on its next
// cycle. Deleting an already-deleting or deleted stream is a no-op.
func (m *Manager) DeleteCDCStream(id string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	stream, ok := m.registry.getCDCStream(id)
	if !ok {
		return fmt.Errorf("%w: cdc stream %q", ErrNotFound, id)
	}
	if stream.State != types.CDCStreamActive {
		return nil
	}

	txn, err := beginTxn[types.CDCStream](m, storage.KindCDCStream, id, *stream)
	if err != nil {
		return err
	}
	txn.Dirty().State = types.CDCStreamDeleting
	return txn.Commit()
}

func cdcStateKey(tabletID, streamID string) string {
	return tabletID + ":" + streamID
}

// RecordCDCCheckpoint upserts the replication checkpoint a tablet
// server reports for (tabletID, streamID).
func (m *Manager) RecordCDCCheckpoint(tabletID, streamID, checkpoint string, data map[string]string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	key := cdcStateKey(tabletID, streamID)
	current := types.CDCStateRow{TabletID: tabletID, StreamID: streamID}
	if item, err := m.store.GetItem(storage.KindCDCState, key); err == nil {
		if err := json.Unmarshal(item.Data, &current); err != nil {
			return err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	txn, err := beginTxn[types.CDCStateRow](m, storage.KindCDCState, key, current)
	if err != nil {
		return err
	}
	dirty := txn.Dirty()
	dirty.Checkpoint = checkpoint
	dirty.Data = data
	dirty.LastReplicationTime = time.Now()
	return txn.Commit()
}

// GetCDCCheckpoint returns the last reported checkpoint for (tabletID,
// streamID).
func (m *Manager) GetCDCCheckpoint(tabletID, streamID string) (*types.CDCStateRow, error) {
	item, err := m.store.GetItem(storage.KindCDCState, cdcStateKey(tabletID, streamID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: cdc state for tablet %q stream %q", ErrNotFound, tabletID, streamID)
		}
		return nil, err
	}
	var row types.CDCStateRow
	if err := json.Unmarshal(item.Data, &row); err != nil {
		return nil, err
	}
	return &row, nil
}
