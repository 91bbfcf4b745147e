package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// SetupUniverseReplicationRequest describes a new xCluster replication
// relationship consuming from a remote producer cluster. ProducerTables
// and ProducerTabletIDs are normally fetched from the producer cluster
// over RPC by pkg/producer.BuildSetupRequest, which also opens a real
// CDC stream per table and fills ProducerStreamIDs; a caller without
// access to the producer cluster's master may still supply all three
// fields by hand.
type SetupUniverseReplicationRequest struct {
	ProducerID              string
	ProducerMasterAddresses []string
	ProducerTables          map[string]*types.Schema // producer table id -> schema
	ProducerTabletIDs       map[string][]string       // producer table id -> its tablet ids
	ConsumerTableIDs        map[string]string         // producer table id -> chosen consumer table id
	ProducerStreamIDs       map[string]string         // producer table id -> its already-open CDC stream id, if known
}

// SetupUniverseReplication runs the four-stage protocol: record the
// relationship as INITIALIZING, validate every producer table's schema
// against its chosen consumer table, move to VALIDATED once a stream
// id is assigned per table, then install the consumer registry and
// move to ACTIVE. A failure at any stage leaves the relationship in
// FAILED with the reason recorded, rather than rolling back to
// INITIALIZING, so an operator can see what went wrong.
func (m *Manager) SetupUniverseReplication(req SetupUniverseReplicationRequest) (*types.UniverseReplication, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}
	if _, ok := m.registry.getUniverse(req.ProducerID); ok {
		return nil, fmt.Errorf("%w: universe %q", ErrAlreadyPresent, req.ProducerID)
	}

	tables := make([]string, 0, len(req.ProducerTables))
	for producerTableID := range req.ProducerTables {
		tables = append(tables, producerTableID)
	}
	sort.Strings(tables)

	universe := types.UniverseReplication{
		ProducerID:              req.ProducerID,
		ProducerMasterAddresses: req.ProducerMasterAddresses,
		Tables:                  tables,
		ValidatedTables:         make(map[string]string),
		TableStreams:            make(map[string]string),
		BootstrapIDs:            make(map[string]string),
		State:                   types.UniverseInitializing,
		CreatedAt:               time.Now(),
	}
	txn, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, universe.ProducerID, types.UniverseReplication{})
	if err != nil {
		return nil, err
	}
	*txn.Dirty() = universe
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	validated := make(map[string]string, len(tables))
	for _, producerTableID := range tables {
		consumerTableID, ok := req.ConsumerTableIDs[producerTableID]
		if !ok {
			return nil, m.transitionUniverseFailed(req.ProducerID, fmt.Errorf("%w: no consumer table chosen for producer table %q", ErrNotFound, producerTableID))
		}
		consumerTable, ok := m.registry.getTable(consumerTableID)
		if !ok {
			return nil, m.transitionUniverseFailed(req.ProducerID, fmt.Errorf("%w: consumer table %q", ErrNotFound, consumerTableID))
		}
		if !req.ProducerTables[producerTableID].Equivalent(consumerTable.Schema) {
			return nil, m.transitionUniverseFailed(req.ProducerID, fmt.Errorf("%w: producer table %q vs consumer table %q", ErrSchemaMismatch, producerTableID, consumerTableID))
		}
		validated[producerTableID] = consumerTableID
	}

	streams := make(map[string]string, len(tables))
	for _, producerTableID := range tables {
		if streamID, ok := req.ProducerStreamIDs[producerTableID]; ok {
			streams[producerTableID] = streamID
			continue
		}
		streams[producerTableID] = uuid.New().String()
	}

	current, _ := m.registry.getUniverse(req.ProducerID)
	txn2, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, req.ProducerID, *current)
	if err != nil {
		return nil, err
	}
	dirty := txn2.Dirty()
	dirty.ValidatedTables = validated
	dirty.TableStreams = streams
	dirty.State = types.UniverseValidated
	if err := txn2.Commit(); err != nil {
		return nil, err
	}

	entry := &types.ConsumerRegistryEntry{
		ProducerMasterAddresses: req.ProducerMasterAddresses,
		TableMap:                make(map[string]*types.ProducerConsumerTabletMap, len(validated)),
	}
	for producerTableID, consumerTableID := range validated {
		consumerTable, _ := m.registry.getTable(consumerTableID)
		tabletMap := make(map[string][]string, len(req.ProducerTabletIDs[producerTableID]))
		for _, producerTabletID := range req.ProducerTabletIDs[producerTableID] {
			tabletMap[producerTabletID] = append([]string(nil), consumerTable.TabletIDs...)
		}
		entry.TableMap[producerTableID] = &types.ProducerConsumerTabletMap{
			StreamID:        streams[producerTableID],
			ConsumerTableID: consumerTableID,
			TabletMap:       tabletMap,
		}
	}
	if err := m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		if cfg.ConsumerRegistry == nil {
			cfg.ConsumerRegistry = make(map[string]*types.ConsumerRegistryEntry)
		}
		cfg.ConsumerRegistry[req.ProducerID] = entry
	}); err != nil {
		return nil, m.transitionUniverseFailed(req.ProducerID, err)
	}

	current, _ = m.registry.getUniverse(req.ProducerID)
	txn3, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, req.ProducerID, *current)
	if err != nil {
		return nil, err
	}
	txn3.Dirty().State = types.UniverseActive
	if err := txn3.Commit(); err != nil {
		return nil, err
	}
	metrics.UniverseReplicationsTotal.WithLabelValues(string(types.UniverseActive)).Inc()

	final, _ := m.registry.getUniverse(req.ProducerID)
	return final, nil
}

func (m *Manager) transitionUniverseFailed(producerID string, cause error) error {
	current, ok := m.registry.getUniverse(producerID)
	if !ok {
		return cause
	}
	txn, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, producerID, *current)
	if err != nil {
		return cause
	}
	dirty := txn.Dirty()
	dirty.State = types.UniverseFailed
	dirty.FailedReason = cause.Error()
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("%w (and failed to record the failure: %v)", cause, err)
	}
	metrics.UniverseReplicationsTotal.WithLabelValues(string(types.UniverseFailed)).Inc()
	return cause
}

// GetUniverseReplication returns the relationship with the given
// producer id.
func (m *Manager) GetUniverseReplication(producerID string) (*types.UniverseReplication, error) {
	u, ok := m.registry.getUniverse(producerID)
	if !ok {
		return nil, fmt.Errorf("%w: universe %q", ErrNotFound, producerID)
	}
	return u, nil
}

// ListUniverseReplications returns every known relationship.
func (m *Manager) ListUniverseReplications() []*types.UniverseReplication {
	return m.registry.listUniverses()
}

// DeleteUniverseReplication tears down the relationship: the consumer
// registry entry is removed first so xCluster consumption stops before
// the relationship itself disappears.
func (m *Manager) DeleteUniverseReplication(producerID string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	u, ok := m.registry.getUniverse(producerID)
	if !ok {
		return fmt.Errorf("%w: universe %q", ErrNotFound, producerID)
	}
	if err := m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		delete(cfg.ConsumerRegistry, producerID)
	}); err != nil {
		return err
	}
	txn, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, producerID, *u)
	if err != nil {
		return err
	}
	return txn.CommitDelete()
}

// SetUniverseReplicationPaused pauses or resumes consumption for a
// relationship, toggling DisableStream on every table it replicates.
func (m *Manager) SetUniverseReplicationPaused(producerID string, paused bool) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	u, ok := m.registry.getUniverse(producerID)
	if !ok {
		return fmt.Errorf("%w: universe %q", ErrNotFound, producerID)
	}
	txn, err := beginTxn[types.UniverseReplication](m, storage.KindUniverseReplication, producerID, *u)
	if err != nil {
		return err
	}
	txn.Dirty().Disabled = paused
	if err := txn.Commit(); err != nil {
		return err
	}
	return m.mutateClusterConfig(func(cfg *types.ClusterConfig) {
		entry, ok := cfg.ConsumerRegistry[producerID]
		if !ok {
			return
		}
		for _, tm := range entry.TableMap {
			tm.DisableStream = paused
		}
	})
}
