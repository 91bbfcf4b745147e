package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// hybridTimeLogicalBits is the width of a hybrid time's logical
// counter; the remaining high bits are physical microseconds since the
// epoch.
const hybridTimeLogicalBits = 12

func hybridTimePhysicalMicros(ht uint64) int64 {
	return int64(ht >> hybridTimeLogicalBits)
}

func safeTimeKey(universeID, producerTabletID string) string {
	return universeID + ":" + producerTabletID
}

// UpdateSafeTime records the xCluster safe time a producer tablet has
// reported for universeID. Safe time never regresses: a report lower
// than what is already on file is silently ignored, since it is a
// stale report racing a leader failover on the producer side.
func (m *Manager) UpdateSafeTime(universeID, producerTabletID string, safeTime uint64) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	key := safeTimeKey(universeID, producerTabletID)
	current := types.SafeTimeRow{UniverseID: universeID, ProducerTabletID: producerTabletID}
	if item, err := m.store.GetItem(storage.KindSafeTime, key); err == nil {
		if err := json.Unmarshal(item.Data, &current); err != nil {
			return err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if safeTime < current.SafeTime {
		return nil
	}

	txn, err := beginTxn[types.SafeTimeRow](m, storage.KindSafeTime, key, current)
	if err != nil {
		return err
	}
	txn.Dirty().SafeTime = safeTime
	if err := txn.Commit(); err != nil {
		return err
	}

	lag := time.Since(time.UnixMicro(hybridTimePhysicalMicros(safeTime))).Seconds()
	if lag < 0 {
		lag = 0
	}
	metrics.XClusterSafeTimeLagSeconds.WithLabelValues(universeID).Set(lag)
	return nil
}

// systemNamespaceName is the well-known namespace whose tables (e.g.
// the transactions table) affect every other namespace's consistency,
// so its safe time is computed first and used as a ceiling on the
// rest.
const systemNamespaceName = "system"

// resolveConsumerNamespaceID finds which consumer namespace a producer
// tablet's safe-time report belongs to, by walking the ConsumerRegistry
// entry installed for universeID until it finds producerTabletID among
// a table's producer tablets, then returning that table's namespace.
func (m *Manager) resolveConsumerNamespaceID(cfg *types.ClusterConfig, universeID, producerTabletID string) (string, bool) {
	entry, ok := cfg.ConsumerRegistry[universeID]
	if !ok {
		return "", false
	}
	for _, tableMap := range entry.TableMap {
		if _, ok := tableMap.TabletMap[producerTabletID]; !ok {
			continue
		}
		table, ok := m.registry.getTable(tableMap.ConsumerTableID)
		if !ok {
			return "", false
		}
		return table.NamespaceID, true
	}
	return "", false
}

// RecomputeNamespaceSafeTimes aggregates every producer tablet's
// reported safe time into a per-namespace minimum, clamps every
// non-system namespace to the system namespace's safe time, and
// persists the result without ever letting a namespace's safe time
// regress. Safe-time rows for tablets no longer present in the
// consumer registry (stream disabled or replication removed) are
// deleted. Run by the CDC cleaner on every cycle, same as CDC stream
// finalization.
func (m *Manager) RecomputeNamespaceSafeTimes() error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	cfg := m.ClusterConfig()

	byNamespace := make(map[string][]uint64)
	var stale []string
	err := m.store.Visit(storage.KindSafeTime, func(item storage.Item) error {
		var row types.SafeTimeRow
		if err := json.Unmarshal(item.Data, &row); err != nil {
			return err
		}
		nsID, ok := m.resolveConsumerNamespaceID(cfg, row.UniverseID, row.ProducerTabletID)
		if !ok {
			stale = append(stale, item.ID)
			return nil
		}
		byNamespace[nsID] = append(byNamespace[nsID], row.SafeTime)
		return nil
	})
	if err != nil {
		return err
	}

	newMin := make(map[string]uint64, len(byNamespace))
	for nsID, times := range byNamespace {
		min := times[0]
		for _, t := range times[1:] {
			if t < min {
				min = t
			}
		}
		newMin[nsID] = min
	}

	if sysNS, ok := m.registry.findNamespaceByName(systemNamespaceName, types.NamespaceTypeOther); ok {
		if sysSafeTime, ok := newMin[sysNS.ID]; ok {
			for nsID, safeTime := range newMin {
				if nsID == sysNS.ID {
					continue
				}
				if sysSafeTime < safeTime {
					newMin[nsID] = sysSafeTime
				}
			}
		}
	}

	for nsID, safeTime := range newMin {
		if err := m.persistNamespaceSafeTimeFloor(nsID, safeTime); err != nil {
			return err
		}
	}
	for _, key := range stale {
		if err := m.Apply(Command{Op: opDelete, Kind: storage.KindSafeTime, ID: key}); err != nil {
			return err
		}
	}
	return nil
}

// persistNamespaceSafeTimeFloor writes candidate as namespaceID's safe
// time unless the previously stored value is already at or past it:
// safe time must never regress across recomputation, since clocks
// between producer tablets are not synchronized.
func (m *Manager) persistNamespaceSafeTimeFloor(namespaceID string, candidate uint64) error {
	current := types.NamespaceSafeTimeRow{NamespaceID: namespaceID}
	if item, err := m.store.GetItem(storage.KindNamespaceSafeTime, namespaceID); err == nil {
		if err := json.Unmarshal(item.Data, &current); err != nil {
			return err
		}
		if current.SafeTime >= candidate {
			return nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	txn, err := beginTxn[types.NamespaceSafeTimeRow](m, storage.KindNamespaceSafeTime, namespaceID, current)
	if err != nil {
		return err
	}
	txn.Dirty().SafeTime = candidate
	return txn.Commit()
}

// NamespaceSafeTime returns the last safe time RecomputeNamespaceSafeTimes
// persisted for namespaceID.
func (m *Manager) NamespaceSafeTime(namespaceID string) (uint64, error) {
	item, err := m.store.GetItem(storage.KindNamespaceSafeTime, namespaceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: no safe time for namespace %q", ErrNotFound, namespaceID)
		}
		return 0, err
	}
	var row types.NamespaceSafeTimeRow
	if err := json.Unmarshal(item.Data, &row); err != nil {
		return 0, err
	}
	return row.SafeTime, nil
}

// MinSafeTime returns the minimum safe time reported across every
// producer tablet of universeID: a consumer cannot serve a
// consistent-enough read past the slowest-replicating tablet.
func (m *Manager) MinSafeTime(universeID string) (uint64, error) {
	var min uint64
	found := false
	err := m.store.Visit(storage.KindSafeTime, func(item storage.Item) error {
		var row types.SafeTimeRow
		if err := json.Unmarshal(item.Data, &row); err != nil {
			return err
		}
		if row.UniverseID != universeID {
			return nil
		}
		if !found || row.SafeTime < min {
			min = row.SafeTime
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: no safe-time rows for universe %q", ErrNotFound, universeID)
	}
	return min, nil
}
