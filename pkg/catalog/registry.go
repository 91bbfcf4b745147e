package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// registry is the in-memory Entity Registry: the Sys-Catalog's working
// set, rebuilt from storage.SysCatalogStore on startup and kept in sync
// with it on every Raft-applied mutation. A single RWMutex protects the
// top-level maps themselves (structural operations — insert/remove a
// key); mutating the value behind a key while holding only the read
// lock is guarded per-entity by entryLock, so a structural scan
// never blocks on an in-flight entity mutation, and an entity mutation
// never blocks a structural scan.
type registry struct {
	mu sync.RWMutex

	namespaces    map[string]*types.Namespace
	tables        map[string]*types.Table
	tablets       map[string]*types.Tablet
	snapshots     map[string]*types.Snapshot
	cdcStreams    map[string]*types.CDCStream
	universes     map[string]*types.UniverseReplication
	clusterConfig *types.ClusterConfig

	entryLocks map[string]*sync.Mutex // "kind:id" -> per-entity critical section
}

func newRegistry() *registry {
	return &registry{
		namespaces: make(map[string]*types.Namespace),
		tables:     make(map[string]*types.Table),
		tablets:    make(map[string]*types.Tablet),
		snapshots:  make(map[string]*types.Snapshot),
		cdcStreams: make(map[string]*types.CDCStream),
		universes:  make(map[string]*types.UniverseReplication),
		clusterConfig: &types.ClusterConfig{
			Version:          0,
			ConsumerRegistry: make(map[string]*types.ConsumerRegistryEntry),
		},
		entryLocks: make(map[string]*sync.Mutex),
	}
}

// lockEntity returns the per-entity mutex for (kind, id), creating one
// on first use. Callers must Unlock it; it is the "write-lock" step of
// the write-lock/dirty-copy/mutate/persist/commit-or-rollback protocol
//.
func (r *registry) lockEntity(kind storage.EntityKind, id string) *sync.Mutex {
	key := string(kind) + ":" + id
	r.mu.Lock()
	l, ok := r.entryLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.entryLocks[key] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l
}

// --- Namespace ---

func (r *registry) getNamespace(id string) (*types.Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[id]
	return ns, ok
}

// findNamespaceByName looks up a namespace by its (name, type) pair,
// not name alone: namespaces in different types (YSQL vs YCQL, say)
// are independent namespaces and may share a name.
func (r *registry) findNamespaceByName(name string, nsType types.NamespaceType) (*types.Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ns := range r.namespaces {
		if ns.Name == name && ns.Type == nsType && ns.State != types.NamespaceDeleted {
			return ns, true
		}
	}
	return nil, false
}

func (r *registry) listNamespaces() []*types.Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) putNamespace(ns *types.Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[ns.ID] = ns
}

func (r *registry) deleteNamespace(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.namespaces, id)
}

// --- Table ---

func (r *registry) getTable(id string) (*types.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

func (r *registry) findTableByName(namespaceID, name string) (*types.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tables {
		if t.NamespaceID == namespaceID && t.Name == name && t.State != types.TableDeleted {
			return t, true
		}
	}
	return nil, false
}

func (r *registry) listTables() []*types.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) putTable(t *types.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.ID] = t
}

func (r *registry) deleteTable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, id)
}

// --- Tablet ---

func (r *registry) getTablet(id string) (*types.Tablet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tablets[id]
	return t, ok
}

func (r *registry) listTabletsForTable(tableID string) []*types.Tablet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Tablet, 0)
	for _, t := range r.tablets {
		if t.TableID == tableID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Partition.StartKey) < string(out[j].Partition.StartKey)
	})
	return out
}

func (r *registry) listTablets() []*types.Tablet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Tablet, 0, len(r.tablets))
	for _, t := range r.tablets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) putTablet(t *types.Tablet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tablets[t.ID] = t
}

func (r *registry) deleteTablet(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tablets, id)
}

// --- Snapshot ---

func (r *registry) getSnapshot(id string) (*types.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[id]
	return s, ok
}

func (r *registry) listSnapshots() []*types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Snapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// anySnapshotInFlight reports whether a snapshot operation other than
// exceptID is in a non-terminal state, enforcing the "one in-flight
// snapshot operation at a time" invariant.
func (r *registry) anySnapshotInFlight(exceptID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.snapshots {
		if id == exceptID {
			continue
		}
		if !s.State.IsTerminal() {
			return true
		}
	}
	return false
}

func (r *registry) putSnapshot(s *types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.ID] = s
}

func (r *registry) deleteSnapshot(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, id)
}

// --- CDC stream ---

func (r *registry) getCDCStream(id string) (*types.CDCStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cdcStreams[id]
	return s, ok
}

func (r *registry) findCDCStreamByTable(tableID string) (*types.CDCStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.cdcStreams {
		if s.TableID == tableID && s.State == types.CDCStreamActive {
			return s, true
		}
	}
	return nil, false
}

func (r *registry) listCDCStreams() []*types.CDCStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.CDCStream, 0, len(r.cdcStreams))
	for _, s := range r.cdcStreams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) listCDCStreamsByState(state types.CDCStreamState) []*types.CDCStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.CDCStream, 0)
	for _, s := range r.cdcStreams {
		if s.State == state {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) putCDCStream(s *types.CDCStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cdcStreams[s.ID] = s
}

func (r *registry) deleteCDCStream(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cdcStreams, id)
}

// --- Universe replication ---

func (r *registry) getUniverse(id string) (*types.UniverseReplication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.universes[id]
	return u, ok
}

func (r *registry) listUniverses() []*types.UniverseReplication {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.UniverseReplication, 0, len(r.universes))
	for _, u := range r.universes {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProducerID < out[j].ProducerID })
	return out
}

func (r *registry) putUniverse(u *types.UniverseReplication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.universes[u.ProducerID] = u
}

func (r *registry) deleteUniverse(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.universes, id)
}

// --- Cluster config ---

func (r *registry) getClusterConfig() *types.ClusterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clusterConfig
}

func (r *registry) putClusterConfig(cfg *types.ClusterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusterConfig = cfg
}

// registrySnapshot is the full-state payload of the Raft
// FSM.Snapshot/Restore cycle. Rebuilding the registry from the
// Sys-Catalog store on startup does not use it; rebuildRegistry
// replays the store with VisitAll instead.
type registrySnapshot struct {
	Namespaces    []*types.Namespace           `json:"namespaces"`
	Tables        []*types.Table               `json:"tables"`
	Tablets       []*types.Tablet              `json:"tablets"`
	Snapshots     []*types.Snapshot            `json:"snapshots"`
	CDCStreams    []*types.CDCStream           `json:"cdc_streams"`
	Universes     []*types.UniverseReplication `json:"universes"`
	ClusterConfig *types.ClusterConfig         `json:"cluster_config"`
}

func (r *registry) snapshot() registrySnapshot {
	return registrySnapshot{
		Namespaces:    r.listNamespaces(),
		Tables:        r.listTables(),
		Tablets:       r.listTablets(),
		Snapshots:     r.listSnapshots(),
		CDCStreams:    r.listCDCStreams(),
		Universes:     r.listUniverses(),
		ClusterConfig: r.getClusterConfig(),
	}
}

func (r *registry) restore(snap registrySnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces = make(map[string]*types.Namespace, len(snap.Namespaces))
	for _, ns := range snap.Namespaces {
		r.namespaces[ns.ID] = ns
	}
	r.tables = make(map[string]*types.Table, len(snap.Tables))
	for _, t := range snap.Tables {
		r.tables[t.ID] = t
	}
	r.tablets = make(map[string]*types.Tablet, len(snap.Tablets))
	for _, t := range snap.Tablets {
		r.tablets[t.ID] = t
	}
	r.snapshots = make(map[string]*types.Snapshot, len(snap.Snapshots))
	for _, s := range snap.Snapshots {
		r.snapshots[s.ID] = s
	}
	r.cdcStreams = make(map[string]*types.CDCStream, len(snap.CDCStreams))
	for _, s := range snap.CDCStreams {
		r.cdcStreams[s.ID] = s
	}
	r.universes = make(map[string]*types.UniverseReplication, len(snap.Universes))
	for _, u := range snap.Universes {
		r.universes[u.ProducerID] = u
	}
	if snap.ClusterConfig != nil {
		r.clusterConfig = snap.ClusterConfig
	}
}

// deepCopyJSON round-trips v through JSON to produce the "dirty copy"
// step of the write-lock/dirty-copy/mutate/persist protocol, so callers
// mutate an isolated copy rather than a struct still visible to readers.
func deepCopyJSON[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("catalog: deep copy marshal: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("catalog: deep copy unmarshal: %w", err)
	}
	return out, nil
}
