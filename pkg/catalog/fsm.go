package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// commandOp is the verb half of a replicated Command.
type commandOp string

const (
	opPut    commandOp = "put"
	opDelete commandOp = "delete"
)

// Command is the unit of work replicated through Raft. Every entity
// mutation funnels through Apply as a Command: the leader marshals the
// target kind/id/payload, calls raft.Apply, and every replica (leader
// included) applies the same Command to its registry and its
// Sys-Catalog store once the log entry commits.
type Command struct {
	Op   commandOp          `json:"op"`
	Kind storage.EntityKind `json:"kind"`
	ID   string             `json:"id"`
	Data json.RawMessage    `json:"data,omitempty"`
}

// catalogFSM implements raft.FSM over the in-memory registry, backed by
// a durable Sys-Catalog store. The Raft log term of each applied entry
// doubles as the fencing token the store uses to reject stale writes
// from a deposed leader that is still replaying its own log.
type catalogFSM struct {
	registry *registry
	store    storage.SysCatalogStore
}

func newCatalogFSM(reg *registry, store storage.SysCatalogStore) *catalogFSM {
	return &catalogFSM{registry: reg, store: store}
}

// Apply decodes and applies one committed Command.
func (f *catalogFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("catalog: decode command: %w", err)
	}
	term := log.Term

	switch cmd.Op {
	case opDelete:
		if err := f.store.DeleteItem(cmd.Kind, cmd.ID, term); err != nil {
			return err
		}
		f.applyDeleteToRegistry(cmd.Kind, cmd.ID)
		return nil
	case opPut:
		if err := f.store.AddItem(cmd.Kind, cmd.ID, term, cmd.Data); err != nil {
			return err
		}
		return f.applyPutToRegistry(cmd.Kind, cmd.ID, cmd.Data)
	default:
		return fmt.Errorf("catalog: unknown command op %q", cmd.Op)
	}
}

func (f *catalogFSM) applyPutToRegistry(kind storage.EntityKind, id string, data json.RawMessage) error {
	switch kind {
	case storage.KindNamespace:
		var v types.Namespace
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putNamespace(&v)
	case storage.KindTable:
		var v types.Table
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putTable(&v)
	case storage.KindTablet:
		var v types.Tablet
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putTablet(&v)
	case storage.KindSnapshot:
		var v types.Snapshot
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putSnapshot(&v)
	case storage.KindCDCStream:
		var v types.CDCStream
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putCDCStream(&v)
	case storage.KindUniverseReplication:
		var v types.UniverseReplication
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putUniverse(&v)
	case storage.KindClusterConfig:
		var v types.ClusterConfig
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.registry.putClusterConfig(&v)
	case storage.KindCDCState, storage.KindSafeTime, storage.KindNamespaceSafeTime:
		// Rows of these kinds live only in the store; the registry does
		// not keep a working copy of them.
	default:
		return fmt.Errorf("catalog: unknown entity kind %q", kind)
	}
	return nil
}

func (f *catalogFSM) applyDeleteToRegistry(kind storage.EntityKind, id string) {
	switch kind {
	case storage.KindNamespace:
		f.registry.deleteNamespace(id)
	case storage.KindTable:
		f.registry.deleteTable(id)
	case storage.KindTablet:
		f.registry.deleteTablet(id)
	case storage.KindSnapshot:
		f.registry.deleteSnapshot(id)
	case storage.KindCDCStream:
		f.registry.deleteCDCStream(id)
	case storage.KindUniverseReplication:
		f.registry.deleteUniverse(id)
	}
}

// Snapshot captures the full registry state for Raft's own log
// compaction. It is unrelated to, and much smaller than, the
// user-facing Snapshot Orchestrator entity.
func (f *catalogFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: f.registry.snapshot()}, nil
}

// Restore replaces the registry wholesale from a previously captured
// Raft snapshot.
func (f *catalogFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap registrySnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("catalog: decode fsm snapshot: %w", err)
	}
	f.registry.restore(snap)
	return nil
}

type fsmSnapshot struct {
	data registrySnapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	enc := json.NewEncoder(sink)
	if err := enc.Encode(s.data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
