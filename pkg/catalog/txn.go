package catalog

import (
	"encoding/json"
	"sync"

	"github.com/vanguarddb/vanguard/pkg/storage"
)

// entryTxn is the write-lock/dirty-copy/mutate/propose/commit-or-rollback
// guard every entity mutation goes through. Go has no RAII, so the guard
// is explicit: beginTxn takes the per-entity lock and hands back an
// isolated copy to mutate; Commit proposes the mutated copy through
// Raft (which fences it by the proposing term when it is applied) and
// releases the lock, Abort releases the lock without proposing anything.
type entryTxn[T any] struct {
	mgr   *Manager
	kind  storage.EntityKind
	id    string
	lock  *sync.Mutex
	dirty T
	done  bool
}

// beginTxn locks entity (kind, id) and returns a dirty copy of current
// to mutate. The caller must call Commit, CommitDelete, or Abort exactly
// once.
func beginTxn[T any](mgr *Manager, kind storage.EntityKind, id string, current T) (*entryTxn[T], error) {
	lock := mgr.registry.lockEntity(kind, id)
	dirty, err := deepCopyJSON(current)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return &entryTxn[T]{mgr: mgr, kind: kind, id: id, lock: lock, dirty: dirty}, nil
}

// Dirty returns a pointer to the working copy for the caller to mutate.
func (t *entryTxn[T]) Dirty() *T {
	return &t.dirty
}

// Commit proposes the dirty copy as a put Command and releases the
// entity lock once Raft has applied (or rejected) it. The registry is
// updated by the FSM as part of applying the command, not by this call.
func (t *entryTxn[T]) Commit() error {
	if t.done {
		return nil
	}
	defer t.release()
	data, err := json.Marshal(t.dirty)
	if err != nil {
		return err
	}
	return t.mgr.Apply(Command{Op: opPut, Kind: t.kind, ID: t.id, Data: data})
}

// CommitDelete proposes a delete Command for the entity and releases
// the entity lock.
func (t *entryTxn[T]) CommitDelete() error {
	if t.done {
		return nil
	}
	defer t.release()
	return t.mgr.Apply(Command{Op: opDelete, Kind: t.kind, ID: t.id})
}

// Abort releases the entity lock without proposing anything.
func (t *entryTxn[T]) Abort() {
	t.release()
}

func (t *entryTxn[T]) release() {
	if t.done {
		return
	}
	t.done = true
	t.lock.Unlock()
}
