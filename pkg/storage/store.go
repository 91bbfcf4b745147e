// Package storage implements the Sys-Catalog Store: a generic,
// leader-term-fenced key/value layer keyed by (EntityKind, ID) that sits
// underneath the Entity Registry. It replaces per-type CRUD methods with
// a single generic contract so that adding a new catalog entity never
// requires a storage-layer change.
package storage

import "fmt"

// EntityKind tags the kind of entity a Sys-Catalog item holds. It is the
// generalization of a bucket-per-type scheme into one bucket per kind,
// behind a single generic interface.
type EntityKind string

const (
	KindNamespace           EntityKind = "namespace"
	KindTable               EntityKind = "table"
	KindTablet              EntityKind = "tablet"
	KindSnapshot            EntityKind = "snapshot"
	KindCDCStream           EntityKind = "cdc_stream"
	KindUniverseReplication EntityKind = "universe_replication"
	KindClusterConfig       EntityKind = "cluster_config"
	KindCDCState            EntityKind = "cdc_state"
	KindSafeTime            EntityKind = "safe_time"
	KindNamespaceSafeTime   EntityKind = "namespace_safe_time"
)

// Item is one Sys-Catalog row: a JSON-encoded entity tagged with the kind
// and id it was written under, plus the leader term that wrote it. Term
// is the fencing token: a write is only accepted if
// Term is greater than or equal to the term recorded for that key.
type Item struct {
	Kind EntityKind
	ID   string
	Term uint64
	Data []byte
}

// ErrTermFenced is returned when a write's term is stale relative to the
// term already recorded for that key, per the leader-term fencing
// invariant: writes are fenced by the current leader term.
var ErrTermFenced = fmt.Errorf("storage: write fenced by newer leader term")

// ErrNotFound is returned by Get when no item exists for (kind, id).
var ErrNotFound = fmt.Errorf("storage: item not found")

// Visitor is called once per stored item during Visit, in no particular
// order across kinds but in key order within a kind. Returning an error
// aborts the visit.
type Visitor func(item Item) error

// SysCatalogStore is the durable, replicated-log-backed store underneath
// the Entity Registry. Every mutating method is fenced by the supplied
// leader term: a lower term than the one last accepted for that key
// returns ErrTermFenced, modeling the "stale leader can't clobber a
// newer leader's write" invariant.
type SysCatalogStore interface {
	// AddItem inserts or overwrites the item at (kind, id). It is also
	// used for updates: the Sys-Catalog does not distinguish create from
	// update at the storage layer (that distinction belongs to the
	// Entity Registry's AlreadyPresent/NotFound checks).
	AddItem(kind EntityKind, id string, term uint64, data []byte) error

	// GetItem returns the raw bytes stored at (kind, id).
	GetItem(kind EntityKind, id string) (Item, error)

	// DeleteItem removes the item at (kind, id), fenced by term like
	// AddItem.
	DeleteItem(kind EntityKind, id string, term uint64) error

	// Visit walks every item of the given kind.
	Visit(kind EntityKind, visit Visitor) error

	// VisitAll walks every item of every kind, used to rebuild the
	// Entity Registry from the store on startup.
	VisitAll(visit Visitor) error

	// Close releases underlying resources.
	Close() error
}
