package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// allKinds lists every bucket the store must create up front,.
var allKinds = []EntityKind{
	KindNamespace,
	KindTable,
	KindTablet,
	KindSnapshot,
	KindCDCStream,
	KindUniverseReplication,
	KindClusterConfig,
	KindCDCState,
	KindSafeTime,
	KindNamespaceSafeTime,
}

// termKeyPrefix distinguishes the 8-byte term recorded alongside a value
// from the value itself within the same bucket, avoiding a second bucket
// per kind.
const termKeyPrefix = "term:"

// localBucket holds node-local data that is never replicated through
// Raft: the certificate authority's root key material has to exist
// before a node can even join the Raft transport's TLS listener, so it
// can't itself be a Sys-Catalog entry written through the FSM.
var localBucket = []byte("local_security")

// BoltStore implements SysCatalogStore using BoltDB, one bucket per
// EntityKind,.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a BoltDB file under dataDir
// and ensures every entity-kind bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "syscatalog.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sys-catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, kind := range allKinds {
			if _, err := tx.CreateBucketIfNotExists(bucketName(kind)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", kind, err)
			}
		}
		if _, err := tx.CreateBucketIfNotExists(localBucket); err != nil {
			return fmt.Errorf("failed to create local security bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func bucketName(kind EntityKind) []byte {
	return []byte(kind)
}

func termKey(id string) []byte {
	return []byte(termKeyPrefix + id)
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// AddItem stores data at (kind, id), fenced by term.
func (s *BoltStore) AddItem(kind EntityKind, id string, term uint64, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return fmt.Errorf("storage: unknown entity kind %q", kind)
		}
		if existing := b.Get(termKey(id)); existing != nil {
			if binary.BigEndian.Uint64(existing) > term {
				return ErrTermFenced
			}
		}
		termBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(termBytes, term)
		if err := b.Put(termKey(id), termBytes); err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

// GetItem returns the item stored at (kind, id).
func (s *BoltStore) GetItem(kind EntityKind, id string) (Item, error) {
	var item Item
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return fmt.Errorf("storage: unknown entity kind %q", kind)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		termBytes := b.Get(termKey(id))
		var term uint64
		if termBytes != nil {
			term = binary.BigEndian.Uint64(termBytes)
		}
		item = Item{Kind: kind, ID: id, Term: term, Data: append([]byte(nil), data...)}
		return nil
	})
	return item, err
}

// DeleteItem removes the item at (kind, id), fenced by term.
func (s *BoltStore) DeleteItem(kind EntityKind, id string, term uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return fmt.Errorf("storage: unknown entity kind %q", kind)
		}
		if existing := b.Get(termKey(id)); existing != nil {
			if binary.BigEndian.Uint64(existing) > term {
				return ErrTermFenced
			}
		}
		if err := b.Delete(termKey(id)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

// Visit walks every item of kind in key order.
func (s *BoltStore) Visit(kind EntityKind, visit Visitor) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return fmt.Errorf("storage: unknown entity kind %q", kind)
		}
		return b.ForEach(func(k, v []byte) error {
			if isTermKey(k) {
				return nil
			}
			termBytes := b.Get(termKey(string(k)))
			var term uint64
			if termBytes != nil {
				term = binary.BigEndian.Uint64(termBytes)
			}
			return visit(Item{Kind: kind, ID: string(k), Term: term, Data: append([]byte(nil), v...)})
		})
	})
}

// VisitAll walks every item of every kind, used to rebuild the Entity
// Registry on startup.
func (s *BoltStore) VisitAll(visit Visitor) error {
	for _, kind := range allKinds {
		if err := s.Visit(kind, visit); err != nil {
			return err
		}
	}
	return nil
}

// GetLocal returns node-local data stored under key, outside the
// replicated Sys-Catalog.
func (s *BoltStore) GetLocal(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(localBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// SaveLocal persists node-local data under key, outside the replicated
// Sys-Catalog.
func (s *BoltStore) SaveLocal(key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(localBucket).Put([]byte(key), data)
	})
}

func isTermKey(k []byte) bool {
	return len(k) >= len(termKeyPrefix) && string(k[:len(termKeyPrefix)]) == termKeyPrefix
}
