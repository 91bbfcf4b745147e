// Package types defines the catalog entities owned by the Entity Registry:
// namespaces, tables, tablets, tablet servers, snapshots, CDC streams,
// universe-replication entries and the cluster configuration singleton.
package types

import (
	"time"
)

// Namespace is a SQL/CQL database namespace.
type Namespace struct {
	ID    string
	Name  string
	Type  NamespaceType
	State NamespaceState
}

type NamespaceType string

const (
	NamespaceTypeYSQL  NamespaceType = "ysql"
	NamespaceTypeYCQL  NamespaceType = "ycql"
	NamespaceTypeOther NamespaceType = "other"
)

type NamespaceState string

const (
	NamespaceCreated  NamespaceState = "CREATED"
	NamespaceDeleting NamespaceState = "DELETING"
	NamespaceDeleted  NamespaceState = "DELETED"
)

// Table is a relation, partitioned across one or more Tablets.
type Table struct {
	ID               string
	Name             string
	NamespaceID      string
	Schema           *Schema
	PartitionSchema  *PartitionSchema
	ReplicationInfo  *ReplicationInfo // overrides cluster-wide policy when set
	IndexInfo        []*IndexInfo
	State            TableState
	WALRetentionSecs int64
	TabletIDs        []string // ordered by partition start key
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TableState string

const (
	TablePreparing TableState = "PREPARING"
	TableRunning   TableState = "RUNNING"
	TableDeleting  TableState = "DELETING"
	TableDeleted   TableState = "DELETED"
)

// Schema is a minimal column-list representation, enough to compare
// producer/consumer schemas for xCluster validation and to regenerate
// column ids on snapshot import.
type Schema struct {
	Columns []Column
}

type Column struct {
	ID       int32
	Name     string
	DataType string
	IsKey    bool
}

// Equivalent reports whether two schemas have the same column name/type
// sequence, ignoring column ids (which are regenerated per table).
func (s *Schema) Equivalent(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		a, b := s.Columns[i], other.Columns[i]
		if a.Name != b.Name || a.DataType != b.DataType || a.IsKey != b.IsKey {
			return false
		}
	}
	return true
}

type PartitionSchema struct {
	HashColumnIDs []int32
}

type IndexInfo struct {
	TableID string
	Name    string
}

// Partition is a contiguous, half-open key range [StartKey, EndKey).
// An empty EndKey means "no upper bound"; an empty StartKey means "no
// lower bound".
type Partition struct {
	StartKey []byte
	EndKey   []byte
}

// Tablet is a shard of a Table's key space, replicated by a Raft peer
// group that is entirely out of scope here.
type Tablet struct {
	ID                      string
	TableID                 string
	Partition               Partition
	State                   TabletState
	CommittedConsensusState *ConsensusState
	ReplicaLocations        map[string]*ReplicaLocation // tablet-server uuid -> location
	CreatedAt               time.Time
}

type TabletState string

const (
	TabletPreparing TabletState = "PREPARING"
	TabletRunning   TabletState = "RUNNING"
	TabletDeleted   TabletState = "DELETED"
)

// ConsensusState is a thin summary of the tablet's Raft peer group, as
// reported by the tablet leader; the peer group's internal operation is
// outside this repository's scope.
type ConsensusState struct {
	Term     uint64
	LeaderID string
}

type ReplicaRole string

const (
	RoleLeader         ReplicaRole = "LEADER"
	RoleFollower       ReplicaRole = "FOLLOWER"
	RoleLearner        ReplicaRole = "LEARNER"
	RoleNonParticipant ReplicaRole = "NON_PARTICIPANT"
)

type MemberType string

const (
	MemberVoter       MemberType = "VOTER"
	MemberPreVoter    MemberType = "PRE_VOTER"
	MemberObserver    MemberType = "OBSERVER"
	MemberPreObserver MemberType = "PRE_OBSERVER"
)

type ReplicaState string

const (
	ReplicaStarting ReplicaState = "STARTING"
	ReplicaRunning  ReplicaState = "RUNNING"
	ReplicaFailed   ReplicaState = "FAILED"
)

// ReplicaLocation describes one replica of a Tablet on a TabletServer.
type ReplicaLocation struct {
	Role       ReplicaRole
	MemberType MemberType
	State      ReplicaState
}

// TabletServer (a.k.a. TSDescriptor) is a node known to the master via
// heartbeats. It is never persisted through the Sys-Catalog: the set is
// rebuilt purely from live heartbeats on every leader election.
type TabletServer struct {
	UUID            string
	Registration    TSRegistration
	PlacementUUID   string
	LastHeartbeat   time.Time
	ReportedTablets map[string]bool // tablet ids this server has reported at least once
	HasReportedAll  bool
	Load            TSLoad
	InstanceSeqno   int64 // monotonic instance id; a higher seqno supersedes an older descriptor
}

type TSRegistration struct {
	RPCAddresses []string
	Cloud        string
	Region       string
	Zone         string
}

type TSLoad struct {
	NumTablets int
	NumLeaders int
}

// CloudInfo identifies a placement location.
type CloudInfo struct {
	Cloud  string
	Region string
	Zone   string
}

func (c CloudInfo) Matches(block PlacementBlock) bool {
	if block.Cloud != "" && block.Cloud != c.Cloud {
		return false
	}
	if block.Region != "" && block.Region != c.Region {
		return false
	}
	if block.Zone != "" && block.Zone != c.Zone {
		return false
	}
	return true
}

// PlacementBlock constrains replica placement to a cloud/region/zone,
// requiring at least MinNumReplicas live servers there.
type PlacementBlock struct {
	Cloud          string
	Region         string
	Zone           string
	MinNumReplicas int
}

// PlacementInfo is either the "live" (synchronous voter) placement or a
// single read-replica placement.
type PlacementInfo struct {
	Blocks        []PlacementBlock
	NumReplicas   int
	PlacementUUID string // empty for the live/primary placement
}

// ReplicationInfo is a full placement policy: one live placement plus
// zero or more read-replica placements.
type ReplicationInfo struct {
	LivePlacement PlacementInfo
	ReadReplicas  []PlacementInfo
}

// Snapshot is a point-in-time, multi-tablet backup.
type Snapshot struct {
	ID      string
	State   SnapshotState
	Entries []SnapshotEntry
	// TabletStates mirrors Entries' per-tablet progress, keyed by
	// tablet id, so it can be updated independently of entry order.
	TabletStates map[string]TabletSnapshotState
	CreatedAt    time.Time
}

type SnapshotState string

const (
	SnapshotCreating  SnapshotState = "CREATING"
	SnapshotComplete  SnapshotState = "COMPLETE"
	SnapshotRestoring SnapshotState = "RESTORING"
	SnapshotDeleting  SnapshotState = "DELETING"
	SnapshotDeleted   SnapshotState = "DELETED"
	SnapshotFailed    SnapshotState = "FAILED"
	SnapshotCancelled SnapshotState = "CANCELLED"
)

// IsTerminal reports whether s no longer participates in the
// "current snapshot" interlock.
func (s SnapshotState) IsTerminal() bool {
	switch s {
	case SnapshotComplete, SnapshotFailed, SnapshotCancelled, SnapshotDeleted:
		return true
	default:
		return false
	}
}

type TabletSnapshotState string

const (
	TabletSnapshotCreating  TabletSnapshotState = "CREATING"
	TabletSnapshotComplete  TabletSnapshotState = "COMPLETE"
	TabletSnapshotFailed    TabletSnapshotState = "FAILED"
	TabletSnapshotRestoring TabletSnapshotState = "RESTORING"
	TabletSnapshotDeleting  TabletSnapshotState = "DELETING"
	TabletSnapshotDeleted   TabletSnapshotState = "DELETED"
)

// EntryKind is the closed tag of a SnapshotEntry / sys-catalog row sum
// type: every entry is tagged with its Kind and dispatch must switch
// exhaustively over it.
type EntryKind string

const (
	EntryNamespace EntryKind = "NAMESPACE"
	EntryTable     EntryKind = "TABLE"
	EntryTablet    EntryKind = "TABLET"
)

// SnapshotEntry is one tagged member of a Snapshot's serialized entry
// sequence: a namespace, a table, or a tablet, ordered namespace-then-
// table-then-tablets within each table.
type SnapshotEntry struct {
	Kind     EntryKind
	ID       string
	TableID  string // set for Table/Tablet entries
	Metadata []byte // serialized namespace/table/tablet metadata
}

// CDCStream is a change-data-capture subscription over one table.
type CDCStream struct {
	ID        string
	TableID   string
	Options   map[string]string
	State     CDCStreamState
	CreatedAt time.Time
}

type CDCStreamState string

const (
	CDCStreamActive   CDCStreamState = "ACTIVE"
	CDCStreamDeleting CDCStreamState = "DELETING"
	CDCStreamDeleted  CDCStreamState = "DELETED"
)

// UniverseReplication tracks one cross-universe (xCluster) replication
// relationship consuming from a remote producer cluster.
type UniverseReplication struct {
	ProducerID              string
	ProducerMasterAddresses []string
	Tables                  []string          // producer table ids requested
	ValidatedTables         map[string]string // producer table id -> consumer table id
	TableStreams            map[string]string // producer table id -> stream id
	BootstrapIDs            map[string]string // producer table id -> bootstrap id, if supplied
	State                   UniverseState
	Disabled                bool
	FailedReason            string
	CreatedAt               time.Time
}

type UniverseState string

const (
	UniverseInitializing UniverseState = "INITIALIZING"
	UniverseValidated    UniverseState = "VALIDATED"
	UniverseActive       UniverseState = "ACTIVE"
	UniverseDisabled     UniverseState = "DISABLED"
	UniverseDeleted      UniverseState = "DELETED"
	UniverseFailed       UniverseState = "FAILED"
)

// ProducerConsumerTabletMap is what gets installed into ClusterConfig's
// ConsumerRegistry for one replicated table: for each producer tablet,
// which consumer tablets cover the overlapping key range.
type ProducerConsumerTabletMap struct {
	StreamID       string
	ConsumerTableID string
	TabletMap      map[string][]string // producer tablet id -> consumer tablet ids
	DisableStream  bool
}

// ConsumerRegistryEntry is one producer universe's worth of
// ProducerConsumerTabletMap entries, keyed by producer table id.
type ConsumerRegistryEntry struct {
	ProducerMasterAddresses []string
	TableMap                map[string]*ProducerConsumerTabletMap
}

// EncryptionInfo describes cluster-wide encryption-at-rest state.
type EncryptionInfo struct {
	Enabled       bool
	KeyVersion    int64
	UniverseKeyID string
}

// ClusterConfig is the single, versioned cluster-wide configuration
// entity.
type ClusterConfig struct {
	Version          int64
	ReplicationInfo  *ReplicationInfo
	ServerBlacklist  []string // tablet-server uuids
	LeaderBlacklist  []string
	EncryptionInfo   EncryptionInfo
	ConsumerRegistry map[string]*ConsumerRegistryEntry // producer universe id -> entry
}

// Clone returns a deep-enough copy of cfg suitable for use as a dirty
// working copy under the entity locking discipline.
func (cfg *ClusterConfig) Clone() *ClusterConfig {
	out := *cfg
	out.ServerBlacklist = append([]string(nil), cfg.ServerBlacklist...)
	out.LeaderBlacklist = append([]string(nil), cfg.LeaderBlacklist...)
	out.ConsumerRegistry = make(map[string]*ConsumerRegistryEntry, len(cfg.ConsumerRegistry))
	for k, v := range cfg.ConsumerRegistry {
		ev := *v
		ev.TableMap = make(map[string]*ProducerConsumerTabletMap, len(v.TableMap))
		for tk, tv := range v.TableMap {
			etv := *tv
			ev.TableMap[tk] = &etv
		}
		out.ConsumerRegistry[k] = &ev
	}
	if cfg.ReplicationInfo != nil {
		ri := *cfg.ReplicationInfo
		out.ReplicationInfo = &ri
	}
	return &out
}

// CDCStateRow is one (tablet_id, stream_id) row of the system CDC
// state table.
type CDCStateRow struct {
	TabletID            string
	StreamID            string
	Checkpoint          string
	Data                map[string]string
	LastReplicationTime time.Time
}

// SafeTimeRow is one row of the xCluster safe-time table.
type SafeTimeRow struct {
	UniverseID       string
	ProducerTabletID string
	SafeTime         uint64 // hybrid time encoded as an unsigned 64-bit integer
}

// NamespaceSafeTimeRow is the per-namespace safe time the background
// cleaner aggregates from every producer tablet replicating into that
// namespace, clamped to the system namespace's safe time and never
// regressing across recomputation.
type NamespaceSafeTimeRow struct {
	NamespaceID string
	SafeTime    uint64
}
