package api

import (
	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// Empty is the request or response for RPCs that carry no data beyond
// their error, analogous to google.protobuf.Empty.
type Empty struct{}

// Namespace RPCs.

type CreateNamespaceRequest struct {
	Name string
	Type types.NamespaceType
}

type GetNamespaceRequest struct {
	ID string
}

type DeleteNamespaceRequest struct {
	ID string
}

type NamespaceResponse struct {
	Namespace *types.Namespace
}

type ListNamespacesResponse struct {
	Namespaces []*types.Namespace
}

// Table RPCs.

type CreateTableRequest = catalog.CreateTableRequest

type GetTableRequest struct {
	ID string
}

type DeleteTableRequest struct {
	ID string
}

type TableResponse struct {
	Table *types.Table
}

type ListTablesResponse struct {
	Tables []*types.Table
}

// Tablet RPCs.

type GetTabletRequest struct {
	ID string
}

type TabletResponse struct {
	Tablet *types.Tablet
}

type ListTabletsResponse struct {
	Tablets []*types.Tablet
}

type AddReplicaRequest struct {
	TabletID   string
	TSUUID     string
	MemberType types.MemberType
}

type RemoveReplicaRequest struct {
	TabletID string
	TSUUID   string
}

type MoveLeaderRequest struct {
	TabletID      string
	NewLeaderUUID string
}

// Tablet server / heartbeat RPCs.

type HeartbeatRequest = catalog.HeartbeatRequest
type HeartbeatResponse = catalog.HeartbeatResponse

type ListTabletServersResponse struct {
	TabletServers []*types.TabletServer
}

type PlacementUUIDRequest struct {
	PlacementUUID string
}

// Cluster configuration RPCs.

type SetReplicationInfoRequest struct {
	ReplicationInfo *types.ReplicationInfo
}

type BlacklistRequest struct {
	UUIDs []string
}

type ChangeEncryptionInfoRequest struct {
	Enabled       bool
	UniverseKeyID string
}

type ClusterConfigResponse struct {
	ClusterConfig *types.ClusterConfig
}

// Snapshot RPCs.

type CreateSnapshotRequest = catalog.CreateSnapshotRequest

type GetSnapshotRequest struct {
	ID string
}

type SnapshotResponse struct {
	Snapshot *types.Snapshot
}

type ListSnapshotsResponse struct {
	Snapshots []*types.Snapshot
}

type ReportTabletSnapshotDoneRequest struct {
	SnapshotID string
	TabletID   string
	Success    bool
}

type ImportSnapshotRequest = catalog.ImportSnapshotRequest

type ImportSnapshotResponse struct {
	Result *catalog.ImportSnapshotResult
}

// CDC RPCs.

type CreateCDCStreamRequest struct {
	TableID string
	Options map[string]string
}

type GetCDCStreamRequest struct {
	ID string
}

type CDCStreamResponse struct {
	Stream *types.CDCStream
}

type ListCDCStreamsResponse struct {
	Streams []*types.CDCStream
}

type RecordCDCCheckpointRequest struct {
	TabletID   string
	StreamID   string
	Checkpoint string
	Data       map[string]string
}

type GetCDCCheckpointRequest struct {
	TabletID string
	StreamID string
}

type CDCCheckpointResponse struct {
	Row *types.CDCStateRow
}

// Universe replication RPCs.

type SetupUniverseReplicationRequest = catalog.SetupUniverseReplicationRequest

type GetUniverseReplicationRequest struct {
	ProducerID string
}

type UniverseReplicationResponse struct {
	Replication *types.UniverseReplication
}

type ListUniverseReplicationsResponse struct {
	Replications []*types.UniverseReplication
}

type SetUniverseReplicationPausedRequest struct {
	ProducerID string
	Paused     bool
}

// Safe-time RPCs.

type UpdateSafeTimeRequest struct {
	UniverseID       string
	ProducerTabletID string
	SafeTime         uint64
}

type MinSafeTimeResponse struct {
	SafeTime uint64
}

// Cluster status.

type ClusterStatusResponse struct {
	IsLeader    bool
	LeaderAddr  string
	CurrentTerm uint64
}
