// Package tserverclient is the master's RPC client to a tablet server,
// used by the load balancer and the snapshot orchestrator to drive the
// replica config changes and local snapshot operations that the
// catalog's CreateSnapshot/AddReplica/MoveLeader bookkeeping
// describes but does not itself perform.
package tserverclient

// ChangeConfigRequest asks a tablet's Raft peer group to add, remove,
// or promote a replica.
type ChangeConfigRequest struct {
	TabletID      string
	ChangeType    string // "ADD_SERVER", "REMOVE_SERVER", "CHANGE_ROLE"
	PeerUUID      string
	PeerIsVoter   bool
	PeerRPCAddrs  []string
}

type ChangeConfigResponse struct {
	Error string `json:",omitempty"`
}

// LeaderStepDownRequest asks a tablet's current Raft leader to step
// down in favor of newLeaderUUID.
type LeaderStepDownRequest struct {
	TabletID      string
	NewLeaderUUID string
}

type LeaderStepDownResponse struct {
	Error string `json:",omitempty"`
}

// CreateTabletSnapshotRequest asks a tablet server to take a local
// snapshot of the given tablet's data as part of snapshotID.
type CreateTabletSnapshotRequest struct {
	SnapshotID string
	TabletID   string
}

type CreateTabletSnapshotResponse struct {
	Error string `json:",omitempty"`
}

// RestoreTabletSnapshotRequest asks a tablet server to restore its
// local data for tabletID from snapshotID.
type RestoreTabletSnapshotRequest struct {
	SnapshotID string
	TabletID   string
}

type RestoreTabletSnapshotResponse struct {
	Error string `json:",omitempty"`
}

// DeleteTabletSnapshotRequest asks a tablet server to discard its
// local snapshot artifacts for snapshotID/tabletID.
type DeleteTabletSnapshotRequest struct {
	SnapshotID string
	TabletID   string
}

type DeleteTabletSnapshotResponse struct {
	Error string `json:",omitempty"`
}
