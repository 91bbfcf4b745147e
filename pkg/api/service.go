package api

import (
	"context"

	"google.golang.org/grpc"
)

// MasterServer is the server-side contract for the master's RPC
// service: one method per catalog operation exposed over the wire.
// This plays the role a protoc-generated `XxxServer` interface would;
// there's no .proto file to generate it from, since pkg/rpcwire serves
// requests as JSON rather than protobuf, so it's declared by hand in
// the same shape protoc-gen-go-grpc would produce.
type MasterServer interface {
	CreateNamespace(context.Context, *CreateNamespaceRequest) (*NamespaceResponse, error)
	GetNamespace(context.Context, *GetNamespaceRequest) (*NamespaceResponse, error)
	ListNamespaces(context.Context, *Empty) (*ListNamespacesResponse, error)
	DeleteNamespace(context.Context, *DeleteNamespaceRequest) (*Empty, error)

	CreateTable(context.Context, *CreateTableRequest) (*TableResponse, error)
	GetTable(context.Context, *GetTableRequest) (*TableResponse, error)
	ListTables(context.Context, *Empty) (*ListTablesResponse, error)
	ListTabletsForTable(context.Context, *GetTableRequest) (*ListTabletsResponse, error)
	DeleteTable(context.Context, *DeleteTableRequest) (*Empty, error)

	GetTablet(context.Context, *GetTabletRequest) (*TabletResponse, error)
	ListTablets(context.Context, *Empty) (*ListTabletsResponse, error)
	AddReplica(context.Context, *AddReplicaRequest) (*Empty, error)
	RemoveReplica(context.Context, *RemoveReplicaRequest) (*Empty, error)
	MoveLeader(context.Context, *MoveLeaderRequest) (*Empty, error)

	TSHeartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	LiveTabletServers(context.Context, *Empty) (*ListTabletServersResponse, error)
	LiveReadReplicaServers(context.Context, *PlacementUUIDRequest) (*ListTabletServersResponse, error)

	SetReplicationInfo(context.Context, *SetReplicationInfoRequest) (*Empty, error)
	SetServerBlacklist(context.Context, *BlacklistRequest) (*Empty, error)
	SetLeaderBlacklist(context.Context, *BlacklistRequest) (*Empty, error)
	ChangeEncryptionInfo(context.Context, *ChangeEncryptionInfoRequest) (*Empty, error)
	GetClusterConfig(context.Context, *Empty) (*ClusterConfigResponse, error)

	CreateSnapshot(context.Context, *CreateSnapshotRequest) (*SnapshotResponse, error)
	GetSnapshot(context.Context, *GetSnapshotRequest) (*SnapshotResponse, error)
	ListSnapshots(context.Context, *Empty) (*ListSnapshotsResponse, error)
	RestoreSnapshot(context.Context, *GetSnapshotRequest) (*Empty, error)
	DeleteSnapshot(context.Context, *GetSnapshotRequest) (*Empty, error)
	ReportTabletSnapshotDone(context.Context, *ReportTabletSnapshotDoneRequest) (*Empty, error)
	ImportSnapshot(context.Context, *ImportSnapshotRequest) (*ImportSnapshotResponse, error)

	CreateCDCStream(context.Context, *CreateCDCStreamRequest) (*CDCStreamResponse, error)
	GetCDCStream(context.Context, *GetCDCStreamRequest) (*CDCStreamResponse, error)
	ListCDCStreams(context.Context, *Empty) (*ListCDCStreamsResponse, error)
	DeleteCDCStream(context.Context, *GetCDCStreamRequest) (*Empty, error)
	RecordCDCCheckpoint(context.Context, *RecordCDCCheckpointRequest) (*Empty, error)
	GetCDCCheckpoint(context.Context, *GetCDCCheckpointRequest) (*CDCCheckpointResponse, error)

	SetupUniverseReplication(context.Context, *SetupUniverseReplicationRequest) (*UniverseReplicationResponse, error)
	GetUniverseReplication(context.Context, *GetUniverseReplicationRequest) (*UniverseReplicationResponse, error)
	ListUniverseReplications(context.Context, *Empty) (*ListUniverseReplicationsResponse, error)
	DeleteUniverseReplication(context.Context, *GetUniverseReplicationRequest) (*Empty, error)
	SetUniverseReplicationPaused(context.Context, *SetUniverseReplicationPausedRequest) (*Empty, error)

	UpdateSafeTime(context.Context, *UpdateSafeTimeRequest) (*Empty, error)
	MinSafeTime(context.Context, *GetUniverseReplicationRequest) (*MinSafeTimeResponse, error)

	GetClusterStatus(context.Context, *Empty) (*ClusterStatusResponse, error)
}

// unaryHandler adapts a strongly-typed RPC method into the
// grpc.methodHandler signature protoc-gen-go-grpc would generate,
// without hand-writing the decode/interceptor plumbing once per
// method. Generics let one function cover every RPC instead of the
// usual one generated function per method.
func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(srv MasterServer, ctx context.Context, req *Req) (*Resp, error),
) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MasterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MasterServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func method[Req, Resp any](name string, call func(srv MasterServer, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler:    unaryHandler("/"+serviceName+"/"+name, call),
	}
}

const serviceName = "vanguard.master.MasterService"

// ServiceDesc is the grpc.ServiceDesc protoc-gen-go-grpc would have
// generated from a master.proto file defining these RPCs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MasterServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateNamespace", MasterServer.CreateNamespace),
		method("GetNamespace", MasterServer.GetNamespace),
		method("ListNamespaces", MasterServer.ListNamespaces),
		method("DeleteNamespace", MasterServer.DeleteNamespace),

		method("CreateTable", MasterServer.CreateTable),
		method("GetTable", MasterServer.GetTable),
		method("ListTables", MasterServer.ListTables),
		method("ListTabletsForTable", MasterServer.ListTabletsForTable),
		method("DeleteTable", MasterServer.DeleteTable),

		method("GetTablet", MasterServer.GetTablet),
		method("ListTablets", MasterServer.ListTablets),
		method("AddReplica", MasterServer.AddReplica),
		method("RemoveReplica", MasterServer.RemoveReplica),
		method("MoveLeader", MasterServer.MoveLeader),

		method("TSHeartbeat", MasterServer.TSHeartbeat),
		method("LiveTabletServers", MasterServer.LiveTabletServers),
		method("LiveReadReplicaServers", MasterServer.LiveReadReplicaServers),

		method("SetReplicationInfo", MasterServer.SetReplicationInfo),
		method("SetServerBlacklist", MasterServer.SetServerBlacklist),
		method("SetLeaderBlacklist", MasterServer.SetLeaderBlacklist),
		method("ChangeEncryptionInfo", MasterServer.ChangeEncryptionInfo),
		method("GetClusterConfig", MasterServer.GetClusterConfig),

		method("CreateSnapshot", MasterServer.CreateSnapshot),
		method("GetSnapshot", MasterServer.GetSnapshot),
		method("ListSnapshots", MasterServer.ListSnapshots),
		method("RestoreSnapshot", MasterServer.RestoreSnapshot),
		method("DeleteSnapshot", MasterServer.DeleteSnapshot),
		method("ReportTabletSnapshotDone", MasterServer.ReportTabletSnapshotDone),
		method("ImportSnapshot", MasterServer.ImportSnapshot),

		method("CreateCDCStream", MasterServer.CreateCDCStream),
		method("GetCDCStream", MasterServer.GetCDCStream),
		method("ListCDCStreams", MasterServer.ListCDCStreams),
		method("DeleteCDCStream", MasterServer.DeleteCDCStream),
		method("RecordCDCCheckpoint", MasterServer.RecordCDCCheckpoint),
		method("GetCDCCheckpoint", MasterServer.GetCDCCheckpoint),

		method("SetupUniverseReplication", MasterServer.SetupUniverseReplication),
		method("GetUniverseReplication", MasterServer.GetUniverseReplication),
		method("ListUniverseReplications", MasterServer.ListUniverseReplications),
		method("DeleteUniverseReplication", MasterServer.DeleteUniverseReplication),
		method("SetUniverseReplicationPaused", MasterServer.SetUniverseReplicationPaused),

		method("UpdateSafeTime", MasterServer.UpdateSafeTime),
		method("MinSafeTime", MasterServer.MinSafeTime),

		method("GetClusterStatus", MasterServer.GetClusterStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "master.rpc",
}
