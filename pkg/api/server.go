package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	vglog "github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/security"
)

// Server implements MasterServer over mTLS gRPC, backed by a single
// catalog.Manager. Every write RPC is additionally gated by
// LeaderFencingInterceptor; Server itself just translates wire
// messages to and from Manager calls and never checks leadership on
// its own, keeping that concern in one place instead of duplicated
// per RPC.
type Server struct {
	mgr  *catalog.Manager
	grpc *grpc.Server
}

// NewServer builds a master API server secured with the cluster's mTLS
// certificates: GetCertDir/CertExists/LoadCertFromFile/LoadCACertFromFile
// against this node's role and id.
func NewServer(mgr *catalog.Manager, nodeID string) (*Server, error) {
	certDir, err := security.GetCertDir("master", nodeID)
	if err != nil {
		return nil, fmt.Errorf("api: failed to get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("api: master certificate not found at %s - ensure the cluster is initialized", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("api: failed to load master certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("api: failed to load CA certificate: %w", err)
	}
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}

	grpcServer := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsConfig)),
		grpc.UnaryInterceptor(LeaderFencingInterceptor(mgr)),
	)

	return &Server{mgr: mgr, grpc: grpcServer}, nil
}

// Start begins serving the master API on addr. Blocks until Stop is
// called or the listener fails.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: failed to listen on %s: %w", addr, err)
	}
	s.grpc.RegisterService(&ServiceDesc, s)
	vglog.WithComponent("api").Info().Str("addr", addr).Msg("master API listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully drains in-flight RPCs before shutting down.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// Namespace RPCs.

func (s *Server) CreateNamespace(ctx context.Context, req *CreateNamespaceRequest) (*NamespaceResponse, error) {
	ns, err := s.mgr.CreateNamespace(req.Name, req.Type)
	if err != nil {
		return nil, err
	}
	return &NamespaceResponse{Namespace: ns}, nil
}

func (s *Server) GetNamespace(ctx context.Context, req *GetNamespaceRequest) (*NamespaceResponse, error) {
	ns, err := s.mgr.GetNamespace(req.ID)
	if err != nil {
		return nil, err
	}
	return &NamespaceResponse{Namespace: ns}, nil
}

func (s *Server) ListNamespaces(ctx context.Context, _ *Empty) (*ListNamespacesResponse, error) {
	return &ListNamespacesResponse{Namespaces: s.mgr.ListNamespaces()}, nil
}

func (s *Server) DeleteNamespace(ctx context.Context, req *DeleteNamespaceRequest) (*Empty, error) {
	return &Empty{}, s.mgr.DeleteNamespace(req.ID)
}

// Table RPCs.

func (s *Server) CreateTable(ctx context.Context, req *CreateTableRequest) (*TableResponse, error) {
	table, err := s.mgr.CreateTable(*req)
	if err != nil {
		return nil, err
	}
	return &TableResponse{Table: table}, nil
}

func (s *Server) GetTable(ctx context.Context, req *GetTableRequest) (*TableResponse, error) {
	table, err := s.mgr.GetTable(req.ID)
	if err != nil {
		return nil, err
	}
	return &TableResponse{Table: table}, nil
}

func (s *Server) ListTables(ctx context.Context, _ *Empty) (*ListTablesResponse, error) {
	return &ListTablesResponse{Tables: s.mgr.ListTables()}, nil
}

func (s *Server) ListTabletsForTable(ctx context.Context, req *GetTableRequest) (*ListTabletsResponse, error) {
	return &ListTabletsResponse{Tablets: s.mgr.ListTabletsForTable(req.ID)}, nil
}

func (s *Server) DeleteTable(ctx context.Context, req *DeleteTableRequest) (*Empty, error) {
	return &Empty{}, s.mgr.DeleteTable(req.ID)
}

// Tablet RPCs.

func (s *Server) GetTablet(ctx context.Context, req *GetTabletRequest) (*TabletResponse, error) {
	tablet, err := s.mgr.GetTablet(req.ID)
	if err != nil {
		return nil, err
	}
	return &TabletResponse{Tablet: tablet}, nil
}

func (s *Server) ListTablets(ctx context.Context, _ *Empty) (*ListTabletsResponse, error) {
	return &ListTabletsResponse{Tablets: s.mgr.ListTablets()}, nil
}

func (s *Server) AddReplica(ctx context.Context, req *AddReplicaRequest) (*Empty, error) {
	return &Empty{}, s.mgr.AddReplica(req.TabletID, req.TSUUID, req.MemberType)
}

func (s *Server) RemoveReplica(ctx context.Context, req *RemoveReplicaRequest) (*Empty, error) {
	return &Empty{}, s.mgr.RemoveReplica(req.TabletID, req.TSUUID)
}

func (s *Server) MoveLeader(ctx context.Context, req *MoveLeaderRequest) (*Empty, error) {
	return &Empty{}, s.mgr.MoveLeader(req.TabletID, req.NewLeaderUUID)
}

// Tablet server / heartbeat RPCs.

func (s *Server) TSHeartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	resp, err := s.mgr.TSHeartbeat(*req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Server) LiveTabletServers(ctx context.Context, _ *Empty) (*ListTabletServersResponse, error) {
	return &ListTabletServersResponse{TabletServers: s.mgr.LiveTabletServers()}, nil
}

func (s *Server) LiveReadReplicaServers(ctx context.Context, req *PlacementUUIDRequest) (*ListTabletServersResponse, error) {
	return &ListTabletServersResponse{TabletServers: s.mgr.LiveReadReplicaServers(req.PlacementUUID)}, nil
}

// Cluster configuration RPCs.

func (s *Server) SetReplicationInfo(ctx context.Context, req *SetReplicationInfoRequest) (*Empty, error) {
	return &Empty{}, s.mgr.SetReplicationInfo(req.ReplicationInfo)
}

func (s *Server) SetServerBlacklist(ctx context.Context, req *BlacklistRequest) (*Empty, error) {
	return &Empty{}, s.mgr.SetServerBlacklist(req.UUIDs)
}

func (s *Server) SetLeaderBlacklist(ctx context.Context, req *BlacklistRequest) (*Empty, error) {
	return &Empty{}, s.mgr.SetLeaderBlacklist(req.UUIDs)
}

func (s *Server) ChangeEncryptionInfo(ctx context.Context, req *ChangeEncryptionInfoRequest) (*Empty, error) {
	return &Empty{}, s.mgr.ChangeEncryptionInfo(req.Enabled, req.UniverseKeyID)
}

func (s *Server) GetClusterConfig(ctx context.Context, _ *Empty) (*ClusterConfigResponse, error) {
	return &ClusterConfigResponse{ClusterConfig: s.mgr.ClusterConfig()}, nil
}

// Snapshot RPCs.

func (s *Server) CreateSnapshot(ctx context.Context, req *CreateSnapshotRequest) (*SnapshotResponse, error) {
	snap, err := s.mgr.CreateSnapshot(*req)
	if err != nil {
		return nil, err
	}
	return &SnapshotResponse{Snapshot: snap}, nil
}

func (s *Server) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*SnapshotResponse, error) {
	snap, err := s.mgr.GetSnapshot(req.ID)
	if err != nil {
		return nil, err
	}
	return &SnapshotResponse{Snapshot: snap}, nil
}

func (s *Server) ListSnapshots(ctx context.Context, _ *Empty) (*ListSnapshotsResponse, error) {
	return &ListSnapshotsResponse{Snapshots: s.mgr.ListSnapshots()}, nil
}

func (s *Server) RestoreSnapshot(ctx context.Context, req *GetSnapshotRequest) (*Empty, error) {
	return &Empty{}, s.mgr.RestoreSnapshot(req.ID)
}

func (s *Server) DeleteSnapshot(ctx context.Context, req *GetSnapshotRequest) (*Empty, error) {
	return &Empty{}, s.mgr.DeleteSnapshot(req.ID)
}

func (s *Server) ReportTabletSnapshotDone(ctx context.Context, req *ReportTabletSnapshotDoneRequest) (*Empty, error) {
	return &Empty{}, s.mgr.ReportTabletSnapshotDone(req.SnapshotID, req.TabletID, req.Success)
}

func (s *Server) ImportSnapshot(ctx context.Context, req *ImportSnapshotRequest) (*ImportSnapshotResponse, error) {
	result, err := s.mgr.ImportSnapshot(*req)
	if err != nil {
		return nil, err
	}
	return &ImportSnapshotResponse{Result: result}, nil
}

// CDC RPCs.

func (s *Server) CreateCDCStream(ctx context.Context, req *CreateCDCStreamRequest) (*CDCStreamResponse, error) {
	stream, err := s.mgr.CreateCDCStream(req.TableID, req.Options)
	if err != nil {
		return nil, err
	}
	return &CDCStreamResponse{Stream: stream}, nil
}

func (s *Server) GetCDCStream(ctx context.Context, req *GetCDCStreamRequest) (*CDCStreamResponse, error) {
	stream, err := s.mgr.GetCDCStream(req.ID)
	if err != nil {
		return nil, err
	}
	return &CDCStreamResponse{Stream: stream}, nil
}

func (s *Server) ListCDCStreams(ctx context.Context, _ *Empty) (*ListCDCStreamsResponse, error) {
	return &ListCDCStreamsResponse{Streams: s.mgr.ListCDCStreams()}, nil
}

func (s *Server) DeleteCDCStream(ctx context.Context, req *GetCDCStreamRequest) (*Empty, error) {
	return &Empty{}, s.mgr.DeleteCDCStream(req.ID)
}

func (s *Server) RecordCDCCheckpoint(ctx context.Context, req *RecordCDCCheckpointRequest) (*Empty, error) {
	return &Empty{}, s.mgr.RecordCDCCheckpoint(req.TabletID, req.StreamID, req.Checkpoint, req.Data)
}

func (s *Server) GetCDCCheckpoint(ctx context.Context, req *GetCDCCheckpointRequest) (*CDCCheckpointResponse, error) {
	row, err := s.mgr.GetCDCCheckpoint(req.TabletID, req.StreamID)
	if err != nil {
		return nil, err
	}
	return &CDCCheckpointResponse{Row: row}, nil
}

// Universe replication RPCs.

func (s *Server) SetupUniverseReplication(ctx context.Context, req *SetupUniverseReplicationRequest) (*UniverseReplicationResponse, error) {
	rep, err := s.mgr.SetupUniverseReplication(*req)
	if err != nil {
		return nil, err
	}
	return &UniverseReplicationResponse{Replication: rep}, nil
}

func (s *Server) GetUniverseReplication(ctx context.Context, req *GetUniverseReplicationRequest) (*UniverseReplicationResponse, error) {
	rep, err := s.mgr.GetUniverseReplication(req.ProducerID)
	if err != nil {
		return nil, err
	}
	return &UniverseReplicationResponse{Replication: rep}, nil
}

func (s *Server) ListUniverseReplications(ctx context.Context, _ *Empty) (*ListUniverseReplicationsResponse, error) {
	return &ListUniverseReplicationsResponse{Replications: s.mgr.ListUniverseReplications()}, nil
}

func (s *Server) DeleteUniverseReplication(ctx context.Context, req *GetUniverseReplicationRequest) (*Empty, error) {
	return &Empty{}, s.mgr.DeleteUniverseReplication(req.ProducerID)
}

func (s *Server) SetUniverseReplicationPaused(ctx context.Context, req *SetUniverseReplicationPausedRequest) (*Empty, error) {
	return &Empty{}, s.mgr.SetUniverseReplicationPaused(req.ProducerID, req.Paused)
}

// Safe-time RPCs.

func (s *Server) UpdateSafeTime(ctx context.Context, req *UpdateSafeTimeRequest) (*Empty, error) {
	return &Empty{}, s.mgr.UpdateSafeTime(req.UniverseID, req.ProducerTabletID, req.SafeTime)
}

func (s *Server) MinSafeTime(ctx context.Context, req *GetUniverseReplicationRequest) (*MinSafeTimeResponse, error) {
	t, err := s.mgr.MinSafeTime(req.ProducerID)
	if err != nil {
		return nil, err
	}
	return &MinSafeTimeResponse{SafeTime: t}, nil
}

// Cluster status.

func (s *Server) GetClusterStatus(ctx context.Context, _ *Empty) (*ClusterStatusResponse, error) {
	return &ClusterStatusResponse{
		IsLeader:    s.mgr.IsLeader(),
		LeaderAddr:  s.mgr.LeaderAddr(),
		CurrentTerm: s.mgr.CurrentTerm(),
	}, nil
}
