// Package client is a thin CLI-facing wrapper around the master's gRPC
// API (pkg/api): mTLS dial using an existing CLI certificate, one
// method per RPC, each opening its own bounded-timeout context.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/vanguarddb/vanguard/pkg/api"
	"github.com/vanguarddb/vanguard/pkg/producer"
	"github.com/vanguarddb/vanguard/pkg/rpcwire"
	"github.com/vanguarddb/vanguard/pkg/security"
	"github.com/vanguarddb/vanguard/pkg/types"
)

const callTimeout = 10 * time.Second

// Client is a CLI connection to one master. It calls the master's
// gRPC service via grpc.ClientConn.Invoke directly rather than through
// a generated stub, since the wire protocol is pkg/rpcwire's JSON
// codec rather than protobuf.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials addr using the CLI's existing mTLS certificate. It
// refuses to proceed without a certificate already on disk rather
// than silently falling back to an insecure connection.
func NewClient(addr string) (*Client, error) {
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, fmt.Errorf("client: failed to get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("client: CLI certificate not found at %s; request one from a cluster administrator", certDir)
	}
	conn, err := connectWithMTLS(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("client: failed to connect to master: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.conn.Invoke(ctx, method, req, resp)
}

// Namespaces.

func (c *Client) CreateNamespace(name string, nsType types.NamespaceType) (*types.Namespace, error) {
	var resp api.NamespaceResponse
	err := c.call(context.Background(), "/vanguard.master.MasterService/CreateNamespace",
		&api.CreateNamespaceRequest{Name: name, Type: nsType}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Namespace, nil
}

func (c *Client) ListNamespaces() ([]*types.Namespace, error) {
	var resp api.ListNamespacesResponse
	if err := c.call(context.Background(), "/vanguard.master.MasterService/ListNamespaces", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Namespaces, nil
}

func (c *Client) DeleteNamespace(id string) error {
	return c.call(context.Background(), "/vanguard.master.MasterService/DeleteNamespace",
		&api.DeleteNamespaceRequest{ID: id}, &api.Empty{})
}

// Tables.

func (c *Client) CreateTable(req api.CreateTableRequest) (*types.Table, error) {
	var resp api.TableResponse
	if err := c.call(context.Background(), "/vanguard.master.MasterService/CreateTable", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *Client) GetTable(id string) (*types.Table, error) {
	var resp api.TableResponse
	err := c.call(context.Background(), "/vanguard.master.MasterService/GetTable", &api.GetTableRequest{ID: id}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *Client) ListTables() ([]*types.Table, error) {
	var resp api.ListTablesResponse
	if err := c.call(context.Background(), "/vanguard.master.MasterService/ListTables", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

func (c *Client) DeleteTable(id string) error {
	return c.call(context.Background(), "/vanguard.master.MasterService/DeleteTable", &api.DeleteTableRequest{ID: id}, &api.Empty{})
}

// Snapshots.

func (c *Client) CreateSnapshot(tableIDs []string) (*types.Snapshot, error) {
	var resp api.SnapshotResponse
	req := api.CreateSnapshotRequest{TableIDs: tableIDs}
	if err := c.call(context.Background(), "/vanguard.master.MasterService/CreateSnapshot", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Snapshot, nil
}

func (c *Client) ListSnapshots() ([]*types.Snapshot, error) {
	var resp api.ListSnapshotsResponse
	if err := c.call(context.Background(), "/vanguard.master.MasterService/ListSnapshots", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

func (c *Client) RestoreSnapshot(id string) error {
	return c.call(context.Background(), "/vanguard.master.MasterService/RestoreSnapshot", &api.GetSnapshotRequest{ID: id}, &api.Empty{})
}

// Universe replication.

// SetupUniverseReplicationFromProducer dials the producer cluster
// directly (using this CLI's own certificate, which the producer's CA
// must trust) to discover each table's schema, tablet ids, and a
// freshly opened CDC stream, then submits the assembled request to
// this client's own (consumer) cluster. This is the path an operator
// actually drives setup_universe_replication through; supplying a
// SetupUniverseReplicationRequest by hand remains possible for tests
// and tooling that already has that data some other way.
func (c *Client) SetupUniverseReplicationFromProducer(producerID string, producerMasterAddresses []string, consumerTableIDs map[string]string) (*types.UniverseReplication, error) {
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, fmt.Errorf("client: failed to get cert directory: %w", err)
	}

	var lastErr error
	for _, addr := range producerMasterAddresses {
		prod, dialErr := producer.Dial(addr, certDir)
		if dialErr != nil {
			lastErr = dialErr
			continue
		}
		req, buildErr := producer.BuildSetupRequest(context.Background(), prod, producerID, producerMasterAddresses, consumerTableIDs)
		closeErr := prod.Close()
		if buildErr != nil {
			lastErr = buildErr
			continue
		}
		if closeErr != nil {
			lastErr = closeErr
		}

		var resp api.UniverseReplicationResponse
		if err := c.call(context.Background(), "/vanguard.master.MasterService/SetupUniverseReplication", &req, &resp); err != nil {
			return nil, err
		}
		return resp.Replication, nil
	}
	return nil, fmt.Errorf("client: failed to reach any producer master: %w", lastErr)
}

// Cluster status.

func (c *Client) GetClusterStatus() (*api.ClusterStatusResponse, error) {
	var resp api.ClusterStatusResponse
	if err := c.call(context.Background(), "/vanguard.master.MasterService/GetClusterStatus", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func connectWithMTLS(addr, certDir string) (*grpc.ClientConn, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CLI certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcwire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial master: %w", err)
	}
	return conn, nil
}
