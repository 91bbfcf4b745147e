// Package producer is the consumer-side master's RPC client to a
// producer cluster's master, used to discover what SetupUniverseReplication
// needs (a producer table's schema, its tablet ids) and to open the
// CDC stream each replicated table consumes from, instead of those
// being supplied by the caller or stood in with a synthesized id.
//
// Grounded on pkg/client's mTLS-dial-then-Invoke pattern: a producer
// cluster is itself a vanguard deployment, so this client talks the
// same pkg/api wire protocol pkg/client does, just to a different
// cluster's masters rather than the local one.
package producer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/vanguarddb/vanguard/pkg/api"
	"github.com/vanguarddb/vanguard/pkg/rpcwire"
	"github.com/vanguarddb/vanguard/pkg/security"
	"github.com/vanguarddb/vanguard/pkg/types"
)

const rpcTimeout = 30 * time.Second

// Client is a read-mostly view of a producer cluster: its tables and
// the CDC streams SetupUniverseReplication opens to consume from it.
type Client interface {
	ListTables(ctx context.Context) ([]*types.Table, error)
	GetTable(ctx context.Context, id string) (*types.Table, error)
	CreateCDCStream(ctx context.Context, tableID string, options map[string]string) (*types.CDCStream, error)
	Close() error
}

type grpcClient struct {
	conn *grpc.ClientConn
}

// Dial connects to one producer-cluster master. Producer masters
// reject connections without a valid client certificate, same as a
// local master does, so certDir must hold a certificate this
// consumer cluster's CA issued (or one the producer cluster's CA
// trusts, if the two clusters cross-signed for replication).
func Dial(addr, certDir string) (Client, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("producer: failed to load certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("producer: failed to load CA certificate: %w", err)
	}
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcwire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("producer: failed to dial %s: %w", addr, err)
	}
	return &grpcClient{conn: conn}, nil
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}

func (c *grpcClient) call(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.conn.Invoke(ctx, method, req, resp)
}

func (c *grpcClient) ListTables(ctx context.Context) ([]*types.Table, error) {
	var resp api.ListTablesResponse
	if err := c.call(ctx, "/vanguard.master.MasterService/ListTables", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

func (c *grpcClient) GetTable(ctx context.Context, id string) (*types.Table, error) {
	var resp api.TableResponse
	if err := c.call(ctx, "/vanguard.master.MasterService/GetTable", &api.GetTableRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Table, nil
}

func (c *grpcClient) CreateCDCStream(ctx context.Context, tableID string, options map[string]string) (*types.CDCStream, error) {
	var resp api.CDCStreamResponse
	req := api.CreateCDCStreamRequest{TableID: tableID, Options: options}
	if err := c.call(ctx, "/vanguard.master.MasterService/CreateCDCStream", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Stream, nil
}
