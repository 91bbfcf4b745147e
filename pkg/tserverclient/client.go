package tserverclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/vanguarddb/vanguard/pkg/rpcwire"
	"github.com/vanguarddb/vanguard/pkg/security"
)

// rpcTimeout bounds every tablet-server call the balancer or the
// snapshot orchestrator makes; a hung tablet server must not stall an
// entire balancer cycle.
const rpcTimeout = 30 * time.Second

// TabletServerClient is the narrow surface the balancer and the
// snapshot orchestrator need from a live tablet server connection.
// Defined here rather than used directly as *Client so both can be
// faked in tests without dialing a real connection.
type TabletServerClient interface {
	ChangeConfig(ctx context.Context, req ChangeConfigRequest) error
	LeaderStepDown(ctx context.Context, req LeaderStepDownRequest) error
	CreateTabletSnapshot(ctx context.Context, req CreateTabletSnapshotRequest) error
	RestoreTabletSnapshot(ctx context.Context, req RestoreTabletSnapshotRequest) error
	DeleteTabletSnapshot(ctx context.Context, req DeleteTabletSnapshotRequest) error
	Close() error
}

// Client is a single tablet server's mTLS gRPC connection, calling the
// tablet server's RPC service using the JSON wire codec in pkg/rpcwire
// rather than protoc-generated stubs.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens an mTLS connection to a tablet server listening at addr,
// using the master's own certificate from certDir for client auth,
// the same certificate-based dial every mTLS client in this repo uses.
func Dial(addr, certDir string) (*Client, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("tserverclient: failed to load master certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("tserverclient: failed to load CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcwire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("tserverclient: failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ChangeConfig(ctx context.Context, req ChangeConfigRequest) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp ChangeConfigResponse
	if err := c.conn.Invoke(ctx, "/vanguard.tserver.TabletServer/ChangeConfig", &req, &resp); err != nil {
		return err
	}
	return responseErr(resp.Error)
}

func (c *Client) LeaderStepDown(ctx context.Context, req LeaderStepDownRequest) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp LeaderStepDownResponse
	if err := c.conn.Invoke(ctx, "/vanguard.tserver.TabletServer/LeaderStepDown", &req, &resp); err != nil {
		return err
	}
	return responseErr(resp.Error)
}

func (c *Client) CreateTabletSnapshot(ctx context.Context, req CreateTabletSnapshotRequest) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp CreateTabletSnapshotResponse
	if err := c.conn.Invoke(ctx, "/vanguard.tserver.TabletServer/CreateTabletSnapshot", &req, &resp); err != nil {
		return err
	}
	return responseErr(resp.Error)
}

func (c *Client) RestoreTabletSnapshot(ctx context.Context, req RestoreTabletSnapshotRequest) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp RestoreTabletSnapshotResponse
	if err := c.conn.Invoke(ctx, "/vanguard.tserver.TabletServer/RestoreTabletSnapshot", &req, &resp); err != nil {
		return err
	}
	return responseErr(resp.Error)
}

func (c *Client) DeleteTabletSnapshot(ctx context.Context, req DeleteTabletSnapshotRequest) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp DeleteTabletSnapshotResponse
	if err := c.conn.Invoke(ctx, "/vanguard.tserver.TabletServer/DeleteTabletSnapshot", &req, &resp); err != nil {
		return err
	}
	return responseErr(resp.Error)
}

func responseErr(msg string) error {
	if msg == "" {
		return nil
	}
	return fmt.Errorf("tserverclient: %s", msg)
}
