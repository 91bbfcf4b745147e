package tserverclient

import (
	"context"
	"fmt"
	"sync"
)

// Pool dials and caches one Client per tablet-server UUID, so the
// balancer's per-cycle run and the snapshot orchestrator don't each
// open a fresh mTLS connection per RPC.
type Pool struct {
	certDir string

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(certDir string) *Pool {
	return &Pool{certDir: certDir, clients: make(map[string]*Client)}
}

// Get returns a cached client for tsUUID, dialing addr if none exists
// yet. addr is only used on first dial; a tablet server's RPC address
// is not expected to change without a new UUID.
func (p *Pool) Get(tsUUID, addr string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[tsUUID]; ok {
		return c, nil
	}
	if addr == "" {
		return nil, fmt.Errorf("tserverclient: no RPC address known for %q", tsUUID)
	}
	c, err := Dial(addr, p.certDir)
	if err != nil {
		return nil, err
	}
	p.clients[tsUUID] = c
	return c, nil
}

// ChangeConfig resolves (dialing on first use) the client for tsUUID
// and issues req through it. tsUUID here names the tablet's current
// Raft leader replica, the peer a config change must be proposed to.
func (p *Pool) ChangeConfig(ctx context.Context, tsUUID, addr string, req ChangeConfigRequest) error {
	c, err := p.Get(tsUUID, addr)
	if err != nil {
		return err
	}
	return c.ChangeConfig(ctx, req)
}

// LeaderStepDown resolves the client for tsUUID (the tablet's current
// leader replica) and asks it to step down in favor of req.NewLeaderUUID.
func (p *Pool) LeaderStepDown(ctx context.Context, tsUUID, addr string, req LeaderStepDownRequest) error {
	c, err := p.Get(tsUUID, addr)
	if err != nil {
		return err
	}
	return c.LeaderStepDown(ctx, req)
}

// Forget closes and drops the cached client for tsUUID, so the next
// Get re-dials — used when a tablet server's connection starts
// failing, in case its address changed under a new listener.
func (p *Pool) Forget(tsUUID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[tsUUID]; ok {
		c.Close()
		delete(p.clients, tsUUID)
	}
}

// Close closes every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for uuid, c := range p.clients {
		c.Close()
		delete(p.clients, uuid)
	}
	return nil
}
