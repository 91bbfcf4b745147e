// Package catalog implements the Sys-Catalog and the Entity Registry: the
// single source of truth for namespaces, tables, tablets, tablet-server
// liveness, snapshots, CDC streams, universe replication and cluster
// configuration. Every mutation is replicated through Raft so that only
// one master in the cluster — the current leader — can make progress at
// a time.
package catalog

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	vglog "github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// Config controls how a Manager's Raft group and Sys-Catalog store are
// constructed.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	CommitTimeout      time.Duration
	LeaderLeaseTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 500 * time.Millisecond
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = 500 * time.Millisecond
	}
	if c.CommitTimeout == 0 {
		c.CommitTimeout = 50 * time.Millisecond
	}
	if c.LeaderLeaseTimeout == 0 {
		c.LeaderLeaseTimeout = 250 * time.Millisecond
	}
}

// Manager is the Catalog Manager: it owns the replicated Sys-Catalog,
// the in-memory Entity Registry built on top of it, tablet-server
// liveness tracking, and a task-completion queue (created but not
// started; see task.go).
type Manager struct {
	cfg Config

	raft  *raft.Raft
	fsm   *catalogFSM
	store storage.SysCatalogStore

	registry *registry
	tservers *tserverTable
	tasks    *taskQueue

	logger zerolog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sys-catalog store: %w", err)
	}

	reg := newRegistry()
	if err := rebuildRegistry(reg, store); err != nil {
		store.Close()
		return nil, fmt.Errorf("catalog: rebuild registry: %w", err)
	}

	fsm := newCatalogFSM(reg, store)

	mgr := &Manager{
		cfg:      cfg,
		fsm:      fsm,
		store:    store,
		registry: reg,
		tservers: newTServerTable(),
		tasks:    newTaskQueue(),
		logger:   vglog.WithComponent("catalog").With().Str("node_id", cfg.NodeID).Logger(),
	}

	if err := mgr.setupRaft(); err != nil {
		store.Close()
		return nil, err
	}

	return mgr, nil
}

// rebuildRegistry replays every stored item into reg, used on process
// start before Raft replays its own log on top.
func rebuildRegistry(reg *registry, store storage.SysCatalogStore) error {
	f := &catalogFSM{registry: reg, store: store}
	return store.VisitAll(func(item storage.Item) error {
		return f.applyPutToRegistry(item.Kind, item.ID, item.Data)
	})
}

func (m *Manager) setupRaft() error {
	raftDir := filepath.Join(m.cfg.DataDir, "raft")
	if err := os.MkdirAll(raftDir, 0755); err != nil {
		return fmt.Errorf("catalog: create raft dir: %w", err)
	}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.cfg.NodeID)
	config.HeartbeatTimeout = m.cfg.HeartbeatTimeout
	config.ElectionTimeout = m.cfg.ElectionTimeout
	config.CommitTimeout = m.cfg.CommitTimeout
	config.LeaderLeaseTimeout = m.cfg.LeaderLeaseTimeout

	addr, err := net.ResolveTCPAddr("tcp", m.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("catalog: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("catalog: create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(raftDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("catalog: create snapshot store: %w", err)
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "raft.db"))
	if err != nil {
		return fmt.Errorf("catalog: create raft log store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, boltStore, boltStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("catalog: create raft node: %w", err)
	}
	m.raft = r
	return nil
}

// Bootstrap forms a brand-new single-node cluster rooted at this master,
// to be grown later via Join.
func (m *Manager) Bootstrap() error {
	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(m.cfg.NodeID), Address: raft.ServerAddress(m.cfg.BindAddr)},
		},
	}
	return m.raft.BootstrapCluster(configuration).Error()
}

// Join adds a voting peer to the Raft configuration. Must be called
// against the current leader.
func (m *Manager) Join(nodeID, addr string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// Apply proposes cmd through Raft and waits for it to be applied. If the
// FSM returned an error for this command, that error is returned here.
func (m *Manager) Apply(cmd Command) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("catalog: marshal command: %w", err)
	}

	timer := metrics.NewTimer()
	future := m.raft.Apply(data, 10*time.Second)
	err = future.Error()
	timer.ObserveDuration(metrics.RaftApplyDuration)
	if err != nil {
		return fmt.Errorf("catalog: apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if fsmErr, ok := resp.(error); ok {
			return fsmErr
		}
	}
	return nil
}

// IsLeader reports whether this master currently holds Raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the network address of the current Raft leader, if
// known.
func (m *Manager) LeaderAddr() string {
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// CurrentTerm returns the Raft term this master currently observes.
func (m *Manager) CurrentTerm() uint64 {
	var term uint64
	fmt.Sscanf(m.raft.Stats()["term"], "%d", &term)
	return term
}

// Shutdown stops the Raft node and closes the Sys-Catalog store.
func (m *Manager) Shutdown() error {
	if err := m.raft.Shutdown().Error(); err != nil {
		return err
	}
	return m.store.Close()
}

// ClusterConfig returns the current cluster configuration.
func (m *Manager) ClusterConfig() *types.ClusterConfig {
	return m.registry.getClusterConfig()
}

// LiveTabletServers returns the live tablet servers belonging to the
// live (non-read-replica) placement.
func (m *Manager) LiveTabletServers() []*types.TabletServer {
	return m.tservers.LivePlacementServers(defaultHeartbeatStaleAfter)
}

// LiveReadReplicaServers returns the live tablet servers assigned to the
// named read-replica placement.
func (m *Manager) LiveReadReplicaServers(placementUUID string) []*types.TabletServer {
	return m.tservers.ReadReplicaServers(placementUUID, defaultHeartbeatStaleAfter)
}

// ResolveReplicationInfo returns table's own replication policy, falling
// back to the cluster-wide default when the table does not override it.
func (m *Manager) ResolveReplicationInfo(table *types.Table) *types.ReplicationInfo {
	if table.ReplicationInfo != nil {
		return table.ReplicationInfo
	}
	return m.ClusterConfig().ReplicationInfo
}
