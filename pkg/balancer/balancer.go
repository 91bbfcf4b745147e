// Package balancer implements the Load Balancer: a background loop on
// the current Catalog Manager leader that brings tablet replica
// placement back into line with each table's replication policy,
// evacuates blacklisted tablet servers, and keeps tablet leadership
// spread evenly across the cluster.
package balancer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/tserverclient"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// replicaRPC is the tablet-server RPC surface the balancer needs to
// actually carry out a replica or leadership change, rather than only
// recording it in the Sys-Catalog. Satisfied by *tserverclient.Pool; a
// nil value (the zero Balancer) skips the RPC step entirely, which
// keeps balancer_test.go's pure placement-logic tests free of any
// network or TLS setup.
type replicaRPC interface {
	ChangeConfig(ctx context.Context, tsUUID, addr string, req tserverclient.ChangeConfigRequest) error
	LeaderStepDown(ctx context.Context, tsUUID, addr string, req tserverclient.LeaderStepDownRequest) error
}

// Config controls how often the balancer runs and how much work it is
// willing to do in a single pass.
type Config struct {
	Interval time.Duration

	// MaxAddsPerRun, MaxRemovesPerRun and MaxMovesPerRun each bound
	// their own phase's AddReplica/RemoveReplica/MoveLeader call count
	// for one run, tracked as separate budgets so a run heavy on one
	// kind of action can't starve the others.
	MaxAddsPerRun    int
	MaxRemovesPerRun int
	MaxMovesPerRun   int

	// LeaderBalanceThreshold is the largest tolerable gap between the
	// busiest and the idlest tablet server's leader count before the
	// balancer starts moving leaders to close it. If the configured
	// value is below ceil(total_leaders/num_servers), RunOnce raises it
	// for that run only: a threshold tighter than the best achievable
	// equalization would otherwise never be satisfied.
	LeaderBalanceThreshold int

	// StepDownBackoff is how long a (tablet, target) leader move is
	// skipped after a failed attempt, so a server that keeps refusing
	// leadership doesn't get retried every cycle.
	StepDownBackoff time.Duration
}

func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.MaxAddsPerRun == 0 {
		c.MaxAddsPerRun = 1
	}
	if c.MaxRemovesPerRun == 0 {
		c.MaxRemovesPerRun = 1
	}
	if c.MaxMovesPerRun == 0 {
		c.MaxMovesPerRun = 1
	}
	if c.LeaderBalanceThreshold == 0 {
		c.LeaderBalanceThreshold = 2
	}
	if c.StepDownBackoff == 0 {
		c.StepDownBackoff = 20 * time.Second
	}
}

type backoffKey struct {
	tabletID string
	target   string
}

// Balancer is the Load Balancer. It only acts while the Catalog Manager
// it wraps holds Raft leadership; a run on a follower is a no-op.
type Balancer struct {
	mgr    *catalog.Manager
	cfg    Config
	logger zerolog.Logger
	rpc    replicaRPC

	mu     sync.Mutex
	stopCh chan struct{}

	leaderMoveBackoff map[backoffKey]time.Time
}

// New creates a Balancer over mgr. rpc drives the real Raft config
// change on a tablet's peer group once the catalog bookkeeping for an
// AddReplica/RemoveReplica/MoveLeader decision commits; pass nil to
// run catalog-only (e.g. in a test harness with no tablet servers to
// actually dial).
func New(mgr *catalog.Manager, cfg Config, rpc *tserverclient.Pool) *Balancer {
	cfg.setDefaults()
	b := &Balancer{
		mgr:               mgr,
		cfg:               cfg,
		logger:            log.WithComponent("balancer"),
		stopCh:            make(chan struct{}),
		leaderMoveBackoff: make(map[backoffKey]time.Time),
	}
	if rpc != nil {
		b.rpc = rpc
	}
	return b
}

// Start begins the balancer's run loop.
func (b *Balancer) Start() {
	go b.run()
}

// Stop stops the balancer.
func (b *Balancer) Stop() {
	close(b.stopCh)
}

func (b *Balancer) run() {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.logger.Info().Msg("load balancer started")

	for {
		select {
		case <-ticker.C:
			if err := b.RunOnce(); err != nil {
				b.logger.Error().Err(err).Msg("balancer run failed")
			}
		case <-b.stopCh:
			b.logger.Info().Msg("load balancer stopped")
			return
		}
	}
}

// RunOnce performs one analyze-then-act balancing cycle: (a) add
// replicas to correct under-replication and wrong placement, (b) remove
// replicas to correct over-replication, blacklisting and leftover wrong
// placement, (c) move tablet leadership to even out leader count and
// honor the leader blacklist. It is a no-op when this master is not the
// Raft leader.
func (b *Balancer) RunOnce() error {
	if !b.mgr.IsLeader() {
		return nil
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.BalancerRunDuration)
		metrics.BalancerRunsTotal.Inc()
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	cfg := b.mgr.ClusterConfig()
	live := b.mgr.LiveTabletServers()
	byUUID := indexByUUID(live)
	serverBlacklist := toSet(cfg.ServerBlacklist)
	leaderBlacklist := toSet(cfg.LeaderBlacklist)

	b.addReplicasPhase(live, byUUID, serverBlacklist, newBudget(b.cfg.MaxAddsPerRun))
	b.removeReplicasPhase(byUUID, serverBlacklist, newBudget(b.cfg.MaxRemovesPerRun))
	b.leaderMovePhase(live, leaderBlacklist, newBudget(b.cfg.MaxMovesPerRun))

	return nil
}

// effectiveLeaderBalanceThreshold raises the configured threshold for
// this run if it is tighter than the best achievable equalization
// across live servers: a threshold below that floor could never be
// satisfied no matter how many leaders get moved.
func effectiveLeaderBalanceThreshold(configured int, totalLeaders, numServers int) int {
	if numServers == 0 {
		return configured
	}
	best := (totalLeaders + numServers - 1) / numServers
	if configured < best {
		return best
	}
	return configured
}

// budget caps the number of actions a single phase may take in one run.
type budget struct {
	remaining int
}

func newBudget(n int) *budget { return &budget{remaining: n} }

func (b *budget) take() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func indexByUUID(servers []*types.TabletServer) map[string]*types.TabletServer {
	out := make(map[string]*types.TabletServer, len(servers))
	for _, ts := range servers {
		out[ts.UUID] = ts
	}
	return out
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// eachLiveTablet walks every non-deleted table's non-deleted tablets.
func (b *Balancer) eachLiveTablet(fn func(table *types.Table, tablet *types.Tablet)) {
	for _, table := range b.mgr.ListTables() {
		if table.State == types.TableDeleted || table.State == types.TableDeleting {
			continue
		}
		ri := b.mgr.ResolveReplicationInfo(table)
		if ri == nil {
			continue
		}
		for _, tablet := range b.mgr.ListTabletsForTable(table.ID) {
			if tablet.State == types.TabletDeleted {
				continue
			}
			fn(table, tablet)
		}
	}
}
