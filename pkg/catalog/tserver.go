package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/vanguarddb/vanguard/pkg/types"
)

// tserverTable is the Tablet Server Manager's working set: it is never
// replicated through the Sys-Catalog. Every descriptor is rebuilt purely
// from live heartbeats, so a freshly elected leader starts with an empty
// table and repopulates it as tablet servers next report in.
type tserverTable struct {
	mu      sync.RWMutex
	servers map[string]*types.TabletServer
}

func newTServerTable() *tserverTable {
	return &tserverTable{servers: make(map[string]*types.TabletServer)}
}

// HeartbeatRequest is what a tablet server reports on each heartbeat.
type HeartbeatRequest struct {
	UUID            string
	Registration    types.TSRegistration
	PlacementUUID   string
	InstanceSeqno   int64
	ReportedTablets []string
	Load            types.TSLoad
}

// Heartbeat upserts the tablet server's descriptor. A heartbeat whose
// InstanceSeqno is lower than the one already on file is ignored: it is
// a stale report from a tablet server that has since restarted and
// reconnected with a higher seqno.
func (t *tserverTable) Heartbeat(req HeartbeatRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.servers[req.UUID]
	if ok && existing.InstanceSeqno > req.InstanceSeqno {
		return
	}

	reported := existing
	if !ok || existing.InstanceSeqno != req.InstanceSeqno {
		reported = &types.TabletServer{ReportedTablets: make(map[string]bool)}
	}

	ts := &types.TabletServer{
		UUID:            req.UUID,
		Registration:    req.Registration,
		PlacementUUID:   req.PlacementUUID,
		LastHeartbeat:   time.Now(),
		InstanceSeqno:   req.InstanceSeqno,
		Load:            req.Load,
		ReportedTablets: reported.ReportedTablets,
	}
	for _, tabletID := range req.ReportedTablets {
		ts.ReportedTablets[tabletID] = true
	}
	t.servers[req.UUID] = ts
}

// Lookup returns the descriptor for uuid.
func (t *tserverTable) Lookup(uuid string) (*types.TabletServer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.servers[uuid]
	return ts, ok
}

// AllLive returns every tablet server whose last heartbeat is within
// staleAfter of now.
func (t *tserverTable) AllLive(staleAfter time.Duration) []*types.TabletServer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().Add(-staleAfter)
	out := make([]*types.TabletServer, 0, len(t.servers))
	for _, ts := range t.servers {
		if ts.LastHeartbeat.After(cutoff) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// All returns every known tablet server regardless of staleness.
func (t *tserverTable) All() []*types.TabletServer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*types.TabletServer, 0, len(t.servers))
	for _, ts := range t.servers {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// LivePlacementServers returns the live tablet servers belonging to the
// live (non-read-replica) placement, i.e. those with an empty
// PlacementUUID.
func (t *tserverTable) LivePlacementServers(staleAfter time.Duration) []*types.TabletServer {
	out := make([]*types.TabletServer, 0)
	for _, ts := range t.AllLive(staleAfter) {
		if ts.PlacementUUID == "" {
			out = append(out, ts)
		}
	}
	return out
}

// ReadReplicaServers returns the live tablet servers assigned to the
// named read-replica placement.
func (t *tserverTable) ReadReplicaServers(placementUUID string, staleAfter time.Duration) []*types.TabletServer {
	out := make([]*types.TabletServer, 0)
	for _, ts := range t.AllLive(staleAfter) {
		if ts.PlacementUUID == placementUUID {
			out = append(out, ts)
		}
	}
	return out
}

const defaultHeartbeatStaleAfter = 30 * time.Second
