// Package snapshotdriver dispatches the tablet-server side of a
// snapshot create/restore/delete operation and relays the outcome
// back into the catalog, the same leader-only background-loop shape
// pkg/balancer uses to drive replica placement. catalog.Snapshot's own
// state machine (pkg/catalog/snapshot.go) only records what should
// happen and what tablets have reported in; this package is what
// actually asks a tablet server to do it.
package snapshotdriver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/tserverclient"
	"github.com/vanguarddb/vanguard/pkg/types"
)

const defaultInterval = 10 * time.Second

// Driver polls in-flight snapshots and dispatches one tablet-server
// RPC per not-yet-reported tablet, then reports the outcome back to
// the Manager via ReportTabletSnapshotDone. It only acts while mgr
// holds Raft leadership.
type Driver struct {
	mgr      *catalog.Manager
	rpc      *tserverclient.Pool
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	dispatched map[string]bool // "snapshotID/tabletID" already sent, awaiting a report
	stopCh     chan struct{}
}

func New(mgr *catalog.Manager, rpc *tserverclient.Pool, interval time.Duration) *Driver {
	if interval == 0 {
		interval = defaultInterval
	}
	return &Driver{
		mgr:        mgr,
		rpc:        rpc,
		interval:   interval,
		logger:     log.WithComponent("snapshot-driver"),
		dispatched: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

func (d *Driver) Start() {
	go d.run()
}

func (d *Driver) Stop() {
	close(d.stopCh)
}

func (d *Driver) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Msg("snapshot driver started")
	for {
		select {
		case <-ticker.C:
			d.RunOnce()
		case <-d.stopCh:
			d.logger.Info().Msg("snapshot driver stopped")
			return
		}
	}
}

// RunOnce dispatches one RPC per in-flight tablet not already
// dispatched and awaiting a report. It is a no-op when this master is
// not the Raft leader.
func (d *Driver) RunOnce() {
	if !d.mgr.IsLeader() {
		return
	}

	byUUID := indexByUUID(d.mgr.LiveTabletServers())

	for _, snap := range d.mgr.ListSnapshots() {
		if snap.State.IsTerminal() {
			continue
		}
		for tabletID, state := range snap.TabletStates {
			if state == types.TabletSnapshotComplete || state == types.TabletSnapshotDeleted || state == types.TabletSnapshotFailed {
				continue
			}
			key := snap.ID + "/" + tabletID
			d.mu.Lock()
			already := d.dispatched[key]
			if !already {
				d.dispatched[key] = true
			}
			d.mu.Unlock()
			if already {
				continue
			}
			go d.dispatch(snap.ID, tabletID, snap.State, byUUID, key)
		}
	}
}

func (d *Driver) dispatch(snapshotID, tabletID string, state types.SnapshotState, byUUID map[string]*types.TabletServer, key string) {
	defer func() {
		d.mu.Lock()
		delete(d.dispatched, key)
		d.mu.Unlock()
	}()

	err := d.call(snapshotID, tabletID, state, byUUID)
	if reportErr := d.mgr.ReportTabletSnapshotDone(snapshotID, tabletID, err == nil); reportErr != nil {
		d.logger.Warn().Err(reportErr).Str("snapshot_id", snapshotID).Str("tablet_id", tabletID).Msg("failed to report tablet snapshot outcome")
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("snapshot_id", snapshotID).Str("tablet_id", tabletID).Msg("tablet server snapshot operation failed")
	}
}

var errNoReplica = errors.New("snapshotdriver: no live replica found for tablet")

func (d *Driver) call(snapshotID, tabletID string, state types.SnapshotState, byUUID map[string]*types.TabletServer) error {
	if d.rpc == nil {
		return nil
	}
	tsUUID, addr, ok := anyReplicaFor(d.mgr, tabletID, byUUID)
	if !ok {
		return errNoReplica
	}
	client, err := d.rpc.Get(tsUUID, addr)
	if err != nil {
		return err
	}
	ctx := context.Background()
	switch state {
	case types.SnapshotCreating:
		return client.CreateTabletSnapshot(ctx, tserverclient.CreateTabletSnapshotRequest{SnapshotID: snapshotID, TabletID: tabletID})
	case types.SnapshotRestoring:
		return client.RestoreTabletSnapshot(ctx, tserverclient.RestoreTabletSnapshotRequest{SnapshotID: snapshotID, TabletID: tabletID})
	case types.SnapshotDeleting:
		return client.DeleteTabletSnapshot(ctx, tserverclient.DeleteTabletSnapshotRequest{SnapshotID: snapshotID, TabletID: tabletID})
	default:
		return nil
	}
}

func indexByUUID(servers []*types.TabletServer) map[string]*types.TabletServer {
	out := make(map[string]*types.TabletServer, len(servers))
	for _, ts := range servers {
		out[ts.UUID] = ts
	}
	return out
}

// anyReplicaFor picks any live replica of tabletID to send the RPC to
// (unlike a config change, a snapshot operation is local to each
// replica, not routed through the Raft leader).
func anyReplicaFor(mgr *catalog.Manager, tabletID string, byUUID map[string]*types.TabletServer) (tsUUID, addr string, ok bool) {
	tablet, err := mgr.GetTablet(tabletID)
	if err != nil {
		return "", "", false
	}
	for tsUUID := range tablet.ReplicaLocations {
		ts, live := byUUID[tsUUID]
		if !live {
			continue
		}
		var a string
		if len(ts.Registration.RPCAddresses) > 0 {
			a = ts.Registration.RPCAddresses[0]
		}
		return tsUUID, a, true
	}
	return "", "", false
}
