package balancer

import (
	"context"
	"sort"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/tserverclient"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// addReplicasPhase corrects under-replication and relocates voters that
// are wrongly placed or sitting on a blacklisted server, one corrective
// AddReplica per tablet per run so the added load spreads across
// cycles instead of landing all at once.
func (b *Balancer) addReplicasPhase(live []*types.TabletServer, byUUID map[string]*types.TabletServer, blacklist map[string]bool, bud *budget) {
	b.eachLiveTablet(func(table *types.Table, tablet *types.Tablet) {
		if !bud.take() {
			return
		}
		ri := b.mgr.ResolveReplicationInfo(table)
		desired := ri.LivePlacement.NumReplicas
		current := catalog.ReplicaCount(tablet)

		hosted := make(map[string]bool, len(tablet.ReplicaLocations))
		wrongPlacement := ""
		for uuid, loc := range tablet.ReplicaLocations {
			if loc.MemberType != types.MemberVoter {
				continue
			}
			hosted[uuid] = true
			ts, ok := byUUID[uuid]
			if !ok {
				continue // stale reporter, not evidence of wrong placement
			}
			if blacklist[uuid] || !matchesAnyBlock(ts, ri.LivePlacement) {
				wrongPlacement = uuid
			}
		}

		needsAdd := current < desired || wrongPlacement != ""
		if !needsAdd {
			bud.giveBack()
			return
		}

		target := pickLeastLoaded(live, hosted, blacklist, ri.LivePlacement)
		if target == nil {
			bud.giveBack()
			return
		}
		if err := b.changeConfigOnLeader(tablet, byUUID, tserverclient.ChangeConfigRequest{
			TabletID:     tablet.ID,
			ChangeType:   "ADD_SERVER",
			PeerUUID:     target.UUID,
			PeerIsVoter:  true,
			PeerRPCAddrs: target.Registration.RPCAddresses,
		}); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("target", target.UUID).Msg("tablet server rejected add replica")
			bud.giveBack()
			return
		}
		if err := b.mgr.AddReplica(tablet.ID, target.UUID, types.MemberVoter); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("target", target.UUID).Msg("failed to add replica")
			bud.giveBack()
			return
		}
		metrics.BalancerActionsTotal.WithLabelValues("add_replica").Inc()
		b.logger.Info().Str("tablet_id", tablet.ID).Str("target", target.UUID).Msg("added replica")
	})

	b.loadEqualizePhase(live, byUUID, blacklist, bud)
}

// kMinLoadVarianceToBalance is the smallest load gap, in tablets, that
// loadEqualizePhase will act on. Below it, moving a replica isn't worth
// the churn.
const kMinLoadVarianceToBalance = 2

// loadEqualizePhase is the add phase's third priority: once missing and
// wrongly-placed replicas are handled, close the remaining load gap
// between the busiest and idlest tablet servers by walking the
// sorted-by-load list with two indices, moving one replica at a time
// from the busiest side toward the idlest until the gap closes or no
// further move qualifies. The replica shed from the busy server is left
// for the remove phase to clean up on a later run, once the new peer on
// the idle server has caught up.
func (b *Balancer) loadEqualizePhase(live []*types.TabletServer, byUUID map[string]*types.TabletServer, blacklist map[string]bool, bud *budget) {
	sorted := sortedByLoad(live)
	loads := make(map[string]int, len(sorted))
	for _, ts := range sorted {
		loads[ts.UUID] = ts.Load.NumTablets
	}

	lo, hi := 0, len(sorted)-1
	for lo < hi && bud.remaining > 0 {
		gap := loads[sorted[hi].UUID] - loads[sorted[lo].UUID]
		if gap < kMinLoadVarianceToBalance {
			break
		}
		if blacklist[sorted[lo].UUID] {
			lo++
			continue
		}
		if b.moveOneReplicaBetween(sorted[hi], sorted[lo], byUUID, blacklist, bud) {
			loads[sorted[hi].UUID]--
			loads[sorted[lo].UUID]++
			continue
		}
		hi--
	}
}

func sortedByLoad(live []*types.TabletServer) []*types.TabletServer {
	out := make([]*types.TabletServer, len(live))
	copy(out, live)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Load.NumTablets != out[j].Load.NumTablets {
			return out[i].Load.NumTablets < out[j].Load.NumTablets
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

// moveOneReplicaBetween finds one voter replica of a non-over-replicated
// tablet hosted on from that can gain a new replica on to without
// violating placement, and is not the tablet's leader unless RF==1 (so
// the eventual remove doesn't force an avoidable step-down), then issues
// the AddReplica.
func (b *Balancer) moveOneReplicaBetween(from, to *types.TabletServer, byUUID map[string]*types.TabletServer, blacklist map[string]bool, bud *budget) bool {
	moved := false
	b.eachLiveTablet(func(table *types.Table, tablet *types.Tablet) {
		if moved {
			return
		}
		loc, ok := tablet.ReplicaLocations[from.UUID]
		if !ok || loc.MemberType != types.MemberVoter {
			return
		}
		ri := b.mgr.ResolveReplicationInfo(table)
		desired := ri.LivePlacement.NumReplicas
		if catalog.ReplicaCount(tablet) > desired {
			return
		}
		if loc.Role == types.RoleLeader && desired != 1 {
			return
		}
		if _, hosted := tablet.ReplicaLocations[to.UUID]; hosted {
			return
		}
		if to.PlacementUUID != ri.LivePlacement.PlacementUUID || blacklist[to.UUID] || !matchesAnyBlock(to, ri.LivePlacement) {
			return
		}
		if !bud.take() {
			return
		}
		if err := b.changeConfigOnLeader(tablet, byUUID, tserverclient.ChangeConfigRequest{
			TabletID:     tablet.ID,
			ChangeType:   "ADD_SERVER",
			PeerUUID:     to.UUID,
			PeerIsVoter:  true,
			PeerRPCAddrs: to.Registration.RPCAddresses,
		}); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("target", to.UUID).Msg("tablet server rejected add replica")
			bud.giveBack()
			return
		}
		if err := b.mgr.AddReplica(tablet.ID, to.UUID, types.MemberVoter); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("target", to.UUID).Msg("failed to add replica")
			bud.giveBack()
			return
		}
		metrics.BalancerActionsTotal.WithLabelValues("add_replica").Inc()
		b.logger.Info().Str("tablet_id", tablet.ID).Str("target", to.UUID).Msg("added replica for load equalization")
		moved = true
	})
	return moved
}

// changeConfigOnLeader issues req against the tablet's current Raft
// leader replica, the only peer that can propose a configuration
// change into its group. A tablet with no recorded leader yet (e.g.
// mid-election) or a nil rpc client skips straight to the catalog
// bookkeeping, same as before this client existed.
func (b *Balancer) changeConfigOnLeader(tablet *types.Tablet, byUUID map[string]*types.TabletServer, req tserverclient.ChangeConfigRequest) error {
	if b.rpc == nil {
		return nil
	}
	leaderUUID := tabletLeaderUUID(tablet)
	if leaderUUID == "" {
		return nil
	}
	leader, ok := byUUID[leaderUUID]
	if !ok {
		return nil
	}
	var addr string
	if len(leader.Registration.RPCAddresses) > 0 {
		addr = leader.Registration.RPCAddresses[0]
	}
	return b.rpc.ChangeConfig(context.Background(), leaderUUID, addr, req)
}

// tabletLeaderUUID returns the tablet-server uuid currently reported
// as this tablet's Raft leader replica, or "" if none is known.
func tabletLeaderUUID(tablet *types.Tablet) string {
	for uuid, loc := range tablet.ReplicaLocations {
		if loc.Role == types.RoleLeader {
			return uuid
		}
	}
	return ""
}

// removeReplicasPhase corrects over-replication left over from a
// relocation in the add phase, and evicts blacklisted or wrongly placed
// voters once a correctly placed replacement exists.
func (b *Balancer) removeReplicasPhase(byUUID map[string]*types.TabletServer, blacklist map[string]bool, bud *budget) {
	b.eachLiveTablet(func(table *types.Table, tablet *types.Tablet) {
		if !bud.take() {
			return
		}
		ri := b.mgr.ResolveReplicationInfo(table)
		desired := ri.LivePlacement.NumReplicas
		current := catalog.ReplicaCount(tablet)
		if current <= desired {
			bud.giveBack()
			return
		}

		victim := pickRemovalVictim(tablet, byUUID, blacklist, ri.LivePlacement)
		if victim == "" {
			bud.giveBack()
			return
		}
		if err := b.changeConfigOnLeader(tablet, byUUID, tserverclient.ChangeConfigRequest{
			TabletID:   tablet.ID,
			ChangeType: "REMOVE_SERVER",
			PeerUUID:   victim,
		}); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("victim", victim).Msg("tablet server rejected remove replica")
			bud.giveBack()
			return
		}
		if err := b.mgr.RemoveReplica(tablet.ID, victim); err != nil {
			b.logger.Warn().Err(err).Str("tablet_id", tablet.ID).Str("victim", victim).Msg("failed to remove replica")
			bud.giveBack()
			return
		}
		metrics.BalancerActionsTotal.WithLabelValues("remove_replica").Inc()
		b.logger.Info().Str("tablet_id", tablet.ID).Str("victim", victim).Msg("removed replica")
	})
}

func matchesAnyBlock(ts *types.TabletServer, p types.PlacementInfo) bool {
	if len(p.Blocks) == 0 {
		return true
	}
	info := types.CloudInfo{Cloud: ts.Registration.Cloud, Region: ts.Registration.Region, Zone: ts.Registration.Zone}
	for _, block := range p.Blocks {
		if info.Matches(block) {
			return true
		}
	}
	return false
}

// pickLeastLoaded selects the live, non-blacklisted, block-matching
// server not already hosting a replica of this tablet with the fewest
// tablets assigned, the same round-robin-by-load rule the placement
// engine uses at table-creation time.
func pickLeastLoaded(live []*types.TabletServer, hosted map[string]bool, blacklist map[string]bool, p types.PlacementInfo) *types.TabletServer {
	var candidates []*types.TabletServer
	for _, ts := range live {
		if ts.PlacementUUID != p.PlacementUUID || hosted[ts.UUID] || blacklist[ts.UUID] {
			continue
		}
		if !matchesAnyBlock(ts, p) {
			continue
		}
		candidates = append(candidates, ts)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load.NumTablets != candidates[j].Load.NumTablets {
			return candidates[i].Load.NumTablets < candidates[j].Load.NumTablets
		}
		return candidates[i].UUID < candidates[j].UUID
	})
	return candidates[0]
}

// pickRemovalVictim prefers evicting a blacklisted or wrongly placed
// voter; failing that it removes a follower on the most loaded server,
// never the current leader.
func pickRemovalVictim(tablet *types.Tablet, byUUID map[string]*types.TabletServer, blacklist map[string]bool, p types.PlacementInfo) string {
	type candidate struct {
		uuid     string
		load     int
		priority int // higher goes first
	}
	var candidates []candidate
	for uuid, loc := range tablet.ReplicaLocations {
		if loc.MemberType != types.MemberVoter || loc.Role == types.RoleLeader {
			continue
		}
		load := 0
		priority := 0
		if blacklist[uuid] {
			priority = 2
		} else if ts, ok := byUUID[uuid]; ok {
			load = ts.Load.NumTablets
			if !matchesAnyBlock(ts, p) {
				priority = 1
			}
		}
		candidates = append(candidates, candidate{uuid: uuid, load: load, priority: priority})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		if candidates[i].load != candidates[j].load {
			return candidates[i].load > candidates[j].load
		}
		return candidates[i].uuid < candidates[j].uuid
	})
	return candidates[0].uuid
}

// giveBack returns a budget unit consumed by take() when, after
// inspection, no action was actually needed for this tablet.
func (b *budget) giveBack() { b.remaining++ }
