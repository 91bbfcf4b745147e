package balancer

import (
	"context"
	"sort"
	"time"

	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/tserverclient"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// leaderMovePhase first evicts tablet leadership off any leader-
// blacklisted server, then walks the live tablet servers from busiest
// to idlest (by leader count) moving one tablet's leadership at a time
// until the gap closes to within LeaderBalanceThreshold.
func (b *Balancer) leaderMovePhase(live []*types.TabletServer, leaderBlacklist map[string]bool, bud *budget) {
	now := time.Now()
	byUUID := indexByUUID(live)

	b.eachLiveTablet(func(table *types.Table, tablet *types.Tablet) {
		leaderUUID := findLeader(tablet)
		if leaderUUID == "" || !leaderBlacklist[leaderUUID] {
			return
		}
		target := pickLeaderTarget(tablet, leaderUUID, leaderBlacklist, byUUID)
		if target == "" {
			return
		}
		b.tryMoveLeader(tablet, byUUID, target, bud, now)
	})

	sorted := sortedByLeaderCount(live)
	counts := make(map[string]int, len(sorted))
	total := 0
	for _, ts := range sorted {
		counts[ts.UUID] = ts.Load.NumLeaders
		total += ts.Load.NumLeaders
	}
	threshold := effectiveLeaderBalanceThreshold(b.cfg.LeaderBalanceThreshold, total, len(sorted))

	lo, hi := 0, len(sorted)-1
	for lo < hi && bud.remaining > 0 {
		gap := counts[sorted[hi].UUID] - counts[sorted[lo].UUID]
		if gap <= threshold {
			break
		}
		if leaderBlacklist[sorted[lo].UUID] {
			lo++
			continue
		}
		if b.moveOneLeaderBetween(sorted[hi], sorted[lo], byUUID, bud, now) {
			counts[sorted[hi].UUID]--
			counts[sorted[lo].UUID]++
			continue
		}
		hi--
	}
}

func findLeader(tablet *types.Tablet) string {
	for uuid, loc := range tablet.ReplicaLocations {
		if loc.Role == types.RoleLeader {
			return uuid
		}
	}
	return ""
}

// pickLeaderTarget chooses a replacement leader among tablet's other
// voters, preferring the one carrying the fewest leaders cluster-wide.
func pickLeaderTarget(tablet *types.Tablet, currentLeader string, leaderBlacklist map[string]bool, byUUID map[string]*types.TabletServer) string {
	var best string
	bestLoad := -1
	for uuid, loc := range tablet.ReplicaLocations {
		if uuid == currentLeader || loc.MemberType != types.MemberVoter || leaderBlacklist[uuid] {
			continue
		}
		load := 0
		if ts, ok := byUUID[uuid]; ok {
			load = ts.Load.NumLeaders
		}
		if bestLoad == -1 || load < bestLoad || (load == bestLoad && uuid < best) {
			best, bestLoad = uuid, load
		}
	}
	return best
}

func sortedByLeaderCount(live []*types.TabletServer) []*types.TabletServer {
	out := make([]*types.TabletServer, len(live))
	copy(out, live)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Load.NumLeaders != out[j].Load.NumLeaders {
			return out[i].Load.NumLeaders < out[j].Load.NumLeaders
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

// moveOneLeaderBetween finds one tablet led by from that also has a
// voter replica on to, and moves its leadership there.
func (b *Balancer) moveOneLeaderBetween(from, to *types.TabletServer, byUUID map[string]*types.TabletServer, bud *budget, now time.Time) bool {
	moved := false
	b.eachLiveTablet(func(table *types.Table, tablet *types.Tablet) {
		if moved {
			return
		}
		loc, ok := tablet.ReplicaLocations[from.UUID]
		if !ok || loc.Role != types.RoleLeader {
			return
		}
		targetLoc, ok := tablet.ReplicaLocations[to.UUID]
		if !ok || targetLoc.MemberType != types.MemberVoter {
			return
		}
		moved = b.tryMoveLeader(tablet, byUUID, to.UUID, bud, now)
	})
	return moved
}

// tryMoveLeader asks the tablet's current leader to step down in
// favor of target, then records the move in the catalog. Honors both
// the phase's budget and the per-(tablet, target) backoff left by a
// prior failed attempt.
func (b *Balancer) tryMoveLeader(tablet *types.Tablet, byUUID map[string]*types.TabletServer, target string, bud *budget, now time.Time) bool {
	tabletID := tablet.ID
	key := backoffKey{tabletID: tabletID, target: target}
	if until, ok := b.leaderMoveBackoff[key]; ok && now.Before(until) {
		return false
	}
	if !bud.take() {
		return false
	}
	if err := b.stepDownCurrentLeader(tablet, byUUID, target); err != nil {
		b.leaderMoveBackoff[key] = now.Add(b.cfg.StepDownBackoff)
		b.logger.Warn().Err(err).Str("tablet_id", tabletID).Str("target", target).Msg("tablet server rejected leader step down")
		bud.giveBack()
		return false
	}
	if err := b.mgr.MoveLeader(tabletID, target); err != nil {
		b.leaderMoveBackoff[key] = now.Add(b.cfg.StepDownBackoff)
		b.logger.Warn().Err(err).Str("tablet_id", tabletID).Str("target", target).Msg("failed to move leader")
		bud.giveBack()
		return false
	}
	delete(b.leaderMoveBackoff, key)
	metrics.BalancerActionsTotal.WithLabelValues("move_leader").Inc()
	b.logger.Info().Str("tablet_id", tabletID).Str("target", target).Msg("moved leader")
	return true
}

// stepDownCurrentLeader asks tablet's current leader replica to step
// down in favor of target. A nil rpc client or an unknown leader
// skips straight to the catalog bookkeeping.
func (b *Balancer) stepDownCurrentLeader(tablet *types.Tablet, byUUID map[string]*types.TabletServer, target string) error {
	if b.rpc == nil {
		return nil
	}
	leaderUUID := findLeader(tablet)
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
	return b.rpc.LeaderStepDown(context.Background(), leaderUUID, addr, tserverclient.LeaderStepDownRequest{
		TabletID:      tablet.ID,
		NewLeaderUUID: target,
	})
}
