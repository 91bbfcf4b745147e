// Package placement implements the Placement Policy Engine: validating a
// ReplicationInfo against the live tablet servers currently known to the
// cluster, and assigning concrete tablet servers to new tablet replicas
// under that policy.
package placement

import (
	"fmt"
	"sort"

	"github.com/vanguarddb/vanguard/pkg/types"
)

// Validate checks that ri can plausibly be satisfied by the given live
// tablet servers: every placement block must have at least
// MinNumReplicas live servers matching its cloud/region/zone, and each
// placement's NumReplicas must be at least the sum of its blocks'
// minimums.
func Validate(ri *types.ReplicationInfo, live []*types.TabletServer) error {
	if ri == nil {
		return fmt.Errorf("placement: replication info is nil")
	}
	if err := validatePlacement(ri.LivePlacement, live); err != nil {
		return fmt.Errorf("placement: live placement: %w", err)
	}
	for i, rr := range ri.ReadReplicas {
		if err := validatePlacement(rr, live); err != nil {
			return fmt.Errorf("placement: read replica %d: %w", i, err)
		}
	}
	return nil
}

func validatePlacement(p types.PlacementInfo, live []*types.TabletServer) error {
	if p.NumReplicas <= 0 {
		return fmt.Errorf("num_replicas must be positive, got %d", p.NumReplicas)
	}
	minSum := 0
	for _, block := range p.Blocks {
		count := countMatching(live, block, p.PlacementUUID)
		if count < block.MinNumReplicas {
			return fmt.Errorf("block %s/%s/%s requires %d live servers, found %d",
				block.Cloud, block.Region, block.Zone, block.MinNumReplicas, count)
		}
		minSum += block.MinNumReplicas
	}
	if p.NumReplicas < minSum {
		return fmt.Errorf("num_replicas %d is less than the sum of block minimums %d", p.NumReplicas, minSum)
	}
	return nil
}

func countMatching(live []*types.TabletServer, block types.PlacementBlock, placementUUID string) int {
	n := 0
	for _, ts := range live {
		if ts.PlacementUUID != placementUUID {
			continue
		}
		info := types.CloudInfo{Cloud: ts.Registration.Cloud, Region: ts.Registration.Region, Zone: ts.Registration.Zone}
		if info.Matches(block) {
			n++
		}
	}
	return n
}

// Assignment is one tablet server chosen to host a replica, tagged with
// the member type it should hold in the tablet's Raft peer group.
type Assignment struct {
	TabletServer *types.TabletServer
	MemberType   types.MemberType
}

// AssignReplicas picks NumReplicas tablet servers for the live placement
// plus NumReplicas for each read-replica placement, load-balancing by
// current tablet count the way a round-robin scheduler would. It is
// called once per tablet at table-creation time; steady-state
// rebalancing is the Load Balancer's job, not this package's.
func AssignReplicas(ri *types.ReplicationInfo, live []*types.TabletServer) ([]Assignment, error) {
	if err := Validate(ri, live); err != nil {
		return nil, err
	}

	var out []Assignment
	liveAssignments, err := assignPlacement(ri.LivePlacement, live, types.MemberVoter)
	if err != nil {
		return nil, err
	}
	out = append(out, liveAssignments...)

	for _, rr := range ri.ReadReplicas {
		rrAssignments, err := assignPlacement(rr, live, types.MemberObserver)
		if err != nil {
			return nil, err
		}
		out = append(out, rrAssignments...)
	}
	return out, nil
}

func assignPlacement(p types.PlacementInfo, live []*types.TabletServer, memberType types.MemberType) ([]Assignment, error) {
	candidates := make([]*types.TabletServer, 0)
	for _, ts := range live {
		if ts.PlacementUUID != p.PlacementUUID {
			continue
		}
		if len(p.Blocks) == 0 {
			candidates = append(candidates, ts)
			continue
		}
		info := types.CloudInfo{Cloud: ts.Registration.Cloud, Region: ts.Registration.Region, Zone: ts.Registration.Zone}
		for _, block := range p.Blocks {
			if info.Matches(block) {
				candidates = append(candidates, ts)
				break
			}
		}
	}
	if len(candidates) < p.NumReplicas {
		return nil, fmt.Errorf("not enough live tablet servers for placement %q: need %d, have %d",
			p.PlacementUUID, p.NumReplicas, len(candidates))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load.NumTablets != candidates[j].Load.NumTablets {
			return candidates[i].Load.NumTablets < candidates[j].Load.NumTablets
		}
		return candidates[i].UUID < candidates[j].UUID
	})

	out := make([]Assignment, 0, p.NumReplicas)
	for i := 0; i < p.NumReplicas; i++ {
		out = append(out, Assignment{TabletServer: candidates[i], MemberType: memberType})
	}
	return out, nil
}
