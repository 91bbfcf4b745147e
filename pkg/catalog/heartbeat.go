package catalog

import (
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// HeartbeatResponse carries back whatever the tablet server needs to act
// on: whether this master is still the leader, and the active universe
// key id if cluster-wide encryption is enabled.
type HeartbeatResponse struct {
	LeaderAddr      string
	EncryptionInfo  types.EncryptionInfo
	ServerBlacklisted bool
	LeaderBlacklisted bool
}

// TSHeartbeat records a tablet server's heartbeat and returns the
// information it needs to react: current leader, encryption state, and
// whether it has been blacklisted.
func (m *Manager) TSHeartbeat(req HeartbeatRequest) (HeartbeatResponse, error) {
	if !m.IsLeader() {
		metrics.HeartbeatsTotal.WithLabelValues("not_leader").Inc()
		return HeartbeatResponse{LeaderAddr: m.LeaderAddr()}, ErrNotLeader
	}

	m.tservers.Heartbeat(req)
	metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()

	cfg := m.ClusterConfig()
	resp := HeartbeatResponse{
		LeaderAddr:     m.cfg.BindAddr,
		EncryptionInfo: cfg.EncryptionInfo,
	}
	for _, uuid := range cfg.ServerBlacklist {
		if uuid == req.UUID {
			resp.ServerBlacklisted = true
		}
	}
	for _, uuid := range cfg.LeaderBlacklist {
		if uuid == req.UUID {
			resp.LeaderBlacklisted = true
		}
	}
	return resp, nil
}
