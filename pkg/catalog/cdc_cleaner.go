package catalog

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	vglog "github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// CDCCleaner periodically finalizes CDC streams left in state DELETING
// and recomputes per-namespace xCluster safe time. Stream finalization
// drops per-tablet checkpoint rows and removes the stream entity
// itself; both are retried at the next tick on failure.
type CDCCleaner struct {
	mgr      *Manager
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

func NewCDCCleaner(mgr *Manager, interval time.Duration) *CDCCleaner {
	if interval == 0 {
		interval = time.Minute
	}
	return &CDCCleaner{
		mgr:      mgr,
		interval: interval,
		logger:   vglog.WithComponent("cdc_cleaner"),
		stopCh:   make(chan struct{}),
	}
}

func (c *CDCCleaner) Start() { go c.run() }
func (c *CDCCleaner) Stop()  { close(c.stopCh) }

func (c *CDCCleaner) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Msg("cdc cleaner started")
	for {
		select {
		case <-ticker.C:
			c.runOnce()
		case <-c.stopCh:
			c.logger.Info().Msg("cdc cleaner stopped")
			return
		}
	}
}

func (c *CDCCleaner) runOnce() {
	if !c.mgr.IsLeader() {
		return
	}
	defer metrics.CDCCleanupCyclesTotal.Inc()

	for _, s := range c.mgr.registry.listCDCStreamsByState(types.CDCStreamDeleting) {
		if err := c.mgr.finalizeCDCStreamDeletion(s); err != nil {
			c.logger.Error().Err(err).Str("stream_id", s.ID).Msg("failed to finalize cdc stream deletion, will retry next cycle")
		}
	}

	if err := c.mgr.RecomputeNamespaceSafeTimes(); err != nil {
		c.logger.Error().Err(err).Msg("failed to recompute xcluster namespace safe times, will retry next cycle")
	}
}

// finalizeCDCStreamDeletion removes every checkpoint row belonging to
// stream, then removes the stream entity itself.
func (m *Manager) finalizeCDCStreamDeletion(stream *types.CDCStream) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}

	var keys []string
	err := m.store.Visit(storage.KindCDCState, func(item storage.Item) error {
		var row types.CDCStateRow
		if err := json.Unmarshal(item.Data, &row); err != nil {
			return err
		}
		if row.StreamID == stream.ID {
			keys = append(keys, item.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.Apply(Command{Op: opDelete, Kind: storage.KindCDCState, ID: key}); err != nil {
			return err
		}
	}

	txn, err := beginTxn[types.CDCStream](m, storage.KindCDCStream, stream.ID, *stream)
	if err != nil {
		return err
	}
	if err := txn.CommitDelete(); err != nil {
		return err
	}
	metrics.CDCStreamsTotal.WithLabelValues(string(types.CDCStreamDeleted)).Inc()
	return nil
}
