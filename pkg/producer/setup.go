package producer

import (
	"context"
	"fmt"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// BuildSetupRequest discovers everything SetupUniverseReplication
// needs straight from the producer cluster: each producer table's
// schema and tablet ids, and a freshly opened CDC stream per table,
// replacing the uuid.New()-synthesized stream id a caller would
// otherwise have to make up. consumerTableIDs maps a producer table
// id to the already-created consumer table it should replicate into.
func BuildSetupRequest(ctx context.Context, c Client, producerID string, producerMasterAddresses []string, consumerTableIDs map[string]string) (catalog.SetupUniverseReplicationRequest, error) {
	req := catalog.SetupUniverseReplicationRequest{
		ProducerID:              producerID,
		ProducerMasterAddresses: producerMasterAddresses,
		ProducerTables:          make(map[string]*types.Schema),
		ProducerTabletIDs:       make(map[string][]string),
		ProducerStreamIDs:       make(map[string]string),
		ConsumerTableIDs:        consumerTableIDs,
	}

	for producerTableID := range consumerTableIDs {
		table, err := c.GetTable(ctx, producerTableID)
		if err != nil {
			return catalog.SetupUniverseReplicationRequest{}, fmt.Errorf("producer: failed to fetch table %q: %w", producerTableID, err)
		}
		req.ProducerTables[producerTableID] = table.Schema
		req.ProducerTabletIDs[producerTableID] = append([]string(nil), table.TabletIDs...)

		stream, err := c.CreateCDCStream(ctx, producerTableID, nil)
		if err != nil {
			return catalog.SetupUniverseReplicationRequest{}, fmt.Errorf("producer: failed to open CDC stream for table %q: %w", producerTableID, err)
		}
		req.ProducerStreamIDs[producerTableID] = stream.ID
	}

	return req, nil
}
