package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanguarddb/vanguard/pkg/types"
)

type fakeClient struct {
	tables  map[string]*types.Table
	streams map[string]*types.CDCStream
}

func (f *fakeClient) ListTables(ctx context.Context) ([]*types.Table, error) {
	var out []*types.Table
	for _, t := range f.tables {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeClient) GetTable(ctx context.Context, id string) (*types.Table, error) {
	t, ok := f.tables[id]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}

func (f *fakeClient) CreateCDCStream(ctx context.Context, tableID string, options map[string]string) (*types.CDCStream, error) {
	s := &types.CDCStream{ID: "stream-" + tableID, TableID: tableID, State: types.CDCStreamActive}
	f.streams[tableID] = s
	return s, nil
}

func (f *fakeClient) Close() error { return nil }

func TestBuildSetupRequestFetchesSchemaTabletsAndOpensStream(t *testing.T) {
	c := &fakeClient{
		tables: map[string]*types.Table{
			"prod-table-1": {
				ID:        "prod-table-1",
				Schema:    &types.Schema{Columns: []types.Column{{Name: "id", DataType: "int64", IsKey: true}}},
				TabletIDs: []string{"tablet-a", "tablet-b"},
			},
		},
		streams: make(map[string]*types.CDCStream),
	}

	req, err := BuildSetupRequest(context.Background(), c, "producer-1", []string{"producer-master:9100"}, map[string]string{
		"prod-table-1": "consumer-table-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "producer-1", req.ProducerID)
	assert.Equal(t, []string{"producer-master:9100"}, req.ProducerMasterAddresses)
	assert.Same(t, c.tables["prod-table-1"].Schema, req.ProducerTables["prod-table-1"])
	assert.Equal(t, []string{"tablet-a", "tablet-b"}, req.ProducerTabletIDs["prod-table-1"])
	assert.Equal(t, "stream-prod-table-1", req.ProducerStreamIDs["prod-table-1"])
	assert.Equal(t, "consumer-table-1", req.ConsumerTableIDs["prod-table-1"])
}

func TestBuildSetupRequestFailsOnUnknownTable(t *testing.T) {
	c := &fakeClient{tables: map[string]*types.Table{}, streams: make(map[string]*types.CDCStream)}

	_, err := BuildSetupRequest(context.Background(), c, "producer-1", nil, map[string]string{
		"missing-table": "consumer-table-1",
	})
	assert.Error(t, err)
}
