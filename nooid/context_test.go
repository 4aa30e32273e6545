package nooid

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextTarget(t *testing.T) {
	id := TableID(1, 0)
	got, err := TableContext(id).Target()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = (&Context{}).Target()
	assert.ErrorIs(t, err, ErrInvalidContext)

	eid := EntityID(2, 0)
	_, err = (&Context{Entity: &eid, Table: &id}).Target()
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestContextFromWire(t *testing.T) {
	ctx, err := ContextFromWire(nil)
	require.NoError(t, err)
	assert.Nil(t, ctx)

	ctx, err = ContextFromWire(map[string]any{"table": []any{uint64(1), uint64(0)}})
	require.NoError(t, err)
	require.NotNil(t, ctx.Table)
	assert.Equal(t, TableID(1, 0), *ctx.Table)

	_, err = ContextFromWire(map[string]any{"bogus": []any{uint64(1), uint64(0)}})
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = ContextFromWire(map[string]any{
		"entity": []any{uint64(1), uint64(0)},
		"plot":   []any{uint64(1), uint64(0)},
	})
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = ContextFromWire("not a map")
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestContextMarshalCBOR(t *testing.T) {
	data, err := cbor.Marshal(PlotContext(PlotID(5, 1)))
	require.NoError(t, err)

	var decoded map[string][]uint32
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Equal(t, map[string][]uint32{"plot": {5, 1}}, decoded)

	_, err = cbor.Marshal(&Context{})
	assert.Error(t, err)
}
