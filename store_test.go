package penne

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

func makeMethod(id nooid.ID, name string) *Method {
	m := &Method{}
	m.base().init(nil, id, Payload{"name": name})
	return m
}

func TestStoreGet(t *testing.T) {
	s := newStore(NewDocument())
	m := makeMethod(nooid.MethodID(0, 0), "boop")
	require.NoError(t, s.put(m))

	d, err := s.Get(nooid.MethodID(0, 0))
	require.NoError(t, err)
	assert.Same(t, Delegate(m), d)

	// the kind is part of the identity
	_, err = s.Get(nooid.SignalID(0, 0))
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)

	// any document-kind id resolves to the singleton
	d, err = s.Get(nooid.ID{Kind: nooid.KindDocument})
	require.NoError(t, err)
	assert.Same(t, s.Document(), d)
}

func TestStoreGetByName(t *testing.T) {
	s := newStore(NewDocument())
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 0), "boop")))

	d, err := s.GetByName(nooid.KindMethod, "boop")
	require.NoError(t, err)
	assert.Equal(t, "boop", d.Name())

	_, err = s.GetByName(nooid.KindMethod, "beep")
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
	_, err = s.GetByName(nooid.KindSignal, "boop")
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestStoreGetByContext(t *testing.T) {
	s := newStore(NewDocument())
	e := &Entity{}
	e.base().init(nil, nooid.EntityID(1, 0), Payload{"name": "e"})
	require.NoError(t, s.put(e))

	d, err := s.GetByContext(nil)
	require.NoError(t, err)
	assert.Same(t, s.Document(), d)

	d, err = s.GetByContext(nooid.EntityContext(nooid.EntityID(1, 0)))
	require.NoError(t, err)
	assert.Equal(t, "e", d.Name())

	_, err = s.GetByContext(&nooid.Context{})
	assert.ErrorIs(t, err, penne_errors.ErrInvalidContext)
}

func TestStoreGenerationTracking(t *testing.T) {
	s := newStore(NewDocument())
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 0), "v0")))

	// recycling a live slot is a protocol violation
	err := s.put(makeMethod(nooid.MethodID(0, 1), "v1"))
	assert.ErrorIs(t, err, penne_errors.ErrGenerationMismatch)

	s.remove(nooid.MethodID(0, 0))
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 1), "v1")))

	// the stale id stays classifiable after the slot moved on
	_, err = s.Get(nooid.MethodID(0, 0))
	assert.ErrorIs(t, err, penne_errors.ErrGenerationMismatch)

	d, err := s.Get(nooid.MethodID(0, 1))
	require.NoError(t, err)
	assert.Equal(t, "v1", d.Name())
}

func TestStoreRemovedSlotReportsNotFound(t *testing.T) {
	s := newStore(NewDocument())
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 0), "v0")))
	s.remove(nooid.MethodID(0, 0))

	// same generation, just gone: not a mismatch
	_, err := s.Get(nooid.MethodID(0, 0))
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestStoreReset(t *testing.T) {
	s := newStore(NewDocument())
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 0), "boop")))
	require.NoError(t, s.put(makeMethod(nooid.MethodID(1, 0), "beep")))
	require.Equal(t, 2, s.Len())

	s.reset()
	assert.Equal(t, 0, s.Len())

	// generation history is gone too: a fresh session starts clean
	require.NoError(t, s.put(makeMethod(nooid.MethodID(0, 0), "boop")))
}
