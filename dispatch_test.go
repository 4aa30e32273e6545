package penne

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

func wireID(slot, gen int64) []any { return []any{slot, gen} }

func TestCreateUpdateDeleteLifecycle(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.handle(4, Payload{
		"id": wireID(0, 0), "name": "root", "tags": []any{"a"},
	}))
	d, err := c.state.Get(nooid.EntityID(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "root", d.Name())

	// updates are partial: untouched keys survive the merge
	require.NoError(t, c.handle(5, Payload{
		"id": wireID(0, 0), "tags": []any{"a", "b"},
	}))
	d, err = c.state.Get(nooid.EntityID(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "root", d.Name())
	tags, _ := d.base().Attr("tags")
	assert.Equal(t, []any{"a", "b"}, tags)

	require.NoError(t, c.handle(6, Payload{"id": wireID(0, 0)}))
	_, err = c.state.Get(nooid.EntityID(0, 0))
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestServerMessageTable(t *testing.T) {
	require.Len(t, serverMessages, 36)

	assert.Equal(t, handleInfo{nooid.KindMethod, actCreate}, serverMessages[0])
	assert.Equal(t, handleInfo{nooid.KindTable, actUpdate}, serverMessages[29])
	assert.Equal(t, handleInfo{nooid.KindDocument, actReset}, serverMessages[32])
	assert.Equal(t, handleInfo{nooid.KindSignal, actInvoke}, serverMessages[33])
	assert.Equal(t, handleInfo{nooid.KindMethod, actReply}, serverMessages[34])
	assert.Equal(t, handleInfo{nooid.KindDocument, actInitialized}, serverMessages[35])

	for tag, info := range serverMessages {
		assert.NotEqual(t, nooid.KindNone, info.kind, "tag %d", tag)
	}
}

func TestCreateRequiresID(t *testing.T) {
	c, _ := newTestClient(t)
	assert.ErrorIs(t, c.handle(4, Payload{"name": "nobody"}), penne_errors.ErrValidation)
}

func TestUnknownTagIsRejected(t *testing.T) {
	c, _ := newTestClient(t)
	assert.ErrorIs(t, c.handle(99, nil), penne_errors.ErrBadMessage)
}

func TestUpdateOfMissingComponent(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.handle(5, Payload{"id": wireID(3, 0), "name": "ghost"})
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestRejectedUpdateLeavesStateUntouched(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.handle(7, Payload{
		"id": wireID(0, 0), "name": "scatter", "simple_plot": "x",
	}))

	// the update would give the plot two representations at once
	err := c.handle(8, Payload{
		"id": wireID(0, 0), "name": "renamed", "url_plot": "y",
	})
	assert.ErrorIs(t, err, penne_errors.ErrValidation)

	d, err := c.state.Get(nooid.PlotID(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "scatter", d.Name())
	_, ok := d.base().Attr("url_plot")
	assert.False(t, ok, "rejected update leaked into attrs")

	// a valid update still lands
	require.NoError(t, c.handle(8, Payload{
		"id": wireID(0, 0), "name": "renamed",
	}))
	assert.Equal(t, "renamed", d.Name())
}

func TestCreateValidation(t *testing.T) {
	c, _ := newTestClient(t)

	// a plot needs exactly one representation
	err := c.handle(7, Payload{"id": wireID(0, 0)})
	assert.ErrorIs(t, err, penne_errors.ErrValidation)
	err = c.handle(7, Payload{
		"id": wireID(0, 0), "simple_plot": "x", "url_plot": "y",
	})
	assert.ErrorIs(t, err, penne_errors.ErrValidation)
	require.NoError(t, c.handle(7, Payload{"id": wireID(0, 0), "simple_plot": "x"}))

	// lights are point, spot or directional, never two at once
	err = c.handle(23, Payload{
		"id": wireID(0, 0), "point": Payload{}, "spot": Payload{},
	})
	assert.ErrorIs(t, err, penne_errors.ErrValidation)

	// a failed create leaves no trace in the store
	_, err = c.state.Get(nooid.LightID(0, 0))
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

type countingEntity struct {
	Entity
	removed *int
}

func (e *countingEntity) OnRemove(p Payload) error {
	*e.removed++
	return e.Entity.OnRemove(p)
}

func TestDeleteRunsOnRemoveOnce(t *testing.T) {
	removed := 0
	c, _ := newTestClientWith(t, func(o *Options) {
		o.Delegates = map[nooid.Kind]DelegateFactory{
			nooid.KindEntity: func() Delegate {
				return &countingEntity{removed: &removed}
			},
		}
	})

	require.NoError(t, c.handle(4, Payload{"id": wireID(1, 0), "name": "e"}))
	require.NoError(t, c.handle(6, Payload{"id": wireID(1, 0)}))
	assert.Equal(t, 1, removed)
}

func TestStaleGenerationEvictedWhenLenient(t *testing.T) {
	removed := 0
	c, _ := newTestClientWith(t, func(o *Options) {
		o.Delegates = map[nooid.Kind]DelegateFactory{
			nooid.KindEntity: func() Delegate {
				return &countingEntity{removed: &removed}
			},
		}
	})

	require.NoError(t, c.handle(4, Payload{"id": wireID(2, 0), "name": "old"}))
	// the server never deleted generation 0; lenient mode evicts it
	require.NoError(t, c.handle(4, Payload{"id": wireID(2, 1), "name": "new"}))
	assert.Equal(t, 1, removed)

	d, err := c.state.Get(nooid.EntityID(2, 1))
	require.NoError(t, err)
	assert.Equal(t, "new", d.Name())

	_, err = c.state.Get(nooid.EntityID(2, 0))
	assert.ErrorIs(t, err, penne_errors.ErrGenerationMismatch)
}

func TestStaleGenerationFatalWhenStrict(t *testing.T) {
	c, _ := newTestClientWith(t, func(o *Options) { o.Strict = true })

	require.NoError(t, c.handle(4, Payload{"id": wireID(2, 0), "name": "old"}))
	err := c.handle(4, Payload{"id": wireID(2, 1), "name": "new"})
	assert.ErrorIs(t, err, penne_errors.ErrGenerationMismatch)

	// the original occupant is untouched
	d, err := c.state.Get(nooid.EntityID(2, 0))
	require.NoError(t, err)
	assert.Equal(t, "old", d.Name())
}

func TestReplyDeliversResult(t *testing.T) {
	c, _ := newTestClient(t)

	var got any
	_, err := c.InvokeByID(nooid.MethodID(0, 0), nil, nil, func(result any, err error) {
		require.NoError(t, err)
		got = result
	})
	require.NoError(t, err)

	require.NoError(t, c.handle(34, Payload{"invoke_id": "0", "result": "fine"}))
	feedCallbacks(t, c)
	assert.Equal(t, "fine", got)
	assert.Equal(t, 0, c.pending.Size())
}

func TestReplyExceptionReachesCallerAndDispatch(t *testing.T) {
	c, _ := newTestClient(t)

	var got error
	_, err := c.InvokeByID(nooid.MethodID(0, 0), nil, nil, func(_ any, err error) {
		got = err
	})
	require.NoError(t, err)

	err = c.handle(34, Payload{
		"invoke_id": "0",
		"method_exception": map[string]any{
			"code": int64(-32600), "message": "invalid request",
		},
	})
	var merr *penne_errors.MethodError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, int64(-32600), merr.Code)
	assert.Equal(t, "invalid request", merr.Message)

	feedCallbacks(t, c)
	require.True(t, errors.As(got, &merr))
	assert.Equal(t, "0", merr.InvokeID)
	assert.Equal(t, 0, c.pending.Size())
}

func TestReplyForUnknownInvocation(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.handle(34, Payload{"invoke_id": "7", "result": "stray"})
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestDocumentUpdateAndReset(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.handle(0, Payload{
		"id": wireID(0, 0), "name": "noo::set_view",
	}))
	require.NoError(t, c.handle(31, Payload{
		"methods_list": []any{wireID(0, 0)},
	}))

	doc := c.Document().(*Document)
	require.Len(t, doc.MethodsList, 1)
	assert.Equal(t, nooid.MethodID(0, 0), doc.MethodsList[0])
	assert.Contains(t, doc.base().InjectedMethods(), "set_view")

	require.NoError(t, c.handle(32, nil))
	assert.Nil(t, doc.MethodsList)
	assert.Empty(t, doc.base().InjectedMethods())
	assert.Equal(t, 0, c.state.Len())

	// a second reset in a row is a no-op
	require.NoError(t, c.handle(32, nil))
	assert.Equal(t, 0, c.state.Len())
}

func TestInitializedMarker(t *testing.T) {
	connected := false
	c, _ := newTestClientWith(t, func(o *Options) {
		o.OnConnected = func() { connected = true }
	})
	c.cstate.Store(StateConnecting)

	require.NoError(t, c.handle(35, nil))
	assert.Equal(t, StateActive, c.ConnState())
	select {
	case <-c.ready:
	default:
		t.Fatal("ready channel not closed")
	}

	feedCallbacks(t, c)
	assert.True(t, connected)

	// duplicated markers must not re-close the channel
	require.NoError(t, c.handle(35, nil))
}

func TestSignalInvokeOnDocument(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.handle(2, Payload{
		"id": wireID(0, 0), "name": "time_changed",
	}))

	var got []any
	c.Document().(*Document).SetSignalHandler("time_changed", func(args []any) {
		got = args
	})

	require.NoError(t, c.handle(33, Payload{
		"id": wireID(0, 0), "signal_data": []any{"x", int64(1)},
	}))
	// handlers run inline on the network loop, nothing to feed
	assert.Equal(t, []any{"x", int64(1)}, got)
}

func TestSignalInvokeUnboundHandler(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.handle(2, Payload{
		"id": wireID(0, 0), "name": "orphan",
	}))
	require.NoError(t, c.handle(4, Payload{
		"id": wireID(0, 0), "name": "e", "signals_list": []any{wireID(0, 0)},
	}))

	err := c.handle(33, Payload{
		"id":      wireID(0, 0),
		"context": map[string]any{"entity": wireID(0, 0)},
	})
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}

func TestSignalInvokeBadContext(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.handle(2, Payload{
		"id": wireID(0, 0), "name": "sig",
	}))

	err := c.handle(33, Payload{
		"id":      wireID(0, 0),
		"context": map[string]any{"bogus": wireID(0, 0)},
	})
	assert.ErrorIs(t, err, penne_errors.ErrInvalidContext)
}

func TestInjectionTracksDeclaredLists(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.handle(0, Payload{
		"id": wireID(0, 0), "name": "noo::activate",
	}))
	require.NoError(t, c.handle(0, Payload{
		"id": wireID(1, 0), "name": "noo::deactivate",
	}))

	require.NoError(t, c.handle(4, Payload{
		"id": wireID(0, 0), "name": "e", "methods_list": []any{wireID(0, 0)},
	}))
	d, err := c.state.Get(nooid.EntityID(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"activate"}, d.base().InjectedMethods())

	// the update replaces the declared set wholesale
	require.NoError(t, c.handle(5, Payload{
		"id": wireID(0, 0), "methods_list": []any{wireID(1, 0)},
	}))
	assert.Equal(t, []string{"deactivate"}, d.base().InjectedMethods())
}

func TestInjectionFailsOnDanglingReference(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.handle(4, Payload{
		"id": wireID(0, 0), "name": "e", "methods_list": []any{wireID(9, 0)},
	})
	assert.ErrorIs(t, err, penne_errors.ErrNotFound)
}
