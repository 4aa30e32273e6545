package penne

import (
	"fmt"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

type action uint8

const (
	actCreate action = iota
	actUpdate
	actDelete
	actReply
	actInvoke
	actReset
	actInitialized
)

var actionNames = [...]string{
	"create", "update", "delete", "reply", "invoke", "reset", "initialized",
}

func (a action) String() string { return actionNames[a] }

type handleInfo struct {
	kind nooid.Kind
	act  action
}

// serverMessages maps the inbound message tag to the component kind and
// action it carries. The order is fixed by the protocol.
var serverMessages = [...]handleInfo{
	0:  {nooid.KindMethod, actCreate},
	1:  {nooid.KindMethod, actDelete},
	2:  {nooid.KindSignal, actCreate},
	3:  {nooid.KindSignal, actDelete},
	4:  {nooid.KindEntity, actCreate},
	5:  {nooid.KindEntity, actUpdate},
	6:  {nooid.KindEntity, actDelete},
	7:  {nooid.KindPlot, actCreate},
	8:  {nooid.KindPlot, actUpdate},
	9:  {nooid.KindPlot, actDelete},
	10: {nooid.KindBuffer, actCreate},
	11: {nooid.KindBuffer, actDelete},
	12: {nooid.KindBufferView, actCreate},
	13: {nooid.KindBufferView, actDelete},
	14: {nooid.KindMaterial, actCreate},
	15: {nooid.KindMaterial, actUpdate},
	16: {nooid.KindMaterial, actDelete},
	17: {nooid.KindImage, actCreate},
	18: {nooid.KindImage, actDelete},
	19: {nooid.KindTexture, actCreate},
	20: {nooid.KindTexture, actDelete},
	21: {nooid.KindSampler, actCreate},
	22: {nooid.KindSampler, actDelete},
	23: {nooid.KindLight, actCreate},
	24: {nooid.KindLight, actUpdate},
	25: {nooid.KindLight, actDelete},
	26: {nooid.KindGeometry, actCreate},
	27: {nooid.KindGeometry, actDelete},
	28: {nooid.KindTable, actCreate},
	29: {nooid.KindTable, actUpdate},
	30: {nooid.KindTable, actDelete},
	31: {nooid.KindDocument, actUpdate},
	32: {nooid.KindDocument, actReset},
	33: {nooid.KindSignal, actInvoke},
	34: {nooid.KindMethod, actReply},
	35: {nooid.KindDocument, actInitialized},
}

// handle applies one decoded (tag, payload) pair to local state. Errors
// are recoverable: the run loop drops the message under lenient mode and
// tears the connection down under strict mode.
func (c *Client) handle(tag uint32, p Payload) error {
	if int(tag) >= len(serverMessages) {
		return fmt.Errorf("%w: unknown tag %d", penne_errors.ErrBadMessage, tag)
	}
	info := serverMessages[tag]
	c.metrics.messages.WithLabelValues(info.kind.String(), info.act.String()).Inc()
	c.log.Debug("received message", "kind", info.kind, "action", info.act)

	switch info.act {
	case actCreate:
		return c.handleCreate(info.kind, p)
	case actUpdate:
		return c.handleUpdate(info.kind, p)
	case actDelete:
		return c.handleDelete(info.kind, p)
	case actReply:
		return c.handleReply(p)
	case actInvoke:
		return c.handleSignalInvoke(p)
	case actReset:
		c.state.reset()
		c.log.Debug("document reset")
		return nil
	case actInitialized:
		return c.handleInitialized()
	}
	return nil
}

func payloadID(kind nooid.Kind, p Payload) (nooid.ID, error) {
	raw, ok := p["id"]
	if !ok {
		return nooid.BadID, fmt.Errorf("%w: missing id", penne_errors.ErrValidation)
	}
	id, ok := nooid.FromWire(kind, raw)
	if !ok {
		return nooid.BadID, fmt.Errorf("%w: bad id %v", penne_errors.ErrValidation, raw)
	}
	return id, nil
}

func (c *Client) handleCreate(kind nooid.Kind, p Payload) error {
	id, err := payloadID(kind, p)
	if err != nil {
		return err
	}

	d := c.delegates[kind]()
	d.base().init(c, id, p)
	if err := d.validate(); err != nil {
		c.log.Warn("could not create delegate", "kind", kind, "id", id, "err", err)
		return err
	}

	if err := c.state.put(d); err != nil {
		// The server must delete the old generation before recycling a
		// slot. Under strict mode a violation is fatal; otherwise evict
		// the stale occupant, hooks included, and carry on.
		if c.opts.Strict {
			return err
		}
		c.log.Warn("evicting stale generation", "id", id, "err", err)
		c.state.components.Range(func(oid nooid.ID, od Delegate) bool {
			if oid.SameSlot(id) {
				_ = od.OnRemove(nil)
				c.state.remove(oid)
			}
			return true
		})
		if err := c.state.put(d); err != nil {
			return err
		}
	}
	return d.OnNew(p)
}

func (c *Client) handleUpdate(kind nooid.Kind, p Payload) error {
	if kind == nooid.KindDocument {
		doc := c.state.Document()
		doc.base().merge(p)
		return doc.OnUpdate(p)
	}

	id, err := payloadID(kind, p)
	if err != nil {
		return err
	}
	d, err := c.state.Get(id)
	if err != nil {
		return err
	}
	// merge tentatively: a rejected update must leave the stored
	// delegate exactly as it was
	attrs, name := d.base().snapshot()
	d.base().merge(p)
	if err := d.validate(); err != nil {
		d.base().restore(attrs, name)
		return err
	}
	return d.OnUpdate(p)
}

func (c *Client) handleDelete(kind nooid.Kind, p Payload) error {
	id, err := payloadID(kind, p)
	if err != nil {
		return err
	}
	d, err := c.state.Get(id)
	if err != nil {
		return err
	}
	if err := d.OnRemove(p); err != nil {
		c.log.Warn("on_remove hook failed", "id", id, "err", err)
	}
	c.state.remove(id)
	return nil
}

func (c *Client) handleReply(p Payload) error {
	invokeID, err := requireString(p, "invoke_id")
	if err != nil {
		return err
	}
	pc, ok := c.pending.LoadAndDelete(invokeID)
	if !ok {
		return fmt.Errorf("%w: reply for unknown invocation %q",
			penne_errors.ErrNotFound, invokeID)
	}
	pc.stop()
	c.metrics.replies.Inc()

	if exc, ok := p["method_exception"]; ok && exc != nil {
		merr := methodErrorFromWire(invokeID, exc)
		if pc.onDone != nil {
			c.queueCallback(func() { pc.onDone(nil, merr) })
		}
		// Application-level failure: delivered to the caller above and
		// surfaced to the dispatch boundary as well.
		return merr
	}

	result := p["result"]
	if pc.onDone != nil {
		c.queueCallback(func() { pc.onDone(result, nil) })
	}
	return nil
}

func (c *Client) handleSignalInvoke(p Payload) error {
	id, err := payloadID(nooid.KindSignal, p)
	if err != nil {
		return err
	}
	d, err := c.state.Get(id)
	if err != nil {
		return err
	}
	sig, ok := d.(*Signal)
	if !ok {
		return fmt.Errorf("%w: %s is not a signal", penne_errors.ErrValidation, id)
	}

	ctx, err := nooid.ContextFromWire(p["context"])
	if err != nil {
		return fmt.Errorf("%w: %v", penne_errors.ErrInvalidContext, err)
	}
	target, err := c.state.GetByContext(ctx)
	if err != nil {
		return err
	}

	handler, known := target.base().Signal(sig.Name())
	if !known || handler == nil {
		return fmt.Errorf("%w: no handler bound for signal %q on %s",
			penne_errors.ErrNotFound, sig.Name(), target.NooID())
	}

	args, _ := p["signal_data"].([]any)
	c.log.Debug("invoking signal", "signal", sig.Name(), "target", target.NooID())
	// Signal handlers run inline on the network loop so they observe
	// consistent in-flight state; only reply callbacks are deferred.
	handler(args)
	return nil
}

func (c *Client) handleInitialized() error {
	c.cstate.Store(StateActive)
	c.readyOnce.Do(func() { close(c.ready) })
	if c.opts.OnConnected != nil {
		c.queueCallback(c.opts.OnConnected)
	}
	return nil
}

func methodErrorFromWire(invokeID string, v any) *penne_errors.MethodError {
	merr := &penne_errors.MethodError{InvokeID: invokeID}
	if m, ok := v.(map[string]any); ok {
		if code, ok := wireInt(m["code"]); ok {
			merr.Code = code
		}
		merr.Message, _ = m["message"].(string)
		merr.Data = m["data"]
	}
	return merr
}
