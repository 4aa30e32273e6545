package penne

import (
	"fmt"
	"strings"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

// Server method names are namespaced; the prefix is stripped when the
// method is injected so application code calls "tbl_subscribe", not
// "noo::tbl_subscribe".
const methodPrefix = "noo::"

// InjectedMethod is a server-declared method bound to one target
// delegate. Calling it supplies the target's invocation context
// automatically.
type InjectedMethod struct {
	name   string
	method *Method
	target *Base
}

func (m *InjectedMethod) Name() string { return m.name }

func (m *InjectedMethod) Call(args []any, onDone OnDone) error {
	ctx, err := contextFor(m.target.id)
	if err != nil {
		return err
	}
	_, err = m.method.client.InvokeByID(m.method.id, args, ctx, onDone)
	return err
}

// contextFor derives the invocation context from the id kind of the
// delegate a call targets. Document-scoped calls carry no context.
func contextFor(id nooid.ID) (*nooid.Context, error) {
	switch id.Kind {
	case nooid.KindEntity:
		return nooid.EntityContext(id), nil
	case nooid.KindTable:
		return nooid.TableContext(id), nil
	case nooid.KindPlot:
		return nooid.PlotContext(id), nil
	case nooid.KindDocument:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot be an invocation target",
			penne_errors.ErrInvalidContext, id)
	}
}

// injectCapabilities rebinds the target's callable set from its current
// methods_list/signals_list attributes. Runs on every create and update
// so the set stays exactly what the server declares.
func injectCapabilities(c *Client, target *Base) error {
	if err := injectMethods(c, target, target.methodsList()); err != nil {
		return err
	}
	return injectSignals(c, target, target.signalsList())
}

// injectMethods replaces all previously injected callables with fresh
// bindings. Clearing first guarantees re-creation never leaves stale
// entries behind.
func injectMethods(c *Client, target *Base, ids []nooid.ID) error {
	target.injected = map[string]*InjectedMethod{}
	for _, mid := range ids {
		d, err := c.state.Get(mid)
		if err != nil {
			return fmt.Errorf("injecting %s: %w", mid, err)
		}
		method, ok := d.(*Method)
		if !ok {
			return fmt.Errorf("%w: %s is not a method", penne_errors.ErrValidation, mid)
		}
		name := strings.TrimPrefix(method.Name(), methodPrefix)
		target.injected[name] = &InjectedMethod{
			name:   name,
			method: method,
			target: target,
		}
	}
	return nil
}

// injectSignals registers an unbound entry per declared signal. Existing
// handlers (built-ins, or ones the application bound earlier) are kept.
func injectSignals(c *Client, target *Base, ids []nooid.ID) error {
	for _, sid := range ids {
		d, err := c.state.Get(sid)
		if err != nil {
			return fmt.Errorf("injecting %s: %w", sid, err)
		}
		signal, ok := d.(*Signal)
		if !ok {
			return fmt.Errorf("%w: %s is not a signal", penne_errors.ErrValidation, sid)
		}
		if _, ok := target.signals[signal.Name()]; !ok {
			target.signals[signal.Name()] = nil
		}
	}
	return nil
}
