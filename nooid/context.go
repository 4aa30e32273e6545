package nooid

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var ErrInvalidContext = errors.New("nooid: zero or multiple context fields set")

// Context names the component a method call or signal applies to.
// A nil *Context means the document; a non-nil Context must have
// exactly one field set.
type Context struct {
	Entity *ID
	Table  *ID
	Plot   *ID
}

func EntityContext(id ID) *Context { return &Context{Entity: &id} }
func TableContext(id ID) *Context  { return &Context{Table: &id} }
func PlotContext(id ID) *Context   { return &Context{Plot: &id} }

// Target returns the single id the context refers to, or an error if
// zero or more than one field is set.
func (c *Context) Target() (ID, error) {
	var found *ID
	for _, id := range []*ID{c.Entity, c.Table, c.Plot} {
		if id == nil {
			continue
		}
		if found != nil {
			return BadID, ErrInvalidContext
		}
		found = id
	}
	if found == nil {
		return BadID, ErrInvalidContext
	}
	return *found, nil
}

func (c *Context) MarshalCBOR() ([]byte, error) {
	id, err := c.Target()
	if err != nil {
		return nil, err
	}
	var key string
	switch id.Kind {
	case KindEntity:
		key = "entity"
	case KindTable:
		key = "table"
	case KindPlot:
		key = "plot"
	default:
		return nil, ErrInvalidContext
	}
	return cbor.Marshal(map[string]ID{key: id})
}

// ContextFromWire converts a decoded wire map ({"table": [slot, gen]} etc.)
// into a Context. A nil input yields a nil Context (the document).
func ContextFromWire(v any) (*Context, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrInvalidContext
	}
	ctx := &Context{}
	n := 0
	for key, raw := range m {
		var kind Kind
		switch key {
		case "entity":
			kind = KindEntity
		case "table":
			kind = KindTable
		case "plot":
			kind = KindPlot
		default:
			return nil, ErrInvalidContext
		}
		id, ok := FromWire(kind, raw)
		if !ok {
			return nil, ErrInvalidContext
		}
		switch kind {
		case KindEntity:
			ctx.Entity = &id
		case KindTable:
			ctx.Table = &id
		case KindPlot:
			ctx.Plot = &id
		}
		n++
	}
	if n != 1 {
		return nil, ErrInvalidContext
	}
	return ctx, nil
}
