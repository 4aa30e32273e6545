package penne

import (
	"fmt"
	"io"
	"strings"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

// Payload is a decoded message body. Update payloads are partial: only
// the keys present overwrite existing state.
type Payload = map[string]any

// OnDone receives the outcome of a method invocation. Exactly one of
// result/err is meaningful; err is a *penne_errors.MethodError when the
// server reported a failure.
type OnDone func(result any, err error)

// SignalHandler runs when the server emits a signal. Handlers run inline
// on the network loop so they observe consistent in-flight state.
type SignalHandler func(args []any)

// Delegate is the client-side representation of one server component.
// Concrete kinds embed Base and override the lifecycle hooks they need.
type Delegate interface {
	NooID() nooid.ID
	Name() string

	// OnNew runs after a create message inserted the delegate.
	OnNew(p Payload) error
	// OnUpdate runs after an update payload was merged in.
	OnUpdate(p Payload) error
	// OnRemove runs before the delegate leaves the store.
	OnRemove(p Payload) error

	base() *Base
	validate() error
}

// DelegateFactory builds a blank delegate for one component kind.
// Overriding entries in Options.Delegates pre-registers custom variants.
type DelegateFactory func() Delegate

// Base carries the state every delegate shares: identity, the merged
// raw attribute set, the signal-name handler map, the injected method
// map, and the back-reference to the owning client.
type Base struct {
	client *Client
	id     nooid.ID
	name   string

	attrs    Payload
	signals  map[string]SignalHandler
	injected map[string]*InjectedMethod
}

func (b *Base) init(c *Client, id nooid.ID, p Payload) {
	b.client = c
	b.id = id
	if b.attrs == nil {
		b.attrs = Payload{}
	}
	if b.signals == nil {
		b.signals = map[string]SignalHandler{}
	}
	if b.injected == nil {
		b.injected = map[string]*InjectedMethod{}
	}
	b.merge(p)
}

// snapshot copies the attribute state so a rejected update can be rolled
// back without committing anything.
func (b *Base) snapshot() (Payload, string) {
	attrs := make(Payload, len(b.attrs))
	for k, v := range b.attrs {
		attrs[k] = v
	}
	return attrs, b.name
}

func (b *Base) restore(attrs Payload, name string) {
	b.attrs = attrs
	b.name = name
}

func (b *Base) merge(p Payload) {
	for k, v := range p {
		b.attrs[k] = v
	}
	if name, ok := b.attrs["name"].(string); ok {
		b.name = name
	}
}

func (b *Base) NooID() nooid.ID { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) Client() *Client { return b.client }

// Attr returns a raw attribute from the merged payload state.
func (b *Base) Attr(key string) (any, bool) {
	v, ok := b.attrs[key]
	return v, ok
}

// Signal returns the handler bound to a signal name, or nil if the
// signal is known but unbound.
func (b *Base) Signal(name string) (SignalHandler, bool) {
	h, ok := b.signals[name]
	return h, ok
}

// SetSignalHandler binds a handler to an injected signal name.
func (b *Base) SetSignalHandler(name string, h SignalHandler) {
	b.signals[name] = h
}

// Call invokes an injected method by its stripped name.
func (b *Base) Call(name string, args []any, onDone OnDone) error {
	m, ok := b.injected[name]
	if !ok {
		return fmt.Errorf("%w: no injected method %q on %s",
			penne_errors.ErrNotFound, name, b.id)
	}
	return m.Call(args, onDone)
}

// InjectedMethods lists the stripped names of all injected methods.
func (b *Base) InjectedMethods() []string {
	names := make([]string, 0, len(b.injected))
	for name := range b.injected {
		names = append(names, name)
	}
	return names
}

func (b *Base) base() *Base { return b }

func (b *Base) validate() error { return nil }

// OnNew performs capability injection when the create payload carries
// method/signal reference lists.
func (b *Base) OnNew(p Payload) error {
	return injectCapabilities(b.client, b)
}

// OnUpdate re-runs injection so the callable set always mirrors the
// server-declared lists.
func (b *Base) OnUpdate(p Payload) error {
	return injectCapabilities(b.client, b)
}

func (b *Base) OnRemove(p Payload) error { return nil }

func (b *Base) methodsList() []nooid.ID {
	raw, ok := b.attrs["methods_list"]
	if !ok {
		return nil
	}
	ids, _ := nooid.ListFromWire(nooid.KindMethod, raw)
	return ids
}

func (b *Base) signalsList() []nooid.ID {
	raw, ok := b.attrs["signals_list"]
	if !ok {
		return nil
	}
	ids, _ := nooid.ListFromWire(nooid.KindSignal, raw)
	return ids
}

// showMethods writes the component's callable methods, resolved through
// the store, to w. Developer tooling only.
func (b *Base) showMethods(w io.Writer) {
	fmt.Fprintf(w, "-- Methods on %s --\n", b.name)
	fmt.Fprintln(w, "--------------------------------------")
	for _, mid := range b.methodsList() {
		d, err := b.client.state.Get(mid)
		if err != nil {
			continue
		}
		if m, ok := d.(*Method); ok {
			fmt.Fprintf(w, ">> %s\n", m.Describe())
		}
	}
}

/* ---------------- validation helpers ---------------- */

func requireString(p Payload, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", penne_errors.ErrValidation, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, want string", penne_errors.ErrValidation, key, v)
	}
	return s, nil
}

func requirePresent(p Payload, key string) error {
	if _, ok := p[key]; !ok {
		return fmt.Errorf("%w: missing %q", penne_errors.ErrValidation, key)
	}
	return nil
}

// requireOneOf enforces that exactly one of the keys is present.
func requireOneOf(p Payload, keys ...string) error {
	found := 0
	for _, key := range keys {
		if v, ok := p[key]; ok && v != nil {
			found++
		}
	}
	if found != 1 {
		return fmt.Errorf("%w: exactly one of %s required, got %d",
			penne_errors.ErrValidation, strings.Join(keys, "/"), found)
	}
	return nil
}

/* ---------------- component kinds ---------------- */

// MethodArg documents one argument of a server method.
type MethodArg struct {
	Name       string
	Doc        string
	EditorHint string
}

// Method mirrors a callable the server exposes.
type Method struct {
	Base

	Doc       string
	ReturnDoc string
	ArgDoc    []MethodArg
}

func (m *Method) validate() error {
	name, err := requireString(m.attrs, "name")
	if err != nil {
		return err
	}
	m.name = name
	m.Doc, _ = m.attrs["doc"].(string)
	m.ReturnDoc, _ = m.attrs["return_doc"].(string)
	m.ArgDoc = m.ArgDoc[:0]
	if raw, ok := m.attrs["arg_doc"].([]any); ok {
		for _, el := range raw {
			am, ok := el.(map[string]any)
			if !ok {
				continue
			}
			arg := MethodArg{}
			arg.Name, _ = am["name"].(string)
			arg.Doc, _ = am["doc"].(string)
			arg.EditorHint, _ = am["editor_hint"].(string)
			m.ArgDoc = append(m.ArgDoc, arg)
		}
	}
	return nil
}

// Invoke calls this method on the server in the context of target.
// Target must be an Entity, Table or Plot delegate; use the client's
// Invoke for document-scoped calls.
func (m *Method) Invoke(target Delegate, args []any, onDone OnDone) error {
	ctx, err := contextFor(target.NooID())
	if err != nil {
		return err
	}
	_, err = m.client.InvokeByID(m.id, args, ctx, onDone)
	return err
}

// Describe renders the method with its docs for introspection output.
func (m *Method) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n\t%s\n\tReturns: %s\n\tArgs:", m.name, m.Doc, m.ReturnDoc)
	for _, arg := range m.ArgDoc {
		fmt.Fprintf(&sb, "\n\t\t%s: %s", arg.Name, arg.Doc)
	}
	return sb.String()
}

// Signal mirrors a server-emitted signal declaration.
type Signal struct {
	Base

	Doc    string
	ArgDoc []MethodArg
}

func (s *Signal) validate() error {
	name, err := requireString(s.attrs, "name")
	if err != nil {
		return err
	}
	s.name = name
	s.Doc, _ = s.attrs["doc"].(string)
	return nil
}

// Entity is a node in the scene graph.
type Entity struct {
	Base
}

// ShowMethods writes the entity's callable methods to w.
func (e *Entity) ShowMethods(w io.Writer) { e.showMethods(w) }

// Plot is a data visualization bound to a table.
type Plot struct {
	Base
}

func (p *Plot) validate() error {
	return requireOneOf(p.attrs, "simple_plot", "url_plot")
}

// ShowMethods writes the plot's callable methods to w.
func (p *Plot) ShowMethods(w io.Writer) { p.showMethods(w) }

// Buffer holds raw bytes, inline or by URI.
type Buffer struct {
	Base
}

func (b *Buffer) validate() error {
	return requireOneOf(b.attrs, "inline_bytes", "uri_bytes")
}

// BufferView is a typed window into a buffer.
type BufferView struct {
	Base

	ViewType string
}

func (v *BufferView) validate() error {
	if err := requirePresent(v.attrs, "source_buffer"); err != nil {
		return err
	}
	if err := requirePresent(v.attrs, "offset"); err != nil {
		return err
	}
	if err := requirePresent(v.attrs, "length"); err != nil {
		return err
	}
	v.ViewType = coerceViewType(v.client, v.attrs)
	return nil
}

// Nonstandard view types are coerced rather than rejected.
func coerceViewType(c *Client, p Payload) string {
	raw, _ := p["type"].(string)
	switch raw {
	case "", "UNK":
		return "UNK"
	case "GEOMETRY", "IMAGE":
		return raw
	}
	c.log.Warn("buffer view type does not meet the specification, coercing", "type", raw)
	switch {
	case strings.Contains(raw, "GEOMETRY"):
		return "GEOMETRY"
	case strings.Contains(raw, "IMAGE"):
		return "IMAGE"
	default:
		return "UNK"
	}
}

// Material describes surface shading parameters.
type Material struct {
	Base
}

// Image sources pixel data from a buffer or a URI.
type Image struct {
	Base
}

func (i *Image) validate() error {
	return requireOneOf(i.attrs, "buffer_source", "uri_source")
}

// Texture pairs an image with a sampler.
type Texture struct {
	Base
}

func (t *Texture) validate() error {
	return requirePresent(t.attrs, "image")
}

// Sampler holds texture filtering and wrapping modes.
type Sampler struct {
	Base
}

// Light is a point, spot or directional light source.
type Light struct {
	Base
}

func (l *Light) validate() error {
	return requireOneOf(l.attrs, "point", "spot", "directional")
}

// Geometry is a list of renderable patches.
type Geometry struct {
	Base
}

func (g *Geometry) validate() error {
	return requirePresent(g.attrs, "patches")
}

func defaultDelegates() map[nooid.Kind]DelegateFactory {
	return map[nooid.Kind]DelegateFactory{
		nooid.KindMethod:     func() Delegate { return &Method{} },
		nooid.KindSignal:     func() Delegate { return &Signal{} },
		nooid.KindEntity:     func() Delegate { return &Entity{Base{name: "Unnamed Entity Delegate"}} },
		nooid.KindPlot:       func() Delegate { return &Plot{Base{name: "Unnamed Plot Delegate"}} },
		nooid.KindBuffer:     func() Delegate { return &Buffer{Base{name: "Unnamed Buffer Delegate"}} },
		nooid.KindBufferView: func() Delegate { return &BufferView{Base: Base{name: "Unnamed Buffer-View Delegate"}} },
		nooid.KindMaterial:   func() Delegate { return &Material{Base{name: "Unnamed Material Delegate"}} },
		nooid.KindImage:      func() Delegate { return &Image{Base{name: "Unnamed Image Delegate"}} },
		nooid.KindTexture:    func() Delegate { return &Texture{Base{name: "Unnamed Texture Delegate"}} },
		nooid.KindSampler:    func() Delegate { return &Sampler{Base{name: "Unnamed Sampler Delegate"}} },
		nooid.KindLight:      func() Delegate { return &Light{Base{name: "Unnamed Light Delegate"}} },
		nooid.KindGeometry:   func() Delegate { return &Geometry{Base{name: "Unnamed Geometry Delegate"}} },
		nooid.KindTable:      func() Delegate { return NewTable() },
		nooid.KindDocument:   func() Delegate { return NewDocument() },
	}
}
