package penne

import (
	"io"
	"strings"

	"github.com/InsightCenterNoodles/Penne/nooid"
)

// Document is the singleton delegate for document-scoped state: the
// methods and signals that apply to the session as a whole rather than
// to any one component.
type Document struct {
	Base

	MethodsList []nooid.ID
	SignalsList []nooid.ID
}

func NewDocument() *Document {
	return &Document{
		Base: Base{
			id:   nooid.ID{Kind: nooid.KindDocument},
			name: "Document",
		},
	}
}

// OnUpdate refreshes the typed method/signal lists and re-runs
// capability injection against them.
func (d *Document) OnUpdate(p Payload) error {
	if raw, ok := d.attrs["methods_list"]; ok {
		if ids, ok := nooid.ListFromWire(nooid.KindMethod, raw); ok {
			d.MethodsList = ids
		}
	}
	if raw, ok := d.attrs["signals_list"]; ok {
		if ids, ok := nooid.ListFromWire(nooid.KindSignal, raw); ok {
			d.SignalsList = ids
		}
	}
	return d.Base.OnUpdate(p)
}

// reset clears the document's own lists. The store clears everything
// else as part of a document reset message.
func (d *Document) reset() {
	d.MethodsList = nil
	d.SignalsList = nil
	delete(d.attrs, "methods_list")
	delete(d.attrs, "signals_list")
	d.injected = map[string]*InjectedMethod{}
	d.signals = map[string]SignalHandler{}
}

// ShowMethods writes the document's callable methods to w, hiding the
// protocol's own noo:: namespace.
func (d *Document) ShowMethods(w io.Writer) {
	d.showMethodsFiltered(w, func(m *Method) bool {
		return !strings.Contains(m.Name(), methodPrefix)
	})
}

func (d *Document) showMethodsFiltered(w io.Writer, keep func(*Method) bool) {
	for _, mid := range d.MethodsList {
		del, err := d.client.state.Get(mid)
		if err != nil {
			continue
		}
		if m, ok := del.(*Method); ok && keep(m) {
			io.WriteString(w, ">> "+m.Describe()+"\n")
		}
	}
}
