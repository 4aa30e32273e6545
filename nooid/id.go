package nooid

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind tags an identifier with the component type it refers to.
// Two identifiers with equal slot/generation but different kinds
// are never equal.
type Kind uint8

const (
	KindNone Kind = iota
	KindMethod
	KindSignal
	KindEntity
	KindPlot
	KindBuffer
	KindBufferView
	KindMaterial
	KindImage
	KindTexture
	KindSampler
	KindLight
	KindGeometry
	KindTable
	KindDocument
)

var kindNames = [...]string{
	"None", "Method", "Signal", "Entity", "Plot", "Buffer", "BufferView",
	"Material", "Image", "Texture", "Sampler", "Light", "Geometry", "Table",
	"Document",
}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ID locates one server-owned component instance.
//
// Slots are reused once freed; the generation increments each time a
// slot is recycled, so a stale reference (correct slot, old generation)
// stays detectable and is never silently treated as valid.
type ID struct {
	Kind Kind
	Slot uint32
	Gen  uint32
}

func New(kind Kind, slot, gen uint32) ID {
	return ID{Kind: kind, Slot: slot, Gen: gen}
}

func MethodID(slot, gen uint32) ID     { return New(KindMethod, slot, gen) }
func SignalID(slot, gen uint32) ID     { return New(KindSignal, slot, gen) }
func EntityID(slot, gen uint32) ID     { return New(KindEntity, slot, gen) }
func PlotID(slot, gen uint32) ID       { return New(KindPlot, slot, gen) }
func BufferID(slot, gen uint32) ID     { return New(KindBuffer, slot, gen) }
func BufferViewID(slot, gen uint32) ID { return New(KindBufferView, slot, gen) }
func MaterialID(slot, gen uint32) ID   { return New(KindMaterial, slot, gen) }
func ImageID(slot, gen uint32) ID      { return New(KindImage, slot, gen) }
func TextureID(slot, gen uint32) ID    { return New(KindTexture, slot, gen) }
func SamplerID(slot, gen uint32) ID    { return New(KindSampler, slot, gen) }
func LightID(slot, gen uint32) ID      { return New(KindLight, slot, gen) }
func GeometryID(slot, gen uint32) ID   { return New(KindGeometry, slot, gen) }
func TableID(slot, gen uint32) ID      { return New(KindTable, slot, gen) }

var BadID = ID{Kind: KindNone, Slot: ^uint32(0), Gen: ^uint32(0)}

func (id ID) Valid() bool {
	return id.Kind != KindNone && id != BadID
}

// SameSlot reports whether two ids name the same slot of the same kind,
// regardless of generation. Used for staleness checks.
func (id ID) SameSlot(other ID) bool {
	return id.Kind == other.Kind && id.Slot == other.Slot
}

func (id ID) String() string {
	return fmt.Sprintf("%s|%d/%d|", id.Kind, id.Slot, id.Gen)
}

// On the wire an id is a two-element [slot, gen] array; the kind is
// implied by the field the id appears in.
func (id ID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal([2]uint32{id.Slot, id.Gen})
}

// FromWire converts a decoded wire value (a [slot, gen] array) into an
// ID of the given kind.
func FromWire(kind Kind, v any) (ID, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return BadID, false
	}
	slot, ok := wireUint(pair[0])
	if !ok {
		return BadID, false
	}
	gen, ok := wireUint(pair[1])
	if !ok {
		return BadID, false
	}
	return New(kind, slot, gen), true
}

// ListFromWire converts a decoded list of [slot, gen] pairs.
func ListFromWire(kind Kind, v any) ([]ID, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	ids := make([]ID, 0, len(list))
	for _, el := range list {
		id, ok := FromWire(kind, el)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func wireUint(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint64:
		return uint32(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint32:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	default:
		return 0, false
	}
}
