package penne

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/InsightCenterNoodles/Penne/nooid"
	"github.com/InsightCenterNoodles/Penne/penne_errors"
)

type slotKey struct {
	kind nooid.Kind
	slot uint32
}

// Store is the registry of live delegates, one per identifier, plus the
// document singleton. The network loop is the only writer; application
// threads read concurrently, so the maps are concurrent.
type Store struct {
	components *xsync.MapOf[nooid.ID, Delegate]
	// last generation seen per slot, kept across removals so stale
	// identifiers stay detectable after a slot is recycled
	slots    *xsync.MapOf[slotKey, uint32]
	document Delegate
}

func newStore(document Delegate) *Store {
	return &Store{
		components: xsync.NewMapOf[nooid.ID, Delegate](),
		slots:      xsync.NewMapOf[slotKey, uint32](),
		document:   document,
	}
}

// Get returns the live delegate under id. A miss on a slot whose
// recorded generation is newer than the requested one reports
// ErrGenerationMismatch instead of a plain ErrNotFound.
func (s *Store) Get(id nooid.ID) (Delegate, error) {
	if id.Kind == nooid.KindDocument {
		return s.document, nil
	}
	if d, ok := s.components.Load(id); ok {
		return d, nil
	}
	if gen, ok := s.slots.Load(slotKey{id.Kind, id.Slot}); ok && gen > id.Gen {
		return nil, fmt.Errorf("%w: %s superseded by generation %d",
			penne_errors.ErrGenerationMismatch, id, gen)
	}
	return nil, fmt.Errorf("%w: %s", penne_errors.ErrNotFound, id)
}

// GetByName scans the current entries of one kind and returns the first
// delegate with a matching name. Duplicate names are not an error; the
// first match wins.
func (s *Store) GetByName(kind nooid.Kind, name string) (Delegate, error) {
	var found Delegate
	s.components.Range(func(id nooid.ID, d Delegate) bool {
		if id.Kind == kind && d.Name() == name {
			found = d
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%w: no %s named %q", penne_errors.ErrNotFound, kind, name)
	}
	return found, nil
}

// GetByContext resolves an invocation context to its delegate. A nil
// context means the document.
func (s *Store) GetByContext(ctx *nooid.Context) (Delegate, error) {
	if ctx == nil {
		return s.document, nil
	}
	id, err := ctx.Target()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", penne_errors.ErrInvalidContext, err)
	}
	return s.Get(id)
}

// Document returns the singleton document delegate.
func (s *Store) Document() Delegate { return s.document }

// Range iterates over all live delegates in no particular order.
func (s *Store) Range(f func(id nooid.ID, d Delegate) bool) {
	s.components.Range(f)
}

func (s *Store) Len() int { return s.components.Size() }

// put inserts a freshly created delegate. The prior generation of the
// same slot must have been fully removed first.
func (s *Store) put(d Delegate) error {
	id := d.NooID()
	key := slotKey{id.Kind, id.Slot}
	if gen, ok := s.slots.Load(key); ok && gen != id.Gen {
		if _, live := s.components.Load(nooid.New(id.Kind, id.Slot, gen)); live {
			return fmt.Errorf("%w: %s created while generation %d is still live",
				penne_errors.ErrGenerationMismatch, id, gen)
		}
	}
	s.components.Store(id, d)
	s.slots.Store(key, id.Gen)
	return nil
}

// remove deletes the entry; the slot's generation record is kept so a
// later Get with the stale id can be classified.
func (s *Store) remove(id nooid.ID) {
	s.components.Delete(id)
}

type documentResetter interface {
	reset()
}

// reset clears every component and empties the document's own lists.
// Calling it twice in a row is a no-op the second time.
func (s *Store) reset() {
	s.components.Clear()
	s.slots.Clear()
	if d, ok := s.document.(documentResetter); ok {
		d.reset()
	}
}
