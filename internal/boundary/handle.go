package boundary

import (
	"fmt"
	"sync"
)

// Handle is an opaque reference to a boundary-owned object. The zero Handle
// is null and never denotes a live object.
//
// Layout: kind (8 bits) | generation (24 bits) | slot index + 1 (32 bits).
type Handle uint64

// Kind is the object type a Handle denotes.
type Kind uint8

const (
	KindDisplay  Kind = 1
	KindCapturer Kind = 2
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDisplay:
		return "display"
	case KindCapturer:
		return "capturer"
	default:
		return "unknown"
	}
}

const generationMask = 1<<24 - 1

func makeHandle(kind Kind, gen, index uint32) Handle {
	return Handle(uint64(kind)<<56 | uint64(gen&generationMask)<<32 | uint64(index+1))
}

// Kind returns the object type encoded in h.
func (h Handle) Kind() Kind { return Kind(h >> 56) }

func (h Handle) generation() uint32 { return uint32(h>>32) & generationMask }

func (h Handle) slot() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool { return h == 0 }

// String formats h for logs.
func (h Handle) String() string {
	if h == 0 {
		return "null"
	}
	idx, _ := h.slot()
	return fmt.Sprintf("%s#%d.%d", h.Kind(), idx, h.generation())
}

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
)

// retirement records how the previous generation of a slot ended, so a stale
// handle can be reported as freed or consumed.
type retirement uint8

const (
	retiredNever retirement = iota
	retiredFreed
	retiredConsumed
)

type slot[T any] struct {
	value   T
	gen     uint32
	state   slotState
	retired retirement
}

// arena owns boundary objects of one kind. Each insert yields a handle that
// stays valid until exactly one remove or consume.
type arena[T any] struct {
	kind Kind

	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
	live  int
}

func newArena[T any](kind Kind) *arena[T] {
	return &arena[T]{kind: kind}
}

func (a *arena[T]) insert(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[idx]
	s.value = v
	s.state = slotLive
	a.live++
	return makeHandle(a.kind, s.gen, idx)
}

// lookup returns the live slot for h. Caller holds a.mu.
func (a *arena[T]) lookup(h Handle) (*slot[T], error) {
	if h.IsNull() {
		return nil, fmt.Errorf("%w: null %s", ErrInvalidHandle, a.kind)
	}
	if h.Kind() != a.kind {
		return nil, fmt.Errorf("%w: %s is not a %s", ErrInvalidHandle, h, a.kind)
	}
	idx, _ := h.slot()
	if int(idx) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %s was never issued", ErrInvalidHandle, h)
	}

	s := &a.slots[idx]
	if s.state == slotLive && s.gen == h.generation() {
		return s, nil
	}
	if (s.gen-1)&generationMask == h.generation() && s.retired == retiredConsumed {
		return nil, fmt.Errorf("%w: %s", ErrConsumedHandle, h)
	}
	return nil, fmt.Errorf("%w: %s is stale", ErrInvalidHandle, h)
}

func (a *arena[T]) get(h Handle) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// remove frees the slot for h and returns the value it held.
func (a *arena[T]) remove(h Handle) (T, error) {
	return a.retire(h, retiredFreed)
}

// consume invalidates h and moves its value out to the caller.
func (a *arena[T]) consume(h Handle) (T, error) {
	return a.retire(h, retiredConsumed)
}

func (a *arena[T]) retire(h Handle, why retirement) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	s, err := a.lookup(h)
	if err != nil {
		return zero, err
	}

	v := s.value
	s.value = zero
	s.state = slotFree
	s.gen = (s.gen + 1) & generationMask
	s.retired = why
	idx, _ := h.slot()
	a.free = append(a.free, idx)
	a.live--
	return v, nil
}

func (a *arena[T]) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// drain removes every live value, for shutdown.
func (a *arena[T]) drain() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []T
	var zero T
	for i := range a.slots {
		s := &a.slots[i]
		if s.state != slotLive {
			continue
		}
		out = append(out, s.value)
		s.value = zero
		s.state = slotFree
		s.gen = (s.gen + 1) & generationMask
		s.retired = retiredFreed
		a.free = append(a.free, uint32(i))
	}
	a.live = 0
	return out
}
