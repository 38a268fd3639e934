package native

import (
	"fmt"
	"sync"
)

// Handle is an opaque reference to a live library object. The low 32 bits
// are a slot index plus one, the high 32 bits the slot's generation, so a
// handle that outlives its object never resolves to the slot's next tenant.
// The zero Handle is never valid.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index(), h.generation())
}

func (h Handle) index() uint32      { return uint32(h) - 1 }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

type kind uint8

const (
	kindAccess kind = iota + 1
	kindProject
	kindUpload
	kindDownload
	kindBucketIterator
	kindObjectIterator
	kindPartUpload
	kindUploadIterator
	kindPartIterator
)

var kindNames = [...]string{
	kindAccess:         "access",
	kindProject:        "project",
	kindUpload:         "upload",
	kindDownload:       "download",
	kindBucketIterator: "bucket iterator",
	kindObjectIterator: "object iterator",
	kindPartUpload:     "part upload",
	kindUploadIterator: "upload iterator",
	kindPartIterator:   "part iterator",
}

func (k kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type slot struct {
	gen   uint32
	kind  kind
	value any
	owner Handle
}

// arena maps handles to live objects. Freed slots are reused with a bumped
// generation.
type arena struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

func newArena() *arena {
	return &arena{}
}

// put stores v and returns its handle. A non-zero owner ties v to that
// handle's lifetime; see releaseOwned.
func (a *arena) put(k kind, v any, owner Handle) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.kind, s.value, s.owner = k, v, owner
	a.live++
	return makeHandle(idx, s.gen)
}

// resolve returns the slot for h. The caller holds a.mu.
func (a *arena) resolve(h Handle, k kind) (*slot, error) {
	if h == 0 || uint64(h.index()) >= uint64(len(a.slots)) {
		return nil, fmt.Errorf("%w: %s %s", errInvalidHandle, k, h)
	}
	s := &a.slots[h.index()]
	if s.value == nil || s.gen != h.generation() || s.kind != k {
		return nil, fmt.Errorf("%w: %s %s", errInvalidHandle, k, h)
	}
	return s, nil
}

func (a *arena) get(h Handle, k kind) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.resolve(h, k)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

// release frees h and returns the object it referred to.
func (a *arena) release(h Handle, k kind) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.resolve(h, k)
	if err != nil {
		return nil, err
	}
	v := s.value
	a.clear(h.index())
	return v, nil
}

// releaseOwned frees every handle owned by owner and returns their objects.
func (a *arena) releaseOwned(owner Handle) []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	var owned []any
	for i := range a.slots {
		s := &a.slots[i]
		if s.value != nil && s.owner == owner {
			owned = append(owned, s.value)
			a.clear(uint32(i))
		}
	}
	return owned
}

func (a *arena) clear(idx uint32) {
	s := &a.slots[idx]
	s.value, s.owner, s.kind = nil, 0, 0
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, idx)
	a.live--
}

func (a *arena) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// lookup resolves h to a typed object.
func lookup[T any](a *arena, h Handle, k kind) (T, *Error) {
	var zero T
	v, err := a.get(h, k)
	if err != nil {
		return zero, newError(err)
	}
	t, ok := v.(T)
	if !ok {
		return zero, invalidHandle(k, h)
	}
	return t, nil
}
