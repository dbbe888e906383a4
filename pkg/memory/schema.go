package memory

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Member describes one managed-handle slot inside a record's payload:
// slotCount contiguous Handle-sized words starting at offset bytes from
// the start of the payload.
type Member struct {
	Offset    uintptr
	SlotCount int
}

// Meta is the immutable, process-wide type descriptor sealed once per
// record type T.
type Meta struct {
	name    string
	destroy func(unsafe.Pointer)
	members []Member
	sealed  bool
}

var (
	schemaMu   sync.Mutex
	builders   = map[reflect.Type]*Builder{}
	sealedMeta = map[reflect.Type]*Meta{}
)

// Builder accumulates managed-field descriptors for one record type T.
// Types register their managed fields once, typically from an init
// function, before any value of that type is allocated.
type Builder struct {
	typ     reflect.Type
	members []Member
	destroy func(unsafe.Pointer)
}

// For returns the (possibly new) builder for T. Calling For after a
// value of T has already been allocated through a Context is a
// programmer error: the schema for T was sealed at that point.
func For[T any]() *Builder {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	schemaMu.Lock()
	defer schemaMu.Unlock()

	if _, ok := sealedMeta[typ]; ok {
		panic(errors.AssertionFailedf(
			"memory: schema for %s registered after first allocation of that type", typ))
	}

	b, ok := builders[typ]
	if !ok {
		b = &Builder{typ: typ}
		builders[typ] = b
	}

	return b
}

// Field registers one managed slot at the given byte offset. U is the
// Go type of the field itself: a Handle[X] for a scalar field, or an
// [N]Handle[X] for an N-element array — Field rejects any other U, so
// registering a field whose declared type is not actually a managed
// handle fails fast instead of silently corrupting the collector's
// walk. offset is expected to come from unsafe.Offsetof applied to
// that same field. Field is a free function, not a method, because Go
// does not allow a method to introduce its own type parameter.
func Field[U any](b *Builder, offset uintptr, n int) *Builder {
	typ := reflect.TypeOf((*U)(nil)).Elem()

	slots, ok := managedSlotCount(typ)
	if !ok {
		panic(errors.AssertionFailedf(
			"memory: %s: field at offset %d has type %s, which is not a Handle[_] or [N]Handle[_]",
			b.typ, offset, typ))
	}
	if slots != n {
		panic(errors.AssertionFailedf(
			"memory: %s: field at offset %d declares slot count %d but %s holds %d",
			b.typ, offset, n, typ, slots))
	}

	lo, hi := offset, offset+uintptr(n)*handleSize
	for _, m := range b.members {
		mlo, mhi := m.Offset, m.Offset+uintptr(m.SlotCount)*handleSize
		if lo < mhi && mlo < hi {
			panic(errors.AssertionFailedf(
				"memory: %s: managed field at offset %d overlaps one already registered at offset %d",
				b.typ, offset, m.Offset))
		}
	}

	b.members = append(b.members, Member{Offset: offset, SlotCount: n})

	return b
}

// handleLayout is the field shape of Handle[X] for any X: a single
// unexported pointer field named "rec". Reflection sees this shape
// identically no matter what X is instantiated with, which is what lets
// isHandleType recognize a managed field without knowing X.
var handleLayout = reflect.TypeOf((*header)(nil))

func isHandleType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct &&
		t.NumField() == 1 &&
		t.Field(0).Name == "rec" &&
		t.Field(0).Type == handleLayout
}

// managedSlotCount reports how many contiguous Handle-sized slots t
// occupies, and whether t is a recognized managed field type at all:
// either Handle[X] (1 slot) or [N]Handle[X] (N slots).
func managedSlotCount(t reflect.Type) (int, bool) {
	if isHandleType(t) {
		return 1, true
	}
	if t.Kind() == reflect.Array && isHandleType(t.Elem()) {
		return t.Len(), true
	}

	return 0, false
}

// Destructor registers the cleanup function run on a value of T when
// its last reference (or its whole cycle) is reclaimed. fn receives a
// pointer to the in-place T value; it is optional — a type with no
// cleanup beyond dropping its own managed fields need not call this.
func (b *Builder) Destructor(fn func(unsafe.Pointer)) *Builder {
	b.destroy = fn
	return b
}

// handleSize is the size of a Handle[U], the same for every U: Handle[U]
// is always struct{ rec *header }, one pointer word of the target
// architecture.
const handleSize = unsafe.Sizeof(uintptr(0))

// sealFor looks up (sealing if necessary) the Meta for typ. allocate
// calls this on every Make[T] call; sealing is idempotent and cached so
// it costs nothing per instance after the first.
//
// typ must have been registered with For[typ]() first, even if it has
// no managed fields to add with Field — that call is what records the
// type as known to this package at all. Without it, sealFor has no way
// to tell "legitimately has zero managed fields" apart from "nobody
// ever declared this type's schema," so it panics rather than guess.
func sealFor(typ reflect.Type) *Meta {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if m, ok := sealedMeta[typ]; ok {
		return m
	}

	b, ok := builders[typ]
	if !ok {
		panic(errors.AssertionFailedf(
			"memory: %s has no registered schema; call memory.For[%s]() before allocating it, even if it has no managed fields",
			typ, typ))
	}

	m := &Meta{name: typ.String(), sealed: true, members: b.members, destroy: b.destroy}
	sealedMeta[typ] = m

	return m
}
