package memory

import (
	"reflect"
	"unsafe"
)

// header is the per-allocation control block. link must stay the first
// field: headerOf recovers a *header from the *node the list operations
// hand back, by reinterpreting a *node as a *header.
type header struct {
	link     node
	meta     *Meta
	refcount int32
	// garbage is true while this record sits on a collector's unused
	// scratch list. It suppresses the decrement rule's unlink+free side
	// effect so that a garbage record's destructor decrementing a sibling
	// garbage record cannot unlink/free that sibling a second time.
	garbage bool
	payload unsafe.Pointer
}

func headerOf(n *node) *header {
	return (*header)(unsafe.Pointer(n))
}

// allocate boxes value on the Go heap, builds its control block, seals
// (if needed) the schema for T, and links the block into registry
// immediately before sentinel. It does not touch refcount — bind does
// that, so a freshly allocated record starts at refcount 0 until a
// handle actually binds to it.
func allocate[T any](value T, sentinel *node) *header {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	meta := sealFor(typ)

	boxed := new(T)
	*boxed = value

	h := &header{meta: meta, payload: unsafe.Pointer(boxed)}
	insertBefore(&h.link, sentinel)

	return h
}

// free runs the type's destructor (if any), then automatically applies
// the decrement rule to every managed slot in the payload before
// dropping this package's reference to the boxed value. This automatic
// teardown of managed fields is what turns "drop a" into "drop a, which
// cascades into dropping b" for a simple a -> b chain with no cycles.
//
// This is the acyclic fast path only (decref calls it directly).
// Collect's reclaim phase does not: by the time a record is identified
// as garbage its outgoing edges have already been permanently and
// correctly accounted for by the earlier phases of that pass, so
// cascading here a second time would double-decrement anything a
// doomed record happens to still point at — including, in the worst
// case, a live survivor that has no other internal reference keeping
// it alive.
func free(h *header) {
	if h.meta.destroy != nil {
		h.meta.destroy(h.payload)
	}

	walkMembers(h, func(slot **header) {
		decref(*slot)
	})

	releasePayload(h)
}

// releasePayload drops rcgc's reference to the boxed value without
// running the destructor. Collect's phase 4 calls this in its second
// pass, after destructors for every doomed record have already run in
// the first pass — calling free here would run each destructor twice.
func releasePayload(h *header) {
	h.payload = nil
}

// walkMembers invokes fn once per managed slot in h's payload, in the
// order the schema's members were registered, passing a pointer to that
// slot (the *header it holds is nil for a null handle). fn must not
// mutate h's own membership in whatever list it is on; it may mutate
// the target's.
func walkMembers(h *header, fn func(slot **header)) {
	base := h.payload
	for _, m := range h.meta.members {
		for i := 0; i < m.SlotCount; i++ {
			addr := unsafe.Add(base, m.Offset+uintptr(i)*handleSize)
			fn((**header)(addr))
		}
	}
}
