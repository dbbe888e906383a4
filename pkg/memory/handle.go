package memory

import (
	"github.com/cockroachdb/errors"
)

// Handle is a strong smart reference to a record allocated through a
// Context. Every instantiation Handle[U] for any U shares the identical
// one-word layout struct{ rec *header } — that uniformity is what lets
// the collector walk a record's managed slots without knowing each
// slot's U (see record.go's walkMembers and collect.go).
//
// Go has no destructors, so the usual copy/move/destroy contract of a
// smart pointer is realized through explicit calls instead: Set plays
// copy-assign, Move plays move-assign/move-construct, and Release plays
// the destructor. A zero Handle[T] is the null handle.
type Handle[T any] struct {
	rec *header
}

func bind[T any](h *header) Handle[T] {
	incref(h)
	return Handle[T]{rec: h}
}

// Bind returns a new strong handle to the same record h references,
// incrementing the refcount. Binding the null handle returns the null
// handle. This is the public counterpart to Set/Move/Release: where
// those mutate an existing Handle[T] in place, Bind hands the caller an
// independent handle that must be Released on its own.
func (h Handle[T]) Bind() Handle[T] {
	return bind[T](h.rec)
}

// IsNil reports whether the handle holds no record.
func (h Handle[T]) IsNil() bool {
	return h.rec == nil
}

// Set makes h reference other's record, applying the decrement rule to
// h's previous referent (if any). The new referent is incremented
// before the old one is decremented, so Set is safe when h and other
// alias the same record.
func (h *Handle[T]) Set(other Handle[T]) {
	incref(other.rec)
	old := h.rec
	h.rec = other.rec
	decref(old)
}

// Move transfers other's referent into h without touching any
// refcount; other becomes the null handle. Moving a handle into itself
// is a no-op.
func (h *Handle[T]) Move(other *Handle[T]) {
	if h == other {
		return
	}

	old := h.rec
	h.rec = other.rec
	other.rec = nil
	decref(old)
}

// Release applies the decrement rule to h's referent and makes h null.
// This is the explicit stand-in for Handle's destructor; callers that
// want deterministic reclamation on the acyclic fast path should defer
// it.
func (h *Handle[T]) Release() {
	old := h.rec
	h.rec = nil
	decref(old)
}

// Deref returns a pointer to the referenced payload. It panics on a
// null handle rather than faulting on a nil payload pointer.
func (h Handle[T]) Deref() *T {
	if h.rec == nil {
		panic(errors.AssertionFailedf("memory: dereference of a null handle"))
	}

	return (*T)(h.rec.payload)
}

func incref(h *header) {
	if h != nil {
		h.refcount++
	}
}

// decref decrements h's refcount, and if the count reaches zero and the
// record is not currently sitting on a collector's unused scratch list,
// unlinks it and frees it immediately. The garbage guard prevents a
// record mid-reclamation from being unlinked and freed a second time by
// a sibling's destructor.
func decref(h *header) {
	if h == nil {
		return
	}

	h.refcount--
	if h.refcount == 0 && !h.garbage {
		remove(&h.link)
		free(h)
	}
}
