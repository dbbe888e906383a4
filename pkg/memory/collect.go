package memory

import (
	"github.com/cockroachdb/errors"
	"log/slog"
)

// makeIn allocates a new record holding value in ctx's registry and
// returns a strong handle to it, already contributing 1 to its
// refcount.
func makeIn[T any](ctx *Context, value T) Handle[T] {
	h := allocate(value, &ctx.registry)
	return bind[T](h)
}

// Collect runs one complete cycle-reclamation pass over ctx's registry:
// a four-phase trial deletion that finds and reclaims every record that
// is unreachable from any external handle, including records caught in
// reference cycles that the acyclic fast path can never free on its
// own.
//
// Calling a user destroy callback that allocates a new record through
// ctx (or any Context) during this pass is undefined behavior; this
// implementation does not defend against it.
func (ctx *Context) Collect() Stats {
	var stats Stats

	// Phase 1 — subtract internal references. Every managed slot in
	// every live record decrements its target's refcount by one. After
	// this loop, a record's refcount equals exactly the number of
	// external handles pointing at it.
	sentinel := &ctx.registry
	for p := sentinel.next; p != sentinel; p = p.next {
		h := headerOf(p)
		stats.Scanned++

		walkMembers(h, func(slot **header) {
			if target := *slot; target != nil {
				target.refcount--
			}
		})
	}

	// Phase 2 — partition. Every record left at refcount == 0 is
	// reachable only through the internal graph; move it to the unused
	// scratch list. Safe-iteration idiom: next is captured before a
	// possible remove() invalidates p's own links.
	var unused node
	unused.init()

	for p, next := sentinel.next, (*node)(nil); p != sentinel; p = next {
		next = p.next

		h := headerOf(p)
		if h.refcount == 0 {
			remove(p)
			h.garbage = true
			insertBefore(p, &unused)
			stats.Partitioned++
		}
	}

	// Phase 3 — restore and rescue. Walk the surviving registry; for
	// every managed slot, restore the +1 subtracted in phase 1, and if
	// the slot's target is currently on unused, it is transitively
	// reachable from a live root — splice it back onto the registry.
	// Rescued nodes are spliced in immediately before sentinel, which
	// this same forward traversal will still reach (p = p.next re-reads
	// the live list on every iteration), giving transitive rescue for
	// free: a node rescued this iteration gets its own outgoing slots
	// walked later in the same pass.
	for p := sentinel.next; p != sentinel; p = p.next {
		h := headerOf(p)

		walkMembers(h, func(slot **header) {
			target := *slot
			if target == nil {
				return
			}

			if target.garbage {
				remove(&target.link)
				target.garbage = false
				insertBefore(&target.link, sentinel)
				stats.Rescued++
			}

			target.refcount++
		})
	}

	// Phase 4 — reclaim. Snapshot every record still on unused, then
	// destroy all of them before freeing any of them: a destructor may
	// legitimately read a structurally-valid (not-yet-freed) payload of
	// another record in the same dead cycle.
	doomed := make([]*header, 0, stats.Partitioned-stats.Rescued)
	for p := unused.next; p != &unused; p = p.next {
		doomed = append(doomed, headerOf(p))
	}

	for _, h := range doomed {
		ctx.runDestructor(h, &stats)
	}

	for _, h := range doomed {
		h.garbage = false
		releasePayload(h)
		stats.Reclaimed++
	}

	ctx.lifetime.merge(stats)
	ctx.logger.Debug("memory: collect",
		slog.String("context", ctx.name),
		slog.Int("scanned", stats.Scanned),
		slog.Int("partitioned", stats.Partitioned),
		slog.Int("rescued", stats.Rescued),
		slog.Int("reclaimed", stats.Reclaimed),
	)

	return stats
}

// runDestructor invokes h's destructor, if any, recovering a panic so
// that phase 4's second pass can still free every record on unused even
// when user cleanup code fails. A leaked side effect from a failed
// destructor is preferable to leaking the block itself.
func (ctx *Context) runDestructor(h *header, stats *Stats) {
	if h.meta.destroy == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			stats.DestructorPanics++
			err := errors.Wrapf(errors.Newf("%v", r), "memory: destructor for %s panicked", h.meta.name)
			ctx.logger.Error("memory: recovered destructor panic during collect",
				slog.String("context", ctx.name),
				slog.String("type", h.meta.name),
				slog.Any("error", err),
			)
		}
	}()

	h.meta.destroy(h.payload)
}
