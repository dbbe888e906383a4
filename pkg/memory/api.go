package memory

// Make allocates a new record holding value and returns a strong handle
// to it. The optional trailing ctx selects which Context owns the
// record; omitting it uses Default(). Go has no default arguments, so a
// trailing variadic stands in for that call shape.
//
// Go cannot express this as a method on *Context (generic methods are
// not allowed by the language), which is why Make is a free function
// taking the context explicitly rather than ctx.Make(value).
func Make[T any](value T, ctx ...*Context) Handle[T] {
	return makeIn(resolve(ctx), value)
}

// Collect runs one cycle-reclamation pass over ctx (or Default() if
// omitted). See Context.Collect for the algorithm.
func Collect(ctx ...*Context) Stats {
	return resolve(ctx).Collect()
}

func resolve(ctx []*Context) *Context {
	if len(ctx) > 0 && ctx[0] != nil {
		return ctx[0]
	}

	return Default()
}
