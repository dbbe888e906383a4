package memory

// Intrusive, sentinel-terminated circular doubly-linked list. node must
// be the first field of any struct that wants to live on one of these
// lists — headerOf relies on that layout to recover the containing
// *header from a *node.

type node struct {
	prev, next *node
}

// init makes n an empty sentinel: prev == next == n.
func (n *node) init() {
	n.prev = n
	n.next = n
}

func (n *node) empty() bool {
	return n.next == n
}

// insertBefore splices n into the list immediately before anchor.
func insertBefore(n, anchor *node) {
	n.prev = anchor.prev
	n.next = anchor
	anchor.prev.next = n
	anchor.prev = n
}

// remove unlinks n from whatever list it currently sits on and makes it
// a singleton list again, so a later insertBefore on the same node does
// not corrupt the list it was removed from.
func remove(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = n
	n.next = n
}
