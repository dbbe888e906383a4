package memory

import (
	"testing"
	"unsafe"
)

type schemaLeaf struct {
	tag int
}

type schemaScalar struct {
	Next Handle[schemaLeaf]
	Tag  int
}

type schemaArray struct {
	Kids [3]Handle[schemaLeaf]
}

type schemaSealTwice struct {
	Next Handle[schemaLeaf]
}

func TestSchema_ScalarFieldOffsetAndSlotCount(t *testing.T) {
	Field[Handle[schemaLeaf]](For[schemaScalar](), unsafe.Offsetof(schemaScalar{}.Next), 1)

	var head node
	head.init()
	h := allocate(schemaScalar{Tag: 7}, &head)

	if len(h.meta.members) != 1 {
		t.Fatalf("expected 1 registered member, got %d", len(h.meta.members))
	}
	if h.meta.members[0].Offset != unsafe.Offsetof(schemaScalar{}.Next) {
		t.Errorf("unexpected offset %d", h.meta.members[0].Offset)
	}
	if h.meta.members[0].SlotCount != 1 {
		t.Errorf("expected slot count 1, got %d", h.meta.members[0].SlotCount)
	}
}

func TestSchema_ArrayFieldSlotCount(t *testing.T) {
	Field[[3]Handle[schemaLeaf]](For[schemaArray](), unsafe.Offsetof(schemaArray{}.Kids), len(schemaArray{}.Kids))

	var head node
	head.init()
	h := allocate(schemaArray{}, &head)

	if len(h.meta.members) != 1 || h.meta.members[0].SlotCount != 3 {
		t.Fatalf("expected one member with slot count 3, got %+v", h.meta.members)
	}
}

func TestSchema_OverlappingFieldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overlapping field registration")
		}
	}()

	type overlap struct {
		Next Handle[schemaLeaf]
	}

	Field[Handle[schemaLeaf]](For[overlap](), unsafe.Offsetof(overlap{}.Next), 1)
	Field[Handle[schemaLeaf]](For[overlap](), unsafe.Offsetof(overlap{}.Next), 1)
}

func TestSchema_NonHandleFieldTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a field whose type is not a Handle[_] or [N]Handle[_]")
		}
	}()

	type notManaged struct {
		Tag int
	}

	Field[int](For[notManaged](), unsafe.Offsetof(notManaged{}.Tag), 1)
}

func TestSchema_WrongSlotCountForFieldTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when the declared slot count does not match U's actual slot count")
		}
	}()

	type mismatched struct {
		Kids [3]Handle[schemaLeaf]
	}

	Field[[3]Handle[schemaLeaf]](For[mismatched](), unsafe.Offsetof(mismatched{}.Kids), 2)
}

func TestSchema_RegisterAfterAllocationPanics(t *testing.T) {
	Field[Handle[schemaLeaf]](For[schemaSealTwice](), unsafe.Offsetof(schemaSealTwice{}.Next), 1)

	var head node
	head.init()
	allocate(schemaSealTwice{}, &head)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when registering a field after the type was allocated")
		}
	}()

	For[schemaSealTwice]()
}

func TestSchema_TypeWithNoManagedFieldsHasEmptySchema(t *testing.T) {
	type plain struct {
		X, Y int
	}

	// plain has no managed fields, but still has to opt in once before
	// allocating it.
	For[plain]()

	var head node
	head.init()
	h := allocate(plain{X: 1, Y: 2}, &head)

	if len(h.meta.members) != 0 {
		t.Errorf("expected no managed members, got %+v", h.meta.members)
	}
}

func TestSchema_AllocatingUnregisteredTypePanics(t *testing.T) {
	type neverRegistered struct {
		X int
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic allocating a type whose schema was never declared")
		}
	}()

	var head node
	head.init()
	allocate(neverRegistered{}, &head)
}
