package shape

import (
	"sync"
	"testing"
)

func TestFirstSimpleInsertUsesInlineEdge(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	a := h.Intern("a")
	child := h.NewShape(root, a, KindData, AttrNone)
	h.AddRoot(child)

	NewTransitionsAccessor(h, root, false).Insert(a, child, SimplePropertyTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingWeakRef {
		t.Fatalf("expected inline weak-ref encoding, got %s", acc.Encoding())
	}
	if acc.NumberOfTransitions() != 1 {
		t.Errorf("expected 1 transition, got %d", acc.NumberOfTransitions())
	}
	if got := acc.SearchTransition(a, KindData, AttrNone); got != child {
		t.Errorf("search returned %v, want %v", got, child)
	}
	if !acc.HasSimpleTransitionTo(child) {
		t.Error("HasSimpleTransitionTo should report the inline target")
	}
	if child.BackPointer() != root {
		t.Error("Insert should set the child's back pointer")
	}
}

func TestFirstSpecialInsertAllocatesTable(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	frozen := h.Special().Frozen
	child := h.NewSpecialShape(root)
	h.AddRoot(child)

	NewTransitionsAccessor(h, root, false).Insert(frozen, child, SpecialTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingFullTransitionTable {
		t.Fatalf("special transitions require a full table, got %s", acc.Encoding())
	}
	if acc.NumberOfTransitions() != 1 {
		t.Errorf("expected 1 transition, got %d", acc.NumberOfTransitions())
	}
	if got := acc.SearchSpecial(frozen); got != child {
		t.Errorf("SearchSpecial returned %v, want %v", got, child)
	}
}

func TestInlineOverwriteStaysInline(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	a := h.Intern("a")
	first := h.NewShape(root, a, KindData, AttrNone)
	h.AddRoot(first)
	NewTransitionsAccessor(h, root, false).Insert(a, first, SimplePropertyTransition)

	// A second shape for the identical tuple replaces the edge in place
	// without allocating a table.
	second := h.NewShape(root, a, KindData, AttrNone)
	h.AddRoot(second)
	before := h.Stats().Allocations
	NewTransitionsAccessor(h, root, false).Insert(a, second, SimplePropertyTransition)

	if got := h.Stats().Allocations; got != before {
		t.Errorf("identical-tuple overwrite should not allocate, %d -> %d", before, got)
	}
	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingWeakRef {
		t.Fatalf("expected inline encoding after overwrite, got %s", acc.Encoding())
	}
	if got := acc.SearchTransition(a, KindData, AttrNone); got != second {
		t.Errorf("search returned %v, want the replacement %v", got, second)
	}
}

func TestSecondInsertBuildsSortedTable(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	childA := addProperty(h, root, "a", AttrNone)
	childB := addProperty(h, root, "b", AttrNone)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingFullTransitionTable {
		t.Fatalf("expected full table after second insert, got %s", acc.Encoding())
	}
	if acc.NumberOfTransitions() != 2 {
		t.Fatalf("expected 2 transitions, got %d", acc.NumberOfTransitions())
	}

	childC := addProperty(h, root, "c", AttrNone)
	acc = NewTransitionsAccessor(h, root, false)
	if acc.NumberOfTransitions() != 3 {
		t.Fatalf("expected 3 transitions, got %d", acc.NumberOfTransitions())
	}
	if !acc.table().isSortedNoDuplicates() {
		t.Error("table should stay sorted across inserts")
	}

	for _, c := range []struct {
		key  string
		want *Shape
	}{{"a", childA}, {"b", childB}, {"c", childC}} {
		if got := acc.SearchTransition(h.Intern(c.key), KindData, AttrNone); got != c.want {
			t.Errorf("search %q returned %v, want %v", c.key, got, c.want)
		}
	}
	if got := acc.SearchTransition(h.Intern("absent"), KindData, AttrNone); got != nil {
		t.Errorf("absent key should miss, got %v", got)
	}
}

func TestOverwriteExistingTableEntry(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	addProperty(h, root, "a", AttrNone)
	addProperty(h, root, "b", AttrNone)

	a := h.Intern("a")
	replacement := h.NewShape(root, a, KindData, AttrNone)
	h.AddRoot(replacement)
	NewTransitionsAccessor(h, root, false).Insert(a, replacement, SimplePropertyTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.NumberOfTransitions() != 2 {
		t.Errorf("overwrite should not change the count, got %d", acc.NumberOfTransitions())
	}
	if got := acc.SearchTransition(a, KindData, AttrNone); got != replacement {
		t.Errorf("search returned %v, want the replacement %v", got, replacement)
	}
}

func TestInsertGrowthPreservesEntries(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	targets := make(map[string]*Shape, len(keys))
	for _, k := range keys {
		targets[k] = addProperty(h, root, k, AttrNone)
	}

	acc := NewTransitionsAccessor(h, root, false)
	if acc.NumberOfTransitions() != len(keys) {
		t.Fatalf("expected %d transitions, got %d", len(keys), acc.NumberOfTransitions())
	}
	if acc.table().Capacity() < len(keys) {
		t.Error("capacity should cover the live count")
	}
	for _, k := range keys {
		if got := acc.SearchTransition(h.Intern(k), KindData, AttrNone); got != targets[k] {
			t.Errorf("after growth, %q resolved to %v, want %v", k, got, targets[k])
		}
	}
}

func TestTransitionCountHardCap(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	for i := 0; i < MaxNumberOfTransitions; i++ {
		name := h.Intern(nameForIndex(i))
		child := h.NewShape(root, name, KindData, AttrNone)
		h.AddRoot(child)
		NewTransitionsAccessor(h, root, false).Insert(name, child, SimplePropertyTransition)
	}

	acc := NewTransitionsAccessor(h, root, false)
	if acc.NumberOfTransitions() != MaxNumberOfTransitions {
		t.Fatalf("expected %d transitions, got %d",
			MaxNumberOfTransitions, acc.NumberOfTransitions())
	}
	if acc.CanHaveMoreTransitions() {
		t.Error("CanHaveMoreTransitions should be false at the cap")
	}

	defer func() {
		if recover() == nil {
			t.Error("inserting past the cap should panic")
		}
	}()
	name := h.Intern("one-too-many")
	child := h.NewShape(root, name, KindData, AttrNone)
	NewTransitionsAccessor(h, root, false).Insert(name, child, SimplePropertyTransition)
}

// nameForIndex generates distinct property names without fmt in the hot loop.
func nameForIndex(i int) string {
	const digits = "0123456789"
	buf := [8]byte{'k'}
	n := 1
	for d := 1000; d >= 1; d /= 10 {
		buf[n] = digits[(i/d)%10]
		n++
	}
	return string(buf[:n])
}

func TestDictionaryShapeRefusesTransitions(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	root.MarkDictionary()
	if NewTransitionsAccessor(h, root, false).CanHaveMoreTransitions() {
		t.Error("dictionary-mode shapes must refuse new transitions")
	}
}

func TestClearedInlineEdgeReadsAsUninitialized(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	a := h.Intern("a")
	child := h.NewShape(root, a, KindData, AttrNone)
	// Deliberately not rooted; only the weak edge holds it.
	NewTransitionsAccessor(h, root, false).Insert(a, child, SimplePropertyTransition)

	h.Collect()

	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingUninitialized {
		t.Errorf("cleared inline edge should read as uninitialized, got %s", acc.Encoding())
	}
	if got := acc.SearchTransition(a, KindData, AttrNone); got != nil {
		t.Errorf("search through a cleared edge returned %v", got)
	}
	if acc.NumberOfTransitions() != 0 {
		t.Errorf("expected 0 transitions, got %d", acc.NumberOfTransitions())
	}
}

func TestInsertReloadsAfterInlineEdgeCleared(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	a := h.Intern("a")
	b := h.Intern("b")

	// Unrooted first child: the table allocation inside the second Insert
	// runs a collection that clears it mid-insert.
	childA := h.NewShape(root, a, KindData, AttrNone)
	NewTransitionsAccessor(h, root, false).Insert(a, childA, SimplePropertyTransition)

	childB := h.NewShape(root, b, KindData, AttrNone)
	h.AddRoot(childB)
	h.RequestCollectionOnNextAllocation()
	NewTransitionsAccessor(h, root, false).Insert(b, childB, SimplePropertyTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.Encoding() != EncodingFullTransitionTable {
		t.Fatalf("expected full table, got %s", acc.Encoding())
	}
	if acc.NumberOfTransitions() != 1 {
		t.Fatalf("cleared edge must not survive the insert, got %d transitions",
			acc.NumberOfTransitions())
	}
	if got := acc.SearchTransition(b, KindData, AttrNone); got != childB {
		t.Errorf("search b returned %v, want %v", got, childB)
	}
	if got := acc.SearchTransition(a, KindData, AttrNone); got != nil {
		t.Errorf("search a should miss after the collection, got %v", got)
	}
}

func TestInsertReloadsAfterTableShrink(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	childA := addProperty(h, root, "a", AttrNone)
	childB := addProperty(h, root, "b", AttrNone)
	childC := addProperty(h, root, "c", AttrNone)
	childD := addProperty(h, root, "d", AttrNone)

	table := fullTable(t, h, root)
	if table.numberOfTransitions() != 4 || table.Capacity() != 4 {
		t.Fatalf("setup expects a full 4-entry table, got %d/%d",
			table.numberOfTransitions(), table.Capacity())
	}

	// The fifth insert must grow. The growth allocation runs a collection
	// that clears b and c and compacts the old table, so the captured count
	// and insertion index are stale.
	h.RemoveRoot(childB)
	h.RemoveRoot(childC)
	h.RequestCollectionOnNextAllocation()

	e := h.Intern("e")
	childE := h.NewShape(root, e, KindData, AttrNone)
	h.AddRoot(childE)
	NewTransitionsAccessor(h, root, false).Insert(e, childE, SimplePropertyTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if acc.NumberOfTransitions() != 3 {
		t.Fatalf("expected 3 transitions after shrink+insert, got %d",
			acc.NumberOfTransitions())
	}
	if !acc.table().isSortedNoDuplicates() {
		t.Error("table should be sorted after shrink+insert")
	}
	for _, c := range []struct {
		key  string
		want *Shape
	}{{"a", childA}, {"d", childD}, {"e", childE}} {
		if got := acc.SearchTransition(h.Intern(c.key), KindData, AttrNone); got != c.want {
			t.Errorf("search %q returned %v, want %v", c.key, got, c.want)
		}
	}
	for _, key := range []string{"b", "c"} {
		if got := acc.SearchTransition(h.Intern(key), KindData, AttrNone); got != nil {
			t.Errorf("search %q should miss, got %v", key, got)
		}
	}
}

func TestForEachTransitionToVisitsRunInOrder(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	none := addProperty(h, root, "x", AttrNone)
	readonly := addProperty(h, root, "x", AttrReadOnly)
	dontenum := addProperty(h, root, "x", AttrDontEnum)
	addProperty(h, root, "y", AttrNone)

	var visited []*Shape
	NewTransitionsAccessor(h, root, false).ForEachTransitionTo(h.Intern("x"),
		func(s *Shape) { visited = append(visited, s) })

	want := []*Shape{none, readonly, dontenum}
	if len(visited) != len(want) {
		t.Fatalf("expected %d callbacks, got %d", len(want), len(visited))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("callback %d got %v, want %v", i, visited[i], want[i])
		}
	}
}

func TestExpectedTransitionKey(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	a := h.Intern("a")
	child := h.NewShape(root, a, KindData, AttrNone)
	h.AddRoot(child)
	NewTransitionsAccessor(h, root, false).Insert(a, child, SimplePropertyTransition)

	acc := NewTransitionsAccessor(h, root, false)
	if got := acc.ExpectedTransitionKey(); got != a {
		t.Errorf("ExpectedTransitionKey returned %v, want %v", got, a)
	}
	if got := acc.ExpectedTransitionTarget(); got != child {
		t.Errorf("ExpectedTransitionTarget returned %v, want %v", got, child)
	}

	// An attributed property is not eligible for the speculation fast path.
	other := h.NewRootShape()
	b := h.Intern("b")
	roChild := h.NewShape(other, b, KindData, AttrReadOnly)
	h.AddRoot(roChild)
	NewTransitionsAccessor(h, other, false).Insert(b, roChild, SimplePropertyTransition)

	acc = NewTransitionsAccessor(h, other, false)
	if got := acc.ExpectedTransitionKey(); got != nil {
		t.Errorf("attributed edge should not be expected, got %v", got)
	}
	if got := acc.ExpectedTransitionTarget(); got != nil {
		t.Errorf("attributed edge should have no expected target, got %v", got)
	}
}

func TestFindTransitionToDataProperty(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	plain := addProperty(h, root, "plain", AttrNone)
	addProperty(h, root, "guarded", AttrReadOnly)

	acc := NewTransitionsAccessor(h, root, false)
	if got := acc.FindTransitionToDataProperty(h.Intern("plain")); got != plain {
		t.Errorf("expected the plain data transition, got %v", got)
	}
	if got := acc.FindTransitionToDataProperty(h.Intern("guarded")); got != nil {
		t.Errorf("attributed property should not match, got %v", got)
	}
}

func TestHasIntegrityLevelTransitionTo(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	addProperty(h, root, "a", AttrNone)

	special := h.Special()
	frozen := h.Transition(root, special.Frozen, KindData, AttrNone, SpecialTransition)
	h.AddRoot(frozen)
	sealed := h.Transition(root, special.Sealed, KindData, AttrNone, SpecialTransition)
	h.AddRoot(sealed)

	acc := NewTransitionsAccessor(h, root, false)

	key, attrs, ok := acc.HasIntegrityLevelTransitionTo(frozen)
	if !ok || key != special.Frozen || attrs != AttrFrozen {
		t.Errorf("frozen edge: got (%v, %d, %t)", key, attrs, ok)
	}
	key, attrs, ok = acc.HasIntegrityLevelTransitionTo(sealed)
	if !ok || key != special.Sealed || attrs != AttrSealed {
		t.Errorf("sealed edge: got (%v, %d, %t)", key, attrs, ok)
	}
	if _, _, ok := acc.HasIntegrityLevelTransitionTo(root); ok {
		t.Error("unrelated shape should not be an integrity-level target")
	}
}

func TestMigrationTarget(t *testing.T) {
	h := newTestHeap()
	old := h.NewRootShape()
	replacement := h.NewRootShape()
	old.Deprecate()

	NewTransitionsAccessor(h, old, false).SetMigrationTarget(replacement)

	acc := NewTransitionsAccessor(h, old, false)
	if acc.Encoding() != EncodingMigrationTarget {
		t.Fatalf("expected migration-target encoding, got %s", acc.Encoding())
	}
	if got := acc.GetMigrationTarget(); got != replacement {
		t.Errorf("GetMigrationTarget returned %v, want %v", got, replacement)
	}
	if acc.NumberOfTransitions() != 0 {
		t.Errorf("migration target is not a transition, got %d", acc.NumberOfTransitions())
	}

	// A second set is silently ignored: the slot is no longer uninitialized.
	other := h.NewRootShape()
	acc.SetMigrationTarget(other)
	acc = NewTransitionsAccessor(h, old, false)
	if got := acc.GetMigrationTarget(); got != replacement {
		t.Errorf("second SetMigrationTarget should be a no-op, got %v", got)
	}

	// A real transition evicts the cached migration target.
	a := h.Intern("a")
	child := h.NewShape(old, a, KindData, AttrNone)
	h.AddRoot(child)
	NewTransitionsAccessor(h, old, false).Insert(a, child, SimplePropertyTransition)
	acc = NewTransitionsAccessor(h, old, false)
	if acc.Encoding() != EncodingWeakRef {
		t.Errorf("insert should replace the migration target, got %s", acc.Encoding())
	}
	if got := acc.GetMigrationTarget(); got != nil {
		t.Errorf("migration target should be gone, got %v", got)
	}
}

func TestPrototypeInfoSlot(t *testing.T) {
	h := newTestHeap()
	s := h.NewRootShape()
	info := "prototype metadata"

	if !s.SetPrototypeInfo(info) {
		t.Fatal("first SetPrototypeInfo on an empty slot should succeed")
	}
	if s.SetPrototypeInfo("other") {
		t.Error("second SetPrototypeInfo should be refused")
	}
	if got := s.PrototypeInfo(); got != info {
		t.Errorf("PrototypeInfo returned %v, want %v", got, info)
	}

	acc := NewTransitionsAccessor(h, s, false)
	if acc.Encoding() != EncodingPrototypeInfo {
		t.Fatalf("expected prototype-info encoding, got %s", acc.Encoding())
	}
	if got := acc.SearchTransition(h.Intern("a"), KindData, AttrNone); got != nil {
		t.Errorf("prototype-info slot holds no transitions, got %v", got)
	}
	if acc.NumberOfTransitions() != 0 {
		t.Errorf("expected 0 transitions, got %d", acc.NumberOfTransitions())
	}
}

func TestTraverseTransitionTreePreOrder(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()

	childA := addProperty(h, root, "a", AttrNone)
	childB := addProperty(h, root, "b", AttrNone)
	grandAB := addProperty(h, childA, "b", AttrNone)
	grandAC := addProperty(h, childA, "c", AttrNone)
	leaf := addProperty(h, grandAB, "c", AttrNone)

	var order []*Shape
	NewTransitionsAccessor(h, root, false).TraverseTransitionTree(func(s *Shape) {
		order = append(order, s)
	})

	if len(order) != 6 {
		t.Fatalf("expected 6 shapes, got %d", len(order))
	}
	if order[0] != root {
		t.Error("traversal must visit the root first")
	}
	index := make(map[*Shape]int, len(order))
	for i, s := range order {
		if _, dup := index[s]; dup {
			t.Fatalf("shape %d visited twice", s.ID())
		}
		index[s] = i
	}
	// Pre-order: every shape after its parent, and a parent's subtree is
	// contiguous.
	for _, pair := range [][2]*Shape{
		{root, childA}, {root, childB}, {childA, grandAB},
		{childA, grandAC}, {grandAB, leaf},
	} {
		if index[pair[0]] > index[pair[1]] {
			t.Errorf("shape %d visited before its parent %d",
				pair[1].ID(), pair[0].ID())
		}
	}
	if index[leaf] < index[grandAB] {
		t.Error("leaf must come after its parent")
	}
}

func TestTraverseIncludesPrototypeCacheTargets(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	addProperty(h, root, "a", AttrNone)
	addProperty(h, root, "b", AttrNone)

	proto := h.NewObject()
	protoShape := h.NewSpecialShape(root)
	protoShape.SetPrototype(proto)
	h.AddRoot(protoShape)
	NewTransitionsAccessor(h, root, false).PutPrototypeTransition(proto, protoShape)

	seen := false
	NewTransitionsAccessor(h, root, false).TraverseTransitionTree(func(s *Shape) {
		if s == protoShape {
			seen = true
		}
	})
	if !seen {
		t.Error("traversal should reach prototype-cache targets")
	}
}

func TestConcurrentReadersDuringOverwrite(t *testing.T) {
	h := newTestHeap()
	root := h.NewRootShape()
	b := h.Intern("b")

	addProperty(h, root, "a", AttrNone)
	initial := addProperty(h, root, "b", AttrNone)

	s1 := h.NewShape(root, b, KindData, AttrNone)
	s2 := h.NewShape(root, b, KindData, AttrNone)
	h.AddRoot(s1)
	h.AddRoot(s2)
	valid := map[*Shape]bool{initial: true, s1: true, s2: true}

	const iterations = 2000
	var wg sync.WaitGroup

	// One structural writer repeatedly overwriting the same tuple in place.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			target := s1
			if i%2 == 1 {
				target = s2
			}
			NewTransitionsAccessor(h, root, false).Insert(b, target, SimplePropertyTransition)
		}
	}()

	// Concurrent readers must observe a complete old or new edge, never a
	// torn one.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				acc := NewTransitionsAccessor(h, root, true)
				got := acc.SearchTransition(b, KindData, AttrNone)
				if got == nil || !valid[got] {
					t.Errorf("reader observed invalid target %v", got)
					return
				}
			}
		}()
	}

	wg.Wait()
}
