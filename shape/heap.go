package shape

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/morph/config"
)

// ---------------------------------------------------------------------------
// Heap: Allocation service and deterministic collection environment
// ---------------------------------------------------------------------------

// Heap owns every shape of one transition tree domain. It supplies the
// allocation service for transition tables, the runtime-wide full-table
// lock, interned names, and a deterministic mark/clear collection that
// stands in for a tracing collector: weak references to shapes not reachable
// from the registered roots are cleared, and the tables of live shapes are
// compacted.
//
// Collections run synchronously inside allocation calls. Code that
// allocates and then installs state must re-fetch the live state after the
// allocation; see TransitionsAccessor.
type Heap struct {
	cfg    *config.Config
	verify bool
	log    commonlog.Logger

	names   *NameTable
	special *SpecialNames

	// fullTableLock guards in-place reads and writes of published full
	// transition tables and their prototype sub-caches. Writers hold it
	// only around the minimal read-modify-write, never around allocation.
	fullTableLock sync.RWMutex

	mu       sync.Mutex // guards shapes, roots, weakRefs
	shapes   map[*Shape]struct{}
	roots    map[*Shape]struct{}
	weakRefs map[uint32]*WeakRef

	shapeID   atomic.Uint32
	objectID  atomic.Uint32
	weakRefID atomic.Uint32

	allocCount       atomic.Uint64
	collectRequested atomic.Bool
	collections      atomic.Uint64
	weakCleared      atomic.Uint64
}

// HeapStats holds counters from a heap's lifetime.
type HeapStats struct {
	Allocations     uint64 // allocation points hit (tables and caches)
	Collections     uint64
	WeakRefsCleared uint64
	LiveShapes      int
	LiveWeakRefs    int
}

// NewHeap creates a heap. A nil config means defaults.
func NewHeap(cfg *config.Config) *Heap {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Heap{
		cfg:      cfg,
		verify:   cfg.Heap.Verify,
		log:      commonlog.GetLogger("morph.heap"),
		names:    NewNameTable(),
		shapes:   make(map[*Shape]struct{}),
		roots:    make(map[*Shape]struct{}),
		weakRefs: make(map[uint32]*WeakRef),
	}
	h.special = newSpecialNames(h.names)
	h.weakRefID.Store(0)
	return h
}

// Config returns the heap's configuration.
func (h *Heap) Config() *config.Config { return h.cfg }

// Names returns the heap's name table.
func (h *Heap) Names() *NameTable { return h.names }

// Special returns the well-known transition marker names.
func (h *Heap) Special() *SpecialNames { return h.special }

// Intern is shorthand for Names().Intern.
func (h *Heap) Intern(s string) *Name { return h.names.Intern(s) }

// ---------------------------------------------------------------------------
// Shape and object construction
// ---------------------------------------------------------------------------

// NewRootShape creates an empty shape and registers it as a root.
func (h *Heap) NewRootShape() *Shape {
	s := h.newShape(nil, nil)
	h.AddRoot(s)
	return s
}

// NewShape derives a shape from parent by appending one descriptor. The new
// shape is not yet connected to the tree; use a TransitionsAccessor's Insert
// (or Heap.Transition) for that.
func (h *Heap) NewShape(parent *Shape, key *Name, kind PropertyKind,
	attributes PropertyAttributes) *Shape {
	descriptors := make([]Descriptor, len(parent.descriptors)+1)
	copy(descriptors, parent.descriptors)
	descriptors[len(parent.descriptors)] = Descriptor{
		Key:     key,
		Details: PropertyDetails{Kind: kind, Attributes: attributes},
	}
	return h.newShape(descriptors, parent.prototype)
}

// NewSpecialShape derives a shape from parent without changing the property
// layout, as the target of a special (non-property) transition.
func (h *Heap) NewSpecialShape(parent *Shape) *Shape {
	return h.newShape(parent.descriptors, parent.prototype)
}

func (h *Heap) newShape(descriptors []Descriptor, proto *Object) *Shape {
	s := &Shape{
		id:          h.shapeID.Add(1),
		heap:        h,
		descriptors: descriptors,
		prototype:   proto,
	}
	h.mu.Lock()
	h.shapes[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// NewObject creates an opaque heap object usable as a prototype identity.
func (h *Heap) NewObject() *Object {
	return &Object{id: h.objectID.Add(1)}
}

// Transition derives a child shape for (key, kind, attributes) and records
// the edge on parent. The single-structural-writer contract of Insert
// applies.
func (h *Heap) Transition(parent *Shape, key *Name, kind PropertyKind,
	attributes PropertyAttributes, flag TransitionFlag) *Shape {
	var child *Shape
	if flag == SpecialTransition {
		child = h.NewSpecialShape(parent)
	} else {
		child = h.NewShape(parent, key, kind, attributes)
	}
	NewTransitionsAccessor(h, parent, false).Insert(key, child, flag)
	return child
}

// AddRoot registers a shape as strongly reachable.
func (h *Heap) AddRoot(s *Shape) {
	h.mu.Lock()
	h.roots[s] = struct{}{}
	h.mu.Unlock()
}

// RemoveRoot drops a shape from the root set. The shape survives the next
// collection only if it is reachable from another root.
func (h *Heap) RemoveRoot(s *Shape) {
	h.mu.Lock()
	delete(h.roots, s)
	h.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// makeWeakRef creates and registers a weak reference to target. Not an
// allocation point: it never triggers a collection.
func (h *Heap) makeWeakRef(target *Shape) *WeakRef {
	wr := &WeakRef{id: h.weakRefID.Add(1), target: target}
	h.mu.Lock()
	h.weakRefs[wr.id] = wr
	h.mu.Unlock()
	return wr
}

// newTransitionTable returns a zero-initialized table with nof live slots
// and room for nof+slack entries. Allocation is a collection point.
func (h *Heap) newTransitionTable(nof, slack int) *TransitionTable {
	h.maybeCollect()
	return &TransitionTable{
		entries: make([]TransitionEntry, nof+slack),
		nof:     nof,
	}
}

// newProtoTransitions returns an empty prototype transition cache with the
// given capacity. Allocation is a collection point.
func (h *Heap) newProtoTransitions(capacity int) *protoTransitions {
	h.maybeCollect()
	return &protoTransitions{entries: make([]*WeakRef, capacity)}
}

// RequestCollectionOnNextAllocation arms a one-shot collection at the next
// allocation point. Used to exercise the reload-after-allocation paths
// deterministically.
func (h *Heap) RequestCollectionOnNextAllocation() {
	h.collectRequested.Store(true)
}

func (h *Heap) maybeCollect() {
	n := h.allocCount.Add(1)
	if h.collectRequested.CompareAndSwap(true, false) {
		h.Collect()
		return
	}
	if interval := h.cfg.Heap.GCStressInterval; interval > 0 && n%uint64(interval) == 0 {
		h.Collect()
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect runs a synchronous mark/clear pass: mark shapes reachable from
// the roots through strong references (back pointers, migration targets),
// clear every weak reference whose target is unmarked, drop dead shapes,
// then compact the published tables of live shapes so cleared edges do not
// occupy live slots. Prototype sub-cache entries are cleared but left in
// place; PutPrototypeTransition compacts them on demand.
func (h *Heap) Collect() {
	start := time.Now()

	h.mu.Lock()
	marked := make(map[*Shape]struct{}, len(h.shapes))
	stack := make([]*Shape, 0, len(h.roots))
	for s := range h.roots {
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := marked[s]; ok {
			continue
		}
		marked[s] = struct{}{}
		if parent := s.backPointer; parent != nil {
			stack = append(stack, parent)
		}
		raw := s.rawTransitions()
		if raw.encoding == EncodingMigrationTarget {
			stack = append(stack, raw.migrationTarget)
		}
		// Table handles are strong but their edge targets and prototype
		// sub-cache entries are weak; nothing else to trace.
	}

	cleared := 0
	for id, wr := range h.weakRefs {
		target := wr.Get()
		if target == nil {
			delete(h.weakRefs, id)
			continue
		}
		if _, ok := marked[target]; !ok {
			wr.Clear()
			delete(h.weakRefs, id)
			cleared++
		}
	}

	swept := 0
	for s := range h.shapes {
		if _, ok := marked[s]; !ok {
			delete(h.shapes, s)
			swept++
		}
	}
	h.mu.Unlock()

	if cleared > 0 {
		h.compactTables(marked)
	}

	h.collections.Add(1)
	h.weakCleared.Add(uint64(cleared))
	h.log.Debugf("collection: %d shapes swept, %d weak refs cleared (%s)",
		swept, cleared, time.Since(start))
}

// compactTables removes cleared edges from the published tables of live
// shapes, shifting survivors down in order and reducing the stored count.
func (h *Heap) compactTables(marked map[*Shape]struct{}) {
	h.fullTableLock.Lock()
	defer h.fullTableLock.Unlock()

	for s := range marked {
		raw := s.rawTransitions()
		if raw.encoding != EncodingFullTransitionTable {
			continue
		}
		table := raw.table
		live := 0
		for i := 0; i < table.nof; i++ {
			if table.entries[i].target.IsAlive() {
				if live != i {
					table.entries[live] = table.entries[i]
				}
				live++
			}
		}
		for i := live; i < table.nof; i++ {
			table.entries[i] = TransitionEntry{}
		}
		table.nof = live
	}
}

// Stats returns lifetime counters.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	liveShapes := len(h.shapes)
	liveWeakRefs := len(h.weakRefs)
	h.mu.Unlock()
	return HeapStats{
		Allocations:     h.allocCount.Load(),
		Collections:     h.collections.Load(),
		WeakRefsCleared: h.weakCleared.Load(),
		LiveShapes:      liveShapes,
		LiveWeakRefs:    liveWeakRefs,
	}
}

// ---------------------------------------------------------------------------
// Growth policy and assertions
// ---------------------------------------------------------------------------

// slackForArraySize computes the extra capacity reserved when growing an
// array of oldSize live entries, bounded by the remaining headroom below
// limit.
func slackForArraySize(oldSize, limit int) int {
	maxSlack := limit - oldSize
	if oldSize < 4 {
		if maxSlack < 1 {
			return maxSlack
		}
		return 1
	}
	if half := oldSize / 2; half < maxSlack {
		return half
	}
	return maxSlack
}

// assert panics on misuse when verification is enabled. Misuse is a
// programming defect, not a reportable runtime condition.
func (h *Heap) assert(cond bool, msg string) {
	if h.verify && !cond {
		panic("shape: " + msg)
	}
}

// verifySorted runs the exhaustive table scan when verification is enabled.
func (h *Heap) verifySorted(t *TransitionTable) {
	if h.verify && !t.isSortedNoDuplicates() {
		panic("shape: transition table is unsorted or contains duplicates")
	}
}
