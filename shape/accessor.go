package shape

// ---------------------------------------------------------------------------
// TransitionsAccessor: The encoding state machine
// ---------------------------------------------------------------------------

// TransitionFlag tells Insert whether the new edge is a plain property
// addition, eligible for inline weak-reference storage, or a special
// transition that always requires a full table.
type TransitionFlag uint8

const (
	SimplePropertyTransition TransitionFlag = iota
	SpecialTransition
)

// TransitionsAccessor encapsulates access to the various ways a shape can
// store its outgoing transitions. It snapshots the transitions slot on
// creation; the snapshot goes stale when the slot is replaced or when a
// collection clears dead edges, so an accessor may serve several read-only
// operations in a row but must be discarded and recreated after Insert.
//
// Structural mutation assumes a single in-flight writer per shape; callers
// serialize Insert calls on one shape themselves. An accessor created with
// concurrent=true is for reader threads that do not own the shape: it takes
// the shared full-table lock on reads and must never be used to Insert.
type TransitionsAccessor struct {
	heap       *Heap
	shape      *Shape
	raw        *transitionSlot
	encoding   Encoding
	concurrent bool
}

// NewTransitionsAccessor creates an accessor for shape and snapshots its
// current encoding.
func NewTransitionsAccessor(heap *Heap, shape *Shape, concurrent bool) *TransitionsAccessor {
	a := &TransitionsAccessor{heap: heap, shape: shape, concurrent: concurrent}
	a.reload()
	return a
}

// reload re-fetches the live transitions slot. Mandatory after every
// allocating call: an allocation can run a collection that clears weak edges
// and compacts tables, invalidating counts and indices captured before it.
func (a *TransitionsAccessor) reload() {
	a.raw = a.shape.rawTransitions()
	a.encoding = slotEncoding(a.raw)
}

// Encoding returns the encoding observed at the last (re)load.
func (a *TransitionsAccessor) Encoding() Encoding { return a.encoding }

// Shape returns the shape this accessor reads.
func (a *TransitionsAccessor) Shape() *Shape { return a.shape }

func (a *TransitionsAccessor) table() *TransitionTable { return a.raw.table }

// simpleTransition resolves the inline edge target, or nil if the encoding
// is not EncodingWeakRef or the edge was cleared.
func (a *TransitionsAccessor) simpleTransition() *Shape {
	if a.raw.encoding != EncodingWeakRef {
		return nil
	}
	return a.raw.weak.Get()
}

// simpleTransitionKey returns the property key of an inline transition,
// read from the target's most recently added descriptor.
func simpleTransitionKey(target *Shape) *Name {
	last, ok := target.LastAdded()
	if !ok {
		panic("shape: simple transition target has no descriptors")
	}
	return last.Key
}

// isMatchingShape reports whether target is the transition reached from its
// parent by adding (name, kind, attributes).
func isMatchingShape(target *Shape, name *Name, kind PropertyKind,
	attributes PropertyAttributes) bool {
	last, ok := target.LastAdded()
	if !ok {
		return false
	}
	return last.Key == name && last.Details.Kind == kind &&
		last.Details.Attributes == attributes
}

// replaceTransitions publishes a new slot payload with a release-store and
// re-fetches the accessor's snapshot.
func (a *TransitionsAccessor) replaceTransitions(slot *transitionSlot) {
	if a.heap.verify && a.encoding == EncodingFullTransitionTable &&
		slot.encoding == EncodingFullTransitionTable {
		a.checkNewTransitionsAreConsistent(a.raw.table, slot.table)
	}
	a.shape.setRawTransitions(slot)
	a.reload()
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

// Insert records a new transition from the accessor's shape to target,
// extending the storage as necessary. The accessor must not be used for
// anything else afterwards; create a fresh one.
func (a *TransitionsAccessor) Insert(key *Name, target *Shape, flag TransitionFlag) {
	h := a.heap
	h.assert(!a.concurrent, "Insert on a concurrent accessor")
	h.assert(a.encoding != EncodingPrototypeInfo, "Insert on a prototype-info shape")
	target.setBackPointer(a.shape)

	// If the shape doesn't have any transitions at all yet, install the
	// new one.
	if a.encoding == EncodingUninitialized || a.encoding == EncodingMigrationTarget {
		if flag == SimplePropertyTransition {
			a.replaceTransitions(weakRefSlot(h.makeWeakRef(target)))
			return
		}
		// The flag requires a full table; allocate a one-entry one.
		result := h.newTransitionTable(1, 0)
		a.reload()
		result.set(0, key, h.makeWeakRef(target))
		a.replaceTransitions(tableSlot(result))
		return
	}

	if a.encoding == EncodingWeakRef {
		simple := a.simpleTransition()

		if flag == SimplePropertyTransition {
			oldKey := simpleTransitionKey(simple)
			oldDetails := simple.lastDetails()
			newDetails := TargetDetails(key, target)
			if oldKey == key && oldDetails == newDetails {
				a.replaceTransitions(weakRefSlot(h.makeWeakRef(target)))
				return
			}
		}

		// Otherwise allocate a full table with slack for a second entry.
		result := h.newTransitionTable(1, 1)
		// Reload: the allocation might have cleared the inline edge.
		a.reload()
		simple = a.simpleTransition()
		if simple == nil {
			result.set(0, key, h.makeWeakRef(target))
			a.replaceTransitions(tableSlot(result))
			return
		}

		// Seed the surviving inline edge at index 0, then splice in the
		// new one at its sorted position.
		result.set(0, simpleTransitionKey(simple), h.makeWeakRef(simple))

		var insertionIndex int
		var index int
		if flag == SpecialTransition {
			index = result.searchSpecial(key, &insertionIndex)
		} else {
			details := TargetDetails(key, target)
			index = result.search(details.Kind, key, details.Attributes, &insertionIndex)
		}
		h.assert(index == notFound, "duplicate transition tuple")

		result.setNumberOfTransitions(2)
		if insertionIndex == 0 {
			// The new transition goes to index 0; move the original one up.
			result.set(1, simpleTransitionKey(simple), h.makeWeakRef(simple))
		}
		result.setKey(insertionIndex, key)
		result.setRawTarget(insertionIndex, h.makeWeakRef(target))

		h.verifySorted(result)
		a.replaceTransitions(tableSlot(result))
		return
	}

	// At this point the shape has a full transition table.
	isSpecial := flag == SpecialTransition
	h.assert(isSpecial == IsSpecialTransition(key), "transition flag does not match key")
	details := emptyDetails()
	if !isSpecial {
		details = TargetDetails(key, target)
	}

	table := a.table()
	numberOfTransitions := table.numberOfTransitions()

	var insertionIndex int
	var index int
	if isSpecial {
		index = table.searchSpecial(key, &insertionIndex)
	} else {
		index = table.search(details.Kind, key, details.Attributes, &insertionIndex)
	}

	// An existing entry: overwrite its target weakly in place. This is the
	// only mutation that can race with concurrent readers, hence the
	// exclusive lock around the single slot store.
	if index != notFound {
		h.fullTableLock.Lock()
		table.setRawTarget(index, h.makeWeakRef(target))
		h.fullTableLock.Unlock()
		return
	}

	newNOF := numberOfTransitions + 1
	// Unconditional hard cap: exceeding it is an unrecoverable invariant
	// violation.
	if newNOF > MaxNumberOfTransitions {
		panic("shape: transition count would exceed MaxNumberOfTransitions")
	}

	// With spare capacity, shift the tail rightward and write in place.
	if newNOF <= table.Capacity() {
		h.fullTableLock.Lock()
		table.setNumberOfTransitions(newNOF)
		for i := numberOfTransitions; i > insertionIndex; i-- {
			table.setKey(i, table.GetKey(i-1))
			table.setRawTarget(i, table.getRawTarget(i-1))
		}
		table.setKey(insertionIndex, key)
		table.setRawTarget(insertionIndex, h.makeWeakRef(target))
		h.fullTableLock.Unlock()
		h.verifySorted(table)
		return
	}

	// We're going to need a bigger table.
	result := h.newTransitionTable(newNOF,
		slackForArraySize(numberOfTransitions, MaxNumberOfTransitions))

	// The old table may have shrunk during the allocation above as its
	// edges were weakly held. Recompute the count and insertion index from
	// the current state instead of trusting the captured values.
	a.reload()
	table = a.table()
	if table.numberOfTransitions() != numberOfTransitions {
		if isSpecial {
			index = table.searchSpecial(key, &insertionIndex)
		} else {
			index = table.search(details.Kind, key, details.Attributes, &insertionIndex)
		}
		if index != notFound {
			panic("shape: tuple appeared in a shrunken transition table")
		}
		numberOfTransitions = table.numberOfTransitions()
		newNOF = numberOfTransitions + 1
		result.setNumberOfTransitions(newNOF)
	}

	if table.hasPrototypeTransitions() {
		result.setPrototypeTransitions(table.getPrototypeTransitions())
	}

	for i := 0; i < insertionIndex; i++ {
		result.set(i, table.GetKey(i), table.getRawTarget(i))
	}
	result.set(insertionIndex, key, h.makeWeakRef(target))
	for i := insertionIndex; i < numberOfTransitions; i++ {
		result.set(i+1, table.GetKey(i), table.getRawTarget(i))
	}

	h.verifySorted(result)
	a.replaceTransitions(tableSlot(result))
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// SearchTransition returns the target reached from this shape by adding
// (name, kind, attributes), or nil.
func (a *TransitionsAccessor) SearchTransition(name *Name, kind PropertyKind,
	attributes PropertyAttributes) *Shape {
	switch a.encoding {
	case EncodingPrototypeInfo, EncodingUninitialized, EncodingMigrationTarget:
		return nil
	case EncodingWeakRef:
		target := a.raw.weak.Get()
		if target == nil || !isMatchingShape(target, name, kind, attributes) {
			return nil
		}
		return target
	case EncodingFullTransitionTable:
		if a.concurrent {
			a.heap.fullTableLock.RLock()
			defer a.heap.fullTableLock.RUnlock()
		}
		return a.table().searchAndGetTarget(kind, name, attributes)
	}
	return nil
}

// SearchSpecial returns the target of the special transition keyed by
// symbol, or nil. Only full tables store special transitions.
func (a *TransitionsAccessor) SearchSpecial(symbol *Name) *Shape {
	if a.encoding != EncodingFullTransitionTable {
		return nil
	}
	if a.concurrent {
		a.heap.fullTableLock.RLock()
		defer a.heap.fullTableLock.RUnlock()
	}
	table := a.table()
	transition := table.searchSpecial(symbol, nil)
	if transition == notFound {
		return nil
	}
	return table.GetTarget(transition)
}

// FindTransitionToDataProperty is the common-case search: a data property
// with no attributes.
func (a *TransitionsAccessor) FindTransitionToDataProperty(name *Name) *Shape {
	return a.SearchTransition(name, KindData, AttrNone)
}

// ForEachTransitionTo invokes callback once per live edge keyed by name, in
// (kind, attributes) order. The callback must not mutate transitions.
func (a *TransitionsAccessor) ForEachTransitionTo(name *Name, callback func(*Shape)) {
	switch a.encoding {
	case EncodingPrototypeInfo, EncodingUninitialized, EncodingMigrationTarget:
		return
	case EncodingWeakRef:
		target := a.raw.weak.Get()
		if target == nil {
			return
		}
		if last, ok := target.LastAdded(); ok && last.Key == name {
			callback(target)
		}
	case EncodingFullTransitionTable:
		if a.concurrent {
			a.heap.fullTableLock.RLock()
			defer a.heap.fullTableLock.RUnlock()
		}
		a.table().forEachTransitionTo(name, callback)
	}
}

// NumberOfTransitions returns the number of outgoing edges.
func (a *TransitionsAccessor) NumberOfTransitions() int {
	switch a.encoding {
	case EncodingWeakRef:
		return 1
	case EncodingFullTransitionTable:
		if a.concurrent {
			a.heap.fullTableLock.RLock()
			defer a.heap.fullTableLock.RUnlock()
		}
		return a.table().numberOfTransitions()
	}
	return 0
}

// GetKey returns the key of edge i.
func (a *TransitionsAccessor) GetKey(i int) *Name {
	if a.encoding == EncodingWeakRef {
		return simpleTransitionKey(a.raw.weak.Get())
	}
	return a.table().GetKey(i)
}

// GetTarget resolves the target of edge i; nil if the edge was cleared.
func (a *TransitionsAccessor) GetTarget(i int) *Shape {
	if a.encoding == EncodingWeakRef {
		return a.raw.weak.Get()
	}
	return a.table().GetTarget(i)
}

// CanHaveMoreTransitions reports whether another edge may be recorded:
// always false for dictionary-mode shapes, otherwise true until a full
// table reaches MaxNumberOfTransitions.
func (a *TransitionsAccessor) CanHaveMoreTransitions() bool {
	if a.shape.IsDictionary() {
		return false
	}
	if a.encoding == EncodingFullTransitionTable {
		return a.table().numberOfTransitions() < MaxNumberOfTransitions
	}
	return true
}

// HasSimpleTransitionTo reports whether shape is the single inline edge
// target.
func (a *TransitionsAccessor) HasSimpleTransitionTo(shape *Shape) bool {
	if a.encoding != EncodingWeakRef {
		return false
	}
	return a.raw.weak.Get() == shape
}

// ExpectedTransitionKey peeks at the inline edge and returns its key if it
// is a plain data property with no attributes, else nil. Used by fast paths
// that speculate on the next property addition.
func (a *TransitionsAccessor) ExpectedTransitionKey() *Name {
	if a.encoding != EncodingWeakRef {
		return nil
	}
	target := a.raw.weak.Get()
	if target == nil {
		return nil
	}
	last, ok := target.LastAdded()
	if !ok || last.Details.Kind != KindData || last.Details.Attributes != AttrNone {
		return nil
	}
	return last.Key
}

// ExpectedTransitionTarget returns the inline edge target paired with
// ExpectedTransitionKey.
func (a *TransitionsAccessor) ExpectedTransitionTarget() *Shape {
	if a.ExpectedTransitionKey() == nil {
		return nil
	}
	return a.raw.weak.Get()
}

// HasIntegrityLevelTransitionTo reports whether to is reached from this
// shape by one of the integrity-level special transitions, and if so which
// marker and attribute level.
func (a *TransitionsAccessor) HasIntegrityLevelTransitionTo(to *Shape) (*Name, PropertyAttributes, bool) {
	special := a.heap.Special()
	switch {
	case a.SearchSpecial(special.Frozen) == to:
		return special.Frozen, AttrFrozen, true
	case a.SearchSpecial(special.Sealed) == to:
		return special.Sealed, AttrSealed, true
	case a.SearchSpecial(special.Nonextensible) == to:
		return special.Nonextensible, AttrNone, true
	}
	return nil, AttrNone, false
}

// ---------------------------------------------------------------------------
// Migration targets
// ---------------------------------------------------------------------------

// SetMigrationTarget caches the migration target of a deprecated shape in
// its empty transitions slot. Only effective while the encoding is
// uninitialized; a no-op otherwise, so the target is set at most once.
func (a *TransitionsAccessor) SetMigrationTarget(migrationTarget *Shape) {
	if a.encoding != EncodingUninitialized {
		return
	}
	a.heap.assert(a.shape.IsDeprecated(), "migration target on a live shape")
	a.replaceTransitions(migrationTargetSlot(migrationTarget))
}

// GetMigrationTarget returns the cached migration target, or nil.
func (a *TransitionsAccessor) GetMigrationTarget() *Shape {
	if a.encoding != EncodingMigrationTarget {
		return nil
	}
	return a.raw.migrationTarget
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// TraverseTransitionTree visits the subtree rooted at the accessor's shape
// in pre-order. The callback must not record transitions or trigger
// allocation.
func (a *TransitionsAccessor) TraverseTransitionTree(callback func(*Shape)) {
	if a.concurrent {
		a.heap.fullTableLock.RLock()
		defer a.heap.fullTableLock.RUnlock()
	}
	a.traverseTransitionTreeInternal(callback)
}

// traverseTransitionTreeInternal is an iterative depth-first search with an
// explicit work stack, so pathological property sequences cannot overflow
// the call stack. Prototype sub-cache targets are pushed before ordinary
// edge targets.
func (a *TransitionsAccessor) traverseTransitionTreeInternal(callback func(*Shape)) {
	stack := make([]*Shape, 0, 16)
	stack = append(stack, a.shape)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		callback(current)

		raw := current.rawTransitions()
		switch slotEncoding(raw) {
		case EncodingPrototypeInfo, EncodingUninitialized, EncodingMigrationTarget:
		case EncodingWeakRef:
			if target := raw.weak.Get(); target != nil {
				stack = append(stack, target)
			}
		case EncodingFullTransitionTable:
			table := raw.table
			if table.hasPrototypeTransitions() {
				proto := table.getPrototypeTransitions()
				for i := 0; i < proto.nof; i++ {
					if wr := proto.entries[i]; wr != nil {
						if target := wr.Get(); target != nil {
							stack = append(stack, target)
						}
					}
				}
			}
			for i := 0; i < table.numberOfTransitions(); i++ {
				if target := table.GetTarget(i); target != nil {
					stack = append(stack, target)
				}
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// checkNewTransitionsAreConsistent verifies that a replacement table still
// resolves every edge of the table it replaces. Verification-only.
func (a *TransitionsAccessor) checkNewTransitionsAreConsistent(old, replacement *TransitionTable) {
	for i := 0; i < old.numberOfTransitions(); i++ {
		target := old.GetTarget(i)
		if target == nil {
			continue
		}
		key := old.GetKey(i)
		var index int
		if IsSpecialTransition(key) {
			index = replacement.searchSpecial(key, nil)
		} else {
			details := TargetDetails(key, target)
			index = replacement.search(details.Kind, key, details.Attributes, nil)
		}
		if index == notFound || replacement.GetTarget(index) != target {
			panic("shape: replacement transition table lost an edge")
		}
	}
}
