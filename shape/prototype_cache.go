package shape

// ---------------------------------------------------------------------------
// Prototype transition cache
// ---------------------------------------------------------------------------
//
// Setting the prototype of an object requires a new shape (the prototype is
// part of the layout). To avoid multiplying shapes the original shape keeps
// a bounded side-cache mapping prototype identity to the shape already
// created for it. The cache is best effort: entries are weak, a full and
// ungrowable cache silently drops new entries, and correctness never depends
// on a hit.

// maxCachedPrototypeTransitions bounds the cache capacity.
const maxCachedPrototypeTransitions = 256

// protoTransitions is the sub-cache carried by a full transition table: a
// live-entry count plus weak references to target shapes, any of which may
// independently resolve to cleared.
type protoTransitions struct {
	entries []*WeakRef // len(entries) is the capacity
	nof     int        // entries in use, cleared ones included until compaction
}

func (p *protoTransitions) capacity() int { return len(p.entries) }

// compactPrototypeTransitions shifts live entries down over cleared ones,
// nils the freed tail and updates the count. Reports whether any slot was
// freed; an empty or fully live cache cannot be compacted.
func compactPrototypeTransitions(p *protoTransitions) bool {
	if p == nil || p.nof == 0 {
		return false
	}
	live := 0
	for i := 0; i < p.nof; i++ {
		wr := p.entries[i]
		if wr != nil && wr.IsAlive() {
			if live != i {
				p.entries[live] = wr
			}
			live++
		}
	}
	for i := live; i < p.nof; i++ {
		p.entries[i] = nil
	}
	if live == p.nof {
		return false
	}
	p.nof = live
	return true
}

// ensureHasFullTransitionTable upgrades an uninitialized or inline-edge
// encoding to a zero- or one-entry table, the precondition for attaching a
// prototype sub-cache.
func (a *TransitionsAccessor) ensureHasFullTransitionTable() {
	if a.encoding == EncodingFullTransitionTable {
		return
	}
	nof := 0
	if a.encoding == EncodingWeakRef {
		nof = 1
	}
	result := a.heap.newTransitionTable(nof, 0)
	// Reload: the allocation may have cleared the inline edge.
	a.reload()
	if nof == 1 {
		if a.encoding == EncodingUninitialized {
			// Cleared during allocation; trim the new table.
			result.setNumberOfTransitions(0)
		} else {
			target := a.simpleTransition()
			result.set(0, simpleTransitionKey(target), a.heap.makeWeakRef(target))
		}
	}
	a.replaceTransitions(tableSlot(result))
}

// PutPrototypeTransition records that changing this shape's objects to
// prototype yields target. A no-op for prototype-bearing and dictionary-mode
// shapes, and when the cache is disabled by configuration.
func (a *TransitionsAccessor) PutPrototypeTransition(prototype *Object, target *Shape) {
	h := a.heap
	if a.shape.IsPrototypeShape() || a.shape.IsDictionary() {
		return
	}
	if !h.cfg.PrototypeCacheEnabled() {
		return
	}
	h.assert(!a.concurrent, "PutPrototypeTransition on a concurrent accessor")
	h.assert(target.Prototype() == prototype, "cached shape does not carry the prototype")

	a.ensureHasFullTransitionTable()

	cache := a.table().getPrototypeTransitions()
	required := 1
	if cache != nil {
		required = cache.nof + 1
	}

	// Fast path: a slot is free, or compaction frees one. The cache
	// mutation is a read-modify-write racing concurrent readers, so it
	// runs under the exclusive lock — but never the allocation below.
	grow := false
	h.fullTableLock.Lock()
	if cache == nil || required > cache.capacity() {
		if !compactPrototypeTransitions(cache) {
			if cache != nil && cache.capacity() == maxCachedPrototypeTransitions {
				// Full and ungrowable: silently drop the new entry.
				h.fullTableLock.Unlock()
				return
			}
			grow = true
		}
	}
	if !grow {
		cache.entries[cache.nof] = h.makeWeakRef(target)
		cache.nof++
		h.fullTableLock.Unlock()
		return
	}
	h.fullTableLock.Unlock()

	// Grow geometrically, capped. required <= max here: a cache already at
	// the cap returned above.
	newCapacity := 2 * required
	if newCapacity > maxCachedPrototypeTransitions {
		newCapacity = maxCachedPrototypeTransitions
	}
	grown := h.newProtoTransitions(newCapacity)

	// The allocation may have run a collection; re-fetch the owning
	// shape's state before writing. The encoding stays a full table (no
	// transition leaves that state), but the old cache may have lost
	// entries.
	a.reload()
	table := a.table()
	old := table.getPrototypeTransitions()

	h.fullTableLock.Lock()
	if old != nil {
		n := 0
		for i := 0; i < old.nof; i++ {
			if wr := old.entries[i]; wr != nil && wr.IsAlive() {
				grown.entries[n] = wr
				n++
			}
		}
		grown.nof = n
	}
	grown.entries[grown.nof] = h.makeWeakRef(target)
	grown.nof++
	table.setPrototypeTransitions(grown)
	h.fullTableLock.Unlock()
}

// GetPrototypeTransition returns the cached shape for a prototype identity,
// or nil on a miss (including cleared entries and an absent cache).
func (a *TransitionsAccessor) GetPrototypeTransition(prototype *Object) *Shape {
	if a.encoding != EncodingFullTransitionTable {
		return nil
	}
	if a.concurrent {
		a.heap.fullTableLock.RLock()
		defer a.heap.fullTableLock.RUnlock()
	}
	cache := a.table().getPrototypeTransitions()
	if cache == nil {
		return nil
	}
	for i := 0; i < cache.nof; i++ {
		wr := cache.entries[i]
		if wr == nil {
			continue
		}
		if target := wr.Get(); target != nil && target.Prototype() == prototype {
			return target
		}
	}
	return nil
}

// ForEachPrototypeTransition invokes callback once per live cached target.
func (a *TransitionsAccessor) ForEachPrototypeTransition(callback func(*Shape)) {
	if a.encoding != EncodingFullTransitionTable {
		return
	}
	if a.concurrent {
		a.heap.fullTableLock.RLock()
		defer a.heap.fullTableLock.RUnlock()
	}
	cache := a.table().getPrototypeTransitions()
	if cache == nil {
		return
	}
	for i := 0; i < cache.nof; i++ {
		if wr := cache.entries[i]; wr != nil {
			if target := wr.Get(); target != nil {
				callback(target)
			}
		}
	}
}
