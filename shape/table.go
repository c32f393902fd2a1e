package shape

// ---------------------------------------------------------------------------
// TransitionTable: Sorted edge storage
// ---------------------------------------------------------------------------

// notFound is returned by the table search routines when no entry matches.
const notFound = -1

// MaxNumberOfTransitions bounds the number of edges a single table may hold.
// Reaching the bound and inserting once more is an unrecoverable invariant
// violation, not a retryable error.
const MaxNumberOfTransitions = 1024 + 512

// TransitionEntry is one (key, kind, attributes) -> target edge. The kind
// and attributes of a property edge are read from the target shape's last
// descriptor, so only the key and the weak target are stored.
type TransitionEntry struct {
	key    *Name
	target *WeakRef
}

// TransitionTable is a growable array of transition edges kept sorted by the
// composite (key hash, key id, kind, attributes) order. It optionally
// carries the prototype transition sub-cache (see prototype_cache.go).
//
// TransitionTable exposes a very low-level interface; clients go through a
// TransitionsAccessor. In-place reads and writes of a published table are
// guarded by the heap's full-table lock.
type TransitionTable struct {
	entries []TransitionEntry // len(entries) is the capacity
	nof     int               // number of live transitions, <= capacity
	proto   *protoTransitions
}

// Capacity returns the number of entry slots, live or not.
func (t *TransitionTable) Capacity() int { return len(t.entries) }

func (t *TransitionTable) numberOfTransitions() int { return t.nof }

func (t *TransitionTable) setNumberOfTransitions(n int) { t.nof = n }

// GetKey returns the key of edge i.
func (t *TransitionTable) GetKey(i int) *Name { return t.entries[i].key }

func (t *TransitionTable) setKey(i int, key *Name) { t.entries[i].key = key }

// GetTarget resolves the weak target of edge i; nil if the edge was cleared.
func (t *TransitionTable) GetTarget(i int) *Shape { return t.entries[i].target.Get() }

func (t *TransitionTable) getRawTarget(i int) *WeakRef { return t.entries[i].target }

func (t *TransitionTable) setRawTarget(i int, wr *WeakRef) { t.entries[i].target = wr }

func (t *TransitionTable) set(i int, key *Name, wr *WeakRef) {
	t.entries[i] = TransitionEntry{key: key, target: wr}
}

func (t *TransitionTable) hasPrototypeTransitions() bool { return t.proto != nil }

func (t *TransitionTable) getPrototypeTransitions() *protoTransitions { return t.proto }

func (t *TransitionTable) setPrototypeTransitions(p *protoTransitions) { t.proto = p }

// targetDetails returns the sort details of edge i: empty for special edges,
// otherwise the target's last descriptor details. A cleared edge sorts as
// empty; cleared edges only linger in tables no live shape publishes.
func (t *TransitionTable) targetDetails(i int) PropertyDetails {
	key := t.entries[i].key
	if IsSpecialTransition(key) {
		return emptyDetails()
	}
	if target := t.entries[i].target.Get(); target != nil {
		return target.lastDetails()
	}
	return emptyDetails()
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// searchName binary-searches for the first edge keyed by name. If no edge
// matches, notFound is returned and, when outInsertionIndex is non-nil, the
// index a new edge with this key would be inserted at.
func (t *TransitionTable) searchName(name *Name, outInsertionIndex *int) int {
	lo, hi := 0, t.nof
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if compareNames(t.entries[mid].key, name) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < t.nof && t.entries[lo].key == name {
		return lo
	}
	if outInsertionIndex != nil {
		*outInsertionIndex = lo
	}
	return notFound
}

// searchDetails scans the run of edges sharing one key (runs are typically
// length 1-3) for an exact (kind, attributes) match, starting at transition.
// On a miss it reports the in-run insertion index.
func (t *TransitionTable) searchDetails(transition int, kind PropertyKind,
	attributes PropertyAttributes, outInsertionIndex *int) int {
	key := t.entries[transition].key
	for ; transition < t.nof && t.entries[transition].key == key; transition++ {
		details := t.targetDetails(transition)
		cmp := compareDetails(kind, attributes, details.Kind, details.Attributes)
		if cmp == 0 {
			return transition
		} else if cmp < 0 {
			break
		}
	}
	if outInsertionIndex != nil {
		*outInsertionIndex = transition
	}
	return notFound
}

// search finds the edge for a full (key, kind, attributes) tuple, or
// notFound plus the insertion index.
func (t *TransitionTable) search(kind PropertyKind, name *Name,
	attributes PropertyAttributes, outInsertionIndex *int) int {
	transition := t.searchName(name, outInsertionIndex)
	if transition == notFound {
		return notFound
	}
	return t.searchDetails(transition, kind, attributes, outInsertionIndex)
}

// searchDetailsAndGetTarget resolves the target within a key run, or nil.
func (t *TransitionTable) searchDetailsAndGetTarget(transition int,
	kind PropertyKind, attributes PropertyAttributes) *Shape {
	key := t.entries[transition].key
	for ; transition < t.nof && t.entries[transition].key == key; transition++ {
		details := t.targetDetails(transition)
		cmp := compareDetails(kind, attributes, details.Kind, details.Attributes)
		if cmp == 0 {
			return t.entries[transition].target.Get()
		} else if cmp < 0 {
			break
		}
	}
	return nil
}

// searchAndGetTarget resolves the target for a full tuple, or nil.
func (t *TransitionTable) searchAndGetTarget(kind PropertyKind, name *Name,
	attributes PropertyAttributes) *Shape {
	transition := t.searchName(name, nil)
	if transition == notFound {
		return nil
	}
	return t.searchDetailsAndGetTarget(transition, kind, attributes)
}

// searchSpecial finds the edge keyed by a well-known marker name. Marker
// runs have length one, so a name match is an exact match.
func (t *TransitionTable) searchSpecial(symbol *Name, outInsertionIndex *int) int {
	return t.searchName(symbol, outInsertionIndex)
}

// forEachTransitionTo invokes callback once per live edge keyed by name, in
// details order.
func (t *TransitionTable) forEachTransitionTo(name *Name, callback func(*Shape)) {
	transition := t.searchName(name, nil)
	if transition == notFound {
		return
	}
	for ; transition < t.nof && t.entries[transition].key == name; transition++ {
		if target := t.entries[transition].target.Get(); target != nil {
			callback(target)
		}
	}
}

// ---------------------------------------------------------------------------
// Sorting and verification
// ---------------------------------------------------------------------------

// Sort restores the composite order with an in-place insertion sort. Only
// used after bulk construction; the public insert paths keep the table
// sorted by construction.
func (t *TransitionTable) Sort() {
	for i := 1; i < t.nof; i++ {
		key := t.entries[i].key
		target := t.entries[i].target
		details := t.targetDetails(i)

		var j int
		for j = i - 1; j >= 0; j-- {
			tempKey := t.entries[j].key
			tempTarget := t.entries[j].target
			tempDetails := t.targetDetails(j)
			cmp := compareKeys(tempKey, tempDetails.Kind, tempDetails.Attributes,
				key, details.Kind, details.Attributes)
			if cmp > 0 {
				t.entries[j+1] = TransitionEntry{key: tempKey, target: tempTarget}
			} else {
				break
			}
		}
		t.entries[j+1] = TransitionEntry{key: key, target: target}
	}
}

// isSortedNoDuplicates exhaustively verifies the composite order and the
// no-duplicate-tuple invariant. Only run when heap verification is enabled.
func (t *TransitionTable) isSortedNoDuplicates() bool {
	var prevKey *Name
	var prevDetails PropertyDetails
	for i := 0; i < t.nof; i++ {
		key := t.entries[i].key
		details := t.targetDetails(i)
		if prevKey != nil {
			cmp := compareKeys(prevKey, prevDetails.Kind, prevDetails.Attributes,
				key, details.Kind, details.Attributes)
			if cmp >= 0 {
				return false
			}
		}
		prevKey = key
		prevDetails = details
	}
	return true
}
