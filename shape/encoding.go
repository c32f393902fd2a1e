package shape

// ---------------------------------------------------------------------------
// Encoding: The tagged transitions slot
// ---------------------------------------------------------------------------

// Encoding identifies what the transitions slot of a shape currently holds.
type Encoding uint8

const (
	// EncodingPrototypeInfo: the slot holds prototype metadata owned by
	// another subsystem. A sink state for this package; all transition
	// operations are no-ops or return empty.
	EncodingPrototypeInfo Encoding = iota

	// EncodingUninitialized: no outgoing edges.
	EncodingUninitialized

	// EncodingMigrationTarget: a terminal forwarding pointer installed on a
	// deprecated shape. No edges.
	EncodingMigrationTarget

	// EncodingWeakRef: exactly one outgoing edge, stored inline without a
	// table, held weakly.
	EncodingWeakRef

	// EncodingFullTransitionTable: a TransitionTable is present.
	EncodingFullTransitionTable
)

func (e Encoding) String() string {
	switch e {
	case EncodingPrototypeInfo:
		return "prototype-info"
	case EncodingUninitialized:
		return "uninitialized"
	case EncodingMigrationTarget:
		return "migration-target"
	case EncodingWeakRef:
		return "weak-ref"
	case EncodingFullTransitionTable:
		return "full-transition-table"
	}
	return "unknown"
}

// transitionSlot is the tagged payload published in a shape's transitions
// slot. A slot value is immutable once published: state changes publish a
// fresh slot with a release-store, and readers observe it with an
// acquire-load, so a swap appears instantaneous. In-place edge updates
// mutate the table a published slot points to, under the full-table lock,
// never the slot value itself.
type transitionSlot struct {
	encoding        Encoding
	weak            *WeakRef         // EncodingWeakRef
	table           *TransitionTable // EncodingFullTransitionTable
	migrationTarget *Shape           // EncodingMigrationTarget (held strongly)
	protoInfo       any              // EncodingPrototypeInfo (opaque, foreign-owned)
}

var uninitializedSlot = &transitionSlot{encoding: EncodingUninitialized}

func weakRefSlot(wr *WeakRef) *transitionSlot {
	return &transitionSlot{encoding: EncodingWeakRef, weak: wr}
}

func tableSlot(t *TransitionTable) *transitionSlot {
	return &transitionSlot{encoding: EncodingFullTransitionTable, table: t}
}

func migrationTargetSlot(target *Shape) *transitionSlot {
	return &transitionSlot{encoding: EncodingMigrationTarget, migrationTarget: target}
}

func prototypeInfoSlot(data any) *transitionSlot {
	return &transitionSlot{encoding: EncodingPrototypeInfo, protoInfo: data}
}

// slotEncoding classifies a raw slot. A simple edge whose referent was
// collected reads as uninitialized: a cleared reference conveys nothing
// beyond "no outgoing edges".
func slotEncoding(raw *transitionSlot) Encoding {
	if raw.encoding == EncodingWeakRef && !raw.weak.IsAlive() {
		return EncodingUninitialized
	}
	return raw.encoding
}
