package shape

// ---------------------------------------------------------------------------
// Special transition markers
// ---------------------------------------------------------------------------
//
// A small fixed set of well-known names keys transitions that are not
// property additions: integrity level changes, elements kind changes, and
// strict function transitions. This file is the single source of truth for
// the marker set; a heap interns them once at construction.
//
// Marker strings carry a "%" prefix so they can never collide with a
// property name coming from user code.

const (
	nonextensibleMarker            = "%nonextensible"
	sealedMarker                   = "%sealed"
	frozenMarker                   = "%frozen"
	elementsTransitionMarker       = "%elements-transition"
	strictFunctionTransitionMarker = "%strict-function-transition"
)

// SpecialNames holds the interned well-known transition markers of a heap.
type SpecialNames struct {
	Nonextensible            *Name
	Sealed                   *Name
	Frozen                   *Name
	ElementsTransition       *Name
	StrictFunctionTransition *Name
}

func newSpecialNames(nt *NameTable) *SpecialNames {
	return &SpecialNames{
		Nonextensible:            nt.internSpecial(nonextensibleMarker),
		Sealed:                   nt.internSpecial(sealedMarker),
		Frozen:                   nt.internSpecial(frozenMarker),
		ElementsTransition:       nt.internSpecial(elementsTransitionMarker),
		StrictFunctionTransition: nt.internSpecial(strictFunctionTransitionMarker),
	}
}

// IsSpecialTransition reports whether name keys a non-property transition
// (an elements kind change or a frozen/sealed/nonextensible integrity
// change).
func IsSpecialTransition(name *Name) bool {
	return name != nil && name.special
}
