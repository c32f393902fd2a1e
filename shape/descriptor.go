package shape

// ---------------------------------------------------------------------------
// Property descriptors and transition ordering
// ---------------------------------------------------------------------------

// PropertyKind distinguishes plain data properties from accessor pairs.
type PropertyKind uint8

const (
	KindData PropertyKind = iota
	KindAccessor
)

func (k PropertyKind) String() string {
	if k == KindAccessor {
		return "accessor"
	}
	return "data"
}

// PropertyAttributes is the attribute bitmask of a property.
type PropertyAttributes uint8

const (
	AttrNone       PropertyAttributes = 0
	AttrReadOnly   PropertyAttributes = 1
	AttrDontEnum   PropertyAttributes = 2
	AttrDontDelete PropertyAttributes = 4

	// Integrity levels expressed as attribute sets.
	AttrSealed = AttrDontDelete
	AttrFrozen = AttrSealed | AttrReadOnly
)

// PropertyDetails is the (kind, attributes) half of a transition tuple.
type PropertyDetails struct {
	Kind       PropertyKind
	Attributes PropertyAttributes
}

// emptyDetails is the details value used for special transitions, which have
// no property semantics of their own. Special entries sort as plain data
// properties with no attributes.
func emptyDetails() PropertyDetails {
	return PropertyDetails{Kind: KindData, Attributes: AttrNone}
}

// Descriptor is one entry of a shape's property layout.
type Descriptor struct {
	Key     *Name
	Details PropertyDetails
}

// TargetDetails returns the (kind, attributes) of the edge labeled key that
// leads to target. For a property transition they are read from the target's
// most recently added descriptor; special transitions have empty details.
func TargetDetails(key *Name, target *Shape) PropertyDetails {
	if IsSpecialTransition(key) {
		return emptyDetails()
	}
	return target.lastDetails()
}

// compareDetails orders two (kind, attributes) pairs. Returns -1, 0 or 1.
func compareDetails(kind1 PropertyKind, attributes1 PropertyAttributes,
	kind2 PropertyKind, attributes2 PropertyAttributes) int {
	if kind1 != kind2 {
		if kind1 < kind2 {
			return -1
		}
		return 1
	}
	if attributes1 != attributes2 {
		if attributes1 < attributes2 {
			return -1
		}
		return 1
	}
	return 0
}

// compareNames orders names by identity hash, breaking collisions by
// interning ID. Returns -1, 0 or 1; zero only for the same name.
func compareNames(name1, name2 *Name) int {
	if name1 == name2 {
		return 0
	}
	if name1.hash != name2.hash {
		if name1.hash < name2.hash {
			return -1
		}
		return 1
	}
	if name1.id < name2.id {
		return -1
	}
	return 1
}

// compareKeys orders full (key, kind, attributes) tuples: primary by name,
// secondary by details.
func compareKeys(name1 *Name, kind1 PropertyKind, attributes1 PropertyAttributes,
	name2 *Name, kind2 PropertyKind, attributes2 PropertyAttributes) int {
	if cmp := compareNames(name1, name2); cmp != 0 {
		return cmp
	}
	return compareDetails(kind1, attributes1, kind2, attributes2)
}
