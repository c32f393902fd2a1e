package shape

import "sync/atomic"

// ---------------------------------------------------------------------------
// Shape: One node of the transition tree
// ---------------------------------------------------------------------------

// Shape is the hidden class describing an object's property layout. Objects
// with identical property histories share one shape; adding a property walks
// or extends the transition tree hanging off the parent shape.
//
// The transitions slot is the only mutable published state: it is an
// atomically swapped tagged cell (see encoding.go). Descriptors, the back
// pointer and the prototype are set while the shape is still private to the
// thread constructing it.
type Shape struct {
	id   uint32
	heap *Heap

	descriptors []Descriptor
	backPointer *Shape
	prototype   *Object

	// Mode flags.
	dictionary  bool
	deprecated  bool
	isPrototype bool

	transitions atomic.Pointer[transitionSlot]
}

// ID returns the stable identifier assigned by the heap.
func (s *Shape) ID() uint32 { return s.id }

// NumberOfDescriptors returns the length of the property layout.
func (s *Shape) NumberOfDescriptors() int { return len(s.descriptors) }

// Descriptors returns the property layout. Callers must not mutate it.
func (s *Shape) Descriptors() []Descriptor { return s.descriptors }

// LastAdded returns the most recently added descriptor, or false for a shape
// with an empty layout.
func (s *Shape) LastAdded() (Descriptor, bool) {
	if len(s.descriptors) == 0 {
		return Descriptor{}, false
	}
	return s.descriptors[len(s.descriptors)-1], true
}

// lastDetails assumes at least one descriptor. The targets of property
// transitions always satisfy this.
func (s *Shape) lastDetails() PropertyDetails {
	return s.descriptors[len(s.descriptors)-1].Details
}

// BackPointer returns the parent shape this shape was derived from, or nil
// for a root. It is set when the shape is connected by Insert.
func (s *Shape) BackPointer() *Shape { return s.backPointer }

func (s *Shape) setBackPointer(parent *Shape) { s.backPointer = parent }

// Prototype returns the prototype object associated with this shape, if any.
func (s *Shape) Prototype() *Object { return s.prototype }

// SetPrototype associates a prototype object. Must be called while the shape
// is still private to its constructing thread.
func (s *Shape) SetPrototype(proto *Object) { s.prototype = proto }

// IsDictionary reports dictionary mode. Dictionary-mode shapes never record
// transitions.
func (s *Shape) IsDictionary() bool { return s.dictionary }

// MarkDictionary switches the shape to dictionary mode.
func (s *Shape) MarkDictionary() { s.dictionary = true }

// IsDeprecated reports whether the shape has been superseded by a migration
// target.
func (s *Shape) IsDeprecated() bool { return s.deprecated }

// Deprecate marks the shape as superseded.
func (s *Shape) Deprecate() { s.deprecated = true }

// IsPrototypeShape reports whether the shape describes a prototype object.
// Prototype shapes never carry a prototype transition cache.
func (s *Shape) IsPrototypeShape() bool { return s.isPrototype }

// MarkAsPrototypeShape flags the shape as describing a prototype object.
func (s *Shape) MarkAsPrototypeShape() { s.isPrototype = true }

// rawTransitions acquire-loads the current transitions slot.
func (s *Shape) rawTransitions() *transitionSlot {
	if slot := s.transitions.Load(); slot != nil {
		return slot
	}
	return uninitializedSlot
}

// setRawTransitions release-stores a new transitions slot. Readers observe
// either the complete old payload or the complete new one.
func (s *Shape) setRawTransitions(slot *transitionSlot) {
	s.transitions.Store(slot)
}

// SetPrototypeInfo installs opaque prototype metadata owned by another
// subsystem. Only effective while the slot is uninitialized; reports whether
// the metadata was installed.
func (s *Shape) SetPrototypeInfo(data any) bool {
	if slotEncoding(s.rawTransitions()) != EncodingUninitialized {
		return false
	}
	s.setRawTransitions(prototypeInfoSlot(data))
	return true
}

// PrototypeInfo returns the opaque prototype metadata, or nil.
func (s *Shape) PrototypeInfo() any {
	raw := s.rawTransitions()
	if raw.encoding != EncodingPrototypeInfo {
		return nil
	}
	return raw.protoInfo
}

// ---------------------------------------------------------------------------
// Object: Opaque prototype identity
// ---------------------------------------------------------------------------

// Object is an opaque heap object used as a prototype identity. The
// transition subsystem compares objects by pointer and never looks inside.
type Object struct {
	id uint32
}

// ID returns the stable identifier assigned by the heap.
func (o *Object) ID() uint32 { return o.id }
