package shape

import "sync"

// ---------------------------------------------------------------------------
// Name: Interned property keys
// ---------------------------------------------------------------------------

// Name is an interned property key. Names are unique within a NameTable: two
// interns of the same string yield the same pointer, so identity comparison
// is sufficient everywhere in this package.
type Name struct {
	str     string
	hash    uint32
	id      uint32
	special bool
}

// String returns the key text.
func (n *Name) String() string { return n.str }

// Hash returns the identity hash used as the primary sort key for
// transition entries.
func (n *Name) Hash() uint32 { return n.hash }

// ID returns the interning order of the name. IDs break hash collisions so
// the transition order is total and deterministic.
func (n *Name) ID() uint32 { return n.id }

// IsSpecial reports whether n is one of the well-known non-property
// transition markers (see markers.go).
func (n *Name) IsSpecial() bool { return n.special }

// nameHash is FNV-1a over the key bytes. Zero is remapped so a zero hash
// never occurs.
func nameHash(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	if h == 0 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// NameTable: Interning
// ---------------------------------------------------------------------------

// NameTable interns property key strings to unique Name pointers.
type NameTable struct {
	mu    sync.RWMutex
	byStr map[string]*Name
	names []*Name
}

// NewNameTable creates a new empty name table.
func NewNameTable() *NameTable {
	return &NameTable{
		byStr: make(map[string]*Name),
		names: make([]*Name, 0, 64),
	}
}

// Intern returns the Name for a string, creating a new one if needed.
func (nt *NameTable) Intern(s string) *Name {
	return nt.intern(s, false)
}

// internSpecial interns a well-known transition marker. Marker strings carry
// a "%" prefix (see markers.go) so they cannot collide with property names.
func (nt *NameTable) internSpecial(s string) *Name {
	return nt.intern(s, true)
}

func (nt *NameTable) intern(s string, special bool) *Name {
	// Fast path: read-only lookup
	nt.mu.RLock()
	if n, ok := nt.byStr[s]; ok {
		nt.mu.RUnlock()
		return n
	}
	nt.mu.RUnlock()

	// Slow path: need to add a new name
	nt.mu.Lock()
	defer nt.mu.Unlock()

	// Double-check after acquiring write lock
	if n, ok := nt.byStr[s]; ok {
		return n
	}

	n := &Name{
		str:     s,
		hash:    nameHash(s),
		id:      uint32(len(nt.names)),
		special: special,
	}
	nt.byStr[s] = n
	nt.names = append(nt.names, n)
	return n
}

// Lookup returns the interned Name for a string, or nil if it was never
// interned.
func (nt *NameTable) Lookup(s string) *Name {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return nt.byStr[s]
}

// Count returns the number of interned names.
func (nt *NameTable) Count() int {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return len(nt.names)
}
