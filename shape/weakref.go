package shape

import "sync"

// ---------------------------------------------------------------------------
// WeakRef: An edge reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

// WeakRef holds a weak reference to a shape. When the target is reclaimed by
// a collection, the reference becomes cleared and resolves to nil; readers
// must treat a cleared edge as "this edge no longer exists".
type WeakRef struct {
	id     uint32
	mu     sync.RWMutex // Protects target
	target *Shape       // The weakly-referenced shape (nil once cleared)
}

// ID returns the unique identifier for this weak reference.
func (wr *WeakRef) ID() uint32 {
	return wr.id
}

// Get returns the target shape, or nil if it has been cleared.
func (wr *WeakRef) Get() *Shape {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.target
}

// IsAlive returns true if the target has not been cleared.
func (wr *WeakRef) IsAlive() bool {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.target != nil
}

// Clear severs the reference (called by the heap during collection).
// Returns the old target.
func (wr *WeakRef) Clear() *Shape {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	old := wr.target
	wr.target = nil
	return old
}
