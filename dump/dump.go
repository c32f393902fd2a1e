// Package dump captures transition trees as CBOR snapshots for offline
// inspection. Snapshots are a debugging aid, not a persistence format: they
// record the observable structure of a tree at one instant and cannot be
// loaded back into a heap.
package dump

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/morph/shape"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Edge is one recorded transition.
type Edge struct {
	Key        string `cbor:"key"`
	Special    bool   `cbor:"special,omitempty"`
	Kind       uint8  `cbor:"kind"`
	Attributes uint8  `cbor:"attrs"`
	Target     uint32 `cbor:"target"`
}

// Node is one recorded shape.
type Node struct {
	ID           uint32   `cbor:"id"`
	Encoding     string   `cbor:"encoding"`
	Descriptors  int      `cbor:"descriptors"`
	Dictionary   bool     `cbor:"dictionary,omitempty"`
	Deprecated   bool     `cbor:"deprecated,omitempty"`
	Prototype    bool     `cbor:"prototype,omitempty"`
	Edges        []Edge   `cbor:"edges,omitempty"`
	ProtoTargets []uint32 `cbor:"proto-targets,omitempty"`
}

// Snapshot is a captured transition tree.
type Snapshot struct {
	Root  uint32 `cbor:"root"`
	Nodes []Node `cbor:"nodes"`
}

// Capture walks the transition tree rooted at root and records every
// reachable shape. The caller must not mutate the tree during the capture.
func Capture(h *shape.Heap, root *shape.Shape) *Snapshot {
	snap := &Snapshot{Root: root.ID()}

	acc := shape.NewTransitionsAccessor(h, root, false)
	acc.TraverseTransitionTree(func(s *shape.Shape) {
		a := shape.NewTransitionsAccessor(h, s, false)
		node := Node{
			ID:          s.ID(),
			Encoding:    a.Encoding().String(),
			Descriptors: s.NumberOfDescriptors(),
			Dictionary:  s.IsDictionary(),
			Deprecated:  s.IsDeprecated(),
			Prototype:   s.IsPrototypeShape(),
		}

		nof := a.NumberOfTransitions()
		for i := 0; i < nof; i++ {
			target := a.GetTarget(i)
			if target == nil {
				continue
			}
			key := a.GetKey(i)
			details := shape.TargetDetails(key, target)
			node.Edges = append(node.Edges, Edge{
				Key:        key.String(),
				Special:    shape.IsSpecialTransition(key),
				Kind:       uint8(details.Kind),
				Attributes: uint8(details.Attributes),
				Target:     target.ID(),
			})
		}

		a.ForEachPrototypeTransition(func(target *shape.Shape) {
			node.ProtoTargets = append(node.ProtoTargets, target.ID())
		})

		snap.Nodes = append(snap.Nodes, node)
	})

	return snap
}

// Marshal serializes a Snapshot to CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dump: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
