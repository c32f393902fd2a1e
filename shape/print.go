package shape

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Debug printing
// ---------------------------------------------------------------------------

func printOneTransition(w io.Writer, key *Name, target *Shape) {
	if IsSpecialTransition(key) {
		fmt.Fprintf(w, "    %s (special) -> shape %d\n", key.String(), target.ID())
		return
	}
	details := TargetDetails(key, target)
	fmt.Fprintf(w, "    %q (%s, attrs=%d) -> shape %d\n",
		key.String(), details.Kind, details.Attributes, target.ID())
}

// PrintTransitions writes one line per live outgoing transition.
func (a *TransitionsAccessor) PrintTransitions(w io.Writer) {
	fmt.Fprintf(w, "shape %d [%s]\n", a.shape.ID(), a.encoding)
	nof := a.NumberOfTransitions()
	for i := 0; i < nof; i++ {
		target := a.GetTarget(i)
		if target == nil {
			continue
		}
		printOneTransition(w, a.GetKey(i), target)
	}
}

// PrintTransitionTree writes an indented pre-order dump of the subtree
// rooted at the accessor's shape, prototype-cache targets included.
func (a *TransitionsAccessor) PrintTransitionTree(w io.Writer) {
	type item struct {
		shape *Shape
		key   *Name // nil for the root and prototype-cache targets
		depth int
	}
	stack := []item{{shape: a.shape}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for i := 0; i < it.depth; i++ {
			io.WriteString(w, "  ")
		}
		switch {
		case it.key == nil:
			fmt.Fprintf(w, "shape %d\n", it.shape.ID())
		case IsSpecialTransition(it.key):
			fmt.Fprintf(w, "%s (special) shape %d\n", it.key.String(), it.shape.ID())
		default:
			details := TargetDetails(it.key, it.shape)
			fmt.Fprintf(w, "%q (%s, attrs=%d) shape %d\n",
				it.key.String(), details.Kind, details.Attributes, it.shape.ID())
		}

		raw := it.shape.rawTransitions()
		switch slotEncoding(raw) {
		case EncodingWeakRef:
			if target := raw.weak.Get(); target != nil {
				stack = append(stack, item{target, simpleTransitionKey(target), it.depth + 1})
			}
		case EncodingFullTransitionTable:
			table := raw.table
			if table.hasPrototypeTransitions() {
				proto := table.getPrototypeTransitions()
				for i := 0; i < proto.nof; i++ {
					if wr := proto.entries[i]; wr != nil {
						if target := wr.Get(); target != nil {
							stack = append(stack, item{target, nil, it.depth + 1})
						}
					}
				}
			}
			for i := 0; i < table.numberOfTransitions(); i++ {
				if target := table.GetTarget(i); target != nil {
					stack = append(stack, item{target, table.GetKey(i), it.depth + 1})
				}
			}
		}
	}
}
