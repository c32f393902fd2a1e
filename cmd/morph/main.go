// morph - transition tree workload driver
//
// Builds randomized shape transition trees through the public API, runs
// verification searches, exercises collection hazards and reports aggregate
// statistics. Mainly useful for stress runs and for producing CBOR
// snapshots to inspect offline.
//
// Build: go build ./cmd/morph
// Usage:
//   morph -objects 1000 -props 8
//   morph -config . -gc-stress 7 -snapshot tree.cbor
//   morph -seed 42 -print-tree
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/morph/config"
	"github.com/chazu/morph/dump"
	"github.com/chazu/morph/shape"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	var (
		configDir    = flag.String("config", "", "directory containing morph.toml")
		objects      = flag.Int("objects", 1000, "number of object histories to simulate")
		props        = flag.Int("props", 8, "properties added per object")
		poolSize     = flag.Int("pool", 24, "size of the property name pool")
		seed         = flag.Int64("seed", 1, "workload random seed")
		gcStress     = flag.Int("gc-stress", 0, "collect every N allocations (overrides config)")
		snapshotPath = flag.String("snapshot", "", "write a CBOR snapshot of the tree")
		printTree    = flag.Bool("print-tree", false, "dump the transition tree to stdout")
		verbosity    = flag.Int("verbosity", 0, "log verbosity")
	)
	flag.Parse()

	commonlog.Configure(*verbosity, nil)
	log := commonlog.GetLogger("morph")

	cfg := config.Default()
	if *configDir != "" {
		loaded, err := config.Load(*configDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "morph: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *gcStress > 0 {
		cfg.Heap.GCStressInterval = *gcStress
	}

	h := shape.NewHeap(cfg)
	root := h.NewRootShape()
	rng := rand.New(rand.NewSource(*seed))

	pool := make([]*shape.Name, *poolSize)
	for i := range pool {
		pool[i] = h.Intern(fmt.Sprintf("p%02d", i))
	}

	log.Infof("building %d object histories (%d properties each)", *objects, *props)

	reused, created, frozen := 0, 0, 0
	for i := 0; i < *objects; i++ {
		current := root
		added := make(map[*shape.Name]bool, *props)
		for j := 0; j < *props; j++ {
			name := pool[rng.Intn(len(pool))]
			if added[name] {
				continue
			}
			added[name] = true

			acc := shape.NewTransitionsAccessor(h, current, false)
			if next := acc.FindTransitionToDataProperty(name); next != nil {
				current = next
				reused++
				continue
			}
			if !acc.CanHaveMoreTransitions() {
				break
			}
			current = h.Transition(current, name, shape.KindData, shape.AttrNone,
				shape.SimplePropertyTransition)
			h.AddRoot(current)
			created++
		}

		// Occasionally apply an integrity-level transition to the leaf.
		if rng.Intn(16) == 0 {
			acc := shape.NewTransitionsAccessor(h, current, false)
			if target := acc.SearchSpecial(h.Special().Frozen); target == nil {
				leaf := h.Transition(current, h.Special().Frozen, shape.KindData,
					shape.AttrNone, shape.SpecialTransition)
				h.AddRoot(leaf)
				frozen++
			}
		}
	}

	treeSize := 0
	shape.NewTransitionsAccessor(h, root, false).TraverseTransitionTree(func(*shape.Shape) {
		treeSize++
	})

	stats := h.Stats()
	fmt.Printf("tree: %d shapes (%d transitions created, %d reused, %d frozen)\n",
		treeSize, created, reused, frozen)
	fmt.Printf("heap: %d allocation points, %d collections, %d weak refs cleared\n",
		stats.Allocations, stats.Collections, stats.WeakRefsCleared)

	if *printTree {
		shape.NewTransitionsAccessor(h, root, false).PrintTransitionTree(os.Stdout)
	}

	if *snapshotPath != "" {
		snap := dump.Capture(h, root)
		data, err := dump.Marshal(snap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "morph: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*snapshotPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "morph: write snapshot: %v\n", err)
			os.Exit(1)
		}
		log.Infof("wrote snapshot of %d shapes to %s", len(snap.Nodes), *snapshotPath)
	}
}
