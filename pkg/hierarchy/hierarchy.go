// Package hierarchy answers supertype, subtype and member resolution queries
// over a read-only program.App. All queries are pure functions of the App and
// are safe for concurrent use.
package hierarchy

import (
	"log/slog"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/715d/shrinkroot/pkg/program"
)

// Traversal tells TraverseSuperTypes whether to keep going.
type Traversal bool

const (
	Continue Traversal = false
	Break    Traversal = true
)

// Hierarchy is the class hierarchy graph of an App plus a reverse
// (supertype → subtype) index.
type Hierarchy struct {
	app    *program.App
	object *program.Type

	subtypes *simple.DirectedGraph
	byID     map[int64]*program.Type
}

// New builds the hierarchy for app.
func New(app *program.App) *Hierarchy {
	h := &Hierarchy{
		app:      app,
		object:   app.ObjectType(),
		subtypes: simple.NewDirectedGraph(),
		byID:     make(map[int64]*program.Type),
	}

	add := func(sup, sub *program.Type) {
		if sup == sub {
			return
		}
		h.byID[int64(sup.ID())] = sup
		h.byID[int64(sub.ID())] = sub
		h.subtypes.SetEdge(h.subtypes.NewEdge(node(sup), node(sub)))
	}
	edges := 0
	for _, classes := range [][]*program.ClassDef{app.ProgramClasses(), app.ClasspathClasses(), app.LibraryClasses()} {
		for _, c := range classes {
			if c.Super != nil {
				add(c.Super, c.Type)
				edges++
			}
			for _, iface := range c.Interfaces {
				add(iface, c.Type)
				edges++
			}
		}
	}
	slog.Debug("built class hierarchy", "classes", app.NumClasses(), "edges", edges)
	return h
}

// App returns the underlying application.
func (h *Hierarchy) App() *program.App { return h.app }

// DefinitionFor is shorthand for App().DefinitionFor.
func (h *Hierarchy) DefinitionFor(t *program.Type) *program.ClassDef {
	return h.app.DefinitionFor(t)
}

func node(t *program.Type) graph.Node { return simple.Node(int64(t.ID())) }

// Subtypes returns every strict subtype of t known to the hierarchy, in
// unspecified order.
func (h *Hierarchy) Subtypes(t *program.Type) []*program.Type {
	if h.subtypes.Node(int64(t.ID())) == nil {
		return nil
	}
	var out []*program.Type
	bf := traverse.BreadthFirst{
		Visit: func(n graph.Node) {
			if n.ID() == int64(t.ID()) {
				return
			}
			out = append(out, h.byID[n.ID()])
		},
	}
	bf.Walk(h.subtypes, node(t), nil)
	return out
}

// DirectSubtypes returns the types naming t as super class or direct
// interface, in unspecified order.
func (h *Hierarchy) DirectSubtypes(t *program.Type) []*program.Type {
	if h.subtypes.Node(int64(t.ID())) == nil {
		return nil
	}
	var out []*program.Type
	to := h.subtypes.From(int64(t.ID()))
	for to.Next() {
		out = append(out, h.byID[to.Node().ID()])
	}
	return out
}
