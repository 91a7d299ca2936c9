package program

import (
	"log/slog"
	"slices"

	"github.com/yourbasic/graph"
)

// breakSupertypeCycles finds strongly connected components in the
// class→supertype graph and cuts every edge that stays inside a component.
// A cut super edge is redirected to java.lang.Object so the class remains
// below the root type; cut interface edges are dropped.
func breakSupertypeCycles(app *App) {
	all := make([]*ClassDef, 0, len(app.classes))
	all = append(all, app.program...)
	all = append(all, app.classpath...)
	all = append(all, app.library...)

	index := make(map[*Type]int, len(all))
	for i, c := range all {
		index[c.Type] = i
	}

	g := graph.New(len(all))
	selfLoop := make([]bool, len(all))
	for i, c := range all {
		edge := func(t *Type) {
			j, ok := index[t]
			if !ok {
				return
			}
			if i == j {
				selfLoop[i] = true
				return
			}
			g.Add(i, j)
		}
		if c.Super != nil {
			edge(c.Super)
		}
		for _, iface := range c.Interfaces {
			edge(iface)
		}
	}

	component := make([]int, len(all))
	for i := range component {
		component[i] = -1
	}
	for ci, comp := range graph.StrongComponents(g) {
		if len(comp) < 2 {
			continue
		}
		for _, v := range comp {
			component[v] = ci
		}
	}

	inCycle := func(i int, t *Type) bool {
		j, ok := index[t]
		if !ok {
			return false
		}
		if i == j {
			return true
		}
		return component[i] >= 0 && component[i] == component[j]
	}

	for i, c := range all {
		if component[i] < 0 && !selfLoop[i] {
			continue
		}
		if c.Super != nil && inCycle(i, c.Super) {
			slog.Warn("breaking supertype cycle", "type", c.Type.String(), "super", c.Super.String())
			if c.Type == app.Factory.ObjectType {
				c.Super = nil
			} else {
				c.Super = app.Factory.ObjectType
			}
		}
		if slices.ContainsFunc(c.Interfaces, func(t *Type) bool { return inCycle(i, t) }) {
			slog.Warn("breaking interface cycle", "type", c.Type.String())
			c.Interfaces = slices.DeleteFunc(slices.Clone(c.Interfaces), func(t *Type) bool { return inCycle(i, t) })
		}
	}
}
