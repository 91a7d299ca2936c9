package hierarchy

import (
	"golang.org/x/tools/container/intsets"

	"github.com/715d/shrinkroot/pkg/program"
)

// TraverseSuperTypes visits every strict supertype and every transitively
// implemented interface of c exactly once, in unspecified order. c itself is
// never visited. It returns Break iff visit returned Break.
//
// The super class chain is walked first without allocating; a seen-set and
// worklist are only created when some class on the chain has interfaces.
// Supertypes without a definition are visited but not expanded.
func (h *Hierarchy) TraverseSuperTypes(c *program.ClassDef, visit func(t *program.Type, isInterface bool) Traversal) Traversal {
	interfaces := 0
	for cur := c; cur != nil; {
		interfaces += len(cur.Interfaces)
		if cur.Super == nil {
			break
		}
		if visit(cur.Super, false) == Break {
			return Break
		}
		cur = h.app.DefinitionFor(cur.Super)
	}
	if interfaces == 0 {
		return Continue
	}

	var seen intsets.Sparse
	worklist := make([]*program.Type, 0, interfaces)
	for cur := c; cur != nil; {
		for _, iface := range cur.Interfaces {
			if !seen.Insert(iface.ID()) {
				continue
			}
			if visit(iface, true) == Break {
				return Break
			}
			worklist = append(worklist, iface)
		}
		if cur.Super == nil {
			break
		}
		cur = h.app.DefinitionFor(cur.Super)
	}

	for len(worklist) > 0 {
		t := worklist[0]
		worklist = worklist[1:]
		def := h.app.DefinitionFor(t)
		if def == nil {
			continue
		}
		for _, iface := range def.Interfaces {
			if !seen.Insert(iface.ID()) {
				continue
			}
			if visit(iface, true) == Break {
				return Break
			}
			worklist = append(worklist, iface)
		}
	}
	return Continue
}

// ForEachSuperType is TraverseSuperTypes without early exit.
func (h *Hierarchy) ForEachSuperType(c *program.ClassDef, fn func(t *program.Type, isInterface bool)) {
	h.TraverseSuperTypes(c, func(t *program.Type, isInterface bool) Traversal {
		fn(t, isInterface)
		return Continue
	})
}

// IsSubtype reports whether sub equals sup or is a strict subtype of it.
func (h *Hierarchy) IsSubtype(sub, sup *program.Type) bool {
	return sub == sup || h.IsStrictSubtype(sub, sup)
}

// IsStrictSubtype reports whether sub is a proper subtype of sup. Object is
// treated as the supertype of every other type even when a hierarchy is
// broken, and is itself a subtype of nothing.
func (h *Hierarchy) IsStrictSubtype(sub, sup *program.Type) bool {
	if sub == sup {
		return false
	}
	if sub == h.object {
		return false
	}
	if sup == h.object {
		return true
	}
	if !sub.IsClass() || !sup.IsClass() {
		return false
	}
	def := h.app.DefinitionFor(sub)
	if def == nil {
		return false
	}
	return h.TraverseSuperTypes(def, func(t *program.Type, _ bool) Traversal {
		if t == sup {
			return Break
		}
		return Continue
	}) == Break
}

// IsRelatedBySubtyping reports whether either type is a subtype of the other.
func (h *Hierarchy) IsRelatedBySubtyping(a, b *program.Type) bool {
	return h.IsSubtype(a, b) || h.IsSubtype(b, a)
}

// ImplementedInterfaces returns every interface t implements directly or
// indirectly, including t itself when t is an interface.
func (h *Hierarchy) ImplementedInterfaces(t *program.Type) program.Set[*program.Type] {
	def := h.app.DefinitionFor(t)
	if def == nil {
		return program.Set[*program.Type]{}
	}

	// Fast path for a type directly below object without interfaces.
	if def.Super == h.object && len(def.Interfaces) == 0 {
		if def.IsInterface() {
			return program.Set[*program.Type]{t: {}}
		}
		return program.Set[*program.Type]{}
	}

	interfaces := program.Set[*program.Type]{}
	if def.IsInterface() {
		interfaces.Add(t)
	}
	h.ForEachSuperType(def, func(st *program.Type, isInterface bool) {
		if isInterface {
			interfaces.Add(st)
		}
	})
	return interfaces
}

// IsSerializable reports whether t is a subtype of java.io.Serializable.
func (h *Hierarchy) IsSerializable(t *program.Type) bool {
	return h.IsSubtype(t, h.app.Factory.Type(program.SerializableName))
}

// IsExternalizable reports whether t is a subtype of java.io.Externalizable.
func (h *Hierarchy) IsExternalizable(t *program.Type) bool {
	return h.IsSubtype(t, h.app.Factory.Type(program.ExternalizableName))
}
