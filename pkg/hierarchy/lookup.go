package hierarchy

import (
	"slices"
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
)

func (r *SingleResolution) SingleTarget() *program.MethodDef { return r.Method }

func (r *SingleResolution) isResolutionResult() {}

// LookupInvokeStaticTarget returns the target of an invokestatic from
// context, or nil if the resolved method is not static or not accessible.
func (r *SingleResolution) LookupInvokeStaticTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef {
	if !r.Method.IsStatic() || !h.IsAccessible(r.ResolvedHolder, r.Method.Flags, context) {
		return nil
	}
	return r.Method
}

// LookupInvokeDirectTarget returns the target of a direct (non-virtual)
// invoke of a private method or an instance initializer.
func (r *SingleResolution) LookupInvokeDirectTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef {
	m := r.Method
	if m.IsStatic() || !h.IsAccessible(r.ResolvedHolder, m.Flags, context) {
		return nil
	}
	if m.IsPrivate() || m.IsInstanceInitializer() {
		return m
	}
	return nil
}

// LookupInvokeSuperTarget returns the method executed by an invokespecial
// from context. When the resolved holder is a proper super class of context,
// selection starts at the direct super class of context rather than at the
// symbolic holder. Abstract selections yield nil.
func (r *SingleResolution) LookupInvokeSuperTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef {
	m := r.Method
	if !h.IsAccessible(r.ResolvedHolder, m.Flags, context) || m.IsStatic() {
		return nil
	}
	if m.IsInstanceInitializer() || (m.IsPrivate() && r.ResolvedHolder.Type == context.Type) {
		return m
	}

	start := r.InitialHolder
	if !start.IsInterface() && !context.IsInterface() && h.IsStrictSubtype(context.Type, start.Type) {
		start = h.app.DefinitionFor(context.Super)
	}
	if start == nil {
		return nil
	}

	sig := m.Ref.Signature()
	if start.IsInterface() {
		if t := start.LookupMethod(sig); t != nil && !t.IsStatic() {
			if t.IsAbstract() {
				return nil
			}
			return t
		}
		if object := h.app.DefinitionFor(h.object); object != nil {
			if t := object.LookupMethod(sig); t != nil && t.Flags.IsPublic() && !t.IsStatic() {
				return t
			}
		}
	} else {
		// The class chain ends at java.lang.Object.
		for c := start; c != nil; c = h.app.DefinitionFor(c.Super) {
			if t := c.LookupMethod(sig); t != nil && !t.IsStatic() {
				if t.IsAbstract() {
					return nil
				}
				return t
			}
		}
	}

	if t := h.resolveMethodStep3(start, sig).SingleTarget(); t != nil && !t.IsAbstract() {
		return t
	}
	return nil
}

// LookupVirtualDispatchTargets returns every non-abstract method an
// invokevirtual of the resolved method may execute, over all receivers that
// are the initial holder or one of its subtypes.
func (r *SingleResolution) LookupVirtualDispatchTargets(h *Hierarchy) []*program.MethodDef {
	m := r.Method
	if m.IsStatic() {
		return nil
	}
	if m.IsPrivate() || m.IsInstanceInitializer() {
		return []*program.MethodDef{m}
	}
	return h.dispatchTargets(r.InitialHolder, m.Ref.Signature())
}

// LookupInterfaceTargets returns every non-abstract method an
// invokeinterface of the resolved method may execute. Ambiguous default
// methods on a receiver contribute all of their candidates.
func (r *SingleResolution) LookupInterfaceTargets(h *Hierarchy) []*program.MethodDef {
	m := r.Method
	if m.IsStatic() || m.IsPrivate() {
		return nil
	}
	return h.dispatchTargets(r.InitialHolder, m.Ref.Signature())
}

func (h *Hierarchy) dispatchTargets(initial *program.ClassDef, sig program.Signature) []*program.MethodDef {
	seen := program.Set[*program.MethodDef]{}
	var out []*program.MethodDef
	consider := func(t *program.Type) {
		def := h.app.DefinitionFor(t)
		if def == nil || def.IsInterface() {
			return
		}
		for _, m := range h.DispatchTargets(def, sig) {
			if seen.Add(m) {
				out = append(out, m)
			}
		}
	}
	consider(initial.Type)
	for _, sub := range h.Subtypes(initial.Type) {
		consider(sub)
	}
	slices.SortFunc(out, func(a, b *program.MethodDef) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// DispatchTargets returns the methods a virtual call of sig executes on an
// instance of receiver. It is the first overridable declaration on the class
// chain when there is one, or the maximally specific default methods
// otherwise. The result is empty when selection finds an abstract method and
// holds more than one method when defaults are ambiguous.
func (h *Hierarchy) DispatchTargets(receiver *program.ClassDef, sig program.Signature) []*program.MethodDef {
	for c := receiver; c != nil; c = h.app.DefinitionFor(c.Super) {
		m := c.LookupMethod(sig)
		if m == nil || m.IsDirect() {
			continue
		}
		if m.IsAbstract() {
			return nil
		}
		return []*program.MethodDef{m}
	}

	var out []*program.MethodDef
	for _, cand := range h.maximallySpecific(receiver, sig) {
		if !cand.method.IsAbstract() {
			out = append(out, cand.method)
		}
	}
	return out
}

// LookupStaticMethod resolves ref and returns its invokestatic target from
// context.
func (h *Hierarchy) LookupStaticMethod(ref *program.MethodRef, context *program.ClassDef) *program.MethodDef {
	return h.ResolveMethodOn(ref).LookupInvokeStaticTarget(context, h)
}

// LookupDirectMethod resolves ref and returns its direct invoke target from
// context.
func (h *Hierarchy) LookupDirectMethod(ref *program.MethodRef, context *program.ClassDef) *program.MethodDef {
	return h.ResolveMethodOn(ref).LookupInvokeDirectTarget(context, h)
}

// LookupSuperMethod resolves ref and returns its invokespecial target from
// context.
func (h *Hierarchy) LookupSuperMethod(ref *program.MethodRef, context *program.ClassDef) *program.MethodDef {
	return h.ResolveMethodOn(ref).LookupInvokeSuperTarget(context, h)
}
