package hierarchy

import (
	"github.com/715d/shrinkroot/pkg/program"
)

// ResolutionResult is the outcome of resolving a method reference. It is one
// of *SingleResolution, *NoResolution, *AmbiguousResolution or
// *IncompatibleClassResolution. Target lookups on anything but a
// *SingleResolution find nothing.
type ResolutionResult interface {
	// SingleTarget returns the resolved method, or nil.
	SingleTarget() *program.MethodDef
	LookupInvokeStaticTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef
	LookupInvokeSuperTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef
	LookupInvokeDirectTarget(context *program.ClassDef, h *Hierarchy) *program.MethodDef
	LookupVirtualDispatchTargets(h *Hierarchy) []*program.MethodDef
	LookupInterfaceTargets(h *Hierarchy) []*program.MethodDef

	isResolutionResult()
}

// SingleResolution is a reference that resolved to exactly one definition.
type SingleResolution struct {
	// ResolvedHolder declares Method.
	ResolvedHolder *program.ClassDef
	// InitialHolder is the class resolution started from.
	InitialHolder *program.ClassDef
	Method        *program.MethodDef
}

// NoResolutionReason says why a reference did not resolve.
type NoResolutionReason uint8

const (
	ClassNotFound NoResolutionReason = iota
	NoSuchMethod
)

func (r NoResolutionReason) String() string {
	if r == ClassNotFound {
		return "class not found"
	}
	return "no such method"
}

// NoResolution is a reference that does not resolve. Callers must assume the
// worst: the call may have side effects and any target may be live.
type NoResolution struct {
	failedResolution
	Reason NoResolutionReason
}

// AmbiguousResolution has several maximally specific default methods and no
// single most specific one; the VM throws IncompatibleClassChangeError.
type AmbiguousResolution struct {
	failedResolution
	Methods []*program.MethodDef
}

// IncompatibleClassResolution is a structural mismatch such as an interface
// invoke on a class or a class invoke on an interface.
type IncompatibleClassResolution struct {
	failedResolution
}

// failedResolution provides the empty lookups shared by all failures.
type failedResolution struct{}

func (failedResolution) SingleTarget() *program.MethodDef { return nil }

func (failedResolution) LookupInvokeStaticTarget(*program.ClassDef, *Hierarchy) *program.MethodDef {
	return nil
}

func (failedResolution) LookupInvokeSuperTarget(*program.ClassDef, *Hierarchy) *program.MethodDef {
	return nil
}

func (failedResolution) LookupInvokeDirectTarget(*program.ClassDef, *Hierarchy) *program.MethodDef {
	return nil
}

func (failedResolution) LookupVirtualDispatchTargets(*Hierarchy) []*program.MethodDef { return nil }
func (failedResolution) LookupInterfaceTargets(*Hierarchy) []*program.MethodDef       { return nil }
func (failedResolution) isResolutionResult()                                          {}

// ResolveMethod resolves ref starting at holder, following JVM resolution for
// invokeinterface when isInterface is set and for class invokes otherwise.
// Array holders resolve against java.lang.Object.
func (h *Hierarchy) ResolveMethod(holder *program.Type, ref *program.MethodRef, isInterface bool) ResolutionResult {
	if holder.IsArray() {
		holder = h.object
		isInterface = false
	}
	if !holder.IsClass() {
		return &NoResolution{Reason: ClassNotFound}
	}
	def := h.app.DefinitionFor(holder)
	if def == nil {
		return &NoResolution{Reason: ClassNotFound}
	}
	if isInterface {
		return h.resolveMethodOnInterface(def, ref.Signature())
	}
	return h.resolveMethodOnClass(def, ref.Signature())
}

// ResolveMethodOn resolves ref at its own holder, choosing interface or class
// resolution from the holder's definition.
func (h *Hierarchy) ResolveMethodOn(ref *program.MethodRef) ResolutionResult {
	def := h.app.DefinitionFor(ref.Holder)
	if def == nil {
		return h.ResolveMethod(ref.Holder, ref, false)
	}
	return h.ResolveMethod(ref.Holder, ref, def.IsInterface())
}

// ResolveMaximallySpecificMethods is used for emulated interface dispatch:
// an exact (possibly abstract) match on an interface wins, otherwise the
// maximally specific super-interface methods decide.
func (h *Hierarchy) ResolveMaximallySpecificMethods(c *program.ClassDef, ref *program.MethodRef) ResolutionResult {
	sig := ref.Signature()
	if c.IsInterface() {
		if m := c.LookupMethod(sig); m != nil {
			return &SingleResolution{ResolvedHolder: c, InitialHolder: c, Method: m}
		}
	}
	return h.resolveMethodStep3(c, sig)
}

func (h *Hierarchy) resolveMethodOnClass(c *program.ClassDef, sig program.Signature) ResolutionResult {
	if c.IsInterface() {
		return &IncompatibleClassResolution{}
	}
	// Step 2: the class and its super classes.
	for cur := c; cur != nil; cur = h.app.DefinitionFor(cur.Super) {
		if m := cur.LookupMethod(sig); m != nil {
			return &SingleResolution{ResolvedHolder: cur, InitialHolder: c, Method: m}
		}
	}
	// Step 3: maximally specific super-interface methods.
	return h.resolveMethodStep3(c, sig)
}

func (h *Hierarchy) resolveMethodOnInterface(c *program.ClassDef, sig program.Signature) ResolutionResult {
	if !c.IsInterface() {
		return &IncompatibleClassResolution{}
	}
	if m := c.LookupMethod(sig); m != nil {
		return &SingleResolution{ResolvedHolder: c, InitialHolder: c, Method: m}
	}
	// Public instance methods of java.lang.Object are members of every interface.
	if object := h.app.DefinitionFor(h.object); object != nil {
		if m := object.LookupMethod(sig); m != nil && m.Flags.IsPublic() && !m.IsStatic() {
			return &SingleResolution{ResolvedHolder: object, InitialHolder: c, Method: m}
		}
	}
	return h.resolveMethodStep3(c, sig)
}

type candidate struct {
	holder *program.ClassDef
	method *program.MethodDef
}

func (h *Hierarchy) resolveMethodStep3(c *program.ClassDef, sig program.Signature) ResolutionResult {
	candidates := h.maximallySpecific(c, sig)
	if len(candidates) == 0 {
		return &NoResolution{Reason: NoSuchMethod}
	}
	var concrete []candidate
	for _, cand := range candidates {
		if !cand.method.IsAbstract() {
			concrete = append(concrete, cand)
		}
	}
	switch len(concrete) {
	case 0:
		// Any of the abstract candidates is acceptable.
		return &SingleResolution{ResolvedHolder: candidates[0].holder, InitialHolder: c, Method: candidates[0].method}
	case 1:
		return &SingleResolution{ResolvedHolder: concrete[0].holder, InitialHolder: c, Method: concrete[0].method}
	}
	methods := make([]*program.MethodDef, len(concrete))
	for i, cand := range concrete {
		methods[i] = cand.method
	}
	return &AmbiguousResolution{Methods: methods}
}

// maximallySpecific collects the non-private instance methods matching sig
// declared on super-interfaces of c, dropping every candidate whose holder is a
// super-interface of another candidate's holder.
func (h *Hierarchy) maximallySpecific(c *program.ClassDef, sig program.Signature) []candidate {
	var candidates []candidate
	h.ForEachSuperType(c, func(t *program.Type, isInterface bool) {
		if !isInterface {
			return
		}
		def := h.app.DefinitionFor(t)
		if def == nil {
			return
		}
		if m := def.LookupMethod(sig); m != nil && !m.IsPrivate() && !m.IsStatic() {
			candidates = append(candidates, candidate{holder: def, method: m})
		}
	})
	if len(candidates) < 2 {
		return candidates
	}

	maximal := make([]candidate, 0, len(candidates))
	for i, cand := range candidates {
		shadowed := false
		for j, other := range candidates {
			if i != j && h.IsStrictSubtype(other.holder.Type, cand.holder.Type) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			maximal = append(maximal, cand)
		}
	}
	return maximal
}

// ContextFor returns the definition of t for use as an invocation context,
// or a minimal program class standing in for it when t has no definition.
func (h *Hierarchy) ContextFor(t *program.Type) *program.ClassDef {
	if def := h.app.DefinitionFor(t); def != nil {
		return def
	}
	return &program.ClassDef{Type: t, Super: h.object, Flags: program.AccPublic}
}

// IsAccessible reports whether a member with flags declared on holder may be
// accessed from code in context.
func (h *Hierarchy) IsAccessible(holder *program.ClassDef, flags program.AccessFlags, context *program.ClassDef) bool {
	samePackage := holder.Type.Package() == context.Type.Package()
	if !holder.Flags.IsPublic() && !samePackage {
		return false
	}
	switch {
	case flags.IsPublic():
		return true
	case flags.IsPrivate():
		return holder.Type == context.Type
	case flags.IsProtected():
		return samePackage || h.IsSubtype(context.Type, holder.Type)
	}
	return samePackage
}
