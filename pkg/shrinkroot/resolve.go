package shrinkroot

import (
	"fmt"

	"github.com/715d/shrinkroot/pkg/hierarchy"
	"github.com/715d/shrinkroot/pkg/program"
)

// Resolution is the answer to a resolution query: how the reference
// resolved and the methods an invoke of the given kind reaches at runtime.
type Resolution struct {
	Ref     *program.MethodRef
	Result  hierarchy.ResolutionResult
	Targets []*program.MethodDef
}

// Resolve resolves ref and looks up the targets of an invoke of kind from
// code in context. A nil context means the holder of ref.
func Resolve(h *hierarchy.Hierarchy, kind program.InvokeKind, ref *program.MethodRef, context *program.Type) *Resolution {
	if context == nil {
		context = ref.Holder
	}
	ctx := h.ContextFor(context)
	res := &Resolution{Ref: ref, Result: h.ResolveMethodOn(ref)}

	var target *program.MethodDef
	switch kind {
	case program.InvokeStatic:
		target = res.Result.LookupInvokeStaticTarget(ctx, h)
	case program.InvokeDirect:
		target = res.Result.LookupInvokeDirectTarget(ctx, h)
	case program.InvokeSuper:
		target = res.Result.LookupInvokeSuperTarget(ctx, h)
	case program.InvokeVirtual:
		res.Targets = res.Result.LookupVirtualDispatchTargets(h)
	case program.InvokeInterface:
		res.Targets = res.Result.LookupInterfaceTargets(h)
	default:
		panic(fmt.Sprintf("unexpected invoke kind %d", kind))
	}
	if target != nil {
		res.Targets = []*program.MethodDef{target}
	}
	return res
}

// Describe summarizes how the reference resolved.
func (r *Resolution) Describe() string {
	switch res := r.Result.(type) {
	case *hierarchy.SingleResolution:
		return "resolved to " + res.Method.String()
	case *hierarchy.NoResolution:
		return "no resolution: " + res.Reason.String()
	case *hierarchy.AmbiguousResolution:
		return fmt.Sprintf("ambiguous between %d maximally specific methods", len(res.Methods))
	case *hierarchy.IncompatibleClassResolution:
		return "incompatible class change"
	default:
		panic(fmt.Sprintf("unexpected resolution %T", r.Result))
	}
}
