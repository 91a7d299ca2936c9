// Package enqueue computes the live parts of a program with Rapid Type
// Analysis over per-method code summaries, seeded by a RootSet.
//
// Rapid Type Analysis tabulates the cross-product of the virtual call sites
// and the instantiated classes: every virtual or interface call site
// dispatches to the implementations of the classes instantiated so far, and
// each newly instantiated class is dispatched against every call site seen
// so far. Both sets only grow, so the analysis reaches a fixed point.
//
// Each time a method becomes live its code summary is queued and later
// visited, which may in turn make further classes, fields and methods live.
package enqueue

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/715d/shrinkroot/pkg/hierarchy"
	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rootset"
)

// A Result holds the liveness facts of one enqueueing pass together with
// the references pinned by the RootSet.
type Result struct {
	rootset.Liveness

	// Pinned holds the references kept by a rule, including dependent items
	// whose precondition became live, sorted by their source strings.
	Pinned []program.Reference
}

// site is a virtual or interface call site, keyed by the static holder of
// the invoked reference.
type site struct {
	holder *program.Type
	sig    program.Signature
}

// Working state of the enqueuer.
type enqueuer struct {
	h      *hierarchy.Hierarchy
	app    *program.App
	rs     *rootset.RootSet
	result *Result

	pinned program.Set[program.Definition]

	// worklist holds live methods whose code was not visited yet.
	worklist []*program.MethodDef

	// sites holds every virtual and interface call site seen so far.
	sites program.Set[site]
	// siteList keeps sites in discovery order for dispatch.
	siteList []site
	// instantiated keeps instantiated classes in discovery order.
	instantiated []*program.ClassDef
}

// Analyze runs the enqueuer from the items pinned by rs until no new class,
// field or method becomes live.
func Analyze(h *hierarchy.Hierarchy, rs *rootset.RootSet) *Result {
	start := time.Now()
	e := &enqueuer{
		h:   h,
		app: h.App(),
		rs:  rs,
		result: &Result{Liveness: rootset.Liveness{
			LiveTypes:         make(program.Set[*program.Type]),
			InstantiatedTypes: make(program.Set[*program.Type]),
			LiveFields:        make(program.Set[*program.FieldDef]),
			LiveMethods:       make(program.Set[*program.MethodDef]),
			TargetedMethods:   make(program.Set[*program.MethodDef]),
		}},
		pinned: make(program.Set[program.Definition]),
		sites:  make(program.Set[site]),
	}

	const initialWorklistCap = 256
	e.worklist = make([]*program.MethodDef, 0, initialWorklistCap)

	roots := make([]program.Definition, 0, len(rs.NoShrinking))
	for item := range rs.NoShrinking {
		roots = append(roots, item)
	}
	slices.SortFunc(roots, func(a, b program.Definition) int { return cmp.Compare(a.String(), b.String()) })
	for _, item := range roots {
		e.keep(item)
	}

	// Visit methods until a fixed point is reached, swapping the worklist
	// with a shadow buffer to reuse its allocation.
	shadow := make([]*program.MethodDef, 0, initialWorklistCap)
	for len(e.worklist) > 0 {
		shadow, e.worklist = e.worklist, shadow[:0]
		for _, m := range shadow {
			e.visitMethod(m)
		}
	}

	for item := range e.pinned {
		e.result.Pinned = append(e.result.Pinned, item.Reference())
	}
	slices.SortFunc(e.result.Pinned, func(a, b program.Reference) int {
		return cmp.Compare(a.String(), b.String())
	})

	slog.Info("enqueued live items",
		"liveTypes", len(e.result.LiveTypes),
		"instantiated", len(e.result.InstantiatedTypes),
		"liveFields", len(e.result.LiveFields),
		"liveMethods", len(e.result.LiveMethods),
		"pinned", len(e.result.Pinned),
		"duration", time.Since(start))
	return e.result
}

// keep pins item and makes it live. A kept method is also targeted, and a
// kept instance initializer makes its holder instantiated.
func (e *enqueuer) keep(item program.Definition) {
	if !e.pinned.Add(item) {
		return
	}
	switch def := item.(type) {
	case *program.ClassDef:
		e.markTypeLive(def.Type)
	case *program.FieldDef:
		e.markFieldLive(def)
	case *program.MethodDef:
		e.markMethodTargeted(def)
		e.markMethodLive(def)
		if def.IsInstanceInitializer() {
			e.markInstantiated(e.app.DefinitionFor(def.Holder()))
		}
	default:
		panic("unexpected kept item " + item.String())
	}
}

// activate keeps the items that were waiting on precondition. Instance
// members of a class precondition wait for the class, or one of its
// subtypes, to be instantiated.
func (e *enqueuer) activate(precondition program.Definition, instantiated bool) {
	deps := e.rs.DependentItems(precondition)
	if len(deps) == 0 {
		return
	}
	_, isClass := precondition.(*program.ClassDef)
	items := make([]program.Definition, 0, len(deps))
	for item := range deps {
		if isClass && e.waitsForInstance(item) != instantiated {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b program.Definition) int { return cmp.Compare(a.String(), b.String()) })
	for _, item := range items {
		slog.Debug("activating dependent item", "item", item.String(), "precondition", precondition.String())
		e.keep(item)
	}
}

func (e *enqueuer) waitsForInstance(item program.Definition) bool {
	switch def := item.(type) {
	case *program.FieldDef:
		return !def.IsStatic()
	case *program.MethodDef:
		return !def.IsStatic()
	}
	return false
}

// markTypeLive makes t live together with its super types and its class
// initializer.
func (e *enqueuer) markTypeLive(t *program.Type) {
	if t == nil || !t.IsClass() {
		return
	}
	c := e.app.DefinitionFor(t)
	if c == nil || !e.result.LiveTypes.Add(t) {
		return
	}
	e.markTypeLive(c.Super)
	for _, iface := range c.Interfaces {
		e.markTypeLive(iface)
	}
	for m := range c.DirectMethods() {
		if m.IsClassInitializer() {
			e.markMethodLive(m)
		}
	}
	e.activate(c, false)
}

// markInstantiated records c as instantiated and dispatches every call site
// seen so far against it.
func (e *enqueuer) markInstantiated(c *program.ClassDef) {
	if c == nil || c.IsInterface() || c.IsAbstract() || !e.result.InstantiatedTypes.Add(c.Type) {
		return
	}
	e.markTypeLive(c.Type)
	e.instantiated = append(e.instantiated, c)
	for i := 0; i < len(e.siteList); i++ {
		e.dispatch(e.siteList[i], c)
	}
	e.activate(c, true)
	e.h.ForEachSuperType(c, func(t *program.Type, _ bool) {
		if def := e.app.DefinitionFor(t); def != nil {
			e.activate(def, true)
		}
	})
}

func (e *enqueuer) markFieldLive(f *program.FieldDef) {
	if f == nil || !e.result.LiveFields.Add(f) {
		return
	}
	e.markTypeLive(f.Holder())
	e.activate(f, false)
}

func (e *enqueuer) markMethodTargeted(m *program.MethodDef) {
	if m == nil || !e.result.TargetedMethods.Add(m) {
		return
	}
	e.markTypeLive(m.Holder())
	e.activate(m, false)
}

// markMethodLive makes m live and queues its code. Abstract methods are
// only ever targeted.
func (e *enqueuer) markMethodLive(m *program.MethodDef) {
	if m == nil || m.IsAbstract() || !e.result.LiveMethods.Add(m) {
		return
	}
	e.markTypeLive(m.Holder())
	if m.Code != nil {
		e.worklist = append(e.worklist, m)
	}
	e.activate(m, false)
}

func (e *enqueuer) visitMethod(m *program.MethodDef) {
	context := e.app.DefinitionFor(m.Holder())
	code := m.Code
	for _, t := range code.NewInstances {
		e.markInstantiated(e.app.DefinitionFor(t))
	}
	for _, inv := range code.Invokes {
		e.visitInvoke(context, inv)
	}
	for _, ref := range code.FieldReads {
		e.visitFieldAccess(ref)
	}
	for _, ref := range code.FieldWrites {
		e.visitFieldAccess(ref)
	}
}

func (e *enqueuer) visitInvoke(context *program.ClassDef, inv program.Invoke) {
	ref := inv.Method
	switch inv.Kind {
	case program.InvokeStatic:
		e.markTypeLive(ref.Holder)
		e.markInvoked(e.h.LookupStaticMethod(ref, context))
	case program.InvokeDirect:
		e.markInvoked(e.h.LookupDirectMethod(ref, context))
	case program.InvokeSuper:
		e.markInvoked(e.h.LookupSuperMethod(ref, context))
	case program.InvokeVirtual, program.InvokeInterface:
		e.visitVirtualInvoke(ref)
	default:
		panic("unexpected invoke kind")
	}
}

func (e *enqueuer) markInvoked(m *program.MethodDef) {
	e.markMethodTargeted(m)
	e.markMethodLive(m)
}

// visitVirtualInvoke targets the resolved method and records the call site
// so that classes instantiated later are dispatched against it.
func (e *enqueuer) visitVirtualInvoke(ref *program.MethodRef) {
	res := e.h.ResolveMethodOn(ref)
	resolved := res.SingleTarget()
	if resolved == nil {
		slog.Debug("unresolved virtual invoke", "method", ref.String())
		return
	}
	e.markMethodTargeted(resolved)
	if resolved.IsPrivate() || resolved.IsInstanceInitializer() {
		e.markMethodLive(resolved)
		return
	}
	holder := ref.Holder
	if holder.IsArray() {
		holder = e.app.ObjectType()
	}
	s := site{holder: holder, sig: ref.Signature()}
	if !e.sites.Add(s) {
		return
	}
	e.siteList = append(e.siteList, s)
	for i := 0; i < len(e.instantiated); i++ {
		e.dispatch(s, e.instantiated[i])
	}
}

// dispatch makes live the targets of s on an instance of c, if c is a
// subtype of the static holder of s.
func (e *enqueuer) dispatch(s site, c *program.ClassDef) {
	if !e.h.IsSubtype(c.Type, s.holder) {
		return
	}
	for _, m := range e.h.DispatchTargets(c, s.sig) {
		e.markInvoked(m)
	}
}

// visitFieldAccess makes the resolved field live. Static accesses also
// initialize the holder of the field.
func (e *enqueuer) visitFieldAccess(ref *program.FieldRef) {
	f := e.h.ResolveField(ref.Holder, ref)
	if f == nil {
		slog.Debug("unresolved field access", "field", ref.String())
		return
	}
	e.markFieldLive(f)
}
