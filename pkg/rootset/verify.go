package rootset

import (
	"fmt"

	"github.com/715d/shrinkroot/pkg/program"
)

// Liveness is what a completed liveness pass proved about the program.
type Liveness struct {
	LiveTypes         program.Set[*program.Type]
	InstantiatedTypes program.Set[*program.Type]
	LiveFields        program.Set[*program.FieldDef]
	LiveMethods       program.Set[*program.MethodDef]
	TargetedMethods   program.Set[*program.MethodDef]
}

// VerifyKeptTypesAreLive checks that every pinned class is live.
func (r *RootSet) VerifyKeptTypesAreLive(live *Liveness) error {
	for _, item := range sortedItems(r.NoShrinking) {
		if c, ok := item.(*program.ClassDef); ok && !live.LiveTypes.Has(c.Type) {
			return fmt.Errorf("kept type %s is not live", c)
		}
	}
	return nil
}

// VerifyKeptFieldsAreLive checks that pinned fields are live, unless they are
// instance fields of a class that is not kept itself.
func (r *RootSet) VerifyKeptFieldsAreLive(app *program.App, live *Liveness) error {
	for _, item := range sortedItems(r.NoShrinking) {
		f, ok := item.(*program.FieldDef)
		if !ok {
			continue
		}
		if (f.IsStatic() || r.IsKeptDirectlyOrIndirectly(app, f.Holder())) && !live.LiveFields.Has(f) {
			return fmt.Errorf("kept field %s is not live", f)
		}
	}
	return nil
}

// VerifyKeptMethodsAreTargetedAndLive checks that pinned methods are
// targeted, and live when they have code and a kept holder.
func (r *RootSet) VerifyKeptMethodsAreTargetedAndLive(app *program.App, live *Liveness) error {
	for _, item := range sortedItems(r.NoShrinking) {
		m, ok := item.(*program.MethodDef)
		if !ok {
			continue
		}
		if !live.TargetedMethods.Has(m) {
			return fmt.Errorf("kept method %s is not targeted", m)
		}
		if !m.IsAbstract() && r.IsKeptDirectlyOrIndirectly(app, m.Holder()) && !live.LiveMethods.Has(m) {
			return fmt.Errorf("kept method %s is not live", m)
		}
	}
	return nil
}

// VerifyKeptItemsArePresent checks that every pinned item is still defined
// in app.
func (r *RootSet) VerifyKeptItemsArePresent(app *program.App) error {
	for _, item := range sortedItems(r.NoShrinking) {
		if app.DefinitionForReference(item.Reference()) != item {
			return fmt.Errorf("kept item %s is not present", item)
		}
	}
	return nil
}
