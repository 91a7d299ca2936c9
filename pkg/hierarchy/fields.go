package hierarchy

import "github.com/715d/shrinkroot/pkg/program"

// ResolveField resolves ref starting at holder: the holder's own
// declarations, then its super-interfaces recursively, then its super class.
func (h *Hierarchy) ResolveField(holder *program.Type, ref *program.FieldRef) *program.FieldDef {
	def := h.app.DefinitionFor(holder)
	if def == nil {
		return nil
	}
	return h.resolveFieldOn(def, ref.Name, ref.Type)
}

func (h *Hierarchy) resolveFieldOn(c *program.ClassDef, name string, typ *program.Type) *program.FieldDef {
	if f := c.LookupField(name, typ); f != nil {
		return f
	}
	for _, iface := range c.Interfaces {
		if def := h.app.DefinitionFor(iface); def != nil {
			if f := h.resolveFieldOn(def, name, typ); f != nil {
				return f
			}
		}
	}
	if super := h.app.DefinitionFor(c.Super); super != nil {
		return h.resolveFieldOn(super, name, typ)
	}
	return nil
}

// LookupInstanceTarget resolves ref at its holder and returns the field if it
// is an instance field.
func (h *Hierarchy) LookupInstanceTarget(ref *program.FieldRef) *program.FieldDef {
	f := h.ResolveField(ref.Holder, ref)
	if f == nil || f.IsStatic() {
		return nil
	}
	return f
}

// LookupStaticTarget resolves ref at its holder and returns the field if it
// is static.
func (h *Hierarchy) LookupStaticTarget(ref *program.FieldRef) *program.FieldDef {
	f := h.ResolveField(ref.Holder, ref)
	if f == nil || !f.IsStatic() {
		return nil
	}
	return f
}
