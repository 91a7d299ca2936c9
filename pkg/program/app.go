package program

import (
	"cmp"
	"log/slog"
	"slices"
)

// Set is a generic set.
type Set[T comparable] map[T]struct{}

// Add inserts v and reports whether it was not present before.
func (s Set[T]) Add(v T) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// MergedClasses maps a post-merge type to the types vertically merged into it.
type MergedClasses map[*Type][]*Type

// SourcesFor returns the types merged into t.
func (m MergedClasses) SourcesFor(t *Type) []*Type {
	if m == nil {
		return nil
	}
	return m[t]
}

// App is a closed-world application: program, classpath and library classes
// keyed by type. An App is read-only once constructed.
type App struct {
	Factory *Factory

	classes   map[*Type]*ClassDef
	program   []*ClassDef
	classpath []*ClassDef
	library   []*ClassDef
	merged    MergedClasses
}

// NewApp indexes the given classes. When a type is defined more than once the
// program definition wins over classpath, classpath over library, and among
// equals the first one wins. Supertype cycles are cut so that traversal over
// the hierarchy always terminates.
func NewApp(factory *Factory, classes []*ClassDef, merged MergedClasses) *App {
	app := &App{
		Factory: factory,
		classes: make(map[*Type]*ClassDef, len(classes)),
		merged:  merged,
	}
	for _, c := range classes {
		prev, ok := app.classes[c.Type]
		if ok {
			if c.Provenance >= prev.Provenance {
				slog.Warn("ignoring duplicate class definition",
					"type", c.Type.String(), "kept", prev.Provenance.String(), "dropped", c.Provenance.String())
				continue
			}
			slog.Debug("class definition shadows a lower-priority one",
				"type", c.Type.String(), "kept", c.Provenance.String(), "dropped", prev.Provenance.String())
		}
		app.classes[c.Type] = c
	}

	for _, c := range app.classes {
		c.index()
		switch c.Provenance {
		case ProvenanceProgram:
			app.program = append(app.program, c)
		case ProvenanceClasspath:
			app.classpath = append(app.classpath, c)
		default:
			app.library = append(app.library, c)
		}
	}
	byName := func(a, b *ClassDef) int { return cmp.Compare(a.Type.name, b.Type.name) }
	slices.SortFunc(app.program, byName)
	slices.SortFunc(app.classpath, byName)
	slices.SortFunc(app.library, byName)

	breakSupertypeCycles(app)
	return app
}

// DefinitionFor returns the class definition of t, or nil if t is unknown.
func (a *App) DefinitionFor(t *Type) *ClassDef {
	if t == nil {
		return nil
	}
	return a.classes[t]
}

// DefinitionForMethod returns the method declared exactly at ref's holder.
func (a *App) DefinitionForMethod(ref *MethodRef) *MethodDef {
	c := a.DefinitionFor(ref.Holder)
	if c == nil {
		return nil
	}
	return c.LookupMethod(ref.Signature())
}

// DefinitionForField returns the field declared exactly at ref's holder.
func (a *App) DefinitionForField(ref *FieldRef) *FieldDef {
	c := a.DefinitionFor(ref.Holder)
	if c == nil {
		return nil
	}
	return c.LookupField(ref.Name, ref.Type)
}

// DefinitionForReference dispatches on the kind of reference.
func (a *App) DefinitionForReference(ref Reference) Definition {
	switch r := ref.(type) {
	case *Type:
		if c := a.DefinitionFor(r); c != nil {
			return c
		}
	case *FieldRef:
		if f := a.DefinitionForField(r); f != nil {
			return f
		}
	case *MethodRef:
		if m := a.DefinitionForMethod(r); m != nil {
			return m
		}
	}
	return nil
}

// ProgramClasses returns the program classes sorted by name.
func (a *App) ProgramClasses() []*ClassDef { return a.program }

// ClasspathClasses returns the classpath classes sorted by name.
func (a *App) ClasspathClasses() []*ClassDef { return a.classpath }

// LibraryClasses returns the library classes sorted by name.
func (a *App) LibraryClasses() []*ClassDef { return a.library }

// NumClasses returns the number of distinct class definitions.
func (a *App) NumClasses() int { return len(a.classes) }

// Merged returns the vertical class merging oracle; it may be nil.
func (a *App) Merged() MergedClasses { return a.merged }

// ObjectType is shorthand for the interned java.lang.Object type.
func (a *App) ObjectType() *Type { return a.Factory.ObjectType }
