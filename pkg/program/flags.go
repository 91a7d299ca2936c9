package program

import (
	"strings"
)

// AccessFlags is the JVM access flag bitset, extended with a constructor bit.
type AccessFlags uint32

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccConstructor  AccessFlags = 0x10000
)

var flagNames = map[string]AccessFlags{
	"public":       AccPublic,
	"private":      AccPrivate,
	"protected":    AccProtected,
	"static":       AccStatic,
	"final":        AccFinal,
	"synchronized": AccSynchronized,
	"volatile":     AccVolatile,
	"bridge":       AccBridge,
	"transient":    AccTransient,
	"varargs":      AccVarargs,
	"native":       AccNative,
	"interface":    AccInterface,
	"abstract":     AccAbstract,
	"strictfp":     AccStrict,
	"synthetic":    AccSynthetic,
	"annotation":   AccAnnotation,
	"enum":         AccEnum,
	"constructor":  AccConstructor,
}

// printOrder lists flag names in the order String renders them. Aliased bits
// (volatile/bridge, transient/varargs) print under their field spelling.
var printOrder = []string{
	"public", "private", "protected", "static", "final", "synchronized",
	"volatile", "transient", "native", "interface", "abstract", "strictfp",
	"synthetic", "annotation", "enum", "constructor",
}

// ParseAccessFlag maps a lower-case flag keyword to its bit.
func ParseAccessFlag(name string) (AccessFlags, bool) {
	f, ok := flagNames[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Has reports whether every bit of mask is set.
func (f AccessFlags) Has(mask AccessFlags) bool { return f&mask == mask }

// HasAny reports whether any bit of mask is set.
func (f AccessFlags) HasAny(mask AccessFlags) bool { return f&mask != 0 }

func (f AccessFlags) IsPublic() bool    { return f.Has(AccPublic) }
func (f AccessFlags) IsPrivate() bool   { return f.Has(AccPrivate) }
func (f AccessFlags) IsProtected() bool { return f.Has(AccProtected) }
func (f AccessFlags) IsStatic() bool    { return f.Has(AccStatic) }
func (f AccessFlags) IsAbstract() bool  { return f.Has(AccAbstract) }
func (f AccessFlags) IsInterface() bool { return f.Has(AccInterface) }
func (f AccessFlags) IsSynthetic() bool { return f.Has(AccSynthetic) }

// IsPackagePrivate reports the absence of public, protected and private.
func (f AccessFlags) IsPackagePrivate() bool {
	return !f.HasAny(AccPublic | AccProtected | AccPrivate)
}

func (f AccessFlags) String() string {
	var parts []string
	for _, name := range printOrder {
		if f.Has(flagNames[name]) {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}
