package ast

// BuiltinKind enumerates the reserved type identifiers: s8…s64, u8…u64, usize,
// f32, f64, bool, void, type, null, string.
type BuiltinKind int

const (
	BuiltinNone BuiltinKind = iota
	BuiltinS8
	BuiltinS16
	BuiltinS32
	BuiltinS64
	BuiltinU8
	BuiltinU16
	BuiltinU32
	BuiltinU64
	BuiltinUsize
	BuiltinF32
	BuiltinF64
	BuiltinBool
	BuiltinVoid
	BuiltinType
	BuiltinNull
	BuiltinString
)

// builtinNames maps the reserved identifier spelling to its BuiltinKind. The
// analyzer hashes identifiers against this table before treating them as ordinary
// scope lookups.
var builtinNames = map[string]BuiltinKind{
	"s8":     BuiltinS8,
	"s16":    BuiltinS16,
	"s32":    BuiltinS32,
	"s64":    BuiltinS64,
	"u8":     BuiltinU8,
	"u16":    BuiltinU16,
	"u32":    BuiltinU32,
	"u64":    BuiltinU64,
	"usize":  BuiltinUsize,
	"f32":    BuiltinF32,
	"f64":    BuiltinF64,
	"bool":   BuiltinBool,
	"void":   BuiltinVoid,
	"type":   BuiltinType,
	"null":   BuiltinNull,
	"string": BuiltinString,
}

// LookupBuiltin returns the BuiltinKind for name, or BuiltinNone if name is not a
// reserved identifier.
func LookupBuiltin(name string) BuiltinKind {
	if k, ok := builtinNames[name]; ok {
		return k
	}
	return BuiltinNone
}
