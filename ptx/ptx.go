// Package ptx maps trace element types onto the NVIDIA PTX type system.
//
// Every value flowing through the tracer carries a Type tag. The tag decides how
// wide the value is in device memory, which instruction suffix arithmetic on it
// uses, and which virtual register file it lives in. Lookup is a pure, total
// function over the closed Type set; everything else in the package is derived
// from its table.
package ptx

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Type is the element type of a trace variable.
//
// The zero value is Invalid, used for placeholder variables that have not been
// assigned a real type yet.
type Type uint8

//go:generate go tool enumer -type=Type -output=gen_type_enumer.go ptx.go

const (
	Invalid Type = iota
	I8
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	F16
	F32
	F64
	Bool
	Pointer
)

// NumTypes is one past the largest valid Type value.
const NumTypes = int(Pointer) + 1

// Info describes how a Type is rendered in PTX.
type Info struct {
	// Size in bytes of one element in device memory. Bool is stored as one byte
	// even though it computes in the predicate register file. Invalid has Size -1.
	Size int

	// Name is the PTX type token used for typed instructions, e.g. "f32" in
	// "add.f32".
	Name string

	// BinName is the bit-pattern token of the same width, e.g. "b32", used where
	// PTX wants an untyped operand.
	BinName string

	// RegPrefix is the virtual register name prefix, e.g. "%f". The emitter
	// concatenates it with the schedule-assigned register index.
	RegPrefix string
}

var infoTable = [NumTypes]Info{
	Invalid: {Size: -1, Name: "???", BinName: "???", RegPrefix: "%u"},
	I8:      {Size: 1, Name: "s8", BinName: "b8", RegPrefix: "%rc"},
	U8:      {Size: 1, Name: "u8", BinName: "b8", RegPrefix: "%rc"},
	I16:     {Size: 2, Name: "s16", BinName: "b16", RegPrefix: "%rs"},
	U16:     {Size: 2, Name: "u16", BinName: "b16", RegPrefix: "%rs"},
	I32:     {Size: 4, Name: "s32", BinName: "b32", RegPrefix: "%r"},
	U32:     {Size: 4, Name: "u32", BinName: "b32", RegPrefix: "%r"},
	I64:     {Size: 8, Name: "s64", BinName: "b64", RegPrefix: "%rd"},
	U64:     {Size: 8, Name: "u64", BinName: "b64", RegPrefix: "%rd"},
	F16:     {Size: 2, Name: "f16", BinName: "b16", RegPrefix: "%h"},
	F32:     {Size: 4, Name: "f32", BinName: "b32", RegPrefix: "%f"},
	F64:     {Size: 8, Name: "f64", BinName: "b64", RegPrefix: "%d"},
	Bool:    {Size: 1, Name: "pred", BinName: "pred", RegPrefix: "%p"},
	Pointer: {Size: 8, Name: "u64", BinName: "b64", RegPrefix: "%rd"},
}

// Lookup returns the PTX rendering of t. It is total over the closed Type set:
// Invalid yields sentinel tokens, and out-of-range values panic.
func Lookup(t Type) Info {
	if int(t) >= NumTypes {
		exceptions.Panicf("ptx.Lookup: unknown element type %d", t)
	}
	return infoTable[t]
}

// Size is shorthand for Lookup(t).Size.
func (t Type) Size() int { return Lookup(t).Size }

// RegisterFile is one virtual register file declared in every kernel preamble.
type RegisterFile struct {
	// Decl is the PTX register declaration type, e.g. "b32" for ".reg.b32".
	Decl string

	// Prefix matches Info.RegPrefix for the types living in this file.
	Prefix string
}

// RegisterFiles lists every register file the emitter declares, in declaration
// order. Bool predicates share %p; F16 gets its own b16 file so that integer
// b16 register numbering stays independent of half-precision numbering.
var RegisterFiles = []RegisterFile{
	{Decl: "b8", Prefix: "%rc"},
	{Decl: "b16", Prefix: "%rs"},
	{Decl: "b16", Prefix: "%h"},
	{Decl: "b32", Prefix: "%r"},
	{Decl: "b64", Prefix: "%rd"},
	{Decl: "f32", Prefix: "%f"},
	{Decl: "f64", Prefix: "%d"},
	{Decl: "pred", Prefix: "%p"},
}

// FromDType converts a gopjrt dtype to the corresponding Type.
// DTypes with no PTX rendering (BFloat16, complex) convert to Invalid.
func FromDType(dt dtypes.DType) Type {
	switch dt {
	case dtypes.Bool:
		return Bool
	case dtypes.Int8:
		return I8
	case dtypes.Uint8:
		return U8
	case dtypes.Int16:
		return I16
	case dtypes.Uint16:
		return U16
	case dtypes.Int32:
		return I32
	case dtypes.Uint32:
		return U32
	case dtypes.Int64:
		return I64
	case dtypes.Uint64:
		return U64
	case dtypes.Float16:
		return F16
	case dtypes.Float32:
		return F32
	case dtypes.Float64:
		return F64
	}
	return Invalid
}

// DType converts t back to a gopjrt dtype. Pointer shares the Uint64 encoding;
// Invalid maps to dtypes.InvalidDType.
func (t Type) DType() dtypes.DType {
	switch t {
	case Bool:
		return dtypes.Bool
	case I8:
		return dtypes.Int8
	case U8:
		return dtypes.Uint8
	case I16:
		return dtypes.Int16
	case U16:
		return dtypes.Uint16
	case I32:
		return dtypes.Int32
	case U32:
		return dtypes.Uint32
	case I64:
		return dtypes.Int64
	case U64, Pointer:
		return dtypes.Uint64
	case F16:
		return dtypes.Float16
	case F32:
		return dtypes.Float32
	case F64:
		return dtypes.Float64
	}
	return dtypes.InvalidDType
}
