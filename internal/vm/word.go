package vm

import "minijvm/internal/classfile"

// Kind discriminates the payload a Word carries, mirroring the
// Byte/Short/Int/Long/Char/Float/Double/Boolean/ReturnAddress/Reference/
// ClassObject/Null union spec.md's glossary defines for operand-stack and
// local-variable slots.
type Kind int

const (
	KindByte Kind = iota
	KindShort
	KindInt
	KindLong
	KindChar
	KindFloat
	KindDouble
	KindBoolean
	KindReturnAddress
	KindReference
	KindClassObject
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindChar:
		return "char"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindReturnAddress:
		return "returnAddress"
	case KindReference:
		return "reference"
	case KindClassObject:
		return "classObject"
	case KindNull:
		return "null"
	}
	return "unknown"
}

// Word is a single operand-stack/local-variable cell. Unlike the teacher's
// frame.go, which carries only TypeInt/TypeRef/TypeNull, Word spans every
// variant spec.md's glossary names. Long and Double still occupy exactly one
// Word here (not two slots as the real JVM's local-variable array does),
// since nothing in this core's opcode coverage performs two-slot local
// addressing — a documented simplification, not an oversight.
type Word struct {
	kind  Kind
	i     int64
	f     float64
	ref   Ref
	class *classfile.Class
}

func (w Word) Kind() Kind { return w.kind }

func IntWord(v int32) Word          { return Word{kind: KindInt, i: int64(v)} }
func ByteWord(v int8) Word          { return Word{kind: KindByte, i: int64(v)} }
func ShortWord(v int16) Word        { return Word{kind: KindShort, i: int64(v)} }
func LongWord(v int64) Word         { return Word{kind: KindLong, i: v} }
func CharWord(v uint16) Word        { return Word{kind: KindChar, i: int64(v)} }
func FloatWord(v float32) Word      { return Word{kind: KindFloat, f: float64(v)} }
func DoubleWord(v float64) Word     { return Word{kind: KindDouble, f: v} }
func BoolWord(v bool) Word {
	var i int64
	if v {
		i = 1
	}
	return Word{kind: KindBoolean, i: i}
}
func ReturnAddressWord(pc int) Word { return Word{kind: KindReturnAddress, i: int64(pc)} }
func ReferenceWord(r Ref) Word      { return Word{kind: KindReference, ref: r} }
func ClassObjectWord(c *classfile.Class) Word {
	return Word{kind: KindClassObject, class: c}
}
func NullWord() Word { return Word{kind: KindNull, ref: NullRef{}} }

// Int returns the Word's value as an int32, valid for Byte/Short/Int/Char/
// Boolean/ReturnAddress kinds.
func (w Word) Int() int32 { return int32(w.i) }

// Long returns the Word's value as an int64, valid for the Long kind (and
// any integral kind, since every integral Word stores its value widened).
func (w Word) Long() int64 { return w.i }

// Float returns the Word's value as a float32, valid for the Float kind.
func (w Word) Float() float32 { return float32(w.f) }

// Double returns the Word's value as a float64, valid for the Double kind.
func (w Word) Double() float64 { return w.f }

// Bool returns the Word's value as a bool, valid for the Boolean kind.
func (w Word) Bool() bool { return w.i != 0 }

// Reference returns the Word's referent, valid for Reference and Null kinds.
func (w Word) Reference() Ref { return w.ref }

// Class returns the Word's class object, valid for the ClassObject kind.
func (w Word) Class() *classfile.Class { return w.class }

// FromFieldValue converts a classfile.FieldValue (a static field's current
// contents) into the operand-stack representation a getstatic pushes.
func FromFieldValue(v classfile.FieldValue) Word {
	switch fv := v.(type) {
	case classfile.IntValue:
		return IntWord(int32(fv))
	case classfile.LongValue:
		return LongWord(int64(fv))
	case classfile.FloatValue:
		return FloatWord(float32(fv))
	case classfile.DoubleValue:
		return DoubleWord(float64(fv))
	case classfile.BoolValue:
		return BoolWord(bool(fv))
	case classfile.NullValue:
		return NullWord()
	default:
		return NullWord()
	}
}

// ToFieldValue converts an operand-stack Word into the static-field
// representation a putstatic writes, mirroring FromFieldValue's cases.
func ToFieldValue(w Word) classfile.FieldValue {
	switch w.kind {
	case KindByte, KindShort, KindInt, KindChar, KindReturnAddress:
		return classfile.IntValue(w.Int())
	case KindLong:
		return classfile.LongValue(w.Long())
	case KindFloat:
		return classfile.FloatValue(w.Float())
	case KindDouble:
		return classfile.DoubleValue(w.Double())
	case KindBoolean:
		return classfile.BoolValue(w.Bool())
	default:
		return classfile.NullValue{}
	}
}
