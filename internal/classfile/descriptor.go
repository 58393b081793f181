package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadDescriptor is returned for a malformed field or method descriptor.
var ErrBadDescriptor = errors.New("classfile: bad descriptor")

// BaseType enumerates the primitive and reference shapes a FieldType can take.
type BaseType int

const (
	TByte BaseType = iota
	TShort
	TInt
	TLong
	TChar
	TFloat
	TDouble
	TBoolean
	TClass
	TArray
)

// FieldType is a parsed field descriptor: a primitive, a class reference,
// or an array of some FieldType.
type FieldType struct {
	Base      BaseType
	ClassName string     // set when Base == TClass; internal form (slash-separated)
	Elem      *FieldType // set when Base == TArray
}

func (f FieldType) String() string {
	switch f.Base {
	case TByte:
		return "B"
	case TShort:
		return "S"
	case TInt:
		return "I"
	case TLong:
		return "J"
	case TChar:
		return "C"
	case TFloat:
		return "F"
	case TDouble:
		return "D"
	case TBoolean:
		return "Z"
	case TClass:
		return "L" + f.ClassName + ";"
	case TArray:
		return "[" + f.Elem.String()
	}
	return "?"
}

// ParseFieldType consumes a single field descriptor from the head of s,
// returning the parsed type and the number of bytes consumed.
func ParseFieldType(s string) (FieldType, int, error) {
	if len(s) == 0 {
		return FieldType{}, 0, fmt.Errorf("%w: empty field descriptor", ErrBadDescriptor)
	}
	switch s[0] {
	case 'B':
		return FieldType{Base: TByte}, 1, nil
	case 'S':
		return FieldType{Base: TShort}, 1, nil
	case 'I':
		return FieldType{Base: TInt}, 1, nil
	case 'J':
		return FieldType{Base: TLong}, 1, nil
	case 'C':
		return FieldType{Base: TChar}, 1, nil
	case 'F':
		return FieldType{Base: TFloat}, 1, nil
	case 'D':
		return FieldType{Base: TDouble}, 1, nil
	case 'Z':
		return FieldType{Base: TBoolean}, 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return FieldType{}, 0, fmt.Errorf("%w: unterminated class descriptor %q", ErrBadDescriptor, s)
		}
		return FieldType{Base: TClass, ClassName: s[1:end]}, end + 1, nil
	case '[':
		elem, n, err := ParseFieldType(s[1:])
		if err != nil {
			return FieldType{}, 0, err
		}
		return FieldType{Base: TArray, Elem: &elem}, n + 1, nil
	default:
		return FieldType{}, 0, fmt.Errorf("%w: unknown type tag %q in %q", ErrBadDescriptor, s[0:1], s)
	}
}

// MethodDescriptor is a parsed method signature: ordered parameter types
// plus an optional return type (nil means void).
type MethodDescriptor struct {
	Parameters []FieldType
	Return     *FieldType // nil means void
}

func (m MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Parameters {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	if m.Return == nil {
		sb.WriteByte('V')
	} else {
		sb.WriteString(m.Return.String())
	}
	return sb.String()
}

// ParseMethodDescriptor parses a full "(params)ret" method descriptor string.
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return MethodDescriptor{}, fmt.Errorf("%w: method descriptor must start with '(': %q", ErrBadDescriptor, s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return MethodDescriptor{}, fmt.Errorf("%w: unterminated parameter list in %q", ErrBadDescriptor, s)
	}
	params := s[1:end]
	var result MethodDescriptor
	for len(params) > 0 {
		ft, n, err := ParseFieldType(params)
		if err != nil {
			return MethodDescriptor{}, err
		}
		result.Parameters = append(result.Parameters, ft)
		params = params[n:]
	}

	ret := s[end+1:]
	if ret == "V" {
		return result, nil
	}
	ft, n, err := ParseFieldType(ret)
	if err != nil {
		return MethodDescriptor{}, err
	}
	if n != len(ret) {
		return MethodDescriptor{}, fmt.Errorf("%w: trailing garbage after return type in %q", ErrBadDescriptor, s)
	}
	result.Return = &ft
	return result, nil
}

// CountParameterSlots returns the number of operand-stack/local-variable
// words occupied by a method's parameters, counting long/double as one
// slot per the Word representation convention (see internal/vm).
func (m MethodDescriptor) CountParameterSlots() int {
	return len(m.Parameters)
}
