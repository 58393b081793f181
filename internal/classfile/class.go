package classfile

// Access flags (JVMS 4.1, 4.5, 4.6 — the subset this decoder inspects).
const (
	AccPublic       = 0x0001
	AccStatic       = 0x0008
	AccSuper        = 0x0020
	AccNative       = 0x0100
	AccAbstract     = 0x0400
)

// FieldValue is the runtime value held by a field slot: a numeric zero,
// false, or Null, per the declared FieldType's default. It is distinct
// from vm.Word (the operand-stack representation) because the class model
// lives below the interpreter and must not import it; vm converts between
// the two at the point a static field is read or written.
type FieldValue interface {
	isFieldValue()
}

type IntValue int32

func (IntValue) isFieldValue() {}

type LongValue int64

func (LongValue) isFieldValue() {}

type FloatValue float32

func (FloatValue) isFieldValue() {}

type DoubleValue float64

func (DoubleValue) isFieldValue() {}

type BoolValue bool

func (BoolValue) isFieldValue() {}

// NullValue is the zero value of any reference or array FieldType.
type NullValue struct{}

func (NullValue) isFieldValue() {}

// ZeroValue returns the default value for a declared FieldType: numeric
// zero, false, or Null.
func ZeroValue(ft FieldType) FieldValue {
	switch ft.Base {
	case TByte, TShort, TInt, TChar, TBoolean:
		if ft.Base == TBoolean {
			return BoolValue(false)
		}
		return IntValue(0)
	case TLong:
		return LongValue(0)
	case TFloat:
		return FloatValue(0)
	case TDouble:
		return DoubleValue(0)
	default: // TClass, TArray
		return NullValue{}
	}
}

// Field is a decoded field, converted from its raw field_info plus its
// current value (initialized to ZeroValue(Type) and mutated in place by
// SetStatic).
type Field struct {
	Name        string
	Type        FieldType
	AccessFlags uint16
	Attributes  []Attribute
	Value       FieldValue
}

func (f *Field) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }

// Method is a decoded method. Code is nil for abstract/native methods.
type Method struct {
	Name        string
	Descriptor  MethodDescriptor
	RawDescriptor string
	AccessFlags uint16
	Attributes  []Attribute
	Code        *CodeAttribute
}

func (m *Method) IsStatic() bool   { return m.AccessFlags&AccStatic != 0 }
func (m *Method) IsNative() bool   { return m.AccessFlags&AccNative != 0 }
func (m *Method) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// Class is the post-decode runtime model of a classfile: constant pool
// plus converted fields and methods, looked up by exact name/descriptor —
// there is no inheritance walk, matching the symbolic-reference-only
// dispatch this interpreter implements.
type Class struct {
	MinorVersion uint16
	MajorVersion uint16
	Identifier   ClassIdentifier
	AccessFlags  uint16
	SuperClass   ClassIdentifier // zero value for java/lang/Object
	HasSuper     bool
	Interfaces   []ClassIdentifier
	Fields       []*Field
	Methods      []*Method
	Attributes   []Attribute
	Pool         *ConstantPool
}

// MainMethod returns the unique `public static void main(String[])` method,
// or nil if the class has none.
func (c *Class) MainMethod() *Method {
	for _, m := range c.Methods {
		if m.Name != "main" || m.RawDescriptor != "([Ljava/lang/String;)V" {
			continue
		}
		if m.AccessFlags&AccPublic == 0 || m.AccessFlags&AccStatic == 0 {
			continue
		}
		return m
	}
	return nil
}

// ClinitMethod returns the class or interface initializer, if present.
// Access modifiers are ignored per JVMS — it is matched by name, an empty
// parameter list, and a void return.
func (c *Class) ClinitMethod() *Method {
	for _, m := range c.Methods {
		if m.Name == "<clinit>" && m.Descriptor.Return == nil && len(m.Descriptor.Parameters) == 0 {
			return m
		}
	}
	return nil
}

// Method looks up a method by exact name and descriptor string. There is
// no overload resolution beyond an exact descriptor match, and no walk up
// a superclass chain.
func (c *Class) Method(name, descriptor string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.RawDescriptor == descriptor {
			return m
		}
	}
	return nil
}

// Field looks up a field by name. Field descriptors are not overloaded in
// practice (a class may not declare two fields of the same name), so name
// alone identifies it.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// SetStatic updates a field's current value by identity. Callers must
// ensure the new value's shape matches the field's declared type; this is
// a raw slot write, not a checked store.
func (c *Class) SetStatic(f *Field, value FieldValue) {
	f.Value = value
}
