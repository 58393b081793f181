package classfile

import (
	"errors"
	"fmt"
	"math"
)

// Constant pool tags (JVMS 4.4).
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref           = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagInvokeDynamic      = 18
)

var (
	// ErrOutOfRange is returned when a constant pool index is 0, negative
	// in effect, or >= the pool's length.
	ErrOutOfRange = errors.New("classfile: constant pool index out of range")
	// ErrTypeMismatch is returned when resolve(index) finds an entry of a
	// different shape than the one requested.
	ErrTypeMismatch = errors.New("classfile: constant pool type mismatch")
	// ErrBadConstant is returned for an unrecognized tag or a malformed
	// reference_kind on a MethodHandle.
	ErrBadConstant = errors.New("classfile: bad constant pool entry")
)

// rawEntry is one of the fixed-shape constant pool records as they sit on
// disk, before resolve(index) substitutes inner indices with their
// resolved payload.
type rawEntry interface {
	tag() uint8
}

type reservedEntry struct{}

func (reservedEntry) tag() uint8 { return 0 }

type utf8Entry struct{ value string }

func (utf8Entry) tag() uint8 { return TagUtf8 }

type integerEntry struct{ value int32 }

func (integerEntry) tag() uint8 { return TagInteger }

type floatEntry struct{ value float32 }

func (floatEntry) tag() uint8 { return TagFloat }

type longEntry struct{ value int64 }

func (longEntry) tag() uint8 { return TagLong }

type doubleEntry struct{ value float64 }

func (doubleEntry) tag() uint8 { return TagDouble }

type classEntry struct{ nameIndex uint16 }

func (classEntry) tag() uint8 { return TagClass }

type stringEntry struct{ stringIndex uint16 }

func (stringEntry) tag() uint8 { return TagString }

type fieldrefEntry struct{ classIndex, nameAndTypeIndex uint16 }

func (fieldrefEntry) tag() uint8 { return TagFieldref }

type methodrefEntry struct{ classIndex, nameAndTypeIndex uint16 }

func (methodrefEntry) tag() uint8 { return TagMethodref }

type interfaceMethodrefEntry struct{ classIndex, nameAndTypeIndex uint16 }

func (interfaceMethodrefEntry) tag() uint8 { return TagInterfaceMethodref }

type nameAndTypeEntry struct{ nameIndex, descriptorIndex uint16 }

func (nameAndTypeEntry) tag() uint8 { return TagNameAndType }

type methodHandleEntry struct {
	kind           uint8
	referenceIndex uint16
}

func (methodHandleEntry) tag() uint8 { return TagMethodHandle }

type methodTypeEntry struct{ descriptorIndex uint16 }

func (methodTypeEntry) tag() uint8 { return TagMethodType }

type invokeDynamicEntry struct {
	bootstrapMethodAttrIndex uint16
	nameAndTypeIndex         uint16
}

func (invokeDynamicEntry) tag() uint8 { return TagInvokeDynamic }

// ConstantPool is the 1-indexed table of symbolic constants decoded from a
// classfile. Slot 0 is unused; a slot following a Long or Double entry is
// Reserved and must never be dereferenced.
type ConstantPool struct {
	entries []rawEntry // entries[0] is always nil
}

// parseConstantPool reads constantPoolCount-1 entries, inserting a
// reservedEntry after every Long/Double per JVMS 4.4.5.
func parseConstantPool(b *byteSource, constantPoolCount uint16) (*ConstantPool, error) {
	entries := make([]rawEntry, constantPoolCount)

	for i := uint16(1); i < constantPoolCount; i++ {
		tag, err := b.readU8()
		if err != nil {
			return nil, fmt.Errorf("constant pool entry %d: %w", i, err)
		}
		switch tag {
		case TagUtf8:
			length, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Utf8 entry %d length: %w", i, err)
			}
			raw, err := b.readVec(int(length))
			if err != nil {
				return nil, fmt.Errorf("Utf8 entry %d bytes: %w", i, err)
			}
			entries[i] = utf8Entry{value: string(raw)}

		case TagInteger:
			v, err := b.readI32()
			if err != nil {
				return nil, fmt.Errorf("Integer entry %d: %w", i, err)
			}
			entries[i] = integerEntry{value: v}

		case TagFloat:
			v, err := b.readF32()
			if err != nil {
				return nil, fmt.Errorf("Float entry %d: %w", i, err)
			}
			entries[i] = floatEntry{value: v}

		case TagLong:
			v, err := b.readU64()
			if err != nil {
				return nil, fmt.Errorf("Long entry %d: %w", i, err)
			}
			entries[i] = longEntry{value: int64(v)}
			i++
			if i < constantPoolCount {
				entries[i] = reservedEntry{}
			}

		case TagDouble:
			v, err := b.readU64()
			if err != nil {
				return nil, fmt.Errorf("Double entry %d: %w", i, err)
			}
			entries[i] = doubleEntry{value: math.Float64frombits(v)}
			i++
			if i < constantPoolCount {
				entries[i] = reservedEntry{}
			}

		case TagClass:
			nameIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Class entry %d: %w", i, err)
			}
			entries[i] = classEntry{nameIndex: nameIndex}

		case TagString:
			stringIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("String entry %d: %w", i, err)
			}
			entries[i] = stringEntry{stringIndex: stringIndex}

		case TagFieldref:
			classIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Fieldref entry %d class_index: %w", i, err)
			}
			natIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Fieldref entry %d name_and_type_index: %w", i, err)
			}
			entries[i] = fieldrefEntry{classIndex: classIndex, nameAndTypeIndex: natIndex}

		case TagMethodref:
			classIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Methodref entry %d class_index: %w", i, err)
			}
			natIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("Methodref entry %d name_and_type_index: %w", i, err)
			}
			entries[i] = methodrefEntry{classIndex: classIndex, nameAndTypeIndex: natIndex}

		case TagInterfaceMethodref:
			classIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("InterfaceMethodref entry %d class_index: %w", i, err)
			}
			natIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("InterfaceMethodref entry %d name_and_type_index: %w", i, err)
			}
			entries[i] = interfaceMethodrefEntry{classIndex: classIndex, nameAndTypeIndex: natIndex}

		case TagNameAndType:
			nameIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("NameAndType entry %d name_index: %w", i, err)
			}
			descIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("NameAndType entry %d descriptor_index: %w", i, err)
			}
			entries[i] = nameAndTypeEntry{nameIndex: nameIndex, descriptorIndex: descIndex}

		case TagMethodHandle:
			kind, err := b.readU8()
			if err != nil {
				return nil, fmt.Errorf("MethodHandle entry %d reference_kind: %w", i, err)
			}
			if kind < 1 || kind > 9 {
				return nil, fmt.Errorf("MethodHandle entry %d: %w: reference_kind %d out of 1..=9", i, ErrBadConstant, kind)
			}
			refIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("MethodHandle entry %d reference_index: %w", i, err)
			}
			entries[i] = methodHandleEntry{kind: kind, referenceIndex: refIndex}

		case TagMethodType:
			descIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("MethodType entry %d: %w", i, err)
			}
			entries[i] = methodTypeEntry{descriptorIndex: descIndex}

		case TagInvokeDynamic:
			bootstrapIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("InvokeDynamic entry %d bootstrap_method_attr_index: %w", i, err)
			}
			natIndex, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("InvokeDynamic entry %d name_and_type_index: %w", i, err)
			}
			entries[i] = invokeDynamicEntry{bootstrapMethodAttrIndex: bootstrapIndex, nameAndTypeIndex: natIndex}

		default:
			return nil, fmt.Errorf("constant pool entry %d: %w: tag %d", i, ErrBadConstant, tag)
		}
	}

	return &ConstantPool{entries: entries}, nil
}

func (p *ConstantPool) raw(index uint16) (rawEntry, error) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, fmt.Errorf("index %d: %w", index, ErrOutOfRange)
	}
	return p.entries[index], nil
}

// Utf8 is the fast path used by the classfile/attribute decoders, which
// reference the pool heavily for plain names and descriptors.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := p.raw(index)
	if err != nil {
		return "", err
	}
	u, ok := e.(utf8Entry)
	if !ok {
		return "", fmt.Errorf("index %d: %w: want Utf8, have tag %d", index, ErrTypeMismatch, e.tag())
	}
	return u.value, nil
}

// ClassName resolves a CONSTANT_Class entry's Utf8 name without assembling
// a full ClassInfoItem, used where only the string is needed (e.g. this_class).
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	e, err := p.raw(index)
	if err != nil {
		return "", err
	}
	c, ok := e.(classEntry)
	if !ok {
		return "", fmt.Errorf("index %d: %w: want Class, have tag %d", index, ErrTypeMismatch, e.tag())
	}
	return p.Utf8(c.nameIndex)
}

// ConstantPoolItem is the resolved, composite shape resolve(index) produces:
// a flattened variant with inner indices already substituted by their own
// resolved payload.
type ConstantPoolItem interface {
	isConstantPoolItem()
}

type Utf8Item struct{ Value string }

func (Utf8Item) isConstantPoolItem() {}

type IntegerItem struct{ Value int32 }

func (IntegerItem) isConstantPoolItem() {}

type FloatItem struct{ Value float32 }

func (FloatItem) isConstantPoolItem() {}

type LongItem struct{ Value int64 }

func (LongItem) isConstantPoolItem() {}

type DoubleItem struct{ Value float64 }

func (DoubleItem) isConstantPoolItem() {}

type ClassInfoItem struct{ Name ClassIdentifier }

func (ClassInfoItem) isConstantPoolItem() {}

type StringItem struct{ Value string }

func (StringItem) isConstantPoolItem() {}

// NameAndType carries a plain name plus its raw descriptor string; callers
// that need a FieldType/MethodDescriptor parse it with ParseFieldType or
// ParseMethodDescriptor, since the same tag serves both fields and methods.
type NameAndType struct {
	Name       string
	Descriptor string
}

type NameAndTypeItem struct{ NameAndType NameAndType }

func (NameAndTypeItem) isConstantPoolItem() {}

type FieldRefItem struct {
	Class       ClassIdentifier
	NameAndType NameAndType
}

func (FieldRefItem) isConstantPoolItem() {}

type MethodRefItem struct {
	Class       ClassIdentifier
	NameAndType NameAndType
}

func (MethodRefItem) isConstantPoolItem() {}

type InterfaceMethodRefItem struct {
	Class       ClassIdentifier
	NameAndType NameAndType
}

func (InterfaceMethodRefItem) isConstantPoolItem() {}

type MethodHandleItem struct {
	Kind      uint8
	Reference ConstantPoolItem
}

func (MethodHandleItem) isConstantPoolItem() {}

type MethodTypeItem struct{ Descriptor string }

func (MethodTypeItem) isConstantPoolItem() {}

type InvokeDynamicItem struct {
	BootstrapMethodAttrIndex uint16
	NameAndType              NameAndType
}

func (InvokeDynamicItem) isConstantPoolItem() {}

// Resolve assembles the ConstantPoolItem at index, substituting inner
// indices with their own resolved payload. It fails ErrOutOfRange if index
// is 0, Reserved, or beyond the pool, and ErrTypeMismatch if an inner index
// resolves to the wrong shape.
func (p *ConstantPool) Resolve(index uint16) (ConstantPoolItem, error) {
	e, err := p.raw(index)
	if err != nil {
		return nil, err
	}

	switch v := e.(type) {
	case utf8Entry:
		return Utf8Item{Value: v.value}, nil
	case integerEntry:
		return IntegerItem{Value: v.value}, nil
	case floatEntry:
		return FloatItem{Value: v.value}, nil
	case longEntry:
		return LongItem{Value: v.value}, nil
	case doubleEntry:
		return DoubleItem{Value: v.value}, nil
	case classEntry:
		name, err := p.Utf8(v.nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving Class entry %d name: %w", index, err)
		}
		return ClassInfoItem{Name: ParseClassIdentifier(name)}, nil
	case stringEntry:
		s, err := p.Utf8(v.stringIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving String entry %d value: %w", index, err)
		}
		return StringItem{Value: s}, nil
	case nameAndTypeEntry:
		nat, err := p.resolveNameAndType(v)
		if err != nil {
			return nil, fmt.Errorf("resolving NameAndType entry %d: %w", index, err)
		}
		return NameAndTypeItem{NameAndType: nat}, nil
	case fieldrefEntry:
		class, nat, err := p.resolveRef(v.classIndex, v.nameAndTypeIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving Fieldref entry %d: %w", index, err)
		}
		return FieldRefItem{Class: class, NameAndType: nat}, nil
	case methodrefEntry:
		class, nat, err := p.resolveRef(v.classIndex, v.nameAndTypeIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving Methodref entry %d: %w", index, err)
		}
		return MethodRefItem{Class: class, NameAndType: nat}, nil
	case interfaceMethodrefEntry:
		class, nat, err := p.resolveRef(v.classIndex, v.nameAndTypeIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving InterfaceMethodref entry %d: %w", index, err)
		}
		return InterfaceMethodRefItem{Class: class, NameAndType: nat}, nil
	case methodHandleEntry:
		ref, err := p.Resolve(v.referenceIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving MethodHandle entry %d reference: %w", index, err)
		}
		return MethodHandleItem{Kind: v.kind, Reference: ref}, nil
	case methodTypeEntry:
		d, err := p.Utf8(v.descriptorIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving MethodType entry %d descriptor: %w", index, err)
		}
		return MethodTypeItem{Descriptor: d}, nil
	case invokeDynamicEntry:
		natRaw, err := p.raw(v.nameAndTypeIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving InvokeDynamic entry %d name_and_type: %w", index, err)
		}
		natEntry, ok := natRaw.(nameAndTypeEntry)
		if !ok {
			return nil, fmt.Errorf("resolving InvokeDynamic entry %d: %w: name_and_type_index is tag %d", index, ErrTypeMismatch, natRaw.tag())
		}
		nat, err := p.resolveNameAndType(natEntry)
		if err != nil {
			return nil, fmt.Errorf("resolving InvokeDynamic entry %d: %w", index, err)
		}
		return InvokeDynamicItem{BootstrapMethodAttrIndex: v.bootstrapMethodAttrIndex, NameAndType: nat}, nil
	case reservedEntry:
		return nil, fmt.Errorf("index %d: %w: reserved slot following Long/Double", index, ErrOutOfRange)
	default:
		return nil, fmt.Errorf("index %d: %w: unhandled entry kind", index, ErrBadConstant)
	}
}

func (p *ConstantPool) resolveNameAndType(v nameAndTypeEntry) (NameAndType, error) {
	name, err := p.Utf8(v.nameIndex)
	if err != nil {
		return NameAndType{}, fmt.Errorf("name: %w", err)
	}
	desc, err := p.Utf8(v.descriptorIndex)
	if err != nil {
		return NameAndType{}, fmt.Errorf("descriptor: %w", err)
	}
	return NameAndType{Name: name, Descriptor: desc}, nil
}

func (p *ConstantPool) resolveRef(classIndex, nameAndTypeIndex uint16) (ClassIdentifier, NameAndType, error) {
	className, err := p.ClassName(classIndex)
	if err != nil {
		return ClassIdentifier{}, NameAndType{}, fmt.Errorf("class: %w", err)
	}
	natRaw, err := p.raw(nameAndTypeIndex)
	if err != nil {
		return ClassIdentifier{}, NameAndType{}, fmt.Errorf("name_and_type: %w", err)
	}
	natEntry, ok := natRaw.(nameAndTypeEntry)
	if !ok {
		return ClassIdentifier{}, NameAndType{}, fmt.Errorf("%w: name_and_type_index is tag %d", ErrTypeMismatch, natRaw.tag())
	}
	nat, err := p.resolveNameAndType(natEntry)
	if err != nil {
		return ClassIdentifier{}, NameAndType{}, err
	}
	return ParseClassIdentifier(className), nat, nil
}
