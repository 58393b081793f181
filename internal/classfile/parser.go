package classfile

import (
	"errors"
	"fmt"
	"io"
)

const classMagic = 0xCAFEBABE

// ErrBadMagic is returned when a classfile's first four bytes are not
// 0xCAFEBABE.
var ErrBadMagic = errors.New("classfile: bad magic number")

// Parse decodes a classfile in the strict order JVMS 4.1 prescribes: magic,
// minor, major, constant pool, access flags, this_class, super_class,
// interfaces, fields, methods, attributes. Interfaces and the superclass
// are recorded but never walked — every invocation in this interpreter
// resolves to the class named by its symbolic reference, not to whichever
// ancestor actually declares the member.
func Parse(r io.Reader) (*Class, error) {
	b := newByteSource(r)

	magic, err := b.readU32()
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, magic)
	}

	minorVersion, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading minor_version: %w", err)
	}
	majorVersion, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading major_version: %w", err)
	}

	cpCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading constant_pool_count: %w", err)
	}
	pool, err := parseConstantPool(b, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}

	accessFlags, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading access_flags: %w", err)
	}
	thisClassIndex, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	thisClassName, err := pool.ClassName(thisClassIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}

	superClassIndex, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}
	var superClass ClassIdentifier
	hasSuper := superClassIndex != 0
	if hasSuper {
		superClassName, err := pool.ClassName(superClassIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving super_class: %w", err)
		}
		superClass = ParseClassIdentifier(superClassName)
	}

	interfacesCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading interfaces_count: %w", err)
	}
	interfaces := make([]ClassIdentifier, 0, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		idx, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("resolving interface %d: %w", i, err)
		}
		interfaces = append(interfaces, ParseClassIdentifier(name))
	}

	fieldsCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading fields_count: %w", err)
	}
	fields, err := parseFields(b, pool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	methodsCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading methods_count: %w", err)
	}
	methods, err := parseMethods(b, pool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	attrCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("reading attributes_count: %w", err)
	}
	attrs, err := parseAttributes(b, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return &Class{
		MinorVersion: minorVersion,
		MajorVersion: majorVersion,
		Identifier:   ParseClassIdentifier(thisClassName),
		AccessFlags:  accessFlags,
		SuperClass:   superClass,
		HasSuper:     hasSuper,
		Interfaces:   interfaces,
		Fields:       fields,
		Methods:      methods,
		Attributes:   attrs,
		Pool:         pool,
	}, nil
}

func parseFields(b *byteSource, pool *ConstantPool, count uint16) ([]*Field, error) {
	fields := make([]*Field, 0, count)
	for i := uint16(0); i < count; i++ {
		accessFlags, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("field %d access_flags: %w", i, err)
		}
		nameIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("field %d name_index: %w", i, err)
		}
		descIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("field %d descriptor_index: %w", i, err)
		}
		attrCount, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("field %d attributes_count: %w", i, err)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		descStr, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}
		fieldType, n, err := ParseFieldType(descStr)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d descriptor %q: %w", i, descStr, err)
		}
		if n != len(descStr) {
			return nil, fmt.Errorf("field %d descriptor %q has trailing garbage", i, descStr)
		}

		attrs, err := parseAttributes(b, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d (%s) attributes: %w", i, name, err)
		}

		fields = append(fields, &Field{
			Name:        name,
			Type:        fieldType,
			AccessFlags: accessFlags,
			Attributes:  attrs,
			Value:       ZeroValue(fieldType),
		})
	}
	return fields, nil
}

func parseMethods(b *byteSource, pool *ConstantPool, count uint16) ([]*Method, error) {
	methods := make([]*Method, 0, count)
	for i := uint16(0); i < count; i++ {
		accessFlags, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("method %d access_flags: %w", i, err)
		}
		nameIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("method %d name_index: %w", i, err)
		}
		descIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("method %d descriptor_index: %w", i, err)
		}
		attrCount, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("method %d attributes_count: %w", i, err)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		descStr, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}
		descriptor, err := ParseMethodDescriptor(descStr)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d descriptor %q: %w", i, descStr, err)
		}

		attrs, err := parseAttributes(b, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d (%s) attributes: %w", i, name, err)
		}

		m := &Method{
			Name:          name,
			Descriptor:    descriptor,
			RawDescriptor: descStr,
			AccessFlags:   accessFlags,
			Attributes:    attrs,
		}

		if m.IsNative() && hasCodeAttribute(attrs) {
			return nil, fmt.Errorf("method %d (%s): native method must not carry a Code attribute", i, name)
		}

		for _, a := range attrs {
			if code, ok := a.(CodeAttribute); ok {
				c := code
				m.Code = &c
				break
			}
		}

		methods = append(methods, m)
	}
	return methods, nil
}

func hasCodeAttribute(attrs []Attribute) bool {
	for _, a := range attrs {
		if _, ok := a.(CodeAttribute); ok {
			return true
		}
	}
	return false
}
