package classfile

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrUnknownAttribute is returned for an attribute name this decoder does
// not recognize. Honoring the attribute_length prefix before returning it
// is a conscious choice, not an oversight: a future "skip" fallback would
// still need the length this error is raised after reading.
var ErrUnknownAttribute = errors.New("classfile: unknown attribute")

// Attribute is the tagged family of attributes a classfile may carry on a
// class, field, method, or Code attribute.
type Attribute interface {
	AttributeName() string
}

type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 means catch-all
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

func (CodeAttribute) AttributeName() string { return "Code" }

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

type LineNumberTableAttribute struct {
	Entries []LineNumberEntry
}

func (LineNumberTableAttribute) AttributeName() string { return "LineNumberTable" }

type SourceFileAttribute struct{ Value string }

func (SourceFileAttribute) AttributeName() string { return "SourceFile" }

type ConstantValueAttribute struct{ Index uint16 }

func (ConstantValueAttribute) AttributeName() string { return "ConstantValue" }

type SignatureAttribute struct{ Value string }

func (SignatureAttribute) AttributeName() string { return "Signature" }

type NestHostAttribute struct{ HostClassIndex uint16 }

func (NestHostAttribute) AttributeName() string { return "NestHost" }

// ElementValue is a single annotation element value. Exactly one of the
// fields is meaningful, selected by Tag.
type ElementValue struct {
	Tag          byte
	ConstIndex   uint16 // B C D F I J S Z s
	EnumType     uint16 // e
	EnumConst    uint16 // e
	ClassIndex   uint16 // c
	Annotation   *Annotation // @
	ArrayValues  []ElementValue // [
}

type ElementValuePair struct {
	NameIndex uint16
	Value     ElementValue
}

type Annotation struct {
	TypeIndex       uint16
	ElementValuePairs []ElementValuePair
}

type RuntimeVisibleAnnotationsAttribute struct {
	Annotations []Annotation
}

func (RuntimeVisibleAnnotationsAttribute) AttributeName() string { return "RuntimeVisibleAnnotations" }

type LocalVariableEntry struct {
	StartPC    uint16
	Length     uint16
	NameIndex  uint16
	DescIndex  uint16 // descriptor_index or signature_index, per table kind
	Slot       uint16
}

type LocalVariableTableAttribute struct {
	Entries []LocalVariableEntry
}

func (LocalVariableTableAttribute) AttributeName() string { return "LocalVariableTable" }

type LocalVariableTypeTableAttribute struct {
	Entries []LocalVariableEntry
}

func (LocalVariableTypeTableAttribute) AttributeName() string { return "LocalVariableTypeTable" }

// VerificationType is one StackMapTable locals/stack slot (JVMS 4.7.4).
type VerificationType struct {
	Tag              byte
	ObjectClassIndex uint16 // tag 7 (Object)
	UninitializedPC  uint16 // tag 8 (Uninitialized)
}

// StackMapFrame is one decoded StackMapTable frame. Only the fields
// relevant to its FrameType are populated.
type StackMapFrame struct {
	FrameType      byte
	OffsetDelta    uint16
	Locals         []VerificationType // append/full frames
	Stack          []VerificationType // same-locals-1-stack/full frames
	ChopCount      int                // chop frames
}

type StackMapTableAttribute struct {
	Frames []StackMapFrame
}

func (StackMapTableAttribute) AttributeName() string { return "StackMapTable" }

type ExceptionsAttribute struct {
	ExceptionIndexTable []uint16
}

func (ExceptionsAttribute) AttributeName() string { return "Exceptions" }

type NestMembersAttribute struct {
	Classes []uint16
}

func (NestMembersAttribute) AttributeName() string { return "NestMembers" }

type BootstrapMethod struct {
	MethodHandleIndex uint16
	Arguments         []uint16
}

type BootstrapMethodsAttribute struct {
	Methods []BootstrapMethod
}

func (BootstrapMethodsAttribute) AttributeName() string { return "BootstrapMethods" }

type InnerClassEntry struct {
	InnerClassIndex uint16
	OuterClassIndex uint16
	InnerNameIndex  uint16
	InnerClassAccessFlags uint16
}

type InnerClassesAttribute struct {
	Classes []InnerClassEntry
}

func (InnerClassesAttribute) AttributeName() string { return "InnerClasses" }

type EnclosingMethodAttribute struct {
	ClassIndex  uint16
	MethodIndex uint16 // 0 if not enclosed by a method
}

func (EnclosingMethodAttribute) AttributeName() string { return "EnclosingMethod" }

type DeprecatedAttribute struct{}

func (DeprecatedAttribute) AttributeName() string { return "Deprecated" }

// parseAttributes reads count tagged attributes from b, resolving each
// attribute_name_index against pool. Each attribute's 4-byte length is
// read (and used to scope a sub-reader) rather than trusted blindly: a
// recognized attribute is decoded structurally and must consume exactly
// attribute_length bytes, while an unrecognized name fails ErrUnknownAttribute
// only after its length has been read off the stream.
func parseAttributes(b *byteSource, pool *ConstantPool, count uint16) ([]Attribute, error) {
	attrs := make([]Attribute, 0, count)
	for i := uint16(0); i < count; i++ {
		nameIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("attribute %d name index: %w", i, err)
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("attribute %d name: %w", i, err)
		}
		length, err := b.readU32()
		if err != nil {
			return nil, fmt.Errorf("attribute %d (%s) length: %w", i, name, err)
		}
		body, err := b.readVec(int(length))
		if err != nil {
			return nil, fmt.Errorf("attribute %d (%s) body: %w", i, name, err)
		}
		bodyReader := bytes.NewReader(body)
		attr, err := parseOneAttribute(name, newByteSource(bodyReader), pool)
		if err != nil {
			return nil, fmt.Errorf("attribute %d (%s): %w", i, name, err)
		}
		if bodyReader.Len() != 0 {
			return nil, fmt.Errorf("attribute %d (%s): %d of %d byte(s) left undecoded", i, name, bodyReader.Len(), length)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseOneAttribute(name string, b *byteSource, pool *ConstantPool) (Attribute, error) {
	switch name {
	case "Code":
		return parseCodeAttribute(b, pool)
	case "LineNumberTable":
		return parseLineNumberTable(b)
	case "SourceFile":
		return parseSingleIndexUtf8(b, pool, func(s string) Attribute { return SourceFileAttribute{Value: s} })
	case "ConstantValue":
		idx, err := b.readU16()
		if err != nil {
			return nil, err
		}
		return ConstantValueAttribute{Index: idx}, nil
	case "Signature":
		return parseSingleIndexUtf8(b, pool, func(s string) Attribute { return SignatureAttribute{Value: s} })
	case "NestHost":
		idx, err := b.readU16()
		if err != nil {
			return nil, err
		}
		return NestHostAttribute{HostClassIndex: idx}, nil
	case "RuntimeVisibleAnnotations":
		return parseRuntimeVisibleAnnotations(b)
	case "LocalVariableTable":
		entries, err := parseLocalVariableEntries(b)
		if err != nil {
			return nil, err
		}
		return LocalVariableTableAttribute{Entries: entries}, nil
	case "LocalVariableTypeTable":
		entries, err := parseLocalVariableEntries(b)
		if err != nil {
			return nil, err
		}
		return LocalVariableTypeTableAttribute{Entries: entries}, nil
	case "StackMapTable":
		return parseStackMapTable(b)
	case "Exceptions":
		return parseExceptions(b)
	case "NestMembers":
		classes, err := parseU16Vector(b)
		if err != nil {
			return nil, err
		}
		return NestMembersAttribute{Classes: classes}, nil
	case "BootstrapMethods":
		return parseBootstrapMethods(b)
	case "InnerClasses":
		return parseInnerClasses(b)
	case "EnclosingMethod":
		classIndex, err := b.readU16()
		if err != nil {
			return nil, err
		}
		methodIndex, err := b.readU16()
		if err != nil {
			return nil, err
		}
		return EnclosingMethodAttribute{ClassIndex: classIndex, MethodIndex: methodIndex}, nil
	case "Deprecated":
		return DeprecatedAttribute{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
}

func parseCodeAttribute(b *byteSource, pool *ConstantPool) (Attribute, error) {
	maxStack, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("max_stack: %w", err)
	}
	maxLocals, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("max_locals: %w", err)
	}
	codeLength, err := b.readU32()
	if err != nil {
		return nil, fmt.Errorf("code_length: %w", err)
	}
	if codeLength == 0 {
		return nil, fmt.Errorf("code_length must be > 0")
	}
	code, err := b.readVec(int(codeLength))
	if err != nil {
		return nil, fmt.Errorf("code: %w", err)
	}

	exceptionTableLength, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("exception_table_length: %w", err)
	}
	exceptionTable := make([]ExceptionHandler, 0, exceptionTableLength)
	for i := uint16(0); i < exceptionTableLength; i++ {
		startPC, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("exception_table[%d].start_pc: %w", i, err)
		}
		endPC, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("exception_table[%d].end_pc: %w", i, err)
		}
		handlerPC, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("exception_table[%d].handler_pc: %w", i, err)
		}
		catchType, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("exception_table[%d].catch_type: %w", i, err)
		}
		exceptionTable = append(exceptionTable, ExceptionHandler{
			StartPC: startPC, EndPC: endPC, HandlerPC: handlerPC, CatchType: catchType,
		})
	}

	attrCount, err := b.readU16()
	if err != nil {
		return nil, fmt.Errorf("attributes_count: %w", err)
	}
	nested, err := parseAttributes(b, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("nested attributes: %w", err)
	}

	return CodeAttribute{
		MaxStack:       maxStack,
		MaxLocals:      maxLocals,
		Code:           code,
		ExceptionTable: exceptionTable,
		Attributes:     nested,
	}, nil
}

func parseLineNumberTable(b *byteSource) (Attribute, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	entries := make([]LineNumberEntry, 0, n)
	for i := uint16(0); i < n; i++ {
		startPC, err := b.readU16()
		if err != nil {
			return nil, err
		}
		line, err := b.readU16()
		if err != nil {
			return nil, err
		}
		entries = append(entries, LineNumberEntry{StartPC: startPC, LineNumber: line})
	}
	return LineNumberTableAttribute{Entries: entries}, nil
}

func parseSingleIndexUtf8(b *byteSource, pool *ConstantPool, wrap func(string) Attribute) (Attribute, error) {
	idx, err := b.readU16()
	if err != nil {
		return nil, err
	}
	s, err := pool.Utf8(idx)
	if err != nil {
		return nil, err
	}
	return wrap(s), nil
}

func parseU16Vector(b *byteSource) ([]uint16, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, n)
	for i := uint16(0); i < n; i++ {
		v, err := b.readU16()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseExceptions(b *byteSource) (Attribute, error) {
	indices, err := parseU16Vector(b)
	if err != nil {
		return nil, err
	}
	return ExceptionsAttribute{ExceptionIndexTable: indices}, nil
}

func parseLocalVariableEntries(b *byteSource) ([]LocalVariableEntry, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	entries := make([]LocalVariableEntry, 0, n)
	for i := uint16(0); i < n; i++ {
		startPC, err := b.readU16()
		if err != nil {
			return nil, err
		}
		length, err := b.readU16()
		if err != nil {
			return nil, err
		}
		nameIndex, err := b.readU16()
		if err != nil {
			return nil, err
		}
		descIndex, err := b.readU16()
		if err != nil {
			return nil, err
		}
		slot, err := b.readU16()
		if err != nil {
			return nil, err
		}
		entries = append(entries, LocalVariableEntry{
			StartPC: startPC, Length: length, NameIndex: nameIndex, DescIndex: descIndex, Slot: slot,
		})
	}
	return entries, nil
}

func parseVerificationType(b *byteSource) (VerificationType, error) {
	tag, err := b.readU8()
	if err != nil {
		return VerificationType{}, err
	}
	switch tag {
	case 7: // Object
		idx, err := b.readU16()
		if err != nil {
			return VerificationType{}, err
		}
		return VerificationType{Tag: tag, ObjectClassIndex: idx}, nil
	case 8: // Uninitialized
		pc, err := b.readU16()
		if err != nil {
			return VerificationType{}, err
		}
		return VerificationType{Tag: tag, UninitializedPC: pc}, nil
	default:
		return VerificationType{Tag: tag}, nil
	}
}

func parseVerificationTypes(b *byteSource, n int) ([]VerificationType, error) {
	out := make([]VerificationType, 0, n)
	for i := 0; i < n; i++ {
		vt, err := parseVerificationType(b)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

// parseStackMapTable decodes frames per JVMS 4.7.4. Frames are retained for
// fidelity; nothing consults them to verify the bytecode.
func parseStackMapTable(b *byteSource) (Attribute, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	frames := make([]StackMapFrame, 0, n)
	for i := uint16(0); i < n; i++ {
		tag, err := b.readU8()
		if err != nil {
			return nil, fmt.Errorf("frame %d tag: %w", i, err)
		}
		frame := StackMapFrame{FrameType: tag}
		switch {
		case tag <= 63:
			// same_frame: offset_delta == tag
			frame.OffsetDelta = uint16(tag)
		case tag <= 127:
			// same_locals_1_stack_item_frame
			frame.OffsetDelta = uint16(tag - 64)
			stack, err := parseVerificationTypes(b, 1)
			if err != nil {
				return nil, fmt.Errorf("frame %d stack: %w", i, err)
			}
			frame.Stack = stack
		case tag == 247:
			offset, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d offset_delta: %w", i, err)
			}
			frame.OffsetDelta = offset
			stack, err := parseVerificationTypes(b, 1)
			if err != nil {
				return nil, fmt.Errorf("frame %d stack: %w", i, err)
			}
			frame.Stack = stack
		case tag >= 248 && tag <= 250:
			offset, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d offset_delta: %w", i, err)
			}
			frame.OffsetDelta = offset
			frame.ChopCount = int(251 - tag)
		case tag == 251:
			offset, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d offset_delta: %w", i, err)
			}
			frame.OffsetDelta = offset
		case tag >= 252 && tag <= 254:
			offset, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d offset_delta: %w", i, err)
			}
			frame.OffsetDelta = offset
			locals, err := parseVerificationTypes(b, int(tag-251))
			if err != nil {
				return nil, fmt.Errorf("frame %d locals: %w", i, err)
			}
			frame.Locals = locals
		case tag == 255:
			offset, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d offset_delta: %w", i, err)
			}
			frame.OffsetDelta = offset
			numLocals, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d number_of_locals: %w", i, err)
			}
			locals, err := parseVerificationTypes(b, int(numLocals))
			if err != nil {
				return nil, fmt.Errorf("frame %d locals: %w", i, err)
			}
			numStack, err := b.readU16()
			if err != nil {
				return nil, fmt.Errorf("frame %d number_of_stack_items: %w", i, err)
			}
			stack, err := parseVerificationTypes(b, int(numStack))
			if err != nil {
				return nil, fmt.Errorf("frame %d stack: %w", i, err)
			}
			frame.Locals = locals
			frame.Stack = stack
		default:
			return nil, fmt.Errorf("frame %d: reserved frame_type %d", i, tag)
		}
		frames = append(frames, frame)
	}
	return StackMapTableAttribute{Frames: frames}, nil
}

func parseBootstrapMethods(b *byteSource) (Attribute, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	methods := make([]BootstrapMethod, 0, n)
	for i := uint16(0); i < n; i++ {
		handleIndex, err := b.readU16()
		if err != nil {
			return nil, fmt.Errorf("bootstrap_method[%d].method_ref: %w", i, err)
		}
		args, err := parseU16Vector(b)
		if err != nil {
			return nil, fmt.Errorf("bootstrap_method[%d].arguments: %w", i, err)
		}
		methods = append(methods, BootstrapMethod{MethodHandleIndex: handleIndex, Arguments: args})
	}
	return BootstrapMethodsAttribute{Methods: methods}, nil
}

func parseInnerClasses(b *byteSource) (Attribute, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	classes := make([]InnerClassEntry, 0, n)
	for i := uint16(0); i < n; i++ {
		inner, err := b.readU16()
		if err != nil {
			return nil, err
		}
		outer, err := b.readU16()
		if err != nil {
			return nil, err
		}
		innerName, err := b.readU16()
		if err != nil {
			return nil, err
		}
		flags, err := b.readU16()
		if err != nil {
			return nil, err
		}
		classes = append(classes, InnerClassEntry{
			InnerClassIndex: inner, OuterClassIndex: outer, InnerNameIndex: innerName, InnerClassAccessFlags: flags,
		})
	}
	return InnerClassesAttribute{Classes: classes}, nil
}

func parseRuntimeVisibleAnnotations(b *byteSource) (Attribute, error) {
	n, err := b.readU16()
	if err != nil {
		return nil, err
	}
	annotations := make([]Annotation, 0, n)
	for i := uint16(0); i < n; i++ {
		a, err := parseAnnotation(b)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		annotations = append(annotations, a)
	}
	return RuntimeVisibleAnnotationsAttribute{Annotations: annotations}, nil
}

func parseAnnotation(b *byteSource) (Annotation, error) {
	typeIndex, err := b.readU16()
	if err != nil {
		return Annotation{}, err
	}
	n, err := b.readU16()
	if err != nil {
		return Annotation{}, err
	}
	pairs := make([]ElementValuePair, 0, n)
	for i := uint16(0); i < n; i++ {
		nameIndex, err := b.readU16()
		if err != nil {
			return Annotation{}, err
		}
		value, err := parseElementValue(b)
		if err != nil {
			return Annotation{}, fmt.Errorf("element_value_pair %d: %w", i, err)
		}
		pairs = append(pairs, ElementValuePair{NameIndex: nameIndex, Value: value})
	}
	return Annotation{TypeIndex: typeIndex, ElementValuePairs: pairs}, nil
}

func parseElementValue(b *byteSource) (ElementValue, error) {
	tag, err := b.readU8()
	if err != nil {
		return ElementValue{}, err
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		idx, err := b.readU16()
		if err != nil {
			return ElementValue{}, err
		}
		return ElementValue{Tag: tag, ConstIndex: idx}, nil
	case 'e':
		typeName, err := b.readU16()
		if err != nil {
			return ElementValue{}, err
		}
		constName, err := b.readU16()
		if err != nil {
			return ElementValue{}, err
		}
		return ElementValue{Tag: tag, EnumType: typeName, EnumConst: constName}, nil
	case 'c':
		idx, err := b.readU16()
		if err != nil {
			return ElementValue{}, err
		}
		return ElementValue{Tag: tag, ClassIndex: idx}, nil
	case '@':
		nested, err := parseAnnotation(b)
		if err != nil {
			return ElementValue{}, err
		}
		return ElementValue{Tag: tag, Annotation: &nested}, nil
	case '[':
		n, err := b.readU16()
		if err != nil {
			return ElementValue{}, err
		}
		values := make([]ElementValue, 0, n)
		for i := uint16(0); i < n; i++ {
			v, err := parseElementValue(b)
			if err != nil {
				return ElementValue{}, fmt.Errorf("array element %d: %w", i, err)
			}
			values = append(values, v)
		}
		return ElementValue{Tag: tag, ArrayValues: values}, nil
	default:
		return ElementValue{}, fmt.Errorf("%w: unknown element_value tag %q", ErrUnknownAttribute, string(tag))
	}
}
