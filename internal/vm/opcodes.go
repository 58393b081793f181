package vm

import (
	"errors"
	"fmt"

	"minijvm/internal/classfile"
)

// errFrameReturned is a sentinel opcodeHandlers use to signal that `return`
// has completed the current frame; step() recognizes it, pops the frame, and
// does not surface it to the caller as a failure.
var errFrameReturned = errors.New("vm: frame returned")

// opcodeHandler executes one instruction against the current frame. Each
// handler is responsible for reading its own operand bytes and advancing
// PC; branch handlers anchor on the opcode's own position (frame.PC before
// any operand bytes were read), following the convention the teacher's
// executeBranchUnary/executeBranchBinary establish in pkg/vm/instructions.go.
type opcodeHandler func(e *Executor, f *Frame) error

// opcodeTable is this core's dispatch table. Unknown bytes, including wide,
// dup2, and invokedynamic, are absent on purpose and fail ErrUnknownOpcode
// in step().
var opcodeTable = map[byte]opcodeHandler{
	0x03: opIconst0,
	0x12: opLdc,
	0x13: opLdcW,
	0x1a: opIload(0),
	0x1b: opIload(1),
	0x1c: opIload(2),
	0x1d: opIload(3),
	0x2a: opAload0,
	0x3b: opIstore(0),
	0x3c: opIstore(1),
	0x3d: opIstore(2),
	0x3e: opIstore(3),
	0x59: opDup,
	0x60: opIadd,
	0x64: opIsub,
	0x68: opImul,
	0x6c: opIdiv,
	0x70: opIrem,
	0x74: opIneg,
	0x84: opIinc,
	0x99: opIfCond(func(v int32) bool { return v == 0 }),
	0x9a: opIfCond(func(v int32) bool { return v != 0 }),
	0x9b: opIfCond(func(v int32) bool { return v < 0 }),
	0x9c: opIfCond(func(v int32) bool { return v >= 0 }),
	0x9d: opIfCond(func(v int32) bool { return v > 0 }),
	0x9e: opIfCond(func(v int32) bool { return v <= 0 }),
	0x9f: opIfICmp(func(a, b int32) bool { return a == b }),
	0xa0: opIfICmp(func(a, b int32) bool { return a != b }),
	0xa1: opIfICmp(func(a, b int32) bool { return a < b }),
	0xa2: opIfICmp(func(a, b int32) bool { return a >= b }),
	0xa3: opIfICmp(func(a, b int32) bool { return a > b }),
	0xa4: opIfICmp(func(a, b int32) bool { return a <= b }),
	0xa7: opGoto,
	0xb1: opReturn,
	0xb2: opGetstatic,
	0xb3: opPutstatic,
	0xb6: opInvokevirtual,
	0xb7: opInvokespecial,
	0xb8: opInvokestatic,
	0xbb: opNew,
	0xbd: opAnewarray,
}

func opIconst0(e *Executor, f *Frame) error {
	f.AdvancePC(1)
	return f.PushOperand(IntWord(0))
}

// opLdc pushes the constant at a u8 index (0x12); opLdcW is its u16-index
// sibling (0x13), sharing the same resolution logic per SPEC_FULL.md §5.
func opLdc(e *Executor, f *Frame) error {
	idx, err := f.ReadU8(1)
	if err != nil {
		return err
	}
	f.AdvancePC(2)
	return pushConstant(e, f, uint16(idx))
}

func opLdcW(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	return pushConstant(e, f, idx)
}

// pushConstant resolves the pool entry at index and pushes the operand ldc/
// ldc_w produce for it, per spec.md §4.I's allowed-items list. Long and
// Double entries are rejected outright — ldc2_w is their loader, and this
// core implements no ldc2_w — rather than silently widening them onto a
// single-slot Word.
func pushConstant(e *Executor, f *Frame, index uint16) error {
	item, err := f.ResolveInPool(index)
	if err != nil {
		return err
	}
	switch v := item.(type) {
	case classfile.IntegerItem:
		return f.PushOperand(IntWord(v.Value))
	case classfile.FloatItem:
		return f.PushOperand(FloatWord(v.Value))
	case classfile.LongItem, classfile.DoubleItem:
		return fmt.Errorf("constant pool index %d: Long/Double require ldc2_w: %w", index, ErrNotALoadableConstant)
	case classfile.StringItem:
		return f.PushOperand(ReferenceWord(InstanceRef{Class: classfile.ClassIdentifier{Package: "java/lang", Simple: "String"}}))
	case classfile.ClassInfoItem:
		class, err := e.resolveClass(f.Class.Identifier, v.Name)
		if err != nil {
			return err
		}
		return f.PushOperand(ClassObjectWord(class))
	default:
		return fmt.Errorf("constant pool index %d: %w", index, ErrNotALoadableConstant)
	}
}

func opAload0(e *Executor, f *Frame) error {
	f.AdvancePC(1)
	w, err := f.Local(0)
	if err != nil {
		return err
	}
	return f.PushOperand(w)
}

func opIload(index int) opcodeHandler {
	return func(e *Executor, f *Frame) error {
		f.AdvancePC(1)
		w, err := f.Local(index)
		if err != nil {
			return err
		}
		return f.PushOperand(w)
	}
}

func opIstore(index int) opcodeHandler {
	return func(e *Executor, f *Frame) error {
		f.AdvancePC(1)
		w, err := f.PopOperand()
		if err != nil {
			return err
		}
		return f.SetLocal(index, w)
	}
}

func opDup(e *Executor, f *Frame) error {
	f.AdvancePC(1)
	words, err := f.PopOperands(1)
	if err != nil {
		return err
	}
	if err := f.PushOperand(words[0]); err != nil {
		return err
	}
	return f.PushOperand(words[0])
}

// intBinOp pops two ints top-first (b is the more recently pushed operand,
// matching "a op b" for "push a; push b; op"), applies fn, and pushes the
// result.
func intBinOp(fn func(a, b int32) (int32, error)) opcodeHandler {
	return func(e *Executor, f *Frame) error {
		f.AdvancePC(1)
		words, err := f.PopOperands(2)
		if err != nil {
			return err
		}
		for _, w := range words {
			switch w.Kind() {
			case KindInt, KindByte, KindShort, KindChar, KindBoolean:
			default:
				return fmt.Errorf("popped %s, want int: %w", w.Kind(), ErrWordKindMismatch)
			}
		}
		b, a := words[0].Int(), words[1].Int()
		result, err := fn(a, b)
		if err != nil {
			return err
		}
		return f.PushOperand(IntWord(result))
	}
}

var opIadd = intBinOp(func(a, b int32) (int32, error) { return a + b, nil })
var opIsub = intBinOp(func(a, b int32) (int32, error) { return a - b, nil })
var opImul = intBinOp(func(a, b int32) (int32, error) { return a * b, nil })
var opIdiv = intBinOp(func(a, b int32) (int32, error) {
	if b == 0 {
		return 0, fmt.Errorf("idiv by zero: %w", ErrWordKindMismatch)
	}
	return a / b, nil
})
var opIrem = intBinOp(func(a, b int32) (int32, error) {
	if b == 0 {
		return 0, fmt.Errorf("irem by zero: %w", ErrWordKindMismatch)
	}
	return a % b, nil
})

func opIneg(e *Executor, f *Frame) error {
	f.AdvancePC(1)
	w, err := f.PopOperand()
	if err != nil {
		return err
	}
	return f.PushOperand(IntWord(-w.Int()))
}

func opIinc(e *Executor, f *Frame) error {
	index, err := f.ReadU8(1)
	if err != nil {
		return err
	}
	delta, err := f.ReadI8(2)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	w, err := f.Local(int(index))
	if err != nil {
		return err
	}
	return f.SetLocal(int(index), IntWord(w.Int()+int32(delta)))
}

// opIfCond implements the ifeq/ifne/iflt/ifge/ifgt/ifle family: pop one int,
// compare to zero with cond, branch if true. branchPC anchors on the
// opcode's own byte, read before the 2-byte offset operand, per spec.md's
// PC-anchoring convention.
func opIfCond(cond func(v int32) bool) opcodeHandler {
	return func(e *Executor, f *Frame) error {
		branchPC := f.PC
		offset, err := f.ReadI16(1)
		if err != nil {
			return err
		}
		f.AdvancePC(3)
		w, err := f.PopOperand()
		if err != nil {
			return err
		}
		if cond(w.Int()) {
			f.PC = branchPC + int(offset)
		}
		return nil
	}
}

// opIfICmp implements the if_icmp<cond> family: pop two ints top-first,
// compare a against b with cond, branch if true.
func opIfICmp(cond func(a, b int32) bool) opcodeHandler {
	return func(e *Executor, f *Frame) error {
		branchPC := f.PC
		offset, err := f.ReadI16(1)
		if err != nil {
			return err
		}
		f.AdvancePC(3)
		words, err := f.PopOperands(2)
		if err != nil {
			return err
		}
		b, a := words[0].Int(), words[1].Int()
		if cond(a, b) {
			f.PC = branchPC + int(offset)
		}
		return nil
	}
}

func opGoto(e *Executor, f *Frame) error {
	branchPC := f.PC
	offset, err := f.ReadI16(1)
	if err != nil {
		return err
	}
	f.PC = branchPC + int(offset)
	return nil
}

// opReturn (0xb1) is this core's only return opcode: it ends the current
// frame with no value (step() pops it on seeing errFrameReturned), the only
// way a user-bytecode frame ever completes.
func opReturn(e *Executor, f *Frame) error {
	return errFrameReturned
}

func opGetstatic(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	ref, ok := item.(classfile.FieldRefItem)
	if !ok {
		return fmt.Errorf("getstatic operand is not a Fieldref: %w", ErrWordKindMismatch)
	}
	_, field, err := e.resolveField(f.Class.Identifier, ref)
	if err != nil {
		return err
	}
	return f.PushOperand(FromFieldValue(field.Value))
}

func opPutstatic(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	ref, ok := item.(classfile.FieldRefItem)
	if !ok {
		return fmt.Errorf("putstatic operand is not a Fieldref: %w", ErrWordKindMismatch)
	}
	owner, field, err := e.resolveField(f.Class.Identifier, ref)
	if err != nil {
		return err
	}
	w, err := f.PopOperand()
	if err != nil {
		return err
	}
	if !wordMatchesFieldType(w, field.Type) {
		return fmt.Errorf("putstatic %s.%s: word kind %s is not compatible with declared type %s: %w",
			owner.Identifier.Internal(), field.Name, w.Kind(), field.Type, ErrFieldTypeMismatch)
	}
	owner.SetStatic(field, ToFieldValue(w))
	return nil
}

// wordMatchesFieldType implements spec.md §4.I's putstatic compatibility
// rule: an exact kind match for primitives, and "any reference-ish word"
// (Reference or Null) for Class/Array field types — a conscious
// simplification, since full assignability needs the class hierarchy.
func wordMatchesFieldType(w Word, ft classfile.FieldType) bool {
	switch ft.Base {
	case classfile.TByte:
		return w.Kind() == KindByte
	case classfile.TShort:
		return w.Kind() == KindShort
	case classfile.TInt:
		return w.Kind() == KindInt
	case classfile.TLong:
		return w.Kind() == KindLong
	case classfile.TChar:
		return w.Kind() == KindChar
	case classfile.TFloat:
		return w.Kind() == KindFloat
	case classfile.TDouble:
		return w.Kind() == KindDouble
	case classfile.TBoolean:
		return w.Kind() == KindBoolean
	case classfile.TClass, classfile.TArray:
		return w.Kind() == KindReference || w.Kind() == KindNull
	default:
		return false
	}
}

// popArgs pops n arguments top-first and returns them in declaration order
// (arg 0 first), ready to seed a callee frame's locals.
func popArgs(f *Frame, n int) ([]Word, error) {
	words, err := f.PopOperands(n)
	if err != nil {
		return nil, err
	}
	args := make([]Word, n)
	for i, w := range words {
		args[n-1-i] = w
	}
	return args, nil
}

// invoke resolves and dispatches a MethodRef-shaped operand, shared by
// invokestatic/invokespecial/invokevirtual. rejectNative is set by
// invokespecial, which per spec.md §4.I must fail rather than silently
// reach the native registry for a method flagged ACC_NATIVE.
func invoke(e *Executor, f *Frame, offset int, rejectNative bool) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(offset)
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	var class classfile.ClassIdentifier
	var nat classfile.NameAndType
	switch v := item.(type) {
	case classfile.MethodRefItem:
		class, nat = v.Class, v.NameAndType
	case classfile.InterfaceMethodRefItem:
		class, nat = v.Class, v.NameAndType
	default:
		return fmt.Errorf("invoke operand is not a Methodref: %w", ErrWordKindMismatch)
	}

	descriptor, err := classfile.ParseMethodDescriptor(nat.Descriptor)
	if err != nil {
		return err
	}
	owner, method, err := e.resolveMethod(f.Class.Identifier, class, nat.Name, nat.Descriptor)
	if err != nil {
		return err
	}
	if rejectNative && method.IsNative() {
		return fmt.Errorf("%s.%s%s: %w", owner.Identifier.Internal(), method.Name, method.RawDescriptor, ErrNativeMethodRejected)
	}

	nargs := descriptor.CountParameterSlots()
	if !method.IsStatic() {
		nargs++ // implicit `this`
	}
	args, err := popArgs(f, nargs)
	if err != nil {
		return err
	}

	result, err := e.invokeUserMethod(owner, method, args)
	if err != nil {
		return err
	}
	// Only a native handler's Option<word> ever produces a result in this
	// core (no ireturn/areturn/etc. — see DESIGN.md); push it if present.
	if result != nil {
		return f.PushOperand(*result)
	}
	return nil
}

// opInvokestatic (0xb8) resolves and initializes the owning class before
// dispatch, per JVMS 6.5 invokestatic.
func opInvokestatic(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	ref, ok := item.(classfile.MethodRefItem)
	if !ok {
		return fmt.Errorf("invokestatic operand is not a Methodref: %w", ErrWordKindMismatch)
	}
	if err := e.ensureInitialized(ref.Class); err != nil {
		return err
	}
	return invoke(e, f, 3, false)
}

// opInvokespecial (0xb7) dispatches a constructor or private/superclass
// call. This core does not walk a class hierarchy, so it resolves exactly
// the named class, matching spec.md's exact-match method lookup. Per
// spec.md §4.I, a native target is rejected outright rather than routed to
// the native registry — invokespecial always targets a constructor or
// private/superclass call, which is never a native method.
func opInvokespecial(e *Executor, f *Frame) error {
	return invoke(e, f, 3, true)
}

// opInvokevirtual (0xb6) is accepted but dispatches the same exact-match
// way as invokespecial: this core performs no virtual (receiver-class)
// dispatch, since that requires the inheritance walk spec.md's Non-goals
// exclude. Signature-polymorphic targets (MethodHandle.invoke and friends)
// are acknowledged but unimplemented; resolveMethod fails ErrNoSuchMethod
// for them, since no class in this core's scope declares them directly.
func opInvokevirtual(e *Executor, f *Frame) error {
	return invoke(e, f, 3, false)
}

func opNew(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	class, ok := item.(classfile.ClassInfoItem)
	if !ok {
		return fmt.Errorf("new operand is not a Class: %w", ErrWordKindMismatch)
	}
	if err := e.ensureInitialized(class.Name); err != nil {
		return err
	}
	target, err := e.resolveClass(f.Class.Identifier, class.Name)
	if err != nil {
		return err
	}
	for _, field := range target.Fields {
		if !field.IsStatic() {
			return fmt.Errorf("new %s: declares instance field %q: %w", class.Name.Internal(), field.Name, ErrInstanceFieldsUnsupported)
		}
	}
	return f.PushOperand(ReferenceWord(InstanceRef{Class: class.Name}))
}

func opAnewarray(e *Executor, f *Frame) error {
	idx, err := f.ReadU16(1)
	if err != nil {
		return err
	}
	f.AdvancePC(3)
	item, err := f.ResolveInPool(idx)
	if err != nil {
		return err
	}
	class, ok := item.(classfile.ClassInfoItem)
	if !ok {
		return fmt.Errorf("anewarray operand is not a Class: %w", ErrWordKindMismatch)
	}
	count, err := f.PopOperand()
	if err != nil {
		return err
	}
	n := count.Int()
	if n < 0 {
		return fmt.Errorf("anewarray negative length %d: %w", n, ErrWordKindMismatch)
	}
	return f.PushOperand(ReferenceWord(NewArrayRef(class.Name, int(n))))
}
