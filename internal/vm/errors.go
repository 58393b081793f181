package vm

import "errors"

// Sentinel errors for the interpreter's error taxonomy (spec.md §7). Unlike
// the teacher's frame.go, which panics on stack/locals misuse, every
// operation here returns one of these wrapped in context via %w, so a driver
// (cmd/minijvm, or a future embedder) can errors.Is/errors.As instead of
// recovering from a panic.
var (
	// ErrOperandStackUnderflow is returned by pop_operands when fewer than n
	// words are on the stack.
	ErrOperandStackUnderflow = errors.New("vm: operand stack underflow")
	// ErrOperandStackOverflow is returned by push_operand when a frame's
	// operand stack would exceed the Code attribute's declared max_stack.
	ErrOperandStackOverflow = errors.New("vm: operand stack overflow")
	// ErrLocalIndexOutOfRange is returned by locals() access beyond
	// max_locals.
	ErrLocalIndexOutOfRange = errors.New("vm: local variable index out of range")
	// ErrPCOutOfRange is returned when advance_pc or current_opcode would
	// read past the end of a method's Code.
	ErrPCOutOfRange = errors.New("vm: program counter out of range")
	// ErrUnknownOpcode is returned for any opcode byte not in this core's
	// dispatch table, including wide, dup2, and invokedynamic, which are
	// explicitly out of scope.
	ErrUnknownOpcode = errors.New("vm: unknown opcode")
	// ErrWordKindMismatch is returned when an opcode handler finds a Word of
	// a different Kind than the operation requires (e.g. iadd popping a
	// Reference).
	ErrWordKindMismatch = errors.New("vm: operand stack word kind mismatch")
	// ErrAccessDenied is returned by resolve_class when the referenced
	// class is neither public nor in the referencing class's package.
	ErrAccessDenied = errors.New("vm: class access denied")
	// ErrNoSuchField is returned when a FieldRef names a field its owning
	// class does not declare.
	ErrNoSuchField = errors.New("vm: no such field")
	// ErrNoSuchMethod is returned when a MethodRef names a method its
	// owning class does not declare.
	ErrNoSuchMethod = errors.New("vm: no such method")
	// ErrNotALoadableConstant is returned when ldc/ldc_w targets a constant
	// pool entry this core cannot push (e.g. MethodHandle).
	ErrNotALoadableConstant = errors.New("vm: constant pool entry is not loadable via ldc")
	// ErrFrameStackEmpty is returned when an operation needs a current
	// frame but none is pushed.
	ErrFrameStackEmpty = errors.New("vm: no active frame")
	// ErrMaxFrameDepthExceeded guards against unbounded recursion, mirroring
	// the teacher's frameDepth/maxFrameDepth check in vm.go.
	ErrMaxFrameDepthExceeded = errors.New("vm: maximum frame depth exceeded")
	// ErrAbstractMethod is returned when the executor is asked to run a
	// method with no Code and no native registration.
	ErrAbstractMethod = errors.New("vm: method has no code")
	// ErrUnimplementedNative is returned when a native method has no
	// registry entry.
	ErrUnimplementedNative = errors.New("vm: unimplemented native method")
	// ErrInstanceFieldsUnsupported is returned by `new` when the target
	// class declares any instance field; this core's Reference::Instance
	// carries no field storage, so such a class can never be constructed.
	ErrInstanceFieldsUnsupported = errors.New("vm: new on a class with instance fields is unsupported")
	// ErrFieldTypeMismatch is returned by putstatic when the popped word's
	// kind is not compatible with the field's declared field-type.
	ErrFieldTypeMismatch = errors.New("vm: value is not compatible with declared field type")
	// ErrNativeMethodRejected is returned by invokespecial when the
	// resolved method is native; invokespecial always targets a
	// constructor or private/superclass call, never a native method.
	ErrNativeMethodRejected = errors.New("vm: invokespecial cannot target a native method")
)
