package vm

import (
	"fmt"

	"minijvm/internal/classfile"
)

// Frame is one activation record: the executing method's class, its Code,
// an operand stack, and local variables. Grounded in the teacher's
// pkg/vm/frame.go Frame type, generalized from a bare Value/ValueType pair
// to the full Word union and rewritten so every bounds/type check returns an
// error instead of panicking, per spec.md §7's error taxonomy.
//
// Each Frame owns its own operand-stack and locals slices rather than
// slicing into one process-wide array the way a production JVM lays out its
// thread stack; spec.md §4.H describes a logical per-frame segment, and this
// is the straightforward Go rendering of that description.
type Frame struct {
	Class  *classfile.Class
	Method *classfile.Method
	Code   []byte
	Locals []Word
	stack  []Word
	PC     int
}

// NewFrame allocates a frame for method, sized per its Code attribute's
// max_locals/max_stack.
func NewFrame(class *classfile.Class, method *classfile.Method) *Frame {
	locals := make([]Word, method.Code.MaxLocals)
	for i := range locals {
		locals[i] = NullWord()
	}
	return &Frame{
		Class:  class,
		Method: method,
		Code:   method.Code.Code,
		Locals: locals,
		stack:  make([]Word, 0, method.Code.MaxStack),
	}
}

// CurrentOpcode returns the opcode byte at PC without advancing it.
func (f *Frame) CurrentOpcode() (byte, error) {
	if f.PC < 0 || f.PC >= len(f.Code) {
		return 0, fmt.Errorf("pc %d: %w", f.PC, ErrPCOutOfRange)
	}
	return f.Code[f.PC], nil
}

// AdvancePC moves PC forward by n bytes, used after reading an opcode's
// operand bytes.
func (f *Frame) AdvancePC(n int) {
	f.PC += n
}

// ReadU8 reads an unsigned byte operand at PC+offset without mutating PC.
func (f *Frame) ReadU8(offset int) (uint8, error) {
	idx := f.PC + offset
	if idx < 0 || idx >= len(f.Code) {
		return 0, fmt.Errorf("operand byte at pc+%d: %w", offset, ErrPCOutOfRange)
	}
	return f.Code[idx], nil
}

// ReadI8 reads a signed byte operand at PC+offset.
func (f *Frame) ReadI8(offset int) (int8, error) {
	b, err := f.ReadU8(offset)
	return int8(b), err
}

// ReadU16 reads a big-endian unsigned 16-bit operand starting at PC+offset.
func (f *Frame) ReadU16(offset int) (uint16, error) {
	hi, err := f.ReadU8(offset)
	if err != nil {
		return 0, err
	}
	lo, err := f.ReadU8(offset + 1)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// ReadI16 reads a big-endian signed 16-bit operand (a branch offset).
func (f *Frame) ReadI16(offset int) (int16, error) {
	u, err := f.ReadU16(offset)
	return int16(u), err
}

// PushOperand pushes w onto the frame's operand stack, failing
// ErrOperandStackOverflow if that would exceed the Code attribute's
// declared max_stack.
func (f *Frame) PushOperand(w Word) error {
	if len(f.stack) >= cap(f.stack) {
		return fmt.Errorf("pushing %s: %w", w.Kind(), ErrOperandStackOverflow)
	}
	f.stack = append(f.stack, w)
	return nil
}

// PopOperands removes and returns the top n words, ordered top-first: the
// result's element 0 is what was most recently pushed. This is the
// convention spec.md §9 specifies for pop_operands(n).
func (f *Frame) PopOperands(n int) ([]Word, error) {
	if n < 0 || len(f.stack) < n {
		return nil, fmt.Errorf("popping %d operand(s), have %d: %w", n, len(f.stack), ErrOperandStackUnderflow)
	}
	out := make([]Word, n)
	for i := 0; i < n; i++ {
		out[i] = f.stack[len(f.stack)-1-i]
	}
	f.stack = f.stack[:len(f.stack)-n]
	return out, nil
}

// PopOperand pops and returns the single top word.
func (f *Frame) PopOperand() (Word, error) {
	words, err := f.PopOperands(1)
	if err != nil {
		return Word{}, err
	}
	return words[0], nil
}

// Local reads the local variable at index.
func (f *Frame) Local(index int) (Word, error) {
	if index < 0 || index >= len(f.Locals) {
		return Word{}, fmt.Errorf("local %d: %w", index, ErrLocalIndexOutOfRange)
	}
	return f.Locals[index], nil
}

// SetLocal writes the local variable at index.
func (f *Frame) SetLocal(index int, w Word) error {
	if index < 0 || index >= len(f.Locals) {
		return fmt.Errorf("local %d: %w", index, ErrLocalIndexOutOfRange)
	}
	f.Locals[index] = w
	return nil
}

// ResolveInPool resolves a constant pool index against this frame's
// method's declaring class, the form every opcode handler needing ldc/
// getstatic/invoke* resolution goes through.
func (f *Frame) ResolveInPool(index uint16) (classfile.ConstantPoolItem, error) {
	return f.Class.Pool.Resolve(index)
}
