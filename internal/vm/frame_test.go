package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijvm/internal/classfile"
)

func testMethod(maxStack, maxLocals uint16, code []byte) *classfile.Method {
	return &classfile.Method{
		Name:          "test",
		RawDescriptor: "()V",
		Code: &classfile.CodeAttribute{
			MaxStack:  maxStack,
			MaxLocals: maxLocals,
			Code:      code,
		},
	}
}

func testClass() *classfile.Class {
	return &classfile.Class{
		Identifier: classfile.ClassIdentifier{Simple: "Test"},
	}
}

func TestFramePushPopOperandOrder(t *testing.T) {
	f := NewFrame(testClass(), testMethod(4, 0, []byte{0x00}))
	require.NoError(t, f.PushOperand(IntWord(1)))
	require.NoError(t, f.PushOperand(IntWord(2)))
	require.NoError(t, f.PushOperand(IntWord(3)))

	words, err := f.PopOperands(2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), words[0].Int())
	assert.Equal(t, int32(2), words[1].Int())

	last, err := f.PopOperand()
	require.NoError(t, err)
	assert.Equal(t, int32(1), last.Int())
}

func TestFrameOperandStackUnderflow(t *testing.T) {
	f := NewFrame(testClass(), testMethod(4, 0, []byte{0x00}))
	_, err := f.PopOperand()
	assert.ErrorIs(t, err, ErrOperandStackUnderflow)
}

func TestFrameOperandStackOverflow(t *testing.T) {
	f := NewFrame(testClass(), testMethod(1, 0, []byte{0x00}))
	require.NoError(t, f.PushOperand(IntWord(1)))
	err := f.PushOperand(IntWord(2))
	assert.ErrorIs(t, err, ErrOperandStackOverflow)
}

func TestFrameLocalsOutOfRange(t *testing.T) {
	f := NewFrame(testClass(), testMethod(1, 1, []byte{0x00}))
	_, err := f.Local(5)
	assert.ErrorIs(t, err, ErrLocalIndexOutOfRange)

	err = f.SetLocal(5, IntWord(1))
	assert.ErrorIs(t, err, ErrLocalIndexOutOfRange)
}

func TestFrameReadOperandsAdvancePC(t *testing.T) {
	f := NewFrame(testClass(), testMethod(1, 0, []byte{0xb2, 0x00, 0x2a}))
	u16, err := f.ReadU16(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x002a), u16)

	f.AdvancePC(3)
	assert.Equal(t, 3, f.PC)

	_, err = f.CurrentOpcode()
	assert.ErrorIs(t, err, ErrPCOutOfRange)
}

func TestFrameBranchOffsetSigned(t *testing.T) {
	f := NewFrame(testClass(), testMethod(1, 0, []byte{0xa7, 0xff, 0xfd}))
	offset, err := f.ReadI16(1)
	require.NoError(t, err)
	assert.Equal(t, int16(-3), offset)
}
