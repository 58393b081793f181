package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runOp(t *testing.T, op byte, stackIn []Word, locals []Word, code []byte) *Frame {
	t.Helper()
	method := testMethod(8, uint16(len(locals)), code)
	f := NewFrame(testClass(), method)
	for i, l := range locals {
		f.Locals[i] = l
	}
	for _, w := range stackIn {
		require.NoError(t, f.PushOperand(w))
	}
	handler, ok := opcodeTable[op]
	require.True(t, ok, "opcode 0x%02x not in dispatch table", op)
	require.NoError(t, handler(&Executor{}, f))
	return f
}

func TestOpIconst0(t *testing.T) {
	f := runOp(t, 0x03, nil, nil, []byte{0x03})
	w, err := f.PopOperand()
	require.NoError(t, err)
	assert.Equal(t, int32(0), w.Int())
}

func TestOpDup(t *testing.T) {
	f := runOp(t, 0x59, []Word{IntWord(7)}, nil, []byte{0x59})
	top, err := f.PopOperand()
	require.NoError(t, err)
	second, err := f.PopOperand()
	require.NoError(t, err)
	assert.Equal(t, int32(7), top.Int())
	assert.Equal(t, int32(7), second.Int())
}

func TestOpIarith(t *testing.T) {
	cases := []struct {
		op       byte
		a, b     int32
		expected int32
	}{
		{0x60, 2, 3, 5},  // iadd
		{0x64, 5, 3, 2},  // isub
		{0x68, 4, 3, 12}, // imul
		{0x6c, 9, 3, 3},  // idiv
		{0x70, 9, 4, 1},  // irem
	}
	for _, c := range cases {
		f := runOp(t, c.op, []Word{IntWord(c.a), IntWord(c.b)}, nil, []byte{c.op})
		w, err := f.PopOperand()
		require.NoError(t, err)
		assert.Equal(t, c.expected, w.Int(), "opcode 0x%02x", c.op)
	}
}

func TestOpIdivByZero(t *testing.T) {
	f := NewFrame(testClass(), testMethod(4, 0, []byte{0x6c}))
	require.NoError(t, f.PushOperand(IntWord(1)))
	require.NoError(t, f.PushOperand(IntWord(0)))
	err := opcodeTable[0x6c](&Executor{}, f)
	assert.Error(t, err)
}

func TestOpIneg(t *testing.T) {
	f := runOp(t, 0x74, []Word{IntWord(5)}, nil, []byte{0x74})
	w, err := f.PopOperand()
	require.NoError(t, err)
	assert.Equal(t, int32(-5), w.Int())
}

func TestOpIincPositiveAndNegative(t *testing.T) {
	f := runOp(t, 0x84, nil, []Word{IntWord(10)}, []byte{0x84, 0x00, 0x03})
	w, err := f.Local(0)
	require.NoError(t, err)
	assert.Equal(t, int32(13), w.Int())

	f = runOp(t, 0x84, nil, []Word{IntWord(10)}, []byte{0x84, 0x00, 0xff})
	w, err = f.Local(0)
	require.NoError(t, err)
	assert.Equal(t, int32(9), w.Int())
}

func TestOpIfneBranchesOnNonzero(t *testing.T) {
	f := runOp(t, 0x9a, []Word{IntWord(1)}, nil, []byte{0x9a, 0x00, 0x05})
	assert.Equal(t, 5, f.PC)
}

func TestOpIfneFallsThroughOnZero(t *testing.T) {
	f := runOp(t, 0x9a, []Word{IntWord(0)}, nil, []byte{0x9a, 0x00, 0x05})
	assert.Equal(t, 3, f.PC)
}

func TestOpIfIcmpltBranches(t *testing.T) {
	// push a=1, b=2; if_icmplt: a < b -> branch
	f := runOp(t, 0xa1, []Word{IntWord(1), IntWord(2)}, nil, []byte{0xa1, 0x00, 0x07})
	assert.Equal(t, 7, f.PC)
}

func TestOpGoto(t *testing.T) {
	f := runOp(t, 0xa7, nil, nil, []byte{0xa7, 0xff, 0xfe})
	assert.Equal(t, -2, f.PC)
}

func TestOpIloadIstoreRoundTrip(t *testing.T) {
	f := NewFrame(testClass(), testMethod(4, 1, []byte{0x3b, 0x1a}))
	require.NoError(t, f.PushOperand(IntWord(99)))
	require.NoError(t, opcodeTable[0x3b](&Executor{}, f)) // istore_0
	require.NoError(t, opcodeTable[0x1a](&Executor{}, f)) // iload_0
	w, err := f.PopOperand()
	require.NoError(t, err)
	assert.Equal(t, int32(99), w.Int())
}

func TestOpReturnSignalsFrameReturn(t *testing.T) {
	f := NewFrame(testClass(), testMethod(1, 0, []byte{0xb1}))
	err := opcodeTable[0xb1](&Executor{}, f)
	assert.ErrorIs(t, err, errFrameReturned)
}

func TestUnknownOpcodeNotInTable(t *testing.T) {
	_, ok := opcodeTable[0xc9] // jsr_w, unimplemented
	assert.False(t, ok)
}
