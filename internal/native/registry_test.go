package native

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijvm/internal/classfile"
	"minijvm/internal/vm"
)

type fakeContext struct {
	calls []string
	err   error
}

func (f *fakeContext) InvokeStatic(class classfile.ClassIdentifier, name, descriptor string, args []vm.Word) (*vm.Word, error) {
	f.calls = append(f.calls, class.Internal()+"."+name+descriptor)
	return nil, f.err
}

func TestDefaultRegistryHasRequiredSeeds(t *testing.T) {
	r := Default()

	cases := []struct {
		class      string
		name       string
		descriptor string
	}{
		{"java/lang/System", "registerNatives", "()V"},
		{"java/lang/Class", "registerNatives", "()V"},
		{"java/lang/Object", "<init>", "()V"},
		{"jdk/internal/misc/Unsafe", "registerNatives", "()V"},
		{"jdk/internal/misc/ScopedMemoryAccess", "registerNatives", "()V"},
	}
	for _, c := range cases {
		_, ok := r.Lookup(classID(c.class), c.name, c.descriptor)
		assert.True(t, ok, "missing seed %s.%s%s", c.class, c.name, c.descriptor)
	}
}

func TestLookupMissesUnregisteredMethod(t *testing.T) {
	r := Default()
	_, ok := r.Lookup(classID("java/lang/String"), "intern", "()Ljava/lang/String;")
	assert.False(t, ok)
}

func TestSystemRegisterNativesInvokesInitPhase1(t *testing.T) {
	ctx := &fakeContext{}
	result, err := systemRegisterNatives(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{"java/lang/System.initPhase1()V"}, ctx.calls)
}

func TestSystemRegisterNativesPropagatesInitPhase1Error(t *testing.T) {
	boom := errors.New("boom")
	ctx := &fakeContext{err: boom}
	_, err := systemRegisterNatives(ctx, nil)
	assert.ErrorIs(t, err, boom)
}

func TestNoopHandlerProducesNoResult(t *testing.T) {
	result, err := noop(&fakeContext{}, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRegisterOverwritesExistingEntry(t *testing.T) {
	r := NewRegistry()
	first := func(vm.NativeContext, []vm.Word) (*vm.Word, error) { return nil, nil }
	second := func(vm.NativeContext, []vm.Word) (*vm.Word, error) {
		w := vm.IntWord(2)
		return &w, nil
	}
	id := classID("com/example/Thing")

	r.Register(id, "op", "()V", first)
	r.Register(id, "op", "()V", second)

	h, ok := r.Lookup(id, "op", "()V")
	assert.True(t, ok)
	require.NotNil(t, h)
	result, err := h(&fakeContext{}, nil)
	require.NoError(t, err)
	require.NotNil(t, result, "lookup returned the first handler, not its replacement")
	assert.Equal(t, int32(2), result.Int())
}
