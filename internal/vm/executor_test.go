package vm

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijvm/internal/classfile"
	"minijvm/internal/classpath"
)

// jmodHeader mirrors classpath's own (unexported) constant; duplicated here
// since this package builds its own fixture classpath directly from bytes,
// the same way internal/classpath's own tests do.
var jmodHeader = []byte{'J', 'M', 1, 0}

func writeFakeJavaHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	jmods := filepath.Join(home, "jmods")
	require.NoError(t, os.MkdirAll(jmods, 0o755))

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	require.NoError(t, zw.Close())

	var jmod bytes.Buffer
	jmod.Write(jmodHeader)
	jmod.Write(zbuf.Bytes())
	require.NoError(t, os.WriteFile(filepath.Join(jmods, "java.base.jmod"), jmod.Bytes(), 0o644))
	return home
}

func openFixtureClasspath(t *testing.T, dir string) *classpath.ClassPath {
	t.Helper()
	t.Setenv("JAVA_HOME", writeFakeJavaHome(t))
	cp, err := classpath.Open([]string{dir})
	require.NoError(t, err)
	return cp
}

// cpWriter is a small hand-rolled constant pool builder for this package's
// integration-style tests, the same approach internal/classfile and
// internal/classpath's own tests take in the absence of real compiled
// .class fixtures.
type cpWriter struct {
	buf bytes.Buffer
	n   uint16
}

func (c *cpWriter) utf8(s string) uint16 {
	c.buf.WriteByte(1)
	binary.Write(&c.buf, binary.BigEndian, uint16(len(s)))
	c.buf.WriteString(s)
	c.n++
	return c.n
}

func (c *cpWriter) class(nameIdx uint16) uint16 {
	c.buf.WriteByte(7)
	binary.Write(&c.buf, binary.BigEndian, nameIdx)
	c.n++
	return c.n
}

func (c *cpWriter) integer(v int32) uint16 {
	c.buf.WriteByte(3)
	binary.Write(&c.buf, binary.BigEndian, v)
	c.n++
	return c.n
}

func (c *cpWriter) nameAndType(nameIdx, descIdx uint16) uint16 {
	c.buf.WriteByte(12)
	binary.Write(&c.buf, binary.BigEndian, nameIdx)
	binary.Write(&c.buf, binary.BigEndian, descIdx)
	c.n++
	return c.n
}

func (c *cpWriter) fieldref(classIdx, natIdx uint16) uint16 {
	c.buf.WriteByte(9)
	binary.Write(&c.buf, binary.BigEndian, classIdx)
	binary.Write(&c.buf, binary.BigEndian, natIdx)
	c.n++
	return c.n
}

func (c *cpWriter) methodref(classIdx, natIdx uint16) uint16 {
	c.buf.WriteByte(10)
	binary.Write(&c.buf, binary.BigEndian, classIdx)
	binary.Write(&c.buf, binary.BigEndian, natIdx)
	c.n++
	return c.n
}

// buildLoopClass assembles a classfile for a class with one static int
// field "result" and a main method that counts a local from 0 up to the
// constant 5 using iload/istore/iinc/if_icmpge/goto, then stores the final
// count into the static field. It exercises the loop-shaped opcodes this
// core adds beyond the single-branch ifne spec.md names explicitly (ldc,
// iload/istore, iinc, if_icmpge, goto); the other conditional branches are
// not used here.
func buildLoopClass(t *testing.T) []byte {
	t.Helper()
	var cp cpWriter

	nameIdx := cp.utf8("LoopTest")
	thisIdx := cp.class(nameIdx)
	objNameIdx := cp.utf8("java/lang/Object")
	superIdx := cp.class(objNameIdx)
	_ = cp.utf8("main")
	_ = cp.utf8("([Ljava/lang/String;)V")
	_ = cp.utf8("Code")
	fiveIdx := cp.integer(5)
	resultNameIdx := cp.utf8("result")
	intDescIdx := cp.utf8("I")
	natIdx := cp.nameAndType(resultNameIdx, intDescIdx)
	fieldIdx := cp.fieldref(thisIdx, natIdx)

	var code bytes.Buffer
	code.Write([]byte{0x12, byte(fiveIdx)}) // 0: ldc #five
	code.WriteByte(0x3c)                    // 2: istore_1
	code.WriteByte(0x03)                    // 3: iconst_0
	code.WriteByte(0x3b)                    // 4: istore_0
	code.WriteByte(0x1a)                    // 5: iload_0   (loop start)
	code.WriteByte(0x1b)                    // 6: iload_1
	code.WriteByte(0xa2)                    // 7: if_icmpge -> end (addr 16)
	binary.Write(&code, binary.BigEndian, int16(9))
	code.Write([]byte{0x84, 0x00, 0x01}) // 10: iinc 0, +1
	code.WriteByte(0xa7)                 // 13: goto -> loop start (addr 5)
	binary.Write(&code, binary.BigEndian, int16(-8))
	code.WriteByte(0x1a) // 16: iload_0   (end label)
	code.WriteByte(0xb3) // 17: putstatic #field
	binary.Write(&code, binary.BigEndian, fieldIdx)
	code.WriteByte(0xb1) // 20: return

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, cp.n+1)
	buf.Write(cp.buf.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(0x0021)) // Public|Super
	binary.Write(&buf, binary.BigEndian, thisIdx)
	binary.Write(&buf, binary.BigEndian, superIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // interfaces

	binary.Write(&buf, binary.BigEndian, uint16(1)) // fields_count
	binary.Write(&buf, binary.BigEndian, uint16(0x0008)) // ACC_STATIC
	binary.Write(&buf, binary.BigEndian, resultNameIdx)
	binary.Write(&buf, binary.BigEndian, intDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // field attributes

	binary.Write(&buf, binary.BigEndian, uint16(1))      // methods_count
	binary.Write(&buf, binary.BigEndian, uint16(0x0009)) // Public|Static
	binary.Write(&buf, binary.BigEndian, uint16(5))      // "main" utf8 index
	binary.Write(&buf, binary.BigEndian, uint16(6))      // descriptor index
	binary.Write(&buf, binary.BigEndian, uint16(1))      // method attributes_count

	binary.Write(&buf, binary.BigEndian, uint16(7)) // "Code" utf8 index
	binary.Write(&buf, binary.BigEndian, uint32(2+2+4+code.Len()+2+2))
	binary.Write(&buf, binary.BigEndian, uint16(4)) // max_stack
	binary.Write(&buf, binary.BigEndian, uint16(2)) // max_locals
	binary.Write(&buf, binary.BigEndian, uint32(code.Len()))
	buf.Write(code.Bytes())
	binary.Write(&buf, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&buf, binary.BigEndian, uint16(0)) // code attributes_count

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count
	return buf.Bytes()
}

func TestExecutorRunsCountingLoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LoopTest.class"), buildLoopClass(t), 0o644))
	cp := openFixtureClasspath(t, dir)
	loader := classpath.NewLoader(cp, nil)
	exec := NewExecutor(loader, nil, nil)

	id := classfile.ClassIdentifier{Simple: "LoopTest"}
	require.NoError(t, exec.Execute(id))

	handle, ok := loader.Loaded(id)
	require.True(t, ok)
	class := loader.Resolve(handle)
	field := class.Field("result")
	require.NotNil(t, field)
	assert.Equal(t, classfile.IntValue(5), field.Value)
}

type stubNatives struct {
	handlers map[string]NativeHandler
}

func (s *stubNatives) Lookup(class classfile.ClassIdentifier, name, descriptor string) (NativeHandler, bool) {
	h, ok := s.handlers[class.Internal()+"."+name+descriptor]
	return h, ok
}

// buildNativeInvokeClass assembles a class declaring two methods: a
// `public static void main` that invokestatics a sibling `native static int
// ping()` and stores its result into a static field, and `ping` itself —
// declared ACC_NATIVE with no Code attribute, so resolution must go through
// the native registry rather than interpreting bytecode.
func buildNativeInvokeClass(t *testing.T) []byte {
	t.Helper()
	var cp cpWriter

	nameIdx := cp.utf8("Caller")
	thisIdx := cp.class(nameIdx)
	objNameIdx := cp.utf8("java/lang/Object")
	superIdx := cp.class(objNameIdx)
	mainNameIdx := cp.utf8("main")
	mainDescIdx := cp.utf8("([Ljava/lang/String;)V")
	codeNameIdx := cp.utf8("Code")
	pingNameIdx := cp.utf8("ping")
	pingDescIdx := cp.utf8("()I")
	pingNatIdx := cp.nameAndType(pingNameIdx, pingDescIdx)
	methodIdx := cp.methodref(thisIdx, pingNatIdx)
	resultNameIdx := cp.utf8("result")
	intDescIdx := cp.utf8("I")
	fieldNatIdx := cp.nameAndType(resultNameIdx, intDescIdx)
	fieldIdx := cp.fieldref(thisIdx, fieldNatIdx)

	var code bytes.Buffer
	code.Write([]byte{0xb8}) // invokestatic #ping
	binary.Write(&code, binary.BigEndian, methodIdx)
	code.WriteByte(0xb3) // putstatic #result
	binary.Write(&code, binary.BigEndian, fieldIdx)
	code.WriteByte(0xb1) // return

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, cp.n+1)
	buf.Write(cp.buf.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(0x0021))
	binary.Write(&buf, binary.BigEndian, thisIdx)
	binary.Write(&buf, binary.BigEndian, superIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0))

	binary.Write(&buf, binary.BigEndian, uint16(1)) // fields_count
	binary.Write(&buf, binary.BigEndian, uint16(0x0008))
	binary.Write(&buf, binary.BigEndian, resultNameIdx)
	binary.Write(&buf, binary.BigEndian, intDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0))

	binary.Write(&buf, binary.BigEndian, uint16(2)) // methods_count: main, ping

	binary.Write(&buf, binary.BigEndian, uint16(0x0009)) // main: Public|Static
	binary.Write(&buf, binary.BigEndian, mainNameIdx)
	binary.Write(&buf, binary.BigEndian, mainDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(1))

	binary.Write(&buf, binary.BigEndian, codeNameIdx)
	binary.Write(&buf, binary.BigEndian, uint32(2+2+4+code.Len()+2+2))
	binary.Write(&buf, binary.BigEndian, uint16(2))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint32(code.Len()))
	buf.Write(code.Bytes())
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(0))

	binary.Write(&buf, binary.BigEndian, uint16(0x0109)) // ping: Public|Static|Native
	binary.Write(&buf, binary.BigEndian, pingNameIdx)
	binary.Write(&buf, binary.BigEndian, pingDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // no attributes: no Code

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count
	return buf.Bytes()
}

func TestExecutorInvokestaticDispatchesToNative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Caller.class"), buildNativeInvokeClass(t), 0o644))
	cp := openFixtureClasspath(t, dir)
	loader := classpath.NewLoader(cp, nil)

	called := false
	natives := &stubNatives{handlers: map[string]NativeHandler{
		"Caller.ping()I": func(ctx NativeContext, args []Word) (*Word, error) {
			called = true
			w := IntWord(123)
			return &w, nil
		},
	}}
	exec := NewExecutor(loader, natives, nil)

	id := classfile.ClassIdentifier{Simple: "Caller"}
	require.NoError(t, exec.Execute(id))
	assert.True(t, called)

	handle, _ := loader.Loaded(id)
	field := loader.Resolve(handle).Field("result")
	require.NotNil(t, field)
	assert.Equal(t, classfile.IntValue(123), field.Value)
}

func TestExecutorUnimplementedNativeFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Caller.class"), buildNativeInvokeClass(t), 0o644))
	cp := openFixtureClasspath(t, dir)
	loader := classpath.NewLoader(cp, nil)
	exec := NewExecutor(loader, nil, nil)

	err := exec.Execute(classfile.ClassIdentifier{Simple: "Caller"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnimplementedNative)
}
