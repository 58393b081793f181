package classpath

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
)

// buildTinyClass produces the bytes of a minimal valid classfile named
// simpleName with a trivial `public static void main(String[])` body,
// enough for the classpath/loader tests below — the classpath package
// never inspects bytecode, only that Parse succeeds.
func buildTinyClass(t *testing.T, simpleName string) []byte {
	t.Helper()
	return buildTinyClassWithMethod(t, simpleName, "main")
}

// buildTinyClassWithMethod is buildTinyClass with its single public static
// ([Ljava/lang/String;)V method named methodName; any name other than "main"
// yields a class that has no main method.
func buildTinyClassWithMethod(t *testing.T, simpleName, methodName string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var cp bytes.Buffer
	var n uint16

	writeUtf8 := func(s string) uint16 {
		cp.WriteByte(1)
		binary.Write(&cp, binary.BigEndian, uint16(len(s)))
		cp.WriteString(s)
		n++
		return n
	}
	writeClass := func(nameIdx uint16) uint16 {
		cp.WriteByte(7)
		binary.Write(&cp, binary.BigEndian, nameIdx)
		n++
		return n
	}

	nameIdx := writeUtf8(simpleName)
	thisIdx := writeClass(nameIdx)
	objNameIdx := writeUtf8("java/lang/Object")
	superIdx := writeClass(objNameIdx)
	mainNameIdx := writeUtf8(methodName)
	mainDescIdx := writeUtf8("([Ljava/lang/String;)V")
	codeNameIdx := writeUtf8("Code")

	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, n+1)
	buf.Write(cp.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(0x0021)) // Public|Super
	binary.Write(&buf, binary.BigEndian, thisIdx)
	binary.Write(&buf, binary.BigEndian, superIdx)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // interfaces
	binary.Write(&buf, binary.BigEndian, uint16(0)) // fields

	binary.Write(&buf, binary.BigEndian, uint16(1)) // methods
	binary.Write(&buf, binary.BigEndian, uint16(0x0009)) // Public|Static
	binary.Write(&buf, binary.BigEndian, mainNameIdx)
	binary.Write(&buf, binary.BigEndian, mainDescIdx)
	binary.Write(&buf, binary.BigEndian, uint16(1))

	var code bytes.Buffer
	binary.Write(&code, binary.BigEndian, uint16(1))
	binary.Write(&code, binary.BigEndian, uint16(1))
	binary.Write(&code, binary.BigEndian, uint32(1))
	code.WriteByte(0xb1)
	binary.Write(&code, binary.BigEndian, uint16(0))
	binary.Write(&code, binary.BigEndian, uint16(0))

	binary.Write(&buf, binary.BigEndian, codeNameIdx)
	binary.Write(&buf, binary.BigEndian, uint32(code.Len()))
	buf.Write(code.Bytes())

	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes

	return buf.Bytes()
}

func writeFakeJavaHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	jmods := filepath.Join(home, "jmods")
	require.NoError(t, os.MkdirAll(jmods, 0o755))

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	w, err := zw.Create("classes/java/lang/Object.class")
	require.NoError(t, err)
	_, err = w.Write(buildTinyClassWithMethod(t, "Object", "run"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var jmod bytes.Buffer
	jmod.Write(jmodHeader)
	jmod.Write(zbuf.Bytes())
	require.NoError(t, os.WriteFile(filepath.Join(jmods, "java.base.jmod"), jmod.Bytes(), 0o644))

	return home
}

func TestOpenRequiresJavaHome(t *testing.T) {
	t.Setenv("JAVA_HOME", "")
	_, err := Open(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClasspathInvalid)
}

func TestOpenMissingDirectory(t *testing.T) {
	t.Setenv("JAVA_HOME", writeFakeJavaHome(t))
	_, err := Open([]string{"/no/such/directory"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClasspathInvalid)
}

func TestFindUserDirectoryWinsOverJmod(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)

	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "Main.class"), buildTinyClass(t, "Main"), 0o644))
	// A user-directory Object.class shadows the jmod's java/lang/Object.
	shadow := buildTinyClass(t, "Shadow")
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "Object.class"), shadow, 0o644))

	cp, err := Open([]string{userDir})
	require.NoError(t, err)

	data, err := cp.Find(classfile.ClassIdentifier{Simple: "Main"})
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	data, err = cp.Find(classfile.ClassIdentifier{Package: "java/lang", Simple: "Object"})
	require.NoError(t, err)
	assert.Equal(t, shadow, data)
}

func TestFindFallsBackToBootstrapJmod(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)

	cp, err := Open(nil)
	require.NoError(t, err)

	data, err := cp.Find(classfile.ClassIdentifier{Package: "java/lang", Simple: "Object"})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFindNotFound(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)

	cp, err := Open(nil)
	require.NoError(t, err)

	_, err = cp.Find(classfile.ClassIdentifier{Simple: "DoesNotExist"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
