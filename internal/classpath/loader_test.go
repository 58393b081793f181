package classpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijvm/internal/classfile"
)

func TestLoaderCachesOnSecondLoad(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)
	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "Main.class"), buildTinyClass(t, "Main"), 0o644))

	cp, err := Open([]string{userDir})
	require.NoError(t, err)
	loader := NewLoader(cp, nil)

	id := classfile.ClassIdentifier{Simple: "Main"}
	h1, err := loader.Load(id)
	require.NoError(t, err)
	h2, err := loader.Load(id)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	class := loader.Resolve(h1)
	assert.Equal(t, id, class.Identifier)
}

func TestLoadMainRejectsClassWithoutMain(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)
	userDir := t.TempDir()

	// Object.class (served from the fake jmod) has no main method.
	cp, err := Open([]string{userDir})
	require.NoError(t, err)
	loader := NewLoader(cp, nil)

	_, err = loader.LoadMain(classfile.ClassIdentifier{Package: "java/lang", Simple: "Object"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMainMethod)
}

func TestLoadMainAcceptsClassWithMain(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)
	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "Main.class"), buildTinyClass(t, "Main"), 0o644))

	cp, err := Open([]string{userDir})
	require.NoError(t, err)
	loader := NewLoader(cp, nil)

	handle, err := loader.LoadMain(classfile.ClassIdentifier{Simple: "Main"})
	require.NoError(t, err)
	assert.NotNil(t, loader.Resolve(handle).MainMethod())
}

func TestResolveStaleHandlePanics(t *testing.T) {
	home := writeFakeJavaHome(t)
	t.Setenv("JAVA_HOME", home)
	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "Main.class"), buildTinyClass(t, "Main"), 0o644))

	cp, err := Open([]string{userDir})
	require.NoError(t, err)
	loaderA := NewLoader(cp, nil)
	loaderB := NewLoader(cp, nil)

	handleFromA, err := loaderA.Load(classfile.ClassIdentifier{Simple: "Main"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		loaderB.Resolve(handleFromA)
	})
}
