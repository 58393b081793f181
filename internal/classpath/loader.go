package classpath

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"minijvm/internal/classfile"
	"minijvm/internal/diag"
)

// ErrNoMainMethod is returned by LoadMain when the requested class has no
// `public static void main(String[])`.
var ErrNoMainMethod = errors.New("classpath: class has no main method")

// cacheEntry is the loader's sole authoritative copy of a decoded class,
// per spec.md's design note: callers never receive their own clone, only
// a ClassHandle naming this entry, so a static-field write here is
// visible to every other holder of the same handle.
type cacheEntry struct {
	class      *classfile.Class
	generation uuid.UUID
}

// ClassHandle is the stable (identifier, generation) pair a caller holds
// instead of a raw pointer, per spec.md §9's class-cache ownership note.
// It stays valid for the life of the Loader that minted it; the
// generation is a uuid rather than a counter so handles minted by two
// different Loader instances never alias.
type ClassHandle struct {
	ID         classfile.ClassIdentifier
	generation uuid.UUID
}

// Loader maps ClassIdentifier to a cached, decoded Class, fetching and
// parsing class bytes from a ClassPath on first reference.
type Loader struct {
	path    *ClassPath
	cache   map[classfile.ClassIdentifier]*cacheEntry
	logger  *diag.Logger
}

func NewLoader(path *ClassPath, logger *diag.Logger) *Loader {
	if logger == nil {
		logger = diag.Noop()
	}
	return &Loader{
		path:   path,
		cache:  make(map[classfile.ClassIdentifier]*cacheEntry),
		logger: logger,
	}
}

// Load returns the cached class for id, fetching and decoding it from the
// classpath on first reference.
func (l *Loader) Load(id classfile.ClassIdentifier) (ClassHandle, error) {
	if e, ok := l.cache[id]; ok {
		return ClassHandle{ID: id, generation: e.generation}, nil
	}

	data, err := l.path.Find(id)
	if err != nil {
		return ClassHandle{}, fmt.Errorf("loading %s: %w", id.Internal(), err)
	}
	class, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return ClassHandle{}, fmt.Errorf("decoding %s: %w", id.Internal(), err)
	}

	gen := uuid.New()
	l.cache[id] = &cacheEntry{class: class, generation: gen}
	l.logger.ClassLoaded(id.Internal(), "classpath")
	return ClassHandle{ID: id, generation: gen}, nil
}

// LoadMain is Load plus the main-method requirement the CLI entry point
// needs.
func (l *Loader) LoadMain(id classfile.ClassIdentifier) (ClassHandle, error) {
	handle, err := l.Load(id)
	if err != nil {
		return ClassHandle{}, err
	}
	class := l.Resolve(handle)
	if class.MainMethod() == nil {
		return ClassHandle{}, fmt.Errorf("%w: %s", ErrNoMainMethod, id.Internal())
	}
	return handle, nil
}

// Resolve dereferences a handle to its authoritative Class. A handle
// minted by this Loader is always resolvable — classes are never
// unloaded in this core — but the generation is still checked, since a
// handle from a different Loader instance (e.g. a second Executor) must
// not silently alias this one's cache.
func (l *Loader) Resolve(handle ClassHandle) *classfile.Class {
	e, ok := l.cache[handle.ID]
	if !ok || e.generation != handle.generation {
		panic(fmt.Sprintf("classpath: stale or foreign ClassHandle for %s", handle.ID.Internal()))
	}
	return e.class
}

// Loaded reports whether id has already been fetched and decoded,
// without triggering a load.
func (l *Loader) Loaded(id classfile.ClassIdentifier) (ClassHandle, bool) {
	e, ok := l.cache[id]
	if !ok {
		return ClassHandle{}, false
	}
	return ClassHandle{ID: id, generation: e.generation}, true
}
