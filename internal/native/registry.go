// Package native implements the native-method registry internal/vm
// consults whenever it encounters an ACC_NATIVE method: a lookup table
// keyed by (class, name, descriptor) mapping to a small Go function, the
// same role the teacher's pkg/vm/vm.go executeNativeMethod switch plays,
// split into its own package per SPEC_FULL.md §4's module expansion.
package native

import (
	"minijvm/internal/classfile"
	"minijvm/internal/vm"
)

// key identifies one native method the same way a MethodRef does: owning
// class, name, and raw descriptor. Exact descriptor match only — this core
// performs no overload resolution.
type key struct {
	class      classfile.ClassIdentifier
	name       string
	descriptor string
}

// Registry is a vm.NativeLookup backed by a static map, built once at
// startup by Default() (or assembled by hand for tests).
type Registry struct {
	handlers map[key]vm.NativeHandler
}

// NewRegistry returns an empty registry; callers add entries with Register.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]vm.NativeHandler)}
}

// Register adds or replaces the handler for (class, name, descriptor).
func (r *Registry) Register(class classfile.ClassIdentifier, name, descriptor string, handler vm.NativeHandler) {
	r.handlers[key{class: class, name: name, descriptor: descriptor}] = handler
}

// Lookup implements vm.NativeLookup.
func (r *Registry) Lookup(class classfile.ClassIdentifier, name, descriptor string) (vm.NativeHandler, bool) {
	h, ok := r.handlers[key{class: class, name: name, descriptor: descriptor}]
	return h, ok
}

func classID(internalName string) classfile.ClassIdentifier {
	return classfile.ParseClassIdentifier(internalName)
}

// noop returns a handler that does nothing and produces no result, for the
// registerNatives-shaped stubs SPEC_FULL.md §4 seeds.
func noop(vm.NativeContext, []vm.Word) (*vm.Word, error) {
	return nil, nil
}

// Default builds the registry this interpreter ships with: the two entries
// spec.md §4.K requires, plus the small bootstrap seed SPEC_FULL.md §4
// adds. The executor consults these entries only for a method flagged
// ACC_NATIVE that is reached through invokestatic, invokevirtual, or a
// native handler's InvokeStatic callback; invokespecial fails
// ErrNativeMethodRejected for a native target before the registry is
// consulted, so the Object.<init> entry is never reached through it.
func Default() *Registry {
	r := NewRegistry()

	// spec.md §4.K required entries.
	r.Register(classID("java/lang/System"), "registerNatives", "()V", systemRegisterNatives)
	r.Register(classID("java/lang/Class"), "registerNatives", "()V", noop)

	// SPEC_FULL.md §4 bootstrap seeds.
	r.Register(classID("java/lang/Object"), "<init>", "()V", noop)
	r.Register(classID("jdk/internal/misc/Unsafe"), "registerNatives", "()V", noop)
	r.Register(classID("jdk/internal/misc/ScopedMemoryAccess"), "registerNatives", "()V", noop)

	return r
}

// systemRegisterNatives mirrors the real JDK bootstrap sequence: registering
// System's natives is immediately followed by System.initPhase1(), the
// point at which java.lang.System's static state (System.out and friends)
// is wired up. The callback loads and initializes java/lang/System and
// interprets its initPhase1 bytecode like any other static method, so an
// opcode or native that initPhase1 needs and this core lacks fails the
// call with that error.
func systemRegisterNatives(ctx vm.NativeContext, args []vm.Word) (*vm.Word, error) {
	_, err := ctx.InvokeStatic(classID("java/lang/System"), "initPhase1", "()V", nil)
	if err != nil {
		return nil, err
	}
	return nil, nil
}
