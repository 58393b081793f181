package vm

import "minijvm/internal/classfile"

// NativeContext is what a native method handler sees of the running
// interpreter: enough to invoke another static method (the way
// System.registerNatives calls back into System.initPhase1 in a real JVM
// bootstrap); InvokeStatic is its only method. It is an interface, not *Executor directly, so
// internal/native never imports internal/vm's concrete Executor type and
// internal/vm never imports internal/native — the dependency points one way
// only, through this interface and NativeHandler/NativeLookup below.
type NativeContext interface {
	// InvokeStatic resolves and runs a static method by identifier, name,
	// and descriptor, the same path invokestatic uses, returning its
	// result word if the callee (or its own native handler) produced one.
	InvokeStatic(class classfile.ClassIdentifier, name, descriptor string, args []Word) (*Word, error)
}

// NativeHandler is the shape every registered native method implements:
// given the calling context and its arguments (in declaration order, not
// reversed), it returns an optional result word, or an error.
type NativeHandler func(ctx NativeContext, args []Word) (*Word, error)

// NativeLookup is implemented by internal/native's Registry. Executor holds
// one to resolve a (class, name, descriptor) triple to a handler when it
// encounters a method with ACC_NATIVE set.
type NativeLookup interface {
	Lookup(class classfile.ClassIdentifier, name, descriptor string) (NativeHandler, bool)
}

// noNatives is the zero-value NativeLookup used when an Executor is built
// without a registry; every native method then fails ErrUnimplementedNative.
type noNatives struct{}

func (noNatives) Lookup(classfile.ClassIdentifier, string, string) (NativeHandler, bool) {
	return nil, false
}
