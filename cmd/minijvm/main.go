// Command minijvm loads a class from a classpath (plus the JDK's own
// jmods/java.base.jmod under JAVA_HOME) and interprets its main method.
// Grounded on the teacher's cmd/gojvm/main.go — same classpath/jmod
// discovery and VM.Execute entry point — rewritten against a cobra command
// per SPEC_FULL.md §2 instead of raw os.Args handling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"minijvm/internal/classfile"
	"minijvm/internal/classpath"
	"minijvm/internal/diag"
	"minijvm/internal/native"
	"minijvm/internal/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var classpathDirs []string
	var mainClass string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "minijvm",
		Short: "Interpret a JVM class's main method",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(classpathDirs, mainClass, verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&classpathDirs, "classpath", "c", nil, "directory to search for classes before the bootstrap jmod (repeatable)")
	flags.StringVarP(&mainClass, "main-class", "m", "", "fully-qualified name of the class whose main method to run")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level trace logging")
	cmd.MarkFlagRequired("main-class")

	return cmd
}

func run(classpathDirs []string, mainClass string, verbose bool) error {
	logger, err := diag.New(verbose)
	if err != nil {
		return fmt.Errorf("starting logger: %w", err)
	}
	defer logger.Sync()

	cp, err := classpath.Open(classpathDirs)
	if err != nil {
		return fmt.Errorf("opening classpath: %w", err)
	}

	loader := classpath.NewLoader(cp, logger)
	executor := vm.NewExecutor(loader, native.Default(), logger)

	id := classfile.ParseClassIdentifier(mainClass)
	if err := executor.Execute(id); err != nil {
		fmt.Fprintf(os.Stderr, "minijvm: %v\n", err)
		return err
	}
	logger.Success(mainClass)
	return nil
}
