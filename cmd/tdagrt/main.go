// Command tdagrt is the C-compatible runtime shim: built with
// -buildmode=c-shared, it exports the ABI an instrumented target process
// calls into directly, wrapping a single process-wide *tdag.Instance that
// is constructed lazily on first use and, per the design, deliberately
// never closed from inside the shim itself (the host process is expected
// to arrange a final flush, e.g. via an atexit hook in its own C code).
package main

/*
#include <stdint.h>
*/
import "C"

import (
	"fmt"
	"os"
	"sync"

	"github.com/trailofbits/taintdag/pkg/options"
	"github.com/trailofbits/taintdag/pkg/tdag"
)

var (
	instanceOnce sync.Once
	instance     *tdag.Instance
)

func get() *tdag.Instance {
	instanceOnce.Do(func() {
		inst, err := tdag.Open(options.WithDefaultOptions(), options.WithEnv())
		if err != nil {
			// Construction failure before any label has been allocated is
			// itself a fatal, filesystem/mapping-class error.
			os.Exit(1)
		}
		instance = inst
	})
	return instance
}

//export log_conditional_branch
func log_conditional_branch(label C.uint32_t) {
	if err := get().LogConditionalBranch(uint32(label)); err != nil {
		fail(err)
	}
}

//export log_basic_block
func log_basic_block(bbID C.uint32_t) {
	if err := get().LogBasicBlock(uint32(bbID)); err != nil {
		fail(err)
	}
}

//export log_function_entry
func log_function_entry(name *C.char) C.uint32_t {
	idx, err := get().FunctionEntry(C.GoString(name))
	if err != nil {
		fail(err)
		return 0
	}
	return C.uint32_t(idx)
}

//export log_function_exit
func log_function_exit(idx C.uint32_t) {
	if err := get().FunctionExit(uint32(idx)); err != nil {
		fail(err)
	}
}

// fail reports an error an instrumentation call can't recover from and
// terminates the process. A capacity-exhaustion error has already forced an
// exit inside the engine by the time it reaches here; this also catches the
// non-exhaustion errors these calls can return (e.g. a bad label reference).
func fail(err error) {
	fmt.Fprintln(os.Stderr, "tdagrt:", err)
	os.Exit(1)
}

//export taint_argv
func taint_argv() {
	inst := get()
	for i, arg := range os.Args {
		buf := []byte(arg)
		inst.CreateTaintSource(argvSourceName(i), buf)
	}
}

//export taint_start
func taint_start() {
	get()
}

func argvSourceName(i int) string {
	return fmt.Sprintf("argv[%d]", i)
}

func main() {}
