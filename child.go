package exitest

import (
	"fmt"
	"os"
	"testing"

	"github.com/exitest/exitest/capture"
	"github.com/exitest/exitest/termination"
)

// protocolAbortCode is how the child dies on a protocol violation: a blob
// that does not decode, a type mismatch, or an identity with no registered
// body. These mean the parent and child disagree about which code is
// running, so no test outcome is possible. 70 is EX_SOFTWARE.
const protocolAbortCode = 70

// inChild is set before a body runs; nested exit tests are not supported.
var inChild bool

// Main is the engine's process entry hook. Wrap the test binary's TestMain
// with it:
//
//	func TestMain(m *testing.M) {
//	    os.Exit(exitest.Main(m))
//	}
//
// For an ordinary run it simply runs the tests. When the process was
// re-executed as an exit-test child it runs the registered body instead and
// never returns.
func Main(m *testing.M) int {
	idStr, ok := os.LookupEnv(EnvIdentity)
	if !ok {
		return m.Run()
	}
	runChild(idStr)
	panic("unreachable")
}

func runChild(idStr string) {
	id, err := ParseIdentity(idStr)
	if err != nil {
		abortChild("%v", err)
	}

	reg, ok := Lookup(id)
	if !ok {
		abortChild("no exit test body is registered at %s", id)
	}

	vals, err := capture.Decode(os.Getenv(EnvValues), reg.types)
	if err != nil {
		abortChild("%v", err)
	}

	var expect termination.Expectation
	if err := expect.UnmarshalText([]byte(os.Getenv(EnvExpectation))); err != nil {
		abortChild("%v", err)
	}

	inChild = true
	runBody(reg, vals)

	// The body returned instead of terminating the process. Exit with the
	// opposite of whatever the expectation trivially accepts, so forgetting
	// to terminate surfaces as a mismatch and never as a pass.
	if expect.ExpectsFailure() {
		os.Exit(0)
	}
	os.Exit(1)
}

// runBody executes the body, converting a captured-value accessor panic into
// the protocol abort so every slot disagreement dies with the same status.
func runBody(reg *Registration, vals *capture.Values) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if perr, ok := r.(*capture.ProtocolError); ok {
			abortChild("%v", perr)
		}
		panic(r)
	}()
	reg.body(vals)
}

func abortChild(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "exitest: %s\n", fmt.Sprintf(format, v...))
	os.Exit(protocolAbortCode)
}
