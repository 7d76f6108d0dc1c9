// Package exitest asserts that a body of code terminates the current
// process with a specific status, by running that body in a child process.
//
// A body cannot cross a process boundary, so it is registered under a
// stable identity - the source location of the Register call - and the
// child, which runs the same binary, relocates it by that identity. Bodies
// must therefore be registered at package init so both sides register
// identically:
//
//	var crashes = exitest.Register(func(v *capture.Values) {
//	    somethingThatShouldCrash()
//	})
//
//	func TestMain(m *testing.M) {
//	    os.Exit(exitest.Main(m))
//	}
//
//	func TestCrashes(t *testing.T) {
//	    exitest.Expect(t, crashes, termination.Failure())
//	}
package exitest

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v2"

	"github.com/exitest/exitest/capture"
)

// Environment variables making up the re-invocation protocol. Their
// presence tells a freshly started copy of the current binary that it is an
// exit-test child; absent, the engine is inert.
const (
	// EnvIdentity names the exit test to run, as "file:line".
	EnvIdentity = "EXITEST_IDENTITY"
	// EnvValues carries the encoded captured-value blob.
	EnvValues = "EXITEST_VALUES"
	// EnvExpectation carries the parent's expectation, so a body that
	// returns without terminating can exit with the opposite status.
	EnvExpectation = "EXITEST_EXPECTED"
)

// Identity is the stable, process-independent key locating a registered
// body: the source coordinate of its Register call. Go surfaces no column
// information at runtime, so file and line suffice; Register enforces that
// they are collision-free.
type Identity struct {
	File string
	Line int
}

func (id Identity) String() string {
	return fmt.Sprintf("%s:%d", id.File, id.Line)
}

// ParseIdentity parses the "file:line" form. The split is at the last
// colon, since Windows paths contain one of their own.
func ParseIdentity(s string) (Identity, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return Identity{}, fmt.Errorf("malformed identity %q", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity %q: %w", s, err)
	}
	return Identity{File: s[:i], Line: line}, nil
}

// Body is an exit-test body. It receives the captured values decoded in the
// child and is expected to terminate the process; if it returns instead,
// the child exits with a status that cannot satisfy the expectation.
type Body func(v *capture.Values)

// Registration is one registered exit-test body plus the types of the
// values it expects to be captured for it.
type Registration struct {
	id    Identity
	types []capture.Type
	body  Body
}

// Identity returns the registration's stable key.
func (r *Registration) Identity() Identity {
	return r.id
}

var registry = xsync.NewMapOf[*Registration]()

// Register records body under the identity of the call site, declaring the
// types of the captured values it will receive. It must run at package init
// (a package-level var or an init func) so the parent and the re-executed
// child build identical registries. Two registrations on the same source
// line panic.
func Register(body Body, types ...capture.Type) *Registration {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("exitest: unable to determine the Register call site")
	}

	r := &Registration{
		id:    Identity{File: file, Line: line},
		types: types,
		body:  body,
	}

	if _, loaded := registry.LoadOrStore(r.id.String(), r); loaded {
		panic(fmt.Sprintf("exitest: an exit test body is already registered at %s", r.id))
	}
	return r
}

// Lookup finds the body registered under id. This is the single entry point
// the child process uses to relocate its body.
func Lookup(id Identity) (*Registration, bool) {
	return registry.Load(id.String())
}
