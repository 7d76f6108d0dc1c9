package process_test

import (
	"testing"

	"github.com/exitest/exitest/process"
	"github.com/stretchr/testify/assert"
)

func TestEscapeArg(t *testing.T) {
	for _, tc := range []struct {
		arg, want string
	}{
		{arg: `simple`, want: `simple`},
		{arg: ``, want: `""`},
		{arg: `has space`, want: `"has space"`},
		{arg: "has\ttab", want: "\"has\ttab\""},
		{arg: `has"quote`, want: `has\"quote`},
		{arg: `back\slash`, want: `back\slash`},
		{arg: `trailing\`, want: `trailing\`},
		{arg: `C:\Program Files\tool.exe`, want: `"C:\Program Files\tool.exe"`},
		// Backslashes before a quote, or before the closing quote of a
		// quoted argument, are doubled so CommandLineToArgvW undoes them.
		{arg: `slash then quote \"`, want: `"slash then quote \\\""`},
		{arg: `ends in slash \`, want: `"ends in slash \\"`},
		{arg: `\"`, want: `\\\"`},
		{arg: `a\\b c`, want: `"a\\b c"`},
	} {
		assert.Equal(t, tc.want, process.EscapeArg(tc.arg), "EscapeArg(%q)", tc.arg)
	}
}

func TestJoinCommandLine(t *testing.T) {
	assert.Equal(
		t,
		`exitest.exe probe "a b" c`,
		process.JoinCommandLine([]string{"exitest.exe", "probe", "a b", "c"}),
	)
}
