package env_test

import (
	"runtime"
	"testing"

	"github.com/exitest/exitest/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		in          string
		name, value string
		ok          bool
	}{
		{in: "FOO=bar", name: "FOO", value: "bar", ok: true},
		{in: "FOO=bar=baz", name: "FOO", value: "bar=baz", ok: true},
		{in: "FOO=", name: "FOO", value: "", ok: true},
		{in: "FOO", ok: false},
		{in: "=bar", ok: false},
		{in: "", ok: false},
	} {
		name, value, ok := env.Split(tc.in)
		assert.Equal(t, tc.ok, ok, "Split(%q)", tc.in)
		assert.Equal(t, tc.name, name, "Split(%q)", tc.in)
		assert.Equal(t, tc.value, value, "Split(%q)", tc.in)
	}
}

func TestFromSliceAndToSlice(t *testing.T) {
	e := env.FromSlice([]string{"B=2", "A=1", "not-a-pair"})

	require.Equal(t, 2, e.Length())
	assert.Equal(t, []string{"A=1", "B=2"}, e.ToSlice())
}

func TestSetGetRemove(t *testing.T) {
	e := env.New()
	e.Set("EXITEST_IDENTITY", "main.go:10")

	v, ok := e.Get("EXITEST_IDENTITY")
	require.True(t, ok)
	assert.Equal(t, "main.go:10", v)
	assert.True(t, e.Exists("EXITEST_IDENTITY"))

	assert.Equal(t, "main.go:10", e.Remove("EXITEST_IDENTITY"))
	assert.False(t, e.Exists("EXITEST_IDENTITY"))
}

func TestCaseSensitivity(t *testing.T) {
	e := env.FromSlice([]string{"Path=/bin"})

	if runtime.GOOS == "windows" {
		v, ok := e.Get("PATH")
		require.True(t, ok)
		assert.Equal(t, "/bin", v)
	} else {
		_, ok := e.Get("PATH")
		assert.False(t, ok)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	e := env.FromSlice([]string{"A=1"})
	c := e.Copy()
	c.Set("A", "2")

	v, _ := e.Get("A")
	assert.Equal(t, "1", v)
}
