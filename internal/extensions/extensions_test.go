package extensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReturnsHighestPriorityImplementation(t *testing.T) {
	r := New([]string{"gubbins", "base"})

	r.Register("policy", "WMSAccessPolicy", "base", "base-policy")
	r.Register("policy", "WMSAccessPolicy", "gubbins", "gubbins-policy")

	v, ok := r.Resolve("policy", "WMSAccessPolicy")
	require.True(t, ok)
	assert.Equal(t, "gubbins-policy", v)
}

func TestResolveFallsBackWhenHigherPriorityExtensionDoesNotRegister(t *testing.T) {
	r := New([]string{"gubbins", "base"})
	r.Register("policy", "SandboxAccessPolicy", "base", "base-policy")

	v, ok := r.Resolve("policy", "SandboxAccessPolicy")
	require.True(t, ok)
	assert.Equal(t, "base-policy", v)
}

func TestResolveUnknownReturnsFalse(t *testing.T) {
	r := New([]string{"base"})
	_, ok := r.Resolve("policy", "NoSuchPolicy")
	assert.False(t, ok)
}

func TestRegisterFromUnlistedExtensionIsLowestPriority(t *testing.T) {
	r := New([]string{"gubbins", "base"})
	r.Register("policy", "WMSAccessPolicy", "base", "base-policy")
	r.Register("policy", "WMSAccessPolicy", "unlisted-plugin", "rogue-policy")

	v, ok := r.Resolve("policy", "WMSAccessPolicy")
	require.True(t, ok)
	assert.Equal(t, "base-policy", v, "an extension absent from EXTENSIONS must never outrank a configured one")
}

func TestMustResolvePanicsOnMissingImplementation(t *testing.T) {
	r := New([]string{"base"})
	assert.Panics(t, func() {
		r.MustResolve("policy", "NoSuchPolicy")
	})
}
