package trampoline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

//go:noinline
func sampleTargetFunc(a, b int) int {
	return a + b
}

func TestFunctionBytes_DecodesAsRealCode(t *testing.T) {
	entry, code, err := functionBytes(sampleTargetFunc)
	assert.NoError(t, err)
	assert.NotZero(t, entry)
	assert.True(t, len(code) > 0)

	// A real compiled function's first instruction must decode cleanly;
	// this is a sanity check on functionBytes/findfunc wiring, not a claim
	// about any particular instruction sequence (which varies by Go
	// version and inliner/stack-check decisions).
	_, err = decodeOne(code)
	assert.NoError(t, err)
}

func TestFunctionBytes_RejectsNonFunction(t *testing.T) {
	_, _, err := functionBytes(42)
	assert.Error(t, err)
}
