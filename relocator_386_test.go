//go:build 386

package trampoline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteCall_RecomputesRel32Displacement(t *testing.T) {
	srcBytes := []byte{0xe8, 0x0a, 0x00, 0x00, 0x00} // CALL +10
	inst, err := decodeOne(srcBytes)
	assert.NoError(t, err)

	const srcAddr = 0x401000
	const dstAddr = 0x500000
	wantTarget := uint64(srcAddr) + uint64(inst.Len) + 10

	dst := make([]byte, 8)
	n, err := rewriteCall(inst, srcBytes, dst, srcAddr, dstAddr)
	assert.NoError(t, err)
	assert.Equal(t, sizeofRelativeJump, n)
	assert.Equal(t, byte(0xe8), dst[0])

	gotInst, err := decodeOne(dst[:n])
	assert.NoError(t, err)
	gotTarget, err := absoluteTarget(gotInst, uint64(dstAddr))
	assert.NoError(t, err)
	assert.Equal(t, wantTarget, gotTarget)
}
