package trampoline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrologueRange_NoRelativeInstructions(t *testing.T) {
	buf := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	r, err := prologueRange(buf, 0x1000, 5)
	assert.NoError(t, err)
	assert.False(t, r.anyRelative)
}

func TestPrologueRange_AccumulatesRelativeTargets(t *testing.T) {
	if decodeMode == 32 {
		t.Skip("prologueRange is a no-op on x86-32")
	}

	// NOP, then JMP +10 (lands 12 bytes after the JMP's own start).
	buf := []byte{0x90, 0xeb, 0x0a}
	r, err := prologueRange(buf, 0x1000, 3)
	assert.NoError(t, err)
	assert.True(t, r.anyRelative)

	wantTarget := uint64(0x1000) + 1 + 2 + 10
	assert.Equal(t, wantTarget, r.lo)
	assert.Equal(t, wantTarget, r.hi)
}

func TestCombinedRange_NoRelative_DegeneratesToTarget(t *testing.T) {
	buf := []byte{0x90, 0x90, 0x90}
	lo, hi, err := combinedRange(buf, 0x2000, 3)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x2000), lo)
	assert.Equal(t, uint64(0x2000), hi)
}

func TestCombinedRange_WidensForRelativeTarget(t *testing.T) {
	if decodeMode == 32 {
		t.Skip("range widening from relative operands doesn't apply on x86-32")
	}

	buf := []byte{0xeb, 0x0a} // JMP +10
	target := uint64(0x2000)
	wantJumpTarget := target + 2 + 10

	lo, hi, err := combinedRange(buf, target, 2)
	assert.NoError(t, err)
	assert.Equal(t, target, lo)
	assert.Equal(t, wantJumpTarget, hi)
}

func TestInRange(t *testing.T) {
	assert.True(t, inRange(0x1000, 0x1000, 0x1000))
	assert.False(t, inRange(0x1000+2*rangeOfRelativeJump, 0x1000, 0x1000))
}
