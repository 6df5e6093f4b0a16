//go:build 386

package trampoline

const (
	sizeofRelativeJump = 5 // E9 rel32, or short form widened to this
	sizeofAbsoluteJump = 6 // FF 25 <abs32>, pointer cell stored separately
	pointerCellSize    = 4 // width of the literal pointer a sizeofAbsoluteJump jump dereferences

	// On 32-bit x86 a near relative jump/call reaches the entire 32-bit
	// address space, so region placement never needs to reason about
	// range at all; this value exists only so shared code compiles, and
	// range analysis is skipped (prologueRange reports anyRelative=false
	// unconditionally) per spec's x86-32 carve-out.
	rangeOfRelativeJump = 0xffffffff

	maxInstructionLength    = 15
	maxCodeSize             = maxInstructionLength + sizeofRelativeJump - 1 // 19
	maxCodeSizeWithBackjump = maxCodeSize + sizeofAbsoluteJump              // 25

	// See const_amd64.go's maxCodeSizeBonus: same widening techniques,
	// same worst case, so the same bonus budget applies here.
	maxCodeSizeBonus = 16

	decodeMode = 32
)
