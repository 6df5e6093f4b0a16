//go:build amd64

package trampoline

const (
	sizeofRelativeJump  = 5          // E9 rel32, or short form widened to this
	sizeofAbsoluteJump  = 6          // FF 25 <disp32>, pointer cell stored separately
	pointerCellSize     = 8          // width of the literal pointer a sizeofAbsoluteJump jump dereferences
	rangeOfRelativeJump = 0x7fffffff // reach of a rel32 displacement

	maxInstructionLength    = 15
	maxCodeSize             = maxInstructionLength + sizeofRelativeJump - 1 // 19
	maxCodeSizeWithBackjump = maxCodeSize + sizeofAbsoluteJump              // 25

	// maxCodeSizeBonus reserves extra code-buffer room for instruction
	// classes whose rewrite is longer than the original (short JMP/Jcc
	// widened to rel32, JCXZ/LOOP widened to a 3-instruction sequence). The
	// reference engine reserves 8 bytes for this and never implements the
	// rewrites; 16 is sized against this module's actual worst case (a
	// widened LOOP with both a 16-bit address-size DEC and a 0x67-prefixed
	// short-circuit: 13 bytes against an original 2-3 byte instruction).
	maxCodeSizeBonus = 16

	decodeMode = 64
)
