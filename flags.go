package trampoline

// RewriteFlags gates which relative-instruction classes the relocator is
// permitted to rewrite. An instruction whose class isn't enabled fails
// Create with ErrRewriteDisabled instead of being relocated by guesswork.
type RewriteFlags uint32

const (
	// RewriteCall permits relocating CALL rel32 and CALL through a
	// RIP-relative memory operand.
	RewriteCall RewriteFlags = 1 << iota

	// RewriteJCXZ permits relocating JCXZ/JECXZ/JRCXZ.
	RewriteJCXZ

	// RewriteLoop permits relocating LOOP. LOOPE and LOOPNE are not
	// relocated even with this bit set; they fail with ErrRewriteDisabled.
	RewriteLoop
)

// DefaultRewriteFlags enables every rewrite class; Create uses this set.
const DefaultRewriteFlags = RewriteCall | RewriteJCXZ | RewriteLoop

func (f RewriteFlags) has(bit RewriteFlags) bool {
	return f&bit != 0
}
