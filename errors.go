package trampoline

import "errors"

// Sentinel error kinds, per the engine's error taxonomy. Use errors.Is to
// test for them; wrapped context (offset, instruction, syscall) is attached
// with fmt.Errorf("%w", ...) at the point of failure.
var (
	// ErrInvalidArgument marks a nil pointer in or out, or a zero
	// minBytesToReloc.
	ErrInvalidArgument = errors.New("trampoline: invalid argument")

	// ErrInvalidOperation marks a readable region too short to satisfy
	// minBytesToReloc, or an operation attempted before the engine's
	// lazy state has been initialized.
	ErrInvalidOperation = errors.New("trampoline: invalid operation")

	// ErrOutOfRange marks no feasible region placement within
	// rangeOfRelativeJump, or a relative operand that can't be rewritten
	// to reach its target.
	ErrOutOfRange = errors.New("trampoline: out of range")

	// ErrDecodeFailed marks the decoder rejecting the prologue bytes.
	ErrDecodeFailed = errors.New("trampoline: decode failed")

	// ErrBadSyscall marks a host virtual-memory operation failing.
	ErrBadSyscall = errors.New("trampoline: host memory operation failed")

	// ErrRewriteDisabled marks a mnemonic that requires a rewrite whose
	// RewriteFlags bit is not set.
	ErrRewriteDisabled = errors.New("trampoline: rewrite required but disabled by flags")
)
