// Package trampoline builds trampolines for inline function hooks on x86 and
// x86-64.
//
// Given a target function and a callback, Create relocates enough of the
// target's prologue into a fresh executable chunk to make room for a branch
// at the original entry point, and appends a jump back to the first
// un-relocated byte. The caller is responsible for patching the target's
// entry point to redirect to the callback; this package only builds the
// trampoline that lets the callback call onward to the original.
//
// Create and Free are safe to call concurrently from multiple goroutines;
// both take the package's engine lock for their full duration, so only one
// region/chunk mutation happens at a time.
//
// Limitations:
//   - Only supports 386 and amd64.
//   - Relocating CALL, JCXZ-family or LOOP-family instructions requires the
//     matching RewriteFlags bit; without it Create fails rather than guess.
//   - LOOPE and LOOPNE are never relocated; Create fails with
//     ErrRewriteDisabled for them whatever the flags.
package trampoline
