package trampoline

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthParking is never read; its address just gives allocateRegion a
// placement hint somewhere in this process's mapped address space, the
// same role a real hook target's address plays for Create/CreateEx.
var synthParking byte

// newSyntheticSourceChunk reserves a small real RWX region (independent of
// the package-wide engine directory) and writes code into chunk index 1's
// code buffer, giving tests a real, readable, executable memory location
// to point Create/CreateEx at without depending on a real Go function's
// compiler-generated prologue bytes.
func newSyntheticSourceChunk(t *testing.T, code []byte) (region *trampolineRegion, addr uintptr) {
	t.Helper()

	hint := uint64(uintptr(unsafe.Pointer(&synthParking)))
	region, err := allocateRegion(hint, hint, 2)
	require.NoError(t, err)
	t.Cleanup(func() { region.release() })

	chunk := region.chunkAt(1)
	require.True(t, len(code) <= len(chunk.codeBuffer))
	copy(chunk.codeBuffer[:], code)

	return region, chunk.codeBufferAddr()
}

func TestCreate_NonRelativePrologue(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90, 0x90, 0x90} // 5x NOP
	_, target := newSyntheticSourceChunk(t, code)

	callback := uintptr(unsafe.Pointer(&synthParking))
	tr, err := Create(target, callback, len(code))
	require.NoError(t, err)
	require.NotNil(t, tr)
	t.Cleanup(func() { Free(tr) })

	assert.Equal(t, code, tr.OriginalCode())
	assert.Equal(t, len(code), tr.TranslationCount())
	for i := 0; i < len(code); i++ {
		src, dst := tr.Translation(i)
		assert.Equal(t, i, src)
		assert.Equal(t, i, dst)
	}

	assert.Equal(t, target+uintptr(len(code)), tr.BackjumpAddress())

	relocated := unsafe.Slice((*byte)(unsafe.Pointer(tr.Address())), len(code))
	assert.Equal(t, code, relocated)
}

func TestCreate_RejectsZeroArguments(t *testing.T) {
	_, err := Create(0, 1, 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(1, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateEx_RewriteDisabledSurfacesError(t *testing.T) {
	code := []byte{0xe2, 0x04, 0x90, 0x90, 0x90} // LOOP +4, then padding
	_, target := newSyntheticSourceChunk(t, code)

	callback := uintptr(unsafe.Pointer(&synthParking))
	_, err := CreateEx(target, callback, 2, RewriteCall|RewriteJCXZ)
	assert.ErrorIs(t, err, ErrRewriteDisabled)
}

func TestFree_MarksChunkUnused(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90}
	_, target := newSyntheticSourceChunk(t, code)

	callback := uintptr(unsafe.Pointer(&synthParking))
	tr, err := Create(target, callback, len(code))
	require.NoError(t, err)

	// A second live trampoline in the same region keeps Free(tr) from
	// emptying and releasing the region, so tr's chunk stays readable.
	keep, err := Create(target, callback, len(code))
	require.NoError(t, err)
	require.Same(t, tr.region, keep.region)
	t.Cleanup(func() { Free(keep) })

	chunk := tr.chunk
	assert.True(t, chunk.IsUsed())

	require.NoError(t, Free(tr))
	assert.False(t, chunk.IsUsed())
}
