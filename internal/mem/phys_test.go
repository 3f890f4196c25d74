package mem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
)

func TestAllocFrameZeroed(t *testing.T) {
	p := NewPhys(4 * constants.PageSize)

	f1, err := p.AllocFrame()
	require.NoError(t, err)

	buf := p.Slice(f1, constants.PageSize)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}

	buf[0] = 0xff
	require.Equal(t, byte(0xff), p.Slice(f1, 1)[0])
}

func TestAllocFrameDistinct(t *testing.T) {
	p := NewPhys(4 * constants.PageSize)

	f1, err := p.AllocFrame()
	require.NoError(t, err)
	f2, err := p.AllocFrame()
	require.NoError(t, err)

	require.NotEqual(t, f1, f2)
	require.Equal(t, uintptr(constants.PageSize), f2-f1)
}

func TestAllocFrameExhaustion(t *testing.T) {
	p := NewPhys(1 * constants.PageSize)

	_, err := p.AllocFrame()
	require.NoError(t, err)

	_, err = p.AllocFrame()
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestReadWriteRoundTrip(t *testing.T) {
	p := NewPhys(2 * constants.PageSize)
	f, err := p.AllocFrame()
	require.NoError(t, err)

	want := []byte("hello, kernel")
	p.Write(f, want)

	got := make([]byte, len(want))
	p.Read(f, got)
	require.Equal(t, want, got)
}
