package uapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPTELeafRoundTrip(t *testing.T) {
	paddr := uintptr(0x87654000)
	pte := MakeLeaf(paddr, PTERead|PTEWrite|PTEUser)

	require.True(t, pte.IsValid())
	require.True(t, pte.IsLeaf())
	require.False(t, pte.IsBranch())
	require.Equal(t, paddr, pte.PPN())
}

func TestPTEBranch(t *testing.T) {
	tableAddr := uintptr(0x80001000)
	pte := MakeBranch(tableAddr)

	require.True(t, pte.IsValid())
	require.True(t, pte.IsBranch())
	require.False(t, pte.IsLeaf())
	require.Equal(t, tableAddr, pte.TableAddr())
}

func TestTrapFrameRoundTrip(t *testing.T) {
	tf := &TrapFrame{
		KernelSATP: 0x1234,
		PC:         0x1000,
		A0:         7,
		A7:         57,
		Pid:        3,
	}

	buf := tf.Marshal()
	require.Len(t, buf, TrapFrameSize)

	var got TrapFrame
	got.Unmarshal(buf)
	require.Equal(t, *tf, got)
}

func TestDescRoundTrip(t *testing.T) {
	d := Desc{Addr: 0x80010000, Len: 512, Flags: DescFlagNext | DescFlagWrite, Next: 3}
	buf := make([]byte, DescSize)
	MarshalDesc(buf, d)
	require.Equal(t, d, UnmarshalDesc(buf))
}
