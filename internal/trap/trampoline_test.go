package trap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

func TestTrampolineMappedAtCanonicalVA(t *testing.T) {
	phys := mem.NewPhys(64 * constants.PageSize)
	tr, err := NewTrampoline(phys)
	require.NoError(t, err)

	table := paging.NewRootTable(phys)
	tr.Install(phys, table)

	got, ok := table.VirtToPhys(phys, TrampolineVA)
	require.True(t, ok)
	require.Equal(t, tr.page, got)
}

func TestFrameRoundTripThroughMappedVA(t *testing.T) {
	phys := mem.NewPhys(64 * constants.PageSize)
	table := paging.NewRootTable(phys)

	frame, err := NewFrame(phys)
	require.NoError(t, err)
	frame.MapInto(table)

	want := &uapi.TrapFrame{PC: 0x1000, A0: 5, A7: 57, Pid: 2}
	frame.Store(want)

	got := frame.Load()
	require.Equal(t, *want, *got)

	mappedAddr, ok := table.VirtToPhys(phys, TrapFrameVA)
	require.True(t, ok)
	require.Equal(t, frame.PhysAddr(), mappedAddr)
}

func TestReturnAdvancesPCAndSetsA0(t *testing.T) {
	tf := &uapi.TrapFrame{PC: 0x2000, A7: 0}
	Return(tf, 42, 0x8000, 0x9000, 0xa000, 0)

	require.Equal(t, uint64(0x2004), tf.PC)
	require.Equal(t, uint64(42), tf.A0)
	require.Equal(t, uint64(0x8000), tf.KernelSATP)
}
