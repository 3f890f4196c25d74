package boot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
)

func TestHartStackSlotOffsetsByHartID(t *testing.T) {
	const stackTop = 0x1_000_000
	base0, size0 := HartStackSlot(stackTop, 0)
	base1, _ := HartStackSlot(stackTop, 1)

	require.EqualValues(t, constants.DefaultHartStackSize, size0)
	require.Equal(t, uintptr(stackTop-constants.DefaultHartStackSize), base0)
	require.Equal(t, base0-constants.DefaultHartStackSize, base1)
}

func TestInitGrantsFullPMPAndArmsTimer(t *testing.T) {
	state := NewMachineState(0, 0x1_000_000)
	state.Init(0x8000_0000, 42)

	require.True(t, state.InterruptsDelegated)
	require.True(t, state.TimerEnabled)
	require.EqualValues(t, 42, state.TimerInterval)
	require.EqualValues(t, 0x8000_0000, state.Entry)
	require.Equal(t, ^uintptr(0), state.PMP.Size)
}

func TestIdentityMapDevicesMapsMMIOWindows(t *testing.T) {
	phys := mem.NewPhys(64 * constants.PageSize)
	root := paging.NewRootTable(phys)

	IdentityMapDevices(root, phys)

	for _, base := range []uintptr{constants.CLINTBase, constants.PLICBase, constants.UART0Base, constants.VirtioBase, constants.FWCfgBase} {
		paddr, ok := root.VirtToPhys(phys, base)
		require.Truef(t, ok, "expected %#x to be mapped", base)
		require.Equal(t, base, paddr) // identity mapped
	}
}

func TestDebugExitCodeEncodesPassAndFail(t *testing.T) {
	require.EqualValues(t, uint32(7)<<16|constants.QEMUDebugExitPass, DebugExitCode(7, true))
	require.EqualValues(t, uint32(7)<<16|constants.QEMUDebugExitFail, DebugExitCode(7, false))
}

func TestBootReturnsHart0StateAndMapsDevices(t *testing.T) {
	phys := mem.NewPhys(64 * constants.PageSize)
	root := paging.NewRootTable(phys)
	log := logging.NewLogger(logging.DefaultConfig())

	state := Boot(root, phys, constants.UserStackTop, 0x8000_0000, log)

	require.Equal(t, 0, state.HartID)
	require.EqualValues(t, 0x8000_0000, state.Entry)

	_, ok := root.VirtToPhys(phys, constants.UART0Base)
	require.True(t, ok)
}
