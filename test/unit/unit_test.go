package unit

import (
	"testing"

	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// These tests pin the wire-level contract: the virtio-mmio register map,
// the trap-frame byte layout, the canonical trampoline addresses, and the
// syscall numbers. Anything here changing silently would break against a
// real virt machine, so the values are asserted literally.

func TestVirtioRegisterOffsets(t *testing.T) {
	offsets := map[string][2]uint32{
		"MagicValue":      {uapi.RegMagicValue, 0x000},
		"Version":         {uapi.RegVersion, 0x004},
		"DeviceID":        {uapi.RegDeviceID, 0x008},
		"VendorID":        {uapi.RegVendorID, 0x00c},
		"DeviceFeatures":  {uapi.RegDeviceFeatures, 0x010},
		"DriverFeatures":  {uapi.RegDriverFeatures, 0x020},
		"QueueSel":        {uapi.RegQueueSel, 0x030},
		"QueueNumMax":     {uapi.RegQueueNumMax, 0x034},
		"QueueNum":        {uapi.RegQueueNum, 0x038},
		"QueueReady":      {uapi.RegQueueReady, 0x044},
		"QueueNotify":     {uapi.RegQueueNotify, 0x050},
		"InterruptStatus": {uapi.RegInterruptStatus, 0x060},
		"InterruptACK":    {uapi.RegInterruptACK, 0x064},
		"Status":          {uapi.RegStatus, 0x070},
		"QueueDescLow":    {uapi.RegQueueDescLow, 0x080},
		"QueueDriverLow":  {uapi.RegQueueDriverLow, 0x090},
		"QueueDeviceLow":  {uapi.RegQueueDeviceLow, 0x0a0},
		"Config":          {uapi.RegConfig, 0x100},
	}
	for name, pair := range offsets {
		if pair[0] != pair[1] {
			t.Errorf("Reg%s = %#x, want %#x", name, pair[0], pair[1])
		}
	}

	if uapi.MagicValueExpected != 0x74726976 {
		t.Errorf("MagicValueExpected = %#x, want 0x74726976", uapi.MagicValueExpected)
	}
	if uapi.VersionExpected != 2 {
		t.Errorf("VersionExpected = %d, want 2", uapi.VersionExpected)
	}
}

func TestVirtioDeviceIDs(t *testing.T) {
	if uapi.DeviceIDBlock != 2 {
		t.Errorf("DeviceIDBlock = %d, want 2", uapi.DeviceIDBlock)
	}
	if uapi.DeviceIDGPU != 16 {
		t.Errorf("DeviceIDGPU = %d, want 16", uapi.DeviceIDGPU)
	}
	if uapi.DeviceIDInput != 18 {
		t.Errorf("DeviceIDInput = %d, want 18", uapi.DeviceIDInput)
	}
}

func TestTrampolineLayout(t *testing.T) {
	wantTrampoline := uintptr(1)<<38 - 0x1000
	if constants.TrampolineVA != wantTrampoline {
		t.Errorf("TrampolineVA = %#x, want %#x", constants.TrampolineVA, wantTrampoline)
	}
	if constants.TrapFrameVA != wantTrampoline-0x1000 {
		t.Errorf("TrapFrameVA = %#x, want one page below the trampoline", constants.TrapFrameVA)
	}
}

func TestTrapFrameSizeAndRoundTrip(t *testing.T) {
	if uapi.TrapFrameSize != 37*8 {
		t.Errorf("TrapFrameSize = %d, want %d", uapi.TrapFrameSize, 37*8)
	}

	tf := uapi.TrapFrame{
		KernelSATP: 0x8000000000001234,
		PC:         0x1000,
		A0:         57,
		A7:         0xdeadbeef,
		Pid:        9,
	}
	var back uapi.TrapFrame
	back.Unmarshal(tf.Marshal())
	if back != tf {
		t.Errorf("TrapFrame did not round-trip: got %+v", back)
	}
}

func TestSyscallNumbers(t *testing.T) {
	numbers := map[string][2]int{
		"read":          {constants.SysRead, 0},
		"write":         {constants.SysWrite, 1},
		"seek":          {constants.SysSeek, 2},
		"open":          {constants.SysOpen, 3},
		"sleep":         {constants.SysSleep, 35},
		"wait_exit":     {constants.SysWaitExit, 56},
		"fork":          {constants.SysFork, 57},
		"kill":          {constants.SysKill, 62},
		"execve":        {constants.SysExecve, 63},
		"create_window": {constants.SysCreateWindow, 1000},
		"map_window":    {constants.SysMapWindow, 1001},
		"sync_window":   {constants.SysSyncWindow, 1002},
	}
	for name, pair := range numbers {
		if pair[0] != pair[1] {
			t.Errorf("syscall %s = %d, want %d", name, pair[0], pair[1])
		}
	}
}

func TestDebugExitEncoding(t *testing.T) {
	if constants.QEMUDebugExitPass != 0x5555 {
		t.Errorf("pass magic = %#x, want 0x5555", constants.QEMUDebugExitPass)
	}
	if constants.QEMUDebugExitFail != 0x3333 {
		t.Errorf("fail magic = %#x, want 0x3333", constants.QEMUDebugExitFail)
	}
}

func TestPublicConstantsMirrorInternal(t *testing.T) {
	if citron.RingSize != constants.RingSize {
		t.Errorf("citron.RingSize = %d, want %d", citron.RingSize, constants.RingSize)
	}
	if citron.PageSize != constants.PageSize {
		t.Errorf("citron.PageSize = %d, want %d", citron.PageSize, constants.PageSize)
	}
	if citron.TrampolineVA != constants.TrampolineVA {
		t.Errorf("citron.TrampolineVA = %#x, want %#x", citron.TrampolineVA, constants.TrampolineVA)
	}
}
