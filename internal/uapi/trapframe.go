package uapi

import "encoding/binary"

// TrapFrame is the fixed-offset per-process save area the trampoline reads
// and writes across every user<->kernel round trip. The final word is a
// stable process id rather than a raw pointer back to the process record,
// resolving the trap frame<->process cycle with an arena-with-stable-index
// instead of a pointer.
type TrapFrame struct {
	KernelSATP   uint64 // 0:  kernel page-table root (satp format)
	KernelSP     uint64 // 8:  kernel stack pointer
	KernelTrap   uint64 // 16: kernel trap-handler entry address
	PC           uint64 // 24: saved/resumed user program counter (epc)
	KernelHartID uint64 // 32: hart id the process last ran on

	RA uint64 // 40
	SP uint64 // 48
	GP uint64 // 56
	TP uint64 // 64

	T0 uint64 // 72
	T1 uint64 // 80
	T2 uint64 // 88

	S0 uint64 // 96
	S1 uint64 // 104

	A0 uint64 // 112
	A1 uint64 // 120
	A2 uint64 // 128
	A3 uint64 // 136
	A4 uint64 // 144
	A5 uint64 // 152
	A6 uint64 // 160
	A7 uint64 // 168

	S2  uint64 // 176
	S3  uint64 // 184
	S4  uint64 // 192
	S5  uint64 // 200
	S6  uint64 // 208
	S7  uint64 // 216
	S8  uint64 // 224
	S9  uint64 // 232
	S10 uint64 // 240
	S11 uint64 // 248

	T3 uint64 // 256
	T4 uint64 // 264
	T5 uint64 // 272
	T6 uint64 // 280

	Pid uint64 // 288: stable back-pointer to the owning process record
}

// TrapFrameSize is the wire size of a TrapFrame: 37 registers * 8 bytes.
const TrapFrameSize = 37 * 8

// ArgRegs returns the seven syscall argument registers in order, A1..A7,
// with A0 excluded since it carries the syscall number on entry and the
// return value on exit.
func (tf *TrapFrame) ArgRegs() [7]uint64 {
	return [7]uint64{tf.A1, tf.A2, tf.A3, tf.A4, tf.A5, tf.A6, tf.A7}
}

// Marshal encodes the trap frame as TrapFrameSize little-endian bytes, the
// layout internal/mem.Phys stores at a process's trap-frame physical
// address.
func (tf *TrapFrame) Marshal() []byte {
	buf := make([]byte, TrapFrameSize)
	fields := []uint64{
		tf.KernelSATP, tf.KernelSP, tf.KernelTrap, tf.PC, tf.KernelHartID,
		tf.RA, tf.SP, tf.GP, tf.TP,
		tf.T0, tf.T1, tf.T2,
		tf.S0, tf.S1,
		tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5, tf.A6, tf.A7,
		tf.S2, tf.S3, tf.S4, tf.S5, tf.S6, tf.S7, tf.S8, tf.S9, tf.S10, tf.S11,
		tf.T3, tf.T4, tf.T5, tf.T6,
		tf.Pid,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	return buf
}

// Unmarshal decodes a TrapFrame from TrapFrameSize bytes produced by
// Marshal.
func (tf *TrapFrame) Unmarshal(data []byte) {
	get := func(i int) uint64 { return binary.LittleEndian.Uint64(data[i*8 : i*8+8]) }
	tf.KernelSATP = get(0)
	tf.KernelSP = get(1)
	tf.KernelTrap = get(2)
	tf.PC = get(3)
	tf.KernelHartID = get(4)
	tf.RA = get(5)
	tf.SP = get(6)
	tf.GP = get(7)
	tf.TP = get(8)
	tf.T0 = get(9)
	tf.T1 = get(10)
	tf.T2 = get(11)
	tf.S0 = get(12)
	tf.S1 = get(13)
	tf.A0 = get(14)
	tf.A1 = get(15)
	tf.A2 = get(16)
	tf.A3 = get(17)
	tf.A4 = get(18)
	tf.A5 = get(19)
	tf.A6 = get(20)
	tf.A7 = get(21)
	tf.S2 = get(22)
	tf.S3 = get(23)
	tf.S4 = get(24)
	tf.S5 = get(25)
	tf.S6 = get(26)
	tf.S7 = get(27)
	tf.S8 = get(28)
	tf.S9 = get(29)
	tf.S10 = get(30)
	tf.S11 = get(31)
	tf.T3 = get(32)
	tf.T4 = get(33)
	tf.T5 = get(34)
	tf.T6 = get(35)
	tf.Pid = get(36)
}
