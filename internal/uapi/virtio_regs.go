package uapi

import "encoding/binary"

// Virtio MMIO register offsets and magic/version values, bit-exact per
// the virtio-mmio version 2 layout.
const (
	RegMagicValue        = 0x000
	RegVersion           = 0x004
	RegDeviceID          = 0x008
	RegVendorID          = 0x00c
	RegDeviceFeatures    = 0x010
	RegDeviceFeaturesSel = 0x014
	RegDriverFeatures    = 0x020
	RegDriverFeaturesSel = 0x024
	RegQueueSel          = 0x030
	RegQueueNumMax       = 0x034
	RegQueueNum          = 0x038
	RegQueueReady        = 0x044
	RegQueueNotify       = 0x050
	RegInterruptStatus   = 0x060
	RegInterruptACK      = 0x064
	RegStatus            = 0x070
	RegQueueDescLow      = 0x080
	RegQueueDriverLow    = 0x090
	RegQueueDeviceLow    = 0x0a0
	RegConfig            = 0x100

	MagicValueExpected = 0x74726976
	VersionExpected    = 2
)

// Status register bits (device handshake).
const (
	StatusAcknowledge = 1 << 0
	StatusDriver      = 1 << 1
	StatusDriverOK    = 1 << 2
	StatusFeaturesOK  = 1 << 3
	StatusFailed      = 1 << 7
)

// Device IDs honoured by this kernel.
const (
	DeviceIDBlock = 2
	DeviceIDGPU   = 16
	DeviceIDInput = 18
)

// Descriptor flags.
const (
	DescFlagNext  = 1 << 0
	DescFlagWrite = 1 << 1
)

// Desc is one virtqueue descriptor-table entry (16 bytes): address, length,
// flags, next.
type Desc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const DescSize = 16

// MarshalDesc encodes a descriptor at buf[0:16].
func MarshalDesc(buf []byte, d Desc) {
	binary.LittleEndian.PutUint64(buf[0:8], d.Addr)
	binary.LittleEndian.PutUint32(buf[8:12], d.Len)
	binary.LittleEndian.PutUint16(buf[12:14], d.Flags)
	binary.LittleEndian.PutUint16(buf[14:16], d.Next)
}

// UnmarshalDesc decodes a descriptor from buf[0:16].
func UnmarshalDesc(buf []byte) Desc {
	return Desc{
		Addr:  binary.LittleEndian.Uint64(buf[0:8]),
		Len:   binary.LittleEndian.Uint32(buf[8:12]),
		Flags: binary.LittleEndian.Uint16(buf[12:14]),
		Next:  binary.LittleEndian.Uint16(buf[14:16]),
	}
}

// AvailRingHeader is the fixed header of the available ring: flags, idx,
// followed by RingSize uint16 entries and a used-event uint16 (unused here,
// no VIRTIO_F_EVENT_IDX negotiated).
type AvailRingHeader struct {
	Flags uint16
	Idx   uint16
}

const AvailHeaderSize = 4

// UsedElem is one entry in the used ring: descriptor chain head index and
// total bytes written.
type UsedElem struct {
	ID  uint32
	Len uint32
}

const UsedElemSize = 8

// UsedRingHeader is the fixed header of the used ring: flags, idx, followed
// by RingSize UsedElem entries.
type UsedRingHeader struct {
	Flags uint16
	Idx   uint16
}

const UsedHeaderSize = 4
