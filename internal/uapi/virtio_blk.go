package uapi

import "encoding/binary"

// Virtio-blk request types; the header precedes the data buffer in the
// descriptor chain.
const (
	BlkTypeIn  = 0 // read from disk into payload
	BlkTypeOut = 1 // write payload to disk
)

// BlkReqHeader is the 16-byte virtio-blk request header: type, reserved,
// sector. The reserved word keeps sector 8-byte aligned, matching the
// virtio-blk wire format.
type BlkReqHeader struct {
	Type     uint32
	Reserved uint32
	Sector   uint64
}

const BlkReqHeaderSize = 16

// MarshalBlkReqHeader encodes h at buf[0:16].
func MarshalBlkReqHeader(buf []byte, h BlkReqHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Type)
	binary.LittleEndian.PutUint32(buf[4:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sector)
}

// BlkConfig is the virtio-blk config space (capacity in 512-byte sectors),
// read at RegConfig once after the handshake.
type BlkConfig struct {
	CapacitySectors uint64
}
