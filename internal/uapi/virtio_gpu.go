package uapi

import "encoding/binary"

// Virtio-gpu 2D command types, trimmed to the subset this kernel issues:
// resource setup, scanout, and the transfer+flush pair a compositor uses
// every frame.
const (
	GPUCmdResourceCreate2D      = 0x0101
	GPUCmdSetScanout            = 0x0103
	GPUCmdResourceFlush         = 0x0104
	GPUCmdTransferToHost2D      = 0x0105
	GPUCmdResourceAttachBacking = 0x0106

	GPURespOkNodata = 0x1100
)

// GPUFormatR8G8B8A8Unorm is the only pixel format this kernel's compositor
// uses.
const GPUFormatR8G8B8A8Unorm = 67

// GPUCtrlHdr is the 24-byte virtio-gpu control header prefixing every 2D
// command and response.
type GPUCtrlHdr struct {
	Type    uint32
	Flags   uint32
	FenceID uint64
	CtxID   uint32
	Padding uint32
}

const GPUCtrlHdrSize = 24

func MarshalGPUCtrlHdr(buf []byte, h GPUCtrlHdr) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Type)
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.FenceID)
	binary.LittleEndian.PutUint32(buf[16:20], h.CtxID)
	binary.LittleEndian.PutUint32(buf[20:24], h.Padding)
}

func UnmarshalGPUCtrlHdr(buf []byte) GPUCtrlHdr {
	return GPUCtrlHdr{
		Type:    binary.LittleEndian.Uint32(buf[0:4]),
		Flags:   binary.LittleEndian.Uint32(buf[4:8]),
		FenceID: binary.LittleEndian.Uint64(buf[8:16]),
		CtxID:   binary.LittleEndian.Uint32(buf[16:20]),
		Padding: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// GPURect is a 16-byte 2D rectangle (x, y, width, height).
type GPURect struct {
	X, Y, Width, Height uint32
}

const GPURectSize = 16

func MarshalGPURect(buf []byte, r GPURect) {
	binary.LittleEndian.PutUint32(buf[0:4], r.X)
	binary.LittleEndian.PutUint32(buf[4:8], r.Y)
	binary.LittleEndian.PutUint32(buf[8:12], r.Width)
	binary.LittleEndian.PutUint32(buf[12:16], r.Height)
}

// GPUResourceCreate2D requests a new 2D resource (hdr + resource_id +
// format + width + height, 40 bytes total).
type GPUResourceCreate2D struct {
	Hdr        GPUCtrlHdr
	ResourceID uint32
	Format     uint32
	Width      uint32
	Height     uint32
}

const GPUResourceCreate2DSize = GPUCtrlHdrSize + 16

func MarshalGPUResourceCreate2D(buf []byte, r GPUResourceCreate2D) {
	MarshalGPUCtrlHdr(buf[0:GPUCtrlHdrSize], r.Hdr)
	o := GPUCtrlHdrSize
	binary.LittleEndian.PutUint32(buf[o:o+4], r.ResourceID)
	binary.LittleEndian.PutUint32(buf[o+4:o+8], r.Format)
	binary.LittleEndian.PutUint32(buf[o+8:o+12], r.Width)
	binary.LittleEndian.PutUint32(buf[o+12:o+16], r.Height)
}

// GPUMemEntry describes one backing-memory region attached to a resource.
type GPUMemEntry struct {
	Addr    uint64
	Length  uint32
	Padding uint32
}

const GPUMemEntrySize = 16

func MarshalGPUMemEntry(buf []byte, e GPUMemEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], e.Addr)
	binary.LittleEndian.PutUint32(buf[8:12], e.Length)
	binary.LittleEndian.PutUint32(buf[12:16], e.Padding)
}

// GPUResourceAttachBacking is hdr + resource_id + nr_entries, followed in
// the actual request buffer by nr_entries GPUMemEntry records.
type GPUResourceAttachBacking struct {
	Hdr        GPUCtrlHdr
	ResourceID uint32
	NrEntries  uint32
}

const GPUResourceAttachBackingSize = GPUCtrlHdrSize + 8

func MarshalGPUResourceAttachBacking(buf []byte, r GPUResourceAttachBacking) {
	MarshalGPUCtrlHdr(buf[0:GPUCtrlHdrSize], r.Hdr)
	o := GPUCtrlHdrSize
	binary.LittleEndian.PutUint32(buf[o:o+4], r.ResourceID)
	binary.LittleEndian.PutUint32(buf[o+4:o+8], r.NrEntries)
}

// GPUSetScanout is hdr + rect + scanout_id + resource_id.
type GPUSetScanout struct {
	Hdr        GPUCtrlHdr
	Rect       GPURect
	ScanoutID  uint32
	ResourceID uint32
}

const GPUSetScanoutSize = GPUCtrlHdrSize + GPURectSize + 8

func MarshalGPUSetScanout(buf []byte, s GPUSetScanout) {
	MarshalGPUCtrlHdr(buf[0:GPUCtrlHdrSize], s.Hdr)
	o := GPUCtrlHdrSize
	MarshalGPURect(buf[o:o+GPURectSize], s.Rect)
	o += GPURectSize
	binary.LittleEndian.PutUint32(buf[o:o+4], s.ScanoutID)
	binary.LittleEndian.PutUint32(buf[o+4:o+8], s.ResourceID)
}

// GPUTransferToHost2D is hdr + rect + offset + resource_id + padding.
type GPUTransferToHost2D struct {
	Hdr        GPUCtrlHdr
	Rect       GPURect
	Offset     uint64
	ResourceID uint32
	Padding    uint32
}

const GPUTransferToHost2DSize = GPUCtrlHdrSize + GPURectSize + 16

func MarshalGPUTransferToHost2D(buf []byte, t GPUTransferToHost2D) {
	MarshalGPUCtrlHdr(buf[0:GPUCtrlHdrSize], t.Hdr)
	o := GPUCtrlHdrSize
	MarshalGPURect(buf[o:o+GPURectSize], t.Rect)
	o += GPURectSize
	binary.LittleEndian.PutUint64(buf[o:o+8], t.Offset)
	binary.LittleEndian.PutUint32(buf[o+8:o+12], t.ResourceID)
	binary.LittleEndian.PutUint32(buf[o+12:o+16], t.Padding)
}

// GPUResourceFlush is hdr + rect + resource_id + padding.
type GPUResourceFlush struct {
	Hdr        GPUCtrlHdr
	Rect       GPURect
	ResourceID uint32
	Padding    uint32
}

const GPUResourceFlushSize = GPUCtrlHdrSize + GPURectSize + 8

func MarshalGPUResourceFlush(buf []byte, f GPUResourceFlush) {
	MarshalGPUCtrlHdr(buf[0:GPUCtrlHdrSize], f.Hdr)
	o := GPUCtrlHdrSize
	MarshalGPURect(buf[o:o+GPURectSize], f.Rect)
	o += GPURectSize
	binary.LittleEndian.PutUint32(buf[o:o+4], f.ResourceID)
	binary.LittleEndian.PutUint32(buf[o+4:o+8], f.Padding)
}
