package uapi

import "encoding/binary"

// Virtio-input event types: key events drive the keyboard path,
// relative-motion events drive the mouse path.
const (
	InputEVKey = 1
	InputEVRel = 2
	InputEVAbs = 3
)

// InputEvent is the 8-byte virtio-input event record (type, code, value).
type InputEvent struct {
	Type  uint16
	Code  uint16
	Value uint32
}

const InputEventSize = 8

func MarshalInputEvent(buf []byte, e InputEvent) {
	binary.LittleEndian.PutUint16(buf[0:2], e.Type)
	binary.LittleEndian.PutUint16(buf[2:4], e.Code)
	binary.LittleEndian.PutUint32(buf[4:8], e.Value)
}

func UnmarshalInputEvent(buf []byte) InputEvent {
	return InputEvent{
		Type:  binary.LittleEndian.Uint16(buf[0:2]),
		Code:  binary.LittleEndian.Uint16(buf[2:4]),
		Value: binary.LittleEndian.Uint32(buf[4:8]),
	}
}
