// Package canframe implements the 8-byte CAN frame representation and the
// ISO 15765-2 PCI (Protocol Control Information) byte interpretation shared
// by the transport and UDS layers.
package canframe

import "fmt"

// MaxDataLen is the largest payload a classic (non-FD) CAN frame carries.
const MaxDataLen = 8

// Frame is a single classic CAN frame: an 11-bit identifier, a length code,
// and up to 8 data bytes. Extended 29-bit identifiers are representable but
// unused by this core.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [MaxDataLen]byte
}

// Payload returns the frame's data bytes truncated to its DLC.
func (f Frame) Payload() []byte {
	n := int(f.DLC)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// NewFrame builds a Frame from an identifier and a data slice, padding with
// zero bytes if data is shorter than 8 bytes. data longer than 8 bytes is
// truncated.
func NewFrame(id uint32, data []byte) Frame {
	var f Frame
	f.ID = id
	n := len(data)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	copy(f.Data[:], data[:n])
	f.DLC = uint8(n)
	return f
}

// PCIType is the high nibble of a DoCAN frame's first data byte.
type PCIType uint8

const (
	PCISingle      PCIType = 0x0
	PCIFirst       PCIType = 0x1
	PCIConsecutive PCIType = 0x2
	PCIFlowControl PCIType = 0x3
)

// FlowControlType is the low nibble of a Flow Control frame's PCI byte.
type FlowControlType uint8

const (
	FCContinue FlowControlType = 0x0
	FCWait     FlowControlType = 0x1
	FCOverflow FlowControlType = 0x2
)

// PCI decodes the leading PCI byte of a frame's payload. It returns an error
// only when the payload is empty; every possible byte value maps to some
// valid type by construction (totality required by the spec's fuzz property).
func PCI(data []byte) (PCIType, byte, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("canframe: empty payload")
	}
	b := data[0]
	return PCIType(b >> 4), b, nil
}

// EncodeSingle builds a Single Frame carrying payload (1..7 bytes).
func EncodeSingle(payload []byte) ([MaxDataLen]byte, error) {
	var out [MaxDataLen]byte
	l := len(payload)
	if l < 1 || l > 7 {
		return out, fmt.Errorf("canframe: single frame payload length %d out of range 1..7", l)
	}
	out[0] = byte(PCISingle)<<4 | byte(l)
	copy(out[1:], payload)
	return out, nil
}

// DecodeSingle extracts the payload from a Single Frame's data bytes.
func DecodeSingle(data []byte) ([]byte, error) {
	typ, b, err := PCI(data)
	if err != nil {
		return nil, err
	}
	if typ != PCISingle {
		return nil, fmt.Errorf("canframe: not a single frame (pci type %d)", typ)
	}
	l := int(b & 0x0F)
	if l < 1 || l > 7 || len(data) < 1+l {
		return nil, fmt.Errorf("canframe: invalid single frame length %d", l)
	}
	return data[1 : 1+l], nil
}

// EncodeFirst builds a First Frame announcing totalLen and carrying the first
// five payload bytes.
func EncodeFirst(totalLen int, first5 []byte) ([MaxDataLen]byte, error) {
	var out [MaxDataLen]byte
	if totalLen < 8 || totalLen > 4095 {
		return out, fmt.Errorf("canframe: first frame total length %d out of range", totalLen)
	}
	out[0] = byte(PCIFirst)<<4 | byte((totalLen>>8)&0x0F)
	out[1] = byte(totalLen & 0xFF)
	copy(out[2:], first5)
	return out, nil
}

// DecodeFirst extracts the announced total length and first payload bytes
// from a First Frame.
func DecodeFirst(data []byte) (totalLen int, first5 []byte, err error) {
	typ, b, err := PCI(data)
	if err != nil {
		return 0, nil, err
	}
	if typ != PCIFirst {
		return 0, nil, fmt.Errorf("canframe: not a first frame (pci type %d)", typ)
	}
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("canframe: first frame too short: %d bytes", len(data))
	}
	totalLen = (int(b&0x0F) << 8) | int(data[1])
	return totalLen, data[2:8], nil
}

// EncodeConsecutive builds a Consecutive Frame with the given 4-bit sequence
// number and up to 7 payload bytes, padding with 0xFF when shorter.
func EncodeConsecutive(seq uint8, payload []byte) [MaxDataLen]byte {
	var out [MaxDataLen]byte
	out[0] = byte(PCIConsecutive)<<4 | (seq & 0x0F)
	for i := 1; i < MaxDataLen; i++ {
		out[i] = 0xFF
	}
	copy(out[1:], payload)
	return out
}

// DecodeConsecutive extracts the sequence number and payload bytes from a
// Consecutive Frame. The caller is responsible for trimming padding given
// the number of bytes still expected.
func DecodeConsecutive(data []byte) (seq uint8, payload []byte, err error) {
	typ, b, err := PCI(data)
	if err != nil {
		return 0, nil, err
	}
	if typ != PCIConsecutive {
		return 0, nil, fmt.Errorf("canframe: not a consecutive frame (pci type %d)", typ)
	}
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("canframe: consecutive frame too short")
	}
	return b & 0x0F, data[1:], nil
}

// EncodeFlowControl builds a Flow Control frame.
func EncodeFlowControl(fcType FlowControlType, blockSize, stmin byte) [MaxDataLen]byte {
	var out [MaxDataLen]byte
	out[0] = byte(PCIFlowControl)<<4 | byte(fcType)
	out[1] = blockSize
	out[2] = stmin
	return out
}

// DecodeFlowControl extracts the sub-type, block size and STmin byte from a
// Flow Control frame.
func DecodeFlowControl(data []byte) (fcType FlowControlType, blockSize, stmin byte, err error) {
	typ, b, err := PCI(data)
	if err != nil {
		return 0, 0, 0, err
	}
	if typ != PCIFlowControl {
		return 0, 0, 0, fmt.Errorf("canframe: not a flow control frame (pci type %d)", typ)
	}
	if len(data) < 3 {
		return 0, 0, 0, fmt.Errorf("canframe: flow control frame too short")
	}
	return FlowControlType(b & 0x0F), data[1], data[2], nil
}

// STmin interprets a raw STmin byte per ISO 15765-2: 0x00-0x7F are
// milliseconds, 0xF1-0xF9 are multiples of 100 microseconds, everything else
// is reserved and treated as the maximum standard value (127ms) defensively.
func STmin(raw byte) (millis float64) {
	switch {
	case raw <= 0x7F:
		return float64(raw)
	case raw >= 0xF1 && raw <= 0xF9:
		return float64(raw-0xF0) * 0.1
	default:
		return 127
	}
}
