package dbc

import "fmt"

// ExtractSignal pulls a raw integer out of an 8-byte Motorola (big-endian,
// MSB-first) bit field. It is the generic bit-walk algorithm: correct for
// any alignment, used as the reference the fast paths must agree with.
func ExtractSignal(data []byte, startBit, length int, signed bool) int64 {
	var raw uint64
	for i := 0; i < length; i++ {
		currentBit := startBit + i
		byteIdx := currentBit >> 3
		bitInByte := 7 - (currentBit & 7)
		bit := (uint64(data[byteIdx]) >> uint(bitInByte)) & 1
		raw |= bit << uint(length-1-i)
	}
	if signed && length < 64 && raw&(1<<uint(length-1)) != 0 {
		raw |= ^uint64(0) << uint(length)
	}
	return int64(raw)
}

// extractSignalFast mirrors ExtractSignal but short-circuits byte-aligned
// 8-bit and 16-bit fields to direct indexing. Both paths must agree for
// aligned cases (the spec's bit-extract determinism property).
func extractSignalFast(data []byte, startBit, length int, signed bool) int64 {
	if startBit%8 == 0 {
		byteIdx := startBit / 8
		switch length {
		case 8:
			raw := uint64(data[byteIdx])
			if signed && raw&0x80 != 0 {
				return int64(int8(raw))
			}
			return int64(raw)
		case 16:
			raw := uint64(data[byteIdx])<<8 | uint64(data[byteIdx+1])
			if signed && raw&0x8000 != 0 {
				return int64(int16(raw))
			}
			return int64(raw)
		}
	}
	return ExtractSignal(data, startBit, length, signed)
}

// ScaleValue applies the signal's linear scaling in 32-bit float arithmetic,
// matching the firmware's single-precision math exactly.
func ScaleValue(raw int64, factor, offset float64) float64 {
	return float64(float32(raw)*float32(factor) + float32(offset))
}

// DecodedMessage is the result of decoding one broadcast frame: every signal
// name mapped to its scaled value (booleans as 0/1).
type DecodedMessage struct {
	ID     uint32
	Name   string
	Values map[string]float64
}

// Decode routes by identifier to the compiled schema and extracts every
// signal. It returns false only when data is nil or shorter than 8 bytes, or
// the identifier has no schema entry — a total function otherwise.
func Decode(id uint32, data []byte) (DecodedMessage, bool) {
	if data == nil || len(data) < 8 {
		return DecodedMessage{}, false
	}
	msg, ok := Schema[id]
	if !ok {
		return DecodedMessage{}, false
	}
	out := DecodedMessage{ID: id, Name: msg.Name, Values: make(map[string]float64, len(msg.Signals))}
	for _, sig := range msg.Signals {
		raw := extractSignalFast(data, sig.StartBit, sig.Length, sig.Signed)
		out.Values[sig.Name] = ScaleValue(raw, sig.Factor, sig.Offset)
	}
	return out, true
}

// Decoder is a thin convenience wrapper kept for symmetry with the
// transport/UDS components, which are stateful; the decoder itself is pure.
type Decoder struct{}

// NewDecoder returns a Decoder. It carries no state; the compiled Schema is
// package-level and immutable.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode decodes frame data for the given identifier, returning an error
// instead of a bool for callers that prefer the Go error idiom.
func (d *Decoder) Decode(id uint32, data []byte) (DecodedMessage, error) {
	msg, ok := Decode(id, data)
	if !ok {
		return DecodedMessage{}, fmt.Errorf("dbc: no schema for identifier %d or short frame", id)
	}
	return msg, nil
}
