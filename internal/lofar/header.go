// Package lofar decodes the 16-byte LOFAR beamformed-packet header used
// to reconcile expected-vs-received packet counts per port.
package lofar

import "encoding/binary"

// HeaderSize is the on-wire size of a LOFAR header, in bytes.
const HeaderSize = 16

// Header is the packed, little-endian LOFAR beamformed packet header.
type Header struct {
	Version     uint8
	RSPID       uint8 // 5 bits
	Error       bool
	Is200MHz    bool
	BM          uint8 // 2 bits
	Config      uint8
	Station     uint16
	NumBeamlets uint8
	NumSlices   uint8
	Timestamp   int32
	Sequence    int32
}

// Decode parses a 16-byte LOFAR header. It panics if b is shorter than
// HeaderSize; callers must only invoke it on records already known to
// carry a full header (enforced upstream by --len 7824 with --check).
func Decode(b []byte) Header {
	_ = b[HeaderSize-1]

	version := b[0]
	source := binary.LittleEndian.Uint16(b[1:3])

	return Header{
		Version:     version,
		RSPID:       uint8(source & 0x1F),
		Error:       (source>>6)&0x1 != 0,
		Is200MHz:    (source>>7)&0x1 != 0,
		BM:          uint8((source >> 8) & 0x3),
		Config:      b[3],
		Station:     binary.LittleEndian.Uint16(b[4:6]),
		NumBeamlets: b[6],
		NumSlices:   b[7],
		Timestamp:   int32(binary.LittleEndian.Uint32(b[8:12])),
		Sequence:    int32(binary.LittleEndian.Uint32(b[12:16])),
	}
}

// Good reports whether the packet is usable: no error flag, and a
// timestamp that isn't the "no time" sentinel.
func (h Header) Good() bool {
	return !h.Error && h.Timestamp != -1
}

// PackNo derives the packet's sequence number from its timestamp,
// sample-rate flag and within-second sequence, per the LOFAR station
// clocking scheme: the timestamp counts whole seconds, the sequence
// counts sub-second ticks at a rate that depends on Is200MHz, and the
// combined count is downscaled by 16 samples-per-packno.
func (h Header) PackNo() int64 {
	rate := int64(160)
	if h.Is200MHz {
		rate += 40
	}
	ts := int64(h.Timestamp)
	seq := int64(h.Sequence)
	return ((ts*1_000_000*rate+512)/1024 + seq) / 16
}
