package wire

import "encoding/binary"

// headerLen is the fixed 12-byte mDNS/DNS header (spec §4.1).
const headerLen = 12

// Flag bits within the 16-bit flags word (spec §4.1: numeric semantics are
// big-endian; only QR and AA are meaningful for mDNS, per RFC 6762 §18).
const (
	flagQR = 1 << 15 // query/response
	flagAA = 1 << 10 // authoritative answer
)

// Header is the fixed 12-byte mDNS message header.
type Header struct {
	ID         uint16
	Response   bool
	Authoritative bool
	Questions  uint16
	Answers    uint16
	Authority  uint16
	Additional uint16
}

// EncodeHeader appends the 12-byte header to buf.
func EncodeHeader(buf []byte, h Header) []byte {
	var flags uint16
	if h.Response {
		flags |= flagQR
	}
	if h.Authoritative {
		flags |= flagAA
	}

	var tmp [headerLen]byte
	binary.BigEndian.PutUint16(tmp[0:2], h.ID)
	binary.BigEndian.PutUint16(tmp[2:4], flags)
	binary.BigEndian.PutUint16(tmp[4:6], h.Questions)
	binary.BigEndian.PutUint16(tmp[6:8], h.Answers)
	binary.BigEndian.PutUint16(tmp[8:10], h.Authority)
	binary.BigEndian.PutUint16(tmp[10:12], h.Additional)
	return append(buf, tmp[:]...)
}

// DecodeHeader reads the fixed header from the start of packet.
func DecodeHeader(packet []byte) (Header, error) {
	if len(packet) < headerLen {
		return Header{}, ErrTruncated
	}
	flags := binary.BigEndian.Uint16(packet[2:4])
	return Header{
		ID:            binary.BigEndian.Uint16(packet[0:2]),
		Response:      flags&flagQR != 0,
		Authoritative: flags&flagAA != 0,
		Questions:     binary.BigEndian.Uint16(packet[4:6]),
		Answers:       binary.BigEndian.Uint16(packet[6:8]),
		Authority:     binary.BigEndian.Uint16(packet[8:10]),
		Additional:    binary.BigEndian.Uint16(packet[10:12]),
	}, nil
}
