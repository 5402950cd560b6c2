// Package wire implements the mDNS wire codec: header, name compression,
// and resource record encode/decode (spec §4.1).
//
// The compression codec and the 4-field FQDN parser are hand-written per
// spec §4.1/§8/§9 rather than delegated to a library — see DESIGN.md.
package wire

import (
	"errors"
	"strings"
)

// Errors returned by the codec. ParseError (spec §7) is represented by
// these; callers at the dispatcher layer log and drop rather than
// propagating them outward.
var (
	ErrTruncated     = errors.New("wire: packet truncated")
	ErrLabelTooLong  = errors.New("wire: label exceeds 63 bytes")
	ErrNameTooLong   = errors.New("wire: encoded name exceeds 255 bytes")
	ErrPointerLoop   = errors.New("wire: compression pointer does not point backward")
	ErrMalformedLen  = errors.New("wire: malformed label length")
	ErrPacketTooBig  = errors.New("wire: message exceeds maximum datagram size")
	ErrEmptyTxtKey   = errors.New("wire: TXT item key must not be empty")
	ErrTxtValueTooBig = errors.New("wire: TXT item value too long")
)

// MaxDatagram is the largest mDNS UDP payload this codec will produce
// (spec §6: "max datagram 1460 bytes").
const MaxDatagram = 1460

// maxLabelLen is the largest single DNS label (spec §4.1).
const maxLabelLen = 63

// maxNameLen is the largest total encoded name, label lengths + separators
// (spec §4.1).
const maxNameLen = 255

// Name is the 4-field decoded name structure from spec §4.1's read_fqdn:
// host, service, proto, domain, plus the subtype flag and the "more than
// 4 parts" invalid marker.
//
// Grounded on original_source mdns.c's mdns_name_t: labels fill
// [host, service, proto, domain] in order; a label equal to "_sub" sets
// Subtype without consuming a slot; a second label immediately following a
// lone host label that isn't a service/domain label extends Host with a
// "." (multi-label plain hostnames, e.g. "my.sensor.local").
type Name struct {
	Host    string
	Service string
	Proto   string
	Domain  string
	Subtype bool
	Invalid bool
}

// isDomainLabel identifies the domain-terminator labels that end a name's
// "host" continuation run.
func isDomainLabel(label string) bool {
	l := strings.ToLower(label)
	return l == "local" || l == "arpa" || l == "ip6" || l == "in-addr"
}

// ParseName splits a dotted FQDN (already decompressed) into the 4-field
// structure. It never returns an error: names with more than 4 meaningful
// parts are marked Invalid but still partially populated, matching spec
// §4.1 ("parser continues but ignores").
//
// Names with fewer than 4 labels (a bare service type, or a plain
// hostname) are left-aligned into [host,service,proto,domain] by the label
// loop below, then right-shifted so the trailing label always lands in
// Domain: a 3-label name shifts host->service->proto->domain (clearing
// Host), a 2-label name shifts service->domain (clearing Service/Proto).
// This mirrors the post-pass original_source runs after its label loop —
// without it, a bare "_http._tcp.local" question would misparse as
// Host="_http", Service="_tcp", Proto="local".
func ParseName(fqdn string) Name {
	fqdn = strings.TrimSuffix(fqdn, ".")
	var labels []string
	if fqdn != "" {
		labels = strings.Split(fqdn, ".")
	}

	var n Name
	parts := 0
	slots := [4]*string{&n.Host, &n.Service, &n.Proto, &n.Domain}

	for _, label := range labels {
		if parts == 4 {
			n.Invalid = true
		}
		switch {
		case parts == 1 && label != "" && label[0] != '_' && !isDomainLabel(label):
			// Multi-label plain hostname continuation.
			n.Host += "." + label
		case strings.EqualFold(label, "_sub"):
			n.Subtype = true
		case !n.Invalid:
			*slots[parts] = label
			parts++
		}
	}

	if parts == 0 || n.Invalid {
		return n
	}
	switch parts {
	case 3:
		n.Domain, n.Proto, n.Service, n.Host = n.Proto, n.Service, n.Host, ""
	case 2:
		n.Domain, n.Service = n.Service, ""
	}
	return n
}

// String reassembles the dotted FQDN from the 4-field structure, in the
// original label order (host[.sub "_sub"].service.proto.domain).
func (n Name) String() string {
	var parts []string
	if n.Host != "" {
		parts = append(parts, n.Host)
	}
	if n.Subtype {
		parts = append(parts, "_sub")
	}
	if n.Service != "" {
		parts = append(parts, n.Service)
	}
	if n.Proto != "" {
		parts = append(parts, n.Proto)
	}
	if n.Domain != "" {
		parts = append(parts, n.Domain)
	}
	return strings.Join(parts, ".")
}

// compressionTable tracks, for a single outbound message, which offset each
// previously written name suffix starts at, so later names can point back
// to it instead of repeating labels (spec §4.1).
type compressionTable struct {
	offsets map[string]int // lowercased dotted suffix -> byte offset
}

func newCompressionTable() *compressionTable {
	return &compressionTable{offsets: make(map[string]int)}
}

// suffixes returns every dotted suffix of name, longest first, down to "".
func suffixes(name string) []string {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []string{""}
	}
	labels := strings.Split(name, ".")
	out := make([]string, 0, len(labels)+1)
	for i := range labels {
		out = append(out, strings.ToLower(strings.Join(labels[i:], ".")))
	}
	out = append(out, "")
	return out
}

// EncodeName appends the compressed wire form of name to buf, which
// represents the full message built so far (so offsets are absolute).
// It returns the updated buffer. Compression pointers only ever reference
// offsets strictly less than len(buf) at the time of writing, satisfying
// the "no forward pointer" invariant (spec §3, §8 property 3) by
// construction: a candidate offset is only used if it was recorded on an
// earlier call, i.e. it is provably smaller than the current write
// position.
func EncodeName(buf []byte, name string, ct *compressionTable) ([]byte, error) {
	if len(name) > maxNameLen {
		return nil, ErrNameTooLong
	}
	name = strings.TrimSuffix(name, ".")
	var labels []string
	if name != "" {
		labels = strings.Split(name, ".")
	}

	sufs := suffixes(name)
	for i, suf := range sufs {
		if off, ok := ct.offsets[suf]; ok && off < len(buf) && off <= 0x3FFF {
			// Write the labels before this suffix, then a pointer.
			for _, lbl := range labels[:i] {
				if len(lbl) > maxLabelLen {
					return nil, ErrLabelTooLong
				}
				buf = append(buf, byte(len(lbl)))
				buf = append(buf, lbl...)
			}
			buf = append(buf, byte(0xC0|(off>>8)), byte(off&0xFF))
			return buf, nil
		}
	}

	// No match anywhere (including the root): write every label, recording
	// each suffix's starting offset for future compression, then terminate.
	for i, lbl := range labels {
		if len(lbl) > maxLabelLen {
			return nil, ErrLabelTooLong
		}
		if off := len(buf); off <= 0x3FFF {
			ct.offsets[sufs[i]] = off
		}
		buf = append(buf, byte(len(lbl)))
		buf = append(buf, lbl...)
	}
	buf = append(buf, 0)
	return buf, nil
}

// DecodeName reads a (possibly compressed) name starting at offset within
// packet, returning the decompressed dotted name and the offset
// immediately following the name's on-the-wire representation in the
// *original* (non-followed) stream.
//
// Pointer-cycle protection (spec §3, §4.1, §8, §9): a pointer is only
// followed if its target offset is strictly less than the offset of the
// pointer's own first byte. Since that target is itself bounded by the
// same rule transitively, no cycle is possible and decode depth is bounded
// by packet length.
func DecodeName(packet []byte, offset int) (string, int, error) {
	var labels []string
	pos := offset
	jumped := false
	end := -1 // offset to return to caller once we've followed a pointer

	for {
		if pos >= len(packet) {
			return "", 0, ErrTruncated
		}
		length := packet[pos]

		if length == 0 {
			pos++
			break
		}

		if length&0xC0 == 0xC0 {
			if pos+1 >= len(packet) {
				return "", 0, ErrTruncated
			}
			target := (int(length&0x3F) << 8) | int(packet[pos+1])
			if target >= pos {
				return "", 0, ErrPointerLoop
			}
			if !jumped {
				end = pos + 2
				jumped = true
			}
			pos = target
			continue
		}

		if length&0xC0 != 0 || length > maxLabelLen {
			return "", 0, ErrMalformedLen
		}

		labelStart := pos + 1
		labelEnd := labelStart + int(length)
		if labelEnd > len(packet) {
			return "", 0, ErrTruncated
		}
		labels = append(labels, string(packet[labelStart:labelEnd]))
		pos = labelEnd
	}

	if !jumped {
		end = pos
	}

	name := strings.Join(labels, ".")
	if len(name) > maxNameLen {
		return "", 0, ErrNameTooLong
	}
	return name, end, nil
}
