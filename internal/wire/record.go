package wire

import (
	"bytes"
	"encoding/binary"
	"net"

	"golang.org/x/net/dns/dnsmessage"
)

// RRType is the 16-bit DNS resource record type (spec §4.1).
type RRType uint16

// Record types handled by this codec (spec §4.1).
const (
	TypeA    RRType = 1
	TypePTR  RRType = 12
	TypeTXT  RRType = 16
	TypeAAAA RRType = 28
	TypeSRV  RRType = 33
	TypeNSEC RRType = 47
	TypeOPT  RRType = 41
	TypeANY  RRType = 255
	// TypeSDPTR is synthetic: on the wire it is just a PTR to
	// "_services._dns-sd._udp.local" (spec §4.1).
	TypeSDPTR RRType = TypePTR
)

// ClassINET is the only DNS class mDNS uses.
const ClassINET uint16 = 1

// classTopBit is the repurposed top bit of the class
// field (spec §4.1: "the cache-flush bit is the top bit of the class field;
// unicast-response is the top bit of the class field in a question").
const classTopBit uint16 = 0x8000

// Question is a parsed/pending DNS question.
type Question struct {
	Name     string
	Type     RRType
	Unicast  bool // QU bit: requester wants a unicast reply
}

// EncodeQuestion appends a question to buf.
func EncodeQuestion(buf []byte, q Question, ct *compressionTable) ([]byte, error) {
	buf, err := EncodeName(buf, q.Name, ct)
	if err != nil {
		return nil, err
	}
	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[0:2], uint16(q.Type))
	class := ClassINET
	if q.Unicast {
		class |= classTopBit
	}
	binary.BigEndian.PutUint16(tmp[2:4], class)
	return append(buf, tmp[:]...), nil
}

// DecodeQuestion reads one question starting at offset.
func DecodeQuestion(packet []byte, offset int) (Question, int, error) {
	name, next, err := DecodeName(packet, offset)
	if err != nil {
		return Question{}, 0, err
	}
	if next+4 > len(packet) {
		return Question{}, 0, ErrTruncated
	}
	typ := RRType(binary.BigEndian.Uint16(packet[next : next+2]))
	class := binary.BigEndian.Uint16(packet[next+2 : next+4])
	return Question{
		Name:    name,
		Type:    typ,
		Unicast: class&classTopBit != 0,
	}, next + 4, nil
}

// RData is a parsed resource record body. Each concrete type knows how to
// encode itself; decoding is handled centrally in DecodeRecord since it
// needs the shared name-decompression table and the rdlength bound.
type RData interface {
	encode(buf []byte, ct *compressionTable) ([]byte, error)
}

// PTRData is a PTR record body: a single target name.
type PTRData struct{ Target string }

func (d PTRData) encode(buf []byte, ct *compressionTable) ([]byte, error) {
	return EncodeName(buf, d.Target, ct)
}

// SRVData is an SRV record body (spec §4.2).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (d SRVData) encode(buf []byte, ct *compressionTable) ([]byte, error) {
	var tmp [6]byte
	binary.BigEndian.PutUint16(tmp[0:2], d.Priority)
	binary.BigEndian.PutUint16(tmp[2:4], d.Weight)
	binary.BigEndian.PutUint16(tmp[4:6], d.Port)
	buf = append(buf, tmp[:]...)
	// SRV target names are not compressed by convention in this codec to
	// keep rdlength patch-up simple; written as a literal label sequence.
	return EncodeName(buf, d.Target, newCompressionTable())
}

// TxtItem is a single TXT record attribute (spec §3: key non-empty, no
// '=', value optional, length <= 255 - len(key) - 1).
type TxtItem struct {
	Key      string
	Value    []byte
	HasValue bool
}

// TXTData is a TXT record body: an ordered list of items. An empty list
// encodes as a single zero-length string (spec §4.2).
type TXTData struct{ Items []TxtItem }

func (d TXTData) encode(buf []byte, _ *compressionTable) ([]byte, error) {
	if len(d.Items) == 0 {
		return append(buf, 0), nil
	}
	for _, it := range d.Items {
		if it.Key == "" {
			return nil, ErrEmptyTxtKey
		}
		s := it.Key
		if it.HasValue {
			s = it.Key + "=" + string(it.Value)
		}
		if len(s) > 255 {
			return nil, ErrTxtValueTooBig
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// AData is an A record body: an IPv4 address.
type AData struct{ IP net.IP }

func (d AData) encode(buf []byte, _ *compressionTable) ([]byte, error) {
	ip4 := d.IP.To4()
	if ip4 == nil {
		return nil, ErrMalformedLen
	}
	return append(buf, ip4...), nil
}

// AAAAData is an AAAA record body: an IPv6 address.
type AAAAData struct{ IP net.IP }

func (d AAAAData) encode(buf []byte, _ *compressionTable) ([]byte, error) {
	ip16 := d.IP.To16()
	if ip16 == nil {
		return nil, ErrMalformedLen
	}
	return append(buf, ip16...), nil
}

// RawData passes through opaque rdata (NSEC, OPT: "ignored" per spec §4.1).
type RawData struct{ Bytes []byte }

func (d RawData) encode(buf []byte, _ *compressionTable) ([]byte, error) {
	return append(buf, d.Bytes...), nil
}

// Record is a parsed/pending resource record.
type Record struct {
	Name       string
	Type       RRType
	CacheFlush bool
	TTL        uint32
	Data       RData
}

// EncodeRData serializes just d's rdata bytes in isolation (no name, type,
// class, ttl, or rdlength envelope), for byte-wise RDATA comparison during
// collision detection (spec §4.3, §9 "Collision RDATA comparison").
func EncodeRData(d RData) ([]byte, error) {
	return d.encode(nil, newCompressionTable())
}

// RecordEqualIgnoreTTL reports whether a and b name the same owner, type,
// and rdata, disregarding TTL — the identity check behind known-answer
// suppression (spec §4.4) and pruning an already-scheduled answer once a
// peer's own answer has made it redundant.
func RecordEqualIgnoreTTL(a, b Record) bool {
	if a.Name != b.Name || a.Type != b.Type {
		return false
	}
	ab, err1 := EncodeRData(a.Data)
	bb, err2 := EncodeRData(b.Data)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// EncodeRecord appends name, type, class(+cache-flush), ttl, rdlength and
// rdata to buf.
func EncodeRecord(buf []byte, r Record, ct *compressionTable) ([]byte, error) {
	var err error
	buf, err = EncodeName(buf, r.Name, ct)
	if err != nil {
		return nil, err
	}

	var head [10]byte
	binary.BigEndian.PutUint16(head[0:2], uint16(r.Type))
	class := ClassINET
	if r.CacheFlush {
		class |= classTopBit
	}
	binary.BigEndian.PutUint16(head[2:4], class)
	binary.BigEndian.PutUint32(head[4:8], r.TTL)
	buf = append(buf, head[:8]...)

	rdStart := len(buf)
	buf = append(buf, 0, 0) // rdlength placeholder
	buf, err = r.Data.encode(buf, ct)
	if err != nil {
		return nil, err
	}
	rdlen := len(buf) - rdStart - 2
	binary.BigEndian.PutUint16(buf[rdStart:rdStart+2], uint16(rdlen))
	return buf, nil
}

// DecodeRecord reads one resource record starting at offset. NSEC and OPT
// bodies are captured as RawData and otherwise ignored by callers (spec
// §4.1).
func DecodeRecord(packet []byte, offset int) (Record, int, error) {
	name, next, err := DecodeName(packet, offset)
	if err != nil {
		return Record{}, 0, err
	}
	if next+10 > len(packet) {
		return Record{}, 0, ErrTruncated
	}
	typ := RRType(binary.BigEndian.Uint16(packet[next : next+2]))
	class := binary.BigEndian.Uint16(packet[next+2 : next+4])
	ttl := binary.BigEndian.Uint32(packet[next+4 : next+8])
	rdlen := int(binary.BigEndian.Uint16(packet[next+8 : next+10]))
	rdStart := next + 10
	rdEnd := rdStart + rdlen
	if rdEnd > len(packet) {
		return Record{}, 0, ErrTruncated
	}

	r := Record{
		Name:       name,
		Type:       typ,
		CacheFlush: class&classTopBit != 0,
		TTL:        ttl,
	}

	switch typ {
	case TypePTR:
		target, _, err := DecodeName(packet, rdStart)
		if err != nil {
			return Record{}, 0, err
		}
		r.Data = PTRData{Target: target}
	case TypeSRV:
		if rdStart+6 > rdEnd {
			return Record{}, 0, ErrTruncated
		}
		target, _, err := DecodeName(packet, rdStart+6)
		if err != nil {
			return Record{}, 0, err
		}
		r.Data = SRVData{
			Priority: binary.BigEndian.Uint16(packet[rdStart : rdStart+2]),
			Weight:   binary.BigEndian.Uint16(packet[rdStart+2 : rdStart+4]),
			Port:     binary.BigEndian.Uint16(packet[rdStart+4 : rdStart+6]),
			Target:   target,
		}
	case TypeTXT:
		r.Data = TXTData{Items: decodeTXT(packet[rdStart:rdEnd])}
	case TypeA:
		if rdEnd-rdStart != 4 {
			return Record{}, 0, ErrMalformedLen
		}
		r.Data = AData{IP: net.IP(append([]byte(nil), packet[rdStart:rdEnd]...))}
	case TypeAAAA:
		if rdEnd-rdStart != 16 {
			return Record{}, 0, ErrMalformedLen
		}
		r.Data = AAAAData{IP: net.IP(append([]byte(nil), packet[rdStart:rdEnd]...))}
	default:
		// NSEC, OPT, and anything else: ignored on receive (spec §4.1).
		r.Data = RawData{Bytes: append([]byte(nil), packet[rdStart:rdEnd]...)}
	}

	return r, rdEnd, nil
}

func decodeTXT(rdata []byte) []TxtItem {
	var items []TxtItem
	for i := 0; i < len(rdata); {
		n := int(rdata[i])
		i++
		if i+n > len(rdata) {
			break
		}
		s := string(rdata[i : i+n])
		i += n
		if s == "" {
			continue
		}
		if idx := indexByte(s, '='); idx >= 0 {
			items = append(items, TxtItem{Key: s[:idx], Value: []byte(s[idx+1:]), HasValue: true})
		} else {
			items = append(items, TxtItem{Key: s})
		}
	}
	return items
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ValidateName checks label and total length limits using
// golang.org/x/net/dns/dnsmessage's own validating constructor, reusing
// the teacher's dependency for this leaf concern (DESIGN.md).
func ValidateName(fqdn string) error {
	if fqdn == "" {
		return nil
	}
	name := fqdn
	if name[len(name)-1] != '.' {
		name += "."
	}
	_, err := dnsmessage.NewName(name)
	return err
}
