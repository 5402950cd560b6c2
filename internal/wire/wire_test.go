package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNameBasic(t *testing.T) {
	n := ParseName("kitchen._http._tcp.local")
	require.Equal(t, "kitchen", n.Host)
	require.Equal(t, "_http", n.Service)
	require.Equal(t, "_tcp", n.Proto)
	require.Equal(t, "local", n.Domain)
	require.False(t, n.Subtype)
	require.False(t, n.Invalid)
	require.Equal(t, "kitchen._http._tcp.local", n.String())
}

func TestParseNameSubtype(t *testing.T) {
	n := ParseName("_printer._sub._http._tcp.local")
	require.True(t, n.Subtype)
	require.Equal(t, "_printer", n.Host)
	require.Equal(t, "_http", n.Service)
	require.Equal(t, "_tcp", n.Proto)
	require.Equal(t, "local", n.Domain)
}

func TestParseNameTooManyParts(t *testing.T) {
	n := ParseName("host._one._two._three._four.local")
	require.True(t, n.Invalid)
}

func TestParseNameServiceTypeQuestion(t *testing.T) {
	// A bare 3-label service-type question has no instance label: the
	// parser right-shifts so service/proto/domain still land correctly.
	n := ParseName("_http._tcp.local")
	require.Equal(t, "", n.Host)
	require.Equal(t, "_http", n.Service)
	require.Equal(t, "_tcp", n.Proto)
	require.Equal(t, "local", n.Domain)
}

func TestParseNamePlainHostQuestion(t *testing.T) {
	n := ParseName("alpha.local")
	require.Equal(t, "alpha", n.Host)
	require.Equal(t, "", n.Service)
	require.Equal(t, "local", n.Domain)
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		ID:            0,
		Response:      true,
		Authoritative: true,
		Answers: []Record{
			{
				Name:       "_http._tcp.local",
				Type:       TypePTR,
				TTL:        4500,
				Data:       PTRData{Target: "kitchen._http._tcp.local"},
			},
			{
				Name:       "kitchen._http._tcp.local",
				Type:       TypeSRV,
				TTL:        120,
				CacheFlush: true,
				Data:       SRVData{Port: 80, Target: "kitchen.local"},
			},
			{
				Name: "kitchen.local",
				Type: TypeA,
				TTL:  120,
				Data: AData{IP: net.IPv4(192, 0, 2, 5)},
			},
		},
	}

	buf, err := Encode(m)
	require.NoError(t, err)
	require.LessOrEqual(t, len(buf), MaxDatagram)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Answers, 3)

	ptr, ok := decoded.Answers[0].Data.(PTRData)
	require.True(t, ok)
	require.Equal(t, "kitchen._http._tcp.local", ptr.Target)

	srv, ok := decoded.Answers[1].Data.(SRVData)
	require.True(t, ok)
	require.Equal(t, uint16(80), srv.Port)
	require.Equal(t, "kitchen.local", srv.Target)
	require.True(t, decoded.Answers[1].CacheFlush)

	a, ok := decoded.Answers[2].Data.(AData)
	require.True(t, ok)
	require.True(t, a.IP.Equal(net.IPv4(192, 0, 2, 5)))
}

func TestCompressionNoForwardPointer(t *testing.T) {
	m := Message{
		Answers: []Record{
			{Name: "_http._tcp.local", Type: TypePTR, TTL: 4500, Data: PTRData{Target: "alpha._http._tcp.local"}},
			{Name: "_http._tcp.local", Type: TypePTR, TTL: 4500, Data: PTRData{Target: "beta._http._tcp.local"}},
		},
	}
	buf, err := Encode(m)
	require.NoError(t, err)

	// Every compression pointer byte pair must reference an offset
	// strictly less than its own position (spec §3, §8 property 3).
	for i := 0; i < len(buf)-1; i++ {
		if buf[i]&0xC0 == 0xC0 {
			target := (int(buf[i]&0x3F) << 8) | int(buf[i+1])
			require.Less(t, target, i)
		}
	}

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Answers, 2)
	ptr0 := decoded.Answers[0].Data.(PTRData)
	ptr1 := decoded.Answers[1].Data.(PTRData)
	require.Equal(t, "alpha._http._tcp.local", ptr0.Target)
	require.Equal(t, "beta._http._tcp.local", ptr1.Target)
}

func TestDecodePointerLoopRejected(t *testing.T) {
	// Hand-craft a header followed by a name whose pointer targets itself.
	packet := make([]byte, headerLen)
	packet = EncodeHeader(packet[:0], Header{Questions: 1})
	nameOffset := len(packet)
	// Pointer points to its own offset: invalid (must be strictly less).
	packet = append(packet, byte(0xC0|(nameOffset>>8)), byte(nameOffset&0xFF))
	packet = append(packet, 0, 0, 0, 0) // type+class placeholder

	_, _, err := DecodeQuestion(packet, nameOffset)
	require.ErrorIs(t, err, ErrPointerLoop)
}

func TestDecodeTruncated(t *testing.T) {
	packet := []byte{0, 1, 2} // shorter than header
	_, err := Decode(packet)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestTXTEmptyEncodesSingleZeroLength(t *testing.T) {
	var ct compressionTable
	ct.offsets = map[string]int{}
	buf, err := TXTData{}.encode(nil, &ct)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, buf)
}

func TestRecordEqualIgnoreTTLIgnoresTTLOnly(t *testing.T) {
	a := Record{Name: "foo._http._tcp.local", Type: TypePTR, TTL: 4500,
		Data: PTRData{Target: "foo._http._tcp.local"}}
	b := a
	b.TTL = 10
	require.True(t, RecordEqualIgnoreTTL(a, b))

	c := a
	c.Data = PTRData{Target: "bar._http._tcp.local"}
	require.False(t, RecordEqualIgnoreTTL(a, c))
}

func TestTXTRoundTrip(t *testing.T) {
	items := []TxtItem{
		{Key: "version", Value: []byte("1.0"), HasValue: true},
		{Key: "flag"},
	}
	var ct compressionTable
	ct.offsets = map[string]int{}
	buf, err := TXTData{Items: items}.encode(nil, &ct)
	require.NoError(t, err)

	got := decodeTXT(buf)
	require.Len(t, got, 2)
	require.Equal(t, "version", got[0].Key)
	require.Equal(t, []byte("1.0"), got[0].Value)
	require.True(t, got[0].HasValue)
	require.Equal(t, "flag", got[1].Key)
	require.False(t, got[1].HasValue)
}
