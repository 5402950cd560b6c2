package query

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

func TestQueryAggregatesPTRThenSRVThenTXT(t *testing.T) {
	q := NewQuery("", "_http", "_tcp", wire.TypePTR, false, 3*time.Second, 0)

	ptrName := wire.ParseName("_http._tcp.local")
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	require.True(t, q.OnRecord("eth0", model.FamilyV4, ptrName, ptr))
	require.Equal(t, 1, q.ResultCount())

	srvName := wire.ParseName("foo._http._tcp.local")
	srv := wire.Record{Name: "foo._http._tcp.local", Type: wire.TypeSRV, TTL: 120,
		Data: wire.SRVData{Priority: 0, Weight: 0, Port: 8080, Target: "alpha.local"}}
	require.True(t, q.OnRecord("eth0", model.FamilyV4, srvName, srv))

	results := q.Results()
	require.Len(t, results, 1)
	require.Equal(t, "foo", results[0].Instance)
	require.Equal(t, uint16(8080), results[0].Port)
	require.Equal(t, "alpha.local", results[0].Hostname)

	txt := wire.Record{Name: "foo._http._tcp.local", Type: wire.TypeTXT, TTL: 120,
		Data: wire.TXTData{Items: []wire.TxtItem{{Key: "path", Value: []byte("/x"), HasValue: true}}}}
	changed := q.OnRecord("eth0", model.FamilyV4, srvName, txt)
	require.True(t, changed)
	require.Len(t, q.Results()[0].TXT, 1)

	// The A record's owner is "alpha.local" (the SRV target), a plain
	// hostname with no Service/Proto of its own — it must still resolve
	// into the same result instead of being rejected by the service
	// filter (spec §8 S3).
	addrName := wire.ParseName("alpha.local")
	a := wire.Record{Name: "alpha.local", Type: wire.TypeA, TTL: 120,
		Data: wire.AData{IP: net.IPv4(192, 0, 2, 9)}}
	require.True(t, q.OnRecord("eth0", model.FamilyV4, addrName, a))
	require.Len(t, q.Results()[0].Addrs, 1)
	require.True(t, q.Results()[0].Addrs[0].Equal(net.IPv4(192, 0, 2, 9)))

	// Re-delivering the identical SRV record changes nothing.
	require.False(t, q.OnRecord("eth0", model.FamilyV4, srvName, srv))
}

func TestQueryIgnoresNonMatchingService(t *testing.T) {
	q := NewQuery("", "_http", "_tcp", wire.TypePTR, false, time.Second, 0)
	name := wire.ParseName("_ftp._tcp.local")
	r := wire.Record{Name: "_ftp._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "bar._ftp._tcp.local"}}
	require.False(t, q.OnRecord("eth0", model.FamilyV4, name, r))
	require.Equal(t, 0, q.ResultCount())
}

func TestQueryGoodbyeMarksRemoved(t *testing.T) {
	q := NewQuery("", "_http", "_tcp", wire.TypePTR, false, time.Second, 0)
	name := wire.ParseName("_http._tcp.local")
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	q.OnRecord("eth0", model.FamilyV4, name, ptr)

	bye := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 0,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	require.True(t, q.OnRecord("eth0", model.FamilyV4, name, bye))
	require.True(t, q.Results()[0].Removed)
}

func TestQueryMaxReachedAndTimeout(t *testing.T) {
	q := NewQuery("", "_http", "_tcp", wire.TypePTR, false, 10*time.Millisecond, 1)
	name := wire.ParseName("_http._tcp.local")
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	q.OnRecord("eth0", model.FamilyV4, name, ptr)
	require.True(t, q.MaxReached())

	now := time.Now()
	q.Start(now)
	require.False(t, q.TimedOut(now))
	require.True(t, q.TimedOut(now.Add(20*time.Millisecond)))
}

func TestQueryEndClosesDone(t *testing.T) {
	q := NewQuery("", "_http", "_tcp", wire.TypePTR, false, time.Second, 0)
	q.End()
	select {
	case <-q.Done():
	default:
		t.Fatal("Done channel should be closed after End")
	}
	require.Equal(t, StateOff, q.State())
}
