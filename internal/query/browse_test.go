package query

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// TestBrowseUpdateThenRemove is spec.md §8 scenario S6.
func TestBrowseUpdateThenRemove(t *testing.T) {
	var updates []Update
	b := NewBrowse("_http", "_tcp", func(u Update) {
		updates = append(updates, u)
	})
	b.Start()

	ptrName := wire.ParseName("_http._tcp.local")
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	b.OnRecord("eth0", model.FamilyV4, ptrName, ptr)
	require.Len(t, updates, 1)
	require.False(t, updates[0].Removed)
	require.Equal(t, "foo", updates[0].Result.Instance)

	srvName := wire.ParseName("foo._http._tcp.local")
	srv := wire.Record{Name: "foo._http._tcp.local", Type: wire.TypeSRV, TTL: 120,
		Data: wire.SRVData{Port: 8080, Target: "alpha.local"}}
	b.OnRecord("eth0", model.FamilyV4, srvName, srv)
	require.Len(t, updates, 2)
	require.Equal(t, uint16(8080), updates[1].Result.Port)

	// The A record's owner is "alpha.local" (the SRV target), a plain
	// hostname with no Service/Proto of its own — it must still resolve
	// into the "foo" result instead of being rejected by the service
	// filter (spec §8 S6).
	addrName := wire.ParseName("alpha.local")
	a := wire.Record{Name: "alpha.local", Type: wire.TypeA, TTL: 120,
		Data: wire.AData{IP: net.IPv4(192, 0, 2, 9)}}
	b.OnRecord("eth0", model.FamilyV4, addrName, a)
	require.Len(t, updates, 3)
	require.Len(t, updates[2].Result.Addrs, 1)
	require.True(t, updates[2].Result.Addrs[0].Equal(net.IPv4(192, 0, 2, 9)))

	bye := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 0,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	b.OnRecord("eth0", model.FamilyV4, ptrName, bye)
	require.Len(t, updates, 4)
	require.True(t, updates[3].Removed)
	require.Equal(t, "foo", updates[3].Result.Instance)
}

func TestBrowseIgnoresBeforeStart(t *testing.T) {
	var updates []Update
	b := NewBrowse("_http", "_tcp", func(u Update) { updates = append(updates, u) })

	ptrName := wire.ParseName("_http._tcp.local")
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	b.OnRecord("eth0", model.FamilyV4, ptrName, ptr)
	require.Empty(t, updates)
}

func TestBrowseFiltersOtherServices(t *testing.T) {
	var updates []Update
	b := NewBrowse("_http", "_tcp", func(u Update) { updates = append(updates, u) })
	b.Start()

	name := wire.ParseName("_ipp._tcp.local")
	r := wire.Record{Name: "_ipp._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "printer._ipp._tcp.local"}}
	b.OnRecord("eth0", model.FamilyV4, name, r)
	require.Empty(t, updates)
}

func TestBrowseEndStopsDelivery(t *testing.T) {
	var updates []Update
	b := NewBrowse("_http", "_tcp", func(u Update) { updates = append(updates, u) })
	b.Start()
	b.End()

	name := wire.ParseName("_http._tcp.local")
	r := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "foo._http._tcp.local"}}
	b.OnRecord("eth0", model.FamilyV4, name, r)
	require.Empty(t, updates)
	require.Equal(t, StateOff, b.State())
}
