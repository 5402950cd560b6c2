package builder

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

func TestServiceFQDNs(t *testing.T) {
	require.Equal(t, "_http._tcp.local", ServiceFQDN("_http", "_tcp"))
	require.Equal(t, "kitchen._http._tcp.local", InstanceFQDN("kitchen", "_http", "_tcp"))
	require.Equal(t, "_printer._sub._http._tcp.local", SubtypeFQDN("_printer", "_http", "_tcp"))
}

func TestReverseNameV4(t *testing.T) {
	require.Equal(t, "5.2.0.192.in-addr.arpa", ReverseName(net.IPv4(192, 0, 2, 5)))
}

func TestGoodbyeForZerosTTL(t *testing.T) {
	r := PTR("_http", "_tcp", "kitchen", defaultPTRTTL)
	g := GoodbyeFor(r)
	require.Equal(t, uint32(0), g.TTL)
	require.Equal(t, uint32(defaultPTRTTL), r.TTL)
}

func newTestStore(t *testing.T) *model.Store {
	t.Helper()
	st := model.NewStore("alpha")
	st.SetDefaultInstanceName("default-inst")
	svc := &model.Service{Instance: "kitchen", Type: "_http", Proto: "_tcp", Port: 80}
	require.NoError(t, st.AddService(svc))
	return st
}

func selfAddrs(hostname string) []net.IP {
	if hostname == model.SelfHostName {
		return []net.IP{net.IPv4(192, 0, 2, 9)}
	}
	return nil
}

func TestAnswerForPTR(t *testing.T) {
	st := newTestStore(t)
	q := wire.Question{Name: "_http._tcp.local", Type: wire.TypePTR}
	name := wire.ParseName(q.Name)

	answer, additional := AnswerFor(q, name, st, selfAddrs)
	require.Len(t, answer, 1)
	ptr, ok := answer[0].Data.(wire.PTRData)
	require.True(t, ok)
	require.Equal(t, "kitchen._http._tcp.local", ptr.Target)

	require.NotEmpty(t, additional)
}

func TestAnswerForSRV(t *testing.T) {
	st := newTestStore(t)
	q := wire.Question{Name: "kitchen._http._tcp.local", Type: wire.TypeSRV}
	name := wire.ParseName(q.Name)

	answer, additional := AnswerFor(q, name, st, selfAddrs)
	require.Len(t, answer, 1)
	srv, ok := answer[0].Data.(wire.SRVData)
	require.True(t, ok)
	require.Equal(t, uint16(80), srv.Port)
	require.Equal(t, "alpha.local", srv.Target)
	require.NotEmpty(t, additional)
}

// TestAnswerForSRVDelegatedHostGoesToAdditional is spec.md §4.2: a direct
// SRV/TXT question for a delegated-host service puts the record in
// additional rather than answer, since the responder isn't authoritative
// for the delegated host.
func TestAnswerForSRVDelegatedHostGoesToAdditional(t *testing.T) {
	st := model.NewStore("alpha")
	require.NoError(t, st.AddDelegatedHost(&model.DelegatedHost{
		Hostname: "printer.local",
		Addrs:    []net.IP{net.ParseIP("192.0.2.50")},
	}))
	svc := &model.Service{Instance: "office", Type: "_ipp", Proto: "_tcp", Hostname: "printer.local", Port: 631}
	require.NoError(t, st.AddService(svc))

	q := wire.Question{Name: "office._ipp._tcp.local", Type: wire.TypeSRV}
	name := wire.ParseName(q.Name)
	answer, additional := AnswerFor(q, name, st, selfAddrs)
	require.Empty(t, answer)
	require.NotEmpty(t, additional)
	found := false
	for _, r := range additional {
		if srv, ok := r.Data.(wire.SRVData); ok {
			require.Equal(t, uint16(631), srv.Port)
			found = true
		}
	}
	require.True(t, found)

	q = wire.Question{Name: "office._ipp._tcp.local", Type: wire.TypeTXT}
	name = wire.ParseName(q.Name)
	answer, additional = AnswerFor(q, name, st, selfAddrs)
	require.Empty(t, answer)
	require.Len(t, additional, 1)
	_, ok := additional[0].Data.(wire.TXTData)
	require.True(t, ok)
}

func TestAnswerForSDPTR(t *testing.T) {
	st := newTestStore(t)
	q := wire.Question{Name: SDPTRName, Type: wire.TypePTR}
	name := wire.ParseName(q.Name)

	answer, _ := AnswerFor(q, name, st, selfAddrs)
	require.Len(t, answer, 1)
	ptr := answer[0].Data.(wire.PTRData)
	require.Equal(t, "_http._tcp.local", ptr.Target)
}
