package netif

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
)

func TestReconcileEmitsEnableThenAnnounce(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	w.Register(func(e Event) { events = append(events, e) })

	w.reconcile("eth0", model.FamilyV4, true, []net.IP{net.IPv4(192, 0, 2, 1)})

	require.Len(t, events, 2)
	require.Equal(t, EventEnable, events[0].Kind)
	require.Equal(t, EventAnnounce, events[1].Kind)
}

func TestReconcileEnableWithNoAddrsSkipsAnnounce(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	w.Register(func(e Event) { events = append(events, e) })

	w.reconcile("eth0", model.FamilyV4, true, nil)

	require.Len(t, events, 1)
	require.Equal(t, EventEnable, events[0].Kind)
}

func TestReconcileDisableAfterEnable(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	w.Register(func(e Event) { events = append(events, e) })

	w.reconcile("eth0", model.FamilyV4, true, []net.IP{net.IPv4(192, 0, 2, 1)})
	events = nil
	w.reconcile("eth0", model.FamilyV4, false, nil)

	require.Len(t, events, 1)
	require.Equal(t, EventDisable, events[0].Kind)
}

func TestReconcileAddrChangeReannounces(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	w.Register(func(e Event) { events = append(events, e) })

	w.reconcile("eth0", model.FamilyV4, true, []net.IP{net.IPv4(192, 0, 2, 1)})
	events = nil
	w.reconcile("eth0", model.FamilyV4, true, []net.IP{net.IPv4(192, 0, 2, 2)})

	require.Len(t, events, 1)
	require.Equal(t, EventAnnounce, events[0].Kind)
}

func TestReconcileNoChangeEmitsNothing(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	w.Register(func(e Event) { events = append(events, e) })

	addrs := []net.IP{net.IPv4(192, 0, 2, 1)}
	w.reconcile("eth0", model.FamilyV4, true, addrs)
	events = nil
	w.reconcile("eth0", model.FamilyV4, true, addrs)

	require.Empty(t, events)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	w := NewWatcher(0)
	var events []Event
	id := w.Register(func(e Event) { events = append(events, e) })
	w.Unregister(id)

	w.reconcile("eth0", model.FamilyV4, true, []net.IP{net.IPv4(192, 0, 2, 1)})
	require.Empty(t, events)
}

func TestAddrsEqualIgnoresOrder(t *testing.T) {
	a := []net.IP{net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 2)}
	b := []net.IP{net.IPv4(192, 0, 2, 2), net.IPv4(192, 0, 2, 1)}
	require.True(t, addrsEqual(a, b))
}
