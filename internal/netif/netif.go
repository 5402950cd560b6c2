// Package netif is the interface-event collaborator (spec §6): it watches
// the host's network interfaces and emits ENABLE/DISABLE/ANNOUNCE events
// per (interface, family), plus an optional REVERSE_LOOKUP registration
// event carrying an interface's own address.
//
// The contract is specified, not a particular production implementation
// (spec §1); this polling implementation satisfies it the way
// maeshinshin-mdns/example/util/util.go "asks the OS" for its own address
// rather than subscribing to a netlink/IOKit event stream.
package netif

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/tinynet-io/mdnsd/internal/model"
)

// EventKind is one of the four interface-event kinds spec §6 names.
type EventKind int

const (
	EventEnable EventKind = iota
	EventDisable
	EventAnnounce
	EventReverseLookup
)

func (k EventKind) String() string {
	switch k {
	case EventEnable:
		return "ENABLE"
	case EventDisable:
		return "DISABLE"
	case EventAnnounce:
		return "ANNOUNCE"
	case EventReverseLookup:
		return "REVERSE_LOOKUP"
	default:
		return "UNKNOWN"
	}
}

// Event is one emitted interface-state transition.
type Event struct {
	Kind   EventKind
	Iface  string
	Family model.Family
	Addrs  []net.IP
}

// Handler is `register_netif(h)`'s h: invoked once per Event (spec §6).
type Handler func(Event)

// ifaceState is what Watcher last observed for one (interface, family).
type ifaceState struct {
	up    bool
	addrs []net.IP
}

// Watcher polls net.Interfaces()/net.InterfaceAddrs() on an interval and
// diffs against its last snapshot to synthesize ENABLE/DISABLE/ANNOUNCE
// events (spec §6's "interface-up/down notification source" contract,
// `register_netif`/`unregister_netif`/`netif_action`).
type Watcher struct {
	Interval time.Duration

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	state    map[model.PCBKey]ifaceState

	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a Watcher with the given poll interval (spec §6
// default "timer_tick_ms 100" governs the core's own clock; the netif
// poll period is a separate, coarser interval since interface changes are
// rare compared to probe/announce ticks).
func NewWatcher(interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		Interval: interval,
		handlers: make(map[int]Handler),
		state:    make(map[model.PCBKey]ifaceState),
	}
}

// Register adds h to the notification list (spec §6 `register_netif`)
// and returns a handle for Unregister.
func (w *Watcher) Register(h Handler) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = h
	return id
}

// Unregister removes a previously registered handler (spec §6
// `unregister_netif`).
func (w *Watcher) Unregister(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handlers, id)
}

func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	hs := make([]Handler, 0, len(w.handlers))
	for _, h := range w.handlers {
		hs = append(hs, h)
	}
	w.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Start begins polling in a background goroutine. Stop ends it.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		w.Poll()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.Poll()
			}
		}
	}()
}

// Stop ends the polling goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Poll takes one snapshot of the host's interfaces and emits any
// resulting ENABLE/DISABLE/ANNOUNCE events (spec §6). It is exported so
// callers (and tests) can drive it synchronously instead of waiting for
// the ticker.
func (w *Watcher) Poll() {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	seen := make(map[model.PCBKey]bool)
	for _, iface := range ifaces {
		up := iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0
		addrs := interfaceIPs(iface)
		v4, v6 := splitByFamily(addrs)

		seen[model.PCBKey{Iface: iface.Name, Family: model.FamilyV4}] = true
		seen[model.PCBKey{Iface: iface.Name, Family: model.FamilyV6}] = true

		w.reconcile(iface.Name, model.FamilyV4, up, v4)
		w.reconcile(iface.Name, model.FamilyV6, up, v6)
	}

	w.mu.Lock()
	var stale []model.PCBKey
	for key, st := range w.state {
		if !seen[key] && st.up {
			stale = append(stale, key)
		}
	}
	w.mu.Unlock()
	for _, key := range stale {
		w.reconcile(key.Iface, key.Family, false, nil)
	}
}

func (w *Watcher) reconcile(iface string, family model.Family, up bool, addrs []net.IP) {
	key := model.PCBKey{Iface: iface, Family: family}

	w.mu.Lock()
	prev, existed := w.state[key]
	changed := !existed || prev.up != up || !addrsEqual(prev.addrs, addrs)
	w.state[key] = ifaceState{up: up, addrs: addrs}
	w.mu.Unlock()

	if !changed {
		return
	}

	switch {
	case up && (!existed || !prev.up):
		w.emit(Event{Kind: EventEnable, Iface: iface, Family: family, Addrs: addrs})
		if len(addrs) > 0 {
			w.emit(Event{Kind: EventAnnounce, Iface: iface, Family: family, Addrs: addrs})
		}
	case !up && existed && prev.up:
		w.emit(Event{Kind: EventDisable, Iface: iface, Family: family})
	case up && existed && prev.up:
		// Address set changed on an interface that was already up: treat as
		// a re-announce (spec §4.3 "address change triggers re-announce").
		w.emit(Event{Kind: EventAnnounce, Iface: iface, Family: family, Addrs: addrs})
	}
}

// ReverseLookupFor emits a REVERSE_LOOKUP registration event carrying
// iface's own addresses, for responders that opt into
// respond_reverse_queries (spec §6).
func (w *Watcher) ReverseLookupFor(iface string) {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return
	}
	addrs := interfaceIPs(*ifc)
	w.emit(Event{Kind: EventReverseLookup, Iface: iface, Addrs: addrs})
}

func interfaceIPs(iface net.Interface) []net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, ip)
	}
	return out
}

func splitByFamily(addrs []net.IP) (v4, v6 []net.IP) {
	for _, ip := range addrs {
		if ip.To4() != nil {
			v4 = append(v4, ip)
		} else {
			v6 = append(v6, ip)
		}
	}
	return v4, v6
}

func addrsEqual(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedStrings(a)
	bs := sortedStrings(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedStrings(ips []net.IP) []string {
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = ip.String()
	}
	sort.Strings(out)
	return out
}
