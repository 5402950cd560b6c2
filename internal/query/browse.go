package query

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// Update is one delta delivered to a browse's notifier: a result that
// newly appeared, changed, or was removed via a peer goodbye (spec §4.6
// "Browse updates are delta, not full resync").
type Update struct {
	Result  Result
	Removed bool
}

// Browse is a long-lived PTR subscription (spec §3, §4.6). Unlike Query,
// it never times out on its own; the caller stops it explicitly.
type Browse struct {
	ID      string
	Service string
	Proto   string

	mu      sync.Mutex
	state   State
	results map[string]*Result
	notify  func(Update)
}

// NewBrowse creates an INIT-state browse subscription (spec §6
// `browse_async_new`). notify, if non-nil, is invoked synchronously from
// OnRecord for every delta; callers wanting async delivery should enqueue
// from inside it rather than block the dispatch path.
func NewBrowse(service, proto string, notify func(Update)) *Browse {
	return &Browse{
		ID:      uuid.NewString(),
		Service: service,
		Proto:   proto,
		state:   StateInit,
		results: make(map[string]*Result),
		notify:  notify,
	}
}

// Start marks the browse RUNNING (spec §4.6 ADD transition).
func (b *Browse) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateRunning
}

// End stops delivering updates (spec §4.6 END transition).
func (b *Browse) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateOff
}

func (b *Browse) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// matches mirrors Query.Matches for the PTR/SRV/TXT/A/AAAA family, scoped
// to this browse's service/proto.
func (b *Browse) matches(name wire.Name, r wire.Record) bool {
	switch r.Type {
	case wire.TypeA, wire.TypeAAAA:
		// An address record's owner name never carries a Service/Proto
		// (wire.ParseName clears them for a plain hostname), so it can't
		// be filtered here; onAddress resolves it against an
		// already-known SRV target instead.
		return true
	case wire.TypePTR, wire.TypeSRV, wire.TypeTXT:
	default:
		return false
	}
	if b.Service != "" && name.Service != b.Service {
		return false
	}
	if b.Proto != "" && name.Proto != b.Proto {
		return false
	}
	return true
}

// OnRecord implements dispatch.RecordSink: it folds r into the matching
// result and, if anything observable changed, synchronously delivers an
// Update (spec §4.6 "Delta delivery rules").
func (b *Browse) OnRecord(iface string, family model.Family, name wire.Name, r wire.Record) {
	if !b.matches(name, r) {
		return
	}

	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}

	if r.Type == wire.TypeA || r.Type == wire.TypeAAAA {
		b.onAddress(iface, family, name, r)
		return
	}

	instance := name.Host
	if r.Type == wire.TypePTR {
		if ptr, ok := r.Data.(wire.PTRData); ok {
			instance = wire.ParseName(ptr.Target).Host
		}
	}
	if instance == "" {
		b.mu.Unlock()
		return
	}

	k := iface + "|" + family.String() + "|" + instance
	res, ok := b.results[k]
	if !ok {
		res = &Result{Iface: iface, Family: family, Instance: instance}
		b.results[k] = res
	}

	if r.TTL == 0 {
		wasRemoved := res.Removed
		res.Removed = true
		delete(b.results, k)
		notify, snapshot := b.notify, *res
		b.mu.Unlock()
		if notify != nil && !wasRemoved {
			notify(Update{Result: snapshot, Removed: true})
		}
		return
	}

	var changed bool
	switch d := r.Data.(type) {
	case wire.SRVData:
		changed = res.mergeIn(d.Target, d.Port, nil, nil, r.TTL, true, false, false)
	case wire.TXTData:
		changed = res.mergeIn("", 0, d.Items, nil, r.TTL, false, true, false)
	default:
		changed = res.mergeIn("", 0, nil, nil, r.TTL, false, false, false)
	}
	notify, snapshot := b.notify, *res
	b.mu.Unlock()
	if changed && notify != nil {
		notify(Update{Result: snapshot})
	}
}

// onAddress folds an A/AAAA record into whichever tracked result has
// already resolved to this owner name via a prior SRV target (spec §8
// S3/S6). b.mu is held on entry and released before returning.
func (b *Browse) onAddress(iface string, family model.Family, name wire.Name, r wire.Record) {
	owner := name.String()
	var ip net.IP
	switch d := r.Data.(type) {
	case wire.AData:
		ip = d.IP
	case wire.AAAAData:
		ip = d.IP
	}

	var res *Result
	for _, cand := range b.results {
		if cand.Iface == iface && cand.Family == family && cand.Hostname == owner {
			res = cand
			break
		}
	}
	if res == nil {
		b.mu.Unlock()
		return
	}

	if r.TTL == 0 {
		wasRemoved := res.Removed
		res.Removed = true
		notify, snapshot := b.notify, *res
		b.mu.Unlock()
		if notify != nil && !wasRemoved {
			notify(Update{Result: snapshot, Removed: true})
		}
		return
	}

	changed := res.mergeIn("", 0, nil, []net.IP{ip}, r.TTL, false, false, true)
	notify, snapshot := b.notify, *res
	b.mu.Unlock()
	if changed && notify != nil {
		notify(Update{Result: snapshot})
	}
}
