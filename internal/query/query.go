// Package query implements the one-shot query engine (spec §4.5) and the
// long-lived browse engine (spec §4.6): result aggregation across
// fragmented PTR/SRV/TXT/A/AAAA records, deduplication, and lifecycle.
//
// No direct teacher precedent — the teacher (maeshinshin-mdns) is a
// responder with no client/resolver side. Grounded on original_source
// mdns.c's mdns_search_once_t / mdns_browse_t result-merge rules (dedupe
// by instance, keep the minimum TTL across contributing records) and, for
// package shape only, joshuafuller-beacon/querier's naming convention of a
// separate resolve-side package (its actual implementation files are
// absent from the pack, so only the name is borrowed).
package query

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// State is a query's lifecycle position (spec §3).
type State int

const (
	StateInit State = iota
	StateRunning
	StateOff
)

// Result is one aggregated answer: a PTR's instance filled in over time by
// subsequent SRV/TXT/A/AAAA records bearing the same instance name, or (for
// an address-only query) one IP list keyed by interface/family (spec
// §4.5).
type Result struct {
	Iface    string
	Family   model.Family
	Instance string
	Hostname string
	Port     uint16
	TXT      []wire.TxtItem
	Addrs    []net.IP
	TTL      uint32

	// Removed is set once a peer goodbye (TTL=0) retires this result
	// (spec §4.6).
	Removed bool
}

// mergeIn folds a newly-observed fact into r, returning true if anything
// actually changed (spec §8 property 9: "every result delivered ... has at
// least one field changed").
func (r *Result) mergeIn(hostname string, port uint16, txt []wire.TxtItem, addrs []net.IP, ttl uint32, hasHostPort, hasTXT, hasAddrs bool) bool {
	changed := false
	if hasHostPort && (r.Hostname != hostname || r.Port != port) {
		r.Hostname, r.Port = hostname, port
		changed = true
	}
	if hasTXT && !txtEqual(r.TXT, txt) {
		r.TXT = txt
		changed = true
	}
	if hasAddrs {
		for _, a := range addrs {
			if !ipListHas(r.Addrs, a) {
				r.Addrs = append(r.Addrs, a)
				changed = true
			}
		}
	}
	if ttl < r.TTL || r.TTL == 0 {
		if r.TTL != ttl {
			changed = true
		}
		r.TTL = ttl
	}
	return changed
}

func txtEqual(a, b []wire.TxtItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].HasValue != b[i].HasValue || string(a[i].Value) != string(b[i].Value) {
			return false
		}
	}
	return true
}

func ipListHas(list []net.IP, ip net.IP) bool {
	for _, x := range list {
		if x.Equal(ip) {
			return true
		}
	}
	return false
}

// Query is a one-shot search (spec §3, §4.5).
type Query struct {
	ID       string
	Instance string
	Service  string
	Proto    string
	Type     wire.RRType
	Unicast  bool
	Timeout  time.Duration
	Max      int

	mu        sync.Mutex
	state     State
	startedAt time.Time
	results   []*Result
	done      chan struct{}
}

// NewQuery creates an INIT-state query with a fresh handle ID (spec §6
// `query_async_new`).
func NewQuery(instance, service, proto string, typ wire.RRType, unicast bool, timeout time.Duration, max int) *Query {
	return &Query{
		ID:       uuid.NewString(),
		Instance: instance,
		Service:  service,
		Proto:    proto,
		Type:     typ,
		Unicast:  unicast,
		Timeout:  timeout,
		Max:      max,
		state:    StateInit,
		done:     make(chan struct{}),
	}
}

// Matches reports whether an incoming record (already identified by its
// parsed name) is relevant to this query (spec §4.5 "Matching"): a PTR
// query matches SRV/TXT/A/AAAA on the same instance as well as PTR, and
// the service/proto/instance filters must agree.
func (q *Query) Matches(name wire.Name, r wire.Record) bool {
	if r.Type == wire.TypeA || r.Type == wire.TypeAAAA {
		// A plain hostname's owner name never carries a Service/Proto
		// (wire.ParseName clears them for a 2-label name), so an address
		// record can't be filtered by this query's service/proto/instance
		// the way PTR/SRV/TXT can. Whether it actually belongs to this
		// query is resolved in OnRecord against an already-known SRV
		// target instead.
		return q.Type == wire.TypeANY || q.Type == wire.TypePTR || q.Type == r.Type
	}
	if q.Service != "" && name.Service != q.Service {
		return false
	}
	if q.Proto != "" && name.Proto != q.Proto {
		return false
	}
	if q.Instance != "" && name.Host != q.Instance {
		return false
	}
	switch q.Type {
	case wire.TypeANY:
		return true
	case wire.TypePTR:
		return r.Type == wire.TypePTR || r.Type == wire.TypeSRV || r.Type == wire.TypeTXT
	default:
		return r.Type == q.Type
	}
}

// OnRecord feeds one matched record into the result set, aggregating by
// instance (spec §4.5 "Result aggregation rules"). Returns true if the
// result set changed and the query should be considered for completion.
func (q *Query) OnRecord(iface string, family model.Family, name wire.Name, r wire.Record) bool {
	if !q.Matches(name, r) {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateOff {
		return false
	}

	if r.Type == wire.TypeA || r.Type == wire.TypeAAAA {
		return q.onAddress(iface, family, name, r)
	}

	instance := name.Host
	if r.Type == wire.TypePTR {
		if ptr, ok := r.Data.(wire.PTRData); ok {
			instance = wire.ParseName(ptr.Target).Host
		}
	}

	res := q.findOrCreate(iface, family, instance)
	if r.TTL == 0 {
		res.Removed = true
		return true
	}

	switch d := r.Data.(type) {
	case wire.SRVData:
		return res.mergeIn(d.Target, d.Port, nil, nil, r.TTL, true, false, false)
	case wire.TXTData:
		return res.mergeIn("", 0, d.Items, nil, r.TTL, false, true, false)
	default:
		return res.mergeIn("", 0, nil, nil, r.TTL, false, false, false)
	}
}

// onAddress folds an A/AAAA record into whichever result has already
// resolved to this owner name via a prior SRV target, rather than
// re-deriving a service-scoped instance from the address record's own
// owner name (spec §8 S3/S6: PTR -> SRV -> A/AAAA address aggregation). A
// direct address query (Type A or AAAA, not aggregating under a PTR) has
// no SRV target to resolve against, so it falls back to treating the
// owner name's host label as the instance.
func (q *Query) onAddress(iface string, family model.Family, name wire.Name, r wire.Record) bool {
	owner := name.String()
	var ip net.IP
	switch d := r.Data.(type) {
	case wire.AData:
		ip = d.IP
	case wire.AAAAData:
		ip = d.IP
	}

	for _, res := range q.results {
		if res.Iface != iface || res.Family != family || res.Hostname != owner {
			continue
		}
		if r.TTL == 0 {
			res.Removed = true
			return true
		}
		return res.mergeIn("", 0, nil, []net.IP{ip}, r.TTL, false, false, true)
	}

	if q.Type != wire.TypeA && q.Type != wire.TypeAAAA {
		return false
	}
	res := q.findOrCreate(iface, family, name.Host)
	if r.TTL == 0 {
		res.Removed = true
		return true
	}
	return res.mergeIn("", 0, nil, []net.IP{ip}, r.TTL, false, false, true)
}

func (q *Query) findOrCreate(iface string, family model.Family, instance string) *Result {
	for _, r := range q.results {
		if r.Iface == iface && r.Family == family && r.Instance == instance {
			return r
		}
	}
	r := &Result{Iface: iface, Family: family, Instance: instance}
	q.results = append(q.results, r)
	return r
}

// Results returns a snapshot of accumulated results.
func (q *Query) Results() []*Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Result, len(q.results))
	copy(out, q.results)
	return out
}

// ResultCount reports |results| (spec §8 property 8).
func (q *Query) ResultCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}

// MaxReached reports whether the max-results cap has been hit.
func (q *Query) MaxReached() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Max > 0 && len(q.results) >= q.Max
}

// Start marks the query RUNNING and records its send time (spec §4.5 ADD
// / timer-tick SEND transition).
func (q *Query) Start(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = StateRunning
	q.startedAt = now
}

// TimedOut reports whether now is past the query's deadline.
func (q *Query) TimedOut(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.startedAt.IsZero() {
		return false
	}
	return now.Sub(q.startedAt) >= q.Timeout
}

// End transitions the query to OFF and signals Done (spec §4.5 END:
// "remove from active list, invoke notifier, signal the done semaphore").
func (q *Query) End() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateOff {
		return
	}
	q.state = StateOff
	close(q.done)
}

// Done returns a channel closed once the query ends.
func (q *Query) Done() <-chan struct{} { return q.done }

// State returns the current lifecycle state.
func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}
