package mdnsd

import (
	"net"
	"time"

	"github.com/tinynet-io/mdnsd/internal/action"
	"github.com/tinynet-io/mdnsd/internal/query"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// RecordType selects which DNS-SD record(s) a Query or Browse matches
// (spec §3). RecordPTR is the usual choice: it also pulls in the SRV/TXT/
// A/AAAA records sharing the matched instance name.
type RecordType int

const (
	RecordAny RecordType = iota
	RecordPTR
	RecordSRV
	RecordTXT
	RecordA
	RecordAAAA
)

func (t RecordType) toWire() wire.RRType {
	switch t {
	case RecordPTR:
		return wire.TypePTR
	case RecordSRV:
		return wire.TypeSRV
	case RecordTXT:
		return wire.TypeTXT
	case RecordA:
		return wire.TypeA
	case RecordAAAA:
		return wire.TypeAAAA
	default:
		return wire.TypeANY
	}
}

// Result is one aggregated answer from a Query or Browse (spec §4.5/§4.6).
type Result struct {
	Iface    string
	Family   string
	Instance string
	Hostname string
	Port     uint16
	TXT      []TxtItem
	Addrs    []net.IP
	TTL      uint32
	Removed  bool
}

func fromInternalResult(r *query.Result) Result {
	txt := make([]TxtItem, len(r.TXT))
	for i, it := range r.TXT {
		txt[i] = TxtItem{Key: it.Key, Value: it.Value, HasValue: it.HasValue}
	}
	return Result{
		Iface:    r.Iface,
		Family:   r.Family.String(),
		Instance: r.Instance,
		Hostname: r.Hostname,
		Port:     r.Port,
		TXT:      txt,
		Addrs:    append([]net.IP(nil), r.Addrs...),
		TTL:      r.TTL,
		Removed:  r.Removed,
	}
}

type queryOpts struct {
	unicast bool
	timeout time.Duration
	max     int
}

// QueryOption configures a Query/QueryAsyncNew call.
type QueryOption func(*queryOpts)

// WithQueryTimeout bounds how long a one-shot query waits for answers
// before it ends itself (spec §4.5, default 3s).
func WithQueryTimeout(d time.Duration) QueryOption {
	return func(o *queryOpts) { o.timeout = d }
}

// WithQueryMax caps the number of distinct results a query collects
// before ending early (spec §4.5 `max_results`).
func WithQueryMax(n int) QueryOption {
	return func(o *queryOpts) { o.max = n }
}

// WithQueryUnicast sets the QU bit on the outgoing question, asking peers
// to reply unicast instead of to the multicast group.
func WithQueryUnicast(b bool) QueryOption {
	return func(o *queryOpts) { o.unicast = b }
}

func buildQueryOpts(opts []QueryOption) queryOpts {
	o := queryOpts{timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Query runs a synchronous one-shot search for (instance, service, proto)
// and returns whatever accumulated before its timeout elapsed (spec §4.5,
// §6 `query_sync`). instance may be "" to match any instance of the
// service.
func (s *Server) Query(instance, service, proto string, typ RecordType, opts ...QueryOption) ([]Result, error) {
	o := buildQueryOpts(opts)
	q := query.NewQuery(instance, service, proto, typ.toWire(), o.unicast, o.timeout, o.max)

	if err := s.exec.EnqueueWait(&action.Action{Kind: action.KindSearchAdd, Payload: q}); err != nil {
		return nil, newErr("Query", KindInvalidState, err)
	}

	select {
	case <-q.Done():
	case <-time.After(o.timeout + 100*time.Millisecond):
	}
	_ = s.exec.EnqueueWait(&action.Action{Kind: action.KindSearchEnd, Payload: q.ID})

	results := q.Results()
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = fromInternalResult(r)
	}
	return out, nil
}

// QueryHandle references a running asynchronous query (spec §6
// `query_async_new`/`query_async_get_results`/`query_async_delete`).
type QueryHandle struct {
	id string
	s  *Server
}

// QueryAsyncNew starts a query without blocking the caller; poll it with
// GetResults and end it with Delete.
func (s *Server) QueryAsyncNew(instance, service, proto string, typ RecordType, opts ...QueryOption) (*QueryHandle, error) {
	o := buildQueryOpts(opts)
	q := query.NewQuery(instance, service, proto, typ.toWire(), o.unicast, o.timeout, o.max)
	if err := s.exec.EnqueueWait(&action.Action{Kind: action.KindSearchAdd, Payload: q}); err != nil {
		return nil, newErr("QueryAsyncNew", KindInvalidState, err)
	}
	return &QueryHandle{id: q.ID, s: s}, nil
}

// GetResults returns the current accumulated result snapshot.
func (h *QueryHandle) GetResults() ([]Result, error) {
	h.s.mu.Lock()
	q, ok := h.s.queries[h.id]
	h.s.mu.Unlock()
	if !ok {
		return nil, newErr("GetResults", KindNotFound, nil)
	}
	results := q.Results()
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = fromInternalResult(r)
	}
	return out, nil
}

// Delete ends the query (spec §6 `query_async_delete`).
func (h *QueryHandle) Delete() error {
	return h.s.exec.EnqueueWait(&action.Action{Kind: action.KindSearchEnd, Payload: h.id})
}

// Update is one delta delivered to a Browse's notifier (spec §4.6).
type Update struct {
	Result  Result
	Removed bool
}

// BrowseHandle references a running long-lived browse subscription (spec
// §6 `browse_async_new`/`browse_async_delete`).
type BrowseHandle struct {
	id string
	s  *Server
}

// BrowseNew starts a long-lived PTR subscription for (service, proto),
// synchronously invoking notify on the executor goroutine for every
// delta. notify must not block or call back into the Server.
func (s *Server) BrowseNew(service, proto string, notify func(Update)) (*BrowseHandle, error) {
	b := query.NewBrowse(service, proto, func(u query.Update) {
		notify(Update{Result: fromInternalResult(&u.Result), Removed: u.Removed})
	})
	if err := s.exec.EnqueueWait(&action.Action{Kind: action.KindBrowseAdd, Payload: b}); err != nil {
		return nil, newErr("BrowseNew", KindInvalidState, err)
	}
	return &BrowseHandle{id: b.ID, s: s}, nil
}

// Delete ends the browse subscription (spec §6 `browse_async_delete`).
func (h *BrowseHandle) Delete() error {
	return h.s.exec.EnqueueWait(&action.Action{Kind: action.KindBrowseEnd, Payload: h.id})
}
