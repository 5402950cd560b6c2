// Package sched is the time-ordered transmit queue and scheduler sweep
// (spec §4.7): a strictly send-at-ordered list of pending packets, swept
// once per timer tick to hand due packets to the action loop as TX_HANDLE
// actions. Grounded on micro-go-micro/util/mdns/server.go's probe/announce
// timer pattern, generalized from a single hard-coded timer per server into
// a data-driven priority queue so probe, announce, and query-send packets
// all share one scheduling mechanism.
package sched

import (
	"container/heap"
	"sync"
	"time"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// Queue is a time-ordered, send-at-ascending queue of TxPacket entries
// (spec §3 invariant: "strictly ordered by send-at time ascending").
type Queue struct {
	mu sync.Mutex
	pq pqueue
}

// NewQueue creates an empty tx queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.pq)
	return q
}

// Push schedules pkt for transmission at pkt.SendAt.
func (q *Queue) Push(pkt *model.TxPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pq, pkt)
}

// Due pops and returns every packet whose SendAt is <= now, in send-at
// order, marking each Queued so a concurrent Push of the same pointer
// can't double-enqueue it (spec §4.7).
func (q *Queue) Due(now time.Time) []*model.TxPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*model.TxPacket
	for q.pq.Len() > 0 && !q.pq[0].SendAt.After(now) {
		pkt := heap.Pop(&q.pq).(*model.TxPacket)
		pkt.Queued = true
		due = append(due, pkt)
	}
	return due
}

// Prune drops r from any not-yet-due packet queued for (iface, family),
// used when a peer's own answer for the same record — carrying a TTL
// high enough to satisfy the querier — arrives before our scheduled copy
// went out, making ours redundant (spec §4.4 "Question de-duplication"
// extended to the tx queue, not just the inbound packet's known-answer
// list). A packet left with no answers and no additional records after
// pruning is dropped entirely.
func (q *Queue) Prune(iface string, family model.Family, r wire.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pq[:0]
	for _, pkt := range q.pq {
		if pkt.Iface == iface && pkt.Family == family {
			pkt.Message.Answers = dropRecord(pkt.Message.Answers, r)
			pkt.Message.Additional = dropRecord(pkt.Message.Additional, r)
			if len(pkt.Message.Answers) == 0 && len(pkt.Message.Additional) == 0 {
				clearSeq(pkt)
				continue
			}
		}
		kept = append(kept, pkt)
	}
	q.pq = kept
	heap.Init(&q.pq)
}

// dropRecord removes any entry matching r's name/type/rdata when r's TTL is
// greater than half of the entry's own TTL, the same threshold
// suppressKnownAnswers applies against an inbound packet's known-answer
// list (spec §4.4).
func dropRecord(records []wire.Record, r wire.Record) []wire.Record {
	var out []wire.Record
	for _, rec := range records {
		if wire.RecordEqualIgnoreTTL(rec, r) && r.TTL > rec.TTL/2 {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Len reports the number of pending packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

// Peek returns the earliest pending send-at time, and false if empty.
func (q *Queue) Peek() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pq.Len() == 0 {
		return time.Time{}, false
	}
	return q.pq[0].SendAt, true
}

// pqueue implements container/heap.Interface ordered by SendAt ascending,
// FIFO among equal send-at times (spec §5 "packets with equal send_at are
// FIFO") via a monotonically increasing sequence tiebreaker.
type pqueue []*model.TxPacket

func (p pqueue) Len() int { return len(p) }
func (p pqueue) Less(i, j int) bool {
	if p[i].SendAt.Equal(p[j].SendAt) {
		return seqOf(p[i]) < seqOf(p[j])
	}
	return p[i].SendAt.Before(p[j].SendAt)
}
func (p pqueue) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *pqueue) Push(x any) {
	pkt := x.(*model.TxPacket)
	assignSeq(pkt)
	*p = append(*p, pkt)
}

func (p *pqueue) Pop() any {
	old := *p
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	clearSeq(item)
	return item
}

var (
	seqMu  sync.Mutex
	seqNo  uint64
	seqTag = map[*model.TxPacket]uint64{}
)

func assignSeq(pkt *model.TxPacket) {
	seqMu.Lock()
	defer seqMu.Unlock()
	seqNo++
	seqTag[pkt] = seqNo
}

func seqOf(pkt *model.TxPacket) uint64 {
	seqMu.Lock()
	defer seqMu.Unlock()
	return seqTag[pkt]
}

func clearSeq(pkt *model.TxPacket) {
	seqMu.Lock()
	defer seqMu.Unlock()
	delete(seqTag, pkt)
}
