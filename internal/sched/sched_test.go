package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

func TestQueueOrdersBySendAt(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)

	late := &model.TxPacket{SendAt: base.Add(500 * time.Millisecond)}
	early := &model.TxPacket{SendAt: base.Add(100 * time.Millisecond)}
	mid := &model.TxPacket{SendAt: base.Add(250 * time.Millisecond)}

	q.Push(late)
	q.Push(early)
	q.Push(mid)

	due := q.Due(base.Add(time.Second))
	require.Equal(t, []*model.TxPacket{early, mid, late}, due)
	require.Equal(t, 0, q.Len())
}

func TestQueueDueOnlyPastDeadline(t *testing.T) {
	q := NewQueue()
	base := time.Unix(2000, 0)
	pkt := &model.TxPacket{SendAt: base.Add(time.Second)}
	q.Push(pkt)

	require.Empty(t, q.Due(base))
	due := q.Due(base.Add(time.Second))
	require.Equal(t, []*model.TxPacket{pkt}, due)
	require.True(t, pkt.Queued)
}

func TestQueueFIFOOnEqualSendAt(t *testing.T) {
	q := NewQueue()
	at := time.Unix(3000, 0)
	a := &model.TxPacket{SendAt: at}
	b := &model.TxPacket{SendAt: at}
	q.Push(a)
	q.Push(b)

	due := q.Due(at)
	require.Equal(t, []*model.TxPacket{a, b}, due)
}

func TestQueuePruneDropsRedundantAnswer(t *testing.T) {
	q := NewQueue()
	at := time.Unix(5000, 0)
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "kitchen._http._tcp.local"}}
	pkt := &model.TxPacket{Iface: "eth0", Family: model.FamilyV4, SendAt: at,
		Message: wire.Message{Answers: []wire.Record{ptr}}}
	q.Push(pkt)
	require.Equal(t, 1, q.Len())

	// A peer's own copy of the same PTR, with a TTL comfortably above half
	// of ours, makes our scheduled answer redundant.
	peerPTR := ptr
	peerPTR.TTL = 4500
	q.Prune("eth0", model.FamilyV4, peerPTR)
	require.Equal(t, 0, q.Len())
}

func TestQueuePruneLeavesOtherRecordsAndInterfaces(t *testing.T) {
	q := NewQueue()
	at := time.Unix(5100, 0)
	ptr := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "kitchen._http._tcp.local"}}
	other := wire.Record{Name: "_http._tcp.local", Type: wire.TypePTR, TTL: 4500,
		Data: wire.PTRData{Target: "lounge._http._tcp.local"}}
	pkt := &model.TxPacket{Iface: "eth0", Family: model.FamilyV4, SendAt: at,
		Message: wire.Message{Answers: []wire.Record{ptr, other}}}
	onOtherIface := &model.TxPacket{Iface: "wlan0", Family: model.FamilyV4, SendAt: at,
		Message: wire.Message{Answers: []wire.Record{ptr}}}
	q.Push(pkt)
	q.Push(onOtherIface)

	q.Prune("eth0", model.FamilyV4, ptr)
	require.Equal(t, 2, q.Len())

	due := q.Due(at)
	require.Len(t, due, 2)
	for _, p := range due {
		if p.Iface == "eth0" {
			require.Equal(t, []wire.Record{other}, p.Message.Answers)
		} else {
			require.Equal(t, []wire.Record{ptr}, p.Message.Answers)
		}
	}
}

func TestQueuePeek(t *testing.T) {
	q := NewQueue()
	_, ok := q.Peek()
	require.False(t, ok)

	at := time.Unix(4000, 0)
	q.Push(&model.TxPacket{SendAt: at})
	got, ok := q.Peek()
	require.True(t, ok)
	require.True(t, got.Equal(at))
}
