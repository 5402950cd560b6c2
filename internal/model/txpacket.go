package model

import (
	"net"
	"time"

	"github.com/tinynet-io/mdnsd/internal/wire"
)

// TxPacket is one outbound packet waiting in the tx queue (spec §3, §4.7).
// Packets are delayed (shared-answer suppression, probe/announce timing)
// before being handed to the transport, so the queue entry carries its own
// send-at deadline rather than being sent immediately on construction.
type TxPacket struct {
	Iface  string
	Family Family

	// Dest is nil for a multicast send on the group address; set for a
	// unicast reply (spec §4.4 "QU bit" / legacy unicast query reply).
	Dest *net.UDPAddr

	Message wire.Message

	SendAt time.Time

	// Queued is true once the packet has been handed to the scheduler;
	// used to avoid double-insertion when coalescing (spec §4.7).
	Queued bool

	// OnSent, if set, is invoked by the TX_HANDLE action once the packet
	// has actually been written to the transport. The responder state
	// machine uses this to advance a PCB to its next probe/announce step
	// without the scheduler needing to know what kind of packet it just
	// flushed (spec §4.7 "run scheduler" driving the state machine).
	OnSent func()
}
