// Package dispatch is the incoming-packet parser and responder (spec
// §4.4): loopback suppression, known-answer suppression, building and
// scheduling answer packets, and feeding matched records to the
// collision detector and the query/browse aggregators.
//
// Grounded on micro-go-micro/util/mdns/server.go's handleQuery/
// handleQuestion (the unicast-bit-in-qclass split into a multicast and a
// unicast response, sending whichever is non-empty), generalized to also
// run collision detection and feed query/browse aggregation, which the
// teacher's responder-only server does not need.
package dispatch

import (
	"net"
	"time"

	"github.com/tinynet-io/mdnsd/internal/builder"
	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/sched"
	"github.com/tinynet-io/mdnsd/internal/statemachine"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// RecordSink receives every parsed record that matched something the
// dispatcher cares about (an active query/browse, or our own collision
// surface). internal/query implements this for the query/browse engines.
type RecordSink interface {
	OnRecord(iface string, family model.Family, name wire.Name, r wire.Record)
}

// Dispatcher parses inbound datagrams and drives responses, collision
// checks, and aggregator feeds.
type Dispatcher struct {
	Store *model.Store
	Queue *sched.Queue
	Mach  map[model.PCBKey]*statemachine.Machine

	// SelfAddrs resolves the live addresses of the owned host (or of a
	// delegated host) for loopback suppression and answer building.
	SelfAddrs builder.AddrSource

	// SuppressOwnQueries drops datagrams whose source IP equals our own
	// interface address (spec §4.4 step 1, config default true).
	SuppressOwnQueries bool
	// RespondReverseQueries gates acceptance of arpa-domain records from
	// peers (spec §4.1 "domain must be local (or arpa when reverse-lookup is
	// enabled)", config default false). Questions are not affected by it.
	RespondReverseQueries bool

	Sink RecordSink

	answerStep int
}

// sourcePort is the canonical mDNS port; datagrams from any other port
// carrying the authoritative-response flag are dropped (spec §4.4 step 2).
const sourcePort = 5353

// HandleDatagram parses one inbound UDP datagram and reacts to it per spec
// §4.4. srcPort is the originating UDP port; unicastReply, if non-nil, is
// where a unicast-preferred answer should be sent instead of the multicast
// group.
func (d *Dispatcher) HandleDatagram(packet []byte, iface string, family model.Family, srcIP net.IP, srcPort int, unicastReply *net.UDPAddr) error {
	if d.SuppressOwnQueries && d.SelfAddrs != nil && ipInList(srcIP, d.SelfAddrs(model.SelfHostName)) {
		return nil
	}

	msg, err := wire.Decode(packet)
	if err != nil {
		// Parser errors are swallowed per spec §7 ("ParseError ... parser
		// never returns this outward; it silently drops").
		return nil
	}

	if msg.Authoritative && srcPort != sourcePort {
		return nil
	}

	for _, r := range msg.Answers {
		d.dispatchRecord(iface, family, r)
	}
	for _, r := range msg.Authority {
		d.dispatchRecord(iface, family, r)
	}
	for _, r := range msg.Additional {
		d.dispatchRecord(iface, family, r)
	}

	if msg.Response || len(msg.Questions) == 0 {
		return nil
	}

	d.answerQuestions(iface, family, msg, unicastReply)
	return nil
}

func (d *Dispatcher) dispatchRecord(iface string, family model.Family, r wire.Record) {
	name := wire.ParseName(r.Name)
	if name.Invalid {
		return
	}
	if name.Domain != "local" && !(d.RespondReverseQueries && name.Domain == "arpa") {
		return
	}

	if mach, ok := d.Mach[model.PCBKey{Iface: iface, Family: family}]; ok {
		d.checkCollision(mach, iface, family, name, r)
	}

	// A peer's own PTR answer satisfies the same question our not-yet-sent
	// answer was scheduled for; drop ours rather than sending a redundant
	// duplicate (spec §4.4 "Question de-duplication" against the tx queue,
	// not just the current inbound packet's known-answer list).
	if r.Type == wire.TypePTR {
		d.Queue.Prune(iface, family, r)
	}

	if d.Sink != nil {
		d.Sink.OnRecord(iface, family, name, r)
	}
}

// checkCollision runs the A/AAAA/SRV/TXT collision rules against our own
// records while probing (spec §4.3, §4.4 step 4).
func (d *Dispatcher) checkCollision(mach *statemachine.Machine, iface string, family model.Family, name wire.Name, r wire.Record) {
	pcb := d.Store.PCB(iface, family)
	probing := pcb.State == model.StateProbe1 || pcb.State == model.StateProbe2 || pcb.State == model.StateProbe3
	if !probing {
		return
	}

	switch data := r.Data.(type) {
	case wire.AData, wire.AAAAData:
		if name.Service != "" || name.Proto != "" || name.Host != d.Store.Hostname() {
			return
		}
		ours := ourHostRecord(d.Store, family, d.SelfAddrs)
		if ours == nil {
			return
		}
		mach.HandleCollision(pcb, statemachine.CompareRecords(*ours, r), nil)
	case wire.SRVData:
		svc := findOwnedInstance(d.Store, name)
		if svc == nil {
			return
		}
		target := d.Store.Hostname()
		if svc.Hostname != model.SelfHostName {
			target = svc.Hostname
		}
		ours := wire.SRVData{Priority: svc.Priority, Weight: svc.Weight, Port: svc.Port, Target: builder.HostFQDN(target)}
		outcome := statemachine.CompareSRV(ours, data)
		mach.HandleCollision(pcb, outcome, svc)
	case wire.TXTData:
		svc := findOwnedInstance(d.Store, name)
		if svc == nil {
			return
		}
		ours := wire.Record{Data: wire.TXTData{Items: svc.TXT}}
		outcome := statemachine.CompareRecords(ours, r)
		mach.HandleCollision(pcb, outcome, svc)
	}
}

func ourHostRecord(st *model.Store, family model.Family, addrs builder.AddrSource) *wire.Record {
	if addrs == nil {
		return nil
	}
	for _, ip := range addrs(model.SelfHostName) {
		isV6 := ip.To4() == nil
		if (family == model.FamilyV6) != isV6 {
			continue
		}
		var rec wire.Record
		if isV6 {
			rec = builder.AAAA(st.Hostname(), ip, 120)
		} else {
			rec = builder.A(st.Hostname(), ip, 120)
		}
		return &rec
	}
	return nil
}

func findOwnedInstance(st *model.Store, name wire.Name) *model.Service {
	for _, svc := range st.Services() {
		if svc.Type == name.Service && svc.Proto == name.Proto && svc.InstanceName(st.DefaultInstanceName()) == name.Host {
			return svc
		}
	}
	return nil
}

func ipInList(ip net.IP, list []net.IP) bool {
	for _, x := range list {
		if x.Equal(ip) {
			return true
		}
	}
	return false
}

// answerQuestions builds answers for every question in msg, applies
// known-answer suppression, and schedules the surviving ones (spec §4.4
// steps 3/5, §4.2).
func (d *Dispatcher) answerQuestions(iface string, family model.Family, msg wire.Message, unicastReply *net.UDPAddr) {
	var sharedAnswer, sharedAdditional []wire.Record
	var uniqueAnswer, uniqueAdditional []wire.Record

	for _, q := range msg.Questions {
		name := wire.ParseName(q.Name)
		if name.Invalid {
			continue
		}
		answer, additional := builder.AnswerFor(q, name, d.Store, d.SelfAddrs)
		planned := len(answer)
		answer = suppressKnownAnswers(answer, msg.Answers)
		// A question whose answers were all suppressed gets no reply; one
		// that only ever had additional records (delegated-host SRV/TXT)
		// is still answered with those.
		if len(answer) == 0 && (planned > 0 || len(additional) == 0) {
			continue
		}
		if q.Unicast && unicastReply != nil {
			uniqueAnswer = append(uniqueAnswer, answer...)
			uniqueAdditional = append(uniqueAdditional, additional...)
		} else {
			sharedAnswer = append(sharedAnswer, answer...)
			sharedAdditional = append(sharedAdditional, additional...)
		}
	}

	now := time.Now()
	if len(uniqueAnswer) > 0 || len(uniqueAdditional) > 0 {
		d.Queue.Push(&model.TxPacket{
			Iface:  iface,
			Family: family,
			Dest:   unicastReply,
			Message: wire.Message{
				Response: true, Authoritative: true,
				Answers: uniqueAnswer, Additional: uniqueAdditional,
			},
			SendAt: now,
		})
	}
	if len(sharedAnswer) > 0 || len(sharedAdditional) > 0 {
		delay := statemachine.SharedAnswerDelay(d.answerStep)
		d.answerStep++
		d.Queue.Push(&model.TxPacket{
			Iface:  iface,
			Family: family,
			Message: wire.Message{
				Response: true, Authoritative: true,
				Answers: sharedAnswer, Additional: sharedAdditional,
			},
			SendAt: now.Add(delay),
		})
	}
}

// suppressKnownAnswers drops any planned answer already present in the
// querier's known-answer list with TTL greater than half the record's
// default TTL (spec §4.4 "Question de-duplication").
func suppressKnownAnswers(planned []wire.Record, known []wire.Record) []wire.Record {
	var out []wire.Record
	for _, p := range planned {
		suppressed := false
		for _, k := range known {
			if wire.RecordEqualIgnoreTTL(p, k) && k.TTL > p.TTL/2 {
				suppressed = true
				break
			}
		}
		if !suppressed {
			out = append(out, p)
		}
	}
	return out
}
