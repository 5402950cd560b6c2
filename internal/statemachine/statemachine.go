package statemachine

import (
	"net"
	"time"

	"github.com/tinynet-io/mdnsd/internal/builder"
	"github.com/tinynet-io/mdnsd/internal/clock"
	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/sched"
	"github.com/tinynet-io/mdnsd/internal/wire"
	"github.com/tinynet-io/mdnsd/internal/xrand"
)

var (
	mdnsGroupV4 = net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
	mdnsGroupV6 = net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// Machine drives the probe/announce/running lifecycle of one PCB (spec
// §4.3). One Machine exists per (interface, family) pair.
type Machine struct {
	Store *model.Store
	Clock clock.Source
	Rand  xrand.Source
	Queue *sched.Queue

	// Addrs resolves the interface's own addresses for building the A/AAAA
	// records that go out with an announcement.
	Addrs func(iface string) []net.IP

	// Log, if set, is called on every state transition (spec's ambient
	// logging stack, see internal/logx).
	Log func(pcb *model.PCB, from, to model.State)
}

func (m *Machine) groupAddr(family model.Family) net.UDPAddr {
	if family == model.FamilyV6 {
		return mdnsGroupV6
	}
	return mdnsGroupV4
}

func (m *Machine) transition(pcb *model.PCB, to model.State) {
	from := pcb.State
	pcb.State = to
	if m.Log != nil {
		m.Log(pcb, from, to)
	}
}

// Enable moves a PCB from OFF to INIT and schedules the first probe (spec
// §4.3 "OFF --(enable)--> INIT --(init probe)--> PROBE_1").
func (m *Machine) Enable(iface string, family model.Family) *model.PCB {
	pcb := m.Store.PCB(iface, family)
	if pcb.State != model.StateOff {
		return pcb
	}
	m.transition(pcb, model.StateInit)
	m.scheduleProbe(pcb, InitialProbeDelay(m.Rand, pcb.FailedProbes))
	return pcb
}

// AddService merges svc into the PCB's in-flight probe set, or starts a
// fresh probe round if the PCB is already RUNNING (spec §3 "RUNNING + new
// services --> PROBE_1 (merged with existing probe set)"; SPEC_FULL "probe
// coalescing": a service added while a probe is in flight joins the same
// round instead of starting a second one). A nil svc adds nothing to the
// probe set but still restarts probing on a RUNNING PCB.
func (m *Machine) AddService(iface string, family model.Family, svc *model.Service) {
	pcb := m.Store.PCB(iface, family)
	if svc != nil {
		pcb.ProbeServices = append(pcb.ProbeServices, svc)
	}

	switch {
	case pcb.State == model.StateRunning:
		m.transition(pcb, model.StateProbe1)
		m.scheduleProbe(pcb, InitialProbeDelay(m.Rand, pcb.FailedProbes))
	case pcb.State == model.StateOff:
		m.transition(pcb, model.StateInit)
		m.scheduleProbe(pcb, InitialProbeDelay(m.Rand, pcb.FailedProbes))
	default:
		// Already probing or announcing: the service rides along with the
		// in-flight round, nothing further to schedule.
	}
}

func (m *Machine) scheduleProbe(pcb *model.PCB, delay time.Duration) {
	m.transition(pcb, model.StateProbe1)
	m.enqueueProbePacket(pcb, delay)
}

func (m *Machine) enqueueProbePacket(pcb *model.PCB, delay time.Duration) {
	q := probeQuestions(pcb, m.Store)
	msg := wire.Message{Questions: q}
	dst := m.groupAddr(pcb.Key.Family)
	m.Queue.Push(&model.TxPacket{
		Iface:   pcb.Key.Iface,
		Family:  pcb.Key.Family,
		Dest:    &dst,
		Message: msg,
		SendAt:  m.Clock.Now().Add(delay),
		OnSent:  func() { m.AdvanceProbe(pcb) },
	})
}

// probeQuestions builds the ANY questions for the PCB's owned hostname and
// every service currently in its probe set (spec §4.3, §4.2 "ANY ...
// treated as probe target").
func probeQuestions(pcb *model.PCB, st *model.Store) []wire.Question {
	var qs []wire.Question
	qs = append(qs, wire.Question{Name: builder.HostFQDN(st.Hostname()), Type: wire.TypeANY})
	for _, svc := range pcb.ProbeServices {
		inst := svc.InstanceName(st.DefaultInstanceName())
		qs = append(qs, wire.Question{Name: builder.InstanceFQDN(inst, svc.Type, svc.Proto), Type: wire.TypeANY})
	}
	return qs
}

// AdvanceProbe is called by the scheduler (via TX_HANDLE) when a scheduled
// probe packet for pcb has just been transmitted. It advances PROBE_1 ->
// PROBE_2 -> PROBE_3 -> ANNOUNCE_1, rescheduling the next transmission.
func (m *Machine) AdvanceProbe(pcb *model.PCB) {
	switch pcb.State {
	case model.StateProbe1:
		m.transition(pcb, model.StateProbe2)
		m.enqueueProbePacket(pcb, ProbeInterval)
	case model.StateProbe2:
		m.transition(pcb, model.StateProbe3)
		m.enqueueProbePacket(pcb, ProbeInterval)
	case model.StateProbe3:
		pcb.FailedProbes = 0
		m.transition(pcb, model.StateAnnounce1)
		m.enqueueAnnouncePacket(pcb, ProbeInterval)
	}
}

func (m *Machine) enqueueAnnouncePacket(pcb *model.PCB, delay time.Duration) {
	answers := m.announceRecords(pcb)
	msg := wire.Message{Response: true, Authoritative: true, Answers: answers}
	dst := m.groupAddr(pcb.Key.Family)
	m.Queue.Push(&model.TxPacket{
		Iface:   pcb.Key.Iface,
		Family:  pcb.Key.Family,
		Dest:    &dst,
		Message: msg,
		SendAt:  m.Clock.Now().Add(delay),
		OnSent:  func() { m.AdvanceAnnounce(pcb) },
	})
}

func (m *Machine) announceRecords(pcb *model.PCB) []wire.Record {
	var out []wire.Record
	hostname := m.Store.Hostname()
	if m.Addrs != nil {
		out = append(out, builder.AddressRecords(hostname, m.Addrs(pcb.Key.Iface), 120)...)
	}
	for _, svc := range pcb.ProbeServices {
		inst := svc.InstanceName(m.Store.DefaultInstanceName())
		target := hostname
		if svc.Hostname != model.SelfHostName {
			target = svc.Hostname
		}
		ptr, subPTRs, srv, txt := builder.ServiceRecords(svc, inst, builder.HostFQDN(target))
		out = append(out, ptr)
		out = append(out, subPTRs...)
		out = append(out, srv, txt)
	}
	return out
}

// AdvanceAnnounce advances ANNOUNCE_1 -> ANNOUNCE_2 -> ANNOUNCE_3 ->
// RUNNING.
func (m *Machine) AdvanceAnnounce(pcb *model.PCB) {
	switch pcb.State {
	case model.StateAnnounce1:
		m.transition(pcb, model.StateAnnounce2)
		m.enqueueAnnouncePacket(pcb, AnnounceInterval)
	case model.StateAnnounce2:
		m.transition(pcb, model.StateAnnounce3)
		m.enqueueAnnouncePacket(pcb, AnnounceInterval)
	case model.StateAnnounce3:
		m.transition(pcb, model.StateRunning)
	}
}

// Goodbye builds and enqueues an immediate TTL=0 packet for svc's PTR
// (spec §3 "removal emits a goodbye PTR with TTL=0", S5).
func (m *Machine) Goodbye(iface string, family model.Family, svc *model.Service, instance string) {
	ptr := builder.PTR(svc.Type, svc.Proto, instance, 0)
	dst := m.groupAddr(family)
	m.Queue.Push(&model.TxPacket{
		Iface:  iface,
		Family: family,
		Dest:   &dst,
		Message: wire.Message{
			Response:      true,
			Authoritative: true,
			Answers:       []wire.Record{builder.GoodbyeFor(ptr)},
		},
		SendAt: m.Clock.Now(),
	})
}

// HandleCollision applies the outcome of a record collision detected
// during probing (spec §4.3). On loss, it mangles whichever name actually
// lost: svc nil means the collision was on the owned hostname's A/AAAA
// record, so the hostname is mangled; svc non-nil means it was on that
// service's SRV or TXT record, so the service's own instance name is
// mangled instead (falling back to the store's default instance name when
// the service doesn't set its own), never the hostname. Either way it
// resets FailedProbes upward and restarts probing at PROBE_1 after the
// back-off delay.
func (m *Machine) HandleCollision(pcb *model.PCB, outcome Outcome, svc *model.Service) {
	if outcome != OutcomeWeLose {
		return
	}
	pcb.FailedProbes++
	switch {
	case svc == nil:
		m.Store.SetHostname(model.Mangle(m.Store.Hostname()))
	case svc.Instance != "":
		svc.Instance = model.Mangle(svc.Instance)
	default:
		m.Store.SetDefaultInstanceName(model.Mangle(m.Store.DefaultInstanceName()))
	}
	m.transition(pcb, model.StateInit)
	m.scheduleProbe(pcb, RenameRestartDelay(m.Rand, pcb.FailedProbes))
}

// MarkDuplicate silences pcb in favor of owner after subnet-duplicate
// detection (spec §4.3).
func (m *Machine) MarkDuplicate(pcb *model.PCB, owner model.PCBKey) {
	pcb.DuplicateOf = &owner
	m.transition(pcb, model.StateDup)
}

// Promote reactivates a DUP PCB (e.g. the owning interface went down)
// by re-probing from scratch (spec §4.3 "if the first goes away, a DUP
// interface is promoted (re-probed)").
func (m *Machine) Promote(pcb *model.PCB) {
	pcb.DuplicateOf = nil
	pcb.FailedProbes = 0
	m.transition(pcb, model.StateInit)
	m.scheduleProbe(pcb, InitialProbeDelay(m.Rand, 0))
}
