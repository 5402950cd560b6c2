package model

// Family is the address family a PCB answers on.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "v6"
	}
	return "v4"
}

// State is a PCB's position in the responder state machine (spec §4.3).
type State int

const (
	StateOff State = iota
	StateInit
	StateProbe1
	StateProbe2
	StateProbe3
	StateAnnounce1
	StateAnnounce2
	StateAnnounce3
	StateRunning
	StateDup
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateInit:
		return "INIT"
	case StateProbe1:
		return "PROBE_1"
	case StateProbe2:
		return "PROBE_2"
	case StateProbe3:
		return "PROBE_3"
	case StateAnnounce1:
		return "ANNOUNCE_1"
	case StateAnnounce2:
		return "ANNOUNCE_2"
	case StateAnnounce3:
		return "ANNOUNCE_3"
	case StateRunning:
		return "RUNNING"
	case StateDup:
		return "DUP"
	default:
		return "UNKNOWN"
	}
}

// PCBKey identifies a per-(interface, address-family) protocol control
// block (spec §3).
type PCBKey struct {
	Iface  string
	Family Family
}

// PCB is the per-(interface, address-family) state machine bookkeeping
// (spec §3, §4.3). Grounded on original_source mdns.c's per-interface PCB
// fields (failed_probes, probe_services) generalized to Go.
type PCB struct {
	Key   PCBKey
	State State

	// ProbeServices is the merged set of services currently being probed;
	// a new service added while probing is in flight is merged into this
	// list rather than starting a second probe round (spec §4.3,
	// SPEC_FULL "Probe coalescing").
	ProbeServices []*Service
	// ProbeHost is true when the in-flight probe also covers the owned
	// hostname's A/AAAA record (as opposed to only service SRV records).
	ProbeHost bool

	FailedProbes int

	// DuplicateOf, when non-nil, names the PCB this one defers to after
	// subnet-duplicate detection (spec §4.3). A DUP PCB sends nothing.
	DuplicateOf *PCBKey
}

// NewPCB creates an OFF-state PCB for the given key.
func NewPCB(key PCBKey) *PCB {
	return &PCB{Key: key, State: StateOff}
}

// PCB looks up (creating if absent) the PCB for (iface, family).
func (s *Store) PCB(iface string, family Family) *PCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PCBKey{Iface: iface, Family: family}
	p, ok := s.pcbs[key]
	if !ok {
		p = NewPCB(key)
		s.pcbs[key] = p
	}
	return p
}

// PCBs returns a snapshot of all known PCBs.
func (s *Store) PCBs() []*PCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PCB, 0, len(s.pcbs))
	for _, p := range s.pcbs {
		out = append(out, p)
	}
	return out
}
