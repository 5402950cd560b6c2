package model

import (
	"fmt"
	"net"
	"sync"
)

// Store is the process-wide data model (spec §3's Server entity, minus the
// tx queue / action queue / active query-browse lists, which belong to
// their own subsystems per spec §4). One Store instance backs one
// responder instance (spec §9: "re-expressing this as a handle returned by
// init() avoids the singleton").
type Store struct {
	mu sync.Mutex

	hostname        string
	defaultInstance string
	services        []*Service
	delegated       map[string]*DelegatedHost
	pcbs            map[PCBKey]*PCB
}

// NewStore creates an empty data model with the given initial hostname.
func NewStore(hostname string) *Store {
	return &Store{
		hostname:  hostname,
		delegated: make(map[string]*DelegatedHost),
		pcbs:      make(map[PCBKey]*PCB),
	}
}

// Hostname returns the current owned hostname (spec §8 property 5).
func (s *Store) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

// SetHostname sets the owned hostname. Per spec §7 "name set failure leaves
// the previous name intact", callers validate before calling this; this
// method itself cannot fail.
func (s *Store) SetHostname(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostname = name
}

// DefaultInstanceName / SetDefaultInstanceName manage the process-wide
// fallback instance name services use when they don't set their own.
func (s *Store) DefaultInstanceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultInstance
}

func (s *Store) SetDefaultInstanceName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultInstance = name
}

// AddService registers a new service, enforcing the tuple-uniqueness
// invariant (spec §3). Returns ErrConflict if the tuple is already taken.
func (s *Store) AddService(svc *Service) error {
	if svc.Type == "" || svc.Proto == "" {
		return fmt.Errorf("%w: service/proto required", ErrInvalidArg)
	}
	if svc.Hostname != SelfHostName {
		if _, ok := s.delegated[svc.Hostname]; !ok {
			return fmt.Errorf("%w: hostname %q is neither self nor a delegated host", ErrInvalidArg, svc.Hostname)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := svc.key(s.defaultInstance)
	for _, existing := range s.services {
		if existing.key(s.defaultInstance) == key {
			return ErrConflict
		}
	}
	s.services = append(s.services, svc)
	return nil
}

// RemoveService removes the service matching (instance, typ, proto). The
// caller (responder state machine) sends the goodbye packet; this method
// only mutates the model (spec §3 lifecycle: "removal emits a goodbye PTR
// with TTL=0" is an effect of the caller, not of the store).
func (s *Store) RemoveService(instance, typ, proto string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.services {
		if existing.InstanceName(s.defaultInstance) == instance && existing.Type == typ && existing.Proto == proto {
			s.services = append(s.services[:i], s.services[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// RemoveAllServices clears every registered service, returning the removed
// list so the caller can emit goodbyes for each.
func (s *Store) RemoveAllServices() []*Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.services
	s.services = nil
	return removed
}

// Services returns a snapshot copy of the registered services.
func (s *Store) Services() []*Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Service, len(s.services))
	copy(out, s.services)
	return out
}

// ServiceExists reports whether a service with the given tuple is
// registered (spec §8 property 4).
func (s *Store) ServiceExists(instance, typ, proto string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.services {
		if existing.InstanceName(s.defaultInstance) == instance && existing.Type == typ && existing.Proto == proto {
			return true
		}
	}
	return false
}

// AddDelegatedHost / RemoveDelegatedHost / SetDelegatedAddrs implement the
// delegate_hostname_{add,remove,set_addr} API (spec §6).
func (s *Store) AddDelegatedHost(h *DelegatedHost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delegated[h.Hostname]; ok {
		return ErrConflict
	}
	s.delegated[h.Hostname] = h
	return nil
}

func (s *Store) RemoveDelegatedHost(hostname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delegated[hostname]; !ok {
		return ErrNotFound
	}
	delete(s.delegated, hostname)
	return nil
}

func (s *Store) SetDelegatedAddrs(hostname string, addrs []net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.delegated[hostname]
	if !ok {
		return ErrNotFound
	}
	h.Addrs = addrs
	return nil
}

// DelegatedHost looks up a delegated host by name.
func (s *Store) DelegatedHost(hostname string) (*DelegatedHost, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.delegated[hostname]
	return h, ok
}

// DelegatedHosts returns a snapshot of all delegated hosts.
func (s *Store) DelegatedHosts() []*DelegatedHost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DelegatedHost, 0, len(s.delegated))
	for _, h := range s.delegated {
		out = append(out, h)
	}
	return out
}
