package mdnsd

import (
	"errors"
	"net"
	"strings"

	"github.com/tinynet-io/mdnsd/internal/action"
	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// TxtItem is a single DNS-SD TXT attribute: a non-empty key with no '='
// and an optional value (spec §3).
type TxtItem struct {
	Key      string
	Value    []byte
	HasValue bool
}

// Service describes one service instance to register (spec §3, §6
// `service_add`). Hostname, if set, must name a host previously added via
// DelegateHostnameAdd; left empty it resolves to SelfHost (the owned
// hostname and the live interface addresses).
type Service struct {
	Instance string
	Type     string
	Proto    string
	Hostname string
	Port     uint16
	Priority uint16
	Weight   uint16
	TXT      []TxtItem
	Subtypes []string
}

func (s Service) toModel() *model.Service {
	items := make([]model.TxtItem, len(s.TXT))
	for i, it := range s.TXT {
		items[i] = model.TxtItem{Key: it.Key, Value: it.Value, HasValue: it.HasValue}
	}
	return &model.Service{
		Instance: s.Instance,
		Type:     s.Type,
		Proto:    s.Proto,
		Hostname: s.Hostname,
		Port:     s.Port,
		Priority: s.Priority,
		Weight:   s.Weight,
		TXT:      items,
		Subtypes: append([]string(nil), s.Subtypes...),
	}
}

// DelegatedHost is a hostname the responder answers on behalf of, with a
// statically provided address list (spec §3).
type DelegatedHost struct {
	Hostname string
	Addrs    []net.IP
}

// validateNameLen enforces name_buf_len (spec §6, default 64 — the
// original fixed-size per-name buffer) and rejects any name that
// wouldn't encode validly on the wire, via internal/wire's ValidateName
// (golang.org/x/net/dns/dnsmessage's validating constructor).
func (s *Server) validateNameLen(op, name string) error {
	if name == "" {
		return nil
	}
	if len(name) >= s.cfg.nameBufLen {
		return newErr(op, KindInvalidArg, nil)
	}
	if err := wire.ValidateName(name); err != nil {
		return newErr(op, KindInvalidArg, err)
	}
	return nil
}

func validateService(s Service) error {
	if s.Type == "" || s.Proto == "" {
		return newErr("ServiceAdd", KindInvalidArg, nil)
	}
	if s.Proto != "_tcp" && s.Proto != "_udp" {
		return newErr("ServiceAdd", KindInvalidArg, nil)
	}
	for _, it := range s.TXT {
		if it.Key == "" || strings.Contains(it.Key, "=") {
			return newErr("ServiceAdd", KindInvalidArg, nil)
		}
	}
	return nil
}

// ServiceAdd registers a new service instance (spec §6 `service_add`). The
// tuple (instance, type, proto, hostname) must be unique; registering a
// duplicate returns a Conflict error.
func (s *Server) ServiceAdd(svc Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.validateNameLen("ServiceAdd", svc.Instance); err != nil {
		return err
	}
	if err := s.validateNameLen("ServiceAdd", svc.Hostname); err != nil {
		return err
	}
	a := &action.Action{Kind: action.KindServiceAdd, Payload: svc.toModel()}
	if err := s.exec.EnqueueWait(a); err != nil {
		return newErr("ServiceAdd", KindInvalidState, err)
	}
	if a.Err() != nil {
		switch {
		case errors.Is(a.Err(), model.ErrConflict):
			return newErr("ServiceAdd", KindConflict, a.Err())
		case errors.Is(a.Err(), model.ErrFull):
			return newErr("ServiceAdd", KindOutOfMemory, a.Err())
		default:
			return newErr("ServiceAdd", KindInvalidArg, a.Err())
		}
	}
	return nil
}

// ServiceRemove deregisters (instance, typ, proto), emitting a goodbye
// packet for it (spec §6 `service_remove`, S5).
func (s *Server) ServiceRemove(instance, typ, proto string) error {
	a := &action.Action{Kind: action.KindServiceRemove, Payload: serviceKey{instance: instance, typ: typ, proto: proto}}
	if err := s.exec.EnqueueWait(a); err != nil {
		return newErr("ServiceRemove", KindInvalidState, err)
	}
	if a.Err() != nil {
		if errors.Is(a.Err(), model.ErrNotFound) {
			return newErr("ServiceRemove", KindNotFound, a.Err())
		}
		return newErr("ServiceRemove", KindInvalidArg, a.Err())
	}
	return nil
}

// ServiceExists reports whether the tuple is currently registered (spec §8
// property 4).
func (s *Server) ServiceExists(instance, typ, proto string) bool {
	return s.store.ServiceExists(instance, typ, proto)
}

// HostnameSet renames the owned hostname (spec §6 `hostname_set`). A
// rename sends every RUNNING PCB back to PROBE_1 so the new name is probed
// and announced; a PCB still probing or announcing uses the new name in
// every packet it builds from then on.
func (s *Server) HostnameSet(name string) error {
	if name == "" {
		return newErr("HostnameSet", KindInvalidArg, nil)
	}
	if err := s.validateNameLen("HostnameSet", name); err != nil {
		return err
	}
	if err := s.exec.EnqueueWait(&action.Action{Kind: action.KindHostnameSet, Payload: name}); err != nil {
		return newErr("HostnameSet", KindInvalidState, err)
	}
	return nil
}

// Hostname returns the currently owned hostname.
func (s *Server) Hostname() string {
	return s.store.Hostname()
}

// InstanceSet sets the process-wide default instance name used by
// services that don't specify their own Instance.
func (s *Server) InstanceSet(name string) error {
	if err := s.validateNameLen("InstanceSet", name); err != nil {
		return err
	}
	if err := s.exec.EnqueueWait(&action.Action{Kind: action.KindInstanceSet, Payload: name}); err != nil {
		return newErr("InstanceSet", KindInvalidState, err)
	}
	return nil
}

// DelegateHostnameAdd registers a hostname the responder answers on behalf
// of, at the given static addresses (spec §6 `delegate_hostname_add`).
func (s *Server) DelegateHostnameAdd(host DelegatedHost) error {
	if host.Hostname == "" {
		return newErr("DelegateHostnameAdd", KindInvalidArg, nil)
	}
	if err := s.validateNameLen("DelegateHostnameAdd", host.Hostname); err != nil {
		return err
	}
	a := &action.Action{Kind: action.KindDelegateHostnameAdd, Payload: &model.DelegatedHost{Hostname: host.Hostname, Addrs: host.Addrs}}
	if err := s.exec.EnqueueWait(a); err != nil {
		return newErr("DelegateHostnameAdd", KindInvalidState, err)
	}
	if a.Err() != nil {
		return newErr("DelegateHostnameAdd", KindConflict, a.Err())
	}
	return nil
}

// DelegateHostnameRemove removes a previously delegated hostname (spec §6
// `delegate_hostname_remove`).
func (s *Server) DelegateHostnameRemove(hostname string) error {
	a := &action.Action{Kind: action.KindDelegateHostnameRemove, Payload: hostname}
	if err := s.exec.EnqueueWait(a); err != nil {
		return newErr("DelegateHostnameRemove", KindInvalidState, err)
	}
	if a.Err() != nil {
		return newErr("DelegateHostnameRemove", KindNotFound, a.Err())
	}
	return nil
}

// DelegateHostnameSetAddr updates the address list for a delegated
// hostname (spec §6 `delegate_hostname_set_addr`).
func (s *Server) DelegateHostnameSetAddr(hostname string, addrs []net.IP) error {
	a := &action.Action{Kind: action.KindDelegateHostnameSetAddr, Payload: delegateAddrUpdate{hostname: hostname, addrs: addrs}}
	if err := s.exec.EnqueueWait(a); err != nil {
		return newErr("DelegateHostnameSetAddr", KindInvalidState, err)
	}
	if a.Err() != nil {
		return newErr("DelegateHostnameSetAddr", KindNotFound, a.Err())
	}
	return nil
}
