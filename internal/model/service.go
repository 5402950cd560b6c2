// Package model is the data-model store (spec §3): owned hostname,
// delegated hosts, services, and per-interface PCB table, plus the
// invariants that guard mutation.
//
// Grounded on maeshinshin-mdns/mdns_type.go's Service/Server shape,
// generalized from a single static (hostname, IP) pair to the full
// service/delegated-host/PCB model spec §3 names.
package model

import (
	"errors"
	"net"

	"github.com/tinynet-io/mdnsd/internal/wire"
)

// Errors surfaced by Store mutation methods (spec §7).
var (
	ErrInvalidArg = errors.New("model: invalid argument")
	ErrConflict   = errors.New("model: service already registered")
	ErrNotFound   = errors.New("model: not found")
	ErrFull       = errors.New("model: at capacity")
)

// SelfHostName is the sentinel hostname meaning "resolve addresses from the
// underlying network interface", per spec §3's SelfHost entity. A Service
// whose Hostname is empty or equal to this sentinel resolves via SelfHost.
const SelfHostName = ""

// TxtItem is a single TXT attribute (spec §3: key non-empty, no '=', value
// length bounded). Reused from internal/wire to avoid a duplicate type for
// the same wire-level concept.
type TxtItem = wire.TxtItem

// Service is one registered DNS-SD service instance (spec §3).
type Service struct {
	Instance string // optional; "" uses the store's default instance name
	Type     string // e.g. "_http"
	Proto    string // "_tcp" or "_udp"
	Hostname string // optional override; "" / SelfHostName => SelfHost
	Port     uint16
	Priority uint16
	Weight   uint16
	TXT      []TxtItem
	Subtypes []string
}

// key identifies a service for the uniqueness invariant: at most one
// service with the same (instance-or-default, service, protocol, hostname)
// tuple (spec §3 Invariants).
func (s *Service) key(defaultInstance string) string {
	inst := s.Instance
	if inst == "" {
		inst = defaultInstance
	}
	return inst + "|" + s.Type + "|" + s.Proto + "|" + s.Hostname
}

// InstanceName returns the effective instance name, falling back to the
// store's default instance name when the service doesn't set its own.
func (s *Service) InstanceName(defaultInstance string) string {
	if s.Instance != "" {
		return s.Instance
	}
	return defaultInstance
}

// DelegatedHost is a hostname the responder answers on behalf of a
// non-local entity, with statically provided addresses (spec §3).
type DelegatedHost struct {
	Hostname string
	Addrs    []net.IP
}
