package builder

import (
	"net"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// AddrSource resolves the live address list for a hostname. Called with
// model.SelfHostName it returns the owned host's addresses on every
// enabled interface. Resolution happens at build time, never cached,
// so a delegated host's address update or an interface renumbering is
// always reflected in the next answer.
type AddrSource func(hostname string) []net.IP

// AnswerFor builds the answer/additional records for one parsed question,
// per the answer-composition table (spec §4.2).
func AnswerFor(q wire.Question, name wire.Name, st *model.Store, addrs AddrSource) (answer, additional []wire.Record) {
	switch {
	case name.String() == SDPTRName:
		return sdptrAnswer(st), nil
	case q.Type == wire.TypeANY:
		return anyAnswer(name, st, addrs)
	case q.Type == wire.TypePTR:
		return ptrAnswer(name, st, addrs)
	case q.Type == wire.TypeSRV:
		return srvAnswer(name, st, addrs)
	case q.Type == wire.TypeTXT:
		return txtAnswer(name, st)
	case q.Type == wire.TypeA || q.Type == wire.TypeAAAA:
		return hostAnswer(hostOf(name), st, addrs), nil
	}
	return nil, nil
}

// hostOf extracts the host label a plain A/AAAA question names: such
// questions have no service/proto, so ParseName's multi-label-host
// extension left the whole owner in Host (minus the trailing ".local").
func hostOf(name wire.Name) string {
	return name.Host
}

func sdptrAnswer(st *model.Store) []wire.Record {
	seen := make(map[string]bool)
	var out []wire.Record
	for _, svc := range st.Services() {
		key := svc.Type + "." + svc.Proto
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, SDPTR(svc.Type, svc.Proto, defaultPTRTTL))
	}
	return out
}

func findService(st *model.Store, typ, proto string) []*model.Service {
	var out []*model.Service
	for _, svc := range st.Services() {
		if svc.Type == typ && svc.Proto == proto {
			out = append(out, svc)
		}
	}
	return out
}

func findInstance(st *model.Store, instance, typ, proto string) *model.Service {
	for _, svc := range st.Services() {
		if svc.Type == typ && svc.Proto == proto && svc.InstanceName(st.DefaultInstanceName()) == instance {
			return svc
		}
	}
	return nil
}

// resolveTarget returns the SRV target host and its current addresses for
// svc, routing through SelfHost or the named DelegatedHost (spec §3, §4.2).
func resolveTarget(svc *model.Service, st *model.Store, addrs AddrSource) (string, []net.IP) {
	if svc.Hostname == model.SelfHostName {
		host := st.Hostname()
		return host, addrs(model.SelfHostName)
	}
	return svc.Hostname, addrs(svc.Hostname)
}

func ptrAnswer(name wire.Name, st *model.Store, addrs AddrSource) (answer, additional []wire.Record) {
	svcs := findService(st, name.Service, name.Proto)
	for _, svc := range svcs {
		inst := svc.InstanceName(st.DefaultInstanceName())

		if name.Subtype {
			matched := false
			for _, st2 := range svc.Subtypes {
				if st2 == name.Host {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			answer = append(answer, SubtypePTR(name.Host, svc.Type, svc.Proto, inst, defaultPTRTTL))
		} else {
			answer = append(answer, PTR(svc.Type, svc.Proto, inst, defaultPTRTTL))
		}

		// Both SelfHost and delegated-host services ship SRV/TXT/address
		// as additional records for a PTR question (spec §4.2: for
		// delegated hosts these are a courtesy, since the responder
		// isn't authoritative for them from a DNS-SD standpoint).
		target, ips := resolveTarget(svc, st, addrs)
		srv := SRV(inst, svc.Type, svc.Proto, HostFQDN(target), svc.Priority, svc.Weight, svc.Port, defaultSRVTTL)
		txt := TXT(inst, svc.Type, svc.Proto, svc.TXT, defaultPTRTTL)
		additional = append(additional, srv, txt)
		additional = append(additional, AddressRecords(target, ips, defaultATTL)...)
	}
	return answer, additional
}

func srvAnswer(name wire.Name, st *model.Store, addrs AddrSource) (answer, additional []wire.Record) {
	inst := name.Host
	svc := findInstance(st, inst, name.Service, name.Proto)
	if svc == nil {
		return nil, nil
	}
	target, ips := resolveTarget(svc, st, addrs)
	srv := SRV(inst, svc.Type, svc.Proto, HostFQDN(target), svc.Priority, svc.Weight, svc.Port, defaultSRVTTL)
	// For delegated-host services the SRV goes into additional instead of
	// answer (spec §4.2): the responder isn't authoritative for the
	// delegated host, only courteously forwarding its record.
	if svc.Hostname != model.SelfHostName {
		additional = append(additional, srv)
	} else {
		answer = append(answer, srv)
	}
	additional = append(additional, AddressRecords(target, ips, defaultATTL)...)
	return answer, additional
}

func txtAnswer(name wire.Name, st *model.Store) (answer, additional []wire.Record) {
	inst := name.Host
	svc := findInstance(st, inst, name.Service, name.Proto)
	if svc == nil {
		return nil, nil
	}
	txt := TXT(inst, svc.Type, svc.Proto, svc.TXT, defaultPTRTTL)
	if svc.Hostname != model.SelfHostName {
		return nil, []wire.Record{txt}
	}
	return []wire.Record{txt}, nil
}

func hostAnswer(hostname string, st *model.Store, addrs AddrSource) []wire.Record {
	if hostname == st.Hostname() {
		return AddressRecords(hostname, addrs(model.SelfHostName), defaultATTL)
	}
	if _, ok := st.DelegatedHost(hostname); ok {
		return AddressRecords(hostname, addrs(hostname), defaultATTL)
	}
	return nil
}

// anyAnswer treats an ANY question with a non-empty host label as a probe
// target: include every record for that host (spec §4.2).
func anyAnswer(name wire.Name, st *model.Store, addrs AddrSource) (answer, additional []wire.Record) {
	host := name.Host
	if name.Service != "" {
		// ANY on an instance owner name: full service record set.
		svc := findInstance(st, host, name.Service, name.Proto)
		if svc == nil {
			return nil, nil
		}
		target, ips := resolveTarget(svc, st, addrs)
		answer = append(answer,
			PTR(svc.Type, svc.Proto, host, defaultPTRTTL),
			SRV(host, svc.Type, svc.Proto, HostFQDN(target), svc.Priority, svc.Weight, svc.Port, defaultSRVTTL),
			TXT(host, svc.Type, svc.Proto, svc.TXT, defaultPTRTTL),
		)
		answer = append(answer, AddressRecords(target, ips, defaultATTL)...)
		return answer, nil
	}
	return hostAnswer(host, st, addrs), nil
}
