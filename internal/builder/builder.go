// Package builder assembles outbound mDNS packets (probe, announce,
// goodbye, query, response) from the data model, mirroring the record
// construction helpers in maeshinshin-mdns/mdns_utils.go generalized from a
// single static A/AAAA pair to the full service/delegated-host model and
// the question-driven answer-composition table (spec §4.2).
package builder

import (
	"net"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

const (
	defaultSRVTTL = 120
	defaultATTL   = 120
	defaultPTRTTL = 4500
	goodbyeTTL    = 0
)

// ServiceFQDN returns "<svc>.<proto>.local".
func ServiceFQDN(svc, proto string) string {
	return svc + "." + proto + ".local"
}

// InstanceFQDN returns "<instance>.<svc>.<proto>.local".
func InstanceFQDN(instance, svc, proto string) string {
	return instance + "." + svc + "." + proto + ".local"
}

// SubtypeFQDN returns "<subtype>._sub.<svc>.<proto>.local".
func SubtypeFQDN(subtype, svc, proto string) string {
	return subtype + "._sub." + svc + "." + proto + ".local"
}

// HostFQDN returns "<hostname>.local".
func HostFQDN(hostname string) string {
	return hostname + ".local"
}

// SDPTRName is the well-known DNS-SD service-type enumeration name
// (spec §4.2, RFC 6763 §9).
const SDPTRName = "_services._dns-sd._udp.local"

// PTR builds the service-type PTR record for svc.
func PTR(svc, proto, instance string, ttl uint32) wire.Record {
	return wire.Record{
		Name: ServiceFQDN(svc, proto),
		Type: wire.TypePTR,
		TTL:  ttl,
		Data: wire.PTRData{Target: InstanceFQDN(instance, svc, proto)},
	}
}

// SubtypePTR builds the subtype PTR record.
func SubtypePTR(subtype, svc, proto, instance string, ttl uint32) wire.Record {
	return wire.Record{
		Name: SubtypeFQDN(subtype, svc, proto),
		Type: wire.TypePTR,
		TTL:  ttl,
		Data: wire.PTRData{Target: InstanceFQDN(instance, svc, proto)},
	}
}

// SDPTR builds one service-type-enumeration record.
func SDPTR(svc, proto string, ttl uint32) wire.Record {
	return wire.Record{
		Name: SDPTRName,
		Type: wire.TypePTR,
		TTL:  ttl,
		Data: wire.PTRData{Target: ServiceFQDN(svc, proto)},
	}
}

// SRV builds the SRV record for an instance.
func SRV(instance, svc, proto, target string, priority, weight, port uint16, ttl uint32) wire.Record {
	return wire.Record{
		Name:       InstanceFQDN(instance, svc, proto),
		Type:       wire.TypeSRV,
		TTL:        ttl,
		CacheFlush: true,
		Data: wire.SRVData{
			Priority: priority,
			Weight:   weight,
			Port:     port,
			Target:   target,
		},
	}
}

// TXT builds the TXT record for an instance. An empty items list encodes a
// single zero-length item (spec §4.2).
func TXT(instance, svc, proto string, items []wire.TxtItem, ttl uint32) wire.Record {
	return wire.Record{
		Name:       InstanceFQDN(instance, svc, proto),
		Type:       wire.TypeTXT,
		TTL:        ttl,
		CacheFlush: true,
		Data:       wire.TXTData{Items: items},
	}
}

// A builds the A record for hostname.
func A(hostname string, ip net.IP, ttl uint32) wire.Record {
	return wire.Record{
		Name:       HostFQDN(hostname),
		Type:       wire.TypeA,
		TTL:        ttl,
		CacheFlush: true,
		Data:       wire.AData{IP: ip},
	}
}

// AAAA builds the AAAA record for hostname.
func AAAA(hostname string, ip net.IP, ttl uint32) wire.Record {
	return wire.Record{
		Name:       HostFQDN(hostname),
		Type:       wire.TypeAAAA,
		TTL:        ttl,
		CacheFlush: true,
		Data:       wire.AAAAData{IP: ip},
	}
}

// ReversePTR builds the in-addr.arpa / ip6.arpa PTR record for ip, pointing
// back at hostname.local (spec §4.2).
func ReversePTR(ip net.IP, hostname string, ttl uint32) wire.Record {
	return wire.Record{
		Name: ReverseName(ip),
		Type: wire.TypePTR,
		TTL:  ttl,
		Data: wire.PTRData{Target: HostFQDN(hostname)},
	}
}

// AddressRecords builds A and/or AAAA records for hostname from a mixed
// v4/v6 address list.
func AddressRecords(hostname string, addrs []net.IP, ttl uint32) []wire.Record {
	var out []wire.Record
	for _, ip := range addrs {
		if v4 := ip.To4(); v4 != nil {
			out = append(out, A(hostname, v4, ttl))
		} else {
			out = append(out, AAAA(hostname, ip, ttl))
		}
	}
	return out
}

// GoodbyeFor rewrites r as a goodbye (TTL=0) copy.
func GoodbyeFor(r wire.Record) wire.Record {
	g := r
	g.TTL = goodbyeTTL
	return g
}

// ServiceRecords assembles the full record set for one service: PTR,
// subtype PTRs, SRV, TXT — the shape an announce or a PTR-question answer
// packet needs (spec §4.2).
func ServiceRecords(svc *model.Service, instance, target string) (ptr wire.Record, subPTRs []wire.Record, srv, txt wire.Record) {
	ptr = PTR(svc.Type, svc.Proto, instance, defaultPTRTTL)
	for _, st := range svc.Subtypes {
		subPTRs = append(subPTRs, SubtypePTR(st, svc.Type, svc.Proto, instance, defaultPTRTTL))
	}
	srv = SRV(instance, svc.Type, svc.Proto, target, svc.Priority, svc.Weight, svc.Port, defaultSRVTTL)
	txt = TXT(instance, svc.Type, svc.Proto, svc.TXT, defaultPTRTTL)
	return
}
