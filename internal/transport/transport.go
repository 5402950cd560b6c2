// Package transport is the UDP socket collaborator (spec §6): one
// multicast-joined socket per (interface, address family), receiving
// inbound datagrams and sending outbound ones to either the well-known
// mDNS group or a specific unicast destination.
//
// Grounded on micro-go-micro/util/mdns/server.go's NewServer: a wildcard
// UDP listener wrapped in golang.org/x/net/ipv4.PacketConn /
// golang.org/x/net/ipv6.PacketConn so JoinGroup can be called per
// *net.Interface, which plain net.ListenMulticastUDP cannot do reliably
// across multiple interfaces (DESIGN.md).
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/tinynet-io/mdnsd/internal/model"
)

// Port is the canonical mDNS UDP port (spec §6).
const Port = 5353

// recvBufSize is sized for the largest datagram this codec ever produces
// or will accept from a peer (spec §6: "max datagram 1460 bytes"), with
// headroom for non-conforming senders.
const recvBufSize = 9000

var (
	groupV4 = net.IPv4(224, 0, 0, 251)
	groupV6 = net.ParseIP("ff02::fb")
)

// GroupAddr returns the well-known multicast destination for family.
func GroupAddr(family model.Family) *net.UDPAddr {
	if family == model.FamilyV6 {
		return &net.UDPAddr{IP: groupV6, Port: Port}
	}
	return &net.UDPAddr{IP: groupV4, Port: Port}
}

// Inbound is one datagram read off a socket.
type Inbound struct {
	Iface  string
	Family model.Family
	Src    *net.UDPAddr
	Data   []byte
}

// Socket is the per-(interface, family) collaborator contract spec §6
// names: "exactly one joined multicast socket per interface/family pair,
// able to send to the group or to a specific unicast peer, and to be
// closed independently of the others."
type Socket interface {
	Iface() string
	Family() model.Family
	// Recv blocks until a datagram arrives or ctx is done.
	Recv(ctx context.Context) (Inbound, error)
	// Send writes data to dest (the multicast group or a unicast peer).
	Send(data []byte, dest *net.UDPAddr) error
	Close() error
}

// udpSocket is the real Socket backed by a wildcard-bound UDP connection
// joined to the mDNS group on exactly one interface.
type udpSocket struct {
	iface  string
	family model.Family
	conn   *net.UDPConn
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
}

// Open binds a wildcard socket and joins the mDNS multicast group on
// iface for family (spec §6). One Socket must be opened per
// (interface, family) pair the responder is enabled on.
func Open(iface *net.Interface, family model.Family) (Socket, error) {
	var (
		conn *net.UDPConn
		err  error
	)
	if family == model.FamilyV6 {
		conn, err = net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: Port})
	} else {
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: Port})
	}
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s/%s: %w", iface.Name, family, err)
	}

	s := &udpSocket{iface: iface.Name, family: family, conn: conn}
	if family == model.FamilyV6 {
		s.p6 = ipv6.NewPacketConn(conn)
		s.p6.SetMulticastLoopback(true)
		if err := s.p6.JoinGroup(iface, &net.UDPAddr{IP: groupV6}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: join group %s/%s: %w", iface.Name, family, err)
		}
	} else {
		s.p4 = ipv4.NewPacketConn(conn)
		s.p4.SetMulticastLoopback(true)
		if err := s.p4.JoinGroup(iface, &net.UDPAddr{IP: groupV4}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: join group %s/%s: %w", iface.Name, family, err)
		}
	}
	return s, nil
}

func (s *udpSocket) Iface() string         { return s.iface }
func (s *udpSocket) Family() model.Family  { return s.family }
func (s *udpSocket) Close() error          { return s.conn.Close() }

func (s *udpSocket) Recv(ctx context.Context) (Inbound, error) {
	type result struct {
		in  Inbound
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, recvBufSize)
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{in: Inbound{Iface: s.iface, Family: s.family, Src: addr, Data: buf[:n]}}
	}()

	select {
	case <-ctx.Done():
		s.conn.SetReadDeadline(time.Now())
		return Inbound{}, ctx.Err()
	case r := <-ch:
		return r.in, r.err
	}
}

func (s *udpSocket) Send(data []byte, dest *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(data, dest)
	return err
}
