package transport

import (
	"context"
	"net"
	"sync"

	"github.com/tinynet-io/mdnsd/internal/model"
)

// Handler processes one inbound datagram (spec §6 "deliver every
// received datagram to the dispatcher"). Implemented by
// the root package's Server.onInbound, which queues each datagram as an
// RX_HANDLE action for internal/dispatch.Dispatcher.HandleDatagram.
type Handler func(data []byte, iface string, family model.Family, src *net.UDPAddr)

// Manager owns one Socket per (interface, family) and fans inbound
// datagrams out to Handler, mirroring
// micro-go-micro/util/mdns/server.go's per-conn "go s.recv(conn)"
// goroutines, generalized from the teacher's fixed ipv4List/ipv6List pair
// to an arbitrary per-interface socket set (spec §6).
type Manager struct {
	mu      sync.Mutex
	sockets map[model.PCBKey]Socket
	cancel  map[model.PCBKey]context.CancelFunc

	Handler Handler
}

// NewManager creates an empty socket manager.
func NewManager(handler Handler) *Manager {
	return &Manager{
		sockets: make(map[model.PCBKey]Socket),
		cancel:  make(map[model.PCBKey]context.CancelFunc),
		Handler: handler,
	}
}

// Open joins the mDNS group on iface/family and starts a receive loop for
// it (spec §6). Calling Open twice for the same key is a no-op returning
// nil.
func (m *Manager) Open(iface *net.Interface, family model.Family) error {
	key := model.PCBKey{Iface: iface.Name, Family: family}

	m.mu.Lock()
	if _, ok := m.sockets[key]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sock, err := Open(iface, family)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sockets[key] = sock
	m.cancel[key] = cancel
	m.mu.Unlock()

	go m.recvLoop(ctx, sock)
	return nil
}

// Close shuts down the socket for (iface, family) and stops its receive
// loop.
func (m *Manager) Close(iface string, family model.Family) error {
	key := model.PCBKey{Iface: iface, Family: family}

	m.mu.Lock()
	sock, ok := m.sockets[key]
	cancel := m.cancel[key]
	delete(m.sockets, key)
	delete(m.cancel, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return sock.Close()
}

// CloseAll shuts down every open socket.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	keys := make([]model.PCBKey, 0, len(m.sockets))
	for k := range m.sockets {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.Close(k.Iface, k.Family)
	}
}

// Send writes data to dest over the socket for (iface, family). Sending
// on a socket that was never opened is a no-op, matching the dispatcher's
// expectation that a PCB torn down mid-flight simply drops its queued
// packets rather than erroring (spec §4.3 DISABLE handling).
func (m *Manager) Send(iface string, family model.Family, data []byte, dest *net.UDPAddr) error {
	m.mu.Lock()
	sock, ok := m.sockets[model.PCBKey{Iface: iface, Family: family}]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sock.Send(data, dest)
}

func (m *Manager) recvLoop(ctx context.Context, sock Socket) {
	for {
		in, err := sock.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if m.Handler != nil {
			m.Handler(in.Data, in.Iface, in.Family, in.Src)
		}
	}
}
