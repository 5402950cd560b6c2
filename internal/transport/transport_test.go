package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
)

// fakeSocket is an in-memory Socket stand-in so Manager's fan-out logic
// can be exercised without binding real multicast sockets.
type fakeSocket struct {
	iface  string
	family model.Family

	mu     sync.Mutex
	inbox  chan Inbound
	sent   []sentPacket
	closed bool
}

type sentPacket struct {
	data []byte
	dest *net.UDPAddr
}

func newFakeSocket(iface string, family model.Family) *fakeSocket {
	return &fakeSocket{iface: iface, family: family, inbox: make(chan Inbound, 8)}
}

func (f *fakeSocket) Iface() string        { return f.iface }
func (f *fakeSocket) Family() model.Family { return f.family }

func (f *fakeSocket) Recv(ctx context.Context) (Inbound, error) {
	select {
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	case in := <-f.inbox:
		return in, nil
	}
}

func (f *fakeSocket) Send(data []byte, dest *net.UDPAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPacket{data: data, dest: dest})
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) deliver(data []byte, src *net.UDPAddr) {
	f.inbox <- Inbound{Iface: f.iface, Family: f.family, Src: src, Data: data}
}

func TestManagerFansOutToHandler(t *testing.T) {
	var mu sync.Mutex
	var got []string

	m := NewManager(func(data []byte, iface string, family model.Family, src *net.UDPAddr) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
	})

	sock := newFakeSocket("eth0", model.FamilyV4)
	key := model.PCBKey{Iface: "eth0", Family: model.FamilyV4}
	ctx, cancel := context.WithCancel(context.Background())
	m.sockets[key] = sock
	m.cancel[key] = cancel
	go m.recvLoop(ctx, sock)

	sock.deliver([]byte("hello"), &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 5353})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"hello"}, got)
	mu.Unlock()
}

func TestManagerSendRoutesToCorrectSocket(t *testing.T) {
	m := NewManager(nil)
	a := newFakeSocket("eth0", model.FamilyV4)
	b := newFakeSocket("eth1", model.FamilyV4)
	m.sockets[model.PCBKey{Iface: "eth0", Family: model.FamilyV4}] = a
	m.sockets[model.PCBKey{Iface: "eth1", Family: model.FamilyV4}] = b

	dest := GroupAddr(model.FamilyV4)
	require.NoError(t, m.Send("eth1", model.FamilyV4, []byte("x"), dest))
	require.Len(t, b.sent, 1)
	require.Empty(t, a.sent)
}

func TestManagerSendToUnopenedSocketIsNoop(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Send("ghost0", model.FamilyV4, []byte("x"), GroupAddr(model.FamilyV4)))
}

func TestManagerCloseStopsRecvLoop(t *testing.T) {
	m := NewManager(nil)
	sock := newFakeSocket("eth0", model.FamilyV4)
	key := model.PCBKey{Iface: "eth0", Family: model.FamilyV4}
	ctx, cancel := context.WithCancel(context.Background())
	m.sockets[key] = sock
	m.cancel[key] = cancel
	done := make(chan struct{})
	go func() {
		m.recvLoop(ctx, sock)
		close(done)
	}()

	require.NoError(t, m.Close("eth0", model.FamilyV4))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recvLoop did not exit after Close")
	}
	require.True(t, sock.closed)
}

func TestGroupAddrPerFamily(t *testing.T) {
	require.Equal(t, groupV4, GroupAddr(model.FamilyV4).IP)
	require.Equal(t, groupV6, GroupAddr(model.FamilyV6).IP)
}
