package mdnsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/wire"
)

// runningPCB fakes an interface that has already finished probing/
// announcing, without going through New/Start's real network plumbing.
func runningPCB(s *Server, iface string, family model.Family) *model.PCB {
	pcb := s.store.PCB(iface, family)
	pcb.State = model.StateRunning
	return pcb
}

func TestAddServiceMergesIntoRunningPCBProbeSet(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	pcb := runningPCB(s, "eth0", model.FamilyV4)

	svc := &model.Service{Instance: "kitchen", Type: "_http", Proto: "_tcp", Port: 8080}
	require.NoError(t, s.addService(svc))

	assert.True(t, s.store.ServiceExists("kitchen", "_http", "_tcp"))
	assert.Contains(t, pcb.ProbeServices, svc)
}

func TestAddServiceRejectsOverMaxServices(t *testing.T) {
	s, err := New("host", WithMaxServices(1))
	require.NoError(t, err)

	require.NoError(t, s.addService(&model.Service{Instance: "a", Type: "_http", Proto: "_tcp"}))
	err = s.addService(&model.Service{Instance: "b", Type: "_http", Proto: "_tcp"})
	assert.ErrorIs(t, err, model.ErrFull)
}

// TestRemoveServiceEmitsGoodbye is S5: removing a registered service clears
// it from the store and enqueues an immediate TTL=0 goodbye PTR on every
// running PCB.
func TestRemoveServiceEmitsGoodbye(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	runningPCB(s, "eth0", model.FamilyV4)

	svc := &model.Service{Instance: "kitchen", Type: "_http", Proto: "_tcp", Port: 8080}
	require.NoError(t, s.addService(svc))

	require.NoError(t, s.removeService("kitchen", "_http", "_tcp"))

	assert.False(t, s.store.ServiceExists("kitchen", "_http", "_tcp"))

	due := s.queue.Due(s.clk.Now())
	require.Len(t, due, 1)
	pkt := due[0]
	assert.Equal(t, "eth0", pkt.Iface)
	assert.True(t, pkt.Message.Response)
	require.Len(t, pkt.Message.Answers, 1)
	assert.Equal(t, wire.TypePTR, pkt.Message.Answers[0].Type)
	assert.EqualValues(t, 0, pkt.Message.Answers[0].TTL)
}

func TestRemoveServiceNotFoundPropagatesError(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)

	err = s.removeService("missing", "_http", "_tcp")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceRemoveOnStoppedServerFailsWithInvalidState(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Stop()

	err = s.ServiceRemove("missing", "_http", "_tcp")
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, KindInvalidState, mErr.Kind)
}
