package model

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAddServiceRejectsDuplicateTuple(t *testing.T) {
	s := NewStore("host")
	svc := &Service{Instance: "inst", Type: "_http", Proto: "_tcp", Port: 80}
	require.NoError(t, s.AddService(svc))

	err := s.AddService(&Service{Instance: "inst", Type: "_http", Proto: "_tcp", Port: 81})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, s.Services(), 1)
}

func TestStoreAddServiceDefaultInstanceParticipatesInUniqueness(t *testing.T) {
	s := NewStore("host")
	s.SetDefaultInstanceName("default-inst")

	require.NoError(t, s.AddService(&Service{Type: "_http", Proto: "_tcp"}))
	// An explicit instance equal to the current default collides with the
	// service that relies on the default.
	err := s.AddService(&Service{Instance: "default-inst", Type: "_http", Proto: "_tcp"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStoreAddServiceRejectsUnknownDelegatedHost(t *testing.T) {
	s := NewStore("host")
	err := s.AddService(&Service{Type: "_http", Proto: "_tcp", Hostname: "printer.local"})
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestStoreAddServiceAllowsKnownDelegatedHost(t *testing.T) {
	s := NewStore("host")
	require.NoError(t, s.AddDelegatedHost(&DelegatedHost{Hostname: "printer.local", Addrs: []net.IP{net.ParseIP("192.0.2.5")}}))
	err := s.AddService(&Service{Type: "_ipp", Proto: "_tcp", Hostname: "printer.local"})
	assert.NoError(t, err)
}

func TestStoreRemoveServiceNotFound(t *testing.T) {
	s := NewStore("host")
	err := s.RemoveService("missing", "_http", "_tcp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRemoveServiceRemovesMatchingTuple(t *testing.T) {
	s := NewStore("host")
	require.NoError(t, s.AddService(&Service{Instance: "a", Type: "_http", Proto: "_tcp"}))
	require.NoError(t, s.AddService(&Service{Instance: "b", Type: "_http", Proto: "_tcp"}))

	require.NoError(t, s.RemoveService("a", "_http", "_tcp"))

	assert.False(t, s.ServiceExists("a", "_http", "_tcp"))
	assert.True(t, s.ServiceExists("b", "_http", "_tcp"))
}

func TestStoreRemoveAllServicesClearsAndReturnsRemoved(t *testing.T) {
	s := NewStore("host")
	require.NoError(t, s.AddService(&Service{Instance: "a", Type: "_http", Proto: "_tcp"}))
	require.NoError(t, s.AddService(&Service{Instance: "b", Type: "_http", Proto: "_tcp"}))

	removed := s.RemoveAllServices()
	assert.Len(t, removed, 2)
	assert.Empty(t, s.Services())
}

func TestStoreDelegatedHostLifecycle(t *testing.T) {
	s := NewStore("host")
	host := &DelegatedHost{Hostname: "nas.local", Addrs: []net.IP{net.ParseIP("192.0.2.9")}}

	require.NoError(t, s.AddDelegatedHost(host))
	assert.ErrorIs(t, s.AddDelegatedHost(host), ErrConflict)

	got, ok := s.DelegatedHost("nas.local")
	require.True(t, ok)
	assert.Equal(t, host.Addrs, got.Addrs)

	newAddrs := []net.IP{net.ParseIP("192.0.2.10")}
	require.NoError(t, s.SetDelegatedAddrs("nas.local", newAddrs))
	got, _ = s.DelegatedHost("nas.local")
	assert.Equal(t, newAddrs, got.Addrs)

	assert.ErrorIs(t, s.SetDelegatedAddrs("missing.local", newAddrs), ErrNotFound)

	require.NoError(t, s.RemoveDelegatedHost("nas.local"))
	assert.ErrorIs(t, s.RemoveDelegatedHost("nas.local"), ErrNotFound)
}

func TestStorePCBCreatesAndReusesByKey(t *testing.T) {
	s := NewStore("host")
	p1 := s.PCB("eth0", FamilyV4)
	p1.State = StateRunning

	p2 := s.PCB("eth0", FamilyV4)
	assert.Same(t, p1, p2)
	assert.Equal(t, StateRunning, p2.State)

	p3 := s.PCB("eth0", FamilyV6)
	assert.NotSame(t, p1, p3)

	assert.Len(t, s.PCBs(), 2)
}

func TestStoreHostnameGetSet(t *testing.T) {
	s := NewStore("host")
	assert.Equal(t, "host", s.Hostname())
	s.SetHostname("renamed")
	assert.Equal(t, "renamed", s.Hostname())
}
