// Package mdnsd is a multicast DNS (RFC 6762) responder and
// one-shot/continuous resolver (RFC 6763 DNS-SD) for small networked
// devices: it probes for and announces owned service records, answers
// peer queries, runs queries/browses against peers, and resolves name
// collisions by renaming.
//
// Grounded on maeshinshin-mdns/mdns.go's Server (NewServer/Register/
// Start/Shutdown), generalized from one hard-coded static A/AAAA record
// behind an unbounded op channel into the full responder/resolver built
// from internal/model, internal/action, internal/statemachine,
// internal/dispatch, internal/transport and internal/netif.
package mdnsd

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinynet-io/mdnsd/internal/action"
	"github.com/tinynet-io/mdnsd/internal/builder"
	"github.com/tinynet-io/mdnsd/internal/clock"
	"github.com/tinynet-io/mdnsd/internal/dispatch"
	"github.com/tinynet-io/mdnsd/internal/logx"
	"github.com/tinynet-io/mdnsd/internal/model"
	"github.com/tinynet-io/mdnsd/internal/netif"
	"github.com/tinynet-io/mdnsd/internal/query"
	"github.com/tinynet-io/mdnsd/internal/sched"
	"github.com/tinynet-io/mdnsd/internal/statemachine"
	"github.com/tinynet-io/mdnsd/internal/transport"
	"github.com/tinynet-io/mdnsd/internal/wire"
	"github.com/tinynet-io/mdnsd/internal/xrand"
)

// Server is one responder/resolver instance (spec §3's Server entity,
// "re-expressing this as a handle returned by init() avoids the
// singleton", spec §9). Create one with New.
type Server struct {
	cfg config
	log zerolog.Logger

	store *model.Store
	queue *sched.Queue
	exec  *action.Executor
	clk   clock.Source
	rnd   xrand.Source

	disp   *dispatch.Dispatcher
	trans  *transport.Manager
	netifW *netif.Watcher

	mu      sync.Mutex
	mach    map[model.PCBKey]*statemachine.Machine
	queries map[string]*query.Query
	browses map[string]*query.Browse

	tickStop chan struct{}
	tickDone chan struct{}

	started bool
}

// New creates a Server owning hostname as its initial SelfHost name
// (spec §6 `init()`). It does not join any multicast group or register
// any interface until Start is called.
func New(hostname string, opts ...Option) (*Server, error) {
	if hostname == "" {
		return nil, newErr("New", KindInvalidArg, nil)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		cfg:     cfg,
		log:     logx.Component("mdnsd"),
		store:   model.NewStore(hostname),
		queue:   sched.NewQueue(),
		clk:     clock.Real{},
		rnd:     xrand.NewReal(time.Now().UnixNano()),
		mach:    make(map[model.PCBKey]*statemachine.Machine),
		queries: make(map[string]*query.Query),
		browses: make(map[string]*query.Browse),
	}

	s.disp = &dispatch.Dispatcher{
		Store:                 s.store,
		Queue:                 s.queue,
		Mach:                  s.mach,
		SelfAddrs:             s.selfAddrs,
		SuppressOwnQueries:    cfg.suppressOwnQueries,
		RespondReverseQueries: cfg.respondReverseQueries,
		Sink:                  fanoutSink{s},
	}

	s.exec = action.NewExecutor(cfg.actionQueueDepth, s.applyAction)
	s.trans = transport.NewManager(s.onInbound)
	s.netifW = netif.NewWatcher(cfg.netifPollInterval)
	s.netifW.Register(s.onNetifEvent)

	return s, nil
}

// Start begins the executor, the interface watcher and the periodic
// scheduler/query-sweep tick (spec §2 "the periodic timer emits two
// internal action kinds: 'run scheduler' ... and 'run searches'").
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.tickStop = make(chan struct{})
	s.tickDone = make(chan struct{})
	s.mu.Unlock()

	go s.exec.Run()
	s.netifW.Start()
	go s.tickLoop()
	return nil
}

// Stop drains outstanding work, stops the interface watcher, closes every
// open socket, and waits for the executor to exit (spec §5 "Stopping the
// service enqueues TASK_STOP, waits for the executor to exit").
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stop := s.tickStop
	done := s.tickDone
	s.mu.Unlock()

	close(stop)
	<-done

	s.netifW.Stop()
	s.exec.Stop()
	s.trans.CloseAll()
}

func (s *Server) tickLoop() {
	defer close(s.tickDone)
	ticker := time.NewTicker(s.cfg.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.tickStop:
			return
		case now := <-ticker.C:
			if err := s.exec.Enqueue(&action.Action{Kind: action.KindTxHandle, Payload: now}); err != nil {
				s.log.Debug().Err(err).Msg("tick dropped, action queue full")
			}
		}
	}
}

// applyAction is the executor's single Handler (spec §5): every mutation
// of the data model, scheduler, or query/browse tables happens here,
// serially.
func (s *Server) applyAction(a *action.Action) {
	switch a.Kind {
	case action.KindSystemEvent:
		s.handleNetifEvent(a.Payload.(netif.Event))
	case action.KindHostnameSet:
		s.store.SetHostname(a.Payload.(string))
		for _, pcb := range s.store.PCBs() {
			if pcb.State == model.StateRunning {
				s.machineFor(pcb.Key.Iface, pcb.Key.Family).AddService(pcb.Key.Iface, pcb.Key.Family, nil)
			}
		}
	case action.KindInstanceSet:
		s.store.SetDefaultInstanceName(a.Payload.(string))
	case action.KindServiceAdd:
		a.Fail(s.addService(a.Payload.(*model.Service)))
	case action.KindServiceRemove:
		k := a.Payload.(serviceKey)
		a.Fail(s.removeService(k.instance, k.typ, k.proto))
	case action.KindSearchAdd:
		s.startQuery(a.Payload.(*query.Query))
	case action.KindSearchSend:
		s.resendQuery(a.Payload.(string))
	case action.KindSearchEnd:
		s.endQuery(a.Payload.(string))
	case action.KindBrowseAdd:
		s.startBrowse(a.Payload.(*query.Browse))
	case action.KindBrowseSync:
		s.resendBrowse(a.Payload.(string))
	case action.KindBrowseEnd:
		s.endBrowse(a.Payload.(string))
	case action.KindTxHandle:
		now := a.Payload.(time.Time)
		s.runScheduler(now)
		s.sweepQueries(now)
	case action.KindRxHandle:
		in := a.Payload.(inboundDatagram)
		_ = s.disp.HandleDatagram(in.data, in.iface, in.family, in.src.IP, in.src.Port, nil)
	case action.KindDelegateHostnameAdd:
		h := a.Payload.(*model.DelegatedHost)
		a.Fail(s.store.AddDelegatedHost(h))
	case action.KindDelegateHostnameRemove:
		a.Fail(s.store.RemoveDelegatedHost(a.Payload.(string)))
	case action.KindDelegateHostnameSetAddr:
		p := a.Payload.(delegateAddrUpdate)
		a.Fail(s.store.SetDelegatedAddrs(p.hostname, p.addrs))
	case action.KindTaskStop:
		// Send a goodbye for every registered service on every enabled PCB
		// while the sockets are still open; the executor itself ends the
		// loop after this returns.
		for _, svc := range s.store.Services() {
			inst := svc.InstanceName(s.store.DefaultInstanceName())
			for _, pcb := range s.store.PCBs() {
				if pcb.State != model.StateOff {
					s.machineFor(pcb.Key.Iface, pcb.Key.Family).Goodbye(pcb.Key.Iface, pcb.Key.Family, svc, inst)
				}
			}
		}
		s.runScheduler(s.clk.Now())
	}
}

type delegateAddrUpdate struct {
	hostname string
	addrs    []net.IP
}

type serviceKey struct {
	instance, typ, proto string
}

// addService registers svc in the store and, on every enabled PCB, merges
// it into the in-flight (or a freshly started) probe round (spec §3
// "service_add", §4.3).
func (s *Server) addService(svc *model.Service) error {
	if len(s.store.Services()) >= s.cfg.maxServices {
		return model.ErrFull
	}
	if err := s.store.AddService(svc); err != nil {
		return err
	}
	for _, pcb := range s.store.PCBs() {
		if pcb.State == model.StateOff {
			continue
		}
		s.machineFor(pcb.Key.Iface, pcb.Key.Family).AddService(pcb.Key.Iface, pcb.Key.Family, svc)
	}
	return nil
}

// removeService deregisters the (instance, typ, proto) tuple and emits an
// immediate TTL=0 goodbye PTR on every enabled PCB (spec §3 "service_remove
// ... removal emits a goodbye PTR with TTL=0", S5).
func (s *Server) removeService(instance, typ, proto string) error {
	var svc *model.Service
	for _, existing := range s.store.Services() {
		if existing.InstanceName(s.store.DefaultInstanceName()) == instance && existing.Type == typ && existing.Proto == proto {
			svc = existing
			break
		}
	}
	if err := s.store.RemoveService(instance, typ, proto); err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	for _, pcb := range s.store.PCBs() {
		if pcb.State == model.StateOff {
			continue
		}
		s.machineFor(pcb.Key.Iface, pcb.Key.Family).Goodbye(pcb.Key.Iface, pcb.Key.Family, svc, instance)
	}
	return nil
}

// runScheduler flushes every tx-queue packet whose send-at deadline has
// passed (spec §2 "run scheduler (flush due tx-queue packets)").
func (s *Server) runScheduler(now time.Time) {
	for _, pkt := range s.queue.Due(now) {
		buf, err := wire.Encode(pkt.Message)
		if err != nil {
			s.log.Error().Err(err).Str("iface", pkt.Iface).Msg("failed to encode outbound packet")
			continue
		}
		dest := pkt.Dest
		if dest == nil {
			dest = transport.GroupAddr(pkt.Family)
		}
		if err := s.trans.Send(pkt.Iface, pkt.Family, buf, dest); err != nil {
			s.log.Error().Err(err).Str("iface", pkt.Iface).Msg("failed to send outbound packet")
		}
		if pkt.OnSent != nil {
			pkt.OnSent()
		}
	}
}

// sweepQueries ends any one-shot Query whose timeout has elapsed (spec §2
// "run searches").
func (s *Server) sweepQueries(now time.Time) {
	s.mu.Lock()
	var toEnd []string
	for id, q := range s.queries {
		if q.TimedOut(now) {
			toEnd = append(toEnd, id)
		}
	}
	s.mu.Unlock()
	for _, id := range toEnd {
		s.endQuery(id)
	}
}

// selfAddrs implements builder.AddrSource: model.SelfHostName resolves to
// every address currently bound to any enabled interface; a named host
// resolves to its DelegatedHost address list.
func (s *Server) selfAddrs(hostname string) []net.IP {
	if hostname == model.SelfHostName {
		var out []net.IP
		for _, pcb := range s.store.PCBs() {
			if pcb.State == model.StateOff {
				continue
			}
			iface, err := net.InterfaceByName(pcb.Key.Iface)
			if err != nil {
				continue
			}
			addrs, _ := iface.Addrs()
			for _, a := range addrs {
				ipNet, ok := a.(*net.IPNet)
				if !ok || ipNet.IP.IsLinkLocalUnicast() {
					continue
				}
				isV6 := ipNet.IP.To4() == nil
				if (pcb.Key.Family == model.FamilyV6) != isV6 {
					continue
				}
				out = append(out, ipNet.IP)
			}
		}
		return out
	}
	if h, ok := s.store.DelegatedHost(hostname); ok {
		return h.Addrs
	}
	return nil
}

type inboundDatagram struct {
	data   []byte
	iface  string
	family model.Family
	src    *net.UDPAddr
}

func (s *Server) onInbound(data []byte, iface string, family model.Family, src *net.UDPAddr) {
	cp := append([]byte(nil), data...)
	if err := s.exec.Enqueue(&action.Action{
		Kind:    action.KindRxHandle,
		Payload: inboundDatagram{data: cp, iface: iface, family: family, src: src},
	}); err != nil {
		s.log.Debug().Err(err).Str("iface", iface).Msg("inbound datagram dropped, action queue full")
	}
}

func (s *Server) onNetifEvent(ev netif.Event) {
	if err := s.exec.Enqueue(&action.Action{Kind: action.KindSystemEvent, Payload: ev}); err != nil {
		s.log.Debug().Err(err).Str("iface", ev.Iface).Msg("netif event dropped, action queue full")
	}
}

// handleNetifEvent reacts to one ENABLE/DISABLE/ANNOUNCE/REVERSE_LOOKUP
// event (spec §6) by opening/closing the transport socket and driving the
// PCB state machine.
func (s *Server) handleNetifEvent(ev netif.Event) {
	switch ev.Kind {
	case netif.EventEnable:
		iface, err := net.InterfaceByName(ev.Iface)
		if err != nil {
			s.log.Warn().Err(err).Str("iface", ev.Iface).Msg("cannot resolve interface for ENABLE event")
			return
		}
		if len(s.store.PCBs()) >= s.cfg.maxInterfaces*2 {
			s.log.Warn().Str("iface", ev.Iface).Msg("max_interfaces reached, ignoring ENABLE")
			return
		}
		if err := s.trans.Open(iface, ev.Family); err != nil {
			s.log.Error().Err(err).Str("iface", ev.Iface).Msg("failed to open transport socket")
			return
		}
		mach := s.machineFor(ev.Iface, ev.Family)
		pcb := mach.Enable(ev.Iface, ev.Family)
		for _, svc := range s.store.Services() {
			pcb.ProbeServices = append(pcb.ProbeServices, svc)
		}
	case netif.EventDisable:
		s.trans.Close(ev.Iface, ev.Family)
		pcb := s.store.PCB(ev.Iface, ev.Family)
		pcb.State = model.StateOff
	case netif.EventAnnounce:
		pcb := s.store.PCB(ev.Iface, ev.Family)
		if pcb.State == model.StateRunning {
			s.machineFor(ev.Iface, ev.Family).AddService(ev.Iface, ev.Family, nil)
		}
	case netif.EventReverseLookup:
		// Carries the interface's own address for a reverse-lookup
		// registration; address resolution already happens live via
		// selfAddrs, so there is nothing further to record here.
	}
}

func (s *Server) machineFor(iface string, family model.Family) *statemachine.Machine {
	key := model.PCBKey{Iface: iface, Family: family}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mach[key]; ok {
		return m
	}
	m := &statemachine.Machine{
		Store: s.store,
		Clock: s.clk,
		Rand:  s.rnd,
		Queue: s.queue,
		Addrs: func(name string) []net.IP {
			ifc, err := net.InterfaceByName(name)
			if err != nil {
				return nil
			}
			addrs, _ := ifc.Addrs()
			var out []net.IP
			for _, a := range addrs {
				if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLinkLocalUnicast() {
					out = append(out, ipNet.IP)
				}
			}
			return out
		},
		Log: func(pcb *model.PCB, from, to model.State) {
			s.log.Debug().Str("iface", pcb.Key.Iface).Str("family", pcb.Key.Family.String()).
				Str("from", from.String()).Str("to", to.String()).Msg("pcb transition")
		},
	}
	s.mach[key] = m
	return m
}

// startQuery registers a one-shot Query and sends its first question on
// every running PCB (spec §4.5, S3).
func (s *Server) startQuery(q *query.Query) {
	s.mu.Lock()
	s.queries[q.ID] = q
	s.mu.Unlock()
	q.Start(s.clk.Now())
	s.sendQuestion(queryName(q.Instance, q.Service, q.Proto), q.Type, q.Unicast)
}

func (s *Server) resendQuery(id string) {
	s.mu.Lock()
	q, ok := s.queries[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.sendQuestion(queryName(q.Instance, q.Service, q.Proto), q.Type, q.Unicast)
}

func (s *Server) endQuery(id string) {
	s.mu.Lock()
	q, ok := s.queries[id]
	if ok {
		delete(s.queries, id)
	}
	s.mu.Unlock()
	if ok {
		q.End()
	}
}

// startBrowse registers a long-lived Browse and sends its initial PTR
// question (spec §4.6, S6).
func (s *Server) startBrowse(b *query.Browse) {
	s.mu.Lock()
	s.browses[b.ID] = b
	s.mu.Unlock()
	b.Start()
	s.sendQuestion(builder.ServiceFQDN(b.Service, b.Proto), wire.TypePTR, false)
}

func (s *Server) resendBrowse(id string) {
	s.mu.Lock()
	b, ok := s.browses[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.sendQuestion(builder.ServiceFQDN(b.Service, b.Proto), wire.TypePTR, false)
}

func (s *Server) endBrowse(id string) {
	s.mu.Lock()
	b, ok := s.browses[id]
	if ok {
		delete(s.browses, id)
	}
	s.mu.Unlock()
	if ok {
		b.End()
	}
}

func queryName(instance, service, proto string) string {
	if instance != "" {
		return builder.InstanceFQDN(instance, service, proto)
	}
	return builder.ServiceFQDN(service, proto)
}

// sendQuestion enqueues one question on every PCB currently RUNNING (spec
// §4.5/§4.6 "queries go out on every enabled interface").
func (s *Server) sendQuestion(name string, typ wire.RRType, unicast bool) {
	question := wire.Question{Name: name, Type: typ, Unicast: unicast}
	msg := wire.Message{Questions: []wire.Question{question}}
	now := s.clk.Now()
	for _, pcb := range s.store.PCBs() {
		if pcb.State != model.StateRunning {
			continue
		}
		s.queue.Push(&model.TxPacket{
			Iface:   pcb.Key.Iface,
			Family:  pcb.Key.Family,
			Dest:    transport.GroupAddr(pcb.Key.Family),
			Message: msg,
			SendAt:  now,
		})
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("mdnsd.Server{hostname=%s}", s.store.Hostname())
}

// fanoutSink implements dispatch.RecordSink, feeding every matched record
// to every active query and browse (spec §4.5/§4.6's aggregators share the
// same incoming-record stream as collision detection).
type fanoutSink struct{ s *Server }

func (f fanoutSink) OnRecord(iface string, family model.Family, name wire.Name, r wire.Record) {
	f.s.mu.Lock()
	queries := make([]*query.Query, 0, len(f.s.queries))
	for _, q := range f.s.queries {
		queries = append(queries, q)
	}
	browses := make([]*query.Browse, 0, len(f.s.browses))
	for _, b := range f.s.browses {
		browses = append(browses, b)
	}
	f.s.mu.Unlock()

	for _, q := range queries {
		if q.Matches(name, r) {
			q.OnRecord(iface, family, name, r)
			if q.MaxReached() {
				f.s.endQuery(q.ID)
			}
		}
	}
	for _, b := range browses {
		b.OnRecord(iface, family, name, r)
	}
}
