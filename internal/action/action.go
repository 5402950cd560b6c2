// Package action is the single-threaded cooperative executor (spec §4.7,
// §5): a bounded queue of actions, dequeued and applied one at a time so
// every data-model mutation is serialized. Grounded on
// maeshinshin-mdns/mdns_type.go's opKind/operation/opChannel pattern,
// generalized from two hard-coded operations (register/unregister) into
// the full action-kind table spec §4.7 names, and from an unbounded
// channel into a capacity-bounded one with an explicit Full error so
// callers can back off (spec §7 "Full: action queue at capacity").
package action

import (
	"errors"
	"sync"
)

// ErrFull is returned by Enqueue when the action queue is at capacity
// (spec §7).
var ErrFull = errors.New("action: queue is full")

// ErrStopped is returned by Enqueue after the executor has been stopped.
var ErrStopped = errors.New("action: executor stopped")

// Kind identifies the action table spec §4.7 names.
type Kind int

const (
	KindSystemEvent Kind = iota
	KindHostnameSet
	KindInstanceSet
	KindServiceAdd
	KindServiceRemove
	KindSearchAdd
	KindSearchSend
	KindSearchEnd
	KindBrowseAdd
	KindBrowseSync
	KindBrowseEnd
	KindTxHandle
	KindRxHandle
	KindDelegateHostnameAdd
	KindDelegateHostnameRemove
	KindDelegateHostnameSetAddr
	KindTaskStop
)

func (k Kind) String() string {
	switch k {
	case KindSystemEvent:
		return "SYSTEM_EVENT"
	case KindHostnameSet:
		return "HOSTNAME_SET"
	case KindInstanceSet:
		return "INSTANCE_SET"
	case KindServiceAdd:
		return "SERVICE_ADD"
	case KindServiceRemove:
		return "SERVICE_REMOVE"
	case KindSearchAdd:
		return "SEARCH_ADD"
	case KindSearchSend:
		return "SEARCH_SEND"
	case KindSearchEnd:
		return "SEARCH_END"
	case KindBrowseAdd:
		return "BROWSE_ADD"
	case KindBrowseSync:
		return "BROWSE_SYNC"
	case KindBrowseEnd:
		return "BROWSE_END"
	case KindTxHandle:
		return "TX_HANDLE"
	case KindRxHandle:
		return "RX_HANDLE"
	case KindDelegateHostnameAdd:
		return "DELEGATE_HOSTNAME_ADD"
	case KindDelegateHostnameRemove:
		return "DELEGATE_HOSTNAME_REMOVE"
	case KindDelegateHostnameSetAddr:
		return "DELEGATE_HOSTNAME_SET_ADDR"
	case KindTaskStop:
		return "TASK_STOP"
	default:
		return "UNKNOWN"
	}
}

// Action is one unit of work the executor applies. Payload carries
// kind-specific data; Err/done back a synchronous Enqueue caller (spec §5:
// "API callers suspend on enqueue-with-wait and on the action-done
// semaphore").
type Action struct {
	Kind    Kind
	Payload any

	err  error
	done chan struct{}
}

// Err returns the result of a synchronously-enqueued action once Wait (or
// the implicit wait inside EnqueueWait) has returned.
func (a *Action) Err() error { return a.err }

// Fail records the outcome of applying a. The Handler calls this (instead
// of assigning a field directly, since Action's result is otherwise
// unexported) before returning, so EnqueueWait callers can inspect Err().
func (a *Action) Fail(err error) { a.err = err }

// Handler applies one action to whatever state the executor owns. A
// Handler must not block on external I/O (spec §5: "the executor never
// blocks on external I/O except when dequeuing the action queue").
type Handler func(*Action)

// Executor is the single-threaded action loop.
type Executor struct {
	queue   chan *Action
	handler Handler

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewExecutor creates an executor with the given bounded queue depth
// (spec §6 config `action_queue_depth`, default 16) and handler.
func NewExecutor(depth int, handler Handler) *Executor {
	if depth <= 0 {
		depth = 16
	}
	return &Executor{
		queue:   make(chan *Action, depth),
		handler: handler,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Enqueue submits a to the queue without waiting for it to be applied.
// Returns ErrFull if the queue is at capacity, ErrStopped if the executor
// has exited.
func (e *Executor) Enqueue(a *Action) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.queue <- a:
		return nil
	default:
		return ErrFull
	}
}

// EnqueueWait submits a and blocks until the executor has applied it,
// returning a.Err().
func (e *Executor) EnqueueWait(a *Action) error {
	a.done = make(chan struct{})
	if err := e.blockingEnqueue(a); err != nil {
		return err
	}
	<-a.done
	return a.err
}

// blockingEnqueue waits for queue space (unlike Enqueue, which fails fast)
// since a waiting caller has already committed to blocking on a.done.
func (e *Executor) blockingEnqueue(a *Action) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case <-e.stopped:
		return ErrStopped
	case e.queue <- a:
		return nil
	}
}

// Run dequeues and applies actions until a KindTaskStop action is
// processed or ctx-less Stop is called. Run is the executor's single
// goroutine; it must not be invoked concurrently.
func (e *Executor) Run() {
	defer close(e.done)
	for a := range e.queue {
		e.handler(a)
		if a.done != nil {
			close(a.done)
		}
		if a.Kind == KindTaskStop {
			e.stopOnce.Do(func() { close(e.stopped) })
			return
		}
	}
}

// Stop enqueues TASK_STOP and waits for Run to exit (spec §5: "Stopping
// the service enqueues TASK_STOP, waits for the executor to exit").
func (e *Executor) Stop() {
	stop := &Action{Kind: KindTaskStop}
	_ = e.EnqueueWait(stop)
	<-e.done
}
