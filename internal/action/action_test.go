package action

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorAppliesInOrder(t *testing.T) {
	var got []Kind
	exec := NewExecutor(4, func(a *Action) {
		got = append(got, a.Kind)
	})
	go exec.Run()

	require.NoError(t, exec.EnqueueWait(&Action{Kind: KindHostnameSet}))
	require.NoError(t, exec.EnqueueWait(&Action{Kind: KindInstanceSet}))
	exec.Stop()

	require.Equal(t, []Kind{KindHostnameSet, KindInstanceSet, KindTaskStop}, got)
}

func TestExecutorFullReturnsErrFull(t *testing.T) {
	block := make(chan struct{})
	var n int32
	exec := NewExecutor(1, func(a *Action) {
		atomic.AddInt32(&n, 1)
		if a.Kind == KindSystemEvent {
			<-block
		}
	})
	go exec.Run()

	require.NoError(t, exec.Enqueue(&Action{Kind: KindSystemEvent}))
	// Give the executor a moment to dequeue the first action and block on it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, exec.Enqueue(&Action{Kind: KindSystemEvent}))
	err := exec.Enqueue(&Action{Kind: KindSystemEvent})
	require.ErrorIs(t, err, ErrFull)

	close(block)
	exec.Stop()
}

func TestExecutorErrReportedToWaiter(t *testing.T) {
	boom := errors.New("boom")
	exec := NewExecutor(4, func(a *Action) {
		a.err = boom
	})
	go exec.Run()
	defer exec.Stop()

	a := &Action{Kind: KindSearchAdd}
	_ = exec.EnqueueWait(a)
	require.ErrorIs(t, a.Err(), boom)
}
