package mdnsd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTimesOutWithNoAnswersReturnsEmptyResults(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	results, err := s.Query("", "_http", "_tcp", RecordPTR, WithQueryTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, results)

	s.mu.Lock()
	remaining := len(s.queries)
	s.mu.Unlock()
	assert.Zero(t, remaining, "Query must deregister itself once it returns")
}

func TestQueryAsyncNewGetResultsThenDelete(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	h, err := s.QueryAsyncNew("", "_http", "_tcp", RecordPTR, WithQueryTimeout(time.Second))
	require.NoError(t, err)

	results, err := h.GetResults()
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, h.Delete())

	_, err = h.GetResults()
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, KindNotFound, mErr.Kind)
}

func TestBrowseNewDeleteStopsNotifications(t *testing.T) {
	s, err := New("host")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	notified := make(chan Update, 1)
	h, err := s.BrowseNew("_http", "_tcp", func(u Update) {
		select {
		case notified <- u:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, h.Delete())

	select {
	case <-notified:
		t.Fatal("did not expect a notification with no peers on the network")
	case <-time.After(50 * time.Millisecond):
	}
}
