package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []chat.Frame
	err    error
}

func (s *fakeSender) Send(f chat.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) sent() []chat.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Frame(nil), s.frames...)
}

func TestSubscribeSendsBatch(t *testing.T) {
	sender := &fakeSender{}
	tr := NewTracker(sender)

	require.NoError(t, tr.Subscribe([]string{"a", "b"}))
	frames := sender.sent()
	require.Len(t, frames, 1)
	require.Equal(t, chat.FramePresenceSub, frames[0].Type)
	require.Equal(t, []string{"a", "b"}, frames[0].IDs)
}

func TestSnapshotReplacesSet(t *testing.T) {
	tr := NewTracker(&fakeSender{})

	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, OnlineIDs: []string{"a", "b"}})
	require.True(t, tr.IsOnline("a"))
	require.True(t, tr.IsOnline("b"))

	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, OnlineIDs: []string{"c"}})
	require.False(t, tr.IsOnline("a"))
	require.True(t, tr.IsOnline("c"))
}

func TestDeltaTogglesOneUser(t *testing.T) {
	tr := NewTracker(&fakeSender{})
	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, OnlineIDs: []string{"a"}})

	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, UserID: "b", Online: true})
	require.True(t, tr.IsOnline("b"))

	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, UserID: "a", Online: false})
	require.False(t, tr.IsOnline("a"))

	// deltas are idempotent
	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, UserID: "a", Online: false})
	require.ElementsMatch(t, []string{"b"}, tr.Online())
}

func TestResubscribeRebuildsFromScratch(t *testing.T) {
	sender := &fakeSender{}
	tr := NewTracker(sender)
	require.NoError(t, tr.Subscribe([]string{"a", "b"}))
	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, OnlineIDs: []string{"a"}})
	require.True(t, tr.IsOnline("a"))

	// channel dropped and reopened: known statuses are not carried over
	tr.Resubscribe()
	require.False(t, tr.IsOnline("a"))

	frames := sender.sent()
	require.Len(t, frames, 2)
	require.Equal(t, []string{"a", "b"}, frames[1].IDs)
}

func TestResubscribeWithoutSubscriptionIsNoop(t *testing.T) {
	sender := &fakeSender{}
	tr := NewTracker(sender)
	tr.Resubscribe()
	require.Empty(t, sender.sent())
}

func TestOnChangeFires(t *testing.T) {
	tr := NewTracker(&fakeSender{})
	var fired int
	tr.OnChange(func() { fired++ })
	tr.HandlePresence(chat.Frame{Type: chat.FramePresence, UserID: "a", Online: true})
	require.Equal(t, 1, fired)
}
