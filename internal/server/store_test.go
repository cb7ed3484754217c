package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

func storeMsg(id, from, to string, at time.Time) *chat.Message {
	return &chat.Message{ID: id, SenderID: from, ReceiverID: to, Content: "m-" + id, Kind: chat.KindText, CreatedAt: at}
}

func TestStoreHistoryIsChronologicalPerPair(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Append(storeMsg("1", "alice", "bob", base))
	s.Append(storeMsg("2", "bob", "alice", base.Add(time.Minute)))
	s.Append(storeMsg("3", "alice", "carol", base.Add(2*time.Minute)))

	history := s.History("alice", "bob")
	require.Len(t, history, 2)
	require.Equal(t, "1", history[0].ID)
	require.Equal(t, "2", history[1].ID)
}

func TestStoreSnapshotCountsUnreadForReceiverOnly(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Append(storeMsg("1", "bob", "alice", base))
	s.Append(storeMsg("2", "bob", "alice", base.Add(time.Second)))
	s.Append(storeMsg("3", "alice", "bob", base.Add(2*time.Second)))

	snap := s.Snapshot("alice")
	require.Len(t, snap, 1)
	require.Equal(t, "bob", snap[0].PartnerID)
	require.Equal(t, "3", snap[0].LastMessage.ID)
	require.Equal(t, 2, snap[0].UnreadCount)

	snapBob := s.Snapshot("bob")
	require.Equal(t, 1, snapBob[0].UnreadCount)
}

func TestStoreSnapshotOrdersByRecency(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Append(storeMsg("1", "bob", "alice", base))
	s.Append(storeMsg("2", "carol", "alice", base.Add(time.Minute)))

	snap := s.Snapshot("alice")
	require.Equal(t, "carol", snap[0].PartnerID)
	require.Equal(t, "bob", snap[1].PartnerID)
}

func TestMarkReadIdempotentAndReceiverOnly(t *testing.T) {
	s := NewStore()
	m := storeMsg("1", "bob", "alice", time.Now())
	s.Append(m)

	require.False(t, s.MarkRead("1", "bob"), "sender cannot mark own message read")
	require.False(t, s.MarkRead("missing", "alice"))

	require.True(t, s.MarkRead("1", "alice"))
	first := *m.ReadAt
	require.True(t, s.MarkRead("1", "alice"))
	require.Equal(t, first, *m.ReadAt, "re-marking must not move the timestamp")

	require.Equal(t, 0, s.Snapshot("alice")[0].UnreadCount)
}
