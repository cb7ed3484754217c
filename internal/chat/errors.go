package chat

import "github.com/pkg/errors"

var (
	// ErrChannelUnavailable is returned by Send while the channel is not
	// open. Callers decide whether to retry; nothing is queued.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrSnapshotFetch is returned when the conversation snapshot could not
	// be loaded after bounded retries.
	ErrSnapshotFetch = errors.New("snapshot fetch failed")

	// ErrHistoryFetch is returned when a conversation's history could not
	// be loaded.
	ErrHistoryFetch = errors.New("history fetch failed")
)
