package adapter

import "context"

// ChannelGate issues membership intents to the external channel system.
// The core mirrors, it does not own, the channel's member list: both calls
// are idempotent from the caller's perspective (granting an existing member
// or revoking a non-member is success, not an error). Transient failures
// surface domain.ErrNetwork for the scheduler to retry with backoff.
type ChannelGate interface {
	Grant(ctx context.Context, userID int64) error
	Revoke(ctx context.Context, userID int64) error
}
