package store

import "context"

// SessionStore remembers whether a wallet session was active so startup can
// attempt a silent restore. This is the only session state that survives a
// restart.
type SessionStore interface {
	// MarkConnected records that a session is active.
	MarkConnected(ctx context.Context) error
	// ClearConnected forgets the marker.
	ClearConnected(ctx context.Context) error
	// WasConnected reports whether a prior session was active.
	WasConnected(ctx context.Context) (bool, error)
}

// ReferralStore holds at most one captured referrer address. Put overwrites
// (last write wins); Take reads and deletes in one step, so a referral can be
// consumed exactly once.
type ReferralStore interface {
	Put(ctx context.Context, referrer string) error
	Take(ctx context.Context) (referrer string, ok bool, err error)
	Peek(ctx context.Context) (referrer string, ok bool, err error)
}
