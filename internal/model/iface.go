package model

import (
	"context"
	"time"
)

// StateStreamer is the narrow client contract the poll loop depends on.
// A nil since requests the full current state; a non-nil since asks the
// server to hold the request open until state newer than the cursor exists
// or wait elapses. A (nil, nil) return means "no change since cursor".
type StateStreamer interface {
	FetchStateStream(ctx context.Context, agentID, token string, since *time.Time, wait time.Duration) (*ViewerState, error)
}

// CredentialStore is the persistence contract for the pairing credential.
// Get never fails: a missing, unreadable, or partial record reads as no
// credential. Watch fires for any change to the persisted record,
// including changes made by another process sharing the store path.
type CredentialStore interface {
	Get() (Credential, bool)
	Set(Credential) error
	Clear() error
	Watch(onChange func()) (stop func(), err error)
}

// CredentialClearer is the slice of CredentialStore the poll loop needs to
// invalidate a credential the server has rejected.
type CredentialClearer interface {
	Clear() error
}
