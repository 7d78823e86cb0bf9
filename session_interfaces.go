package openpush

// CredentialStore supplies the device credential pair across restarts. The
// engine never implements secure storage itself; it only consumes this
// contract and clears it when the relay revokes the credentials.
type CredentialStore interface {
	// Load returns the stored credentials, or zero credentials if none are
	// stored.
	Load() (Credentials, error)

	Save(Credentials) error

	Clear() error
}

// NotificationSink receives fully-resolved messages for display to the user.
// Display is fire-and-forget; the engine never waits on the user. Note that
// emergency messages are handed to the sink repeatedly until acknowledged.
type NotificationSink interface {
	Display(Message)
}

// StateStore persists the delivery engine's state across restarts: the
// highest message id handed to the sink, and the unresolved emergency
// receipts. Values must round-trip exactly.
type StateStore interface {
	// LastMessageID returns the highest accepted message id, or 0 if the
	// store is fresh.
	LastMessageID() (int64, error)

	SetLastMessageID(id int64) error

	// AckStates returns all persisted unresolved emergency receipts.
	AckStates() ([]AckState, error)

	// PutAckState inserts or replaces the state for its receipt.
	PutAckState(state AckState) error

	DeleteAckState(receiptID string) error
}
