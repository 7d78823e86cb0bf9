package openpush

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger is the dedup gate between the fetch pipeline and the notification
// sink. It tracks the highest message id handed to the sink; an id passes at
// most once, and only if it is higher than everything that passed before.
type Ledger struct {
	store StateStore

	lastID int64
	lock   sync.Mutex
}

// NewLedger returns a ledger resuming from the store's last message id.
func NewLedger(store StateStore) (*Ledger, error) {
	lastID, err := store.LastMessageID()
	if err != nil {
		return nil, fmt.Errorf("load last message id: %w", err)
	}

	return &Ledger{
		store:  store,
		lastID: lastID,
	}, nil
}

// LastID returns the highest accepted message id.
func (l *Ledger) LastID() int64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.lastID
}

// Accept records the message id and returns true if it is strictly higher
// than every id accepted before. Duplicates and out-of-order ids return
// false and must not reach the sink.
func (l *Ledger) Accept(msg Message) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if msg.ID <= l.lastID {
		return false
	}

	l.lastID = msg.ID

	// The id stays accepted even if the write fails; at worst a crash before
	// the next successful write re-notifies once.
	if err := l.store.SetLastMessageID(msg.ID); err != nil {
		logrus.WithError(err).WithField("messageID", msg.ID).Error("Failed to persist last message id")
	}

	return true
}
