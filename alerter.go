package openpush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

// Alerter drives the emergency acknowledgment loop. Every tracked message is
// displayed immediately and then re-displayed on its retry interval until the
// receipt is acknowledged upstream or the message expires. Each receipt runs
// on its own timer; timers never block each other or the feed.
type Alerter struct {
	client *Client
	sink   NotificationSink
	store  StateStore

	// retry applies to messages whose sender declared no interval.
	retry time.Duration

	entries map[string]*ackEntry
	lock    sync.Mutex

	emit func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ackEntry guards one receipt. Both the timer loop and Acknowledge touch
// acked; the sink is only ever invoked under the entry lock, so nothing can
// reach it once the acknowledgment is recorded.
type ackEntry struct {
	msg Message

	acked  bool
	cancel context.CancelFunc
	lock   sync.Mutex
}

// NewAlerter returns an alerter forwarding acknowledgments through the given
// client. The emit callback surfaces expiry events; it may be nil.
func NewAlerter(client *Client, sink NotificationSink, store StateStore, retry time.Duration, emit func(Event)) *Alerter {
	if retry <= 0 {
		retry = DefaultEmergencyRetry
	}

	if emit == nil {
		emit = func(Event) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Alerter{
		client: client,
		sink:   sink,
		store:  store,

		retry: retry,

		entries: make(map[string]*ackEntry),

		emit: emit,

		ctx:    ctx,
		cancel: cancel,
	}
}

// Track begins the re-alert loop for an emergency message: one display now,
// then one per retry interval. Tracking an already-tracked receipt is a
// no-op, keeping exactly one loop per unresolved message.
func (a *Alerter) Track(msg Message) {
	if !msg.IsEmergency() {
		return
	}

	now := time.Now()

	retry := msg.RetryInterval()
	if retry <= 0 {
		retry = a.retry
	}

	expiresAt := msg.ExpiresAt()
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultEmergencyExpiry)
	}

	entry, ctx, ok := a.add(msg)
	if !ok {
		return
	}

	a.persist(entry, now.Add(retry), expiresAt)

	a.display(entry)

	a.wg.Add(1)

	go a.loop(ctx, entry, retry, now.Add(retry), expiresAt)
}

// Resume restores a persisted receipt after a restart, keeping its original
// schedule. Receipts that expired while the process was down surface their
// expiry immediately.
func (a *Alerter) Resume(state AckState) {
	if state.Acknowledged {
		a.drop(state.ReceiptID)
		return
	}

	if !time.Now().Before(state.ExpiresAt) {
		logrus.WithField("receipt", state.ReceiptID).Info("Emergency message expired while offline")

		a.drop(state.ReceiptID)
		a.emit(Event{Kind: EventEmergencyExpired, Receipt: state.ReceiptID})

		return
	}

	retry := state.Message.RetryInterval()
	if retry <= 0 {
		retry = a.retry
	}

	entry, ctx, ok := a.add(state.Message)
	if !ok {
		return
	}

	a.wg.Add(1)

	go a.loop(ctx, entry, retry, state.NextRetryAt, state.ExpiresAt)
}

// Acknowledge confirms the receipt upstream, then stops the local re-alert
// loop. If the upstream call fails the loop keeps running on schedule; the
// relay is the source of truth for when alerting stops.
func (a *Alerter) Acknowledge(ctx context.Context, receiptID string) error {
	a.lock.Lock()
	entry, ok := a.entries[receiptID]
	a.lock.Unlock()

	if !ok {
		return fmt.Errorf("unknown receipt %q", receiptID)
	}

	if err := a.client.AcknowledgeReceipt(ctx, receiptID); err != nil {
		return fmt.Errorf("acknowledge receipt: %w", err)
	}

	entry.lock.Lock()
	entry.acked = true
	entry.lock.Unlock()

	entry.cancel()

	a.remove(receiptID)
	a.drop(receiptID)

	return nil
}

// Pending returns the receipts still waiting for acknowledgment.
func (a *Alerter) Pending() []string {
	a.lock.Lock()
	defer a.lock.Unlock()

	return maps.Keys(a.entries)
}

// Stop cancels every running re-alert loop and waits for them to finish.
// Unacknowledged receipts stay persisted for the next start.
func (a *Alerter) Stop() {
	a.cancel()
	a.wg.Wait()
}

func (a *Alerter) loop(ctx context.Context, entry *ackEntry, retry time.Duration, next, expiresAt time.Time) {
	defer a.wg.Done()

	expire := time.NewTimer(time.Until(expiresAt))
	defer expire.Stop()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-expire.C:
			a.expire(entry)
			return

		case <-timer.C:
			// The schedule is absolute; a fire due at or past the expiry is
			// the expiry.
			if !next.Before(expiresAt) {
				a.expire(entry)
				return
			}

			a.display(entry)

			next = next.Add(retry)

			a.persist(entry, next, expiresAt)

			timer.Reset(time.Until(next))
		}
	}
}

func (a *Alerter) display(entry *ackEntry) {
	entry.lock.Lock()
	defer entry.lock.Unlock()

	if entry.acked {
		return
	}

	a.sink.Display(entry.msg)
}

func (a *Alerter) expire(entry *ackEntry) {
	entry.lock.Lock()
	acked := entry.acked
	entry.lock.Unlock()

	if acked {
		return
	}

	logrus.WithField("receipt", entry.msg.Receipt).Info("Emergency message expired unacknowledged")

	entry.cancel()

	a.remove(entry.msg.Receipt)
	a.drop(entry.msg.Receipt)

	a.emit(Event{Kind: EventEmergencyExpired, Receipt: entry.msg.Receipt})
}

// add registers an entry for the receipt, reporting false if one exists.
func (a *Alerter) add(msg Message) (*ackEntry, context.Context, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, ok := a.entries[msg.Receipt]; ok {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(a.ctx)

	entry := &ackEntry{
		msg:    msg,
		cancel: cancel,
	}

	a.entries[msg.Receipt] = entry

	return entry, ctx, true
}

func (a *Alerter) remove(receiptID string) {
	a.lock.Lock()
	defer a.lock.Unlock()

	delete(a.entries, receiptID)
}

func (a *Alerter) persist(entry *ackEntry, nextRetry, expiresAt time.Time) {
	state := AckState{
		ReceiptID:   entry.msg.Receipt,
		Message:     entry.msg,
		NextRetryAt: nextRetry,
		ExpiresAt:   expiresAt,
	}

	if err := a.store.PutAckState(state); err != nil {
		logrus.WithError(err).WithField("receipt", entry.msg.Receipt).Error("Failed to persist ack state")
	}
}

func (a *Alerter) drop(receiptID string) {
	if err := a.store.DeleteAckState(receiptID); err != nil {
		logrus.WithError(err).WithField("receipt", receiptID).Error("Failed to drop ack state")
	}
}
