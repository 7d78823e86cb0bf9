package backend

import (
	"fmt"
	"time"

	"github.com/bradenaw/juniper/xslices"
	"github.com/google/uuid"

	openpush "github.com/openpush/go-openpush-api"
)

type message struct {
	messageID int64

	priority openpush.Priority
	title    string
	body     string
	appName  string
	date     int64
	expires  int64
	retry    int
	receipt  string
	sound    string
	url      string
	urlTitle string
}

func (m *message) toMessage() openpush.Message {
	return openpush.Message{
		ID:       m.messageID,
		Priority: m.priority,
		Title:    m.title,
		Body:     m.body,
		AppName:  m.appName,
		Date:     m.date,
		Expires:  m.expires,
		Retry:    m.retry,
		Receipt:  m.receipt,
		Sound:    m.sound,
		URL:      m.url,
		URLTitle: m.urlTitle,
	}
}

type receipt struct {
	receiptID string
	messageID int64
	userID    string

	acked   bool
	ackedAt time.Time

	expiresAt time.Time
}

// PushMessage assigns the next message id, queues the message for every
// device of the user and, for emergency priority, opens a receipt. The
// returned message carries the assigned id and receipt.
func (b *Backend) PushMessage(userID string, msg openpush.Message) (openpush.Message, error) {
	b.accLock.Lock()

	acc, ok := b.accounts[userID]
	if !ok {
		b.accLock.Unlock()
		return openpush.Message{}, fmt.Errorf("user %s does not exist", userID)
	}

	stored := &message{
		priority: msg.Priority,
		title:    msg.Title,
		body:     msg.Body,
		appName:  msg.AppName,
		date:     time.Now().Unix(),
		expires:  msg.Expires,
		retry:    msg.Retry,
		sound:    msg.Sound,
		url:      msg.URL,
		urlTitle: msg.URLTitle,
	}

	if stored.appName == "" {
		stored.appName = "openpush"
	}

	if stored.priority >= openpush.PriorityEmergency {
		stored.receipt = uuid.NewString()
	}

	b.msgLock.Lock()

	b.lastMsgID++
	stored.messageID = b.lastMsgID
	b.messages[stored.messageID] = stored

	b.msgLock.Unlock()

	for _, device := range acc.devices {
		device.queue = append(device.queue, stored.messageID)
	}

	b.accLock.Unlock()

	if stored.receipt != "" {
		expiresAt := time.Unix(stored.expires, 0)
		if stored.expires == 0 {
			expiresAt = time.Now().Add(3 * time.Hour)
		}

		b.rcptLock.Lock()

		b.receipts[stored.receipt] = &receipt{
			receiptID: stored.receipt,
			messageID: stored.messageID,
			userID:    userID,

			expiresAt: expiresAt,
		}

		b.rcptLock.Unlock()
	}

	return stored.toMessage(), nil
}

// Messages returns the device's queued messages with ids above after, in
// queue order.
func (b *Backend) Messages(deviceID string, after int64) ([]openpush.Message, error) {
	var ids []int64

	if err := b.withDevice(deviceID, func(device *device) error {
		ids = xslices.Filter(device.queue, func(id int64) bool {
			return id > after
		})

		return nil
	}); err != nil {
		return nil, err
	}

	b.msgLock.Lock()
	defer b.msgLock.Unlock()

	msgs := make([]openpush.Message, 0, len(ids))

	for _, id := range ids {
		if stored, ok := b.messages[id]; ok {
			msgs = append(msgs, stored.toMessage())
		}
	}

	return msgs, nil
}

// UpdateHighest moves the device's delivered watermark: every queued id up to
// and including highest leaves the queue for good.
func (b *Backend) UpdateHighest(deviceID string, highest int64) error {
	return b.withDevice(deviceID, func(device *device) error {
		device.queue = xslices.Filter(device.queue, func(id int64) bool {
			return id > highest
		})

		return nil
	})
}

// AcknowledgeReceipt marks the receipt acknowledged. Acknowledging twice is
// fine; acknowledging an unknown receipt or someone else's receipt is not.
func (b *Backend) AcknowledgeReceipt(userID, receiptID string) error {
	b.rcptLock.Lock()
	defer b.rcptLock.Unlock()

	rcpt, ok := b.receipts[receiptID]
	if !ok || rcpt.userID != userID {
		return fmt.Errorf("receipt %s not found", receiptID)
	}

	if !rcpt.acked {
		rcpt.acked = true
		rcpt.ackedAt = time.Now()
	}

	return nil
}

// ReceiptAcknowledged reports whether the receipt was acknowledged.
func (b *Backend) ReceiptAcknowledged(receiptID string) (bool, error) {
	b.rcptLock.Lock()
	defer b.rcptLock.Unlock()

	rcpt, ok := b.receipts[receiptID]
	if !ok {
		return false, fmt.Errorf("receipt %s not found", receiptID)
	}

	return rcpt.acked, nil
}
