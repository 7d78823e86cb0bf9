package openpush_test

import (
	"cmp"
	"context"
	"testing"

	"github.com/bradenaw/juniper/xslices"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/server"
)

func TestGetMessages(t *testing.T) {
	s := server.New()
	defer s.Close()

	m := newTestManager(s)
	defer m.Close()

	c, _, userID := newTestClient(context.Background(), t, s, m)
	defer c.Close()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.PushMessage(userID, openpush.Message{Title: title, Body: "body", AppName: "test"})
		require.NoError(t, err)
	}

	messages, err := c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Messages come back in ascending id order.
	require.True(t, slices.IsSortedFunc(messages, func(a, b openpush.Message) int {
		return cmp.Compare(a.ID, b.ID)
	}))
	require.Equal(t, []string{"first", "second", "third"}, xslices.Map(messages, func(msg openpush.Message) string {
		return msg.Title
	}))

	// Fetching after an id returns only what came later.
	tail, err := c.GetMessages(context.Background(), messages[1].ID)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "third", tail[0].Title)

	// Fetching is idempotent until the watermark moves.
	again, err := c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, again, 3)
}

func TestMarkDelivered(t *testing.T) {
	s := server.New()
	defer s.Close()

	m := newTestManager(s)
	defer m.Close()

	c, _, userID := newTestClient(context.Background(), t, s, m)
	defer c.Close()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.PushMessage(userID, openpush.Message{Title: title, AppName: "test"})
		require.NoError(t, err)
	}

	messages, err := c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Moving the watermark trims everything up to it from the queue.
	require.NoError(t, c.MarkDelivered(context.Background(), messages[2].ID))

	messages, err = c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, messages)

	// New messages queue up after the watermark as usual.
	pushed, err := s.PushMessage(userID, openpush.Message{Title: "fourth", AppName: "test"})
	require.NoError(t, err)

	messages, err = c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, pushed.ID, messages[0].ID)
}

func TestAcknowledgeReceipt(t *testing.T) {
	s := server.New()
	defer s.Close()

	m := newTestManager(s)
	defer m.Close()

	c, _, userID := newTestClient(context.Background(), t, s, m)
	defer c.Close()

	pushed, err := s.PushMessage(userID, openpush.Message{
		Title:    "alarm",
		AppName:  "test",
		Priority: openpush.PriorityEmergency,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pushed.Receipt)

	acked, err := s.ReceiptAcknowledged(pushed.Receipt)
	require.NoError(t, err)
	require.False(t, acked)

	require.NoError(t, c.AcknowledgeReceipt(context.Background(), pushed.Receipt))

	acked, err = s.ReceiptAcknowledged(pushed.Receipt)
	require.NoError(t, err)
	require.True(t, acked)

	// Acknowledging twice is harmless.
	require.NoError(t, c.AcknowledgeReceipt(context.Background(), pushed.Receipt))

	// Unknown receipts are refused.
	require.Error(t, c.AcknowledgeReceipt(context.Background(), "no-such-receipt"))
}

func TestMessages_NonEmergencyCarriesNoReceipt(t *testing.T) {
	s := server.New()
	defer s.Close()

	m := newTestManager(s)
	defer m.Close()

	c, _, userID := newTestClient(context.Background(), t, s, m)
	defer c.Close()

	_, err := s.PushMessage(userID, openpush.Message{
		Title:    "plain",
		AppName:  "test",
		Priority: openpush.PriorityHigh,
	})
	require.NoError(t, err)

	messages, err := c.GetMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.Empty(t, messages[0].Receipt)
	require.False(t, messages[0].IsEmergency())
}
