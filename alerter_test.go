package openpush_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/server"
)

func emergency(receipt string) openpush.Message {
	return openpush.Message{
		ID:       1,
		Priority: openpush.PriorityEmergency,
		Title:    "alarm",
		AppName:  "test",
		Receipt:  receipt,
	}
}

func TestAlerter_TrackDisplaysImmediately(t *testing.T) {
	st := newMemStore()
	sink := newMemSink()

	alerter := openpush.NewAlerter(nil, sink, st, time.Hour, nil)
	defer alerter.Stop()

	msg := emergency("receipt")

	alerter.Track(msg)

	displayed := sink.await(t, time.Second)
	require.Equal(t, "receipt", displayed.Receipt)

	// One loop per receipt; tracking again changes nothing.
	alerter.Track(msg)

	// Non-emergency messages are not the alerter's business.
	alerter.Track(openpush.Message{ID: 2, Priority: openpush.PriorityNormal})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, sink.count())

	require.Equal(t, []string{"receipt"}, alerter.Pending())
	require.Equal(t, 1, st.ackStateCount())
}

func TestAlerter_RetryCadence(t *testing.T) {
	st := newMemStore()
	sink := newMemSink()

	events := make(chan openpush.Event, 8)

	alerter := openpush.NewAlerter(nil, sink, st, 200*time.Millisecond, func(event openpush.Event) {
		events <- event
	})
	defer alerter.Stop()

	now := time.Now()

	// Exactly five re-alerts fit before the expiry. The schedule is absolute,
	// so the count does not depend on timer jitter.
	alerter.Resume(openpush.AckState{
		ReceiptID:   "receipt",
		Message:     emergency("receipt"),
		NextRetryAt: now,
		ExpiresAt:   now.Add(time.Second),
	})

	expired := awaitEvent(t, events, openpush.EventEmergencyExpired)
	require.Equal(t, "receipt", expired.Receipt)
	require.Equal(t, 5, sink.count())

	// Nothing fires after the expiry.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, 5, sink.count())

	require.Empty(t, alerter.Pending())
	require.Zero(t, st.ackStateCount())
}

func TestAlerter_AcknowledgeStopsRetries(t *testing.T) {
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

	st := newMemStore()
	sink := newMemSink()

	alerter := openpush.NewAlerter(c, sink, st, 100*time.Millisecond, nil)
	defer alerter.Stop()

	alerter.Track(pushed)

	// The first display is immediate, then the loop re-alerts.
	sink.await(t, time.Second)
	sink.await(t, time.Second)

	require.NoError(t, alerter.Acknowledge(context.Background(), pushed.Receipt))

	acked, err := s.ReceiptAcknowledged(pushed.Receipt)
	require.NoError(t, err)
	require.True(t, acked)

	// Nothing reaches the sink once the acknowledgment is recorded.
	count := sink.count()

	time.Sleep(350 * time.Millisecond)
	require.Equal(t, count, sink.count())

	require.Empty(t, alerter.Pending())
	require.Zero(t, st.ackStateCount())
}

func TestAlerter_AcknowledgeFailureKeepsRetrying(t *testing.T) {
	s := server.New()
	defer s.Close()

	m := newTestManager(s)
	defer m.Close()

	c, _, _ := newTestClient(context.Background(), t, s, m)
	defer c.Close()

	st := newMemStore()
	sink := newMemSink()

	alerter := openpush.NewAlerter(c, sink, st, 100*time.Millisecond, nil)
	defer alerter.Stop()

	// The relay never issued this receipt, so acknowledging it upstream fails.
	now := time.Now()

	alerter.Resume(openpush.AckState{
		ReceiptID:   "phantom",
		Message:     emergency("phantom"),
		NextRetryAt: now.Add(50 * time.Millisecond),
		ExpiresAt:   now.Add(time.Hour),
	})

	sink.await(t, time.Second)

	require.Error(t, alerter.Acknowledge(context.Background(), "phantom"))

	// The failure leaves the local state untouched and the loop running.
	require.Equal(t, []string{"phantom"}, alerter.Pending())

	sink.await(t, time.Second)
}

func TestAlerter_ResumeDropsExpired(t *testing.T) {
	st := newMemStore()
	sink := newMemSink()

	events := make(chan openpush.Event, 8)

	alerter := openpush.NewAlerter(nil, sink, st, time.Hour, func(event openpush.Event) {
		events <- event
	})
	defer alerter.Stop()

	// Expired while the process was down: no display, just the event.
	state := openpush.AckState{
		ReceiptID:   "stale",
		Message:     emergency("stale"),
		NextRetryAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}

	require.NoError(t, st.PutAckState(state))

	alerter.Resume(state)

	expired := awaitEvent(t, events, openpush.EventEmergencyExpired)
	require.Equal(t, "stale", expired.Receipt)

	require.Zero(t, sink.count())
	require.Empty(t, alerter.Pending())
	require.Zero(t, st.ackStateCount())
}

func TestAlerter_ResumeDropsAcknowledged(t *testing.T) {
	st := newMemStore()
	sink := newMemSink()

	alerter := openpush.NewAlerter(nil, sink, st, time.Hour, nil)
	defer alerter.Stop()

	state := openpush.AckState{
		ReceiptID:    "resolved",
		Message:      emergency("resolved"),
		Acknowledged: true,
		NextRetryAt:  time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	require.NoError(t, st.PutAckState(state))

	alerter.Resume(state)

	require.Zero(t, sink.count())
	require.Empty(t, alerter.Pending())
	require.Zero(t, st.ackStateCount())
}

func TestAlerter_AcknowledgeUnknownReceipt(t *testing.T) {
	alerter := openpush.NewAlerter(nil, newMemSink(), newMemStore(), time.Hour, nil)
	defer alerter.Stop()

	require.Error(t, alerter.Acknowledge(context.Background(), "missing"))
}
