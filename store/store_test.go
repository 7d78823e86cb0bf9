package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/store"
)

func TestStore_Credentials(t *testing.T) {
	s := openStore(t)

	creds, err := s.Load()
	require.NoError(t, err)
	require.True(t, creds.IsZero())

	require.NoError(t, s.Save(openpush.Credentials{Secret: "secret", DeviceID: "device"}))

	creds, err = s.Load()
	require.NoError(t, err)
	require.Equal(t, openpush.Credentials{Secret: "secret", DeviceID: "device"}, creds)

	require.NoError(t, s.Clear())

	creds, err = s.Load()
	require.NoError(t, err)
	require.True(t, creds.IsZero())
}

func TestStore_LastMessageID(t *testing.T) {
	s := openStore(t)

	id, err := s.LastMessageID()
	require.NoError(t, err)
	require.Zero(t, id)

	require.NoError(t, s.SetLastMessageID(42))
	require.NoError(t, s.SetLastMessageID(64))

	id, err = s.LastMessageID()
	require.NoError(t, err)
	require.Equal(t, int64(64), id)
}

func TestStore_AckStates(t *testing.T) {
	s := openStore(t)

	states, err := s.AckStates()
	require.NoError(t, err)
	require.Empty(t, states)

	state := openpush.AckState{
		ReceiptID: "receipt",
		Message: openpush.Message{
			ID:       7,
			Priority: openpush.PriorityEmergency,
			Title:    "fire",
			Body:     "evacuate",
			Receipt:  "receipt",
			Retry:    60,
			Expires:  time.Now().Add(time.Hour).Unix(),
		},
		NextRetryAt: time.Now().Add(time.Minute),
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	require.NoError(t, s.PutAckState(state))

	states, err = s.AckStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, state.Message, states[0].Message)
	require.True(t, state.NextRetryAt.Equal(states[0].NextRetryAt))
	require.True(t, state.ExpiresAt.Equal(states[0].ExpiresAt))
	require.False(t, states[0].Acknowledged)

	state.Acknowledged = true

	require.NoError(t, s.PutAckState(state))

	states, err = s.AckStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.True(t, states[0].Acknowledged)

	require.NoError(t, s.DeleteAckState("receipt"))

	states, err = s.AckStates()
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(openpush.Credentials{Secret: "secret", DeviceID: "device"}))
	require.NoError(t, s.SetLastMessageID(99))
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	id, err := s.LastMessageID()
	require.NoError(t, err)
	require.Equal(t, int64(99), id)

	creds, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "device", creds.DeviceID)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}
