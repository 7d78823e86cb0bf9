package backend

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

var (
	// ErrBadCredentials is returned when an email, password, second factor,
	// secret or device id does not match the stored state.
	ErrBadCredentials = errors.New("invalid credentials")

	// ErrTwoFARequired is returned by Login when the account has a second
	// factor enabled and no code was supplied.
	ErrTwoFARequired = errors.New("two-factor code required")
)

// Backend manages the relay's state: accounts, their devices, the per-device
// message queues and the emergency receipts.
type Backend struct {
	accounts map[string]*account
	accLock  sync.RWMutex

	messages  map[int64]*message
	lastMsgID int64
	msgLock   sync.Mutex

	receipts map[string]*receipt
	rcptLock sync.Mutex
}

func New() *Backend {
	return &Backend{
		accounts: make(map[string]*account),
		messages: make(map[int64]*message),
		receipts: make(map[string]*receipt),
	}
}

func (b *Backend) CreateUser(email string, password []byte) (string, error) {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	for _, acc := range b.accounts {
		if acc.email == email {
			return "", fmt.Errorf("user %s already exists", email)
		}
	}

	userID := uuid.NewString()

	b.accounts[userID] = newAccount(userID, email, password)

	return userID, nil
}

// SetTwoFA enables the account's second factor; every login from now on must
// carry the given code. An empty code disables the factor again.
func (b *Backend) SetTwoFA(userID, code string) error {
	return b.withAcc(userID, func(acc *account) error {
		acc.twoFA = code

		return nil
	})
}

// Login validates the account credentials and issues a fresh session secret.
func (b *Backend) Login(email string, password []byte, twoFA string) (string, string, error) {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	for _, acc := range b.accounts {
		if acc.email != email {
			continue
		}

		if !bytes.Equal(acc.password, password) {
			return "", "", ErrBadCredentials
		}

		if acc.twoFA != "" {
			if twoFA == "" {
				return "", "", ErrTwoFARequired
			}

			if twoFA != acc.twoFA {
				return "", "", ErrBadCredentials
			}
		}

		secret := uuid.NewString()

		acc.secrets[secret] = struct{}{}

		return acc.userID, secret, nil
	}

	return "", "", ErrBadCredentials
}

// RegisterDevice creates a device with an empty queue under the account
// owning the secret.
func (b *Backend) RegisterDevice(secret, name, os string) (string, error) {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	acc, ok := b.accBySecret(secret)
	if !ok {
		return "", ErrBadCredentials
	}

	deviceID := uuid.NewString()

	acc.devices[deviceID] = newDevice(deviceID, name, os)

	return deviceID, nil
}

// VerifyDevice checks that the secret is valid and the device belongs to the
// same account, returning the owning user id.
func (b *Backend) VerifyDevice(secret, deviceID string) (string, error) {
	b.accLock.RLock()
	defer b.accLock.RUnlock()

	acc, ok := b.accBySecret(secret)
	if !ok {
		return "", ErrBadCredentials
	}

	if _, ok := acc.devices[deviceID]; !ok {
		return "", ErrBadCredentials
	}

	return acc.userID, nil
}

// DeviceIDs returns the ids of the user's registered devices.
func (b *Backend) DeviceIDs(userID string) ([]string, error) {
	var deviceIDs []string

	if err := b.withAcc(userID, func(acc *account) error {
		deviceIDs = maps.Keys(acc.devices)

		return nil
	}); err != nil {
		return nil, err
	}

	return deviceIDs, nil
}

// RevokeUser drops every session secret of the user, invalidating all stored
// credentials at once. It returns the ids of the user's devices so the feed
// layer can tell their live sessions.
func (b *Backend) RevokeUser(userID string) ([]string, error) {
	var deviceIDs []string

	if err := b.withAcc(userID, func(acc *account) error {
		maps.Clear(acc.secrets)

		deviceIDs = maps.Keys(acc.devices)

		return nil
	}); err != nil {
		return nil, err
	}

	return deviceIDs, nil
}

func (b *Backend) withAcc(userID string, fn func(acc *account) error) error {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	acc, ok := b.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s not found", userID)
	}

	return fn(acc)
}

func (b *Backend) withDevice(deviceID string, fn func(device *device) error) error {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	for _, acc := range b.accounts {
		if device, ok := acc.devices[deviceID]; ok {
			return fn(device)
		}
	}

	return fmt.Errorf("device %s not found", deviceID)
}

// accBySecret must be called with accLock held.
func (b *Backend) accBySecret(secret string) (*account, bool) {
	if secret == "" {
		return nil, false
	}

	for _, acc := range b.accounts {
		if _, ok := acc.secrets[secret]; ok {
			return acc, true
		}
	}

	return nil, false
}
