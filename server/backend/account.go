package backend

type account struct {
	userID   string
	email    string
	password []byte

	// twoFA is the code the account's second factor currently produces.
	// Empty means the second factor is disabled.
	twoFA string

	// secrets are the session secrets issued by login, any of which
	// authenticates the account until revoked.
	secrets map[string]struct{}

	devices map[string]*device
}

func newAccount(userID, email string, password []byte) *account {
	return &account{
		userID:   userID,
		email:    email,
		password: password,

		secrets: make(map[string]struct{}),
		devices: make(map[string]*device),
	}
}

type device struct {
	deviceID string
	name     string
	os       string

	// queue holds the ids of the messages queued for the device, in push
	// order. Ids only leave the queue through the delivered watermark.
	queue []int64
}

func newDevice(deviceID, name, os string) *device {
	return &device{
		deviceID: deviceID,
		name:     name,
		os:       os,
	}
}
