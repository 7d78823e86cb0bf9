package openpush

import (
	"context"
	"errors"
	"net/http"
)

// Login exchanges account credentials for a device secret. If the account has
// a second factor enabled and req carries no code, ErrTwoFARequired is
// returned and the call must be repeated with the code filled in.
func (m *Manager) Login(ctx context.Context, req LoginReq) (LoginRes, error) {
	var res LoginRes

	if _, err := m.r(ctx).SetFormData(req.toFormData()).SetResult(&res).Post("/1/users/login.json"); err != nil {
		var apiErr *APIError

		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return LoginRes{}, ErrTwoFARequired
		}

		return LoginRes{}, err
	}

	return res, nil
}

// RegisterDevice registers a new device under the account owning the secret.
// The relay creates a fresh delivery queue for it; the returned device ID must
// be kept alongside the secret.
func (m *Manager) RegisterDevice(ctx context.Context, secret string, req RegisterDeviceReq) (RegisterDeviceRes, error) {
	if req.OS == "" {
		req.OS = OSOpenClient
	}

	var res RegisterDeviceRes

	if _, err := m.r(ctx).SetFormData(req.toFormData(secret)).SetResult(&res).Post("/1/devices.json"); err != nil {
		return RegisterDeviceRes{}, err
	}

	return res, nil
}

// NewClient returns a client that calls the request channel with previously
// obtained credentials.
func (m *Manager) NewClient(creds Credentials) *Client {
	return newClient(m, creds)
}

// NewClientWithLogin logs the account in, registers a device under the given
// name and returns a client holding the resulting credential pair.
func (m *Manager) NewClientWithLogin(ctx context.Context, deviceName string, req LoginReq) (*Client, Credentials, error) {
	login, err := m.Login(ctx, req)
	if err != nil {
		return nil, Credentials{}, err
	}

	device, err := m.RegisterDevice(ctx, login.Secret, RegisterDeviceReq{Name: deviceName})
	if err != nil {
		return nil, Credentials{}, err
	}

	creds := Credentials{
		Secret:   login.Secret,
		DeviceID: device.DeviceID,
	}

	return newClient(m, creds), creds, nil
}
