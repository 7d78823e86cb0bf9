package openpush

// LoginReq is the form body of a login call.
type LoginReq struct {
	Email    string
	Password string

	// TwoFA is the one-time second-factor code. Leave empty unless the relay
	// answered a previous login attempt with ErrTwoFARequired.
	TwoFA string
}

func (req LoginReq) toFormData() map[string]string {
	form := map[string]string{
		"email":    req.Email,
		"password": req.Password,
	}

	if req.TwoFA != "" {
		form["twofa"] = req.TwoFA
	}

	return form
}

// LoginRes is the relay's answer to a successful login. The secret is the
// long-lived session token used by all authenticated calls; it stays valid
// until the user revokes it or logs in from a superseding client.
type LoginRes struct {
	Status    int    `json:"status"`
	UserID    string `json:"id"`
	Secret    string `json:"secret"`
	RequestID string `json:"request"`
}

// RegisterDeviceReq is the form body of a device registration call.
// OS is a short platform code; open clients report OSOpenClient.
type RegisterDeviceReq struct {
	Name string
	OS   string
}

// OSOpenClient is the platform code reported by open (non-mobile) clients.
const OSOpenClient = "O"

func (req RegisterDeviceReq) toFormData(secret string) map[string]string {
	return map[string]string{
		"secret": secret,
		"name":   req.Name,
		"os":     req.OS,
	}
}

// RegisterDeviceRes is the relay's answer to a device registration.
type RegisterDeviceRes struct {
	Status    int    `json:"status"`
	DeviceID  string `json:"id"`
	RequestID string `json:"request"`
}

// Credentials is the token pair identifying one registered device session.
// It is opaque to the delivery engine; persistence is the credential store's
// concern.
type Credentials struct {
	Secret   string `json:"secret"`
	DeviceID string `json:"device_id"`
}

// IsZero reports whether the credentials are absent.
func (c Credentials) IsZero() bool {
	return c.Secret == "" || c.DeviceID == ""
}
