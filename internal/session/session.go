// Package session defines the server-side session model and the two pieces
// of crypto around it: the signed browser cookie and the sealed credential
// blob stored at rest.
package session

import "time"

// RefreshErrorValue is recorded on the session when the provider refuses a
// refresh-token grant. The refresh token cannot self-heal; the only way out
// is a full re-login.
const RefreshErrorValue = "RefreshAccessTokenError"

// Credential holds the OAuth tokens for one authenticated user.
// Invariant: an access token past ExpiresAt is never sent upstream without
// refreshing first.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Session is the server-side state keyed by the browser cookie. DeviceNames
// holds per-session display-name overrides keyed by device id.
type Session struct {
	ID          string
	CreatedAt   time.Time
	Credential  *Credential
	DeviceNames map[string]string
	AuthError   string
}

// Name returns the session override for a device id, or "" when none is set.
func (s *Session) Name(deviceID string) string {
	if s == nil || s.DeviceNames == nil {
		return ""
	}
	return s.DeviceNames[deviceID]
}

// SetName records a display-name override, allocating the map on first use.
func (s *Session) SetName(deviceID, name string) {
	if s.DeviceNames == nil {
		s.DeviceNames = make(map[string]string)
	}
	s.DeviceNames[deviceID] = name
}
