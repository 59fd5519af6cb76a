package models

import "time"

// Session is an opaque bearer-token login. A session is valid while
// now < ExpiresAt; invalidation deletes the row.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Token        string    `json:"-"`
	IsMobile     bool      `json:"is_mobile"`
	MFAVerified  bool      `json:"mfa_verified"`
	DeviceType   string    `json:"device_type,omitempty"`
	OS           string    `json:"os,omitempty"`
	Browser      string    `json:"browser,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DeviceInfo describes the client a session is created for. Two sessions of
// the same user with equal DeviceInfo (location aside) are the same device.
type DeviceInfo struct {
	IsMobile   bool   `json:"is_mobile"`
	DeviceType string `json:"device_type,omitempty" validate:"max=50"`
	OS         string `json:"os,omitempty" validate:"max=50"`
	Browser    string `json:"browser,omitempty" validate:"max=50"`
	IPAddress  string `json:"-"`
	Location   string `json:"location,omitempty" validate:"max=255"`
}

// SessionResponse is returned after login or registration.
type SessionResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	MFAVerified  bool      `json:"mfa_verified"`
}

func (s *Session) ToResponse() *SessionResponse {
	return &SessionResponse{
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
		MFAVerified:  s.MFAVerified,
	}
}
