package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the refresh session a user holds on one device.
// There is at most one session per (UserID, DeviceKey); logging in again on the
// same device replaces the refresh token hash.
type Session struct {
	UserID    uuid.UUID
	DeviceKey string // Base58-encoded SHA256(DeviceFingerprint)

	// DeviceFingerprint is the raw client supplied value, usually the user agent.
	DeviceFingerprint string

	// RefreshTokenHash is the hex SHA256 of the latest refresh token issued for this device.
	RefreshTokenHash string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Optional audit metadata
	IPAddress string
}
