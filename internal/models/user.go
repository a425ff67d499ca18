package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can log in and own datasets and results.
type User struct {
	UserID       uuid.UUID // UUIDv7
	Username     string
	Email        string
	PasswordHash string // bcrypt
	IsActive     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
