package models

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is a previously uploaded time series file owned by a user.
type Dataset struct {
	DatasetID uuid.UUID // UUIDv7
	UserID    uuid.UUID
	FileName  string
	FilePath  string   // location of the CSV on local storage
	Columns   []string // header columns, excluding the timestamp column

	CreatedAt time.Time
}
