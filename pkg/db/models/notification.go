package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification stores operator-facing alerts emitted by the payment flow.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LineID    *uuid.UUID `gorm:"column:line_id;type:uuid;index"`
	Title     string     `gorm:"column:title;type:text;not null"`
	Body      string     `gorm:"column:body;type:text;not null"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
