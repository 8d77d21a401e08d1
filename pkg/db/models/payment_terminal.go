package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/callino/pos-hobex-bridge/pkg/enums"
)

// PaymentTerminal is one configured hobex terminal. Auth tokens are not
// persisted here; they live in redis with a TTL.
type PaymentTerminal struct {
	ID       uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name     string             `gorm:"column:name;not null"`
	Tid      string             `gorm:"column:tid;not null;unique"`
	Mode     enums.TerminalMode `gorm:"column:mode;not null;default:'production'"`
	User     string             `gorm:"column:api_user;not null"`
	Password string             `gorm:"column:api_password;not null"`
	Currency string             `gorm:"column:currency;not null;default:'EUR'"`
	Enabled  bool               `gorm:"column:enabled;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// APIAddress returns the hobex backend for the terminal's mode.
func (t *PaymentTerminal) APIAddress() string {
	if t.Mode == enums.TerminalModeTesting {
		return "https://hobexplus.brunn.hobex.at"
	}
	return "https://online.hobex.at"
}
