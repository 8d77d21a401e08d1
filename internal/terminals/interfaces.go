package terminals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
)

// Repository defines persistence operations for the terminal registry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTerminal(ctx context.Context, terminal *models.PaymentTerminal) (*models.PaymentTerminal, error)
	FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error)
	FindTerminalByTid(ctx context.Context, tid string) (*models.PaymentTerminal, error)
	ListTerminals(ctx context.Context) ([]models.PaymentTerminal, error)
	ListEnabledTerminals(ctx context.Context) ([]models.PaymentTerminal, error)
	UpdateTerminal(ctx context.Context, terminalID uuid.UUID, updates map[string]any) error
}

// CreateTerminalInput carries the fields to register a terminal.
type CreateTerminalInput struct {
	Name     string
	Tid      string
	Mode     string
	User     string
	Password string
	Currency string
}

// Service manages configured terminals and their backend session tokens.
type Service interface {
	CreateTerminal(ctx context.Context, input CreateTerminalInput) (*models.PaymentTerminal, error)
	FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error)
	ListTerminals(ctx context.Context) ([]models.PaymentTerminal, error)
	Token(ctx context.Context, terminal *models.PaymentTerminal, force bool) (string, error)
	BaseURL(terminal *models.PaymentTerminal) string
	RenewAllTokens(ctx context.Context) error
}

// tokenCache is the subset of the redis client the token lifecycle needs.
type tokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	TerminalTokenKey(tid string) string
}

// loginClient is the subset of the hobex client the token lifecycle needs.
type loginClient interface {
	Login(ctx context.Context, baseURL, user, password string) (string, error)
}
