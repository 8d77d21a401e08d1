package terminals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a terminal registry repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTerminal(ctx context.Context, terminal *models.PaymentTerminal) (*models.PaymentTerminal, error) {
	if err := r.db.WithContext(ctx).Create(terminal).Error; err != nil {
		return nil, err
	}
	return terminal, nil
}

func (r *repository) FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error) {
	var terminal models.PaymentTerminal
	err := r.db.WithContext(ctx).
		Where("id = ?", terminalID).
		First(&terminal).Error
	if err != nil {
		return nil, err
	}
	return &terminal, nil
}

func (r *repository) FindTerminalByTid(ctx context.Context, tid string) (*models.PaymentTerminal, error) {
	var terminal models.PaymentTerminal
	err := r.db.WithContext(ctx).
		Where("tid = ?", tid).
		First(&terminal).Error
	if err != nil {
		return nil, err
	}
	return &terminal, nil
}

func (r *repository) ListTerminals(ctx context.Context) ([]models.PaymentTerminal, error) {
	var terminals []models.PaymentTerminal
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&terminals).Error
	if err != nil {
		return nil, err
	}
	return terminals, nil
}

func (r *repository) ListEnabledTerminals(ctx context.Context) ([]models.PaymentTerminal, error) {
	var terminals []models.PaymentTerminal
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&terminals).Error
	if err != nil {
		return nil, err
	}
	return terminals, nil
}

func (r *repository) UpdateTerminal(ctx context.Context, terminalID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTerminal{}).
		Where("id = ?", terminalID).
		Updates(updates).Error
}
