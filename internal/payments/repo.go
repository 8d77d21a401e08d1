package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateLine(ctx context.Context, line *models.PaymentLine) (*models.PaymentLine, error) {
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		return nil, err
	}
	return line, nil
}

func (r *repository) FindLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error) {
	var line models.PaymentLine
	err := r.db.WithContext(ctx).
		Where("id = ?", lineID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) SaveLine(ctx context.Context, line *models.PaymentLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *repository) UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentLine{}).
		Where("id = ?", lineID).
		Updates(updates).Error
}

func (r *repository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", lineID).
		Delete(&models.PaymentLine{}).Error
}

func (r *repository) ListLinesByOrder(ctx context.Context, orderReference string) ([]models.PaymentLine, error) {
	var lines []models.PaymentLine
	err := r.db.WithContext(ctx).
		Where("order_reference = ?", orderReference).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// FindPendingLines returns lines stuck mid-payment: a transaction was started
// but no terminal response was recorded, typically after a restart.
func (r *repository) FindPendingLines(ctx context.Context) ([]models.PaymentLine, error) {
	var lines []models.PaymentLine
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PaymentLineStatusWaitingCard).
		Where("transaction_id <> ''").
		Where("hobex_response_code = ''").
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.TerminalTransaction) (*models.TerminalTransaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) UpdateTransaction(ctx context.Context, tid, transactionID string, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.TerminalTransaction{}).
		Where("tid = ? AND transaction_id = ?", tid, transactionID).
		Updates(updates).Error
}

func (r *repository) ListTransactions(ctx context.Context, limit int) ([]models.TerminalTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.TerminalTransaction
	err := r.db.WithContext(ctx).
		Order("transaction_date DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
