package notifications

import (
	"context"
	"fmt"

	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

// sink persists payment-flow alerts so operators can review them later. It is
// fire-and-forget: a failing insert is logged and swallowed because a
// notification must never fail the payment that raised it.
type sink struct {
	repo   Repository
	logger *logger.Logger
}

// NewSink builds the notification sink used by the payments service.
func NewSink(repo Repository, logg *logger.Logger) (payments.NotificationSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sink{repo: repo, logger: logg}, nil
}

func (s *sink) Notify(ctx context.Context, n payments.Notification) {
	if n.LineID != nil {
		ctx = s.logger.WithLineID(ctx, n.LineID.String())
	}
	s.logger.Info(ctx, fmt.Sprintf("notification: %s: %s", n.Title, n.Body))

	record := &models.Notification{
		LineID: n.LineID,
		Title:  n.Title,
		Body:   n.Body,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error(ctx, "persisting notification", err)
	}
}
