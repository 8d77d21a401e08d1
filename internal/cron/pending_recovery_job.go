package cron

import (
	"context"
	"fmt"

	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

type pendingRecoverer interface {
	RecoverPending(ctx context.Context) error
}

type PendingRecoveryJobParams struct {
	Logger   *logger.Logger
	Payments pendingRecoverer
}

// NewPendingRecoveryJob builds the job that re-polls payment lines that were
// left mid-transaction, typically after a crash or a lost connection to the
// terminal.
func NewPendingRecoveryJob(params PendingRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &pendingRecoveryJob{logg: params.Logger, payments: params.Payments}, nil
}

type pendingRecoveryJob struct {
	logg     *logger.Logger
	payments pendingRecoverer
}

func (j *pendingRecoveryJob) Name() string { return "pending-payment-recovery" }

func (j *pendingRecoveryJob) Run(ctx context.Context) error {
	if err := j.payments.RecoverPending(ctx); err != nil {
		return fmt.Errorf("pending recovery: %w", err)
	}
	j.logg.Info(ctx, "pending payment recovery complete")
	return nil
}
