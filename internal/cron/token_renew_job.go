package cron

import (
	"context"
	"fmt"

	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

type tokenRenewer interface {
	RenewAllTokens(ctx context.Context) error
}

type TokenRenewJobParams struct {
	Logger    *logger.Logger
	Terminals tokenRenewer
}

// NewTokenRenewJob builds the job that refreshes terminal session tokens
// before they expire server-side.
func NewTokenRenewJob(params TokenRenewJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Terminals == nil {
		return nil, fmt.Errorf("terminal service required")
	}
	return &tokenRenewJob{logg: params.Logger, terminals: params.Terminals}, nil
}

type tokenRenewJob struct {
	logg      *logger.Logger
	terminals tokenRenewer
}

func (j *tokenRenewJob) Name() string { return "terminal-token-renew" }

func (j *tokenRenewJob) Run(ctx context.Context) error {
	if err := j.terminals.RenewAllTokens(ctx); err != nil {
		return fmt.Errorf("token renew: %w", err)
	}
	j.logg.Info(ctx, "terminal tokens renewed")
	return nil
}
