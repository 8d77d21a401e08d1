package terminals

import (
	"context"
	"fmt"

	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
)

// transactionClient is the subset of the hobex client the gateway needs.
type transactionClient interface {
	RequestPayment(ctx context.Context, creds hobex.Credentials, params hobex.PaymentParams) (*hobex.TransactionResult, error)
	RequestStatus(ctx context.Context, creds hobex.Credentials, transactionID string, sync bool) (*hobex.TransactionResult, error)
	RequestReversal(ctx context.Context, creds hobex.Credentials, transactionID string) (*hobex.TransactionResult, error)
}

// gateway adapts the raw hobex client to the payments.Gateway boundary: it
// resolves the terminal's session token before each call and retries once
// with a fresh login when the backend rejects the token.
type gateway struct {
	client transactionClient
	tokens Service
}

// NewGateway builds the terminal gateway used by the payments service.
func NewGateway(client transactionClient, tokens Service) (payments.Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("hobex client required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("terminal service required")
	}
	return &gateway{client: client, tokens: tokens}, nil
}

func (g *gateway) RequestPayment(ctx context.Context, terminal *models.PaymentTerminal, params hobex.PaymentParams) (*hobex.TransactionResult, error) {
	return g.withCreds(ctx, terminal, func(creds hobex.Credentials) (*hobex.TransactionResult, error) {
		return g.client.RequestPayment(ctx, creds, params)
	})
}

func (g *gateway) RequestStatus(ctx context.Context, terminal *models.PaymentTerminal, transactionID string, sync bool) (*hobex.TransactionResult, error) {
	return g.withCreds(ctx, terminal, func(creds hobex.Credentials) (*hobex.TransactionResult, error) {
		return g.client.RequestStatus(ctx, creds, transactionID, sync)
	})
}

func (g *gateway) RequestReversal(ctx context.Context, terminal *models.PaymentTerminal, transactionID string) (*hobex.TransactionResult, error) {
	return g.withCreds(ctx, terminal, func(creds hobex.Credentials) (*hobex.TransactionResult, error) {
		return g.client.RequestReversal(ctx, creds, transactionID)
	})
}

func (g *gateway) withCreds(ctx context.Context, terminal *models.PaymentTerminal, call func(hobex.Credentials) (*hobex.TransactionResult, error)) (*hobex.TransactionResult, error) {
	creds, err := g.creds(ctx, terminal, false)
	if err != nil {
		return nil, err
	}

	result, err := call(creds)
	if err == nil || !isTokenRejected(err) {
		return result, err
	}

	// Stale cached token; one fresh login, one retry.
	creds, err = g.creds(ctx, terminal, true)
	if err != nil {
		return nil, err
	}
	return call(creds)
}

func (g *gateway) creds(ctx context.Context, terminal *models.PaymentTerminal, force bool) (hobex.Credentials, error) {
	token, err := g.tokens.Token(ctx, terminal, force)
	if err != nil {
		return hobex.Credentials{}, err
	}
	return hobex.Credentials{
		BaseURL: g.tokens.BaseURL(terminal),
		Tid:     terminal.Tid,
		Token:   token,
	}, nil
}

func isTokenRejected(err error) bool {
	domainErr := pkgerrors.As(err)
	return domainErr != nil && domainErr.Code() == pkgerrors.CodeUnauthorized
}
