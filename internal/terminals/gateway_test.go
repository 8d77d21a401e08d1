package terminals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
)

type stubTransactionClient struct {
	rejectTokens map[string]bool
	tokensSeen   []string
	calls        int
	result       *hobex.TransactionResult
	err          error
}

func (c *stubTransactionClient) handle(creds hobex.Credentials) (*hobex.TransactionResult, error) {
	c.calls++
	c.tokensSeen = append(c.tokensSeen, creds.Token)
	if c.rejectTokens[creds.Token] {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "hobex rejected the session token")
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *stubTransactionClient) RequestPayment(ctx context.Context, creds hobex.Credentials, params hobex.PaymentParams) (*hobex.TransactionResult, error) {
	return c.handle(creds)
}

func (c *stubTransactionClient) RequestStatus(ctx context.Context, creds hobex.Credentials, transactionID string, sync bool) (*hobex.TransactionResult, error) {
	return c.handle(creds)
}

func (c *stubTransactionClient) RequestReversal(ctx context.Context, creds hobex.Credentials, transactionID string) (*hobex.TransactionResult, error) {
	return c.handle(creds)
}

func newGatewayFixture(t *testing.T, client transactionClient, login *stubLogin, cache *stubCache) (*gateway, *models.PaymentTerminal) {
	t.Helper()
	tokens := newTerminalService(t, newStubTerminalRepo(), login, cache)
	gw, err := NewGateway(client, tokens)
	require.NoError(t, err)
	terminal := &models.PaymentTerminal{
		Tid: "T100", Mode: enums.TerminalModeTesting, User: "u", Password: "p", Enabled: true,
	}
	return gw.(*gateway), terminal
}

func TestGatewayResolvesCredentialsPerCall(t *testing.T) {
	client := &stubTransactionClient{result: &hobex.TransactionResult{ResponseCode: "0"}}
	gw, terminal := newGatewayFixture(t, client, &stubLogin{token: "tok-1"}, newStubCache())

	result, err := gw.RequestPayment(context.Background(), terminal, hobex.PaymentParams{
		TransactionID: "1700000000000", Amount: 10, Currency: "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "0", result.ResponseCode)
	assert.Equal(t, []string{"tok-1"}, client.tokensSeen)
}

func TestGatewayRetriesOnceAfterTokenRejection(t *testing.T) {
	// A stale token sits in the cache; the backend rejects it and the
	// gateway logs in again before retrying exactly once.
	cache := newStubCache()
	cache.values["hb:token:T100"] = "stale"
	client := &stubTransactionClient{
		rejectTokens: map[string]bool{"stale": true},
		result:       &hobex.TransactionResult{ResponseCode: "0"},
	}
	login := &stubLogin{token: "fresh"}
	gw, terminal := newGatewayFixture(t, client, login, cache)

	result, err := gw.RequestStatus(context.Background(), terminal, "1700000000000", true)
	require.NoError(t, err)
	assert.Equal(t, "0", result.ResponseCode)
	assert.Equal(t, []string{"stale", "fresh"}, client.tokensSeen)
	assert.Equal(t, 1, login.logins)
}

func TestGatewayDoesNotRetryWhenFreshTokenIsRejected(t *testing.T) {
	client := &stubTransactionClient{
		rejectTokens: map[string]bool{"stale": true, "fresh": true},
	}
	cache := newStubCache()
	cache.values["hb:token:T100"] = "stale"
	gw, terminal := newGatewayFixture(t, client, &stubLogin{token: "fresh"}, cache)

	_, err := gw.RequestReversal(context.Background(), terminal, "1700000000000")
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeUnauthorized, domainErr.Code())
	assert.Equal(t, 2, client.calls)
}

func TestGatewayPassesThroughTransportErrors(t *testing.T) {
	client := &stubTransactionClient{
		err: &hobex.TransportError{Op: "payment", Err: context.DeadlineExceeded},
	}
	gw, terminal := newGatewayFixture(t, client, &stubLogin{token: "tok-1"}, newStubCache())

	_, err := gw.RequestPayment(context.Background(), terminal, hobex.PaymentParams{})
	require.Error(t, err)
	assert.True(t, hobex.IsTransport(err))
	assert.Equal(t, 1, client.calls)
}
