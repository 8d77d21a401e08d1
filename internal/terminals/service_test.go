package terminals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/config"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
	"github.com/callino/pos-hobex-bridge/pkg/redis"
)

type stubTerminalRepo struct {
	terminals map[uuid.UUID]*models.PaymentTerminal
	byTid     map[string]*models.PaymentTerminal
}

func newStubTerminalRepo() *stubTerminalRepo {
	return &stubTerminalRepo{
		terminals: make(map[uuid.UUID]*models.PaymentTerminal),
		byTid:     make(map[string]*models.PaymentTerminal),
	}
}

func (r *stubTerminalRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubTerminalRepo) CreateTerminal(ctx context.Context, terminal *models.PaymentTerminal) (*models.PaymentTerminal, error) {
	if _, exists := r.byTid[terminal.Tid]; exists {
		return nil, errors.New(`duplicate key value violates unique constraint "idx_payment_terminals_tid"`)
	}
	if terminal.ID == uuid.Nil {
		terminal.ID = uuid.New()
	}
	r.terminals[terminal.ID] = terminal
	r.byTid[terminal.Tid] = terminal
	return terminal, nil
}

func (r *stubTerminalRepo) FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error) {
	terminal, ok := r.terminals[terminalID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return terminal, nil
}

func (r *stubTerminalRepo) FindTerminalByTid(ctx context.Context, tid string) (*models.PaymentTerminal, error) {
	terminal, ok := r.byTid[tid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return terminal, nil
}

func (r *stubTerminalRepo) ListTerminals(ctx context.Context) ([]models.PaymentTerminal, error) {
	var out []models.PaymentTerminal
	for _, terminal := range r.terminals {
		out = append(out, *terminal)
	}
	return out, nil
}

func (r *stubTerminalRepo) ListEnabledTerminals(ctx context.Context) ([]models.PaymentTerminal, error) {
	var out []models.PaymentTerminal
	for _, terminal := range r.terminals {
		if terminal.Enabled {
			out = append(out, *terminal)
		}
	}
	return out, nil
}

func (r *stubTerminalRepo) UpdateTerminal(ctx context.Context, terminalID uuid.UUID, updates map[string]any) error {
	return nil
}

type stubLogin struct {
	token  string
	err    error
	logins int
}

func (l *stubLogin) Login(ctx context.Context, baseURL, user, password string) (string, error) {
	l.logins++
	return l.token, l.err
}

type stubCache struct {
	values map[string]string
	sets   int
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (c *stubCache) Get(ctx context.Context, key string) (string, error) {
	value, ok := c.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (c *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.sets++
	c.values[key] = value.(string)
	return nil
}

func (c *stubCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func (c *stubCache) TerminalTokenKey(tid string) string {
	return "hb:token:" + tid
}

func newTerminalService(t *testing.T, repo Repository, login loginClient, cache tokenCache) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Hobex:  login,
		Cache:  cache,
		Logger: logger.New(logger.Options{ServiceName: "terminals-test"}),
		Config: config.HobexConfig{Currency: "EUR", TokenTTL: time.Hour},
	})
	require.NoError(t, err)
	return svc
}

func TestCreateTerminalValidatesAndDefaults(t *testing.T) {
	repo := newStubTerminalRepo()
	svc := newTerminalService(t, repo, &stubLogin{}, newStubCache())

	terminal, err := svc.CreateTerminal(context.Background(), CreateTerminalInput{
		Tid:      "T100",
		Mode:     "testing",
		User:     "merchant",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "T100", terminal.Name)
	assert.Equal(t, "EUR", terminal.Currency)
	assert.Equal(t, enums.TerminalModeTesting, terminal.Mode)
	assert.True(t, terminal.Enabled)

	_, err = svc.CreateTerminal(context.Background(), CreateTerminalInput{
		Tid:      "T100",
		Mode:     "testing",
		User:     "merchant",
		Password: "secret",
	})
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeConflict, domainErr.Code())
}

func TestCreateTerminalRejectsInvalidMode(t *testing.T) {
	svc := newTerminalService(t, newStubTerminalRepo(), &stubLogin{}, newStubCache())

	_, err := svc.CreateTerminal(context.Background(), CreateTerminalInput{
		Tid:      "T100",
		Mode:     "staging",
		User:     "merchant",
		Password: "secret",
	})
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeValidation, domainErr.Code())
}

func TestTokenUsesCacheUntilForced(t *testing.T) {
	login := &stubLogin{token: "tok-1"}
	cache := newStubCache()
	svc := newTerminalService(t, newStubTerminalRepo(), login, cache)
	terminal := &models.PaymentTerminal{Tid: "T100", Mode: enums.TerminalModeTesting, User: "u", Password: "p"}

	token, err := svc.Token(context.Background(), terminal, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, login.logins)

	// Cached now; no second login.
	token, err = svc.Token(context.Background(), terminal, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, login.logins)

	login.token = "tok-2"
	token, err = svc.Token(context.Background(), terminal, true)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, 2, login.logins)
}

func TestBaseURLDerivesFromModeWithOverride(t *testing.T) {
	svc := newTerminalService(t, newStubTerminalRepo(), &stubLogin{}, newStubCache())

	test := &models.PaymentTerminal{Mode: enums.TerminalModeTesting}
	prod := &models.PaymentTerminal{Mode: enums.TerminalModeProduction}
	assert.Equal(t, "https://hobexplus.brunn.hobex.at", svc.BaseURL(test))
	assert.Equal(t, "https://online.hobex.at", svc.BaseURL(prod))

	svcOverride, err := NewService(ServiceParams{
		Repo:   newStubTerminalRepo(),
		Hobex:  &stubLogin{},
		Cache:  newStubCache(),
		Logger: logger.New(logger.Options{ServiceName: "terminals-test"}),
		Config: config.HobexConfig{APIAddress: "http://localhost:9999"},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", svcOverride.BaseURL(prod))
}

func TestRenewAllTokensAggregatesFailures(t *testing.T) {
	repo := newStubTerminalRepo()
	login := &stubLogin{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "hobex authentication failed")}
	svc := newTerminalService(t, repo, login, newStubCache())

	for _, tid := range []string{"T100", "T200"} {
		_, err := repo.CreateTerminal(context.Background(), &models.PaymentTerminal{
			Tid: tid, Mode: enums.TerminalModeTesting, User: "u", Password: "p", Enabled: true,
		})
		require.NoError(t, err)
	}

	err := svc.RenewAllTokens(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, login.logins)
}
