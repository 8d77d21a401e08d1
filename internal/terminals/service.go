package terminals

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/config"
	"github.com/callino/pos-hobex-bridge/pkg/db"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
	"github.com/callino/pos-hobex-bridge/pkg/redis"
)

// ServiceParams bundles the dependencies for the terminal service.
type ServiceParams struct {
	Repo   Repository
	Hobex  loginClient
	Cache  tokenCache
	Logger *logger.Logger
	Config config.HobexConfig
}

type service struct {
	repo   Repository
	hobex  loginClient
	cache  tokenCache
	logger *logger.Logger
	cfg    config.HobexConfig
}

var _ tokenCache = (*redis.Client)(nil)

// NewService builds the terminal registry service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("terminals repository required")
	}
	if params.Hobex == nil {
		return nil, fmt.Errorf("hobex client required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("token cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		hobex:  params.Hobex,
		cache:  params.Cache,
		logger: params.Logger,
		cfg:    params.Config,
	}, nil
}

func (s *service) CreateTerminal(ctx context.Context, input CreateTerminalInput) (*models.PaymentTerminal, error) {
	if input.Tid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "terminal tid required")
	}
	if input.User == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "terminal credentials required")
	}
	mode, err := enums.ParseTerminalMode(input.Mode)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid terminal mode").WithDetails(input.Mode)
	}

	name := input.Name
	if name == "" {
		name = input.Tid
	}
	currency := input.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	terminal := &models.PaymentTerminal{
		Name:     name,
		Tid:      input.Tid,
		Mode:     mode,
		User:     input.User,
		Password: input.Password,
		Currency: currency,
		Enabled:  true,
	}
	created, err := s.repo.CreateTerminal(ctx, terminal)
	if err != nil {
		if db.IsUniqueViolation(err, "idx_payment_terminals_tid") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "terminal tid already registered").WithDetails(input.Tid)
		}
		return nil, err
	}
	return created, nil
}

func (s *service) FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error) {
	if terminalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "terminal id required")
	}
	terminal, err := s.repo.FindTerminal(ctx, terminalID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "terminal not found")
		}
		return nil, err
	}
	return terminal, nil
}

func (s *service) ListTerminals(ctx context.Context) ([]models.PaymentTerminal, error) {
	return s.repo.ListTerminals(ctx)
}

// BaseURL resolves the backend address for a terminal. A configured override
// takes precedence over the mode-derived address (used for dev and tests).
func (s *service) BaseURL(terminal *models.PaymentTerminal) string {
	if s.cfg.APIAddress != "" {
		return s.cfg.APIAddress
	}
	return terminal.APIAddress()
}

// Token returns the terminal's session token, logging in when the cache has
// none or when force is set. Tokens expire server-side, so they are cached
// with a TTL and renewed by cron before that.
func (s *service) Token(ctx context.Context, terminal *models.PaymentTerminal, force bool) (string, error) {
	key := s.cache.TerminalTokenKey(terminal.Tid)
	if !force {
		token, err := s.cache.Get(ctx, key)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && err != redis.Nil {
			s.logger.Warn(ctx, fmt.Sprintf("reading token cache: %v", err))
		}
	}

	token, err := s.hobex.Login(ctx, s.BaseURL(terminal), terminal.User, terminal.Password)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, key, token, s.cfg.TokenTTL); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("caching token: %v", err))
	}
	return token, nil
}

// RenewAllTokens refreshes the session token of every enabled terminal. One
// failing terminal does not stop the sweep.
func (s *service) RenewAllTokens(ctx context.Context) error {
	terminals, err := s.repo.ListEnabledTerminals(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled terminals: %w", err)
	}

	var errs error
	for i := range terminals {
		terminal := &terminals[i]
		tctx := s.logger.WithTerminalID(ctx, terminal.Tid)
		if _, err := s.Token(tctx, terminal, true); err != nil {
			s.logger.Error(tctx, "renewing terminal token", err)
			errs = multierr.Append(errs, fmt.Errorf("terminal %s: %w", terminal.Tid, err))
		}
	}
	return errs
}
