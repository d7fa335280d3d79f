package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"solidify/internal/server/config"
	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/shared/models"
	"solidify/internal/shared/passhash"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrMissingFields       = errors.New("address and password required")
	ErrForbidden           = errors.New("only ADMIN members may register accounts")
)

// AccountRepository persists login accounts. Accounts authenticate callers;
// they carry no authorization.
type AccountRepository interface {
	CreateAccount(ctx context.Context, address models.Address, passwordHash []byte) (models.Account, error)
	GetAccount(ctx context.Context, address models.Address) (models.Account, []byte, error)
}

// RefreshTokenRepository keeps hashes of issued refresh tokens. Consume
// removes the token so that each one is usable once.
type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, tokenHash string, address models.Address, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (models.Address, time.Time, error)
}

// Repository is what a storage backend provides to the services.
type Repository interface {
	ledger.Store
	AccountRepository
	RefreshTokenRepository
}

// RoleChecker answers role membership questions for the auth service.
type RoleChecker interface {
	HasRole(ctx context.Context, role models.Role, account models.Address) (bool, error)
}

type credentialStore interface {
	AccountRepository
	RefreshTokenRepository
}

type Services struct {
	Auth   *AuthService
	Ledger *ledger.Ledger
}

func NewServices(repo Repository, cfg config.Config, opts ...ledger.Option) *Services {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	l := ledger.New(repo, opts...)
	return &Services{
		Auth: &AuthService{
			repo:       repo,
			roles:      l,
			jwtSecret:  []byte(cfg.JWTSecret),
			ttl:        ttl,
			refreshTTL: refreshTTL,
			now:        time.Now,
		},
		Ledger: l,
	}
}

// AuthService manages accounts and resolves bearer tokens to caller
// addresses. Only ADMIN members create accounts, so nobody can claim an
// address that roles are granted to.
type AuthService struct {
	repo       credentialStore
	roles      RoleChecker
	jwtSecret  []byte
	ttl        time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Register creates an account for address on behalf of caller, who must
// hold ADMIN.
func (a *AuthService) Register(ctx context.Context, address, password string, caller models.Address) (models.Account, error) {
	isAdmin, err := a.roles.HasRole(ctx, models.RoleAdmin, caller.Normalize())
	if err != nil {
		return models.Account{}, err
	}
	if !isAdmin {
		return models.Account{}, ErrForbidden
	}
	addr := models.ParseAddress(address)
	if addr == "" || password == "" {
		return models.Account{}, ErrMissingFields
	}
	phc, err := passhash.Hash(password)
	if err != nil {
		return models.Account{}, err
	}
	return a.repo.CreateAccount(ctx, addr, []byte(phc))
}

// EnsureAccount creates the account from a precomputed password hash unless
// it already exists. created reports whether a new account was stored.
func (a *AuthService) EnsureAccount(ctx context.Context, address models.Address, passwordHash string) (created bool, err error) {
	addr := address.Normalize()
	if addr == "" {
		return false, ErrMissingFields
	}
	if err := passhash.Validate(passwordHash); err != nil {
		return false, err
	}
	_, err = a.repo.CreateAccount(ctx, addr, []byte(passwordHash))
	if errors.Is(err, repository.ErrAccountExists) {
		return false, nil
	}
	return err == nil, err
}

// Login verifies the password and returns an access token together with a
// fresh refresh token.
func (a *AuthService) Login(ctx context.Context, address, password string) (models.TokenResponse, error) {
	addr := models.ParseAddress(address)
	_, hash, err := a.repo.GetAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.TokenResponse{}, ErrInvalidCredentials
		}
		return models.TokenResponse{}, err
	}
	ok, err := passhash.Verify(string(hash), password)
	if err != nil || !ok {
		return models.TokenResponse{}, ErrInvalidCredentials
	}
	return a.issueTokens(ctx, addr)
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is consumed whether or not it is still valid.
func (a *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenResponse, error) {
	if refreshToken == "" {
		return models.TokenResponse{}, ErrInvalidRefreshToken
	}
	addr, exp, err := a.repo.ConsumeRefreshToken(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return models.TokenResponse{}, ErrInvalidRefreshToken
		}
		return models.TokenResponse{}, err
	}
	if !a.now().Before(exp) {
		return models.TokenResponse{}, ErrInvalidRefreshToken
	}
	if _, _, err := a.repo.GetAccount(ctx, addr); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.TokenResponse{}, ErrInvalidRefreshToken
		}
		return models.TokenResponse{}, err
	}
	return a.issueTokens(ctx, addr)
}

func (a *AuthService) issueTokens(ctx context.Context, addr models.Address) (models.TokenResponse, error) {
	tok, err := a.IssueAccessToken(addr, a.ttl)
	if err != nil {
		return models.TokenResponse{}, err
	}
	refresh := uuid.NewString()
	if err := a.repo.SaveRefreshToken(ctx, hashRefreshToken(refresh), addr, a.now().Add(a.refreshTTL)); err != nil {
		return models.TokenResponse{}, err
	}
	tok.RefreshToken = refresh
	return tok, nil
}

// Only the digest of a refresh token is stored.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (a *AuthService) IssueAccessToken(addr models.Address, ttl time.Duration) (models.TokenResponse, error) {
	exp := a.now().Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   string(addr.Normalize()),
		IssuedAt:  jwt.NewNumericDate(a.now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return models.TokenResponse{}, err
	}
	return models.TokenResponse{AccessToken: signed, ExpiresAt: exp.UTC().Truncate(time.Second)}, nil
}

// ParseToken returns the caller address carried by token.
func (a *AuthService) ParseToken(_ context.Context, token string) (models.Address, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	addr := models.ParseAddress(claims.Subject)
	if addr == "" {
		return "", ErrInvalidToken
	}
	return addr, nil
}
