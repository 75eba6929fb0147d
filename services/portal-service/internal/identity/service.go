package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/auth"
	"github.com/md-rashed-zaman/homeaudit/libs/validation"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/storage"
)

// Store persists customers, their sessions and admin accounts. Token arguments
// are always SHA-256 digests, never raw tokens.
type Store interface {
	// CreateCustomer inserts the customer and its first session atomically.
	// A duplicate email yields storage.ErrConflict.
	CreateCustomer(ctx context.Context, c model.Customer, s model.CustomerSession) error
	ActiveCustomerByEmail(ctx context.Context, email string) (model.Customer, error)
	CustomerBySession(ctx context.Context, tokenHash string, now time.Time) (model.Customer, error)
	// RecordLogin stamps last_login_at and adds the session.
	RecordLogin(ctx context.Context, customerID string, at time.Time, s model.CustomerSession) error
	DeleteSession(ctx context.Context, tokenHash string) error
	ConsumeVerification(ctx context.Context, tokenHash string) (bool, error)
	SetResetToken(ctx context.Context, customerID, tokenHash string, expiresAt time.Time) error
	// ResetPassword swaps the hash, clears the reset token and deletes every
	// session of the customer. Unknown or expired tokens yield storage.ErrNotFound.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	AdminByUsername(ctx context.Context, username string) (model.AdminUser, error)
	CreateAdmin(ctx context.Context, u model.AdminUser) (bool, error)
}

type Mailer interface {
	SendWelcome(ctx context.Context, c model.Customer, verificationToken string) error
	SendPasswordReset(ctx context.Context, c model.Customer, resetToken string) error
}

type Config struct {
	SessionTTL time.Duration
	ResetTTL   time.Duration
	// PasswordCost overrides the bcrypt cost; tests use bcrypt.MinCost.
	PasswordCost int
}

type Service struct {
	store  Store
	mailer Mailer
	signer *auth.Signer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(store Store, mailer Mailer, signer *auth.Signer, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = PasswordCost
	}
	return &Service{
		store:  store,
		mailer: mailer,
		signer: signer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type Registration struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,min=2"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,min=10"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PasswordReset struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type AdminCredentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionMeta is recorded on the session row for the customer's own reference.
type SessionMeta struct {
	UserAgent string
	IP        string
}

var errInvalidLogin = apperr.Auth("invalid email or password")

func (s *Service) RegisterCustomer(ctx context.Context, reg Registration, meta SessionMeta) (model.Customer, string, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.FullName = strings.TrimSpace(reg.FullName)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if err := validation.Struct(reg); err != nil {
		return model.Customer{}, "", err
	}

	hash, err := hashPasswordCost(reg.Password, s.cfg.PasswordCost)
	if err != nil {
		return model.Customer{}, "", apperr.Unexpected("hash password", err)
	}
	verification, err := newToken()
	if err != nil {
		return model.Customer{}, "", apperr.Unexpected("generate verification token", err)
	}
	verificationHash := HashToken(verification)

	now := s.now().UTC()
	c := model.Customer{
		ID:               uuid.NewString(),
		Email:            reg.Email,
		PasswordHash:     hash,
		FullName:         reg.FullName,
		VerificationHash: &verificationHash,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if reg.Phone != "" {
		c.Phone = &reg.Phone
	}

	token, session, err := s.newSession(c.ID, meta)
	if err != nil {
		return model.Customer{}, "", err
	}
	if err := s.store.CreateCustomer(ctx, c, session); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return model.Customer{}, "", apperr.Validation("email already registered")
		}
		return model.Customer{}, "", apperr.Unexpected("create customer", err)
	}

	if err := s.mailer.SendWelcome(ctx, c, verification); err != nil {
		s.logger.Error("welcome email failed", "customer_id", c.ID, "err", err)
	}
	return c, token, nil
}

// LoginCustomer returns the same error for unknown emails, inactive customers
// and wrong passwords, and spends a bcrypt comparison in every case.
func (s *Service) LoginCustomer(ctx context.Context, creds Credentials, meta SessionMeta) (model.Customer, string, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validation.Struct(creds); err != nil {
		return model.Customer{}, "", err
	}

	c, err := s.store.ActiveCustomerByEmail(ctx, creds.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return model.Customer{}, "", apperr.Unexpected("lookup customer", err)
		}
		VerifyPassword(s.dummy(), creds.Password)
		metrics.CustomerLogins.WithLabelValues(metrics.ResultFailure).Inc()
		return model.Customer{}, "", errInvalidLogin
	}
	if !VerifyPassword(c.PasswordHash, creds.Password) {
		metrics.CustomerLogins.WithLabelValues(metrics.ResultFailure).Inc()
		return model.Customer{}, "", errInvalidLogin
	}

	token, session, err := s.newSession(c.ID, meta)
	if err != nil {
		return model.Customer{}, "", err
	}
	now := s.now().UTC()
	if err := s.store.RecordLogin(ctx, c.ID, now, session); err != nil {
		return model.Customer{}, "", apperr.Unexpected("record login", err)
	}
	c.LastLoginAt = &now
	metrics.CustomerLogins.WithLabelValues(metrics.ResultSuccess).Inc()
	return c, token, nil
}

// VerifySession is the authorization check for customer routes.
func (s *Service) VerifySession(ctx context.Context, token string) (model.Customer, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Customer{}, apperr.Auth("authentication required")
	}
	c, err := s.store.CustomerBySession(ctx, HashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Customer{}, apperr.Auth("invalid or expired session")
		}
		return model.Customer{}, apperr.Unexpected("lookup session", err)
	}
	return c, nil
}

// VerifyEmail consumes a verification token. It reports false for unknown or
// already used tokens.
func (s *Service) VerifyEmail(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	ok, err := s.store.ConsumeVerification(ctx, HashToken(token))
	if err != nil {
		return false, apperr.Unexpected("verify email", err)
	}
	return ok, nil
}

// GeneratePasswordResetToken issues a reset token for an active customer and
// emails it. Unknown emails succeed silently and return an empty token.
func (s *Service) GeneratePasswordResetToken(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if err := validation.Struct(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return "", err
	}

	c, err := s.store.ActiveCustomerByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", apperr.Unexpected("lookup customer", err)
	}

	token, err := newToken()
	if err != nil {
		return "", apperr.Unexpected("generate reset token", err)
	}
	if err := s.store.SetResetToken(ctx, c.ID, HashToken(token), s.now().UTC().Add(s.cfg.ResetTTL)); err != nil {
		return "", apperr.Unexpected("store reset token", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, c, token); err != nil {
		s.logger.Error("password reset email failed", "customer_id", c.ID, "err", err)
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, req PasswordReset) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := validation.Struct(req); err != nil {
		return err
	}
	hash, err := hashPasswordCost(req.Password, s.cfg.PasswordCost)
	if err != nil {
		return apperr.Unexpected("hash password", err)
	}
	customerID, err := s.store.ResetPassword(ctx, HashToken(req.Token), hash, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Validation("invalid or expired reset token")
		}
		return apperr.Unexpected("reset password", err)
	}
	s.logger.Info("password reset, sessions revoked", "customer_id", customerID)
	return nil
}

// Logout deletes the session if it exists.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, HashToken(token)); err != nil {
		return apperr.Unexpected("delete session", err)
	}
	return nil
}

func (s *Service) AdminLogin(ctx context.Context, creds AdminCredentials) (string, time.Time, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := validation.Struct(creds); err != nil {
		return "", time.Time{}, err
	}
	invalid := apperr.Auth("invalid credentials")

	u, err := s.store.AdminByUsername(ctx, creds.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, apperr.Unexpected("lookup admin", err)
		}
		VerifyPassword(s.dummy(), creds.Password)
		return "", time.Time{}, invalid
	}
	if !VerifyPassword(u.PasswordHash, creds.Password) || u.Role != model.RoleAdmin {
		return "", time.Time{}, invalid
	}

	token, exp, err := s.signer.Issue(u.ID, u.Role)
	if err != nil {
		return "", time.Time{}, apperr.Unexpected("issue admin token", err)
	}
	return token, exp, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
// An existing account keeps its password.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}
	hash, err := hashPasswordCost(password, s.cfg.PasswordCost)
	if err != nil {
		return err
	}
	created, err := s.store.CreateAdmin(ctx, model.AdminUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("bootstrap admin created", "username", username)
	}
	return nil
}

func (s *Service) newSession(customerID string, meta SessionMeta) (string, model.CustomerSession, error) {
	token, err := newToken()
	if err != nil {
		return "", model.CustomerSession{}, apperr.Unexpected("generate session token", err)
	}
	now := s.now().UTC()
	session := model.CustomerSession{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		TokenHash:  HashToken(token),
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		CreatedAt:  now,
	}
	if ua := strings.TrimSpace(meta.UserAgent); ua != "" {
		session.UserAgent = &ua
	}
	if ip := strings.TrimSpace(meta.IP); ip != "" {
		session.IPAddress = &ip
	}
	return token, session, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = hashPasswordCost("not-a-real-password", s.cfg.PasswordCost)
	})
	return s.dummyHash
}
