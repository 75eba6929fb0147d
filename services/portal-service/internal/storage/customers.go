package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
)

const customerColumns = `c.id::text, c.email, c.password_hash, c.full_name, c.phone, c.is_email_verified,
	c.verification_token_hash, c.reset_token_hash, c.reset_token_expires_at, c.last_login_at,
	c.is_active, c.created_at, c.updated_at`

type CustomerRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewCustomerRepository(pool *db.Pool, events *outbox.Repository) *CustomerRepository {
	return &CustomerRepository{pool: pool, outbox: events}
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.FullName, &c.Phone, &c.IsEmailVerified,
		&c.VerificationHash, &c.ResetTokenHash, &c.ResetTokenExpiresAt, &c.LastLoginAt,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

type customerRegistered struct {
	CustomerID string    `json:"customerId"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	At         time.Time `json:"registeredAt"`
}

func (r *CustomerRepository) CreateCustomer(ctx context.Context, c model.Customer, s model.CustomerSession) error {
	evt, err := outbox.NewEvent("customer", c.ID, outbox.EventCustomerRegistered, customerRegistered{
		CustomerID: c.ID, Email: c.Email, FullName: c.FullName, At: c.CreatedAt,
	})
	if err != nil {
		return err
	}

	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO customers
				(id, email, password_hash, full_name, phone, is_email_verified, verification_token_hash, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ID, c.Email, c.PasswordHash, c.FullName, c.Phone, c.IsEmailVerified, c.VerificationHash,
			c.IsActive, c.CreatedAt, c.UpdatedAt); err != nil {
			return err
		}
		if err := insertSession(ctx, tx, s); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	return translate("create customer", err)
}

func insertSession(ctx context.Context, tx pgx.Tx, s model.CustomerSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO customer_sessions (id, customer_id, token_hash, expires_at, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.CustomerID, s.TokenHash, s.ExpiresAt, s.UserAgent, s.IPAddress, s.CreatedAt)
	return err
}

func (r *CustomerRepository) ActiveCustomerByEmail(ctx context.Context, email string) (model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers c
		WHERE c.email = $1 AND c.is_active
	`, email))
	return c, translate("customer by email", err)
}

func (r *CustomerRepository) CustomerBySession(ctx context.Context, tokenHash string, now time.Time) (model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customer_sessions s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.token_hash = $1 AND s.expires_at > $2 AND c.is_active
	`, tokenHash, now))
	return c, translate("customer by session", err)
}

func (r *CustomerRepository) RecordLogin(ctx context.Context, customerID string, at time.Time, s model.CustomerSession) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE customers SET last_login_at = $2, updated_at = $2 WHERE id = $1
		`, customerID, at); err != nil {
			return err
		}
		return insertSession(ctx, tx, s)
	})
	return translate("record login", err)
}

func (r *CustomerRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM customer_sessions WHERE token_hash = $1`, tokenHash)
	return translate("delete session", err)
}

func (r *CustomerRepository) ConsumeVerification(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET is_email_verified = true,
			verification_token_hash = NULL,
			updated_at = now()
		WHERE verification_token_hash = $1
	`, tokenHash)
	if err != nil {
		return false, translate("verify email", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CustomerRepository) SetResetToken(ctx context.Context, customerID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET reset_token_hash = $2,
			reset_token_expires_at = $3,
			updated_at = now()
		WHERE id = $1
	`, customerID, tokenHash, expiresAt)
	if err != nil {
		return translate("set reset token", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("set reset token", pgx.ErrNoRows)
	}
	return nil
}

func (r *CustomerRepository) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var customerID string
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			UPDATE customers
			SET password_hash = $2,
				reset_token_hash = NULL,
				reset_token_expires_at = NULL,
				updated_at = $3
			WHERE reset_token_hash = $1 AND reset_token_expires_at > $3 AND is_active
			RETURNING id::text
		`, tokenHash, passwordHash, now).Scan(&customerID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM customer_sessions WHERE customer_id = $1`, customerID)
		return err
	})
	if err != nil {
		return "", translate("reset password", err)
	}
	return customerID, nil
}

func (r *CustomerRepository) AdminByUsername(ctx context.Context, username string) (model.AdminUser, error) {
	var u model.AdminUser
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, username, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	return u, translate("admin by username", err)
}

func (r *CustomerRepository) CreateAdmin(ctx context.Context, u model.AdminUser) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return false, translate("create admin", err)
	}
	return tag.RowsAffected() == 1, nil
}
