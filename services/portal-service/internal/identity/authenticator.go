package identity

import (
	"context"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/auth"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

const RoleCustomer = "customer"

// Identity is who a bearer token belongs to. Customer is set only for
// customer sessions.
type Identity struct {
	Subject  string
	Role     string
	Customer *model.Customer
}

func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// Resolve maps a bearer token to an Identity. Signed JWTs are staff tokens;
// anything else is looked up as a customer session.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if auth.LooksLikeJWT(token) {
		if s.signer == nil {
			return Identity{}, apperr.Auth("invalid token")
		}
		claims, err := s.signer.Verify(token)
		if err != nil {
			return Identity{}, apperr.Auth("invalid or expired token")
		}
		return Identity{Subject: claims.Subject, Role: claims.Role}, nil
	}

	c, err := s.VerifySession(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: c.ID, Role: RoleCustomer, Customer: &c}, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
