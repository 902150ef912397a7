package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/platform/database"
)

// Store resolves identities from the users table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LookupByEmail loads the identity of the user with the given email inside
// tenantID. Returns ErrUserNotFound when no such user exists.
func (s *Store) LookupByEmail(ctx context.Context, tenantID, email string) (*Identity, error) {
	identity := &Identity{TenantID: tenantID, TokenType: TokenTypeAccess}
	err := database.WithTenantConnection(ctx, s.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		return q.QueryRow(ctx,
			"SELECT id, email, display_name, role_id FROM users WHERE email = $1",
			email,
		).Scan(&identity.UserID, &identity.Email, &identity.DisplayName, &identity.Role)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return identity, nil
}
