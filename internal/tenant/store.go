package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/platform/database"
)

const tenantColumns = `id, name, slug, COALESCE(primary_domain, ''), domain_type, status,
	COALESCE(country_code, ''), COALESCE(currency_code, ''), created_at, updated_at`

// Store handles tenant database operations. The tenants table is not
// RLS-scoped; callers gate access with rbac.Context.CanAccessTenant.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new tenant store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) querier(q database.Querier) database.Querier {
	if q == nil {
		return s.pool
	}
	return q
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.PrimaryDomain, &t.DomainType, &t.Status,
		&t.CountryCode, &t.CurrencyCode, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Create inserts a new tenant in onboarding status.
func (s *Store) Create(ctx context.Context, name, slug string) (*Tenant, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	t, err := scanTenant(s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING `+tenantColumns,
		name, slug,
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	return t, nil
}

// GetByID retrieves a tenant by its UUID.
func (s *Store) GetByID(ctx context.Context, id string) (*Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return t, nil
}

// List returns all tenants.
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// SetDomain records the tenant's primary domain. A domain can be set once;
// later calls fail with ErrDomainLocked.
func (s *Store) SetDomain(ctx context.Context, id, domain, domainType string) (*Tenant, error) {
	if err := ValidateDomain(domain, domainType); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}

	t, err := scanTenant(s.pool.QueryRow(ctx,
		`UPDATE tenants SET primary_domain = $2, domain_type = $3, updated_at = now()
		 WHERE id = $1 AND primary_domain IS NULL
		 RETURNING `+tenantColumns,
		id, domain, domainType,
	))
	if err == nil {
		return t, nil
	}
	if isUniqueViolation(err, "") {
		return nil, fmt.Errorf("%w: %s", ErrDomainTaken, domain)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("setting domain: %w", err)
	}
	// Either the tenant is missing or its domain is already fixed.
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrDomainLocked
}

// UpdateProfile sets the tenant's country and base currency. q lets the
// caller run it inside its own transaction; nil uses the pool.
func (s *Store) UpdateProfile(ctx context.Context, q database.Querier, id, countryCode, currencyCode string) (*Tenant, error) {
	if err := ValidateProfile(countryCode, currencyCode); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}

	t, err := scanTenant(s.querier(q).QueryRow(ctx,
		`UPDATE tenants SET country_code = $2, currency_code = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1
		 RETURNING `+tenantColumns,
		id, countryCode, currencyCode,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("updating tenant profile: %w", err)
	}
	return t, nil
}

// Activate moves a tenant out of onboarding. A nil q uses the pool.
func (s *Store) Activate(ctx context.Context, q database.Querier, id string) (*Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTenantNotFound
	}
	t, err := scanTenant(s.querier(q).QueryRow(ctx,
		`UPDATE tenants SET status = 'active', updated_at = now()
		 WHERE id = $1
		 RETURNING `+tenantColumns,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("activating tenant: %w", err)
	}
	return t, nil
}
