package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmptyTenant is returned when a tenant scope is requested without a tenant id.
var ErrEmptyTenant = errors.New("tenant id is required")

// TenantScope wraps a connection with tenant context and ensures cleanup.
// The connection has app.current_tenant_id set for RLS policy evaluation.
type TenantScope struct {
	Conn     *pgxpool.Conn
	TenantID string
}

// Close resets tenant context and releases connection to pool.
// This MUST be called to prevent tenant context from leaking to the next caller.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_tenant_id")
	s.Conn.Release()
}

// WithTenant acquires a connection and sets the tenant context for RLS.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, tenantID string) (*TenantScope, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenant
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_tenant_id', $1, false)", tenantID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &TenantScope{Conn: conn, TenantID: tenantID}, nil
}
