package repository

import (
	"context"
	"database/sql"
	"errors"
)

// PermissionRepository resolves budget view permissions. Role resolution
// itself lives in a database function; this repository only consumes the
// boolean oracle.
type PermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository returns repository.
func NewPermissionRepository(db *sql.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// CanViewBudget reports whether the user may view budget figures. An unknown
// user resolves to false, not an error.
func (r *PermissionRepository) CanViewBudget(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT can_view_budget($1)`

	var allowed bool
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&allowed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return allowed, nil
}
