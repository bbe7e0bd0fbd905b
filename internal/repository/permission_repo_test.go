package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanViewBudgetAllowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT can_view_budget\(\$1\)`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"can_view_budget"}).AddRow(true))

	repo := NewPermissionRepository(db)
	allowed, err := repo.CanViewBudget(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanViewBudgetDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT can_view_budget\(\$1\)`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"can_view_budget"}).AddRow(false))

	repo := NewPermissionRepository(db)
	allowed, err := repo.CanViewBudget(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanViewBudgetQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT can_view_budget\(\$1\)`).
		WithArgs(int64(9)).
		WillReturnError(errors.New("connection reset"))

	repo := NewPermissionRepository(db)
	allowed, err := repo.CanViewBudget(context.Background(), 9)
	require.Error(t, err)
	assert.False(t, allowed)
}
