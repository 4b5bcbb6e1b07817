package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-attendance/internal/model"
)

func newUserMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(db), mock
}

func TestUserRepo_GetByEmail(t *testing.T) {
	repo, mock := newUserMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=?")).
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "department_id", "is_active", "created_at", "updated_at"}).
			AddRow(int64(3), "Ana", "ana@example.com", "$2a$hash", int64(2), true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_roles ur JOIN roles r")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("employee").AddRow("hr"))

	u, err := repo.GetByEmail(context.Background(), "  Ana@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), u.ID)
	require.NotNil(t, u.DepartmentID)
	assert.Equal(t, uint64(2), *u.DepartmentID)
	assert.Equal(t, []string{"employee", "hr"}, u.Roles)
	assert.True(t, u.HasRole(model.RoleHR))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByIDMissing(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectQuery("FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "department_id", "is_active", "created_at", "updated_at"}))

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_HasRole(t *testing.T) {
	repo, mock := newUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM user_roles")).
		WithArgs(uint64(3), "hr").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err := repo.HasRole(context.Background(), 3, "hr")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM user_roles")).
		WithArgs(uint64(3), "admin").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	ok, err = repo.HasRole(context.Background(), 3, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_ListActiveIDsByRole(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.name=? AND u.is_active=1")).
		WithArgs("employee").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.ListActiveIDsByRole(context.Background(), model.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4}, ids)
}
