package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gigboard/internal/domain"
	"gigboard/internal/store"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestPostgresGetMissingUser(t *testing.T) {
	db, mock := setupMockDB(t)
	st := NewStore(db)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := st.Users.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDriverErrorPropagates(t *testing.T) {
	db, mock := setupMockDB(t)
	st := NewStore(db)

	connErr := errors.New("connection reset by peer")
	mock.ExpectQuery(`SELECT \* FROM "jobs"`).WillReturnError(connErr)

	_, err := st.Jobs.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUniqueViolationIsDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	st := NewStore(db)

	mock.ExpectExec(`INSERT INTO "jobs"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := st.Jobs.Create(context.Background(), domain.Job{ID: "job-1", ClientID: "client-1", Title: "Go dev"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOpeningLocksUserPair(t *testing.T) {
	db, mock := setupMockDB(t)
	st := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("chat:alice:bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "chat_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	first := domain.ChatMessage{ID: "m-1", SenderID: "bob", ReceiverID: "alice", Content: "hi"}
	second := domain.ChatMessage{ID: "m-2", SenderID: "alice", ReceiverID: "bob", Content: "hello"}
	out, created, err := st.Messages.CreateOpening(context.Background(), first, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, pairKey("alice", "bob"), pairKey("bob", "alice"))
}
