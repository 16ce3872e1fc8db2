package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chameleon-ai/chameleon/pkg/resilience"
)

func TestInTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM documents").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err = FromDB(db).InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM documents")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = FromDB(db).InTx(context.Background(), func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad password", &pq.Error{Code: "28P01"}, true},
		{"no such role", fmt.Errorf("pinging postgres: %w", &pq.Error{Code: "28000"}), true},
		{"unknown database", fmt.Errorf("pinging postgres: %w", &pq.Error{Code: "3D000"}), true},
		{"starting up", &pq.Error{Code: "57P03"}, false},
		{"too many connections", &pq.Error{Code: "53300"}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
			assert.Equal(t, !tt.want, Transient(tt.err))
		})
	}
}

func TestTransientStopsRetryOnAuthFailure(t *testing.T) {
	attempts := 0
	err := resilience.Retry(context.Background(), "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    Transient,
	}, func() error {
		attempts++
		return fmt.Errorf("pinging postgres: %w", &pq.Error{Code: "28P01", Message: "password authentication failed"})
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = resilience.Retry(context.Background(), "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Retryable:    Transient,
	}, func() error {
		attempts++
		return &pq.Error{Code: "57P03"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
