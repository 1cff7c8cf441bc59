package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := FromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithRetryTx_RetriesSerializationFailures(t *testing.T) {
	client := FromConn(newTestDB(t))
	client.retryBackoff = 1

	attempts := 0
	err := client.WithRetryTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: sqlStateSerializationFailure}
		}
		return tx.Create(&testModel{Name: "eventually"}).Error
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryTx_DoesNotRetryPermanentErrors(t *testing.T) {
	client := FromConn(newTestDB(t))
	client.retryBackoff = 1

	attempts := 0
	sentinel := errors.New("permanent")
	err := client.WithRetryTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}

func TestWithRetryTx_GivesUpAfterMaxRetries(t *testing.T) {
	client := FromConn(newTestDB(t))
	client.retryBackoff = 1
	client.maxRetries = 2

	attempts := 0
	err := client.WithRetryTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: sqlStateDeadlockDetected}
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Equal(t, 3, attempts)
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))

	pgErr := &pgconn.PgError{Code: sqlStateUniqueViolation, ConstraintName: "ux_stock"}
	require.True(t, IsUniqueViolation(pgErr, "ux_stock"))
	require.False(t, IsUniqueViolation(pgErr, "ux_other"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: sqlStateDeadlockDetected}, ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestPing(t *testing.T) {
	client := FromConn(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
