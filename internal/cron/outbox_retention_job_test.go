package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeOutboxPurger struct {
	cutoff   time.Time
	attempts int
	calls    int
	err      error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.attempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(),
		DB:          passthroughTx{},
		Repo:        repo,
		Retention:   48 * time.Hour,
		MaxAttempts: 4,
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, deleted)
	require.Equal(t, 1, repo.calls)
	require.Equal(t, now.Add(-48*time.Hour), repo.cutoff)
	require.Equal(t, 4, repo.attempts)
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: testLogger(),
		DB:     passthroughTx{},
		Repo:   &fakeOutboxPurger{},
	})
	require.NoError(t, err)
	require.Equal(t, defaultOutboxRetention, job.retention)
	require.Equal(t, defaultTerminalAttempt, job.maxAttempts)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: testLogger(),
		DB:     passthroughTx{},
		Repo:   &fakeOutboxPurger{err: errors.New("boom")},
	})
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	require.Error(t, err)
}
