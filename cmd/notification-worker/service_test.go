package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duka/supermarket-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubRunner struct {
	called bool
	err    error
}

func (s *stubRunner) Run(context.Context) error {
	s.called = true
	return s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notification-worker-test", Output: io.Discard})
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger(), Redis: stubPinger{}, PubSub: stubPinger{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Redis: stubPinger{}, PubSub: stubPinger{}, Consumer: &stubRunner{}})
	require.Error(t, err)
}

func TestRunStopsWhenDependencyUnavailable(t *testing.T) {
	consumer := &stubRunner{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Redis:    stubPinger{},
		PubSub:   stubPinger{err: errors.New("subscription missing")},
		Consumer: consumer,
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "pubsub ping failed")
	require.False(t, consumer.called)
}

func TestRunTreatsCancellationAsShutdown(t *testing.T) {
	consumer := &stubRunner{err: context.Canceled}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Redis:    stubPinger{},
		PubSub:   stubPinger{},
		Consumer: consumer,
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, consumer.called)
}

func TestRunSurfacesConsumerFailure(t *testing.T) {
	boom := errors.New("receive failed")
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Redis:    stubPinger{},
		PubSub:   stubPinger{},
		Consumer: &stubRunner{err: boom},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Run(context.Background()), boom)
}
