package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.New()
	envelope, got, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"` + id.String() + `","occurredAt":"2026-03-01T10:00:00Z","data":{"order_id":"x"}}`))
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, EnvelopeVersion, envelope.Version)
	require.JSONEq(t, `{"order_id":"x"}`, string(envelope.Data))
}

func TestDecodeEnvelopeRejectsBadIDs(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"eventId":"abc","data":{}}`,
		`{"eventId":"00000000-0000-0000-0000-000000000000","data":{}}`,
	} {
		_, _, err := DecodeEnvelope([]byte(body))
		require.Error(t, err, body)
	}
}
