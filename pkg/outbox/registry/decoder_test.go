package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventPaymentConfirmed, 1, func(payload json.RawMessage) (any, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	output, err := reg.Decode(enums.EventPaymentConfirmed, 0, json.RawMessage(`{"receipt_no":"QK12ABC"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"receipt_no": "QK12ABC"}, output)
}

func TestRegisterJSON(t *testing.T) {
	reg := NewDecoderRegistry()
	RegisterJSON[payloads.OrderExpiredEvent](reg, enums.EventOrderExpired, 1)

	output, err := reg.Decode(enums.EventOrderExpired, 1, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.IsType(t, &payloads.OrderExpiredEvent{}, output)

	_, err = reg.Decode(enums.EventOrderExpired, 1, json.RawMessage(`[`))
	require.Error(t, err)

	_, err = reg.Decode(enums.EventOrderExpired, 2, json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrNoDecoder)
}
