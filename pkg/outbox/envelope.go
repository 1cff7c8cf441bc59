package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written on every new row. Consumers read 0 as 1.
const EnvelopeVersion = 1

// ActorRef identifies the operator who triggered the event. It is nil for
// events produced by the gateway callback or the reaper.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload and
// published verbatim as the message body. EventID equals the row id.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a message body and its event id.
func DecodeEnvelope(body []byte) (PayloadEnvelope, uuid.UUID, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PayloadEnvelope{}, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	id, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return envelope, uuid.Nil, fmt.Errorf("envelope event id: %w", err)
	}
	if id == uuid.Nil {
		return envelope, uuid.Nil, errors.New("envelope event id is nil")
	}
	return envelope, id, nil
}
