package types

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
)

// ErrUnsupportedEvent is returned by handlers for event types they do not
// record. The worker acknowledges such messages without retrying.
var ErrUnsupportedEvent = errors.New("unsupported analytics event type")

// Envelope is a domain event decoded from a Pub/Sub message.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	ActorRole     string                    `json:"actor_role,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}
