package notifications

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/google/uuid"
)

// ErrNoRoute is returned by a provider that cannot address the message, for
// example an SMS provider asked to deliver to a recipient without a phone.
var ErrNoRoute = errors.New("notification provider has no route to recipient")

// Message is a single outbound notification.
type Message struct {
	Kind        enums.NotificationKind
	RecipientID *uuid.UUID
	Email       string
	Phone       string
	OrderID     *uuid.UUID
	Title       string
	Body        string
	Data        map[string]any
}

// Provider delivers a message over one channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
