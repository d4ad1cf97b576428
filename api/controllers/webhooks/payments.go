package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-fulfillment/api/responses"
	paymentwebhook "github.com/angelmondragon/storefront-fulfillment/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event *paymentwebhook.Event) (paymentwebhook.Outcome, error)
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type webhookMetrics interface {
	IncWebhook(event, outcome string)
}

// PaymentWebhook handles payment gateway deliveries.
func PaymentWebhook(svc PaymentWebhookService, verifier signatureVerifier, guard paymentWebhookGuard, metrics webhookMetrics, logg *logger.Logger) http.HandlerFunc {
	record := func(event, outcome string) {
		if metrics != nil {
			metrics.IncWebhook(event, outcome)
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			record("unknown", "missing_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook signature missing"))
			return
		}
		if !verifier.VerifyWebhookSignature(payload, signature) {
			record("unknown", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook signature mismatch"))
			return
		}

		event, err := paymentwebhook.ParseEvent(payload)
		if err != nil {
			record("unknown", "malformed")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(eventIDHeader))
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing"))
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Event})

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			record(event.Event, "duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if delErr := guard.Delete(context.WithoutCancel(ctx), eventID); delErr != nil {
				logg.Error(ctx, "failed to release webhook idempotency key", delErr)
			}
			record(event.Event, "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		record(event.Event, string(outcome))
		logg.Info(ctx, "payment webhook processed")
		responses.WriteSuccess(w, map[string]string{"status": string(outcome)})
	}
}
