package orders

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-fulfillment/api/controllers/requestctx"
	"github.com/angelmondragon/storefront-fulfillment/api/responses"
	"github.com/angelmondragon/storefront-fulfillment/api/validators"
	"github.com/angelmondragon/storefront-fulfillment/internal/documents"
	internalorders "github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

// DocumentSource serves stored order paperwork.
type DocumentSource interface {
	Label(ctx context.Context, orderID uuid.UUID) (*documents.Document, error)
	Invoice(ctx context.Context, orderID uuid.UUID) (*documents.Document, error)
}

// AdminList returns every order, optionally filtered by status.
func AdminList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := requestctx.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var filters internalorders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		list, err := svc.ListAll(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UpdateStatus applies a staff status change through the state machine.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := requestctx.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:     orderID,
			Status:      status,
			Reason:      req.CancellationReason,
			TrackingID:  req.TrackingID,
			CourierName: req.CourierName,
			TrackingURL: req.TrackingURL,
			Actor:       actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"message": "order status updated",
			"status":  order.Status,
		})
	}
}

// ConfirmShipping hands the order to the carrier.
func ConfirmShipping(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := requestctx.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmShipping(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Tracking returns the carrier scan history for the order's waybill.
func Tracking(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := requestctx.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := svc.Tracking(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// Serviceability checks whether the carrier serves a pincode.
func Serviceability(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pincode := strings.TrimSpace(chi.URLParam(r, "pincode"))
		result, err := svc.Serviceability(r.Context(), pincode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Label streams the shipping label PDF.
func Label(docs DocumentSource, logg *logger.Logger) http.HandlerFunc {
	return serveDocument(logg, docs.Label)
}

// Invoice streams the invoice workbook.
func Invoice(docs DocumentSource, logg *logger.Logger) http.HandlerFunc {
	return serveDocument(logg, docs.Invoice)
}

func serveDocument(logg *logger.Logger, load func(context.Context, uuid.UUID) (*documents.Document, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := requestctx.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := load(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", doc.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(doc.Data); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "document write interrupted")
		}
	}
}
