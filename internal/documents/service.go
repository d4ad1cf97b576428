package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/storage/gcs"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// LabelSource fetches shipping labels from the courier.
type LabelSource interface {
	LabelPDF(ctx context.Context, waybill string) ([]byte, error)
}

// Document is a rendered file ready to stream.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service stores shipping labels and invoices and regenerates them whenever
// the stored reference no longer resolves.
type Service struct {
	store  gcs.ObjectStore
	labels LabelSource
	orders orders.Repository
	logg   *logger.Logger
	render func(order *models.Order) ([]byte, error)
}

// NewService builds the document service.
func NewService(store gcs.ObjectStore, labels LabelSource, repo orders.Repository, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if labels == nil {
		return nil, fmt.Errorf("label source required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{store: store, labels: labels, orders: repo, logg: logg, render: RenderInvoice}, nil
}

func labelObject(order *models.Order) string {
	return "labels/" + order.OrderNumber + ".pdf"
}

func invoiceObject(order *models.Order) string {
	return "invoices/" + order.OrderNumber + ".xlsx"
}

// EnsureInvoice renders and stores the invoice unless a stored copy exists.
func (s *Service) EnsureInvoice(ctx context.Context, order *models.Order) error {
	_, err := s.ensureInvoice(ctx, order)
	return err
}

func (s *Service) ensureInvoice(ctx context.Context, order *models.Order) ([]byte, error) {
	if data, ok := s.stored(ctx, order.InvoiceRef); ok {
		return data, nil
	}
	data, err := s.render(order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render invoice")
	}
	object := invoiceObject(order)
	if err := s.persist(ctx, order.ID, "invoice_ref", object, ContentTypeXLSX, data); err != nil {
		return nil, err
	}
	order.InvoiceRef = &object
	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID.String()), "object", object), "invoice stored")
	return data, nil
}

// RefreshLabel fetches the courier label and stores it unless a stored copy
// exists.
func (s *Service) RefreshLabel(ctx context.Context, order *models.Order) error {
	_, err := s.ensureLabel(ctx, order)
	return err
}

func (s *Service) ensureLabel(ctx context.Context, order *models.Order) ([]byte, error) {
	if !order.HasWaybill() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been handed to the carrier")
	}
	if data, ok := s.stored(ctx, order.LabelRef); ok {
		return data, nil
	}
	data, err := s.labels.LabelPDF(ctx, *order.Waybill)
	if err != nil {
		return nil, err
	}
	object := labelObject(order)
	if err := s.persist(ctx, order.ID, "label_ref", object, ContentTypePDF, data); err != nil {
		return nil, err
	}
	order.LabelRef = &object
	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID.String()), "object", object), "label stored")
	return data, nil
}

// Label returns the order's shipping label PDF.
func (s *Service) Label(ctx context.Context, orderID uuid.UUID) (*Document, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	data, err := s.ensureLabel(ctx, order)
	if err != nil {
		return nil, err
	}
	return &Document{Filename: order.OrderNumber + "-label.pdf", ContentType: ContentTypePDF, Data: data}, nil
}

// Invoice returns the order's invoice workbook.
func (s *Service) Invoice(ctx context.Context, orderID uuid.UUID) (*Document, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	data, err := s.ensureInvoice(ctx, order)
	if err != nil {
		return nil, err
	}
	return &Document{Filename: order.OrderNumber + "-invoice.xlsx", ContentType: ContentTypeXLSX, Data: data}, nil
}

// stored downloads a referenced object. A missing reference or object
// reports false so the caller regenerates it.
func (s *Service) stored(ctx context.Context, ref *string) ([]byte, bool) {
	if ref == nil || *ref == "" {
		return nil, false
	}
	data, err := s.store.Download(ctx, *ref)
	if err != nil {
		if !errors.Is(err, gcs.ErrObjectNotFound) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"object": *ref, "error": err.Error()}), "stored document unavailable")
		}
		return nil, false
	}
	return data, true
}

func (s *Service) persist(ctx context.Context, orderID uuid.UUID, column, object, contentType string, data []byte) error {
	if err := s.store.Upload(ctx, object, contentType, data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload document")
	}
	err := s.orders.UpdateFields(ctx, orderID, map[string]any{
		column:       object,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record document reference")
	}
	return nil
}

func (s *Service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
