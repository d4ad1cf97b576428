// Package bootstrap wires the fulfillment services shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"fmt"
	"net/http"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-fulfillment/internal/cart"
	"github.com/angelmondragon/storefront-fulfillment/internal/documents"
	"github.com/angelmondragon/storefront-fulfillment/internal/inventory"
	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/internal/returns"
	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/metrics"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/payments"
	"github.com/angelmondragon/storefront-fulfillment/pkg/storage/gcs"
)

// Params are the infrastructure clients the fulfillment services need.
// Store and Publisher are optional.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.Client
	Store     gcs.ObjectStore
	Publisher *gcppubsub.Publisher
	Metrics   *metrics.FulfillmentMetrics
}

// Fulfillment holds the wired services. The caller owns Notifier.Run.
type Fulfillment struct {
	Carrier       *carrier.Client
	Payments      *payments.Client
	Notifier      *notifications.Notifier
	Notifications notifications.Service
	Documents     *documents.Service
	Orders        orders.Service
	Returns       returns.Service
}

// NewFulfillment builds the carrier and payment clients, the notifier and the
// order and return services on top of them.
func NewFulfillment(p Params) (*Fulfillment, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, fmt.Errorf("config, logger and database are required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	carrierOpts := []carrier.Option{
		carrier.WithBaseURL(cfg.Carrier.BaseURL),
		carrier.WithHTTPClient(&http.Client{Timeout: cfg.Carrier.Timeout}),
	}
	if p.Metrics != nil {
		carrierOpts = append(carrierOpts, carrier.WithObserver(p.Metrics))
	}
	carrierClient, err := carrier.NewClient(carrier.Config{
		APIKey:         cfg.Carrier.APIKey,
		ClientName:     cfg.Carrier.ClientName,
		PickupLocation: cfg.Warehouse.Name,
		Country:        cfg.Carrier.DefaultCountry,
		SKUPrefix:      cfg.Carrier.ProductSKUPrefix,
	}, carrierOpts...)
	if err != nil {
		return nil, fmt.Errorf("carrier client: %w", err)
	}

	paymentsClient, err := payments.NewClient(cfg.Payment)
	if err != nil {
		return nil, fmt.Errorf("payments client: %w", err)
	}

	providers, err := notifications.BuildProviders(cfg.Notifications, p.Publisher)
	if err != nil {
		return nil, fmt.Errorf("notification providers: %w", err)
	}
	notificationsRepo := notifications.NewRepository(conn)
	notifierParams := notifications.NotifierParams{
		Providers:   providers,
		Repo:        notificationsRepo,
		OpsMailbox:  cfg.Notifications.OpsMailbox,
		QueueSize:   cfg.Notifications.QueueSize,
		Workers:     cfg.Notifications.Workers,
		SendTimeout: cfg.Notifications.SendTimeout,
		Logger:      p.Logger,
	}
	if p.Metrics != nil {
		notifierParams.Metrics = p.Metrics
	}
	notifier, err := notifications.NewNotifier(notifierParams)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), p.Logger)

	out := &Fulfillment{
		Carrier:       carrierClient,
		Payments:      paymentsClient,
		Notifier:      notifier,
		Notifications: notificationsService,
	}

	orderParams := orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       p.DB,
		Outbox:   outboxService,
		Payments: paymentsClient,
		Carrier:  carrierClient,
		Notifier: notifier,
		Cart:     cart.NewCartItemRepository(conn),
		Stock:    inventory.NewDispatcher(),
		Config:   cfg,
		Logger:   p.Logger,
	}
	if p.Store != nil {
		docs, err := documents.NewService(p.Store, carrierClient, ordersRepo, p.Logger)
		if err != nil {
			return nil, fmt.Errorf("documents service: %w", err)
		}
		out.Documents = docs
		orderParams.Documents = docs
	}
	if p.Metrics != nil {
		orderParams.Metrics = p.Metrics
	}
	out.Orders, err = orders.NewService(orderParams)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	returnParams := returns.ServiceParams{
		Repo:     returns.NewRepository(conn),
		Orders:   ordersRepo,
		Tx:       p.DB,
		Outbox:   outboxService,
		Carrier:  carrierClient,
		Notifier: notifier,
		Config:   cfg,
		Logger:   p.Logger,
	}
	if p.Metrics != nil {
		returnParams.Metrics = p.Metrics
	}
	out.Returns, err = returns.NewService(returnParams)
	if err != nil {
		return nil, fmt.Errorf("returns service: %w", err)
	}
	return out, nil
}
