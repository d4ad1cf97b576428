package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 4
	defaultSendTimeout = 10 * time.Second

	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
	outcomeNoRoute   = "no_route"
)

type notifyMetrics interface {
	IncNotification(provider, outcome string)
	IncNotificationDropped()
}

// NotifierParams wires a Notifier.
type NotifierParams struct {
	Providers   []Provider
	Repo        Repository
	OpsMailbox  string
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	Metrics     notifyMetrics
	Logger      *logger.Logger
}

// Notifier queues messages and delivers them in the background through an
// ordered provider chain. Delivery is best-effort: the first provider that
// succeeds wins and every attempt is recorded in the delivery log.
type Notifier struct {
	providers   []Provider
	repo        Repository
	opsMailbox  string
	queue       chan Message
	workers     int
	sendTimeout time.Duration
	metrics     notifyMetrics
	logg        *logger.Logger
}

// NewNotifier validates dependencies and allocates the bounded queue.
func NewNotifier(params NotifierParams) (*Notifier, error) {
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("at least one notification provider required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		providers:   params.Providers,
		repo:        params.Repo,
		opsMailbox:  strings.TrimSpace(params.OpsMailbox),
		queue:       make(chan Message, queueSize),
		workers:     workers,
		sendTimeout: timeout,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Notify enqueues msg without blocking. It reports false when the message was
// rejected or the queue is full.
func (n *Notifier) Notify(ctx context.Context, msg Message) bool {
	if n == nil {
		return false
	}
	if !msg.Kind.IsValid() {
		n.logg.Warn(ctx, fmt.Sprintf("dropping notification with unknown kind %q", msg.Kind))
		return false
	}
	if strings.TrimSpace(msg.Email) == "" && strings.TrimSpace(msg.Phone) == "" && msg.RecipientID == nil {
		n.logg.Warn(ctx, "dropping notification without recipient")
		return false
	}
	select {
	case n.queue <- msg:
		return true
	default:
		if n.metrics != nil {
			n.metrics.IncNotificationDropped()
		}
		n.logg.Warn(n.logg.WithField(ctx, "kind", string(msg.Kind)), "notification queue full, dropping message")
		return false
	}
}

// NotifyOps sends a copy of msg to the operations mailbox.
func (n *Notifier) NotifyOps(ctx context.Context, msg Message) bool {
	if n == nil || n.opsMailbox == "" {
		return false
	}
	msg.RecipientID = nil
	msg.Phone = ""
	msg.Email = n.opsMailbox
	return n.Notify(ctx, msg)
}

// Run starts the workers and blocks until ctx is canceled. Messages still
// queued at shutdown are delivered before Run returns.
func (n *Notifier) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < n.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.work(ctx)
		}()
	}
	wg.Wait()
	n.drain()
	return nil
}

func (n *Notifier) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case msg := <-n.queue:
			n.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.sendTimeout)
	defer cancel()
	sendCtx = n.logg.WithField(sendCtx, "kind", string(msg.Kind))
	if msg.OrderID != nil {
		sendCtx = n.logg.WithOrderID(sendCtx, msg.OrderID.String())
	}

	var (
		errs      error
		delivered string
	)
	for _, provider := range n.providers {
		err := provider.Send(sendCtx, msg)
		switch {
		case err == nil:
			delivered = provider.Name()
			n.observe(provider.Name(), outcomeDelivered)
		case errors.Is(err, ErrNoRoute):
			n.observe(provider.Name(), outcomeNoRoute)
			continue
		default:
			n.observe(provider.Name(), outcomeFailed)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		break
	}

	if delivered == "" {
		if errs == nil {
			errs = ErrNoRoute
		}
		n.logg.Warn(n.logg.WithField(sendCtx, "error", errs.Error()), "notification not delivered by any provider")
	}

	if err := n.repo.Create(sendCtx, deliveryRecord(msg, delivered, errs)); err != nil {
		n.logg.Error(sendCtx, "failed to record notification delivery", err)
	}
}

func (n *Notifier) observe(provider, outcome string) {
	if n.metrics != nil {
		n.metrics.IncNotification(provider, outcome)
	}
}

func deliveryRecord(msg Message, provider string, errs error) *models.Notification {
	record := &models.Notification{
		RecipientID:    msg.RecipientID,
		RecipientEmail: strings.TrimSpace(msg.Email),
		Kind:           msg.Kind,
		OrderID:        msg.OrderID,
		Title:          msg.Title,
		Message:        msg.Body,
		Delivered:      provider != "",
	}
	if len(msg.Data) > 0 {
		record.Data = types.JSONMap(msg.Data)
	}
	if provider != "" {
		record.Provider = &provider
	}
	if errs != nil {
		text := errs.Error()
		record.LastError = &text
	}
	return record
}
