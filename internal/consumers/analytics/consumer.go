package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/storefront-fulfillment/internal/analytics/types"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox/payloads"
)

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Consumer writes fulfillment domain events to the BigQuery events table.
type Consumer struct {
	client tableInserter
	table  string
	logg   *logger.Logger
}

// NewConsumer builds a new analytics consumer.
func NewConsumer(client tableInserter, table string, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client: client,
		table:  strings.TrimSpace(table),
		logg:   logg,
	}, nil
}

// Handle inserts one row per supported event.
func (c *Consumer) Handle(ctx context.Context, envelope types.Envelope) error {
	row, err := buildRow(envelope)
	if err != nil {
		return err
	}
	if err := c.client.InsertRows(ctx, c.table, []any{row}); err != nil {
		return fmt.Errorf("insert fulfillment event: %w", err)
	}
	c.logg.Info(ctx, "fulfillment event ingested")
	return nil
}

// FulfillmentEventRow is one row of the fulfillment_events table.
type FulfillmentEventRow struct {
	EventID        string                `bigquery:"event_id"`
	EventType      string                `bigquery:"event_type"`
	AggregateType  string                `bigquery:"aggregate_type"`
	AggregateID    string                `bigquery:"aggregate_id"`
	OccurredAt     time.Time             `bigquery:"occurred_at"`
	ActorRole      cbigquery.NullString  `bigquery:"actor_role"`
	OrderID        cbigquery.NullString  `bigquery:"order_id"`
	OrderNumber    cbigquery.NullString  `bigquery:"order_number"`
	CustomerID     cbigquery.NullString  `bigquery:"customer_id"`
	Status         cbigquery.NullString  `bigquery:"status"`
	PreviousStatus cbigquery.NullString  `bigquery:"previous_status"`
	PaymentMethod  cbigquery.NullString  `bigquery:"payment_method"`
	Total          cbigquery.NullFloat64 `bigquery:"total"`
	ItemCount      cbigquery.NullInt64   `bigquery:"item_count"`
	Waybill        cbigquery.NullString  `bigquery:"waybill"`
	ReturnID       cbigquery.NullString  `bigquery:"return_id"`
	Payload        cbigquery.NullJSON    `bigquery:"payload"`
}

func buildRow(envelope types.Envelope) (*FulfillmentEventRow, error) {
	row := &FulfillmentEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
		ActorRole:     nullString(envelope.ActorRole),
	}
	if len(envelope.Payload) > 0 {
		row.Payload = cbigquery.NullJSON{JSONVal: string(envelope.Payload), Valid: true}
	}

	switch envelope.EventType {
	case enums.EventOrderPlaced:
		var p payloads.OrderPlacedEvent
		if err := decode(envelope, &p); err != nil {
			return nil, err
		}
		row.OrderID = nullString(p.OrderID.String())
		row.OrderNumber = nullString(p.OrderNumber)
		row.CustomerID = nullString(p.CustomerID.String())
		row.PaymentMethod = nullString(string(p.PaymentMethod))
		row.Total = cbigquery.NullFloat64{Float64: p.Total.InexactFloat64(), Valid: true}
		row.ItemCount = cbigquery.NullInt64{Int64: int64(p.ItemCount), Valid: true}
	case enums.EventOrderStatusChanged:
		var p payloads.OrderStatusChangedEvent
		if err := decode(envelope, &p); err != nil {
			return nil, err
		}
		row.OrderID = nullString(p.OrderID.String())
		row.OrderNumber = nullString(p.OrderNumber)
		row.CustomerID = nullString(p.CustomerID.String())
		row.Status = nullString(string(p.Status))
		row.PreviousStatus = nullString(string(p.PreviousStatus))
	case enums.EventOrderHandedOff:
		var p payloads.OrderHandedOffEvent
		if err := decode(envelope, &p); err != nil {
			return nil, err
		}
		row.OrderID = nullString(p.OrderID.String())
		row.OrderNumber = nullString(p.OrderNumber)
		row.Waybill = nullString(p.Waybill)
	case enums.EventReturnRequested, enums.EventReturnApproved, enums.EventReturnCompleted:
		var p payloads.ReturnEvent
		if err := decode(envelope, &p); err != nil {
			return nil, err
		}
		row.OrderID = nullString(p.OrderID.String())
		row.OrderNumber = nullString(p.OrderNumber)
		row.CustomerID = nullString(p.CustomerID.String())
		row.ReturnID = nullString(p.ReturnID.String())
		row.Status = nullString(string(p.Status))
		if p.ReturnWaybill != nil {
			row.Waybill = nullString(*p.ReturnWaybill)
		}
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedEvent, envelope.EventType)
	}
	return row, nil
}

func decode(envelope types.Envelope, out any) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%s payload missing", envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return nil
}

func nullString(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}
