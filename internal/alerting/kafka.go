package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const alertEventType = "price_alert"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertEvent is the JSON document published for every alert.
type AlertEvent struct {
	EventType      string    `json:"event_type"`
	ItemID         string    `json:"item_id"`
	ItemName       string    `json:"item_name,omitempty"`
	Price          string    `json:"price"`
	PreviousPrice  *string   `json:"previous_price,omitempty"`
	LowestPrice    string    `json:"lowest_price"`
	PreviousLowest *string   `json:"previous_lowest,omitempty"`
	DropPct        *string   `json:"drop_pct,omitempty"`
	Reasons        []string  `json:"reasons"`
	ObservedAt     time.Time `json:"observed_at"`
}

// KafkaNotifier publishes alerts to a topic keyed by item id.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaNotifier creates a notifier backed by a kafka.Writer.
func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration, logger zerolog.Logger) *KafkaNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaNotifier(writer, topic, logger)
}

func newKafkaNotifier(writer messageWriter, topic string, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: writer,
		topic:  topic,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}
}

// Notify publishes one alert event.
func (k *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(newAlertEvent(alert))
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.ItemID),
		Value: data,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write alert event to kafka: %w", err)
	}

	k.logger.Debug().Str("item_id", alert.ItemID).Str("topic", k.topic).Msg("alert event published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

func newAlertEvent(alert Alert) AlertEvent {
	event := AlertEvent{
		EventType:   alertEventType,
		ItemID:      alert.ItemID,
		ItemName:    alert.ItemName,
		Price:       alert.Price.String(),
		LowestPrice: alert.LowestPrice.String(),
		Reasons:     alert.Reasons.Strings(),
		ObservedAt:  alert.ObservedAt.UTC(),
	}
	if alert.PreviousPrice.Valid {
		v := alert.PreviousPrice.Decimal.String()
		event.PreviousPrice = &v
	}
	if alert.PreviousLowest.Valid {
		v := alert.PreviousLowest.Decimal.String()
		event.PreviousLowest = &v
	}
	if alert.DropPct.Valid {
		v := alert.DropPct.Decimal.StringFixed(4)
		event.DropPct = &v
	}
	return event
}

var _ Notifier = (*KafkaNotifier)(nil)
