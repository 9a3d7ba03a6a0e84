package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/localeats/api/internal/domain"
)

// ExpirationTask is the payload published for one scheduled QR expiration
// reminder. The internal push endpoint decodes the same shape.
type ExpirationTask struct {
	PaymentID string    `json:"paymentId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PubSubExpirationScheduler publishes expiration reminders to a Pub/Sub
// topic whose push subscription targets the internal expiration endpoint.
type PubSubExpirationScheduler struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubExpirationScheduler constructs a Pub/Sub backed scheduler.
func NewPubSubExpirationScheduler(topic *pubsub.Topic) (*PubSubExpirationScheduler, error) {
	if topic == nil {
		return nil, errors.New("pubsub expiration scheduler: topic is required")
	}
	return &PubSubExpirationScheduler{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// ScheduleExpiration enqueues a reminder for the payment. The subscription
// redelivers until the window has elapsed and the endpoint accepts it, so
// the reminder survives restarts.
func (s *PubSubExpirationScheduler) ScheduleExpiration(ctx context.Context, paymentID string, at time.Time) error {
	if s == nil || s.topic == nil {
		return errors.New("pubsub expiration scheduler: not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return errors.New("pubsub expiration scheduler: payment id is required")
	}

	data, err := s.marshal(ExpirationTask{PaymentID: paymentID, ExpiresAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal expiration task: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"paymentId": paymentID,
			"expiresAt": at.UTC().Format(time.RFC3339),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish expiration task: %w", err)
	}
	return nil
}

// orderEvent is the payload published when an order changes status.
type orderEvent struct {
	OrderCode    string `json:"orderCode"`
	MerchantCode string `json:"merchantCode"`
	From         string `json:"from"`
	To           string `json:"to"`
	Method       string `json:"method,omitempty"`
	Total        string `json:"total"`
	OccurredAt   string `json:"occurredAt"`
}

// PubSubOrderEventPublisher emits order status changes for downstream
// consumers (merchant notifications, analytics).
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	clock   func() time.Time
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic, clock func() time.Time) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		clock:   clock,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderStatusChanged enqueues one status-change event.
func (p *PubSubOrderEventPublisher) PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(orderEvent{
		OrderCode:    order.OrderCode,
		MerchantCode: order.MerchantCode,
		From:         string(previous),
		To:           string(order.Status),
		Method:       string(order.Method),
		Total:        order.Total.String(),
		OccurredAt:   p.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"orderCode":    order.OrderCode,
			"merchantCode": order.MerchantCode,
			"status":       string(order.Status),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}
