package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/tienda-online/api/internal/services"
)

// PubSubPublisher publishes operator alerts to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a publisher for topic.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub alert publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishAlert implements services.AlertPublisher and blocks until the server acknowledges.
func (p *PubSubPublisher) PublishAlert(ctx context.Context, alert services.Alert) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub alert publisher: not initialised")
	}
	data, err := p.marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	attrs := map[string]string{
		"kind":     string(alert.Kind),
		"severity": string(alert.Severity),
	}
	setAttr(attrs, "orderNumber", alert.OrderNumber)
	setAttr(attrs, "paymentId", alert.PaymentID)
	setAttr(attrs, "gateway", alert.Gateway)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
