package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/clubster/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer はPendingLinkメッセージをキューから受信する。
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewConsumer はRabbitMQに接続し、キューを宣言したConsumerを返す。
// prefetchは未ackで受け取るメッセージ数の上限。
func NewConsumer(url, queue string, prefetch int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return &Consumer{conn: conn, ch: ch, queue: queue}, nil
}

// Deliveries は手動ackモードでメッセージの受信を開始する。
// ctxがキャンセルされるとチャネルが閉じる。
func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Close はチャネルと接続を閉じる。
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// DecodePendingLink はメッセージ本文をPendingLinkに変換する。
func DecodePendingLink(body []byte) (model.PendingLink, error) {
	var link model.PendingLink
	if err := json.Unmarshal(body, &link); err != nil {
		return model.PendingLink{}, fmt.Errorf("decode pending link: %w", err)
	}
	if link.ManagerID == "" || link.StripeUserID == "" {
		return model.PendingLink{}, fmt.Errorf("decode pending link: manager_id and stripe_user_id are required")
	}
	return link, nil
}
