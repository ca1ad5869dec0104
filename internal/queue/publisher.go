// Package queue はRabbitMQを使った連携再調整キューの送受信を提供する。
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/clubster/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// declareQueue は永続キューを宣言する。何度呼んでも同じ結果になる。
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publisher はPendingLinkメッセージをキューに送信する。
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher はRabbitMQに接続し、キューを宣言したPublisherを返す。
func NewPublisher(url, queue string) (*Publisher, error) {
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
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// PublishPendingLink はPendingLinkを永続メッセージとして送信する。
func (p *Publisher) PublishPendingLink(ctx context.Context, link model.PendingLink) error {
	body, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal pending link: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish pending link: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
