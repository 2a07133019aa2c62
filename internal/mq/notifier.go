package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notifier отправляет события об изменении шаблона.
//
// Соединение устанавливается при первом событии, поэтому команды,
// которые ничего не меняют (get, versions), не обращаются к брокеру.
type Notifier struct {
	url      string
	exchange Exchange
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *Connection
	publisher *Publisher
}

// NewNotifier создаёт Notifier. Пустой exchange заменяется DefaultExchange.
func NewNotifier(url string, exchange Exchange, logger *slog.Logger) *Notifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{
		url:      url,
		exchange: exchange,
		timeout:  DefaultDialTimeout,
		logger:   logger,
	}
}

// TemplatePublished публикует событие template.published.
func (n *Notifier) TemplatePublished(ctx context.Context, payload TemplateEventPayload) error {
	return n.notify(ctx, RoutingKeyPublished, NewTemplateMessage(MessageTypeTemplatePublished, payload))
}

// TemplateRolledBack публикует событие template.rolled_back.
func (n *Notifier) TemplateRolledBack(ctx context.Context, payload TemplateEventPayload) error {
	return n.notify(ctx, RoutingKeyRolledBack, NewTemplateMessage(MessageTypeTemplateRolledBack, payload))
}

func (n *Notifier) notify(ctx context.Context, key RoutingKey, msg *Message) error {
	publisher, err := n.connect(ctx)
	if err != nil {
		return err
	}
	return publisher.Publish(ctx, n.exchange, key, msg)
}

// connect открывает соединение и объявляет exchange при первом вызове.
func (n *Notifier) connect(ctx context.Context) (*Publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.publisher != nil {
		return n.publisher, nil
	}

	conn, err := NewConnection(n.url, n.timeout, n.logger)
	if err != nil {
		return nil, err
	}
	if err := DeclareExchange(ctx, conn, n.exchange); err != nil {
		conn.Close()
		return nil, err
	}

	n.conn = conn
	n.publisher = NewPublisher(conn, n.logger)
	return n.publisher, nil
}

// Close закрывает соединение, если оно было открыто.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	n.publisher = nil
	return err
}
