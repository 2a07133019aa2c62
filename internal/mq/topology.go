package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// DefaultExchange — topic exchange для событий шаблона.
const DefaultExchange Exchange = "remoteconfig.events"

// Routing keys.
const (
	RoutingKeyPublished  RoutingKey = "template.published"
	RoutingKeyRolledBack RoutingKey = "template.rolled_back"
)

// DeclareExchange объявляет durable topic exchange.
//
// Очереди CLI не создаёт: их объявляют потребители и привязывают
// по шаблону, например "template.*".
func DeclareExchange(ctx context.Context, conn *Connection, exchange Exchange) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(exchange), // name
			"topic",          // type
			true,             // durable
			false,            // auto-deleted
			false,            // internal
			false,            // no-wait
			nil,              // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		return nil
	})
}
