package mq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher - минимальный интерфейс публикации событий.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// RabbitPublisher публикует JSON в topic-exchange RabbitMQ.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	mu       sync.Mutex
	logger   *zap.Logger
}

func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("Подключено к RabbitMQ", zap.String("exchange", exchange))
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("Ошибка закрытия канала RabbitMQ", zap.Error(err))
	}
	return p.conn.Close()
}
