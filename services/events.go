package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"messenger/logger"
	"messenger/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Типы событий. Маршрутизируются как user.<recipient>.<type>
const (
	EventMessageSent    = "message.sent"
	EventMessageRead    = "message.read"
	EventMessageDeleted = "message.deleted"
	EventMessageReacted = "message.reacted"
)

const previewLength = 100

// Event - уведомление о событии в диалоге для внешних подписчиков.
// Отправляется после фиксации изменения, доставка не гарантируется
type Event struct {
	Type            string             `json:"event"`
	MessageID       string             `json:"message_id,omitempty"`
	ConversationKey string             `json:"conversation_key"`
	ActorID         string             `json:"actor_id"`
	RecipientID     string             `json:"recipient_id"`
	Kind            models.ContentKind `json:"kind,omitempty"`
	Preview         string             `json:"preview,omitempty"`
	Reaction        string             `json:"reaction,omitempty"`
	Count           int64              `json:"count,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// RoutingKey - ключ маршрутизации в topic exchange
func (e Event) RoutingKey() string {
	return fmt.Sprintf("user.%s.%s", e.RecipientID, e.Type)
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher - публикация выключена
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RabbitPublisher публикует события в topic exchange RabbitMQ
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitPublisher подключается к RabbitMQ и объявляет exchange
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	logger.Log.Info("RabbitMQ publisher initialized", zap.String("exchange", exchange))
	return &RabbitPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Канал amqp нельзя использовать из нескольких горутин
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// publish отправляет событие; ошибка только логируется, запись уже зафиксирована
func (s *MessageStore) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Log.Warn("failed to publish event",
			zap.String("event", event.Type),
			zap.String("message_id", event.MessageID),
			zap.Error(err))
	}
}

// preview обрезает текст для уведомления
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return text
}
