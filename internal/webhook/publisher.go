package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	notificationQueueKey = "dispatch_notifications"
)

// EventType - тип подтвержденного изменения
type EventType string

const (
	EventReportCreated       EventType = "report.created"
	EventDispatchConfirmed   EventType = "dispatch.confirmed"
	EventDispatchAccepted    EventType = "dispatch.accepted"
	EventDispatchRejected    EventType = "dispatch.rejected"
	EventDispatchResolved    EventType = "dispatch.resolved"
	EventAvailabilityChanged EventType = "availability.changed"
)

// NotificationEvent - данные вебхука о подтвержденной команде
type NotificationEvent struct {
	Type         EventType  `json:"type"`
	AccidentID   *uuid.UUID `json:"accident_id,omitempty"`
	AssignmentID *uuid.UUID `json:"assignment_id,omitempty"`
	ResponderID  *uuid.UUID `json:"responder_id,omitempty"`
	IsAvailable  *bool      `json:"is_available,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event NotificationEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish кладет событие в левую часть очереди, воркер забирает справа
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	if err := p.redisClient.LPush(ctx, notificationQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification event to Redis: %w", err)
	}
	return nil
}

// NopPublisher отбрасывает события (процесс запущен без Redis)
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, NotificationEvent) error { return nil }
