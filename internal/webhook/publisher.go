package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

const (
	webhookQueueKey = "webhook_events"

	// EventDispatchCreated - бригада получила новый выезд
	EventDispatchCreated = "dispatch.created"
)

// DispatchEvent - уведомление о созданном выезде
type DispatchEvent struct {
	Event       string                    `json:"event"`
	DispatchID  uuid.UUID                 `json:"dispatch_id"`
	TeamID      uuid.UUID                 `json:"team_id"`
	CreatedBy   string                    `json:"created_by"`
	PlanSummary string                    `json:"plan_summary"`
	Incidents   []models.IncidentSnapshot `json:"incidents"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// NewDispatchEvent строит событие по записи выезда
func NewDispatchEvent(d *models.Dispatch) DispatchEvent {
	return DispatchEvent{
		Event:       EventDispatchCreated,
		DispatchID:  d.ID,
		TeamID:      d.TeamID,
		CreatedBy:   d.CreatedBy,
		PlanSummary: d.Plan.Summary,
		Incidents:   d.Incidents,
		Timestamp:   d.CreatedAt,
	}
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
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

// Publish публикует событие вебхука в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH в голову списка, воркер забирает с хвоста
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
