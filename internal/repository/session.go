package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
)

// SessionStore хранит сессии бригад в Redis, истечение обеспечивает TTL ключа
type SessionStore struct {
	redisClient *redis.Client
}

func NewSessionStore(redisClient *redis.Client) service.SessionStore {
	return &SessionStore{redisClient: redisClient}
}

// Put сохраняет сессию до момента ExpiresAt
func (s *SessionStore) Put(ctx context.Context, session *models.TeamSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s: %w", session.ID, models.ErrSessionExpired)
	}
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.redisClient.Set(ctx, sessionKey(session.ID), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get возвращает сессию; истекшая или неизвестная сессия - ErrSessionExpired
func (s *SessionStore) Get(ctx context.Context, id string) (*models.TeamSession, error) {
	val, err := s.redisClient.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionExpired)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session := &models.TeamSession{}
	if err := json.Unmarshal(val, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Delete завершает сессию
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.redisClient.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return "team_session:" + id
}
