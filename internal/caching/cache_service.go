package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"flowlytix/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	GetAgency(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error)
	SetAgency(ctx context.Context, agency *models.Agency, ttl time.Duration) error
	DeleteAgency(ctx context.Context, agencyID uuid.UUID) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept either host:port or a redis:// URL
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	return &redisCacheService{client: client}
}

func agencyKey(agencyID uuid.UUID) string {
	return fmt.Sprintf("agency:%s", agencyID)
}

func (c *redisCacheService) GetAgency(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error) {
	data, err := c.client.Get(ctx, agencyKey(agencyID)).Result()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var agency models.Agency
	if err := json.Unmarshal([]byte(data), &agency); err != nil {
		// Drop the poisoned entry rather than surfacing it forever.
		log.Printf("unmarshaling cached agency %s: %v", agencyID, err)
		c.client.Del(ctx, agencyKey(agencyID))
		return nil, nil
	}
	return &agency, nil
}

func (c *redisCacheService) SetAgency(ctx context.Context, agency *models.Agency, ttl time.Duration) error {
	data, err := json.Marshal(agency)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, agencyKey(agency.ID), data, ttl).Err()
}

func (c *redisCacheService) DeleteAgency(ctx context.Context, agencyID uuid.UUID) error {
	return c.client.Del(ctx, agencyKey(agencyID)).Err()
}


// NoopCacheService degrades gracefully when no Redis is configured; every
// read is a miss and every write succeeds.
type NoopCacheService struct{}

func (NoopCacheService) GetAgency(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error) {
	return nil, nil
}
func (NoopCacheService) SetAgency(ctx context.Context, agency *models.Agency, ttl time.Duration) error {
	return nil
}
func (NoopCacheService) DeleteAgency(ctx context.Context, agencyID uuid.UUID) error { return nil }
