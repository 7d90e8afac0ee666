package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix    = "extraction:job:"
	tenantKeyPrefix = "extraction:tenant:"
)

// RedisJobStore keeps jobs in Redis so a restart of the node does not lose
// recently finished results. Entries expire after the configured TTL.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobStore creates a Redis-backed job store. The connection is
// verified lazily; call Ping at startup to fail fast.
func NewRedisJobStore(cfg *config.RedisConfig) *RedisJobStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisJobStore{client: client, ttl: ttl}
}

// Ping checks the connection
func (s *RedisJobStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Save(ctx context.Context, job *model.ExtractionJob) error {
	cp := job.Clone()
	cp.UpdatedAt = time.Now()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := s.client.Set(ctx, jobKeyPrefix+cp.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := s.client.SAdd(ctx, tenantKeyPrefix+cp.Tenant, cp.ID).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	// Keep the tenant index alive at least as long as its newest job
	if err := s.client.Expire(ctx, tenantKeyPrefix+cp.Tenant, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.ExtractionJob, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job model.ExtractionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisJobStore) GetByTenant(ctx context.Context, tenant string) ([]*model.ExtractionJob, error) {
	ids, err := s.client.SMembers(ctx, tenantKeyPrefix+tenant).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	var result []*model.ExtractionJob
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Job expired; drop the stale index entry
			s.client.SRem(ctx, tenantKeyPrefix+tenant, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Update applies mutate with a get-modify-set cycle. Each job has a single
// writer (the deferred task that owns it), so no transaction is needed.
func (s *RedisJobStore) Update(ctx context.Context, id string, mutate func(*model.ExtractionJob) error) (*model.ExtractionJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set: %w", err)
	}
	return job, nil
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, jobKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if err := s.client.SRem(ctx, tenantKeyPrefix+job.Tenant, id).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Count(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

// Close closes the Redis connection
func (s *RedisJobStore) Close() error {
	return s.client.Close()
}
