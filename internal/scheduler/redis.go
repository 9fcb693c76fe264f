package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tableguard/tableguard/pkg/types"
)

const (
	scheduleKeyPrefix = "schedule:"       // JSON document per schedule
	scheduleDueKey    = "schedules:due"   // sorted set scored by nextRunAt
	scheduleIndexKey  = "schedules:all"   // set of all schedule IDs
	scheduleStatsKey  = "schedules:stats" // hash of run counters
)

// RedisOptions mirrors the connection settings the queue side uses.
type RedisOptions struct {
	URL            string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// RedisRepository persists schedules in Redis: one JSON document per
// schedule plus a sorted set scored by nextRunAt so ListDue is a single
// ZRANGEBYSCORE.
type RedisRepository struct {
	client redis.Cmdable
}

func NewRedisRepository(opts RedisOptions) (*RedisRepository, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.Password = opts.Password
	redisOpts.DB = opts.DB
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.CommandTimeout
	redisOpts.WriteTimeout = opts.CommandTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

// NewRedisRepositoryWithClient wraps an existing client (shared pools, tests).
func NewRedisRepositoryWithClient(client redis.Cmdable) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Create(ctx context.Context, s *types.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule validation failed: %w", err)
	}

	exists, err := r.client.Exists(ctx, scheduleKeyPrefix+s.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to check schedule existence: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("schedule %s already exists", s.ID)
	}

	return r.store(ctx, s, true)
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*types.Schedule, error) {
	data, err := r.client.Get(ctx, scheduleKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	var s types.Schedule
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisRepository) Update(ctx context.Context, s *types.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule validation failed: %w", err)
	}
	if _, err := r.Get(ctx, s.ID); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()
	return r.store(ctx, s, false)
}

// store writes the document and keeps the due index in sync. Deleted and
// paused schedules drop out of the due set so ListDue never sees them.
func (r *RedisRepository) store(ctx context.Context, s *types.Schedule, isNew bool) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, scheduleKeyPrefix+s.ID, data, 0)
	pipe.SAdd(ctx, scheduleIndexKey, s.ID)

	if s.Status == types.ScheduleActive {
		pipe.ZAdd(ctx, scheduleDueKey, &redis.Z{
			Score:  float64(s.NextRunAt.Unix()),
			Member: s.ID,
		})
	} else {
		pipe.ZRem(ctx, scheduleDueKey, s.ID)
	}

	if isNew {
		pipe.HIncrBy(ctx, scheduleStatsKey, "created", 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store schedule: %w", err)
	}
	return nil
}

func (r *RedisRepository) SoftDelete(ctx context.Context, id string) error {
	return r.SetStatus(ctx, id, types.ScheduleDeleted)
}

func (r *RedisRepository) List(ctx context.Context) ([]*types.Schedule, error) {
	ids, err := r.client.SMembers(ctx, scheduleIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule IDs: %w", err)
	}

	out := make([]*types.Schedule, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			continue // index can briefly outlive a removed document
		}
		if s.Status == types.ScheduleDeleted {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.Schedule, error) {
	opt := &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now.Unix()),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	ids, err := r.client.ZRangeByScore(ctx, scheduleDueKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}

	due := make([]*types.Schedule, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if s.Status != types.ScheduleActive {
			continue
		}
		due = append(due, s)
	}
	return due, nil
}

func (r *RedisRepository) MarkExecuted(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	s.NextRunAt = nextRunAt
	last := lastRunAt
	s.LastRunAt = &last
	s.FailureCount = 0
	s.LastError = ""
	s.UpdatedAt = time.Now().UTC()

	if err := r.store(ctx, s, false); err != nil {
		return err
	}
	return r.client.HIncrBy(ctx, scheduleStatsKey, "executed", 1).Err()
}

func (r *RedisRepository) IncrementFailure(ctx context.Context, id string, lastError string) (int, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	s.FailureCount++
	s.LastError = lastError
	s.UpdatedAt = time.Now().UTC()

	if err := r.store(ctx, s, false); err != nil {
		return 0, err
	}
	if err := r.client.HIncrBy(ctx, scheduleStatsKey, "failed", 1).Err(); err != nil {
		return 0, err
	}
	return s.FailureCount, nil
}

func (r *RedisRepository) SetNextRun(ctx context.Context, id string, at time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	s.NextRunAt = at
	s.UpdatedAt = time.Now().UTC()
	return r.store(ctx, s, false)
}

func (r *RedisRepository) SetStatus(ctx context.Context, id string, status types.ScheduleStatus) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return r.store(ctx, s, false)
}

// Stats returns the lifetime schedule counters (created, executed, failed).
func (r *RedisRepository) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, scheduleStatsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		stats[field] = n
	}
	return stats, nil
}

// Health checks if the backing Redis is reachable.
func (r *RedisRepository) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisRepository) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		return client.Close()
	}
	return nil
}
