package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// redisClient is the subset of the go-redis client used by the journal
type redisClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisJournal stores release events in per-service Redis lists
type RedisJournal struct {
	client redisClient
	retain int64
}

// Options configures the Redis connection
type Options struct {
	URL      string // redis://... URL or plain host:port
	Password string
	DB       int
	Retain   int
}

// NewRedisJournal connects to Redis and verifies the connection
func NewRedisJournal(ctx context.Context, opts Options) (*RedisJournal, error) {
	redisOpts, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Debug().
		Str("addr", redisOpts.Addr).
		Int("db", redisOpts.DB).
		Msg("Release journal connected")

	return newJournal(client, opts.Retain), nil
}

func newJournal(client redisClient, retain int) *RedisJournal {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &RedisJournal{client: client, retain: int64(retain)}
}

func clientOptions(opts Options) (*redis.Options, error) {
	if strings.Contains(opts.URL, "://") {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if opts.Password != "" {
			parsed.Password = opts.Password
		}
		if opts.DB != 0 {
			parsed.DB = opts.DB
		}
		return parsed, nil
	}

	return &redis.Options{
		Addr:     opts.URL,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

// Publish appends the event to its service list and trims the list
func (j *RedisJournal) Publish(ctx context.Context, event *models.ReleaseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := Key(event.Cluster, event.Service)

	if err := j.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := j.client.LTrim(ctx, key, -j.retain, -1).Err(); err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}

	log.Debug().
		Str("eventID", event.ID.String()).
		Str("action", string(event.Action)).
		Str("key", key).
		Msg("Release event published")

	return nil
}

// Recent returns up to limit of the newest events, oldest first
func (j *RedisJournal) Recent(ctx context.Context, cluster, service string, limit int) ([]models.ReleaseEvent, error) {
	if limit <= 0 {
		limit = int(j.retain)
	}

	key := Key(cluster, service)
	raw, err := j.client.LRange(ctx, key, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	events := make([]models.ReleaseEvent, 0, len(raw))
	for _, item := range raw {
		var event models.ReleaseEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping malformed release event")
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// Close closes the Redis connection
func (j *RedisJournal) Close() error {
	if err := j.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
