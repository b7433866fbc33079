package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"github.com/mmeshcher/uniform-points/internal/model"
)

const summaryKeyPrefix = "uniformpoints:summary:"

// maxSetAttempts ограничивает число повторов оптимистичной записи под WATCH.
const maxSetAttempts = 3

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisSummaryCache хранит сводки баллов в Redis в виде JSON.
type RedisSummaryCache struct {
	client *redis.Client
}

// NewRedisSummaryCache создаёт кэш сводок поверх клиента Redis.
func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func summaryKey(personID int64) string {
	return summaryKeyPrefix + strconv.FormatInt(personID, 10)
}

// Get возвращает закэшированную сводку; промах не считается ошибкой.
func (c *RedisSummaryCache) Get(ctx context.Context, personID int64) (*model.PointSummary, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(personID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var s model.PointSummary
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

// Set сохраняет сводку, если в кэше нет более свежей. Сравнение и запись
// выполняются в транзакции WATCH/MULTI; при конкурентном изменении ключа
// попытка повторяется.
func (c *RedisSummaryCache) Set(ctx context.Context, summary *model.PointSummary, ttl time.Duration) error {
	if summary == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	key := summaryKey(summary.PersonID)
	for range maxSetAttempts {
		err = c.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				var cached model.PointSummary
				if json.Unmarshal(raw, &cached) == nil && !Supersedes(summary, &cached) {
					return nil
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Invalidate удаляет сводки указанных получателей.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, personIDs ...int64) error {
	if len(personIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(personIDs))
	for _, id := range personIDs {
		keys = append(keys, summaryKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// RedisLocker реализует Locker поверх bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker создаёт Locker поверх клиента Redis.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

// Obtain захватывает ключ lock:<key> на ttl без повторных попыток.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return lock, nil
}
