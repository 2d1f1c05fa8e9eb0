package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// retainAfterPeriod keeps a closed period's counter readable for a while
// after rollover before Redis evicts it.
const retainAfterPeriod = 7 * 24 * time.Hour

// tryIncrementScript returns the new consumption, or -1 when the increment
// would pass the limit. KEYS[1] counter; ARGV amount, limit, expire-at.
var tryIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if current + amount > limit then
  return -1
end
local consumed = redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIREAT', KEYS[1], ARGV[3])
return consumed
`)

// RedisLedger is a Ledger backed by Redis counters, one key per account,
// resource kind and period.
type RedisLedger struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisLedger wraps client. Keys are namespaced under prefix.
func NewRedisLedger(client *redis.Client, prefix string, logger *slog.Logger) *RedisLedger {
	if prefix == "" {
		prefix = "pixeldraft"
	}
	return &RedisLedger{client: client, prefix: prefix, logger: logger}
}

// OpenRedis parses a redis:// URL, connects and pings.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLedger) key(accountID string, kind domain.ResourceKind, periodStart time.Time) string {
	return fmt.Sprintf("%s:usage:%s:%s:%s", l.prefix, accountID, kind, PeriodStart(periodStart).Format("2006-01"))
}

// CurrentConsumption implements Ledger.
func (l *RedisLedger) CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error) {
	n, err := l.client.Get(ctx, l.key(accountID, kind, periodStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read consumption: %w", err)
	}
	return n, nil
}

// TryIncrement implements Ledger.
func (l *RedisLedger) TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error) {
	if err := checkIncrement(amount, limit); err != nil {
		return 0, err
	}

	key := l.key(accountID, kind, periodStart)
	expireAt := PeriodEnd(periodStart).Add(retainAfterPeriod).Unix()

	consumed, err := tryIncrementScript.Run(ctx, l.client, []string{key}, amount, int64(limit), expireAt).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger: increment: %w", err)
	}
	if consumed < 0 {
		return 0, ErrWouldExceedQuota
	}

	l.logger.Debug("usage incremented",
		"account_id", accountID,
		"resource", kind,
		"key", key,
		"consumed", consumed,
	)
	return consumed, nil
}
