package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbari/config"
	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned on release when the lock expired and may now
// belong to another caller. The lock is left alone.
var ErrLockNotHeld = errors.New("booking lock no longer held")

// releaseLock deletes the lock only while it still carries the caller's
// token.
const releaseLock = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type RedisCache struct {
	client     *redis.Client
	ticketsTTL time.Duration
	clock      clockwork.Clock
	newToken   func() string
}

type Option func(*RedisCache)

func WithClock(clock clockwork.Clock) Option {
	return func(c *RedisCache) {
		c.clock = clock
	}
}

func NewRedisCache(cfg config.RedisConfig, ticketsTTL time.Duration, opts ...Option) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), ticketsTTL, opts...)
}

func NewRedisCacheWithClient(client *redis.Client, ticketsTTL time.Duration, opts ...Option) *RedisCache {
	c := &RedisCache{
		client:     client,
		ticketsTTL: ticketsTTL,
		clock:      clockwork.NewRealClock(),
		newToken:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTickets returns nil, nil on a cache miss.
func (c *RedisCache) GetTickets(ctx context.Context) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	found, err := c.getJSON(ctx, ticketsKey(), &tickets)
	if err != nil || !found {
		return nil, err
	}
	return tickets, nil
}

func (c *RedisCache) SetTickets(ctx context.Context, tickets []domain.Ticket) error {
	return c.setJSON(ctx, ticketsKey(), tickets)
}

// GetTicket returns nil, nil on a cache miss.
func (c *RedisCache) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	found, err := c.getJSON(ctx, ticketKey(id), &ticket)
	if err != nil || !found {
		return nil, err
	}
	return &ticket, nil
}

func (c *RedisCache) SetTicket(ctx context.Context, ticket domain.Ticket) error {
	return c.setJSON(ctx, ticketKey(ticket.ID), ticket)
}

// InvalidateTicket drops a ticket and the listing that contains it, after
// its inventory changed.
func (c *RedisCache) InvalidateTicket(ctx context.Context, id string) error {
	return c.client.Del(ctx, ticketKey(id), ticketsKey()).Err()
}

// AcquireBookingLock marks a change to the booking as in progress and
// returns the token that releases it. ok is false when another change
// already holds the lock.
func (c *RedisCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (string, bool, error) {
	token := c.newToken()
	ok, err := c.client.SetNX(ctx, bookingLockKey(bookingID), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (c *RedisCache) ReleaseBookingLock(ctx context.Context, bookingID, token string) error {
	deleted, err := c.client.Eval(ctx, releaseLock, []string{bookingLockKey(bookingID)}, token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: booking %s", ErrLockNotHeld, bookingID)
	}
	return nil
}

// MarkTripExpiredReported returns true the first time it is called for a
// booking within ttl.
func (c *RedisCache) MarkTripExpiredReported(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, tripExpiredKey(bookingID), c.clock.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ticketsTTL).Err()
}

func ticketsKey() string {
	return "cache:tickets"
}

func ticketKey(id string) string {
	return fmt.Sprintf("cache:ticket:%s", id)
}

func bookingLockKey(id string) string {
	return fmt.Sprintf("lock:booking:%s", id)
}

func tripExpiredKey(id string) string {
	return fmt.Sprintf("flag:booking:%s:trip_expired", id)
}
