package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// RedisClients separates the blocking consumer connection pool from the one
// serving producers, mailbox reads and health checks, so a worker shutdown
// never closes connections the HTTP side still uses.
type RedisClients struct {
	Queue   *redis.Client
	Mailbox *redis.Client
}

// NewRedisClients connects both clients to redisURL. Every queue worker
// parks one connection in BRPOP, so the queue pool is sized to hold one per
// worker plus headroom for non-blocking commands.
func NewRedisClients(redisURL string, queueWorkers int) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	queueOpt := *opt
	if floor := queueWorkers + 2; queueOpt.PoolSize < floor {
		queueOpt.PoolSize = floor
	}
	queueClient, err := connect(ctx, &queueOpt, "queue")
	if err != nil {
		return nil, err
	}

	mailboxOpt := *opt
	mailboxClient, err := connect(ctx, &mailboxOpt, "mailbox")
	if err != nil {
		queueClient.Close()
		return nil, err
	}

	return &RedisClients{
		Queue:   queueClient,
		Mailbox: mailboxClient,
	}, nil
}

func connect(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s) at %s: %w", role, opt.Addr, err)
	}
	return client, nil
}

// Close closes both clients. Closing a client twice is harmless.
func (r *RedisClients) Close() {
	r.Queue.Close()
	r.Mailbox.Close()
}
