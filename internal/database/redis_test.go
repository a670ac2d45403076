package database

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClients(t *testing.T) {
	mr := miniredis.RunT(t)

	clients, err := NewRedisClients("redis://"+mr.Addr(), 2)
	if err != nil {
		t.Fatalf("NewRedisClients: %v", err)
	}
	defer clients.Close()

	ctx := context.Background()
	if err := clients.Queue.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("queue client: %v", err)
	}
	got, err := clients.Mailbox.Get(ctx, "k").Result()
	if err != nil || got != "v" {
		t.Fatalf("mailbox client read %q, %v", got, err)
	}

	clients.Queue.Close()
	if err := clients.Mailbox.Ping(ctx).Err(); err != nil {
		t.Errorf("closing the queue client should not affect the mailbox client: %v", err)
	}
}

func TestNewRedisClients_QueuePoolFitsWorkers(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		url         string
		workers     int
		queuePool   int
		mailboxPool int
	}{
		{"grows to workers plus headroom", "redis://" + mr.Addr() + "?pool_size=4", 8, 10, 4},
		{"keeps a larger configured pool", "redis://" + mr.Addr() + "?pool_size=20", 8, 20, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clients, err := NewRedisClients(tc.url, tc.workers)
			if err != nil {
				t.Fatalf("NewRedisClients: %v", err)
			}
			defer clients.Close()

			if got := clients.Queue.Options().PoolSize; got != tc.queuePool {
				t.Errorf("queue pool size = %d, want %d", got, tc.queuePool)
			}
			if got := clients.Mailbox.Options().PoolSize; got != tc.mailboxPool {
				t.Errorf("mailbox pool size = %d, want %d", got, tc.mailboxPool)
			}
		})
	}
}

func TestNewRedisClients_Errors(t *testing.T) {
	if _, err := NewRedisClients("not a url", 1); err == nil {
		t.Fatal("expected error for invalid URL")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisClients("redis://"+addr, 1)
	if err == nil || !strings.Contains(err.Error(), "queue") {
		t.Fatalf("expected queue ping failure, got %v", err)
	}
}
