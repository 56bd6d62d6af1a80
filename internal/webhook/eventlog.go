package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLogSize caps the number of retained webhook records.
const DefaultLogSize = 100

// Record is one received webhook delivery.
type Record struct {
	Delivery    string    `json:"delivery,omitempty"`
	Event       string    `json:"event"`
	Version     string    `json:"version,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// EventLog retains recent webhook records, newest first.
type EventLog interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
}

// RedisEventLog keeps records in a capped Redis list.
type RedisEventLog struct {
	client *redis.Client
	key    string
	size   int
}

// NewRedisEventLog constructs a Redis backed log holding at most size records.
func NewRedisEventLog(client *redis.Client, key string, size int) *RedisEventLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	if key == "" {
		key = "relnotes:webhooks:jira"
	}
	return &RedisEventLog{client: client, key: key, size: size}
}

// Append pushes rec and trims the list to its cap.
func (l *RedisEventLog) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, l.key, payload)
		pipe.LTrim(ctx, l.key, 0, int64(l.size-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook: append log: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (l *RedisEventLog) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 || n > l.size {
		n = l.size
	}
	raw, err := l.client.LRange(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("webhook: read log: %w", err)
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MemoryEventLog is an in-process EventLog for single instance deployments.
type MemoryEventLog struct {
	mu      sync.Mutex
	size    int
	records []Record
}

// NewMemoryEventLog constructs a bounded in-memory log.
func NewMemoryEventLog(size int) *MemoryEventLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &MemoryEventLog{size: size}
}

// Append stores rec, evicting the oldest record past the cap.
func (l *MemoryEventLog) Append(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]Record{rec}, l.records...)
	if len(l.records) > l.size {
		l.records = l.records[:l.size]
	}
	return nil
}

// Recent returns up to n records, newest first.
func (l *MemoryEventLog) Recent(_ context.Context, n int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	return append([]Record(nil), l.records[:n]...), nil
}
