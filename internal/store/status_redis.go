package store

import (
    "context"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisStatus keeps one hash per job under pdfassembly:job:<id>:status. Every write
// refreshes the ttl, so finished jobs disappear ttl after their last update.
type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { _ = c.Close(); return nil, err }
    return &RedisStatus{client: c, keyNS: "pdfassembly:job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return s.keyNS + ":" + jobID + ":status" }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    fields, err := st.hashFields()
    if err != nil { return err }
    k := s.key(jobID)
    _, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
        p.Del(ctx, k)
        p.HSet(ctx, k, fields)
        if s.ttl > 0 { p.Expire(ctx, k, s.ttl) }
        return nil
    })
    return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    h, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil || len(h) == 0 { return Status{}, false, err }
    return statusFromHash(h), true, nil
}

// Ping checks the connection, for health reporting.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }
