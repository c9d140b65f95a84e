package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	redis "github.com/redis/go-redis/v9"
)

// Catalog keeps bookkeeping for produced files. The download directory stays
// the source of truth; a missing record never blocks a download.
type Catalog interface {
	Save(ctx context.Context, rec *FileRecord) error
	Get(ctx context.Context, filename string) (*FileRecord, error)
	IncrDownloads(ctx context.Context, filename string) (int64, error)
	Delete(ctx context.Context, filename string) error
	Backend() string
}

func catalogKey(filename string) string {
	return fmt.Sprintf("file:%s", filename)
}

// newCatalog connects to Redis and falls back to process memory when the
// server does not answer a ping.
func newCatalog(ctx context.Context, cfg *Config, logger log.Interface) Catalog {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("⚠️  Redis not available, using in-memory catalog")
		_ = client.Close()
		return newMemoryCatalog(cfg.Retention)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("✅ Redis connected successfully")
	return &redisCatalog{client: client, ttl: cfg.Retention}
}

type redisCatalog struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisCatalog) Backend() string { return "redis" }

func (c *redisCatalog) Save(ctx context.Context, rec *FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, catalogKey(rec.Filename), data, c.ttl).Err()
}

func (c *redisCatalog) Get(ctx context.Context, filename string) (*FileRecord, error) {
	val, err := c.client.Get(ctx, catalogKey(filename)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return nil, err
	}
	var rec FileRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// incrRetries bounds how often a WATCH conflict is retried.
const incrRetries = 50

// IncrDownloads bumps the counter inside a WATCH transaction, retrying when a
// concurrent download changed the record first.
func (c *redisCatalog) IncrDownloads(ctx context.Context, filename string) (int64, error) {
	for i := 0; i < incrRetries; i++ {
		count, err := c.incrOnce(ctx, filename)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return count, err
	}
	return 0, fmt.Errorf("increment %s: %w", filename, redis.TxFailedErr)
}

func (c *redisCatalog) incrOnce(ctx context.Context, filename string) (int64, error) {
	key := catalogKey(filename)
	var count int64
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		if err != nil {
			return err
		}
		var rec FileRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return err
		}
		rec.Downloads++
		count = rec.Downloads
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, key)
	return count, err
}

func (c *redisCatalog) Delete(ctx context.Context, filename string) error {
	return c.client.Del(ctx, catalogKey(filename)).Err()
}

// memoryCatalog is the fallback used without Redis. Expired records are
// dropped lazily on read.
type memoryCatalog struct {
	sync.RWMutex
	ttl     time.Duration
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	rec       FileRecord
	expiresAt time.Time
}

func newMemoryCatalog(ttl time.Duration) *memoryCatalog {
	return &memoryCatalog{
		ttl:     ttl,
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (c *memoryCatalog) Backend() string { return "memory" }

func (c *memoryCatalog) Save(_ context.Context, rec *FileRecord) error {
	c.Lock()
	defer c.Unlock()
	entry := memoryRecord{rec: *rec}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.records[rec.Filename] = entry
	return nil
}

func (c *memoryCatalog) lookup(filename string) (memoryRecord, bool) {
	entry, ok := c.records[filename]
	if !ok {
		return entry, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.records, filename)
		return entry, false
	}
	return entry, true
}

func (c *memoryCatalog) Get(_ context.Context, filename string) (*FileRecord, error) {
	c.Lock()
	defer c.Unlock()
	entry, ok := c.lookup(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	rec := entry.rec
	return &rec, nil
}

func (c *memoryCatalog) IncrDownloads(_ context.Context, filename string) (int64, error) {
	c.Lock()
	defer c.Unlock()
	entry, ok := c.lookup(filename)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	entry.rec.Downloads++
	c.records[filename] = entry
	return entry.rec.Downloads, nil
}

func (c *memoryCatalog) Delete(_ context.Context, filename string) error {
	c.Lock()
	delete(c.records, filename)
	c.Unlock()
	return nil
}
