package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	logx "castbot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "castbot:recipient:"

// redisDir stores one key per recipient ("<prefix><chat id>" -> registration
// time) so the set can be shared with other tools and listed with SCAN.
type redisDir struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Directory, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("directory.redis_addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return newRedisDir(rdb, cfg.KeyPrefix, log), nil
}

func newRedisDir(rdb *redis.Client, prefix string, log logx.Logger) *redisDir {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return &redisDir{rdb: rdb, prefix: prefix, log: log}
}

func (d *redisDir) key(id int64) string { return d.prefix + strconv.FormatInt(id, 10) }

func (d *redisDir) List(ctx context.Context) ([]int64, error) {
	var out []int64
	iter := d.rdb.Scan(ctx, 0, d.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		raw := strings.TrimPrefix(iter.Val(), d.prefix)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			d.log.Debug("skipping foreign directory key", logx.String("key", iter.Val()))
			continue
		}
		out = append(out, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis scan: %w", ErrUnavailable, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (d *redisDir) Add(ctx context.Context, id int64) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.key(id), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx: %w", ErrUnavailable, err)
	}
	return ok, nil
}

func (d *redisDir) Remove(ctx context.Context, id int64) error {
	if err := d.rdb.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *redisDir) Close() error { return d.rdb.Close() }
