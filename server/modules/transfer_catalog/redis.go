package transfer_catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
)

const DefaultKeyPrefix = "csdfs:file:"

// Redis stores one hash per file name:
//
//	csdfs:file:<name>  size stored_at remote conn_id downloads
type Redis struct {
	pool   *redis.Pool
	prefix string
}

func initPool(server string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		MaxActive:   16,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", server,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedis connects to the Redis server at addr and verifies it answers.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	r := &Redis{pool: initPool(addr), prefix: DefaultKeyPrefix}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		r.pool.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		r.pool.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return r, nil
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

// RecordUpload overwrites the metadata of name. The download counter is reset
// because the content behind the name changed.
func (r *Redis) RecordUpload(ctx context.Context, u Upload) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.Do("HSET", r.key(u.Name),
		"size", u.Size,
		"stored_at", u.StoredAt.UTC().Format(time.RFC3339Nano),
		"remote", u.Remote,
		"conn_id", u.ConnID,
		"downloads", 0,
	)
	if err != nil {
		return fmt.Errorf("record upload of %q: %w", u.Name, err)
	}
	return nil
}

func (r *Redis) RecordDownload(ctx context.Context, name string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("HINCRBY", r.key(name), "downloads", 1); err != nil {
		return fmt.Errorf("record download of %q: %w", name, err)
	}
	return nil
}

// Lookup returns the record for name. The boolean is false when the catalog
// has never seen an upload of name.
func (r *Redis) Lookup(ctx context.Context, name string) (Record, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return Record{}, false, fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	fields, err := redis.StringMap(conn.Do("HGETALL", r.key(name)))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("lookup %q: %w", name, err)
	}
	if _, ok := fields["stored_at"]; !ok {
		return Record{}, false, nil
	}

	rec := Record{Upload: Upload{Name: name, Remote: fields["remote"], ConnID: fields["conn_id"]}}
	if rec.Size, err = strconv.ParseInt(fields["size"], 10, 64); err != nil {
		return Record{}, false, fmt.Errorf("lookup %q: bad size: %w", name, err)
	}
	if rec.StoredAt, err = time.Parse(time.RFC3339Nano, fields["stored_at"]); err != nil {
		return Record{}, false, fmt.Errorf("lookup %q: bad stored_at: %w", name, err)
	}
	if d, ok := fields["downloads"]; ok {
		if rec.Downloads, err = strconv.ParseInt(d, 10, 64); err != nil {
			return Record{}, false, fmt.Errorf("lookup %q: bad downloads: %w", name, err)
		}
	}
	return rec, true, nil
}

// Forget removes the record of name.
func (r *Redis) Forget(ctx context.Context, name string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", r.key(name)); err != nil {
		return fmt.Errorf("forget %q: %w", name, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.pool.Close()
}
