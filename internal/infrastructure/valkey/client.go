package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/config"
)

const (
	dialTimeout  = 3 * time.Second
	ioTimeout    = 2 * time.Second
	pingTimeout  = 3 * time.Second
	keySeparator = ":"
)

// hashStore is the subset of go-redis used by the client.
type hashStore interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Client reads the live signal hash from Valkey (or Redis).
type Client struct {
	rdb       hashStore
	address   string
	signalKey string

	mu     sync.RWMutex
	closed bool
}

// Connect opens a client for cfg and verifies it with PING.
func Connect(ctx context.Context, cfg config.ValkeyConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(buildOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Address, err)
	}

	return newClient(rdb, cfg.Address, cfg.SignalKey), nil
}

func newClient(rdb hashStore, address, signalKey string) *Client {
	return &Client{
		rdb:       rdb,
		address:   address,
		signalKey: JoinKey(signalKey),
	}
}

func buildOptions(cfg config.ValkeyConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// JoinKey joins key segments with colons, dropping empty segments and
// stray colons so "a:", ":b" yields "a:b".
func JoinKey(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, keySeparator)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, keySeparator)
}

// Address returns the configured server address.
func (c *Client) Address() string {
	return c.address
}

// SignalKey returns the hash holding live signals.
func (c *Client) SignalKey() string {
	return c.signalKey
}

// ReadSignals returns every field of the signal hash. Fields are wire keys
// ("<device>#<tag>") and values are the raw JSON payloads. A missing hash
// yields an empty map.
func (c *Client) ReadSignals(ctx context.Context) (map[string]string, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	fields, err := c.rdb.HGetAll(ctx, c.signalKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.signalKey, err)
	}
	return fields, nil
}

// WriteSignal sets one field of the signal hash.
func (c *Client) WriteSignal(ctx context.Context, field string, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.rdb.HSet(ctx, c.signalKey, field, payload).Err(); err != nil {
		return fmt.Errorf("writing %s/%s: %w", c.signalKey, field, err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("valkey health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing valkey client: %w", err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
