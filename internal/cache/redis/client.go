// Package redis implements the dedupe lock, submission rate limiter and
// order event bus on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key and channel when none is configured.
const DefaultNamespace = "uniswapx"

// ClientConfig holds connection parameters. Addr may list several
// comma-separated nodes; with MasterName set they are sentinels, otherwise
// more than one node means a cluster.
type ClientConfig struct {
	Addr       string
	MasterName string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

// Client is a namespaced go-redis UniversalClient.
type Client struct {
	rdb redis.UniversalClient
	ns  string
}

func universalOptions(cfg ClientConfig) *redis.UniversalOptions {
	var addrs []string
	for _, a := range strings.Split(cfg.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	opts := &redis.UniversalOptions{
		Addrs:      addrs,
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// New connects and pings.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := universalOptions(cfg)
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}

	rdb := redis.NewUniversalClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", strings.Join(opts.Addrs, ","), err)
	}
	return &Client{rdb: rdb, ns: namespace(cfg.Namespace)}, nil
}

func namespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), ":")
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns
}

// key joins parts under the client's namespace: "<ns>:part1:part2".
func (c *Client) key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}

// Ping backs the redis health probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes every pooled connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
