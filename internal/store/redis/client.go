// Package redis stores onboarding sessions in Redis so several API replicas
// can share in-flight workflow state without a relational database.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ClientConfig holds connection settings for Redis.
type ClientConfig struct {
	// Addrs lists one address for a single node, or several for a cluster.
	Addrs    []string
	Password string
	DB       int
	Cluster  bool
}

// Validate checks that the configuration is valid.
func (c *ClientConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}
	if c.Cluster && c.DB != 0 {
		return fmt.Errorf("redis cluster only supports db 0")
	}
	return nil
}

// NewClient connects to Redis and verifies connectivity with a ping.
func NewClient(ctx context.Context, cfg *ClientConfig) (goredis.UniversalClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	var client goredis.UniversalClient
	if cfg.Cluster {
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	} else {
		client = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addrs[0],
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().
		Strs("addrs", cfg.Addrs).
		Bool("cluster", cfg.Cluster).
		Msg("Connected to Redis")

	return client, nil
}
