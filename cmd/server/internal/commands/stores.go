package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/plans"
	"github.com/wolfeidau/rentdesk/internal/store"
	memorystore "github.com/wolfeidau/rentdesk/internal/store/memory"
	postgresstore "github.com/wolfeidau/rentdesk/internal/store/postgres"
	redisstore "github.com/wolfeidau/rentdesk/internal/store/redis"
)

// StoreFlags selects and configures the persistence backends.
type StoreFlags struct {
	StoreType        string             `help:"store type for users, organizations and subscriptions (memory or postgres)" default:"memory" env:"RENTDESK_STORE_TYPE" enum:"memory,postgres"`
	SessionStoreType string             `help:"store type for onboarding sessions (auto follows --store-type)" default:"auto" env:"RENTDESK_SESSION_STORE_TYPE" enum:"auto,memory,postgres,redis"`
	PostgresStore    PostgresStoreFlags `embed:"" prefix:"postgres-"`
	RedisStore       RedisStoreFlags    `embed:"" prefix:"redis-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"RENTDESK_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return errors.New("--postgres-min-conns must not exceed --postgres-max-conns")
	}
	return nil
}

type RedisStoreFlags struct {
	Addrs     []string `help:"Redis addresses; more than one with --redis-cluster" default:"localhost:6379" env:"RENTDESK_REDIS_ADDRS"`
	Password  string   `help:"Redis password" env:"RENTDESK_REDIS_PASSWORD"`
	DB        int      `help:"Redis database number" default:"0" env:"RENTDESK_REDIS_DB"`
	Cluster   bool     `help:"connect to a Redis cluster" default:"false" env:"RENTDESK_REDIS_CLUSTER"`
	KeyPrefix string   `help:"prefix for session keys" default:"rentdesk:onboarding" env:"RENTDESK_REDIS_KEY_PREFIX"`
}

func (s *RedisStoreFlags) Validate() error {
	if len(s.Addrs) == 0 {
		return errors.New("at least one Redis address is required (--redis-addrs or RENTDESK_REDIS_ADDRS)")
	}
	return nil
}

// backend holds the stores used by the onboarding workflow.
type backend struct {
	sessions      store.SessionStore
	users         store.UserStore
	organizations store.OrganizationStore
	agencies      store.AgencyStore
	plans         store.PlanStore
	subscriptions store.SubscriptionStore

	closers []func()
}

// Close releases connections in reverse order of creation.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend builds the configured stores and seeds the plan catalog.
func (f *StoreFlags) openBackend(ctx context.Context) (*backend, error) {
	b := &backend{}

	switch f.StoreType {
	case "postgres":
		if err := f.PostgresStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      f.PostgresStore.ConnString,
			MaxConns:        f.PostgresStore.MaxConns,
			MinConns:        f.PostgresStore.MinConns,
			MaxConnLifetime: f.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: f.PostgresStore.MaxConnIdleTime,
			AutoMigrate:     f.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		b.users = postgresstore.NewUserStore(pool)
		b.organizations = postgresstore.NewOrganizationStore(pool)
		b.agencies = postgresstore.NewAgencyStore(pool)
		b.plans = postgresstore.NewPlanStore(pool)
		b.subscriptions = postgresstore.NewSubscriptionStore(pool)
		if f.sessionStoreType() == "postgres" {
			b.sessions = postgresstore.NewSessionStore(pool)
		}
		log.Info().Msg("Using PostgreSQL stores")

	default:
		b.users = memorystore.NewUserStore()
		b.organizations = memorystore.NewOrganizationStore()
		b.agencies = memorystore.NewAgencyStore()
		b.plans = memorystore.NewPlanStore()
		b.subscriptions = memorystore.NewSubscriptionStore()
		log.Info().Msg("Using in-memory stores")
	}

	if b.sessions == nil {
		sessions, err := f.openSessionStore(ctx, b)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.sessions = sessions
	}

	catalog, err := plans.Default()
	if err != nil {
		b.Close()
		return nil, err
	}
	if err := plans.Seed(ctx, b.plans, catalog); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to seed plans: %w", err)
	}

	return b, nil
}

func (f *StoreFlags) sessionStoreType() string {
	if f.SessionStoreType == "auto" {
		return f.StoreType
	}
	return f.SessionStoreType
}

func (f *StoreFlags) openSessionStore(ctx context.Context, b *backend) (store.SessionStore, error) {
	switch f.sessionStoreType() {
	case "redis":
		if err := f.RedisStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate redis flags: %w", err)
		}
		client, err := redisstore.NewClient(ctx, &redisstore.ClientConfig{
			Addrs:    f.RedisStore.Addrs,
			Password: f.RedisStore.Password,
			DB:       f.RedisStore.DB,
			Cluster:  f.RedisStore.Cluster,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		})
		log.Info().Msg("Using Redis session store")
		return redisstore.NewSessionStore(client, f.RedisStore.KeyPrefix), nil

	case "postgres":
		return nil, errors.New("--session-store-type=postgres requires --store-type=postgres")

	default:
		log.Info().Msg("Using in-memory session store")
		return memorystore.NewSessionStore(), nil
	}
}
