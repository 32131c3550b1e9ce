package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a dependency capable of Ping: the pgx
// pool, the Tika client and the Redpanda producer.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

// ReadinessChecks are the probes behind /readyz. Optional dependencies that
// are not configured have a nil check and are skipped.
type ReadinessChecks struct {
	DB    func(ctx context.Context) error
	Redis func(ctx context.Context) error
	Tika  func(ctx context.Context) error
	Kafka func(ctx context.Context) error
}

// BuildReadinessChecks wires the probes. Postgres and Redis are required;
// Tika and the broker are only probed when present.
func BuildReadinessChecks(pool Pinger, rdb RedisClient, tika Pinger, broker Pinger) ReadinessChecks {
	checks := ReadinessChecks{
		DB: func(ctx context.Context) error {
			if pool == nil {
				return fmt.Errorf("db not configured")
			}
			return pool.Ping(ctx)
		},
		Redis: func(ctx context.Context) error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		},
	}
	if tika != nil {
		checks.Tika = func(ctx context.Context) error {
			if err := tika.Ping(ctx); err != nil {
				return fmt.Errorf("tika: %w", err)
			}
			return nil
		}
	}
	if broker != nil {
		checks.Kafka = func(ctx context.Context) error {
			if err := broker.Ping(ctx); err != nil {
				return fmt.Errorf("kafka: %w", err)
			}
			return nil
		}
	}
	return checks
}
