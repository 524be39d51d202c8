// Package cache implements the Cache (K) collaborator: a short-TTL,
// best-effort store of per-user ticket pages and per-ticket detail
// (spec §4.4, §6). The client constructor follows the approach of the
// teacher's internal/config/redis.go — same option fields, same
// ping-or-nil startup check — but takes a config.RedisConfig instead of
// reading os.Getenv itself, since the domain cache is the only consumer
// of a redis client in this rewrite (the teacher's separate HTTP
// response cache and rate limiter are both out of the core's scope per
// spec §1 and were dropped — see DESIGN.md).
package cache

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transit-systems/ticketing-core/internal/config"
)

// NewClient builds a redis client from cfg. On connection failure it
// returns nil; callers must degrade to the read store on every operation
// (spec §5 "Cache: treated as best-effort").
func NewClient(cfg config.RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
