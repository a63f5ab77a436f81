package data

import (
	"context"
	"log"
	"time"

	"backend/utils"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn bundles the Store's connections, generalizing the teacher's
// backend/data/conn.go Conn{DB, Polygon, PolygonWS} shape: here DB is the
// canonical ledger pool and Cache holds the single-writer advisory lock
// (§5); main.go also hands Cache to pricing.NewStore as its EOD price
// cache. Nothing else uses it for request-scoped caching.
type Conn struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	cfg   utils.Config
}

// InitConn connects to Postgres and Redis, retrying on the same
// wait-and-retry loop the teacher uses for its own db connect, now driven
// by an explicit Config instead of inlined URLs.
func InitConn(cfg utils.Config) (*Conn, func()) {
	var pool *pgxpool.Pool
	var err error
	for {
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err == nil {
			if pingErr := pool.Ping(context.Background()); pingErr == nil {
				break
			}
			err = pool.Ping(context.Background())
		}
		log.Printf("waiting for ledger db: %v", err)
		time.Sleep(cfg.ConnectRetryDelay)
	}

	var cache *redis.Client
	for {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if pingErr := cache.Ping(context.Background()).Err(); pingErr == nil {
			break
		}
		log.Println("waiting for cache")
		time.Sleep(cfg.ConnectRetryDelay)
	}

	conn := &Conn{DB: pool, Cache: cache, cfg: cfg}
	cleanup := func() {
		conn.DB.Close()
		conn.Cache.Close()
	}
	return conn, cleanup
}
