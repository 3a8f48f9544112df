package config

import (
	"context"
	"log"
	"os"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns the cross-instance lock client, or nil when Redis
// is not configured. Callers must treat the Redis lock as a best-effort
// optimization only; correctness comes from the MySQL advisory locks.
func GetRedisLock() *redislock.Client {
	return locker
}

func ConnectRedis() {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; running without the best-effort redis lock")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr: address,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis ping failed (%v); running without the best-effort redis lock", err)
		return
	}

	rdb = client
	locker = redislock.New(client)
}
