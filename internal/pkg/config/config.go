package config

import (
	"os"
	"time"
)

// Config collects every runtime knob of the service. Values come from the
// environment with working defaults, so the binary runs with no flags.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// HoldTTL is how long a hold reserves stock before the expiry
	// dispatcher releases it.
	HoldTTL time.Duration

	// Store selects the persistence adapter: "memory" or "mysql".
	Store    string
	MySQLDSN string

	// Cache selects the read-side cache adapter: "memory" or "redis".
	Cache          string
	RedisAddr      string
	ProductInfoTTL time.Duration
	StockTTL       time.Duration
}

func Load() Config {
	return Config{
		ServiceName:    getenvDefault("SERVICE_NAME", "reservation"),
		Env:            getenvDefault("ENV", "dev"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		HoldTTL:        getenvDuration("HOLD_TTL", 2*time.Minute),
		Store:          getenvDefault("STORE", "memory"),
		MySQLDSN:       getenvDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/reservation?parseTime=true"),
		Cache:          getenvDefault("CACHE", "memory"),
		RedisAddr:      getenvDefault("REDIS_ADDR", "localhost:6379"),
		ProductInfoTTL: getenvDuration("PRODUCT_INFO_TTL", 60*time.Second),
		StockTTL:       getenvDuration("STOCK_TTL", 10*time.Second),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
