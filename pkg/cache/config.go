package cache

import "time"

// RedisConfig is filled by RedisOption values over NewRedisCache defaults.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	// Prefix namespaces every key, so several services can share a database.
	Prefix string
}

type RedisOption func(*RedisConfig)

func WithRedisHost(host string) RedisOption { return func(c *RedisConfig) { c.Host = host } }

func WithRedisPort(port int) RedisOption { return func(c *RedisConfig) { c.Port = port } }

func WithRedisPassword(pw string) RedisOption { return func(c *RedisConfig) { c.Password = pw } }

func WithRedisDB(db int) RedisOption { return func(c *RedisConfig) { c.DB = db } }

func WithRedisPrefix(prefix string) RedisOption { return func(c *RedisConfig) { c.Prefix = prefix } }

// MemoryConfig bounds the in-process cache. Past MaxSize the least recently
// used entry is evicted.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption { return func(c *MemoryConfig) { c.MaxSize = size } }

func WithMemoryCleanup(every time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = every }
}

// LayeredConfig sizes the memory tier in front of Redis. MemoryTTL caps how
// long an entry lives in memory regardless of its Redis expiration.
type LayeredConfig struct {
	MemoryMaxSize int
	MemoryTTL     time.Duration
}

type LayeredOption func(*LayeredConfig)

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryTTL = ttl }
}
