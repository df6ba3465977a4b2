package http

import "github.com/EternisAI/keygate/internal/db"

type Config struct {
	Port        uint            `mapstructure:"port"`
	AdminAPIKey string          `mapstructure:"admin_api_key"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	BodyLimit   int64           `mapstructure:"body_limit"`
}

// RateLimitConfig bounds public key requests per client IP. A zero rate
// disables limiting. When Redis.Addr is set the budget is shared through Redis.
type RateLimitConfig struct {
	RequestsPerSecond float64        `mapstructure:"requests_per_second"`
	Burst             int            `mapstructure:"burst"`
	Redis             db.RedisConfig `mapstructure:"redis"`
}
