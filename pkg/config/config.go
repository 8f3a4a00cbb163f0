package config

import (
	"SafeSignal/pkg/logger"
	"SafeSignal/pkg/util"
	"log"
	"os"
	"time"
)

// config/config.go
type Config struct {
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	Log      logger.LogConfig
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`

	APIPrefix string `env:"API_PREFIX"`

	// dispatch engine
	MatchRadiusKm      float64 `env:"MATCH_RADIUS_KM"`
	ResponderSpeedKmh  float64 `env:"RESPONDER_SPEED_KMH"`
	PresenceStaleAfter int64   `env:"PRESENCE_STALE_AFTER_SECONDS"`
	PresenceSweepEvery int64   `env:"PRESENCE_SWEEP_EVERY_SECONDS"`
	DispatchLedgerTTL  int64   `env:"DISPATCH_LEDGER_TTL_SECONDS"`

	// cache backend for the dispatch ledger: "gocache" or "redis"
	CacheType     string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int64  `env:"REDIS_DB"`

	// rate limit for emergency creation, ulule format e.g. "10-M"
	EmergencyStartRate string `env:"EMERGENCY_START_RATE"`

	// push provider: "log"(default) or "none"
	PushProvider string `env:"PUSH_PROVIDER"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = &Config{
		DBDriver:  util.GetEnv("DB_DRIVER"),
		DSN:       util.GetEnv("DSN"),
		Addr:      util.GetEnvDefault("ADDR", ":8080"),
		Mode:      util.GetEnv("MODE"),
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api/v1"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		MatchRadiusKm:      util.GetFloatEnv("MATCH_RADIUS_KM"),
		ResponderSpeedKmh:  util.GetFloatEnv("RESPONDER_SPEED_KMH"),
		PresenceStaleAfter: util.GetIntEnv("PRESENCE_STALE_AFTER_SECONDS"),
		PresenceSweepEvery: util.GetIntEnv("PRESENCE_SWEEP_EVERY_SECONDS"),
		DispatchLedgerTTL:  util.GetIntEnv("DISPATCH_LEDGER_TTL_SECONDS"),
		CacheType:          util.GetEnvDefault("CACHE_TYPE", "gocache"),
		RedisAddr:          util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      util.GetEnv("REDIS_PASSWORD"),
		RedisDB:            util.GetIntEnv("REDIS_DB"),
		EmergencyStartRate: util.GetEnvDefault("EMERGENCY_START_RATE", "10-M"),
		PushProvider:       util.GetEnvDefault("PUSH_PROVIDER", "log"),
	}
	return nil
}

// MatchRadius 返回默认匹配半径，默认 1 公里
func (c *Config) MatchRadius() float64 {
	if c.MatchRadiusKm > 0 {
		return c.MatchRadiusKm
	}
	return 1.0
}

// StaleWindow presence 过期窗口，默认 2 分钟
func (c *Config) StaleWindow() time.Duration {
	if c.PresenceStaleAfter > 0 {
		return time.Duration(c.PresenceStaleAfter) * time.Second
	}
	return 2 * time.Minute
}

// SweepInterval presence 清理间隔，默认 30 秒
func (c *Config) SweepInterval() time.Duration {
	if c.PresenceSweepEvery > 0 {
		return time.Duration(c.PresenceSweepEvery) * time.Second
	}
	return 30 * time.Second
}

// LedgerTTL 幂等账本 TTL，默认 24 小时
func (c *Config) LedgerTTL() time.Duration {
	if c.DispatchLedgerTTL > 0 {
		return time.Duration(c.DispatchLedgerTTL) * time.Second
	}
	return 24 * time.Hour
}
