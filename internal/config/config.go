package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort       string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	JWTExpiresMin int

	// reconciliation tunables
	UnreadDebounce     time.Duration
	UnreadPollEvery    time.Duration
	NotifyPollEvery    time.Duration
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	return Config{
		AppPort:       get("APP_PORT", "8080"),
		DBDSN:         must("DB_DSN"),
		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		JWTSecret:     must("JWT_SECRET"),
		JWTExpiresMin: expires,

		UnreadDebounce:  getMillis("UNREAD_DEBOUNCE_MS", 250),
		UnreadPollEvery: getMillis("UNREAD_POLL_MS", 8000),
		NotifyPollEvery: getMillis("NOTIFY_POLL_MS", 10000),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func getMillis(k string, def int) time.Duration {
	ms, err := strconv.Atoi(get(k, strconv.Itoa(def)))
	if err != nil || ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
