package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	PostgresConnStr         string
	MongoURI                string
	RedisAddr               string
	RedisPassword           string

	// Delivery channel priority, highest first. The dispatcher fires at most
	// one remote channel per notification, chosen by this order.
	ChannelPriority []string

	// Liveness manager tuning.
	FeedPollInterval time.Duration
	FeedStaleAfter   time.Duration

	// Bound on permission prompts; a user agent that never answers must not
	// hang the caller.
	PermissionTimeout time.Duration

	// Webpush payload for the background delivery agent.
	PushIcon      string
	PushBadge     string
	PushClickLink string
}

func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set.")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		ChannelPriority:         getEnvList("CHANNEL_PRIORITY", []string{"fcm", "localalert"}),
		FeedPollInterval:        getEnvSeconds("FEED_POLL_INTERVAL_SECONDS", 30),
		FeedStaleAfter:          getEnvSeconds("FEED_STALE_AFTER_SECONDS", 45),
		PermissionTimeout:       getEnvSeconds("PERMISSION_TIMEOUT_SECONDS", 10),
		PushIcon:                getEnv("PUSH_ICON", "/icons/notification.png"),
		PushBadge:               getEnv("PUSH_BADGE", "/icons/badge.png"),
		PushClickLink:           getEnv("PUSH_CLICK_LINK", "/notifications"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}
