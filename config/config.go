package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	// WSAuthDeadlineSec bounds the websocket handshake: the credential
	// must verify within this window or the connection is dropped.
	WSAuthDeadlineSec int

	// CallRingTimeoutSec is the ring window after which an unanswered
	// call transitions to no_answer.
	CallRingTimeoutSec int

	MediaBridgeURL   string
	MediaAPIKey      string
	MediaAPISecret   string
	MediaTokenTTLMin int

	S3Bucket string
	S3Region string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	DirectoryURL   string
	DirectoryToken string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		AppMode:            getEnv("APP_MODE", "debug"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "civichat"),
		DBPort:             getEnv("DB_PORT", "5432"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		WSAuthDeadlineSec:  getEnvAsInt("WS_AUTH_DEADLINE_SEC", 10),
		CallRingTimeoutSec: getEnvAsInt("CALL_RING_TIMEOUT_SEC", 30),
		MediaBridgeURL:     getEnv("MEDIA_BRIDGE_URL", "http://localhost:7880"),
		MediaAPIKey:        getEnv("MEDIA_API_KEY", "devkey"),
		MediaAPISecret:     getEnv("MEDIA_API_SECRET", "devsecret"),
		MediaTokenTTLMin:   getEnvAsInt("MEDIA_TOKEN_TTL_MIN", 15),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "eu-west-1"),
		VAPIDPublicKey:     getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:    getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:       getEnv("VAPID_SUBJECT", "mailto:soporte@ayuntamiento.example"),
		DirectoryURL:       getEnv("DIRECTORY_URL", ""),
		DirectoryToken:     getEnv("DIRECTORY_TOKEN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
