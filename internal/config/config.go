package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	DatabaseURL       string
	DBMinConns        int
	DBMaxConns        int
	DBConnectAttempts int
	DBConnectBackoff  time.Duration
	DBAcquireTimeout  time.Duration

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	QueueBackend      string
	WorkerMetricsAddr string

	ObjectStore         string
	SupabaseURL         string
	SupabaseKey         string
	SupabaseBucket      string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	ObjectStoreTimeout  time.Duration

	RateLimitPerMin      int
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	FrontendDir          string
	MaxUploadBytes       int64
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is read first when present; real environment
// variables take precedence over it.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	return App{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", getEnv("PORT", "8001")),

		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMinConns:        intEnv("DB_MIN_CONNS", 1),
		DBMaxConns:        intEnv("DB_MAX_CONNS", 20),
		DBConnectAttempts: intEnv("DB_CONNECT_ATTEMPTS", 5),
		DBConnectBackoff:  durationEnv("DB_CONNECT_BACKOFF", 2*time.Second),
		DBAcquireTimeout:  durationEnv("DB_ACQUIRE_TIMEOUT", 5*time.Second),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           intEnv("REDIS_DB", 0),
		QueueBackend:      getEnv("QUEUE_BACKEND", "memory"),
		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),

		ObjectStore:         getEnv("OBJECT_STORE", "supabase"),
		SupabaseURL:         os.Getenv("SUPABASE_URL"),
		SupabaseKey:         os.Getenv("SUPABASE_KEY"),
		SupabaseBucket:      getEnv("SUPABASE_BUCKET", "faces"),
		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "faces"),
		ObjectStoreTimeout:  durationEnv("OBJECT_STORE_TIMEOUT", 30*time.Second),

		RateLimitPerMin:      intEnv("RATE_LIMIT_PER_MIN", 120),
		CORSAllowedOrigins:   listEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowCredentials: boolEnv("CORS_ALLOW_CREDENTIALS", true),
		FrontendDir:          getEnv("FRONTEND_DIR", "frontend"),
		MaxUploadBytes:       int64(intEnv("MAX_UPLOAD_BYTES", 10<<20)),
	}
}

// Production reports whether the app runs with release settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
