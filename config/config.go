package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends
const (
	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

// SessionTTL is the idle window after which a session expires
const SessionTTL = 24 * time.Hour

// Config holds all application configuration
type Config struct {
	Port               string
	GoEnv              string
	DatabaseURL        string
	DBHost             string
	DBPort             string
	DBName             string
	DBUser             string
	DBPassword         string
	SessionSecret      string
	SessionStore       string
	RedisURL           string
	BcryptCost         int
	LogLevel           string
	CORSAllowedOrigins []string
	UploadDir          string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SeedAdminEmail     string
	SeedAdminPassword  string
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// In production the environment is set directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	config := &Config{
		Port:               getEnv("PORT", "3000"),
		GoEnv:              getEnv("GO_ENV", "development"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DBHost:             getEnv("DB_HOST", ""),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBName:             getEnv("DB_NAME", ""),
		DBUser:             getEnv("DB_USER", ""),
		DBPassword:         os.Getenv("DB_PASSWORD"), // may legitimately be empty
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionStore:       getEnv("SESSION_STORE", SessionStoreDatabase),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		BcryptCost:         cost,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SeedAdminEmail:     getEnv("SEED_ADMIN_EMAIL", "admin@techzone.com"),
		SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", "techzone@2025"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		var missing []string
		for _, kv := range [][2]string{
			{"DB_HOST", c.DBHost},
			{"DB_PORT", c.DBPort},
			{"DB_NAME", c.DBName},
			{"DB_USER", c.DBUser},
		} {
			if kv[1] == "" {
				missing = append(missing, kv[0])
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("DATABASE_URL or %s is required", strings.Join(missing, ", "))
		}
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.SessionStore != SessionStoreDatabase && c.SessionStore != SessionStoreRedis {
		return fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreDatabase, SessionStoreRedis)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// SecureCookies reports whether cookies must only travel over TLS
func (c *Config) SecureCookies() bool {
	return c.IsProduction()
}

// SeedEnabled reports whether the bootstrap admin may be created
func (c *Config) SeedEnabled() bool {
	return !c.IsProduction()
}

// GetDatabaseURL returns DATABASE_URL, or a URL assembled from the DB_* parameters
func (c *Config) GetDatabaseURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	if c.IsProduction() {
		u.RawQuery = "sslmode=require"
	}
	return u.String()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
