package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealforge/models"
)

var (
	DB        *gorm.DB
	AppConfig *Config
	envLoaded sync.Once
)

// RedisConfig holds connection settings for the cache used by sourcing
// results and rate limiting.
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

// OAuthConfig holds the Google OAuth client used for workspace sign-in.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Config struct {
	// Server
	ServerPort  string
	Environment string
	FrontendURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth
	JWTSecret          string
	GoogleOAuth        OAuthConfig
	AllowedEmailDomain string

	// AI
	OpenAIAPIKey string
	OpenAIModel  string

	// Web research
	SerperAPIKey string
	TavilyAPIKey string
	ApolloAPIKey string

	// Outreach
	FirmName                 string
	FollowUpDays             int
	SendDelay                time.Duration
	SendRateLimit            int
	SendRateWindow           time.Duration
	MaxConcurrentGenerations int

	// Sourcing
	SourcingCacheTTL time.Duration

	// Observability
	SentryDSN string

	Redis RedisConfig
}

func init() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, relying on environment variables")
		}
	})
}

// LoadConfig reads the environment into AppConfig and validates the
// settings the app cannot run without.
func LoadConfig() error {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "dealforge"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		GoogleOAuth: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:5000/api/v1/auth/google/callback"),
		},
		AllowedEmailDomain: getEnv("WORKSPACE_DOMAIN", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		SerperAPIKey: getEnv("SERPER_API_KEY", ""),
		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
		ApolloAPIKey: getEnv("APOLLO_API_KEY", ""),

		FirmName:                 getEnv("FIRM_NAME", "our firm"),
		FollowUpDays:             getEnvAsInt("FOLLOW_UP_DAYS", 5),
		SendDelay:                time.Duration(getEnvAsInt("SEND_DELAY_SECONDS", 2)) * time.Second,
		SendRateLimit:            getEnvAsInt("SEND_RATE_LIMIT", 30),
		SendRateWindow:           time.Duration(getEnvAsInt("SEND_RATE_WINDOW_SECONDS", 60)) * time.Second,
		MaxConcurrentGenerations: getEnvAsInt("MAX_CONCURRENT_GENERATIONS", 5),

		SourcingCacheTTL: time.Duration(getEnvAsInt("SOURCING_CACHE_TTL_MINUTES", 30)) * time.Minute,

		SentryDSN: getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.DBPassword == "" && cfg.Environment == "production" {
		missing = append(missing, "DB_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	AppConfig = cfg
	logConfig(cfg)
	return nil
}

// ConnectDB opens the Postgres connection, configures the pool, and runs
// migrations.
func ConnectDB() error {
	cfg := AppConfig
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	logLevel := logger.Silent
	if cfg.Environment == "development" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := migrateDB(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	DB = db
	log.Printf("Connected to database %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return nil
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Company{},
		&models.Contact{},
		&models.Project{},
		&models.ProjectCompany{},
		&models.OutreachThread{},
		&models.OutreachThreadMessage{},
		&models.OutreachCampaign{},
		&models.OutreachEmail{},
	)
}

func logConfig(cfg *Config) {
	log.Printf("Config loaded: env=%s port=%s db=%s@%s:%s/%s redis=%v",
		cfg.Environment, cfg.ServerPort,
		cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName,
		cfg.Redis.Enabled)
	if cfg.OpenAIAPIKey == "" {
		log.Println("OPENAI_API_KEY not set: drafting and analysis fall back to templates")
	}
	if cfg.SerperAPIKey == "" && cfg.TavilyAPIKey == "" {
		log.Println("No search API key set: enrichment web research is disabled")
	}
	if cfg.AllowedEmailDomain == "" {
		log.Println("WORKSPACE_DOMAIN not set: any Google account may sign in")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
