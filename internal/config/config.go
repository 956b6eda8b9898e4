package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	App        AppConfig
	Polymarket PolymarketConfig
	TextGen    TextGenConfig
	Poller     PollerConfig
	Generation GenerationConfig
	Log        LogConfig
}

// DatabaseConfig holds database connection settings. Driver "sqlite" uses
// Path instead of the host fields.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Path     string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	FrontendURL string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
	RulesPath string
}

// PolymarketConfig holds Polymarket API settings
type PolymarketConfig struct {
	BaseURL    string
	APIKey     string
	Secret     string
	Passphrase string
}

// TextGenConfig holds the text generation service settings
type TextGenConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// PollerConfig holds resolution poller settings
type PollerConfig struct {
	Interval  time.Duration
	CallDelay time.Duration
	Retention time.Duration
}

// GenerationConfig holds cascade generation settings
type GenerationConfig struct {
	Enabled       bool
	Schedule      string
	Attempts      int
	Timeout       time.Duration
	PageSize      int
	MaxPages      int
	MaxCandidates int
	TargetEffects int
	HistorySize   int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using process environment")
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "cascade_engine"),
			Path:     getEnv("DB_PATH", "cascade.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", ""),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			RulesPath: getEnv("RULES_PATH", ""),
		},
		Polymarket: PolymarketConfig{
			BaseURL:    getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
			APIKey:     getEnv("POLYMARKET_API_KEY", ""),
			Secret:     getEnv("POLYMARKET_SECRET", ""),
			Passphrase: getEnv("POLYMARKET_PASSPHRASE", ""),
		},
		TextGen: TextGenConfig{
			BaseURL:   getEnv("TEXTGEN_BASE_URL", "https://api.anthropic.com"),
			APIKey:    getEnv("TEXTGEN_API_KEY", ""),
			Model:     getEnv("TEXTGEN_MODEL", ""),
			MaxTokens: getEnvInt("TEXTGEN_MAX_TOKENS", 8000),
		},
		Poller: PollerConfig{
			Interval:  getEnvDuration("POLL_INTERVAL", 15*time.Minute),
			CallDelay: getEnvDuration("POLL_CALL_DELAY", 500*time.Millisecond),
			Retention: getEnvDuration("POLL_RETENTION", 7*24*time.Hour),
		},
		Generation: GenerationConfig{
			Enabled:       getEnvBool("GENERATION_ENABLED", false),
			Schedule:      getEnv("GENERATION_SCHEDULE", "@every 6h"),
			Attempts:      getEnvInt("GENERATION_ATTEMPTS", 2),
			Timeout:       getEnvDuration("GENERATION_TIMEOUT", 90*time.Second),
			PageSize:      getEnvInt("GENERATION_PAGE_SIZE", 100),
			MaxPages:      getEnvInt("GENERATION_MAX_PAGES", 3),
			MaxCandidates: getEnvInt("GENERATION_MAX_CANDIDATES", 75),
			TargetEffects: getEnvInt("GENERATION_TARGET_EFFECTS", 6),
			HistorySize:   getEnvInt("GENERATION_HISTORY_SIZE", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Generation.Enabled && (config.TextGen.APIKey == "" || config.TextGen.Model == "") {
		return nil, fmt.Errorf("TEXTGEN_API_KEY and TEXTGEN_MODEL are required when generation is enabled")
	}

	if config.Poller.Interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}
