package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Draft store drivers.
const (
	DraftDriverMemory   = "memory"
	DraftDriverFile     = "file"
	DraftDriverRedis    = "redis"
	DraftDriverPostgres = "postgres"
	DraftDriverMongo    = "mongo"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Mongo         MongoConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	RosterService RosterServiceConfig
	Drafts        DraftConfig
	Sessions      SessionConfig
	Grades        GradesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MongoConfig points the mongo draft backend at a deployment.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RosterServiceConfig locates the upstream Roster Service.
type RosterServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DraftConfig selects and tunes the draft persistence backend.
type DraftConfig struct {
	Driver    string
	FileDir   string
	KeyPrefix string
	MaxAge    time.Duration
}

// SessionConfig governs in-memory editing sessions.
type SessionConfig struct {
	IdleTTL time.Duration
}

// GradesConfig carries grade-entry rules.
type GradesConfig struct {
	Min              float64
	Max              float64
	IneligibleStates []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
		Timeout:  parseDuration(v.GetString("MONGO_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RosterService = RosterServiceConfig{
		BaseURL: strings.TrimRight(v.GetString("ROSTER_SERVICE_URL"), "/"),
		Timeout: parseDuration(v.GetString("ROSTER_SERVICE_TIMEOUT"), 10*time.Second),
	}

	cfg.Drafts = DraftConfig{
		Driver:    strings.ToLower(v.GetString("DRAFT_STORE_DRIVER")),
		FileDir:   v.GetString("DRAFT_FILE_DIR"),
		KeyPrefix: v.GetString("DRAFT_KEY_PREFIX"),
		MaxAge:    parseDuration(v.GetString("DRAFT_MAX_AGE"), 0),
	}

	cfg.Sessions = SessionConfig{
		IdleTTL: parseDuration(v.GetString("SESSION_IDLE_TTL"), 2*time.Hour),
	}

	cfg.Grades = GradesConfig{
		Min:              v.GetFloat64("GRADE_MIN"),
		Max:              v.GetFloat64("GRADE_MAX"),
		IneligibleStates: splitAndTrim(strings.ToLower(v.GetString("GRADES_INELIGIBLE_STATES"))),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "roster_sync")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "roster_sync")
	v.SetDefault("MONGO_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROSTER_SERVICE_URL", "http://localhost:3000/api/v1")
	v.SetDefault("ROSTER_SERVICE_TIMEOUT", "10s")

	v.SetDefault("DRAFT_STORE_DRIVER", DraftDriverFile)
	v.SetDefault("DRAFT_FILE_DIR", "./drafts")
	v.SetDefault("DRAFT_KEY_PREFIX", "roster_drafts")
	v.SetDefault("DRAFT_MAX_AGE", "0")

	v.SetDefault("SESSION_IDLE_TTL", "2h")

	v.SetDefault("GRADE_MIN", 0)
	v.SetDefault("GRADE_MAX", 100)
	v.SetDefault("GRADES_INELIGIBLE_STATES", "absent,late")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
