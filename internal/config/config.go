package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	_ "github.com/joho/godotenv/autoload"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Minio   MinioConfig
	SMTP    SMTPConfig
	Chat    ChatConfig
	Log     LogConfig
	Storage string `env:"STORAGE_DRIVER" envDefault:"mongo"`
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// MongoConfig points at a replica set; multi-document transactions need one.
type MongoConfig struct {
	URI            string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017/?replicaSet=rs0"`
	DBName         string        `env:"MONGO_DB" envDefault:"student_support"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET,required,notEmpty"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"72h"`
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"student-support"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	PublicURL string `env:"MINIO_PUBLIC_URL" envDefault:"http://localhost:9000"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@student-support.local"`
}

type ChatConfig struct {
	WriteTimeout     time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"10s"`
	ConflictRetries  int           `env:"CHAT_CONFLICT_RETRIES" envDefault:"3"`
	MaxUploadBytes   int64         `env:"CHAT_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	ProfileCacheTTL  time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
	SupportEventsKey string        `env:"SUPPORT_EVENTS_CHANNEL" envDefault:"support_events"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// NewConfig creates a new Config
func NewConfig() (*Config, error) {
	cfg := new(Config)
	err := env.Parse(cfg)

	return cfg, err
}
