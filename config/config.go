package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	TransportInline   = "inline"
	TransportRabbitMQ = "rabbitmq"
	TransportPubSub   = "pubsub"

	TemplatesNone  = "none"
	TemplatesMinio = "minio"
	TemplatesGCS   = "gcs"
)

// Config is built once at startup and passed by value to the components
// that need it. Nothing reads the environment after LoadConfig returns.
type Config struct {
	ServerPort       int `env:"SERVER_PORT" envDefault:"8080"`
	PasswordHashCost int `env:"PASSWORD_HASH_COST" envDefault:"10"`

	Database  DatabaseConfig
	JWT       JWTConfig
	Codes     CodeConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	RabbitMQ  RabbitMQConfig
	PubSub    PubSubConfig
	Templates TemplatesConfig
	Minio     MinioConfig
	GCS       GCSConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"identity"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"identity_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

// JWTConfig controls token signing.
type JWTConfig struct {
	Secret                   string `env:"JWT_SECRET"`
	Algorithm                string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int    `env:"JWT_TOKEN_EXPIRE_MINUTES" envDefault:"60"`
}

// CodeConfig controls one-time verification and reset codes.
type CodeConfig struct {
	Length int           `env:"CODE_LENGTH" envDefault:"6"`
	TTL    time.Duration `env:"CODE_TTL" envDefault:"15m"`
}

type SMTPConfig struct {
	Server   string `env:"SMTP_SERVER" envDefault:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Sender   string `env:"EMAIL_SENDER"`
	Password string `env:"EMAIL_PASSWORD"`
}

// NotifyConfig selects how notifications leave the request path.
// "inline" mails from the API process; "rabbitmq" and "pubsub" publish jobs
// for the worker command to deliver.
type NotifyConfig struct {
	Transport   string        `env:"NOTIFY_TRANSPORT" envDefault:"inline"`
	Workers     int           `env:"NOTIFY_WORKERS" envDefault:"2"`
	QueueSize   int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"128"`
	Channel     string        `env:"NOTIFY_CHANNEL" envDefault:"identity.notifications"`
	SendTimeout time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"30s"`
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

// TemplatesConfig points the mailer at an optional bucket holding
// overrides for the embedded email templates.
type TemplatesConfig struct {
	Backend string `env:"TEMPLATES_BACKEND" envDefault:"none"`
	Prefix  string `env:"TEMPLATES_PREFIX" envDefault:"email/"`
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Dev   bool   `env:"LOG_DEV" envDefault:"false"`
}

// LoadConfig reads the process environment (and .env in dev) into a Config.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.JWT.Secret = strings.TrimSpace(cfg.JWT.Secret)
	cfg.JWT.Algorithm = strings.ToUpper(strings.TrimSpace(cfg.JWT.Algorithm))
	cfg.Notify.Transport = strings.ToLower(strings.TrimSpace(cfg.Notify.Transport))
	cfg.Templates.Backend = strings.ToLower(strings.TrimSpace(cfg.Templates.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that would leave the service unusable.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenExpireMinutes <= 0 {
		return errors.New("JWT_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.Codes.Length <= 0 {
		return errors.New("CODE_LENGTH must be positive")
	}
	if c.Codes.TTL <= 0 {
		return errors.New("CODE_TTL must be positive")
	}
	switch c.Notify.Transport {
	case TransportInline, TransportRabbitMQ, TransportPubSub:
	default:
		return fmt.Errorf("unsupported NOTIFY_TRANSPORT %q", c.Notify.Transport)
	}
	switch c.Templates.Backend {
	case TemplatesNone, TemplatesMinio, TemplatesGCS:
	default:
		return fmt.Errorf("unsupported TEMPLATES_BACKEND %q", c.Templates.Backend)
	}
	return nil
}

// AccessTokenTTL is the lifetime embedded in every access token.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// URL builds the postgres connection string used by both the server and
// the migrate command.
func (c DatabaseConfig) URL() string {
	sslmode := "disable"
	if c.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		User:   url.UserPassword(c.User, c.Password),
		Path:   c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
