package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"0.0.0.0"`
	Environment    string   `env:"ENV" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Storage
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"mongo"`
	MongoURI      string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName  string        `env:"DATABASE_NAME" envDefault:"volunteer_coordination"`
	MongoTimeout  time.Duration `env:"MONGO_TIMEOUT" envDefault:"10s"`
	BoltPath      string        `env:"BOLT_PATH" envDefault:"data/volunteer.db"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// JWT
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`

	// Rate limiting
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Assignment engine
	AssignMaxRetries     uint `env:"ASSIGN_MAX_RETRIES" envDefault:"5"`
	SideEffectMaxRetries uint `env:"SIDE_EFFECT_MAX_RETRIES" envDefault:"5"`
	BroadcastConcurrency int  `env:"BROADCAST_CONCURRENCY" envDefault:"8"`

	// Push
	PushTimeout time.Duration `env:"PUSH_TIMEOUT" envDefault:"5s"`
	FirebaseKey string        `env:"FIREBASE_KEY"`
	FCMEndpoint string        `env:"FCM_ENDPOINT" envDefault:"https://fcm.googleapis.com/fcm/send"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

const (
	DriverMongo = "mongo"
	DriverBolt  = "bolt"
)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case DriverMongo, DriverBolt:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == "your-secret-key") {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.AssignMaxRetries == 0 {
		errs = append(errs, errors.New("ASSIGN_MAX_RETRIES must be positive"))
	}
	if c.SideEffectMaxRetries == 0 {
		errs = append(errs, errors.New("SIDE_EFFECT_MAX_RETRIES must be positive"))
	}
	if c.BroadcastConcurrency <= 0 {
		errs = append(errs, errors.New("BROADCAST_CONCURRENCY must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}
