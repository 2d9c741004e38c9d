package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL" validate:"required"`
	JWTSecret       string        `mapstructure:"JWT_SECRET" validate:"required"`
	JWTTTL          time.Duration `mapstructure:"JWT_TTL" validate:"gt=0"`
	QueryTimeout    time.Duration `mapstructure:"QUERY_TIMEOUT" validate:"gt=0"`
	CORSOrigins     string        `mapstructure:"CORS_ORIGINS"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
	MigrateOnStart  bool          `mapstructure:"MIGRATE_ON_START"`
	WSSendBuffer    int           `mapstructure:"WS_SEND_BUFFER" validate:"gt=0"`
	WSMessageRate   float64       `mapstructure:"WS_MESSAGE_RATE" validate:"gt=0"`
	WSMessageBurst  int           `mapstructure:"WS_MESSAGE_BURST" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"PORT":             "3000",
	"DATABASE_URL":     "",
	"JWT_SECRET":       "",
	"JWT_TTL":          24 * time.Hour,
	"QUERY_TIMEOUT":    5 * time.Second,
	"CORS_ORIGINS":     "http://localhost:8081,http://10.0.2.2:8081",
	"LOG_LEVEL":        "info",
	"LOG_FORMAT":       "text",
	"MIGRATE_ON_START": true,
	"WS_SEND_BUFFER":   256,
	"WS_MESSAGE_RATE":  5.0,
	"WS_MESSAGE_BURST": 20,
	"SHUTDOWN_TIMEOUT": 10 * time.Second,
}

// Load reads .env (if present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// AllowedOrigins returns CORSOrigins in the comma separated form fiber's cors expects.
func (c *Config) AllowedOrigins() string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func (c *Config) Address() string {
	return ":" + c.Port
}
