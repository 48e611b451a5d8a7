package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	// Model artifacts.
	ModelDir     string `envconfig:"MODEL_DIR" default:"models" validate:"required"`
	TopNFeatures int    `envconfig:"TOP_N_FEATURES" default:"5" validate:"min=1,max=50"`

	// Open-Meteo ingestion.
	ForecastURL         string        `envconfig:"OPEN_METEO_FORECAST_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"required,url"`
	ArchiveURL          string        `envconfig:"OPEN_METEO_ARCHIVE_URL" default:"https://archive-api.open-meteo.com/v1/archive" validate:"required,url"`
	WeatherTimeout      time.Duration `envconfig:"WEATHER_TIMEOUT" default:"30s" validate:"gt=0"`
	WeatherPastDays     int           `envconfig:"WEATHER_PAST_DAYS" default:"30" validate:"min=0,max=92"`
	WeatherForecastDays int           `envconfig:"WEATHER_FORECAST_DAYS" default:"7" validate:"min=1,max=16"`
	WeatherRateLimit    float64       `envconfig:"WEATHER_RATE_LIMIT" default:"5" validate:"gt=0"`
	WeatherMaxRetries   int           `envconfig:"WEATHER_MAX_RETRIES" default:"2" validate:"min=0,max=10"`

	// Weather response cache.
	CacheDir  string        `envconfig:"CACHE_DIR" default:"cache"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"1h" validate:"gte=0"`
	CacheSize int           `envconfig:"CACHE_SIZE" default:"256" validate:"min=1"`

	// Kafka batch mode.
	KafkaEnabled       bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092" validate:"dive,required"`
	KafkaSourceTopic   string        `envconfig:"KAFKA_SOURCE_TOPIC" default:"disease-risk-requests" validate:"required_if=KafkaEnabled true"`
	KafkaSinkTopic     string        `envconfig:"KAFKA_SINK_TOPIC" default:"disease-risk-reports" validate:"required_if=KafkaEnabled true"`
	KafkaGroupID       string        `envconfig:"KAFKA_GROUP_ID" default:"disease-risk-service"`
	BatchSize          int           `envconfig:"BATCH_SIZE" default:"50" validate:"min=1,max=1000"`
	BatchFlushInterval time.Duration `envconfig:"BATCH_FLUSH_INTERVAL" default:"500ms" validate:"gt=0"`
}

var validate = newValidator()

// newValidator reports field errors under their environment variable names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Load reads configuration from an optional .env file and the environment,
// applying defaults where unset.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, describe(err)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	return &cfg, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
