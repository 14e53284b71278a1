package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort    string `mapstructure:"http_port"    validate:"required"`
	HTTPTimeout int    `mapstructure:"http_timeout"`

	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	// Path of the embedded SQLite database backing the durable local cache.
	CachePath string `mapstructure:"cache_path" validate:"required"`

	MinioEndpointURL           string `mapstructure:"minio_endpoint_url"            validate:"required"`
	MinioAccessKey             string `mapstructure:"minio_access_key"              validate:"required"`
	MinioSecretKey             string `mapstructure:"minio_secret_key"              validate:"required"`
	MinioBucketName            string `mapstructure:"minio_bucket_name"             validate:"required"`
	MinioPathPrefix            string `mapstructure:"minio_path_prefix"`
	MinioPublicBaseURL         string `mapstructure:"minio_public_base_url"`
	MinioSignedURLTTLMinutes   int    `mapstructure:"minio_signed_url_ttl_minutes"`
	MinioSecure                bool   `mapstructure:"minio_secure"`
	MinioTimeout               int    `mapstructure:"minio_timeout"`
	MinioProbeTimeout          int    `mapstructure:"minio_probe_timeout"`
	MinioMaxRetryAttempts      uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMin       int    `mapstructure:"minio_retry_backoff_min"`
	MinioRetryBackoffMax       int    `mapstructure:"minio_retry_backoff_max"`
	MinioIntervalCB            uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB uint32 `mapstructure:"minio_consecutive_failures_cb"`

	// Upload pipeline retry policy: retries after the first attempt, linear
	// backoff of base * attempt number.
	UploadMaxRetries    uint `mapstructure:"upload_max_retries"`
	UploadBackoffBaseMs int  `mapstructure:"upload_backoff_base_ms"`

	TranscriberBaseURL               string `mapstructure:"transcriber_base_url"`
	TranscriberModel                 string `mapstructure:"transcriber_model"`
	TranscriberTimeout               int    `mapstructure:"transcriber_timeout"`
	TranscriberRetryMaxAttempts      uint   `mapstructure:"transcriber_retry_max_attempts"`
	TranscriberRetryMinBackoff       int    `mapstructure:"transcriber_retry_min_backoff"`
	TranscriberRetryMaxBackoff       int    `mapstructure:"transcriber_retry_max_backoff"`
	TranscriberIntervalCB            uint32 `mapstructure:"transcriber_interval_cb"`
	TranscriberConsecutiveFailuresCB uint32 `mapstructure:"transcriber_consecutive_failures_cb"`

	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes"`
	ReconcilePoolSize        int `mapstructure:"reconcile_pool_size"`

	BeaconEnabled              bool   `mapstructure:"beacon_enabled"`
	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaVisitTopic            string `mapstructure:"kafka_visit_topic"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return err
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("HTTP_TIMEOUT", "60")
	viper.SetDefault("JWT_SECRET", "dev-only-secret")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_USERNAME", "rapport")
	viper.SetDefault("POSTGRES_PASSWORD", "rapport")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "rapport")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("CACHE_PATH", "./rapport-cache.db")
	viper.SetDefault("MINIO_ENDPOINT_URL", "localhost:9000")
	viper.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	viper.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	viper.SetDefault("MINIO_BUCKET_NAME", "recordings")
	viper.SetDefault("MINIO_PATH_PREFIX", "recordings")
	viper.SetDefault("MINIO_SIGNED_URL_TTL_MINUTES", "60")
	viper.SetDefault("MINIO_SECURE", "false")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_PROBE_TIMEOUT", "5")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX", "10")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("UPLOAD_MAX_RETRIES", "3")
	viper.SetDefault("UPLOAD_BACKOFF_BASE_MS", "2000")
	viper.SetDefault("TRANSCRIBER_MODEL", "whisper-1")
	viper.SetDefault("TRANSCRIBER_TIMEOUT", "30")
	viper.SetDefault("TRANSCRIBER_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("TRANSCRIBER_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("TRANSCRIBER_RETRY_MAX_BACKOFF", "10")
	viper.SetDefault("TRANSCRIBER_INTERVAL_CB", "30")
	viper.SetDefault("TRANSCRIBER_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("RECONCILE_INTERVAL_MINUTES", "1")
	viper.SetDefault("RECONCILE_POOL_SIZE", "3")
	viper.SetDefault("BEACON_ENABLED", "false")
	viper.SetDefault("KAFKA_BOOTSTRAP_SERVER", "localhost:9092")
	viper.SetDefault("KAFKA_VISIT_TOPIC", "rapport.visits")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./rapport.log")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
