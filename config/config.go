package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting of the service, loaded once at startup and
// passed by parameter. Nothing reads the environment after Load returns.
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int
	}

	Redis struct {
		Enabled  bool
		Host     string
		Port     int
		Password string
		DB       int

		// Live progress snapshots expire on their own so a crashed run
		// never leaves a stale "running" entry behind.
		ProgressTTL time.Duration
	}

	Kafka struct {
		Enabled        bool
		Brokers        []string
		LifecycleTopic string `mapstructure:"lifecycle_topic"`
	}

	Amazon struct {
		Endpoint      string // SP-API base URL
		TokenEndpoint string // LWA token exchange URL
		ClientID      string
		ClientSecret  string
		RefreshToken  string
		SellerID      string
		MarketplaceID string

		BatchSize        int           // coerced to the platform ceiling before use
		PollInterval     time.Duration // delay between feed status checks
		PollMaxAttempts  int
		SubmitMaxRetries int
	}

	Sync struct {
		BatchSize    int // products queued per cancellation checkpoint
		FetchTimeout time.Duration
		MaxTries     int // supplier fetch attempts per product
	}

	Security struct {
		AuthEnabled bool
		JWTSecret   string
	}

	Metrics struct {
		Enabled bool
		Port    int
	}
}

// Load reads the yaml config file (if present) and environment variables.
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: environment variables and defaults only.
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("appName", "feed-control")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "feedcontrol")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.progressTTL", "5m")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.lifecycle_topic", "feed-control-events")

	viper.SetDefault("amazon.endpoint", "https://sellingpartnerapi-na.amazon.com")
	viper.SetDefault("amazon.tokenEndpoint", "https://api.amazon.com/auth/o2/token")
	viper.SetDefault("amazon.batchSize", 9990)
	viper.SetDefault("amazon.pollInterval", "30s")
	viper.SetDefault("amazon.pollMaxAttempts", 20)
	viper.SetDefault("amazon.submitMaxRetries", 3)

	viper.SetDefault("sync.batchSize", 25)
	viper.SetDefault("sync.fetchTimeout", "30s")
	viper.SetDefault("sync.maxTries", 3)

	viper.SetDefault("security.authEnabled", false)
	viper.SetDefault("security.jwtSecret", "")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
}

func bindEnvVariables() {
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")

	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.progressTTL", "REDIS_PROGRESS_TTL")

	viper.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.lifecycle_topic", "KAFKA_LIFECYCLE_TOPIC")

	viper.BindEnv("amazon.endpoint", "AMAZON_ENDPOINT")
	viper.BindEnv("amazon.tokenEndpoint", "AMAZON_TOKEN_ENDPOINT")
	viper.BindEnv("amazon.clientID", "AMAZON_CLIENT_ID")
	viper.BindEnv("amazon.clientSecret", "AMAZON_CLIENT_SECRET")
	viper.BindEnv("amazon.refreshToken", "AMAZON_REFRESH_TOKEN")
	viper.BindEnv("amazon.sellerID", "AMAZON_SELLER_ID")
	viper.BindEnv("amazon.marketplaceID", "AMAZON_MARKETPLACE_ID")
	viper.BindEnv("amazon.batchSize", "AMAZON_BATCH_SIZE")
	viper.BindEnv("amazon.pollInterval", "AMAZON_POLL_INTERVAL")
	viper.BindEnv("amazon.pollMaxAttempts", "AMAZON_POLL_MAX_ATTEMPTS")
	viper.BindEnv("amazon.submitMaxRetries", "AMAZON_SUBMIT_MAX_RETRIES")

	viper.BindEnv("sync.batchSize", "SYNC_BATCH_SIZE")
	viper.BindEnv("sync.fetchTimeout", "SYNC_FETCH_TIMEOUT")
	viper.BindEnv("sync.maxTries", "SYNC_MAX_TRIES")

	viper.BindEnv("security.authEnabled", "AUTH_ENABLED")
	viper.BindEnv("security.jwtSecret", "JWT_SECRET")

	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.port", "METRICS_PORT")
}
