package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tradecouncil/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
	Coordinator   CoordinatorConfig
	Allocator     AllocatorConfig
	Universe      UniverseConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"tradecouncil"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`

	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"1h"`
	ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"trading"`

	MaxOpenConns int           `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"CLICKHOUSE_DIAL_TIMEOUT" default:"5s"`
	// Server-side limit for one candle query
	QueryTimeout time.Duration `envconfig:"CLICKHOUSE_QUERY_TIMEOUT" default:"30s"`
}

func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST" required:"true"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	StateKey string        `envconfig:"REDIS_STATE_KEY" default:"council:agent_state"`
	StateTTL time.Duration `envconfig:"REDIS_STATE_TTL" default:"0s"` // 0 keeps weights forever

	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	IOTimeout   time.Duration `envconfig:"REDIS_IO_TIMEOUT" default:"3s"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"tradecouncil"`

	// Publish throttle shared by every council topic
	PublishRate  float64 `envconfig:"KAFKA_PUBLISH_RATE" default:"200"`
	PublishBurst int     `envconfig:"KAFKA_PUBLISH_BURST" default:"50"`

	BatchTimeout time.Duration `envconfig:"KAFKA_BATCH_TIMEOUT" default:"50ms"`
	WriteTimeout time.Duration `envconfig:"KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	Path    string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// CoordinatorConfig mirrors coordinator.Config
type CoordinatorConfig struct {
	MinAgentsRequired   int     `envconfig:"COORDINATOR_MIN_AGENTS" default:"3"`
	ConsensusThreshold  float64 `envconfig:"COORDINATOR_CONSENSUS_THRESHOLD" default:"0.7"`
	PerformanceWindow   int     `envconfig:"COORDINATOR_PERFORMANCE_WINDOW" default:"30"`
	WeightDecay         float64 `envconfig:"COORDINATOR_WEIGHT_DECAY" default:"0.95"`
	Method              string  `envconfig:"COORDINATOR_METHOD" default:"hybrid"`
	ConflictResolution  string  `envconfig:"COORDINATOR_CONFLICT_RESOLUTION" default:"weighted_average"`
	MaxHistory          int     `envconfig:"COORDINATOR_MAX_HISTORY" default:"1000"`
	ConfidenceThreshold float64 `envconfig:"COORDINATOR_CONFIDENCE_THRESHOLD" default:"0.3"`
}

// AllocatorConfig mirrors allocator.Config
type AllocatorConfig struct {
	Method                   string  `envconfig:"ALLOCATOR_METHOD" default:"risk_parity"`
	LookbackWindow           int     `envconfig:"ALLOCATOR_LOOKBACK" default:"252"`
	MinHistory               int     `envconfig:"ALLOCATOR_MIN_HISTORY" default:"30"`
	HalfLife                 float64 `envconfig:"ALLOCATOR_HALF_LIFE" default:"63"`
	Annualization            float64 `envconfig:"ALLOCATOR_ANNUALIZATION" default:"252"`
	UseLogReturns            bool    `envconfig:"ALLOCATOR_LOG_RETURNS" default:"true"`
	MinPositionSize          float64 `envconfig:"ALLOCATOR_MIN_POSITION" default:"0.01"`
	MaxPositionSize          float64 `envconfig:"ALLOCATOR_MAX_POSITION" default:"0.3"`
	OptimizerMinWeight       float64 `envconfig:"ALLOCATOR_OPTIMIZER_MIN_WEIGHT" default:"0.01"`
	OptimizerMaxWeight       float64 `envconfig:"ALLOCATOR_OPTIMIZER_MAX_WEIGHT" default:"0.5"`
	LiquidityRequirement     float64 `envconfig:"ALLOCATOR_LIQUIDITY_REQUIREMENT" default:"0.1"`
	TargetVolatility         float64 `envconfig:"ALLOCATOR_TARGET_VOLATILITY" default:"0.15"`
	RebalanceThreshold       float64 `envconfig:"ALLOCATOR_REBALANCE_THRESHOLD" default:"0.05"`
	TransactionCost          float64 `envconfig:"ALLOCATOR_TRANSACTION_COST" default:"0.001"`
	BaseExpectedReturn       float64 `envconfig:"ALLOCATOR_BASE_EXPECTED_RETURN" default:"0.1"`
	DefaultVolatility        float64 `envconfig:"ALLOCATOR_DEFAULT_VOLATILITY" default:"0.2"`
	ConcentrationThreshold   float64 `envconfig:"ALLOCATOR_CONCENTRATION_THRESHOLD" default:"0.2"`
	PortfolioValue           float64 `envconfig:"ALLOCATOR_PORTFOLIO_VALUE" default:"1000000"`
	MaxHistory               int     `envconfig:"ALLOCATOR_MAX_HISTORY" default:"100"`
	LiquidityReferenceVolume float64 `envconfig:"ALLOCATOR_LIQUIDITY_REFERENCE_VOLUME" default:"10000000"`
	MinOrderNotional         float64 `envconfig:"ALLOCATOR_MIN_ORDER_NOTIONAL" default:"10"`
}

// UniverseConfig is the set of instruments traded by the council
type UniverseConfig struct {
	Exchange  string   `envconfig:"UNIVERSE_EXCHANGE" default:"binance"`
	Symbols   []string `envconfig:"UNIVERSE_SYMBOLS" default:"BTCUSDT,ETHUSDT,SOLUSDT,BNBUSDT,XRPUSDT"`
	Timeframe string   `envconfig:"UNIVERSE_TIMEFRAME" default:"1d"`
	Bars      int      `envconfig:"UNIVERSE_BARS" default:"300"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	CycleInterval time.Duration `envconfig:"WORKER_CYCLE_INTERVAL" default:"1h"`
	CycleTimeout  time.Duration `envconfig:"WORKER_CYCLE_TIMEOUT" default:"5m"`
	// Max symbols evaluated concurrently inside one cycle
	MaxConcurrency int `envconfig:"WORKER_MAX_CONCURRENCY" default:"4"`
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if len(c.Universe.Symbols) == 0 {
		return errors.NewValidationError("UNIVERSE_SYMBOLS", "at least one symbol is required", nil)
	}
	if c.Universe.Bars <= 0 {
		return errors.NewValidationError("UNIVERSE_BARS", "must be positive", c.Universe.Bars)
	}
	if c.Workers.CycleInterval <= 0 {
		return errors.NewValidationError("WORKER_CYCLE_INTERVAL", "must be positive", c.Workers.CycleInterval)
	}
	if c.Workers.MaxConcurrency <= 0 {
		c.Workers.MaxConcurrency = 1
	}
	return nil
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
