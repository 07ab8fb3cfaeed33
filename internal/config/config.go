package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Log       LogConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Chain     ChainConfig
	Rewards   RewardsConfig
	Boosters  BoostersConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"giftbox-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin endpoints key
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info"`
	File      string `envconfig:"LOG_FILE" default:""`
	ErrorFile string `envconfig:"LOG_ERROR_FILE" default:""`
	Console   bool   `envconfig:"LOG_CONSOLE" default:"true"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type      string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	WalletTTL time.Duration `envconfig:"CACHE_WALLET_TTL" default:"5m"`
	TxTTL     time.Duration `envconfig:"CACHE_TX_TTL" default:"24h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds MySQL connection settings (for player_wallets).
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"giftbox"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// StoreConfig holds player store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"mongodb"` // mongodb, postgres or sqlite
	Path string `envconfig:"STORE_SQLITE_PATH" default:"./data/players.db"`
	// PostgreSQL settings
	Host     string `envconfig:"STORE_PG_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PG_PORT" default:"5432"`
	Name     string `envconfig:"STORE_PG_NAME" default:"giftbox"`
	User     string `envconfig:"STORE_PG_USER" default:"postgres"`
	Password string `envconfig:"STORE_PG_PASS" default:""`
	SSLMode  string `envconfig:"STORE_PG_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI          string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase     string `envconfig:"MONGODB_DATABASE" default:"giftbox"`
	MongoPlayers      string `envconfig:"MONGODB_PLAYERS_COLLECTION" default:"players"`
	MongoTransactions string `envconfig:"MONGODB_TRANSACTIONS_COLLECTION" default:"consumed_transactions"`
}

// ChainConfig holds settings for payment verification.
type ChainConfig struct {
	RPCURL           string        `envconfig:"CHAIN_RPC_URL" default:""`
	ChainID          int64         `envconfig:"CHAIN_ID" default:"8453"`
	Treasury         string        `envconfig:"CHAIN_TREASURY_ADDRESS" default:""`
	PaymentToken     string        `envconfig:"CHAIN_PAYMENT_TOKEN" default:""` // empty means native coin
	MinConfirmations uint64        `envconfig:"CHAIN_MIN_CONFIRMATIONS" default:"2"`
	RPCTimeout       time.Duration `envconfig:"CHAIN_RPC_TIMEOUT" default:"10s"`
}

// RewardsConfig holds reward channel and claim window settings.
type RewardsConfig struct {
	ShareCooldown   time.Duration `envconfig:"REWARD_SHARE_COOLDOWN" default:"6h"`
	MiniAppCooldown time.Duration `envconfig:"REWARD_MINIAPP_COOLDOWN" default:"3h"`
	ShareGrant      int           `envconfig:"REWARD_SHARE_GRANT" default:"2"`
	MiniAppGrant    int           `envconfig:"REWARD_MINIAPP_GRANT" default:"3"`
	FollowGrant     int           `envconfig:"REWARD_FOLLOW_GRANT" default:"1"`
	ClaimWindow     time.Duration `envconfig:"REWARD_CLAIM_WINDOW" default:"12h"`
	ClaimCap        int           `envconfig:"REWARD_CLAIM_CAP" default:"5"`
	MaxRetries      int           `envconfig:"REWARD_MAX_RETRIES" default:"5"`
}

// BoostersConfig holds booster catalog settings.
type BoostersConfig struct {
	CatalogPath string `envconfig:"BOOSTER_CATALOG_PATH" default:""`
	MaxQuantity int64  `envconfig:"BOOSTER_MAX_QUANTITY" default:"100"`
}

// KafkaConfig holds ledger event stream settings.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"giftbox.ledger"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys  []string      `envconfig:"API_KEYS" default:""`
	TokenTTL time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"1h"`
}

// ReconcileConfig holds settings for the pending transaction reconciler.
type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10m"`
	Threshold time.Duration `envconfig:"RECONCILE_THRESHOLD" default:"15m"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// PaymentInNative reports whether payments are made in the chain's native coin.
func (c *ChainConfig) PaymentInNative() bool {
	return c.PaymentToken == ""
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Type {
	case "mongodb", "mongo", "postgres", "postgresql", "sqlite":
	default:
		return errors.Errorf("unknown STORE_TYPE %q", c.Store.Type)
	}
	if c.Rewards.ClaimWindow <= 0 {
		return errors.New("REWARD_CLAIM_WINDOW must be positive")
	}
	if c.Rewards.ShareGrant <= 0 || c.Rewards.MiniAppGrant <= 0 || c.Rewards.FollowGrant <= 0 {
		return errors.New("reward grant sizes must be positive")
	}
	if c.Boosters.MaxQuantity <= 0 {
		return errors.New("BOOSTER_MAX_QUANTITY must be positive")
	}
	return nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
