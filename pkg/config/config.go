package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable read by Load.
	EnvPrefix = "snapfield"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	Redis   RedisConfig
	Store   StoreConfig
	Quota   QuotaLimitsConfig
	Gate    GateConfig
	Reclaim ReclaimConfig
	Journal JournalConfig
	Geo     GeoConfig
	Vision  VisionConfig
	Admin   AdminConfig
	CORS    CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SNAPFIELD_APP_ENV" default:"dev"`
	Port         string `envconfig:"SNAPFIELD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SNAPFIELD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SNAPFIELD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// RedisConfig describes the optional remote KV backend. URL empty means the
// process runs on the local file fallback alone.
type RedisConfig struct {
	URL          string        `envconfig:"SNAPFIELD_REDIS_URL"`
	Address      string        `envconfig:"SNAPFIELD_REDIS_ADDR"`
	Password     string        `envconfig:"SNAPFIELD_REDIS_PASSWORD"`
	DB           int           `envconfig:"SNAPFIELD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SNAPFIELD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SNAPFIELD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SNAPFIELD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SNAPFIELD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SNAPFIELD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a remote backend was supplied at all.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

type StoreConfig struct {
	FallbackDir string        `envconfig:"SNAPFIELD_STORE_FALLBACK_DIR" default:"./data"`
	LedgerTTL   time.Duration `envconfig:"SNAPFIELD_STORE_LEDGER_TTL" default:"720h"`
	CodesTTL    time.Duration `envconfig:"SNAPFIELD_STORE_CODES_TTL" default:"720h"`
	JournalTTL  time.Duration `envconfig:"SNAPFIELD_STORE_JOURNAL_TTL" default:"504h"`
}

type QuotaLimitsConfig struct {
	NormalWeeklyLimit int `envconfig:"SNAPFIELD_QUOTA_NORMAL_WEEKLY_LIMIT" default:"10"`
	ProWeeklyLimit    int `envconfig:"SNAPFIELD_QUOTA_PRO_WEEKLY_LIMIT" default:"50"`
}

type GateConfig struct {
	Capacity    int           `envconfig:"SNAPFIELD_GATE_CAPACITY" default:"2"`
	WaitTimeout time.Duration `envconfig:"SNAPFIELD_GATE_WAIT_TIMEOUT" default:"90s"`
}

type ReclaimConfig struct {
	TickInterval time.Duration `envconfig:"SNAPFIELD_RECLAIM_TICK_INTERVAL" default:"2m"`
	LightIdle    time.Duration `envconfig:"SNAPFIELD_RECLAIM_LIGHT_IDLE" default:"2m"`
	DeepIdle     time.Duration `envconfig:"SNAPFIELD_RECLAIM_DEEP_IDLE" default:"5m"`
}

type JournalConfig struct {
	MaxEntries int `envconfig:"SNAPFIELD_JOURNAL_MAX_ENTRIES" default:"200"`
}

type GeoConfig struct {
	BaseURL string        `envconfig:"SNAPFIELD_GEO_BASE_URL" default:"http://ip-api.com/json"`
	Timeout time.Duration `envconfig:"SNAPFIELD_GEO_TIMEOUT" default:"3s"`
}

type VisionConfig struct {
	BaseURL string        `envconfig:"SNAPFIELD_VISION_BASE_URL"`
	APIKey  string        `envconfig:"SNAPFIELD_VISION_API_KEY"`
	Model   string        `envconfig:"SNAPFIELD_VISION_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"SNAPFIELD_VISION_TIMEOUT" default:"60s"`
}

type AdminConfig struct {
	Token string `envconfig:"SNAPFIELD_ADMIN_TOKEN"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SNAPFIELD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}
