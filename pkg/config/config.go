package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Policy Policy `mapstructure:"POLICY"`
}

// Policy is the gating configuration. It is materialised once at startup and
// passed by value into the access-control middleware; nothing reads the
// process environment during request handling.
type Policy struct {
	EnforcePayment       bool          `mapstructure:"ENFORCE_PAYMENT"`
	RequireLicenseServer bool          `mapstructure:"REQUIRE_LICENSE_SERVER"`
	PublicPaths          []string      `mapstructure:"PUBLIC_PATHS"`
	RatePerMinute        int64         `mapstructure:"RATE_PER_MINUTE"`
	MinBillingUnit       float64       `mapstructure:"MIN_BILLING_UNIT"`
	ValidatorTimeout     time.Duration `mapstructure:"VALIDATOR_TIMEOUT"`
	WebhookSecret        string        `mapstructure:"WEBHOOK_SECRET"`
	LicenseKeySecret     string        `mapstructure:"LICENSE_KEY_SECRET"`
	AdminToken           string        `mapstructure:"ADMIN_TOKEN"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig, ProvidePolicy))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	config.SetDefault("POLICY.ENFORCE_PAYMENT", true)
	config.SetDefault("POLICY.REQUIRE_LICENSE_SERVER", true)
	config.SetDefault("POLICY.PUBLIC_PATHS", []string{"/healthz", "/readyz"})
	config.SetDefault("POLICY.RATE_PER_MINUTE", 60)
	config.SetDefault("POLICY.MIN_BILLING_UNIT", 0.1)
	config.SetDefault("POLICY.VALIDATOR_TIMEOUT", 50*time.Millisecond)

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func ProvidePolicy(cfg *Config) Policy {
	return cfg.Policy
}
