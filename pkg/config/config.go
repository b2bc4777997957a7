package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. When empty, tokens are
	// decoded without signature verification (development mode behind a
	// verifying gateway).
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type IdentityConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AdminToken string        `mapstructure:"admin_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint          `mapstructure:"max_retries"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type JobsConfig struct {
	// ProvisioningSchedule is a cron expression with seconds precision.
	ProvisioningSchedule string `mapstructure:"provisioning_schedule"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/timeledger/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("TIMELEDGER")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 9091)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("auth.issuer", "timeledger")
	viper.SetDefault("identity.timeout", "10s")
	viper.SetDefault("identity.max_retries", 3)
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requests", 300)
	viper.SetDefault("ratelimit.window", "1m")
	viper.SetDefault("jobs.provisioning_schedule", "0 */5 * * * *")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
