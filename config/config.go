package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Round   RoundConfig   `mapstructure:"round"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
	// HeartbeatInterval drops a websocket that stays silent for two intervals.
	// Zero disables the timeout.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type RoundConfig struct {
	AutoAdvanceDelay time.Duration `mapstructure:"auto_advance_delay"`
	TimerResolution  time.Duration `mapstructure:"timer_resolution"`
	// Seed for measurement randomness. Zero seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

type ArchiveConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// EnvPrefix prefixes every environment override, e.g. BB84_SERVER_HTTP_ADDRESS.
const EnvPrefix = "BB84"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3000")
	v.SetDefault("server.rpc_address", "127.0.0.1:3001")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("round.auto_advance_delay", 3*time.Second)
	v.SetDefault("round.timer_resolution", 50*time.Millisecond)
	v.SetDefault("round.seed", 0)
	v.SetDefault("archive.driver", "memory")
	v.SetDefault("archive.postgres.host", "localhost")
	v.SetDefault("archive.postgres.port", 5432)
	v.SetDefault("archive.postgres.user", "postgres")
	v.SetDefault("archive.postgres.password", "")
	v.SetDefault("archive.postgres.dbname", "bb84")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("metrics.namespace", "bb84")
}

// LoadConfig reads config.yaml from path, then .env from the same directory,
// then BB84_* environment variables. A missing file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
