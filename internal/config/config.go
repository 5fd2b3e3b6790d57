package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     int
	WriteTimeout    int
	IdleTimeout     int
	ShutdownTimeout int
}

// DatabaseConfig selects the storage backend. An empty URL means the
// in-memory store.
type DatabaseConfig struct {
	URL string
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from an optional TOML file and the environment.
// Env overrides use the LEDGERD_ prefix, e.g. LEDGERD_DATABASE_URL.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.readtimeout", 5)
	v.SetDefault("server.writetimeout", 10)
	v.SetDefault("server.idletimeout", 60)
	v.SetDefault("server.shutdowntimeout", 10)
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetConfigType("toml")
	v.SetConfigName("ledgerd")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ledgerd")

	v.SetEnvPrefix("LEDGERD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
