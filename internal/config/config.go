// Package config provides configuration loading and validation for the
// webcord bridge. Values are read from a YAML file and can be overridden
// with WEBCORD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// bridge: logging, the Discord connection, the HTTP server, and the bridge
// behavior itself.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Discord DiscordConfig `mapstructure:"discord"`
	Server  ServerConfig  `mapstructure:"server"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// ChannelID is the bridged destination. It is tried as a channel ID
	// first and falls back to being treated as a user ID for a DM.
	ChannelID string `mapstructure:"channel_id" validate:"required"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=1m"`
}

type BridgeConfig struct {
	Password    string `mapstructure:"password"     validate:"required"`
	HistoryDays int    `mapstructure:"history_days" validate:"min=1,max=30"`
}

// Load reads configuration from the given file path, applies defaults and
// environment overrides, and validates the result. A missing config file is
// not an error as long as the required values arrive via environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("WEBCORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every known key so AutomaticEnv picks them up
// during Unmarshal; required keys default to empty and fail validation
// when left unset.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("bridge.password", "")
	v.SetDefault("bridge.history_days", 7)
}
