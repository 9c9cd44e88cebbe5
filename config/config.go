package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Bind            string        `mapstructure:"bind"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		AcceptRate      int           `mapstructure:"accept_rate"`
	} `mapstructure:"server"`

	Metrics struct {
		Bind string `mapstructure:"bind"`
		Path string `mapstructure:"path"`
	} `mapstructure:"metrics"`

	Queue struct {
		Workers         int `mapstructure:"workers"`
		HandlePerSecond int `mapstructure:"handle_per_second"`
	} `mapstructure:"queue"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
