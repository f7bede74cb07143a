package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// MiniDBConfig is the engine configuration, loaded from YAML.
type MiniDBConfig struct {
	Storage struct {
		Dir      string `mapstructure:"dir"`
		File     string `mapstructure:"file"`
		PoolSize int    `mapstructure:"pool_size"`
		DirectIO bool   `mapstructure:"direct_io"`
		Memory   bool   `mapstructure:"memory"`
	} `mapstructure:"storage"`
	Debug bool `mapstructure:"debug"`
}

// LoadConfig reads a YAML config file, falling back to defaults for
// unset keys. An empty path returns the defaults alone.
func LoadConfig(path string) (*MiniDBConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg MiniDBConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *MiniDBConfig {
	cfg, err := LoadConfig("")
	if err != nil {
		// Defaults cannot fail to unmarshal.
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.file", "minidb.db")
	v.SetDefault("storage.pool_size", 128)
	v.SetDefault("storage.direct_io", false)
	v.SetDefault("storage.memory", false)
	v.SetDefault("debug", false)
}
