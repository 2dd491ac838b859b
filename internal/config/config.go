// Package config loads the command line tool's settings from defaults, an
// optional qdl.yaml file, QDL_ environment variables and bound flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/moffa90/go-qdl/firehose"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "qdl"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "QDL"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Programmer is the path of the Firehose programmer image
	Programmer string `mapstructure:"programmer"`

	USB struct {
		VendorID       uint16        `mapstructure:"vendor_id"`
		ProductID      uint16        `mapstructure:"product_id"`
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"usb"`

	Firehose struct {
		Memory          string        `mapstructure:"memory"` // UFS or eMMC
		SectorSize      int           `mapstructure:"sector_size"`
		MaxPayload      int           `mapstructure:"max_payload"`
		MaxLUN          int           `mapstructure:"max_lun"`
		ResponseTimeout time.Duration `mapstructure:"response_timeout"`
		SkipWrite       bool          `mapstructure:"skip_write"`
	} `mapstructure:"firehose"`

	Flash struct {
		SplitSize int64 `mapstructure:"split_size"`
	} `mapstructure:"flash"`
}

// New returns a viper instance with defaults and environment lookup set up.
// Flags are bound onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")
	v.SetDefault("programmer", "")

	v.SetDefault("usb.vendor_id", 0x05c6)
	v.SetDefault("usb.product_id", 0x9008)
	v.SetDefault("usb.read_timeout", "100ms")
	v.SetDefault("usb.write_timeout", "5s")
	v.SetDefault("usb.connect_timeout", "5s")

	v.SetDefault("firehose.memory", firehose.MemoryUFS)
	v.SetDefault("firehose.sector_size", firehose.DefaultSectorSize)
	v.SetDefault("firehose.max_payload", firehose.DefaultMaxPayloadSizeToTarget)
	v.SetDefault("firehose.max_lun", firehose.DefaultMaxLUN)
	v.SetDefault("firehose.response_timeout", firehose.DefaultResponseTimeout.String())
	v.SetDefault("firehose.skip_write", false)

	v.SetDefault("flash.split_size", int64(1<<30))
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, AppName))
	}
}

// Load reads cfgFile, or qdl.yaml from the search paths when cfgFile is
// empty, and decodes the merged settings. A missing qdl.yaml is not an
// error; a missing cfgFile is.
func Load(v *viper.Viper, cfgFile string) (*AppConfig, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *AppConfig) Validate() error {
	switch c.LogFormat {
	case "json", "human":
	default:
		return fmt.Errorf("log_format must be json or human, got %q", c.LogFormat)
	}
	switch c.Firehose.Memory {
	case firehose.MemoryUFS, firehose.MemoryEMMC:
	default:
		return fmt.Errorf("firehose.memory must be %s or %s, got %q", firehose.MemoryUFS, firehose.MemoryEMMC, c.Firehose.Memory)
	}
	if ss := c.Firehose.SectorSize; ss < 512 || ss%512 != 0 {
		return fmt.Errorf("firehose.sector_size must be a positive multiple of 512, got %d", ss)
	}
	if c.Firehose.MaxLUN < 1 {
		return fmt.Errorf("firehose.max_lun must be at least 1, got %d", c.Firehose.MaxLUN)
	}
	if c.Flash.SplitSize < 0 {
		return fmt.Errorf("flash.split_size cannot be negative")
	}
	return nil
}
