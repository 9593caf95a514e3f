package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroline/retroline/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultListenAddr = "localhost:8000"
)

// Config is the global configuration object which is filled via the
// configuration file, environment (RETROLINE_ prefix) and command-line
// flags.
type Config struct {
	ListenAddr        string            `mapstructure:"listen_addr"`
	LogLevel          string            `mapstructure:"log_level"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig selects the room snapshot store. Type is "redis",
// "buntdb" or empty. An empty type is not an error: the server then runs
// with in-memory room state only (no recovery after a process restart).
type PersistenceConfig struct {
	Type         string       `mapstructure:"type"`
	RedisConfig  RedisConfig  `mapstructure:"redis"`
	BuntDBConfig BuntDBConfig `mapstructure:"buntdb"`
}

// RedisConfig configures the Redis-backed snapshot store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BuntDBConfig configures the BuntDB file-backed snapshot store.
type BuntDBConfig struct {
	Path string `mapstructure:"path"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("listen-addr", "", "listen address (host:port)")
	flagSet.String("log-level", "", "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("listen_addr", defaultListenAddr)
	viper.SetDefault("log_level", "INFO")
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("RETROLINE")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
