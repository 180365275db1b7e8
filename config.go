package main

import (
	"github.com/spf13/viper"

	"bptable/table"
)

// Config holds everything the REPL needs to open a store: which file to
// use, how noisy to log, and the internal-node fan-out tunable (spec
// invariant 6 calls this a "small tunable"; production leaves it at its
// full-capacity default and only tests shrink it to exercise splits).
type Config struct {
	DBPath           string
	LogLevel         string
	InternalMaxCells uint32
}

// loadConfig reads BPTABLE_-prefixed environment variables and an optional
// bptable.yaml/.toml in the working directory, falling back to defaults.
// dbPath, if non-empty, overrides both of those (it is the REPL's
// positional argument).
func loadConfig(dbPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BPTABLE")
	v.AutomaticEnv()
	v.SetDefault("db_path", "bptable.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("internal_max_cells", table.DefaultInternalMaxCells)

	v.SetConfigName("bptable")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	if dbPath != "" {
		v.Set("db_path", dbPath)
	}

	return Config{
		DBPath:           v.GetString("db_path"),
		LogLevel:         v.GetString("log_level"),
		InternalMaxCells: uint32(v.GetInt("internal_max_cells")),
	}, nil
}
