package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for llamaserve.
type Config struct {
	Host       string
	Port       int
	EngineURL  string
	Model      string
	ChatFormat string
	DBPath     string
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/llamaserve).
func Load() Config {
	return Config{
		Host:       viper.GetString("host"),
		Port:       viper.GetInt("port"),
		EngineURL:  viper.GetString("engine_url"),
		Model:      viper.GetString("model"),
		ChatFormat: viper.GetString("chat_format"),
		DBPath:     viper.GetString("db_path"),
	}
}
