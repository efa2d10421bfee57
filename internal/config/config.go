// Package config loads runtime configuration from the process environment
// and an optional dotenv file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

// Config captures the credentials and runtime settings for one sync run.
type Config struct {
	MyWhooshEmail    string
	MyWhooshPassword string
	GarminUsername   string
	GarminPassword   string
	LogLevel         string
}

// requiredKeys are the environment variables a run cannot start without.
var requiredKeys = []string{
	"MYWHOOSH_EMAIL",
	"MYWHOOSH_PASSWORD",
	"GARMIN_USERNAME",
	"GARMIN_PASSWORD",
}

// Load reads the dotenv file at envFile when present, overlays the process
// environment on top of it, and validates that every required key has a
// value. A missing dotenv file is fine; an unreadable one is not.
func Load(envFile string) (Config, error) {
	v := viper.New()
	v.SetDefault("LOG_LEVEL", "INFO")

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(envFile); statErr == nil {
				return Config{}, fmt.Errorf("%w: reading %s: %v", domain.ErrConfig, envFile, err)
			}
		}
	}

	v.AutomaticEnv()
	for _, key := range append(append([]string(nil), requiredKeys...), "LOG_LEVEL") {
		_ = v.BindEnv(key)
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing required configuration: %s (see .env.example)",
			domain.ErrConfig, strings.Join(missing, ", "))
	}

	return Config{
		MyWhooshEmail:    v.GetString("MYWHOOSH_EMAIL"),
		MyWhooshPassword: v.GetString("MYWHOOSH_PASSWORD"),
		GarminUsername:   v.GetString("GARMIN_USERNAME"),
		GarminPassword:   v.GetString("GARMIN_PASSWORD"),
		LogLevel:         strings.ToUpper(v.GetString("LOG_LEVEL")),
	}, nil
}

// Debug reports whether debug-level logging was requested.
func (c Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}
