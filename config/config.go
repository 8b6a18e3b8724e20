// Package config loads the folio configuration and sets up logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cafebazaar/folio/analytics"
	"github.com/cafebazaar/folio/ghstats"
	"github.com/cafebazaar/folio/server"
)

const EnvPrefix = "FOLIO"

// Load reads the optional config file at path and layers FOLIO_* environment variables
// and built-in defaults underneath it.
func Load(path string) (*viper.Viper, error) {
	config := viper.New()
	SetDefaults(config)
	config.SetEnvPrefix(EnvPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	config.AutomaticEnv()

	if path != "" {
		config.SetConfigFile(path)
		if err := config.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return config, nil
}

func SetDefaults(config *viper.Viper) {
	config.SetDefault("server.address", ":5000")
	config.SetDefault("server.secure-cookies", false)

	config.SetDefault("log.level", "info")
	config.SetDefault("log.format", "text")

	config.SetDefault("github.user", "")
	config.SetDefault("github.token", "")
	config.SetDefault("github.base-url", ghstats.DefaultBaseURL)
	config.SetDefault("github.timeout", time.Duration(0))
	config.SetDefault("github.repo-limit", ghstats.DefaultRepoLimit)
	config.SetDefault("github.top-languages", ghstats.DefaultTopLanguages)
	config.SetDefault("github.activity-window", ghstats.DefaultActivityWindow)
	config.SetDefault("github.activity-limit", ghstats.DefaultActivityLimit)
	config.SetDefault("github.workers", ghstats.DefaultWorkers)
	config.SetDefault("github.stats-ttl", server.DefaultStatsTTL)
	config.SetDefault("github.activity-ttl", server.DefaultActivityTTL)

	config.SetDefault("cache.layers", []string{"local"})
	config.SetDefault("cache.local.type", "tiny")
	config.SetDefault("cache.slow-threshold", 50*time.Millisecond)

	config.SetDefault("analytics.address", "")
	config.SetDefault("analytics.db", 0)
	config.SetDefault("analytics.prefix", analytics.DefaultPrefix)
	config.SetDefault("analytics.dedup-window", analytics.DefaultDedupWindow)
}

// GitHub extracts the upstream client configuration.
func GitHub(config *viper.Viper) ghstats.Config {
	return ghstats.Config{
		User:           config.GetString("github.user"),
		Token:          config.GetString("github.token"),
		BaseURL:        config.GetString("github.base-url"),
		Timeout:        config.GetDuration("github.timeout"),
		RepoLimit:      config.GetInt("github.repo-limit"),
		TopLanguages:   config.GetInt("github.top-languages"),
		ActivityWindow: config.GetDuration("github.activity-window"),
		ActivityLimit:  config.GetInt("github.activity-limit"),
		Workers:        config.GetInt("github.workers"),
	}
}

// Server extracts the HTTP front door configuration.
func Server(config *viper.Viper) server.Config {
	return server.Config{
		StatsTTL:       config.GetDuration("github.stats-ttl"),
		ActivityTTL:    config.GetDuration("github.activity-ttl"),
		ActivityWindow: config.GetDuration("github.activity-window"),
		SecureCookies:  config.GetBool("server.secure-cookies"),
	}
}

// Validate checks the settings the server cannot start without.
func Validate(config *viper.Viper) error {
	if config.GetString("github.user") == "" {
		return fmt.Errorf("github.user is required (or set %s_GITHUB_USER)", EnvPrefix)
	}
	for _, key := range []string{"github.stats-ttl", "github.activity-ttl"} {
		if config.GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	return nil
}
