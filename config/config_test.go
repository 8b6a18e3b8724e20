package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", config.GetString("server.address"))
	assert.Equal(t, []string{"local"}, config.GetStringSlice("cache.layers"))

	gh := GitHub(config)
	assert.Equal(t, "https://api.github.com", gh.BaseURL)
	assert.Equal(t, 20, gh.RepoLimit)
	assert.Equal(t, 30*24*time.Hour, gh.ActivityWindow)

	srv := Server(config)
	assert.Equal(t, 15*time.Minute, srv.StatsTTL)
	assert.Equal(t, 15*time.Minute, srv.ActivityTTL)

	assert.Error(t, Validate(config))
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
github:
  user: octocat
  stats-ttl: 5m
  repo-limit: 10
cache:
  layers: [local, shared]
  shared:
    type: redis
    address: localhost:6379
`), 0o600))
	t.Setenv("FOLIO_GITHUB_TOKEN", "s3cret")
	t.Setenv("FOLIO_GITHUB_ACTIVITY_TTL", "1m")

	config, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(config))

	gh := GitHub(config)
	assert.Equal(t, "octocat", gh.User)
	assert.Equal(t, "s3cret", gh.Token)
	assert.Equal(t, 10, gh.RepoLimit)

	srv := Server(config)
	assert.Equal(t, 5*time.Minute, srv.StatsTTL)
	assert.Equal(t, time.Minute, srv.ActivityTTL)

	assert.Equal(t, []string{"local", "shared"}, config.GetStringSlice("cache.layers"))
	assert.Equal(t, "redis", config.GetString("cache.shared.type"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsZeroTTL(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	config.Set("github.user", "octocat")
	config.Set("github.stats-ttl", "0s")
	assert.Error(t, Validate(config))
}

func TestInitLogger(t *testing.T) {
	defer InitLogger("info", "text")

	InitLogger("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	InitLogger("loud", "text")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)
}
