package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sqliteConfig = `
databases:
  driver: sqlite
  sqlite_path: /tmp/messenger.db
auth:
  allow_header_identity: true
`

func TestParseAppliesDefaults(t *testing.T) {
	conf, err := Parse([]byte(sqliteConfig))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", conf.Databases.Driver)
	assert.Equal(t, 5, conf.Sync.ConversationPollSeconds)
	assert.Equal(t, 30, conf.Sync.RecentPollSeconds)
	assert.Equal(t, 50, conf.Sync.DefaultPageSize)
	assert.Equal(t, 100, conf.Sync.MaxPageSize)
	assert.Equal(t, "messaging_events", conf.RabbitMQ.Exchange)
	assert.Equal(t, 8080, conf.Backend.Port)
	assert.Equal(t, "info", conf.Logs.Level)
	assert.Empty(t, conf.RedisAddr())
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("JWT_SECRET", "from-env")

	conf, err := Parse([]byte(sqliteConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6380", conf.RedisAddr())
	assert.Equal(t, "from-env", conf.Auth.JWTSecret)
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"unknown driver": `
databases:
  driver: mongo
auth:
  allow_header_identity: true
`,
		"postgres without host": `
databases:
  driver: postgres
auth:
  jwt_secret: s
`,
		"no secret": `
databases:
  driver: sqlite
`,
		"poll interval": `
databases:
  driver: sqlite
auth:
  jwt_secret: s
sync:
  conversation_poll_seconds: 600
`,
		"page sizes": `
databases:
  driver: sqlite
auth:
  jwt_secret: s
sync:
  default_page_size: 200
  max_page_size: 100
`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sqliteConfig), 0o600))

	require.NoError(t, LoadConfig(path))
	require.NotNil(t, AppConfig)
	assert.Equal(t, "/tmp/messenger.db", AppConfig.Databases.SQLitePath)

	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
}
