package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseYAML = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: placement
    user: placement
    password: ${TEST_PG_PASSWORD}
  redis:
    address: localhost:6379
  elasticsearch:
    addresses:
      - http://localhost:9200
workers:
  compute-assignments:
    enabled: true
    timeout: 90000
  notify-unassigned:
    enabled: false
assignment:
  force_fill: true
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "localhost:26500", cfg.Camunda.BrokerAddress)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.True(t, cfg.Assignment.ForceFill)
	assert.Equal(t, "assignment-reports", cfg.Assignment.ReportIndex)
	assert.Equal(t, ":8080", cfg.HTTP.Address)

	compute := cfg.Workers["compute-assignments"]
	assert.True(t, compute.Enabled)
	assert.Equal(t, 90000, compute.Timeout)
	assert.Equal(t, 5, compute.MaxJobsActive)
	assert.Equal(t, 3, compute.MaxRetries)
	assert.Equal(t, 5000, compute.RetryBackoff)

	assert.False(t, IsWorkerEnabled(cfg, "notify-unassigned"))
	assert.True(t, IsWorkerEnabled(cfg, "index-assignment-report"))
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: h\n",
			wantErr: "camunda.broker_address",
		},
		{
			name: "email without recipients",
			body: baseYAML + `
notifications:
  email:
    enabled: true
    from_email: ops@example.org
`,
			wantErr: "notifications.email.recipients",
		},
		{
			name: "topic without arn",
			body: baseYAML + `
notifications:
  topic:
    enabled: true
`,
			wantErr: "notifications.topic.arn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPERATOR_TOPIC_ARN", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetWorkerConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	w := GetWorkerConfig(cfg, "force-fill-assignments")

	assert.True(t, w.Enabled)
	assert.Equal(t, 30*time.Second, GetDuration(w.Timeout))
	assert.Equal(t, 5*time.Second, GetDuration(w.RetryBackoff))
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=require", p.GetDSN())
}
