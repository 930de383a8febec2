package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  path: /var/lib/poimirror/mirror.db
source:
  timeout_seconds: 60
sync:
  scopes:
    - name: berlin
      filter: '["payment:bitcoin"](area:berlin)'
    - name: hamburg
      filter: '["payment:bitcoin"](area:hamburg)'
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/poimirror/mirror.db", cfg.Database.Path)
	assert.Equal(t, 60*time.Second, cfg.SourceTimeout())
	require.Len(t, cfg.Sync.Scopes, 2)
	assert.Equal(t, "berlin", cfg.Sync.Scopes[0].Name)

	// Untouched fields keep their defaults.
	def := Default()
	assert.Equal(t, def.Source.Endpoint, cfg.Source.Endpoint)
	assert.Equal(t, def.Source.UserAgent, cfg.Source.UserAgent)
	assert.Equal(t, def.Report, cfg.Report)
}

func TestParse_RejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("sync: ["))
	require.Error(t, err)
}

func TestParse_RejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"empty scope name": `
sync:
  scopes:
    - name: ""
      filter: '["amenity"]'
`,
		"scope without filter": `
sync:
  scopes:
    - name: berlin
`,
		"zero timeout":      "source:\n  timeout_seconds: 0\n",
		"excessive timeout": "source:\n  timeout_seconds: 7200\n",
		"empty db path":     "database:\n  path: \"\"\n",
		"zero report window": `
report:
  up_to_date_days: 0
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: from-file.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.Database.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWindowDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 365*24*time.Hour, cfg.UpToDateWindow())
	assert.Equal(t, 30*24*time.Hour, cfg.ActivityWindow())
}
