package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validConfig(t *testing.T) Config {
	t.Helper()
	c := Default()
	c.Directory = t.TempDir()
	c.Conn.Database = "stackoverflow"
	return c
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "so2pg.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
directory: /from/file
conn:
  database: filedb
  host: filehost
loader:
  kind: pgx
relations: true
`), 0o644))

	t.Setenv("SO2PG_CONN_HOST", "envhost")
	t.Setenv("SO2PG_CONN_PASSWORD", "s3cret")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("database", "", "")
	require.NoError(t, fs.Parse([]string{"--database", "flagdb"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("conn.database", fs.Lookup("database")))

	c, err := Load(v, file)
	require.NoError(t, err)

	assert.Equal(t, "/from/file", c.Directory)
	assert.Equal(t, "flagdb", c.Conn.Database, "flag beats file")
	assert.Equal(t, "envhost", c.Conn.Host, "env beats file")
	assert.Equal(t, "s3cret", c.Conn.Password)
	assert.Equal(t, "pgx", c.Loader.Kind)
	assert.Equal(t, "psql", c.Loader.PSQLPath, "default kept")
	assert.True(t, c.Relations)
	assert.False(t, c.Optionals)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestParseDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    byte
		wantErr bool
	}{
		{in: `\x0B`, want: 0x0B},
		{in: `0x0b`, want: 0x0B},
		{in: `0X7C`, want: '|'},
		{in: `\t`, want: '\t'},
		{in: `\v`, want: '\v'},
		{in: "|", want: '|'},
		{in: "\v", want: '\v'},
		{in: "", wantErr: true},
		{in: "ab", wantErr: true},
		{in: `\xZZ`, wantErr: true},
		{in: `\x0B0`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseDelimiter(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseDelimiter(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseDelimiter(%q)", tt.in)
	}
}

func TestConnDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		conn Conn
		want string
	}{
		{"database only", Conn{Database: "so"}, "postgres:///so"},
		{"host and port", Conn{Database: "so", Host: "db", Port: "6543"}, "postgres://db:6543/so"},
		{"port without host", Conn{Database: "so", Port: "5433"}, "postgres://localhost:5433/so"},
		{"user", Conn{Database: "so", Host: "db", User: "me"}, "postgres://me@db/so"},
		{"password is escaped", Conn{Database: "so", Host: "db", User: "me", Password: "p@ss/w"}, "postgres://me:p%40ss%2Fw@db/so"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.conn.DSN(), tt.name)
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	issues := validConfig(t).Validate()
	assert.Empty(t, issues)
	assert.NoError(t, Err(issues))
}

func TestValidate_Cases(t *testing.T) {
	t.Parallel()

	notDir := filepath.Join(t.TempDir(), "Badges.xml")
	require.NoError(t, os.WriteFile(notDir, nil, 0o644))

	tests := []struct {
		name   string
		mutate func(c *Config)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"missing directory", func(c *Config) { c.Directory = "" }, SeverityError, "directory", "required"},
		{"absent directory", func(c *Config) { c.Directory = filepath.Join(c.Directory, "nope") }, SeverityError, "directory", "cannot read"},
		{"file as directory", func(c *Config) { c.Directory = notDir }, SeverityError, "directory", "not a directory"},
		{"missing database", func(c *Config) { c.Conn.Database = " " }, SeverityError, "conn.database", "required"},
		{"bad port", func(c *Config) { c.Conn.Port = "54x" }, SeverityError, "conn.port", "not a TCP port"},
		{"unknown loader", func(c *Config) { c.Loader.Kind = "odbc" }, SeverityError, "loader.kind", "unknown loader"},
		{"psql without path", func(c *Config) { c.Loader.PSQLPath = "" }, SeverityError, "loader.psql_path", "psql executable"},
		{"bad delimiter", func(c *Config) { c.Delimiter = "ab" }, SeverityError, "delimiter", "want one byte"},
		{"newline delimiter", func(c *Config) { c.Delimiter = `\x0A` }, SeverityError, "delimiter", "conflicts"},
		{"quote delimiter", func(c *Config) { c.Delimiter = `"` }, SeverityError, "delimiter", "conflicts"},
		{"optionals alone", func(c *Config) { c.Optionals = true }, SeverityWarning, "optionals", "without foreign keys"},
		{"skip schema with relations", func(c *Config) { c.SkipSchema, c.Relations = true, true }, SeverityWarning, "skip_schema", "disables"},
		{"pushgateway without url", func(c *Config) { c.Metrics.Backend = "pushgateway" }, SeverityError, "metrics.pushgateway_url", "requires a URL"},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, SeverityError, "metrics.datadog_addr", "agent address"},
		{"unknown metrics", func(c *Config) { c.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "unknown"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, SeverityError, "log.level", "loud"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, SeverityError, "log.format", "unknown log format"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig(t)
			tt.mutate(&c)
			issues := c.Validate()
			assert.True(t, hasIssue(t, issues, tt.sev, tt.path, tt.msg), "issues=%v", issues)

			if tt.sev == SeverityError {
				assert.Error(t, Err(issues))
			} else {
				assert.NoError(t, Err(issues))
			}
		})
	}
}

func TestIssueError(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "conn.database", Message: "database is required"}
	assert.Equal(t, "error at conn.database: database is required", iss.Error())
}
