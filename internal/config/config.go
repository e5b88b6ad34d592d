// Package config defines the run configuration of an import and how it is
// loaded.
//
// Values are layered by viper, lowest precedence first: built-in defaults, an
// optional YAML/JSON/TOML file, SO2PG_* environment variables (a .env file is
// loaded into the environment by the CLI), then command-line flags. Nested
// keys use dots ("conn.host"); the matching variable is SO2PG_CONN_HOST.
//
// Example file:
//
//	directory: /data/stackoverflow.com
//	conn:
//	  database: so
//	  host: localhost
//	loader:
//	  kind: pgx
//	relations: true
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable viper consults.
const EnvPrefix = "SO2PG"

// Config is the full configuration of one import run.
type Config struct {
	// Job labels metrics and journal entries.
	Job string `mapstructure:"job"`

	// Directory holds the dump's XML files.
	Directory string `mapstructure:"directory"`

	Conn   Conn   `mapstructure:"conn"`
	Loader Loader `mapstructure:"loader"`

	// Delimiter is the field separator: one literal byte, or an escape such as
	// `\x0B`, `0x0B` or `\t`.
	Delimiter string `mapstructure:"delimiter"`

	// Relations adds foreign keys after loading; Optionals creates and seeds
	// the lookup tables. SkipSchema disables all DDL.
	Relations  bool `mapstructure:"relations"`
	Optionals  bool `mapstructure:"optionals"`
	SkipSchema bool `mapstructure:"skip_schema"`

	// Journal is a SQLite file recording runs; empty disables it.
	Journal string `mapstructure:"journal"`

	Metrics Metrics `mapstructure:"metrics"`
	Log     Log     `mapstructure:"log"`
}

// Conn identifies the target database. Empty fields fall back to the
// client's own defaults (PGHOST etc.).
type Conn struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Loader selects how rows reach the database.
type Loader struct {
	// Kind is "psql" (subprocess) or "pgx" (in-process COPY).
	Kind string `mapstructure:"kind"`
	// PSQLPath is the psql executable for Kind "psql".
	PSQLPath string `mapstructure:"psql_path"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Job:       "so2pg",
		Loader:    Loader{Kind: "psql", PSQLPath: "psql"},
		Delimiter: `\x0B`,
		Metrics:   Metrics{Backend: "none"},
		Log:       Log{Level: "info", Format: "console"},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are honoured by Unmarshal even when no file or flag sets them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("job", d.Job)
	v.SetDefault("directory", d.Directory)
	v.SetDefault("conn.host", d.Conn.Host)
	v.SetDefault("conn.port", d.Conn.Port)
	v.SetDefault("conn.database", d.Conn.Database)
	v.SetDefault("conn.user", d.Conn.User)
	v.SetDefault("conn.password", d.Conn.Password)
	v.SetDefault("loader.kind", d.Loader.Kind)
	v.SetDefault("loader.psql_path", d.Loader.PSQLPath)
	v.SetDefault("delimiter", d.Delimiter)
	v.SetDefault("relations", d.Relations)
	v.SetDefault("optionals", d.Optionals)
	v.SetDefault("skip_schema", d.SkipSchema)
	v.SetDefault("journal", d.Journal)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.pushgateway_url", d.Metrics.PushgatewayURL)
	v.SetDefault("metrics.datadog_addr", d.Metrics.DatadogAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load resolves a Config from v. Flags must already be bound by the caller.
// A non-empty file is read first; its format follows the extension.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return c, nil
}

// DelimiterByte decodes Delimiter.
func (c Config) DelimiterByte() (byte, error) {
	return ParseDelimiter(c.Delimiter)
}

// ParseDelimiter accepts a single byte or one of the escapes `\xHH`, `0xHH`,
// `\t`, `\v`.
func ParseDelimiter(s string) (byte, error) {
	switch {
	case len(s) == 1:
		return s[0], nil
	case s == `\t`:
		return '\t', nil
	case s == `\v`:
		return '\v', nil
	case len(s) == 4 && (strings.HasPrefix(s, `\x`) || strings.HasPrefix(strings.ToLower(s), "0x")):
		n, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("config: delimiter %q: %w", s, err)
		}
		return byte(n), nil
	}
	return 0, fmt.Errorf("config: delimiter %q: want one byte or an escape like \\x0B", s)
}

// DSN renders the connection as a postgres:// URL for pgx.
func (c Conn) DSN() string {
	u := url.URL{Scheme: "postgres", Path: "/" + c.Database}
	switch {
	case c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	host := c.Host
	if c.Port != "" {
		if host == "" {
			host = "localhost"
		}
		host = net.JoinHostPort(host, c.Port)
	}
	u.Host = host
	return u.String()
}
