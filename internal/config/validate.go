package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path is the dotted config key
// ("conn.database").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate checks c without mutating it. It stats Directory, so results
// depend on the filesystem.
func (c Config) Validate() []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Directory) == "" {
		add(SeverityError, "directory", "directory is required")
	} else if fi, err := os.Stat(c.Directory); err != nil {
		add(SeverityError, "directory", "cannot read directory: %v", err)
	} else if !fi.IsDir() {
		add(SeverityError, "directory", "%s is not a directory", c.Directory)
	}

	if strings.TrimSpace(c.Conn.Database) == "" {
		add(SeverityError, "conn.database", "database is required")
	}
	if c.Conn.Port != "" {
		if n, err := strconv.Atoi(c.Conn.Port); err != nil || n <= 0 || n > 65535 {
			add(SeverityError, "conn.port", "port %q is not a TCP port number", c.Conn.Port)
		}
	}

	switch c.Loader.Kind {
	case "psql":
		if strings.TrimSpace(c.Loader.PSQLPath) == "" {
			add(SeverityError, "loader.psql_path", "psql loader requires a psql executable")
		}
	case "pgx":
	default:
		add(SeverityError, "loader.kind", "unknown loader %q; want psql or pgx", c.Loader.Kind)
	}

	if d, err := c.DelimiterByte(); err != nil {
		add(SeverityError, "delimiter", "%v", err)
	} else if d == 0 || d == '\n' || d == '\r' || d == '"' {
		add(SeverityError, "delimiter", "delimiter %q conflicts with line framing or CSV quoting", d)
	}

	if c.Optionals && !c.Relations {
		add(SeverityWarning, "optionals", "lookup tables are created without foreign keys unless relations are enabled")
	}
	if c.SkipSchema && (c.Relations || c.Optionals) {
		add(SeverityWarning, "skip_schema", "skip_schema disables relations and optionals")
	}

	switch c.Metrics.Backend {
	case "", "none":
	case "pushgateway":
		if c.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "pushgateway backend requires a URL")
		}
	case "datadog":
		if c.Metrics.DatadogAddr == "" {
			add(SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", c.Metrics.Backend)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add(SeverityError, "log.level", "%v", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		add(SeverityError, "log.format", "unknown log format %q; want console or json", c.Log.Format)
	}

	return issues
}

// Err joins the error-severity issues, or returns nil if there are none.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}
