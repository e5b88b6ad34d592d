// Command so2pg imports a StackExchange data dump (Badges.xml, Posts.xml, ...)
// into PostgreSQL, streaming every file through COPY.
//
//	so2pg -d stackoverflow -D /data/stackoverflow.com -R -O
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"so2pg/internal/config"
	"so2pg/internal/dataset"
	"so2pg/internal/importer"
	"so2pg/internal/journal"
	"so2pg/internal/loader"
	"so2pg/internal/logging"
	"so2pg/internal/metrics"
	"so2pg/internal/metrics/datadog"
	"so2pg/internal/metrics/prompush"
	"so2pg/internal/schema"
)

// errInvalidConfig is returned after the validation issues were printed.
var errInvalidConfig = errors.New("configuration is invalid")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "so2pg: %v\n", err)
		os.Exit(1)
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"job":                   "job",
	"directory":             "directory",
	"host":                  "conn.host",
	"port":                  "conn.port",
	"database":              "conn.database",
	"user":                  "conn.user",
	"password":              "conn.password",
	"loader":                "loader.kind",
	"psql-path":             "loader.psql_path",
	"delimiter":             "delimiter",
	"include-relationships": "relations",
	"include-optionals":     "optionals",
	"skip-schema":           "skip_schema",
	"journal":               "journal",
	"metrics-backend":       "metrics.backend",
	"pushgateway-url":       "metrics.pushgateway_url",
	"datadog-addr":          "metrics.datadog_addr",
	"log-level":             "log.level",
	"log-format":            "log.format",
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var cfgFile string
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "so2pg",
		Short: "Import a StackExchange data dump into PostgreSQL",
		Long: `so2pg streams every <Dataset>.xml file of a StackExchange dump directory
into its PostgreSQL table with COPY. Tables are created first; foreign keys
(-R) and the seeded lookup tables (-O) are added once all data is loaded.

Settings come from flags, SO2PG_* environment variables (a .env file in the
working directory is loaded first) and an optional --config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is normal
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cfgFile, stderr)
			if err != nil {
				return err
			}
			if validateOnly {
				fmt.Fprintln(stdout, "configuration is valid")
				return nil
			}
			return runImport(cmd.Context(), cfg, stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	d := config.Default()
	f := cmd.Flags()
	f.StringP("host", "H", "", "database host")
	f.StringP("database", "d", "", "database name (required)")
	f.StringP("directory", "D", "", "dump directory holding the XML files (required)")
	f.StringP("user", "u", "", "database user")
	f.StringP("password", "p", "", "database password; visible in process listings, prefer SO2PG_CONN_PASSWORD or a .env file")
	f.StringP("port", "P", "", "database port")
	f.BoolP("include-optionals", "O", false, "create and seed the optional lookup tables")
	f.BoolP("include-relationships", "R", false, "add foreign keys after loading")
	f.String("loader", d.Loader.Kind, "how rows reach the database: psql or pgx")
	f.String("psql-path", d.Loader.PSQLPath, "psql executable")
	f.Bool("skip-schema", false, "do not create tables; load into existing ones")
	f.String("delimiter", d.Delimiter, `field delimiter: one byte or an escape such as \x0B`)
	f.String("journal", "", "record runs in this SQLite file")
	f.String("job", d.Job, "job name for metrics and the journal")
	f.String("metrics-backend", d.Metrics.Backend, "metrics backend: none, pushgateway or datadog")
	f.String("pushgateway-url", "", "Pushgateway base URL")
	f.String("datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")
	f.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	f.String("log-format", d.Log.Format, "log format: console or json")
	f.StringVar(&cfgFile, "config", "", "YAML, JSON or TOML config file")
	f.BoolVar(&validateOnly, "validate", false, "validate the configuration and exit")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, f.Lookup(name))
	}

	cmd.AddCommand(newDatasetsCommand(stdout))
	cmd.AddCommand(newRunsCommand(stdout))
	cmd.AddCommand(newInspectCommand(stdout))
	return cmd
}

// loadConfig resolves and validates the configuration, printing every issue
// to stderr.
func loadConfig(v *viper.Viper, cfgFile string, stderr io.Writer) (config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.Err(issues) != nil {
		return config.Config{}, errInvalidConfig
	}
	return cfg, nil
}

// dbClient loads rows and runs schema statements.
type dbClient interface {
	loader.Loader
	schema.Execer
}

func newClient(ctx context.Context, cfg config.Config, log *zap.Logger) (dbClient, func(), error) {
	switch cfg.Loader.Kind {
	case "pgx":
		p, closeFn, err := loader.Dial(ctx, cfg.Conn.DSN(), log.Named("loader"))
		if err != nil {
			return nil, nil, err
		}
		return p, closeFn, nil
	default:
		return &loader.PSQL{
			Path:     cfg.Loader.PSQLPath,
			Database: cfg.Conn.Database,
			Host:     cfg.Conn.Host,
			Port:     cfg.Conn.Port,
			User:     cfg.Conn.User,
			Password: cfg.Conn.Password,
			Logger:   log.Named("loader"),
		}, func() {}, nil
	}
}

// setupMetrics installs the configured backend and returns its flush.
func setupMetrics(cfg config.Config, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  "so2pg.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
	default:
		return func() {}
	}
	if err != nil {
		log.Warn("metrics: backend disabled", zap.String("backend", cfg.Metrics.Backend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	log.Debug("metrics: enabled", zap.String("backend", cfg.Metrics.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush failed", zap.Error(err))
		}
	}
}

func runImport(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	flush := setupMetrics(cfg, log)
	defer flush()

	delim, err := cfg.DelimiterByte()
	if err != nil {
		return err
	}

	client, closeClient, err := newClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeClient()

	reg := dataset.Default()
	opts := []importer.Option{
		importer.WithLogger(log.Named("importer")),
		importer.WithProgress(stdout),
		importer.WithDelimiter(delim),
		importer.WithJob(cfg.Job),
	}
	if !cfg.SkipSchema {
		opts = append(opts, importer.WithSchema(&schema.Ensurer{
			DB:        client,
			Registry:  reg,
			Relations: cfg.Relations,
			Optionals: cfg.Optionals,
			Logger:    log.Named("schema"),
		}))
	}
	if cfg.Journal != "" {
		j, closeJournal, err := journal.Open(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer closeJournal()
		opts = append(opts, importer.WithJournal(j))
	}

	im, err := importer.New(reg, client, opts...)
	if err != nil {
		return err
	}
	_, err = im.Run(ctx, cfg.Directory)
	return err
}
