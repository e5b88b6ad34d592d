// Package importer drives an import run: it walks a dump directory, maps each
// XML file to its dataset, and streams the file's rows into the database
// through a loader.Loader, one file at a time.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"so2pg/internal/dataset"
	"so2pg/internal/datasource"
	"so2pg/internal/datasource/file"
	"so2pg/internal/journal"
	"so2pg/internal/loader"
	"so2pg/internal/metrics"
	xmlparser "so2pg/internal/parser/xml"
)

// State is the phase an Importer is in.
type State string

// A file passes through Resolving (dataset lookup), Transforming (required
// attributes and load command) and Loading. Loading covers the whole Load
// call: rows are parsed and streamed into the loader concurrently, so there
// is no separate parsing phase to report.
const (
	StateIdle          State = "idle"
	StateSchemaEnsured State = "schema_ensured"
	StateResolving     State = "resolving"
	StateTransforming  State = "transforming"
	StateLoading       State = "loading"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// newSource opens dump files; tests replace it.
var newSource = func(path string) datasource.Source { return file.NewLocal(path) }

// ErrRunning is returned by Run when the importer is already running.
var ErrRunning = errors.New("importer: run already in progress")

// SchemaEnsurer creates the target schema. Prepare runs before any file is
// loaded, Finish after the last one.
type SchemaEnsurer interface {
	Prepare(ctx context.Context) error
	Finish(ctx context.Context) error
}

// Journal records runs and file outcomes. *journal.Journal implements it.
type Journal interface {
	StartRun(ctx context.Context, run journal.Run) error
	RecordFile(ctx context.Context, f journal.File) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, runErr error) error
}

// FileResult is the outcome of one file.
type FileResult struct {
	File     string // base name, e.g. Badges.xml
	Dataset  string
	Table    string
	Rows     int64
	Bytes    int64
	Digest   uint64 // xxh3 of the emitted line stream
	Duration time.Duration
	Err      error
}

// Summary describes a finished (or failed) run. Files holds every file that
// was attempted, the failing one last.
type Summary struct {
	RunID    string
	Files    []FileResult
	Duration time.Duration
}

// Rows sums rows over all files.
func (s Summary) Rows() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.Rows
	}
	return n
}

// Importer runs imports. A single Importer runs one import at a time.
type Importer struct {
	reg      *dataset.Registry
	ld       loader.Loader
	logger   *zap.Logger
	progress io.Writer
	delim    byte
	schema   SchemaEnsurer
	journal  Journal
	job      string
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	state   State
	running bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

// WithProgress sets where human-readable progress lines go.
func WithProgress(w io.Writer) Option {
	return func(im *Importer) {
		im.progress = w
	}
}

// WithDelimiter sets the field delimiter of the emitted lines.
func WithDelimiter(d byte) Option {
	return func(im *Importer) {
		im.delim = d
	}
}

// WithSchema creates the schema around the file loop. Without it tables
// must already exist.
func WithSchema(s SchemaEnsurer) Option {
	return func(im *Importer) {
		im.schema = s
	}
}

// WithJournal records the run and each file outcome in j.
func WithJournal(j Journal) Option {
	return func(im *Importer) {
		im.journal = j
	}
}

// WithJob sets the job label used for metrics and the journal.
func WithJob(job string) Option {
	return func(im *Importer) {
		im.job = job
	}
}

// WithClock replaces time.Now for durations and journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		im.now = now
	}
}

// New returns an Importer resolving files against reg and loading them with ld.
func New(reg *dataset.Registry, ld loader.Loader, opts ...Option) (*Importer, error) {
	if reg == nil {
		return nil, errors.New("importer: registry is required")
	}
	if ld == nil {
		return nil, errors.New("importer: loader is required")
	}
	im := &Importer{
		reg:      reg,
		ld:       ld,
		logger:   zap.NewNop(),
		progress: io.Discard,
		delim:    xmlparser.DefaultDelimiter,
		job:      "so2pg",
		now:      time.Now,
		newID:    uuid.NewString,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im, nil
}

// State reports the current phase. It is safe to call from any goroutine.
func (im *Importer) State() State {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.state
}

func (im *Importer) setState(to State) {
	im.mu.Lock()
	from := im.state
	im.state = to
	im.mu.Unlock()

	if from != to {
		im.logger.Debug("importer: state", zap.String("from", string(from)), zap.String("to", string(to)))
	}
}

// Run imports every dataset file in dir, in directory-listing order. The first
// error stops the run; files loaded before it stay loaded.
func (im *Importer) Run(ctx context.Context, dir string) (Summary, error) {
	im.mu.Lock()
	if im.running {
		im.mu.Unlock()
		return Summary{}, ErrRunning
	}
	im.running = true
	im.mu.Unlock()
	defer func() {
		im.mu.Lock()
		im.running = false
		im.mu.Unlock()
	}()

	im.setState(StateIdle)
	start := im.now()
	sum := Summary{RunID: im.newID()}
	log := im.logger.With(zap.String("run_id", sum.RunID), zap.String("job", im.job))
	log.Info("importer: run started", zap.String("directory", dir))

	var err error
	journaled := false
	if im.journal != nil {
		err = im.journal.StartRun(ctx, journal.Run{ID: sum.RunID, Job: im.job, Directory: dir, StartedAt: start})
		journaled = err == nil
	}
	if err == nil {
		err = im.run(ctx, log, dir, &sum)
	}
	sum.Duration = im.now().Sub(start)
	metrics.RecordStep(im.job, "", "run", err, sum.Duration)

	if journaled {
		// recorded even when ctx was canceled
		jctx := context.WithoutCancel(ctx)
		if jerr := im.journal.FinishRun(jctx, sum.RunID, start.Add(sum.Duration), err); jerr != nil {
			log.Warn("importer: journal finish failed", zap.Error(jerr))
		}
	}

	if err != nil {
		im.setState(StateFailed)
		log.Error("importer: run failed", zap.Error(err), zap.Duration("duration", sum.Duration))
		return sum, err
	}
	im.setState(StateDone)
	fmt.Fprintf(im.progress, "Import completed in %s\n", seconds(sum.Duration))
	log.Info("importer: run completed",
		zap.Int("files", len(sum.Files)),
		zap.Int64("rows", sum.Rows()),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (im *Importer) run(ctx context.Context, log *zap.Logger, dir string, sum *Summary) error {
	if im.schema != nil {
		t0 := im.now()
		err := im.schema.Prepare(ctx)
		metrics.RecordStep(im.job, "", "schema", err, im.now().Sub(t0))
		if err != nil {
			return fmt.Errorf("importer: prepare schema: %w", err)
		}
	}
	im.setState(StateSchemaEnsured)

	entries, err := file.ListDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("importer: %w", err)
	}

	for _, e := range entries {
		if e.IsDir || !isXML(e.Name) {
			log.Debug("importer: skipped", zap.String("file", e.Name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := im.importFile(ctx, log, e)
		sum.Files = append(sum.Files, res)
		metrics.RecordFile(im.job, err)
		im.record(ctx, log, sum.RunID, res)
		if err != nil {
			return err
		}
	}

	if im.schema != nil {
		t0 := im.now()
		err := im.schema.Finish(ctx)
		metrics.RecordStep(im.job, "", "finish", err, im.now().Sub(t0))
		if err != nil {
			return fmt.Errorf("importer: finish schema: %w", err)
		}
	}
	return nil
}

func (im *Importer) importFile(ctx context.Context, log *zap.Logger, e file.Entry) (FileResult, error) {
	name := strings.TrimSuffix(e.Name, filepath.Ext(e.Name))
	res := FileResult{File: e.Name, Dataset: name}

	im.setState(StateResolving)
	t0 := im.now()
	d, err := im.reg.Resolve(name)
	metrics.RecordStep(im.job, name, "resolve", err, im.now().Sub(t0))
	if err != nil {
		res.Err = err
		return res, fmt.Errorf("importer: %s: %w", e.Name, err)
	}
	res.Dataset, res.Table = d.Name(), d.Table()

	im.setState(StateTransforming)
	attrs := dataset.RequiredAttributes(d)
	command := loader.BuildCopyCommand(dataset.BuildColumnSpec(d), im.delim)

	fmt.Fprintf(im.progress, "Importing file %s...\n", e.Name)
	log.Debug("importer: loading", zap.String("file", e.Path), zap.String("command", command))

	var st xmlparser.Stats
	h := xxh3.New()
	src := newSource(e.Path)
	feed := func(w io.Writer) error {
		rc, err := src.Open(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()

		var terr error
		st, terr = xmlparser.Transform(ctx, rc, attrs, io.MultiWriter(w, h), xmlparser.Options{Delimiter: im.delim})
		return terr
	}

	start := im.now()
	im.setState(StateLoading)
	err = im.ld.Load(ctx, command, feed)
	res.Duration = im.now().Sub(start)
	res.Rows, res.Bytes, res.Digest = st.Rows, st.Bytes, h.Sum64()

	metrics.RecordStep(im.job, res.Dataset, "load", err, res.Duration)
	metrics.RecordRows(im.job, res.Dataset, st.Rows)
	metrics.RecordBytes(im.job, res.Dataset, st.Bytes)

	if err != nil {
		res.Err = err
		return res, fmt.Errorf("importer: load %s: %w", e.Name, err)
	}

	fmt.Fprintf(im.progress, "   -> %s\n", seconds(res.Duration))
	log.Info("importer: file loaded",
		zap.String("file", e.Name),
		zap.String("dataset", res.Dataset),
		zap.String("table", res.Table),
		zap.Int64("rows", res.Rows),
		zap.Int64("bytes", res.Bytes),
		zap.String("digest", fmt.Sprintf("%016x", res.Digest)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// record writes res to the journal. Journal failures are logged, not fatal.
func (im *Importer) record(ctx context.Context, log *zap.Logger, runID string, res FileResult) {
	if im.journal == nil {
		return
	}
	f := journal.File{
		RunID:    runID,
		File:     res.File,
		Dataset:  res.Dataset,
		Table:    res.Table,
		Rows:     res.Rows,
		Bytes:    res.Bytes,
		Digest:   res.Digest,
		Duration: res.Duration,
		Status:   journal.StatusSuccess,
	}
	if res.Err != nil {
		f.Status, f.Error = journal.StatusFailure, res.Err.Error()
	}
	if err := im.journal.RecordFile(context.WithoutCancel(ctx), f); err != nil {
		log.Warn("importer: journal record failed", zap.String("file", res.File), zap.Error(err))
	}
}

func isXML(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
