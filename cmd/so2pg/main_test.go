package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	helperEnv = "GO_WANT_MAIN_HELPER"

	// fakePSQLEnv names a directory; when set, the test binary acts as psql
	// and records each invocation there.
	fakePSQLEnv = "FAKE_PSQL_DIR"
)

func TestMain(m *testing.M) {
	if dir := os.Getenv(fakePSQLEnv); dir != "" && os.Getenv(helperEnv) == "" {
		os.Exit(fakePSQL(dir, os.Args[1:]))
	}
	os.Exit(m.Run())
}

// fakePSQL stores the -c statement and stdin of one call as <n>.cmd and
// <n>.stdin. Input containing "fail_me" exits 3 like a failed COPY.
func fakePSQL(dir string, args []string) int {
	in, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 10
	}
	stmt := ""
	for i, a := range args {
		if a == "-c" && i+1 < len(args) {
			stmt = args[i+1]
		}
	}
	n, _ := filepath.Glob(filepath.Join(dir, "*.cmd"))
	base := filepath.Join(dir, fmt.Sprintf("%03d", len(n)))
	_ = os.WriteFile(base+".stdin", in, 0o644)
	_ = os.WriteFile(base+".cmd", []byte(stmt), 0o644)
	if strings.Contains(string(in), "fail_me") {
		fmt.Fprintln(os.Stderr, "ERROR:  value too long for type character varying(150)")
		return 3
	}
	return 0
}

type psqlCall struct {
	Command string
	Stdin   string
}

func readCalls(t *testing.T, dir string) []psqlCall {
	t.Helper()
	cmds, err := filepath.Glob(filepath.Join(dir, "*.cmd"))
	require.NoError(t, err)
	sort.Strings(cmds)

	var out []psqlCall
	for _, c := range cmds {
		cmd, err := os.ReadFile(c)
		require.NoError(t, err)
		in, err := os.ReadFile(strings.TrimSuffix(c, ".cmd") + ".stdin")
		require.NoError(t, err)
		out = append(out, psqlCall{Command: string(cmd), Stdin: string(in)})
	}
	return out
}

// TestHelperProcess runs main() with the arguments after "--" when
// GO_WANT_MAIN_HELPER=1.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	sep := -1
	for i, a := range args {
		if a == "--" {
			sep = i
			break
		}
	}
	if sep >= 0 {
		os.Args = append([]string{args[0]}, args[sep+1:]...)
	} else {
		os.Args = []string{args[0]}
	}
	main()
	os.Exit(0)
}

func runMainSubprocess(t *testing.T, workdir string, flags ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--")
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	cmd.Args = append(cmd.Args, flags...)
	if workdir != "" {
		cmd.Dir = workdir
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// execute runs the root command in-process.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	cmd := newRootCommand(&outBuf, &errBuf)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

const (
	badgesXML = `<?xml version="1.0" encoding="utf-8"?>
<badges>
  <row Id="1" UserId="2" Name="Autobiographer" Date="2010-07-20T19:07:22.990" Class="3" TagBased="False" />
</badges>`
	tagsXML = `<?xml version="1.0" encoding="utf-8"?>
<tags>
  <row Id="1" TagName="go" Count="7" />
</tags>`
)

func dumpDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestMain_MissingRequiredExitsNonZero(t *testing.T) {
	stdout, stderr, err := runMainSubprocess(t, t.TempDir())

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "err = %v", err)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "error: directory: directory is required")
	assert.Contains(t, stderr, "error: conn.database: database is required")
	assert.Contains(t, stderr, "so2pg: configuration is invalid")
}

func TestMain_ValidateOnly(t *testing.T) {
	dir := t.TempDir()
	stdout, stderr, err := execute(t, "-d", "so", "-D", dir, "--validate")
	require.NoError(t, err, stderr)
	assert.Equal(t, "configuration is valid\n", stdout)
}

func TestMain_WarningsDoNotBlock(t *testing.T) {
	dir := t.TempDir()
	_, stderr, err := execute(t, "-d", "so", "-D", dir, "-O", "--validate")
	require.NoError(t, err)
	assert.Contains(t, stderr, "warning: optionals:")
}

func TestMain_EnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "so2pg.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("directory: "+dir+"\nloader:\n  kind: pgx\n"), 0o644))
	t.Setenv("SO2PG_CONN_DATABASE", "fromenv")

	stdout, stderr, err := execute(t, "--config", cfgFile, "--validate")
	require.NoError(t, err, stderr)
	assert.Equal(t, "configuration is valid\n", stdout)
}

func TestMain_InvalidFlagValue(t *testing.T) {
	_, stderr, err := execute(t, "-d", "so", "-D", t.TempDir(), "--loader", "odbc")
	assert.ErrorIs(t, err, errInvalidConfig)
	assert.Contains(t, stderr, "loader.kind")
}

func TestMain_ImportWithPSQL(t *testing.T) {
	calls := t.TempDir()
	t.Setenv(fakePSQLEnv, calls)
	dump := dumpDir(t, map[string]string{"Badges.xml": badgesXML, "Tags.xml": tagsXML, "notes.md": "#"})
	journalPath := filepath.Join(t.TempDir(), "runs.db")

	stdout, stderr, err := execute(t,
		"-d", "stackoverflow", "-D", dump, "-H", "db.local", "-p", "secret", "-R",
		"--psql-path", os.Args[0],
		"--journal", journalPath,
		"--log-level", "error",
	)
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "Importing file Badges.xml...")
	assert.Contains(t, stdout, "Importing file Tags.xml...")
	assert.Contains(t, stdout, "Import completed in ")

	got := readCalls(t, calls)
	var creates, fks int
	copies := map[string]string{}
	for _, c := range got {
		switch {
		case strings.HasPrefix(c.Command, "CREATE TABLE"):
			creates++
		case strings.Contains(c.Command, "FOREIGN KEY"):
			fks++
		case strings.HasPrefix(c.Command, "COPY "):
			copies[c.Command] = c.Stdin
		}
	}
	assert.Equal(t, 8, creates, "one table per dataset")
	assert.Positive(t, fks, "relationships requested with -R")
	assert.Equal(t, map[string]string{
		`COPY badges(class,date,id,name,tag_based,user_id) FROM STDIN WITH (FORMAT csv, DELIMITER E'\x0B')`: "3\v2010-07-20T19:07:22.990\v1\vAutobiographer\vFalse\v2\n",
		`COPY tags(count,excerpt_post_id,id,tag_name,wiki_post_id) FROM STDIN WITH (FORMAT csv, DELIMITER E'\x0B')`: "7\v\v1\vgo\v\n",
	}, copies)

	// tables come before data, relationships after
	assert.True(t, strings.HasPrefix(got[0].Command, "CREATE TABLE"))
	assert.Contains(t, got[len(got)-1].Command, "FOREIGN KEY")

	stdout, _, err = execute(t, "runs", "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "success")
	assert.Contains(t, stdout, dump)
}

func TestMain_ImportFailsOnLoaderError(t *testing.T) {
	calls := t.TempDir()
	t.Setenv(fakePSQLEnv, calls)
	dump := dumpDir(t, map[string]string{
		"Tags.xml": `<tags><row Id="1" TagName="fail_me" Count="1" /></tags>`,
	})

	stdout, _, err := execute(t, "-d", "so", "-D", dump, "--psql-path", os.Args[0], "--skip-schema", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit")
	assert.Contains(t, stdout, "Importing file Tags.xml...")
	assert.NotContains(t, stdout, "Import completed")

	got := readCalls(t, calls)
	require.Len(t, got, 1, "no schema statements with --skip-schema")
	assert.True(t, strings.HasPrefix(got[0].Command, "COPY tags("))
}

func TestMain_ImportFailsOnUnknownDataset(t *testing.T) {
	calls := t.TempDir()
	t.Setenv(fakePSQLEnv, calls)
	dump := dumpDir(t, map[string]string{"Frobnicate.xml": tagsXML})

	_, _, err := execute(t, "-d", "so", "-D", dump, "--psql-path", os.Args[0], "--skip-schema", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown dataset "Frobnicate"`)
	assert.Empty(t, readCalls(t, calls))
}

func TestDatasets_Text(t *testing.T) {
	stdout, _, err := execute(t, "datasets")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 9, "header plus eight datasets")
	assert.Contains(t, lines[0], "FILE")
	assert.Contains(t, stdout, "Badges.xml")
	assert.Contains(t, stdout, "class,date,id,name,tag_based,user_id")
}

func TestDatasets_YAML(t *testing.T) {
	stdout, _, err := execute(t, "datasets", "-o", "yaml")
	require.NoError(t, err)

	var infos []datasetInfo
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &infos))
	require.Len(t, infos, 8)

	byName := map[string]datasetInfo{}
	for _, in := range infos {
		byName[in.Name] = in
	}
	b := byName["Badges"]
	assert.Equal(t, "badges", b.Table)
	assert.Equal(t, []string{"Class", "Date", "Id", "Name", "TagBased", "UserId"}, b.Attributes)
	assert.Equal(t, `COPY badges(class,date,id,name,tag_based,user_id) FROM STDIN WITH (FORMAT csv, DELIMITER E'\x0B')`, b.Command)
}

func TestDatasets_UnknownOutput(t *testing.T) {
	_, _, err := execute(t, "datasets", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output")
}

func TestRuns_RequiresJournal(t *testing.T) {
	_, _, err := execute(t, "runs")
	assert.ErrorContains(t, err, "--journal is required")
}

func TestInspect_Text(t *testing.T) {
	dump := dumpDir(t, map[string]string{"Tags.xml": tagsXML})

	stdout, _, err := execute(t, "inspect", filepath.Join(dump, "Tags.xml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tags.xml: 1 rows")
	assert.Contains(t, stdout, "TagName")
	assert.Contains(t, stdout, "never present: ExcerptPostId, WikiPostId")
}

func TestInspect_OverflowFails(t *testing.T) {
	long := strings.Repeat("y", 151)
	dump := dumpDir(t, map[string]string{
		"Tags.xml":  `<tags><row Id="1" TagName="` + long + `" /></tags>`,
		"Other.xml": `<x><row A="1" /></x>`,
	})

	stdout, _, err := execute(t, "inspect", "-o", "yaml",
		filepath.Join(dump, "Tags.xml"), filepath.Join(dump, "Other.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed their column size")

	var results []inspectResult
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Coverage)
	require.Len(t, results[0].Coverage.Overflows, 1)
	assert.Equal(t, 151, results[0].Coverage.Overflows[0].MaxLen)
	assert.Nil(t, results[1].Coverage)
	assert.Contains(t, results[1].Note, "unknown dataset")
}

func TestInspect_BytesPrefix(t *testing.T) {
	dump := dumpDir(t, map[string]string{"Badges.xml": badgesXML})

	stdout, _, err := execute(t, "inspect", "--bytes", "100", filepath.Join(dump, "Badges.xml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Badges.xml: 0 rows (truncated)")
}

func TestMain_PasswordHelpPointsToEnv(t *testing.T) {
	f := newRootCommand(io.Discard, io.Discard).Flags().Lookup("password")
	require.NotNil(t, f)
	assert.Equal(t, "p", f.Shorthand)
	assert.Contains(t, f.Usage, "SO2PG_CONN_PASSWORD")
	assert.Contains(t, f.Usage, ".env")
}
