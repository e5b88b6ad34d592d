package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"so2pg/internal/dataset"
	"so2pg/internal/datasource/file"
	"so2pg/internal/inspect"
	xmlparser "so2pg/internal/parser/xml"
)

type inspectResult struct {
	File     string            `yaml:"file"`
	Report   inspect.Report    `yaml:"report"`
	Coverage *inspect.Coverage `yaml:"coverage,omitempty"`
	Note     string            `yaml:"note,omitempty"`
}

func newInspectCommand(stdout io.Writer) *cobra.Command {
	var (
		output   string
		maxBytes int64
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Survey dump files and compare them with the tables they load into",
		Long: `inspect reads each file's rows and reports the attributes found, the
attributes the table does not load, the loaded attributes that never occur,
and values longer than their varchar column. With --bytes only a prefix of
each file is read; the cut-off row is ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := dataset.Default()
			var results []inspectResult
			failed := false

			for _, path := range args {
				res, err := inspectFile(cmd, reg, path, maxBytes)
				if err != nil {
					return err
				}
				if res.Coverage != nil && !res.Coverage.OK() {
					failed = true
				}
				results = append(results, res)
			}

			if err := writeInspect(stdout, output, results); err != nil {
				return err
			}
			if failed {
				return fmt.Errorf("inspect: some values exceed their column size")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	cmd.Flags().Int64Var(&maxBytes, "bytes", 0, "read at most this many bytes per file; 0 reads everything")
	return cmd
}

func inspectFile(cmd *cobra.Command, reg *dataset.Registry, path string, maxBytes int64) (inspectResult, error) {
	res := inspectResult{File: filepath.Base(path)}

	rc, err := file.NewLocal(path).Open(cmd.Context())
	if err != nil {
		return res, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes)
	}
	res.Report, err = inspect.Survey(cmd.Context(), r, xmlparser.Options{})
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	name := strings.TrimSuffix(res.File, filepath.Ext(res.File))
	d, err := reg.Resolve(name)
	if err != nil {
		res.Note = err.Error()
		return res, nil
	}
	cov := inspect.Check(res.Report, d)
	res.Coverage = &cov
	return res, nil
}

func writeInspect(w io.Writer, output string, results []inspectResult) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("inspect: encode: %w", err)
		}
		return enc.Close()
	case "text":
	default:
		return fmt.Errorf("inspect: unknown output %q; want text or yaml", output)
	}

	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		trunc := ""
		if res.Report.Truncated {
			trunc = " (truncated)"
		}
		fmt.Fprintf(w, "%s: %d rows%s\n", res.File, res.Report.Rows, trunc)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ATTRIBUTE\tROWS\tMAX_LEN\tEXAMPLE")
		for _, name := range res.Report.Names() {
			st := res.Report.Attributes[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, st.Rows, st.MaxLen, st.Example)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		switch {
		case res.Note != "":
			fmt.Fprintf(w, "note: %s\n", res.Note)
		case res.Coverage != nil:
			c := res.Coverage
			if len(c.Unloaded) > 0 {
				fmt.Fprintf(w, "not loaded: %s\n", strings.Join(c.Unloaded, ", "))
			}
			if len(c.Absent) > 0 {
				fmt.Fprintf(w, "never present: %s\n", strings.Join(c.Absent, ", "))
			}
			for _, o := range c.Overflows {
				fmt.Fprintf(w, "too long: %s (%s) max %d > varchar(%d)\n", o.Attribute, o.Column, o.MaxLen, o.Limit)
			}
		}
	}
	return nil
}

