package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"so2pg/internal/dataset"
	"so2pg/internal/loader"
	xmlparser "so2pg/internal/parser/xml"
)

type datasetInfo struct {
	Name       string   `yaml:"name"`
	File       string   `yaml:"file"`
	Table      string   `yaml:"table"`
	Columns    []string `yaml:"columns"`
	Attributes []string `yaml:"attributes"`
	Command    string   `yaml:"command"`
}

func describeDatasets(reg *dataset.Registry, delim byte) []datasetInfo {
	var out []datasetInfo
	for _, d := range reg.Descriptors() {
		spec := dataset.BuildColumnSpec(d)
		out = append(out, datasetInfo{
			Name:       d.Name(),
			File:       d.Name() + ".xml",
			Table:      d.Table(),
			Columns:    spec.Columns,
			Attributes: dataset.RequiredAttributes(d),
			Command:    loader.BuildCopyCommand(spec, delim),
		})
	}
	return out
}

func newDatasetsCommand(stdout io.Writer) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the known dump files and the tables they load into",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := describeDatasets(dataset.Default(), xmlparser.DefaultDelimiter)
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(stdout)
				enc.SetIndent(2)
				if err := enc.Encode(infos); err != nil {
					return fmt.Errorf("datasets: encode: %w", err)
				}
				return enc.Close()
			case "text":
				tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FILE\tTABLE\tCOLUMNS")
				for _, in := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", in.File, in.Table, strings.Join(in.Columns, ","))
				}
				return tw.Flush()
			}
			return fmt.Errorf("datasets: unknown output %q; want text or yaml", output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}
