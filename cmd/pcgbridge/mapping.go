package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/pcgbridge/pkg/attrib"
	"github.com/chazu/pcgbridge/pkg/cook"
)

type mappingRow struct {
	Descriptor string `yaml:"descriptor"`
	Type       string `yaml:"type,omitempty"`
	Domain     string `yaml:"domain,omitempty"`
	Convert    string `yaml:"convert,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

func newMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mapping <name:owner:storage:tuple[:info][:array]>...",
		Short: "Show how attribute descriptors map to point data types",
		Example: `  pcgbridge mapping Cd:point:float:3:color density:point:float:1 tags:detail:string:1:none:array`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]mappingRow, 0, len(args))
			for _, arg := range args {
				d, err := parseDescriptor(arg)
				if err != nil {
					return err
				}
				row := mappingRow{Descriptor: d.String()}
				m, err := attrib.Map(d)
				if err != nil {
					row.Error = err.Error()
				} else {
					row.Type = m.Type.String()
					row.Domain = m.Domain.String()
					row.Convert = m.Convert.String()
				}
				rows = append(rows, row)
			}
			return writeYAML(cmd.OutOrStdout(), rows)
		},
	}
}

// parseDescriptor reads name:owner:storage:tuple[:info][:array].
func parseDescriptor(s string) (cook.AttributeDescriptor, error) {
	f := strings.Split(s, ":")
	if len(f) < 4 || len(f) > 6 {
		return cook.AttributeDescriptor{}, fmt.Errorf("invalid descriptor %q, expected name:owner:storage:tuple[:info][:array]", s)
	}
	d := cook.AttributeDescriptor{Name: f[0]}
	var err error
	if d.Owner, err = cook.ParseOwner(f[1]); err != nil {
		return d, err
	}
	if d.Storage, err = cook.ParseStorage(f[2]); err != nil {
		return d, err
	}
	if d.TupleSize, err = strconv.Atoi(f[3]); err != nil || d.TupleSize < 1 {
		return d, fmt.Errorf("invalid tuple size %q in %q", f[3], s)
	}
	if len(f) > 4 {
		if d.TypeInfo, err = cook.ParseTypeInfo(f[4]); err != nil {
			return d, err
		}
	}
	if len(f) > 5 {
		if f[5] != "array" {
			return d, fmt.Errorf("invalid flag %q in %q, expected array", f[5], s)
		}
		d.Array = true
	}
	return d, nil
}
