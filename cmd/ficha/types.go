package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/ficha/internal/catalog"
)

var typesJSONOutput bool

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the supported field types",
	Args:  cobra.NoArgs,
	RunE:  runTypes,
}

func init() {
	typesCmd.Flags().BoolVar(&typesJSONOutput, "json", false, "Output in JSON format")
}

func runTypes(cmd *cobra.Command, args []string) error {
	descriptors := catalog.All()
	out := cmd.OutOrStdout()

	if typesJSONOutput {
		return printJSON(out, map[string]any{
			"types": descriptors,
			"total": len(descriptors),
		})
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "TYPE\tNAME\tSHAPE\tCOMPARES AS\tHOLDS VALUE")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Type,
			d.Name,
			d.Shape,
			d.Semantics,
			yesNo(!d.Presentational),
		)
	}
	return w.Flush()
}
