package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/ficha/internal/config"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/store"
	"github.com/hyperengineering/ficha/internal/validation"
)

var (
	schemaDBPath     string
	schemaJSONOutput bool
	evalValuesPath   string
	exportVersion    int
	exportFormat     string
	listProject      string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check, evaluate, and manage form schemas",
	Long:  "Validate and evaluate schema files offline, or import, export, and list schemas in the database without running the server.",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a YAML or JSON schema file against every schema invariant",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaValidate,
}

var schemaEvalCmd = &cobra.Command{
	Use:   "eval <file>",
	Short: "Print the effective state of every field for a set of values",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaEval,
}

var schemaImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a schema file as the next version of its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaImport,
}

var schemaExportCmd = &cobra.Command{
	Use:   "export <schema-id>",
	Short: "Write a stored schema to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaExport,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored schemas (latest versions)",
	Args:  cobra.NoArgs,
	RunE:  runSchemaList,
}

func init() {
	schemaCmd.PersistentFlags().StringVar(&schemaDBPath, "db", "",
		"SQLite database path (overrides config and FICHA_DB_PATH)")
	schemaCmd.PersistentFlags().BoolVar(&schemaJSONOutput, "json", false,
		"Output in JSON format")

	schemaEvalCmd.Flags().StringVar(&evalValuesPath, "values", "",
		"YAML or JSON file mapping field ids to values")
	schemaExportCmd.Flags().IntVar(&exportVersion, "version", 0,
		"Schema version to export (default latest)")
	schemaExportCmd.Flags().StringVar(&exportFormat, "format", "json",
		"Output format: json or yaml")
	schemaListCmd.Flags().StringVar(&listProject, "project", "",
		"Only list schemas owned by this project")

	schemaCmd.AddCommand(schemaValidateCmd)
	schemaCmd.AddCommand(schemaEvalCmd)
	schemaCmd.AddCommand(schemaImportCmd)
	schemaCmd.AddCommand(schemaExportCmd)
	schemaCmd.AddCommand(schemaListCmd)
}

// openSchemaStore opens the SQLite store named by --db or the configuration.
func openSchemaStore() (*store.SQLiteStore, error) {
	path := schemaDBPath
	if path == "" {
		db, err := config.LoadDatabaseConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if db.Driver != config.DriverSQLite {
			return nil, fmt.Errorf("schema commands need the %s driver, configured driver is %s", config.DriverSQLite, db.Driver)
		}
		path = db.Path
	}
	return store.NewSQLiteStore(path)
}

// violations returns the invariant violations carried by err, or nil when err
// is not a schema validation error.
func violations(err error) []validation.ValidationError {
	var ve schema.ValidationErrors
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return nil
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	s, err := readSchemaFile(args[0])
	if err != nil {
		return err
	}

	errs := violations(schema.Validate(s))
	dangling := schema.DanglingRules(s)
	out := cmd.OutOrStdout()

	if schemaJSONOutput {
		if err := printJSON(out, map[string]any{
			"valid":         len(errs) == 0,
			"errors":        nonNil(errs),
			"danglingRules": nonNil(dangling),
		}); err != nil {
			return err
		}
	} else {
		for _, e := range errs {
			fmt.Fprintf(out, "  %s: %s\n", e.Field, e.Message)
		}
		for _, r := range dangling {
			fmt.Fprintf(out, "  warning: rule %s -> %s references a missing field\n", r.SourceFieldID, r.TargetFieldID)
		}
		if len(errs) == 0 {
			fmt.Fprintf(out, "Schema %q is valid (%d pages, %d fields)\n", s.ID, len(s.Pages), len(schema.AllFields(s)))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("schema %q has %d violation(s)", s.ID, len(errs))
	}
	return nil
}

func runSchemaEval(cmd *cobra.Command, args []string) error {
	s, err := readSchemaFile(args[0])
	if err != nil {
		return err
	}
	if err := schema.Validate(s); err != nil {
		return err
	}

	raw := map[string]any{}
	if evalValuesPath != "" {
		if raw, err = readValuesFile(evalValuesPath); err != nil {
			return err
		}
	}
	values, errs := schema.CheckValues(s, raw)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("%d value(s) rejected", len(errs))
	}

	// Unset fields evaluate against their defaults, as a fresh session would.
	for id, v := range schema.Defaults(s) {
		if _, ok := values[id]; !ok {
			values[id] = v
		}
	}

	result := logic.Evaluate(s, values)
	out := cmd.OutOrStdout()

	if schemaJSONOutput {
		return printJSON(out, result)
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "FIELD\tVISIBLE\tENABLED\tREQUIRED\tVALUE")
	for _, f := range schema.AllFields(s) {
		st := result.State(f.ID)
		value := "-"
		if v, ok := values[f.ID]; ok {
			value = fmt.Sprint(v)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.ID, yesNo(st.Visible), yesNo(st.Enabled), yesNo(st.Required), value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nEvaluation order: %s\n", strings.Join(logic.Order(s), " -> "))

	for _, d := range result.Diagnostics {
		fmt.Fprintf(out, "warning: %s: %s\n", d.Code, d.Message)
	}
	if !result.Converged {
		fmt.Fprintf(out, "warning: did not settle after %d passes; unstable: %v\n", result.Passes, result.Unstable)
	}
	return nil
}

func runSchemaImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := readSchemaFile(args[0])
	if err != nil {
		return err
	}
	if err := schema.Validate(s); err != nil {
		for _, e := range violations(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", e.Field, e.Message)
		}
		return err
	}

	db, err := openSchemaStore()
	if err != nil {
		return err
	}
	defer db.Close()

	stored, err := db.PutSchema(ctx, s)
	if err != nil {
		return fmt.Errorf("import schema: %w", err)
	}

	out := cmd.OutOrStdout()
	if schemaJSONOutput {
		return printJSON(out, map[string]any{
			"id":      stored.ID,
			"version": stored.Version,
		})
	}
	fmt.Fprintf(out, "Imported schema %q as version %d\n", stored.ID, stored.Version)
	return nil
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if exportFormat != "json" && exportFormat != "yaml" {
		return fmt.Errorf("--format must be json or yaml, got %q", exportFormat)
	}

	db, err := openSchemaStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var s schema.FormSchema
	if exportVersion > 0 {
		s, err = db.GetSchemaVersion(ctx, args[0], exportVersion)
	} else {
		s, err = db.GetSchema(ctx, args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exportFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	}
	return printJSON(out, s)
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openSchemaStore()
	if err != nil {
		return err
	}
	defer db.Close()

	schemas, err := db.ListSchemas(ctx, listProject)
	if err != nil {
		return fmt.Errorf("list schemas: %w", err)
	}

	out := cmd.OutOrStdout()
	if schemaJSONOutput {
		return printJSON(out, map[string]any{
			"schemas": schemas,
			"total":   len(schemas),
		})
	}

	if len(schemas) == 0 {
		fmt.Fprintln(out, "No schemas found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tVERSION\tTITLE\tPROJECT\tUPDATED")
	for _, s := range schemas {
		project := s.OwnerProjectID
		if project == "" {
			project = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			s.ID,
			s.Version,
			s.Title,
			project,
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

// nonNil keeps empty lists as [] in JSON output.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
