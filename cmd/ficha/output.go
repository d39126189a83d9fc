package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/ficha/internal/schema"
)

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// readSchemaFile decodes a schema authored in YAML or JSON. JSON documents
// are valid YAML, so one decoder serves both.
func readSchemaFile(path string) (schema.FormSchema, error) {
	var s schema.FormSchema
	if err := decodeFile(path, &s); err != nil {
		return schema.FormSchema{}, err
	}
	return s, nil
}

// readValuesFile decodes a field id to value mapping in YAML or JSON.
func readValuesFile(path string) (map[string]any, error) {
	values := map[string]any{}
	if err := decodeFile(path, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
