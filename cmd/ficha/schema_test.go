package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
)

const surveyYAML = `
id: heritage
ownerProjectId: proj-1
title: Heritage survey
pages:
  - id: p1
    title: Building
    sections:
      - id: s1
        name: Fabric
        fields:
          - id: name
            type: text
            label: Name
            required: true
          - id: material
            type: dropdown
            label: Material
            options: [stone, timber]
            defaultValue: stone
          - id: stoneType
            type: text
            label: Stone type
            required: true
            logic:
              - sourceFieldId: material
                operator: equals
                comparand: timber
                action: hide
                targetFieldId: stoneType
`

// executeCmd runs the root command with captured output. Package-level flag
// variables are reset first; cobra parses into them and would otherwise leak
// values between tests.
func executeCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	schemaDBPath = ""
	schemaJSONOutput = false
	evalValuesPath = ""
	exportVersion = 0
	exportFormat = "json"
	listProject = ""
	typesJSONOutput = false

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// --- Types ---

func TestTypes_Table(t *testing.T) {
	stdout, _, err := executeCmd(t, "types")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"TYPE", "dropdown", "signature", "divider"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestTypes_JSON(t *testing.T) {
	stdout, _, err := executeCmd(t, "types", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Types []catalog.Descriptor `json:"types"`
		Total int                  `json:"total"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if got.Total != len(catalog.All()) || len(got.Types) != got.Total {
		t.Errorf("total = %d, types = %d, want %d", got.Total, len(got.Types), len(catalog.All()))
	}
}

// --- Validate ---

func TestSchemaValidate_Valid(t *testing.T) {
	path := writeFile(t, "survey.yaml", surveyYAML)

	stdout, _, err := executeCmd(t, "schema", "validate", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, `Schema "heritage" is valid (1 pages, 3 fields)`) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestSchemaValidate_AcceptsJSON(t *testing.T) {
	var s schema.FormSchema
	if err := yaml.Unmarshal([]byte(surveyYAML), &s); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	data, _ := json.Marshal(s)
	path := writeFile(t, "survey.json", string(data))

	if _, _, err := executeCmd(t, "schema", "validate", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchemaValidate_Violations(t *testing.T) {
	path := writeFile(t, "bad.yaml", strings.Replace(surveyYAML, "id: stoneType", "id: name", 1))

	stdout, _, err := executeCmd(t, "schema", "validate", path, "--json")
	if err == nil {
		t.Fatal("expected error for duplicate field id")
	}

	var got struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if got.Valid {
		t.Error("valid = true, want false")
	}
	found := false
	for _, e := range got.Errors {
		if strings.Contains(e.Message, "duplicate id") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %+v, want a duplicate id violation", got.Errors)
	}
}

func TestSchemaValidate_WarnsOnDanglingRule(t *testing.T) {
	path := writeFile(t, "dangling.yaml", strings.Replace(surveyYAML, "sourceFieldId: material", "sourceFieldId: roof", 1))

	stdout, _, err := executeCmd(t, "schema", "validate", path)
	if err != nil {
		t.Fatalf("dangling rules are warnings, got error: %v", err)
	}
	if !strings.Contains(stdout, "warning: rule roof -> stoneType") {
		t.Errorf("stdout = %q, want dangling rule warning", stdout)
	}
}

func TestSchemaValidate_MissingFile(t *testing.T) {
	if _, _, err := executeCmd(t, "schema", "validate", filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Eval ---

func TestSchemaEval(t *testing.T) {
	path := writeFile(t, "survey.yaml", surveyYAML)

	tests := []struct {
		name          string
		values        string
		wantStoneType bool
	}{
		{"defaults", "", true},
		{"timber hides stone type", "material: timber\n", false},
		{"unknown fields ignored", "material: stone\nroof: slate\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"schema", "eval", path, "--json"}
			if tt.values != "" {
				args = append(args, "--values", writeFile(t, "values.yaml", tt.values))
			}
			stdout, _, err := executeCmd(t, args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var result logic.Result
			if err := json.Unmarshal([]byte(stdout), &result); err != nil {
				t.Fatalf("invalid JSON: %v\n%s", err, stdout)
			}
			if got := result.State("stoneType").Visible; got != tt.wantStoneType {
				t.Errorf("stoneType visible = %v, want %v", got, tt.wantStoneType)
			}
			if !result.Converged {
				t.Error("converged = false")
			}
		})
	}
}

func TestSchemaEval_Table(t *testing.T) {
	path := writeFile(t, "survey.yaml", surveyYAML)
	values := writeFile(t, "values.yaml", "name: Old mill\nmaterial: timber\n")

	stdout, _, err := executeCmd(t, "schema", "eval", path, "--values", values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(stdout, "\n")
	var stoneType string
	for _, l := range lines {
		if strings.HasPrefix(l, "stoneType") {
			stoneType = l
		}
	}
	if fields := strings.Fields(stoneType); len(fields) < 2 || fields[1] != "no" {
		t.Errorf("stoneType row = %q, want VISIBLE no", stoneType)
	}
	if !strings.Contains(stdout, "Evaluation order: name -> material -> stoneType") {
		t.Errorf("stdout = %q, want the evaluation order", stdout)
	}
}

func TestSchemaEval_RejectsBadValue(t *testing.T) {
	path := writeFile(t, "survey.yaml", surveyYAML)
	values := writeFile(t, "values.yaml", "material: brick\n")

	_, stderr, err := executeCmd(t, "schema", "eval", path, "--values", values)
	if err == nil {
		t.Fatal("expected error for value outside options")
	}
	if !strings.Contains(stderr, "material") {
		t.Errorf("stderr = %q, want it to name the field", stderr)
	}
}

// --- Import / Export / List ---

func TestSchemaImportExportList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ficha.db")
	path := writeFile(t, "survey.yaml", surveyYAML)

	stdout, _, err := executeCmd(t, "schema", "import", path, "--db", dbPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stdout, `Imported schema "heritage" as version 1`) {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = executeCmd(t, "schema", "import", path, "--db", dbPath)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(stdout, "as version 2") {
		t.Errorf("stdout = %q, want version 2", stdout)
	}

	stdout, _, err = executeCmd(t, "schema", "export", "heritage", "--db", dbPath, "--format", "yaml", "--version", "1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var exported schema.FormSchema
	if err := yaml.Unmarshal([]byte(stdout), &exported); err != nil {
		t.Fatalf("exported YAML invalid: %v\n%s", err, stdout)
	}
	if exported.Version != 1 || len(schema.AllFields(exported)) != 3 {
		t.Errorf("exported = version %d with %d fields", exported.Version, len(schema.AllFields(exported)))
	}

	stdout, _, err = executeCmd(t, "schema", "list", "--db", dbPath, "--project", "proj-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "heritage") || !strings.Contains(stdout, "Heritage survey") {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = executeCmd(t, "schema", "list", "--db", dbPath, "--project", "other")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "No schemas found.") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestSchemaImport_RejectsInvalid(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ficha.db")
	path := writeFile(t, "bad.yaml", strings.Replace(surveyYAML, "options: [stone, timber]", "options: []", 1))

	if _, _, err := executeCmd(t, "schema", "import", path, "--db", dbPath); err == nil {
		t.Fatal("expected error for dropdown without options")
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("database should not be created for an invalid schema")
	}
}

func TestSchemaExport_Errors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ficha.db")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown schema", []string{"schema", "export", "missing", "--db", dbPath}},
		{"bad format", []string{"schema", "export", "heritage", "--db", dbPath, "--format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := executeCmd(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
