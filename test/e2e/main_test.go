package e2e

import (
	"os"
	"os/exec"
	"testing"
)

var fichaBin string

func TestMain(m *testing.M) {
	fichaBin = envOrLookPath("FICHA_BIN", "ficha")
	os.Exit(m.Run())
}

func envOrLookPath(envVar, name string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

func requireFicha(t *testing.T) {
	t.Helper()
	if fichaBin == "" {
		t.Skip("ficha binary not available (set FICHA_BIN or add to PATH)")
	}
}
