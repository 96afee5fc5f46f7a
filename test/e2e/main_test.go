//go:build e2e

package e2e

import (
	"os"
	"os/exec"
	"testing"
)

var traderackBin string

func TestMain(m *testing.M) {
	traderackBin = envOrLookPath("TRADERACK_BIN", "traderack")
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
