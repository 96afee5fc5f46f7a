//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const e2eAPIKey = "e2e-test-api-key"

// traderackServer manages a running traderack server process.
type traderackServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile *os.File
}

// startTraderack launches the binary on dataDir and waits for it to become
// healthy. Configuration comes from the environment only.
func startTraderack(t *testing.T, dataDir string) *traderackServer {
	t.Helper()
	if traderackBin == "" {
		t.Skip("traderack binary not available (set TRADERACK_BIN or add to PATH)")
	}

	port := freePort(t)
	cmd := exec.Command(traderackBin)
	cmd.Env = append(os.Environ(), serverEnv(dataDir, port)...)

	lf, err := os.OpenFile(filepath.Join(dataDir, "traderack.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf
	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start traderack: %v", err)
	}

	s := &traderackServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: lf,
	}
	t.Cleanup(s.stop)

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("traderack not healthy: %v", err)
	}
	return s
}

func serverEnv(dataDir string, port int) []string {
	return []string{
		fmt.Sprintf("TRADERACK_PORT=%d", port),
		"TRADERACK_DB_PATH=" + filepath.Join(dataDir, "traderack.db"),
		"TRADERACK_API_KEY=" + e2eAPIKey,
		"TRADERACK_CONFIG_PATH=" + filepath.Join(dataDir, "nonexistent.yaml"),
		"TRADERACK_BACKUP_DIR=" + filepath.Join(dataDir, "backups"),
		"TRADERACK_CAMERA_DEBOUNCE=10ms",
	}
}

// stop sends an interrupt and waits for a graceful exit. Safe to call twice.
func (s *traderackServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}

// restart stops the server and starts a new one on the same data directory.
func (s *traderackServer) restart(t *testing.T) *traderackServer {
	t.Helper()
	s.stop()
	return startTraderack(t, s.dataDir)
}

func (s *traderackServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

func (s *traderackServer) wsURL(path string) string {
	return fmt.Sprintf("ws://%s%s?access_token=%s", s.address, path, e2eAPIKey)
}

func (s *traderackServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("traderack not healthy after %s", timeout)
}

// do sends an authenticated JSON request and decodes a JSON response into
// out when out is non-nil. It fails the test on an unexpected status.
func (s *traderackServer) do(t *testing.T, method, path string, body, out any, wantStatus int) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.baseURL()+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e2eAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode: %v (%s)", method, path, err, data)
		}
	}
}

// runCLI runs a traderack subcommand against dataDir's database.
func runCLI(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	full := append([]string{"--db", filepath.Join(dataDir, "traderack.db")}, args...)
	cmd := exec.Command(traderackBin, full...)
	cmd.Env = append(os.Environ(),
		"TRADERACK_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"TRADERACK_BACKUP_DIR="+filepath.Join(dataDir, "backups"),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("traderack %v: %v\n%s", args, err, stderr.String())
	}
	return stdout.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
