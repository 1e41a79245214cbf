package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "embed-archiver-server"
	serverBinaryEnv    = "ARCHIVER_SERVER_BIN"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

var healthClient = &http.Client{Timeout: time.Second}

// isServerRunning reports whether an archiver answers on the health endpoint.
// Another service bound to the same port does not count.
func isServerRunning() bool {
	resp, err := healthClient.Get(serverURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok" && health.Version != ""
}

// findServerBinary looks at $ARCHIVER_SERVER_BIN, next to the CLI, then $PATH
func findServerBinary() (string, error) {
	if path := os.Getenv(serverBinaryEnv); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s: %w", serverBinaryEnv, err)
		}
		return path, nil
	}

	candidates := []string{}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), serverBinary))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "go", "bin", serverBinary),
			filepath.Join(home, ".local", "bin", serverBinary))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if p, err := exec.LookPath(serverBinary); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%s binary not found (set %s)", serverBinary, serverBinaryEnv)
}

// startServer launches "serve" detached from the CLI's terminal
func startServer() error {
	serverPath, err := findServerBinary()
	if err != nil {
		return err
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(serverPath, args...)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", serverBinary, err)
	}
	return cmd.Process.Release()
}

func waitForServer() error {
	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		if isServerRunning() {
			return nil
		}
		time.Sleep(serverPollInterval)
	}
	return fmt.Errorf("archiver did not answer on %s within %v", serverURL, serverStartTimeout)
}

// ensureServerRunning starts a local archiver when none is reachable
func ensureServerRunning() error {
	if isServerRunning() {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Archiver not running, starting...")
	if err := startServer(); err != nil {
		return err
	}
	if err := waitForServer(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Archiver started")
	return nil
}
