// Package doctor runs runtime readiness diagnostics for config, audio, and
// the handoff service.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders one "[OK|FAIL] name: message" line per check.
func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		status := "FAIL"
		if c.Pass {
			status = "OK"
		}
		lines = append(lines, "["+status+"] "+c.Name+": "+c.Message)
	}
	return strings.Join(lines, "\n")
}

func pass(name, format string, args ...any) Check {
	return Check{Name: name, Pass: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) Check {
	return Check{Name: name, Pass: false, Message: fmt.Sprintf(format, args...)}
}

// probeTimeout bounds every network check.
var probeTimeout = 2 * time.Second

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	if cfg.Exists {
		checks = append(checks, pass("config", "loaded %q", cfg.Path))
	} else {
		checks = append(checks, pass("config", "%q not found; using defaults", cfg.Path))
	}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory available", "XDG_RUNTIME_DIR is empty; stop/cancel/level cannot reach a capture"))

	checks = append(checks, checkPermission(cfg.Config.Permission))
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkHandoff(cfg.Config.Handoff)...)

	if cfg.Config.Upload.Enabled() {
		checks = append(checks, checkUploadCredentials(cfg.Config.Upload))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return pass(name, "%s", okMsg)
	}
	return fail(name, "%s", failMsg)
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return fail(name, "command is empty")
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fail(bin, "binary not found in PATH: %s", bin)
	}
	return pass(bin, "found at %s (%s)", path, okMsg)
}

func checkPermission(cfg config.PermissionConfig) Check {
	switch cfg.Mode {
	case "deny":
		return fail("permission", "microphone access is denied by configuration")
	case "prompt":
		return pass("permission", "consent is requested on the terminal at first capture")
	default:
		return pass("permission", "microphone access granted by configuration")
	}
}

// checkAudioSelection runs live source selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	selection, err := audio.SelectSource(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return fail("audio.source", "%v", err)
	}
	if selection.Warning != "" {
		return pass("audio.source", "selected %s (%s)", selection.Source, selection.Warning)
	}
	return pass("audio.source", "selected %s", selection.Source)
}

func checkHandoff(cfg config.HandoffConfig) []Check {
	checks := []Check{}
	switch {
	case cfg.URL != "":
		checks = append(checks, checkHandoffHTTP(cfg.URL))
	case len(cfg.Command.Argv) > 0:
		checks = append(checks, checkCommand(cfg.Command.Argv, "handoff.command"))
	default:
		checks = append(checks, pass("handoff", "not configured; recordings are kept locally"))
	}

	if cfg.HealthGRPC != "" {
		checks = append(checks, checkGRPCHealth(cfg.HealthGRPC))
	}
	return checks
}

// checkHandoffHTTP confirms the handoff endpoint answers. Any non-5xx
// status passes since the endpoint only accepts multipart POSTs.
func checkHandoffHTTP(url string) Check {
	client := http.Client{Timeout: probeTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return fail("handoff.url", "request failed: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode >= 500 {
		return fail("handoff.url", "HTTP %d from %s", resp.StatusCode, url)
	}
	return pass("handoff.url", "reachable at %s (HTTP %d)", url, resp.StatusCode)
}

func checkUploadCredentials(cfg config.UploadConfig) Check {
	hasKey := cfg.AccessKeyID != "" || os.Getenv("AWS_ACCESS_KEY_ID") != ""
	hasSecret := cfg.SecretAccessKey != "" || os.Getenv("AWS_SECRET_ACCESS_KEY") != ""
	if !hasKey || !hasSecret {
		return fail("upload", "bucket set but access key or secret missing (config or AWS_* env)")
	}
	return pass("upload", "archiving to s3://%s/%s", cfg.Bucket, cfg.Prefix)
}
