package diagnostics

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"upload-ai/internal/domain"
)

// Checker validates external tools and required local paths before a run.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkWorkDir(settings.WorkDir),
		c.checkBackendURL(settings.BackendURL),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before uploading a video.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWorkDir validates engine workspace existence and write access.
func (c *Checker) checkWorkDir(workDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "work_dir",
		Name: "Engine workspace",
	}

	if strings.TrimSpace(workDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Engine workspace is empty."
		item.Hint = "Set a directory where the engine can write its input and output files."
		return item
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create engine workspace: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Engine workspace is not writable: %s", workDir)
		item.Hint = "Choose a writable directory for the engine workspace."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}

// checkBackendURL validates the configured backend address shape. The
// backend is not contacted; reachability surfaces on the first run instead.
func (c *Checker) checkBackendURL(backendURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend_url",
		Name: "Backend URL",
	}

	trimmed := strings.TrimSpace(backendURL)
	if trimmed == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Backend URL is empty."
		item.Hint = "Set the upload-ai API address, for example http://localhost:3333."
		return item
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Backend URL is not a valid http(s) address: %s", trimmed)
		item.Hint = "Use a full URL including scheme and host."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Configured backend: %s", trimmed)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
