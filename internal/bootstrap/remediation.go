package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"upload-ai/internal/config"
	"upload-ai/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed
// diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installFFmpegForCurrentOS()
	case "work_dir":
		settings, settingsChanged, fixErr = fixWorkDir(settings)
	case "backend_url":
		settings, settingsChanged, fixErr = fixBackendURL(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
		if a.Backend != nil {
			a.Backend.SetBaseURL(settings.BackendURL)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// refreshDiagnosticsFromSettings recomputes the cached report after a fix.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// fixWorkDir resets an unusable engine workspace to the default location.
func fixWorkDir(settings domain.Settings) (domain.Settings, bool, error) {
	target := strings.TrimSpace(settings.WorkDir)
	changed := false
	if target == "" {
		target = config.DefaultSettings().WorkDir
		changed = settings.WorkDir != target
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		fallback := config.DefaultSettings().WorkDir
		if fallback == target {
			return settings, false, fmt.Errorf("create engine workspace: %w", err)
		}
		if mkErr := os.MkdirAll(fallback, 0o755); mkErr != nil {
			return settings, false, fmt.Errorf("create engine workspace: %w", mkErr)
		}
		target = fallback
		changed = true
	}

	settings.WorkDir = target
	return settings, changed, nil
}

// fixBackendURL resets a malformed backend address to the default.
func fixBackendURL(settings domain.Settings) (domain.Settings, bool, error) {
	if settings.BackendURL == config.DefaultBackendURL {
		return settings, false, fmt.Errorf("backend URL already set to default: %s", config.DefaultBackendURL)
	}
	settings.BackendURL = config.DefaultBackendURL
	return settings, true, nil
}

// ensureLocalBinOnPATH prepends the app-local bin directory so tools placed
// there by earlier remediations are found.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".upload-ai", "bin")
}

// installFFmpegForCurrentOS installs ffmpeg/ffprobe through the first
// available package manager for the platform.
func installFFmpegForCurrentOS() error {
	options := []installOption{}

	switch goruntime.GOOS {
	case "windows":
		options = []installOption{
			{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			},
			{
				manager: "choco",
				commands: [][]string{
					{"choco", "install", "ffmpeg", "-y"},
				},
			},
			{
				manager: "scoop",
				commands: [][]string{
					{"scoop", "install", "ffmpeg"},
				},
			},
		}
	case "darwin":
		options = []installOption{
			{
				manager: "brew",
				commands: [][]string{
					{"brew", "install", "ffmpeg"},
				},
			},
		}
	default:
		options = []installOption{
			{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "dnf",
				commands: [][]string{
					{"dnf", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "pacman",
				commands: [][]string{
					{"pacman", "-Sy", "--noconfirm", "ffmpeg"},
				},
			},
			{
				manager: "zypper",
				commands: [][]string{
					{"zypper", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "brew",
				commands: [][]string{
					{"brew", "install", "ffmpeg"},
				},
			},
		}
	}

	if err := runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := requireToolsOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		if err := runInstallCommands(option.commands); err == nil {
			return nil
		} else {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
		}
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := runCommand(candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			attemptErrors = append(attemptErrors, err.Error())
		}
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
