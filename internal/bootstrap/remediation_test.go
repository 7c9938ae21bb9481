package bootstrap

import (
	"path/filepath"
	"testing"

	"upload-ai/internal/config"
	"upload-ai/internal/domain"
)

// TestFixWorkDirCreatesMissingDirectory ensures a usable workspace stays put.
func TestFixWorkDirCreatesMissingDirectory(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "nested", "work")
	settings := domain.Settings{
		BackendURL: "http://localhost:3333",
		WorkDir:    workDir,
	}

	fixed, changed, err := fixWorkDir(settings)
	if err != nil {
		t.Fatalf("fix work dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.WorkDir != workDir {
		t.Fatalf("WorkDir = %s, want %s", fixed.WorkDir, workDir)
	}
}

// TestFixWorkDirFallsBackToDefaultForEmptyPath ensures empty paths get the default.
func TestFixWorkDirFallsBackToDefaultForEmptyPath(t *testing.T) {
	fixed, changed, err := fixWorkDir(domain.Settings{WorkDir: "   "})
	if err != nil {
		t.Fatalf("fix work dir: %v", err)
	}
	if !changed {
		t.Fatal("expected settings change")
	}
	if fixed.WorkDir != config.DefaultSettings().WorkDir {
		t.Fatalf("WorkDir = %s, want default", fixed.WorkDir)
	}
}

// TestFixBackendURLResetsToDefault ensures malformed addresses are replaced.
func TestFixBackendURLResetsToDefault(t *testing.T) {
	fixed, changed, err := fixBackendURL(domain.Settings{BackendURL: "not a url"})
	if err != nil {
		t.Fatalf("fix backend url: %v", err)
	}
	if !changed {
		t.Fatal("expected settings change")
	}
	if fixed.BackendURL != config.DefaultBackendURL {
		t.Fatalf("BackendURL = %s, want %s", fixed.BackendURL, config.DefaultBackendURL)
	}
}

// TestFixBackendURLRejectsWhenAlreadyDefault ensures no-op fixes report an error.
func TestFixBackendURLRejectsWhenAlreadyDefault(t *testing.T) {
	if _, _, err := fixBackendURL(domain.Settings{BackendURL: config.DefaultBackendURL}); err == nil {
		t.Fatal("expected error when the default is already configured")
	}
}

// TestRequiresElevation validates the Linux package manager elevation matrix.
func TestRequiresElevation(t *testing.T) {
	for _, manager := range []string{"apt-get", "dnf", "pacman", "zypper"} {
		if !requiresElevation(manager) {
			t.Fatalf("%s should require elevation", manager)
		}
	}
	for _, manager := range []string{"brew", "scoop", "winget", "choco"} {
		if requiresElevation(manager) {
			t.Fatalf("%s should not require elevation", manager)
		}
	}
}

// TestFormatCommand validates shell-style command rendering for errors.
func TestFormatCommand(t *testing.T) {
	got := formatCommand("apt-get", []string{"install", "-y", "ffmpeg"})
	if got != "apt-get install -y ffmpeg" {
		t.Fatalf("formatCommand = %q", got)
	}
}

// TestLocalBinDir validates the app-local tool directory location.
func TestLocalBinDir(t *testing.T) {
	got := localBinDir(filepath.Join("home", "user"))
	want := filepath.Join("home", "user", ".upload-ai", "bin")
	if got != want {
		t.Fatalf("localBinDir = %s, want %s", got, want)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownID validates input guarding.
func TestInstallOrFixDiagnosticRejectsUnknownID(t *testing.T) {
	app, _, _ := testApp(&fakeConverter{}, "vid-123")

	if _, err := app.InstallOrFixDiagnostic("bogus_item"); err == nil {
		t.Fatal("expected error for unknown diagnostic item id")
	}
	if _, err := app.InstallOrFixDiagnostic("  "); err == nil {
		t.Fatal("expected error for empty diagnostic item id")
	}
}

// TestInstallOrFixDiagnosticBackendURL validates the settings-backed fix path.
func TestInstallOrFixDiagnosticBackendURL(t *testing.T) {
	app, store, backend := testApp(&fakeConverter{}, "vid-123")
	store.settings.BackendURL = "not a url"

	if _, err := app.InstallOrFixDiagnostic("backend_url"); err != nil {
		t.Fatalf("fix backend url: %v", err)
	}

	if store.settings.BackendURL != config.DefaultBackendURL {
		t.Fatalf("persisted BackendURL = %s, want default", store.settings.BackendURL)
	}
	if len(backend.baseURLs) != 1 || backend.baseURLs[0] != config.DefaultBackendURL {
		t.Fatalf("backend repointed with %v", backend.baseURLs)
	}
}
