package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"upload-ai/internal/config"
	"upload-ai/internal/diagnostics"
	"upload-ai/internal/domain"
	"upload-ai/internal/ffmpeg"
	"upload-ai/internal/pipeline"
	"upload-ai/internal/runs"
	"upload-ai/internal/upload"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "MP4 videos",
		Pattern:     "*.mp4",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// statusMessages are the human-readable stage strings shown by the shell.
// On error the message stays generic; the error event carries the detail.
var statusMessages = map[domain.RunStatus]string{
	domain.RunStatusWaiting:    "Upload a video...",
	domain.RunStatusConverting: "Converting video...",
	domain.RunStatusUploading:  "Uploading audio...",
	domain.RunStatusGenerating: "Requesting transcription...",
	domain.RunStatusSuccess:    "Video uploaded successfully!",
	domain.RunStatusError:      "Something went wrong while processing the video.",
}

// App wires configuration, the pipeline, the backend client, and UI runtime
// callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Pipeline    pipelineRunner
	Backend     backendClient
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	readFile    func(name string) ([]byte, error)

	mu         sync.Mutex
	runtimeCtx context.Context
}

// pipelineRunner isolates the upload pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, selection domain.VideoSelection, prompt string) (domain.Run, error)
	Current() domain.Run
	Events(sinceSeq int64) []runs.Event
	SetNotifier(fn func(event runs.Event))
	Publish(event runs.Event) runs.Event
}

// backendClient isolates the non-pipeline backend calls behind an interface.
type backendClient interface {
	FetchPrompts(ctx context.Context) ([]domain.PromptOption, error)
	Complete(ctx context.Context, videoID string, temperature float64, onChunk func(chunk string)) error
	SetBaseURL(baseURL string)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".upload-ai", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	backend := upload.NewClient(settings.BackendURL)
	engine := ffmpeg.NewEngine(settings.WorkDir)

	app := &App{
		Settings:    settings,
		Store:       store,
		Pipeline:    pipeline.New(engine, backend),
		Backend:     backend,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		readFile:    os.ReadFile,
	}
	app.Pipeline.SetNotifier(app.pushEvent)
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "upload.ai",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// The backend URL applies immediately; a changed engine workspace takes
// effect on next launch because the engine binds its workspace at startup.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	if a.Backend != nil {
		a.Backend.SetBaseURL(normalized.BackendURL)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	return a.Diagnostics, nil
}

// PickVideoFile opens a native file dialog for video selection. Changing the
// selection is refused while a run is in flight.
func (a *App) PickVideoFile() (string, error) {
	if isActiveStatus(a.Pipeline.Current().Status) {
		return "", runs.ErrRunInProgress
	}

	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select a video",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// StartUpload reads the selected video and runs the pipeline asynchronously.
// Progress and status are observed through run events.
func (a *App) StartUpload(inputPath, prompt string) (domain.Run, error) {
	if isActiveStatus(a.Pipeline.Current().Status) {
		return domain.Run{}, runs.ErrRunInProgress
	}
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(prompt) == "" {
		return domain.Run{}, pipeline.ErrMissingInput
	}

	data, err := a.readFile(inputPath)
	if err != nil {
		return domain.Run{}, fmt.Errorf("read video file: %w", err)
	}
	if len(data) == 0 {
		return domain.Run{}, pipeline.ErrMissingInput
	}

	selection := domain.VideoSelection{
		Name:      filepath.Base(inputPath),
		MediaType: "video/mp4",
		Data:      data,
	}

	go func() {
		// Terminal outcome and error detail are published as run events.
		_, _ = a.Pipeline.Run(context.Background(), selection, prompt)
	}()

	return a.Pipeline.Current(), nil
}

// CurrentRun returns current run metadata and status.
func (a *App) CurrentRun() domain.Run {
	return a.Pipeline.Current()
}

// RunEvents returns all events with sequence greater than sinceSeq.
func (a *App) RunEvents(sinceSeq int64) []runs.Event {
	return a.Pipeline.Events(sinceSeq)
}

// StatusMessage maps a run status to its user-facing text.
func (a *App) StatusMessage(status domain.RunStatus) string {
	if message, ok := statusMessages[status]; ok {
		return message
	}
	return statusMessages[domain.RunStatusWaiting]
}

// GenerateCompletion streams the downstream AI completion for the last
// successful run, publishing text chunks as completion events.
func (a *App) GenerateCompletion() error {
	current := a.Pipeline.Current()
	if current.Status != domain.RunStatusSuccess || current.VideoID == "" {
		return fmt.Errorf("no transcribed video available yet")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	go func() {
		err := a.Backend.Complete(context.Background(), current.VideoID, settings.Temperature, func(chunk string) {
			a.Pipeline.Publish(runs.Event{
				RunID:   current.ID,
				Type:    runs.EventTypeCompletion,
				Message: chunk,
			})
		})
		if err != nil {
			a.Pipeline.Publish(runs.Event{
				RunID:   current.ID,
				Type:    runs.EventTypeError,
				Message: err.Error(),
			})
		}
	}()

	return nil
}

// pushEvent emits runtime push notifications for published events.
func (a *App) pushEvent(event runs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "run:event", event)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// isActiveStatus reports whether a status is a non-terminal pipeline stage.
func isActiveStatus(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusConverting, domain.RunStatusUploading, domain.RunStatusGenerating:
		return true
	default:
		return false
	}
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.BackendURL = strings.TrimRight(strings.TrimSpace(settings.BackendURL), "/")
	settings.WorkDir = strings.TrimSpace(settings.WorkDir)
	if settings.BackendURL == "" {
		settings.BackendURL = config.DefaultBackendURL
	}
	if settings.WorkDir == "" {
		settings.WorkDir = config.DefaultSettings().WorkDir
	}
	if settings.Temperature < 0 {
		settings.Temperature = 0
	}
	if settings.Temperature > 1 {
		settings.Temperature = 1
	}
	return settings
}
