package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"upload-ai/internal/domain"
	"upload-ai/internal/ffmpeg"
	"upload-ai/internal/pipeline"
	"upload-ai/internal/runs"
)

type fakeStore struct {
	settings domain.Settings
	loadErr  error
	saved    []domain.Settings
}

func (f *fakeStore) Load() (domain.Settings, error) {
	if f.loadErr != nil {
		return domain.Settings{}, f.loadErr
	}
	return f.settings, nil
}

func (f *fakeStore) Save(settings domain.Settings) error {
	f.saved = append(f.saved, settings)
	f.settings = settings
	return nil
}

type fakeConverter struct {
	artifact domain.AudioArtifact
	err      error
	block    chan struct{}
}

func (f *fakeConverter) Convert(ctx context.Context, video domain.VideoSelection, opts ffmpeg.ConvertOptions) (domain.AudioArtifact, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.AudioArtifact{}, f.err
	}
	return f.artifact, nil
}

type fakePipelineBackend struct {
	videoID string
}

func (f *fakePipelineBackend) UploadAudio(ctx context.Context, artifact domain.AudioArtifact) (string, error) {
	return f.videoID, nil
}

func (f *fakePipelineBackend) RequestTranscription(ctx context.Context, videoID, prompt string) error {
	return nil
}

type fakeBackendClient struct {
	prompts     []domain.PromptOption
	promptsErr  error
	chunks      []string
	completeErr error

	gotVideoID     string
	gotTemperature float64
	baseURLs       []string
}

func (f *fakeBackendClient) FetchPrompts(ctx context.Context) ([]domain.PromptOption, error) {
	return f.prompts, f.promptsErr
}

func (f *fakeBackendClient) Complete(ctx context.Context, videoID string, temperature float64, onChunk func(chunk string)) error {
	f.gotVideoID = videoID
	f.gotTemperature = temperature
	if f.completeErr != nil {
		return f.completeErr
	}
	for _, chunk := range f.chunks {
		onChunk(chunk)
	}
	return nil
}

func (f *fakeBackendClient) SetBaseURL(baseURL string) {
	f.baseURLs = append(f.baseURLs, baseURL)
}

// testApp assembles an App over fakes and a real orchestrator.
func testApp(converter pipeline.Converter, videoID string) (*App, *fakeStore, *fakeBackendClient) {
	store := &fakeStore{settings: domain.Settings{
		BackendURL:  "http://localhost:3333",
		WorkDir:     "/tmp/upload-ai-work",
		Temperature: 0.5,
	}}
	backend := &fakeBackendClient{}
	app := &App{
		Settings: store.settings,
		Store:    store,
		Pipeline: pipeline.NewForTests(converter, &fakePipelineBackend{videoID: videoID}, func() string { return "run-1" }),
		Backend:  backend,
		readFile: func(name string) ([]byte, error) {
			return []byte("video-bytes"), nil
		},
	}
	return app, store, backend
}

func waitForStatus(t *testing.T, app *App, want domain.RunStatus) domain.Run {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		run := app.CurrentRun()
		if run.Status == want {
			return run
		}
		select {
		case <-deadline:
			t.Fatalf("run never reached %q, last = %+v", want, run)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestStartUploadRunsPipeline checks the async run from the shell's view.
func TestStartUploadRunsPipeline(t *testing.T) {
	converter := &fakeConverter{artifact: domain.AudioArtifact{Name: "output.mp3", MediaType: "audio/mpeg"}}
	app, _, _ := testApp(converter, "vid-123")

	if _, err := app.StartUpload("/videos/meeting.mp4", "Summarize the video"); err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}

	run := waitForStatus(t, app, domain.RunStatusSuccess)
	if run.VideoID != "vid-123" {
		t.Fatalf("video id = %q, want vid-123", run.VideoID)
	}

	var sawResult bool
	for _, ev := range app.RunEvents(0) {
		if ev.Type == runs.EventTypeResult {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatal("expected a result event")
	}
}

// TestStartUploadValidation rejects missing inputs before starting a run.
func TestStartUploadValidation(t *testing.T) {
	app, _, _ := testApp(&fakeConverter{}, "vid-123")

	if _, err := app.StartUpload("   ", "prompt"); !errors.Is(err, pipeline.ErrMissingInput) {
		t.Fatalf("blank path error = %v, want ErrMissingInput", err)
	}
	if _, err := app.StartUpload("/videos/meeting.mp4", "  "); !errors.Is(err, pipeline.ErrMissingInput) {
		t.Fatalf("blank prompt error = %v, want ErrMissingInput", err)
	}

	app.readFile = func(name string) ([]byte, error) {
		return nil, errors.New("no such file")
	}
	if _, err := app.StartUpload("/videos/missing.mp4", "prompt"); err == nil {
		t.Fatal("expected read failure to surface")
	}

	if got := app.CurrentRun().Status; got != domain.RunStatusWaiting {
		t.Fatalf("status = %q, want waiting", got)
	}
}

// TestStartUploadRejectsWhileActive enforces single-run exclusivity.
func TestStartUploadRejectsWhileActive(t *testing.T) {
	converter := &fakeConverter{
		artifact: domain.AudioArtifact{Name: "output.mp3"},
		block:    make(chan struct{}),
	}
	app, _, _ := testApp(converter, "vid-123")

	if _, err := app.StartUpload("/videos/meeting.mp4", "prompt"); err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}
	waitForStatus(t, app, domain.RunStatusConverting)

	if _, err := app.StartUpload("/videos/other.mp4", "prompt"); !errors.Is(err, runs.ErrRunInProgress) {
		t.Fatalf("error = %v, want ErrRunInProgress", err)
	}

	close(converter.block)
	waitForStatus(t, app, domain.RunStatusSuccess)
}

// TestGenerateCompletionStreamsChunks checks completion event delivery.
func TestGenerateCompletionStreamsChunks(t *testing.T) {
	converter := &fakeConverter{artifact: domain.AudioArtifact{Name: "output.mp3"}}
	app, _, backend := testApp(converter, "vid-123")
	backend.chunks = []string{"Top 5 ", "highlights"}

	if _, err := app.StartUpload("/videos/meeting.mp4", "prompt"); err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}
	waitForStatus(t, app, domain.RunStatusSuccess)

	if err := app.GenerateCompletion(); err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		var got string
		for _, ev := range app.RunEvents(0) {
			if ev.Type == runs.EventTypeCompletion {
				got += ev.Message
			}
		}
		if got == "Top 5 highlights" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("completion chunks never arrived, got %q", got)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if backend.gotVideoID != "vid-123" {
		t.Fatalf("completion video id = %q", backend.gotVideoID)
	}
	if backend.gotTemperature != 0.5 {
		t.Fatalf("completion temperature = %v", backend.gotTemperature)
	}
}

// TestGenerateCompletionRequiresTranscribedVideo guards the precondition.
func TestGenerateCompletionRequiresTranscribedVideo(t *testing.T) {
	app, _, _ := testApp(&fakeConverter{}, "vid-123")

	if err := app.GenerateCompletion(); err == nil {
		t.Fatal("expected error before any successful run")
	}
}

// TestSaveSettingsNormalizesAndRepointsBackend checks the settings flow.
func TestSaveSettingsNormalizesAndRepointsBackend(t *testing.T) {
	app, store, backend := testApp(&fakeConverter{}, "vid-123")

	saved, err := app.SaveSettings(domain.Settings{
		BackendURL:  "  http://backend.internal:3333/  ",
		WorkDir:     "  /data/work  ",
		Temperature: 3,
	})
	if err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	if saved.BackendURL != "http://backend.internal:3333" {
		t.Fatalf("backend url = %q", saved.BackendURL)
	}
	if saved.WorkDir != "/data/work" {
		t.Fatalf("work dir = %q", saved.WorkDir)
	}
	if saved.Temperature != 1 {
		t.Fatalf("temperature = %v, want clamped to 1", saved.Temperature)
	}

	if len(store.saved) != 1 || store.saved[0] != saved {
		t.Fatalf("persisted = %+v", store.saved)
	}
	if len(backend.baseURLs) != 1 || backend.baseURLs[0] != saved.BackendURL {
		t.Fatalf("backend repointed with %v", backend.baseURLs)
	}
}

// TestSaveSettingsAppliesDefaultsForEmptyFields checks default fill-in.
func TestSaveSettingsAppliesDefaultsForEmptyFields(t *testing.T) {
	app, _, _ := testApp(&fakeConverter{}, "vid-123")

	saved, err := app.SaveSettings(domain.Settings{Temperature: -1})
	if err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	if saved.BackendURL != "http://localhost:3333" {
		t.Fatalf("backend url = %q, want default", saved.BackendURL)
	}
	if saved.WorkDir == "" {
		t.Fatal("work dir default not applied")
	}
	if saved.Temperature != 0 {
		t.Fatalf("temperature = %v, want clamped to 0", saved.Temperature)
	}
}

// TestStatusMessage maps statuses to the shell's user-facing text.
func TestStatusMessage(t *testing.T) {
	app, _, _ := testApp(&fakeConverter{}, "vid-123")

	if got := app.StatusMessage(domain.RunStatusSuccess); got != "Video uploaded successfully!" {
		t.Fatalf("success message = %q", got)
	}
	if got := app.StatusMessage(domain.RunStatus("bogus")); got != statusMessages[domain.RunStatusWaiting] {
		t.Fatalf("unknown status message = %q", got)
	}
}

// TestGetPromptsFallsBackToBuiltins covers the offline catalog path.
func TestGetPromptsFallsBackToBuiltins(t *testing.T) {
	app, _, backend := testApp(&fakeConverter{}, "vid-123")
	backend.promptsErr = errors.New("backend unreachable")

	prompts := app.GetPrompts()
	if len(prompts) != len(builtinPrompts) {
		t.Fatalf("prompts = %+v", prompts)
	}
	if prompts[0].ID != "youtube-title" {
		t.Fatalf("first prompt = %+v", prompts[0])
	}
}

// TestGetPromptsPrefersBackendCatalog covers the online catalog path.
func TestGetPromptsPrefersBackendCatalog(t *testing.T) {
	app, _, backend := testApp(&fakeConverter{}, "vid-123")
	backend.prompts = []domain.PromptOption{{ID: "p1", Title: "Summary"}}

	prompts := app.GetPrompts()
	if len(prompts) != 1 || prompts[0].ID != "p1" {
		t.Fatalf("prompts = %+v", prompts)
	}
}
