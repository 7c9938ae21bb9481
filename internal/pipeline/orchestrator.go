package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"upload-ai/internal/domain"
	"upload-ai/internal/ffmpeg"
	"upload-ai/internal/runs"
)

// ErrMissingInput is returned when a run is invoked without both a video
// selection and a non-empty prompt. No side effects occur in that case.
var ErrMissingInput = errors.New("video selection and prompt are required")

// Converter is the local transcoding capability consumed by the pipeline.
type Converter interface {
	Convert(ctx context.Context, video domain.VideoSelection, opts ffmpeg.ConvertOptions) (domain.AudioArtifact, error)
}

// Backend performs the two network calls of a run against the REST contract.
type Backend interface {
	UploadAudio(ctx context.Context, artifact domain.AudioArtifact) (string, error)
	RequestTranscription(ctx context.Context, videoID, prompt string) error
}

// Orchestrator drives the convert-upload-generate sequence for one run at a
// time and owns the run status. Presentation layers observe it through the
// event history or a push notifier, they never own pipeline state.
type Orchestrator struct {
	converter Converter
	backend   Backend
	manager   *runs.Manager
	events    *runs.EventBus
	newRunID  func() string

	mu     sync.Mutex
	notify func(event runs.Event)
}

// New constructs an orchestrator over the given engine and upload client.
func New(converter Converter, backend Backend) *Orchestrator {
	return &Orchestrator{
		converter: converter,
		backend:   backend,
		manager:   runs.NewManager(),
		events:    runs.NewEventBus(1000),
		newRunID: func() string {
			return "run-" + uuid.NewString()
		},
	}
}

// SetNotifier installs a push callback invoked for every published event.
func (o *Orchestrator) SetNotifier(fn func(event runs.Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notify = fn
}

// Current returns a snapshot of the current run.
func (o *Orchestrator) Current() domain.Run {
	return o.manager.Current()
}

// Events returns all published events with sequence greater than sinceSeq.
func (o *Orchestrator) Events(sinceSeq int64) []runs.Event {
	return o.events.Since(sinceSeq)
}

// Run executes the full pipeline for one video selection: convert locally,
// upload the audio, then trigger transcription. It blocks until the run
// reaches a terminal status and returns the final run snapshot. Stage
// failures map the run to its error state and surface the originating error
// unmodified; no stage is skipped or retried. A second call while a run is
// active is rejected with runs.ErrRunInProgress and leaves the first run
// untouched.
func (o *Orchestrator) Run(ctx context.Context, selection domain.VideoSelection, prompt string) (domain.Run, error) {
	if len(selection.Data) == 0 || strings.TrimSpace(prompt) == "" {
		return o.manager.Current(), ErrMissingInput
	}

	runID := o.newRunID()
	if err := o.manager.Start(runID); err != nil {
		return o.manager.Current(), err
	}

	o.publishStatus(runID, domain.RunStatusConverting, "Converting video to audio")
	artifact, err := o.converter.Convert(ctx, selection, ffmpeg.ConvertOptions{
		OnProgress: func(progress float64) {
			o.publish(runs.Event{
				RunID:    runID,
				Type:     runs.EventTypeProgress,
				Status:   domain.RunStatusConverting,
				Progress: progress,
			})
		},
		OnLog: func(log ffmpeg.CommandLog) {
			o.publish(runs.Event{
				RunID:    runID,
				Type:     runs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stderr:   log.Stderr,
			})
		},
	})
	if err != nil {
		return o.fail(runID, err)
	}

	if err := o.manager.Transition(domain.RunStatusUploading); err != nil {
		return o.fail(runID, err)
	}
	o.publishStatus(runID, domain.RunStatusUploading, "Uploading audio")

	videoID, err := o.backend.UploadAudio(ctx, artifact)
	if err != nil {
		return o.fail(runID, err)
	}
	o.manager.SetVideoID(videoID)

	if err := o.manager.Transition(domain.RunStatusGenerating); err != nil {
		return o.fail(runID, err)
	}
	o.publishStatus(runID, domain.RunStatusGenerating, "Requesting transcription")

	if err := o.backend.RequestTranscription(ctx, videoID, prompt); err != nil {
		return o.fail(runID, err)
	}

	if err := o.manager.Transition(domain.RunStatusSuccess); err != nil {
		return o.fail(runID, err)
	}
	o.publishStatus(runID, domain.RunStatusSuccess, "Run completed")
	o.publish(runs.Event{
		RunID:   runID,
		Type:    runs.EventTypeResult,
		Status:  domain.RunStatusSuccess,
		Message: "Transcription requested",
		VideoID: videoID,
	})

	return o.manager.Current(), nil
}

// fail maps any stage failure to the terminal error state. The originating
// error is preserved for the caller; the status only says which stage failed.
func (o *Orchestrator) fail(runID string, err error) (domain.Run, error) {
	o.manager.Fail(err.Error())
	o.publishStatus(runID, domain.RunStatusError, "Run failed")
	o.publish(runs.Event{
		RunID:   runID,
		Type:    runs.EventTypeError,
		Status:  domain.RunStatusError,
		Message: err.Error(),
	})

	var convErr *ffmpeg.ConversionError
	if errors.As(err, &convErr) && convErr.CommandLog.Command != "" {
		o.publish(runs.Event{
			RunID:    runID,
			Type:     runs.EventTypeLog,
			Message:  "Failed command",
			Command:  convErr.CommandLog.Command,
			Args:     convErr.CommandLog.Args,
			ExitCode: convErr.CommandLog.ExitCode,
			Stderr:   convErr.CommandLog.Stderr,
		})
	}

	return o.manager.Current(), err
}

// publishStatus sends a normalized status event.
func (o *Orchestrator) publishStatus(runID string, status domain.RunStatus, message string) {
	o.publish(runs.Event{
		RunID:   runID,
		Type:    runs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// Publish stores one event in the run history and forwards it to the
// installed notifier. The shell uses it for non-pipeline events such as
// completion chunks.
func (o *Orchestrator) Publish(event runs.Event) runs.Event {
	published := o.events.Publish(event)

	o.mu.Lock()
	notify := o.notify
	o.mu.Unlock()
	if notify != nil {
		notify(published)
	}
	return published
}

// publish is the internal shorthand used by pipeline stages.
func (o *Orchestrator) publish(event runs.Event) {
	o.Publish(event)
}

// NewForTests constructs an orchestrator with a deterministic run id source.
func NewForTests(converter Converter, backend Backend, newRunID func() string) *Orchestrator {
	o := New(converter, backend)
	if newRunID != nil {
		o.newRunID = newRunID
	}
	return o
}
