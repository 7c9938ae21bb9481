package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"upload-ai/internal/domain"
)

const (
	inputFileName  = "input.mp4"
	outputFileName = "output.mp3"

	audioCodec   = "libmp3lame"
	audioBitrate = "20k"
	audioFormat  = "mp3"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// InitError reports that the transcoding engine failed to become ready.
// The failed initialization is not retried for the process lifetime.
type InitError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error formats engine readiness failures for logs and UI.
func (e *InitError) Error() string {
	if e == nil {
		return ""
	}
	return "engine init: " + e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConversionError reports a failed transcode with optional command context.
type ConversionError struct {
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats conversion failures for logs and UI.
func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return "convert: " + e.Message
	}

	return fmt.Sprintf(
		"convert: %s (cmd=%s exit=%d)",
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConvertOptions carries the best-effort observation callbacks for one
// conversion. Progress values are in the range 0.0 to 1.0 and may be coarse
// or absent for very short inputs.
type ConvertOptions struct {
	OnProgress func(progress float64)
	OnLog      func(log CommandLog)
}

// Engine wraps the local ffmpeg transcoding capability. One engine is shared
// process-wide; it becomes ready lazily on first use. Callers must serialize
// conversions, the engine does not queue concurrent invocations.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	runner      commandRunner
	lookPath    func(file string) (string, error)
	mkdirAll    func(path string, perm os.FileMode) error
	writeFile   func(name string, data []byte, perm os.FileMode) error
	readFile    func(name string) ([]byte, error)
	stat        func(name string) (os.FileInfo, error)

	initOnce sync.Once
	initErr  error
}

// NewEngine constructs the production engine with OS dependencies. The work
// directory holds the fixed-name input and output entries for each run;
// entries from a prior run are overwritten, never guaranteed cleaned up.
func NewEngine(workDir string) *Engine {
	return &Engine{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		workDir:     workDir,
		runner:      &execRunner{},
		lookPath:    exec.LookPath,
		mkdirAll:    os.MkdirAll,
		writeFile:   os.WriteFile,
		readFile:    os.ReadFile,
		stat:        os.Stat,
	}
}

// Init makes the engine ready for conversions. It is idempotent and safe for
// concurrent callers, all of whom observe the single initialization outcome.
func (e *Engine) Init() error {
	e.initOnce.Do(func() {
		e.initErr = e.initialize()
	})
	return e.initErr
}

// initialize verifies the engine binaries and prepares the workspace.
func (e *Engine) initialize() error {
	for _, tool := range []string{e.ffmpegPath, e.ffprobePath} {
		if _, err := e.lookPath(tool); err != nil {
			return &InitError{
				Message: fmt.Sprintf("tool not found in PATH: %s", tool),
				Err:     err,
			}
		}
	}

	if err := e.mkdirAll(e.workDir, 0o755); err != nil {
		return &InitError{
			Message: fmt.Sprintf("cannot create engine workspace: %s", e.workDir),
			Err:     err,
		}
	}
	return nil
}

// Convert transcodes one video payload into a 20 kb/s mp3 audio artifact.
// The input is written into the workspace under a fixed name, ffmpeg extracts
// the audio-only stream, and the output file is read back wholesale.
func (e *Engine) Convert(ctx context.Context, video domain.VideoSelection, opts ConvertOptions) (domain.AudioArtifact, error) {
	if err := e.Init(); err != nil {
		return domain.AudioArtifact{}, err
	}

	if len(video.Data) == 0 {
		return domain.AudioArtifact{}, &ConversionError{
			Message: "video payload is empty",
		}
	}

	inputPath := filepath.Join(e.workDir, inputFileName)
	outPath := filepath.Join(e.workDir, outputFileName)
	if err := e.writeFile(inputPath, video.Data, 0o644); err != nil {
		return domain.AudioArtifact{}, &ConversionError{
			Message: "cannot write input into engine workspace",
			Err:     err,
		}
	}

	duration := e.probeDuration(ctx, inputPath)

	args := buildConvertArgs(inputPath, outPath)
	result, runErr := e.runner.Run(ctx, progressLineParser(duration, opts.OnProgress), e.ffmpegPath, args...)
	log := CommandLog{
		Command:  e.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	emitLog(opts.OnLog, log)
	if runErr != nil {
		return domain.AudioArtifact{}, &ConversionError{
			Message:    "ffmpeg audio conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	if _, err := e.stat(outPath); err != nil {
		return domain.AudioArtifact{}, &ConversionError{
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	data, err := e.readFile(outPath)
	if err != nil {
		return domain.AudioArtifact{}, &ConversionError{
			Message:    fmt.Sprintf("failed to read converted audio: %s", outPath),
			CommandLog: log,
			Err:        err,
		}
	}

	return domain.AudioArtifact{
		Name:      outputFileName,
		MediaType: "audio/mpeg",
		Codec:     audioCodec,
		Bitrate:   audioBitrate,
		Data:      data,
	}, nil
}

// probeDuration reads the input duration in seconds for progress reporting.
// Probing is best-effort: on any failure progress is simply not emitted and
// the conversion itself decides whether the input is usable.
func (e *Engine) probeDuration(ctx context.Context, inputPath string) float64 {
	result, err := e.runner.Run(ctx, nil, e.ffprobePath, buildProbeArgs(inputPath)...)
	if err != nil {
		return 0
	}

	raw := strings.TrimSpace(result.Stdout)
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}

	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil || duration <= 0 {
		return 0
	}
	return duration
}

// emitLog forwards command logs when a callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// progressLineParser maps ffmpeg -progress key=value lines to a 0..1 ratio.
// Returns nil when no callback is set or the duration is unknown, in which
// case progress reporting is silently skipped.
func progressLineParser(durationSeconds float64, onProgress func(float64)) func(line string) {
	if onProgress == nil {
		return nil
	}

	return func(line string) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			return
		}

		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds.
			if durationSeconds <= 0 {
				return
			}
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 {
				return
			}
			onProgress(clampProgress(float64(us) / 1e6 / durationSeconds))
		case "progress":
			if strings.TrimSpace(value) == "end" {
				onProgress(1)
			}
		}
	}
}

// clampProgress bounds a progress ratio to the reportable range.
func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// buildConvertArgs builds the fixed ffmpeg arguments: audio-only stream
// extraction at 20 kb/s mp3, with machine-readable progress on stdout.
func buildConvertArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-progress", "pipe:1",
		"-i", inputPath,
		"-map", "0:a",
		"-b:a", audioBitrate,
		"-acodec", audioCodec,
		"-f", audioFormat,
		outPath,
	}
}

// buildProbeArgs builds ffprobe arguments that print only the container
// duration in seconds.
func buildProbeArgs(inputPath string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	}
}

// NewEngineForTests constructs an engine with injectable dependencies.
func NewEngineForTests(
	ffmpegPath string,
	ffprobePath string,
	workDir string,
	runner commandRunner,
	lookPath func(file string) (string, error),
) *Engine {
	return &Engine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
		runner:      runner,
		lookPath:    lookPath,
		mkdirAll:    os.MkdirAll,
		writeFile:   os.WriteFile,
		readFile:    os.ReadFile,
		stat:        os.Stat,
	}
}
