package domain

// RunStatus tracks each pipeline stage for a single upload run.
type RunStatus string

const (
	RunStatusWaiting    RunStatus = "waiting"
	RunStatusConverting RunStatus = "converting"
	RunStatusUploading  RunStatus = "uploading"
	RunStatusGenerating RunStatus = "generating"
	RunStatusSuccess    RunStatus = "success"
	RunStatusError      RunStatus = "error"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	BackendURL  string  `json:"backendUrl"`
	WorkDir     string  `json:"workDir"`
	Temperature float64 `json:"temperature"`
}

// VideoSelection is the user-picked video payload for one run.
type VideoSelection struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"-"`
}

// AudioArtifact is the transcoded audio payload produced by the engine.
type AudioArtifact struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Codec     string `json:"codec"`
	Bitrate   string `json:"bitrate"`
	Data      []byte `json:"-"`
}

// Run stores the current run identity, lifecycle status, and outcome.
type Run struct {
	ID      string    `json:"id"`
	Status  RunStatus `json:"status"`
	VideoID string    `json:"videoId,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// PromptOption is one reusable transcription prompt template from the backend.
type PromptOption struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Template string `json:"template"`
}
