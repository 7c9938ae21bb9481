package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"upload-ai/internal/domain"
)

// UploadError reports a rejected or unreachable binary upload. StatusCode is
// the backend response code when one was received, zero otherwise.
type UploadError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// Error formats upload failures with the backend status attached.
func (e *UploadError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload audio: %s (status %d)", e.Message, e.StatusCode)
	}
	return "upload audio: " + e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *UploadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TranscriptionRequestError reports a rejected or unreachable
// transcription-trigger call.
type TranscriptionRequestError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// Error formats transcription-trigger failures with the backend status.
func (e *TranscriptionRequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("request transcription: %s (status %d)", e.Message, e.StatusCode)
	}
	return "request transcription: " + e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *TranscriptionRequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Client performs the backend calls that persist audio artifacts and request
// transcription. It is stateless request/response: no retries and no timeout
// of its own, the caller bounds each call through its context.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against the given backend base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// SetBaseURL repoints the client, e.g. after a settings change.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// base returns the current backend base URL.
func (c *Client) base() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// uploadResponse is the acknowledgment body of POST /videos.
type uploadResponse struct {
	Video struct {
		ID string `json:"id"`
	} `json:"video"`
}

// UploadAudio issues the multipart upload and returns the backend video id.
func (c *Client) UploadAudio(ctx context.Context, artifact domain.AudioArtifact) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, artifact.Name))
	header.Set("Content-Type", artifact.MediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", &UploadError{Message: "build multipart body", Err: err}
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return "", &UploadError{Message: "write multipart payload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{Message: "finalize multipart body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/videos", &body)
	if err != nil {
		return "", &UploadError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Message: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return "", &UploadError{
			StatusCode: resp.StatusCode,
			Message:    "backend rejected upload",
		}
	}

	var ack uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", &UploadError{
			StatusCode: resp.StatusCode,
			Message:    "malformed upload acknowledgment",
			Err:        err,
		}
	}
	if strings.TrimSpace(ack.Video.ID) == "" {
		return "", &UploadError{
			StatusCode: resp.StatusCode,
			Message:    "upload acknowledgment is missing video id",
		}
	}

	return ack.Video.ID, nil
}

// RequestTranscription asks the backend to schedule transcription for an
// uploaded video. A 2xx only confirms the request was accepted, the backend
// transcribes asynchronously.
func (c *Client) RequestTranscription(ctx context.Context, videoID, prompt string) error {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return &TranscriptionRequestError{Message: "encode request body", Err: err}
	}

	url := fmt.Sprintf("%s/videos/%s/transcription", c.base(), videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &TranscriptionRequestError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TranscriptionRequestError{Message: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return &TranscriptionRequestError{
			StatusCode: resp.StatusCode,
			Message:    "backend rejected transcription request",
		}
	}

	// Body is an acknowledgment only and is not otherwise inspected.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchPrompts loads the reusable prompt templates from the backend.
func (c *Client) FetchPrompts(ctx context.Context) ([]domain.PromptOption, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/prompts", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prompts: %w", err)
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return nil, fmt.Errorf("fetch prompts: backend returned status %d", resp.StatusCode)
	}

	var prompts []domain.PromptOption
	if err := json.NewDecoder(resp.Body).Decode(&prompts); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	return prompts, nil
}

// Complete requests the downstream AI completion for a transcribed video and
// streams the response text to onChunk as it arrives.
func (c *Client) Complete(ctx context.Context, videoID string, temperature float64, onChunk func(chunk string)) error {
	payload, err := json.Marshal(map[string]any{
		"videoId":     videoID,
		"temperature": temperature,
	})
	if err != nil {
		return fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/ai/complete", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request completion: %w", err)
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return fmt.Errorf("request completion: backend returned status %d", resp.StatusCode)
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && onChunk != nil {
			onChunk(string(buf[:n]))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read completion stream: %w", err)
		}
	}
}

// is2xx reports whether a status code is a success acknowledgment.
func is2xx(status int) bool {
	return status >= 200 && status < 300
}
