package bootstrap

import (
	"context"
	"time"

	"upload-ai/internal/domain"
)

const promptFetchTimeout = 15 * time.Second

// builtinPrompts are offline fallbacks mirroring the backend's seeded
// catalog, used when the prompt list cannot be fetched.
var builtinPrompts = []domain.PromptOption{
	{
		ID:    "youtube-title",
		Title: "YouTube title",
		Template: "Generate three catchy title options for a YouTube video based on the transcription below.\n\n" +
			"'''\n{transcription}\n'''",
	},
	{
		ID:    "youtube-description",
		Title: "YouTube description",
		Template: "Generate a succinct YouTube video description based on the transcription below. " +
			"Start with a short summary, then list the main topics as bullet points.\n\n" +
			"'''\n{transcription}\n'''",
	},
}

// GetPrompts loads the prompt catalog from the backend, falling back to the
// built-in presets when the backend cannot be reached.
func (a *App) GetPrompts() []domain.PromptOption {
	ctx, cancel := context.WithTimeout(context.Background(), promptFetchTimeout)
	defer cancel()

	prompts, err := a.Backend.FetchPrompts(ctx)
	if err != nil || len(prompts) == 0 {
		fallback := make([]domain.PromptOption, len(builtinPrompts))
		copy(fallback, builtinPrompts)
		return fallback
	}
	return prompts
}
