package gemini

import (
	"time"

	"github.com/google/generative-ai-go/genai"
)

// Config holds the configuration for Gemini generation.
type Config struct {
	// APIKey authenticates against the Generative Language API.
	APIKey string
	// Model is the Gemini model name; it is also stored as the insight's
	// model version label.
	Model string
	// Temperature, TopK, TopP and MaxOutputTokens are fixed per deployment,
	// never taken from the caller.
	Temperature     float32
	TopK            int32
	TopP            float32
	MaxOutputTokens int32
	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// DefaultConfig provides the generation settings dream interpretation uses.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-1.5-pro",
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 1024,
		Timeout:         30 * time.Second,
	}
}

// safetySettings block harassment and hate speech at medium severity and up.
func safetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
	}
}
