package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiRecap generates short trip recap sentences using Google's Gemini
// models. Callers must treat it as optional: any error falls back to the
// plain template message.
type GeminiRecap struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiRecap initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiRecap(ctx context.Context, apiKey string) (*GeminiRecap, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Gemini 2.0 Flash for low latency and cost efficiency.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.4)

	return &GeminiRecap{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (g *GeminiRecap) Close() {
	g.client.Close()
}

// Recap produces one friendly sentence summarizing a completed trip,
// suitable for appending to a caregiver notification.
func (g *GeminiRecap) Recap(ctx context.Context, pickupAddress, dropoffAddress, driverName string) (string, error) {
	prompt := fmt.Sprintf(
		"Write exactly one short, warm sentence (no preamble, no quotes) telling a family member that their relative's medical transport trip finished. Pickup: %s. Dropoff: %s. Driver: %s.",
		pickupAddress, dropoffAddress, driverName,
	)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(out.String()), nil
}
