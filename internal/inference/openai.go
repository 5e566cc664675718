package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is the superseded-draft provider: it runs Whisper transcription
// over the decoded payload. It cannot honor the system instruction, so the
// downstream parser degrades to its fallback sections.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		Reader:   bytes.NewReader(req.Data),
		FilePath: "audio" + extensionForMIME(req.MIMEType),
		Prompt:   req.UserPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if resp.Text == "" {
		return "", errors.New("openai: la respuesta no contiene texto")
	}
	return resp.Text, nil
}

func extensionForMIME(mime string) string {
	switch mime {
	case "audio/mp3", "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}
