package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"transcriptorClinico/internal/media"
)

var (
	// ErrCommunication means no usable response came back at all.
	ErrCommunication = errors.New("no se pudo comunicar con el servicio de transcripción")

	// ErrNoText means the boundary answered 200 but without the text field.
	ErrNoText = errors.New("la respuesta del servicio no contiene texto")
)

// ServerError carries the message the inference boundary attached to a
// non-success status.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("el servicio rechazó la solicitud (%d): %s", e.Status, e.Message)
}

// Client submits encoded audio to the inference boundary. One request per
// call, no retries; re-submission is the caller's decision.
type Client struct {
	logger   *slog.Logger
	endpoint string
	httpc    *http.Client
}

func NewClient(logger *slog.Logger, endpoint string) *Client {
	return &Client{
		logger:   logger,
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 10 * time.Minute},
	}
}

type submitRequest struct {
	MediaData         string `json:"mediaData"`
	MimeType          string `json:"mimeType"`
	SystemInstruction string `json:"systemInstruction"`
	UserPrompt        string `json:"userPrompt"`
}

type submitResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Submit posts the encoded audio with the fixed instruction pair and
// returns the raw model text for parsing.
func (c *Client) Submit(ctx context.Context, enc media.Encoded) (string, error) {
	body, err := json.Marshal(submitRequest{
		MediaData:         enc.Data,
		MimeType:          enc.MIME,
		SystemInstruction: SystemInstruction,
		UserPrompt:        UserPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}

	var parsed submitResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		c.logger.Warn("transcription rejected", "status", resp.StatusCode, "message", msg)
		return "", &ServerError{Status: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, decodeErr)
	}
	if parsed.Text == "" {
		return "", ErrNoText
	}
	return parsed.Text, nil
}
