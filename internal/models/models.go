package models

import (
	"time"

	"transcriptorClinico/internal/media"
	"transcriptorClinico/internal/transcribe"
)

// Status represents the state of one pipeline stage.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// InFlight reports whether a stage is currently busy.
func (s Status) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Session is one user attempt: a submitted file, the optimized audio
// derived from it and, once triggered, its transcription outcome. The
// optimized artifact never leaves the server.
type Session struct {
	ID            string `json:"id"`
	InputFileName string `json:"input_file_name"`
	InputMIME     string `json:"input_mime"`
	InputSize     int64  `json:"input_size"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`

	Audio *media.OptimizedAudio `json:"-"`

	TranscriptStatus Status             `json:"transcript_status"`
	TranscriptError  string             `json:"transcript_error,omitempty"`
	Result           *transcribe.Result `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AudioReady reports whether the transcribe action may be enabled.
func (s *Session) AudioReady() bool {
	return s.Status == StatusCompleted && s.Audio != nil
}

// ProgressEvent is pushed to clients over WebSocket.
type ProgressEvent struct {
	ID       string             `json:"id"`
	Stage    string             `json:"stage"`
	Status   Status             `json:"status"`
	Progress int                `json:"progress"`
	Message  string             `json:"message,omitempty"`
	Error    string             `json:"error,omitempty"`
	Result   *transcribe.Result `json:"result,omitempty"`
}
