package inference

import "context"

// Request is one decoded media payload plus the instruction pair the
// boundary forwards verbatim.
type Request struct {
	MIMEType          string
	Data              []byte
	SystemInstruction string
	UserPrompt        string
}

// Provider is a pluggable model backend for the /api/transcribe boundary.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
