package media

import (
	"bytes"
	"encoding/base64"
	"errors"
)

// ErrEmptyPayload signals that encoding produced no payload at all. An
// empty payload is an error, never an empty string on the wire.
var ErrEmptyPayload = errors.New("no se pudo codificar el archivo: contenido vacío")

// RawMedia is the file the user submitted, held only for the duration of
// one transcode attempt.
type RawMedia struct {
	Name string
	MIME string
	Size int64
	Data []byte
}

// OptimizedAudio is the compact mono 16 kHz artifact produced by the
// transcode stage. At most one exists per session.
type OptimizedAudio struct {
	Filename string
	MIME     string
	Data     []byte
}

// Encoded is a transport-safe rendering of an audio blob.
type Encoded struct {
	Data string
	MIME string
}

// EncodeBase64 turns the optimized audio into its wire form. Blobs that
// arrive as data URLs keep only the payload after the comma, mirroring
// what a browser FileReader would hand over.
func EncodeBase64(audio *OptimizedAudio) (Encoded, error) {
	if audio == nil || len(audio.Data) == 0 {
		return Encoded{}, ErrEmptyPayload
	}

	payload := audio.Data
	if bytes.HasPrefix(payload, []byte("data:")) {
		i := bytes.IndexByte(payload, ',')
		if i < 0 || i == len(payload)-1 {
			return Encoded{}, ErrEmptyPayload
		}
		return Encoded{Data: string(payload[i+1:]), MIME: audio.MIME}, nil
	}

	return Encoded{
		Data: base64.StdEncoding.EncodeToString(payload),
		MIME: audio.MIME,
	}, nil
}
