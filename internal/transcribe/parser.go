package transcribe

import (
	"regexp"
	"strings"
)

const (
	fallbackTranscriptionPrefix = "No se pudo extraer la transcripción. Respuesta completa:\n"

	// FallbackNotes is returned verbatim when the notes section is absent.
	FallbackNotes = "No se pudieron extraer las notas."
)

// The markers are matched case-insensitively against the raw text itself,
// never against a lowered copy: simple case mapping can change byte
// lengths (İ shrinks, Ⱥ grows), so indexes are only valid in the string
// they were found in.
var (
	markerTranscription = regexp.MustCompile(`(?i)transcripción fiel:?`)
	markerNotes         = regexp.MustCompile(`(?i)notas de observación:?`)
)

// Result is the fixed two-field record the pipeline surfaces. Both fields
// are always populated.
type Result struct {
	Transcription string `json:"transcription"`
	Notes         string `json:"notes"`
}

// ParseResponse splits the model's free-form output into its two labeled
// sections. A missing marker degrades to fallback text instead of
// failing, so no input ever raises and no text is lost.
func ParseResponse(raw string) Result {
	transLoc := markerTranscription.FindStringIndex(raw)
	notesLoc := markerNotes.FindStringIndex(raw)

	var res Result

	if transLoc != nil {
		end := len(raw)
		if notesLoc != nil && notesLoc[0] >= transLoc[1] {
			end = notesLoc[0]
		}
		res.Transcription = strings.TrimSpace(raw[transLoc[1]:end])
	} else {
		res.Transcription = fallbackTranscriptionPrefix + raw
	}

	if notesLoc != nil {
		res.Notes = strings.TrimSpace(raw[notesLoc[1]:])
	} else {
		res.Notes = FallbackNotes
	}

	return res
}
