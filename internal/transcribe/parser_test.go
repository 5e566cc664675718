package transcribe

import (
	"strings"
	"testing"
)

func TestParseResponseBothSections(t *testing.T) {
	raw := "Transcripción Fiel:\nHola, buenos días doctor.\n\nNotas de Observación:\nVoz tranquila, sin pausas largas.\n"

	res := ParseResponse(raw)

	if res.Transcription != "Hola, buenos días doctor." {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Notes != "Voz tranquila, sin pausas largas." {
		t.Errorf("notes = %q", res.Notes)
	}
}

func TestParseResponseIsCaseInsensitive(t *testing.T) {
	raw := "TRANSCRIPCIÓN FIEL: uno dos tres NOTAS DE OBSERVACIÓN: habla rápido"

	res := ParseResponse(raw)

	if res.Transcription != "uno dos tres" {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Notes != "habla rápido" {
		t.Errorf("notes = %q", res.Notes)
	}
}

func TestParseResponseMissingNotes(t *testing.T) {
	raw := "Transcripción Fiel:\nSolo la transcripción."

	res := ParseResponse(raw)

	if res.Transcription != "Solo la transcripción." {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Notes != FallbackNotes {
		t.Errorf("notes = %q, want exact fallback %q", res.Notes, FallbackNotes)
	}
}

func TestParseResponseMissingBothSections(t *testing.T) {
	for _, raw := range []string{
		"",
		"el modelo respondió cualquier cosa",
		"{\"unexpected\":\"json\"}",
		strings.Repeat("x", 10_000),
	} {
		res := ParseResponse(raw)

		if res.Transcription == "" {
			t.Errorf("transcription empty for %q", raw)
		}
		if !strings.Contains(res.Transcription, raw) {
			t.Errorf("fallback transcription does not embed the raw text")
		}
		if res.Notes != FallbackNotes {
			t.Errorf("notes = %q, want %q", res.Notes, FallbackNotes)
		}
	}
}

func TestParseResponseOnlyNotes(t *testing.T) {
	raw := "Notas de Observación:\ntono monótono"

	res := ParseResponse(raw)

	if !strings.Contains(res.Transcription, raw) {
		t.Errorf("transcription fallback should embed raw text, got %q", res.Transcription)
	}
	if res.Notes != "tono monótono" {
		t.Errorf("notes = %q", res.Notes)
	}
}

func TestParseResponseTrimsWhitespace(t *testing.T) {
	raw := "Transcripción Fiel:   \n\n  contenido  \n\nNotas de Observación:\n\n  nota  \n"

	res := ParseResponse(raw)

	if res.Transcription != "contenido" {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Notes != "nota" {
		t.Errorf("notes = %q", res.Notes)
	}
}

func TestParseResponseLengthChangingUnicodeAroundMarkers(t *testing.T) {
	// Simple case mapping is not length-stable: İ (U+0130) lowers to a
	// shorter encoding and Ⱥ (U+023A) to a longer one. Offsets must stay
	// native to the input so surrounding text like this cannot shift the
	// sections or push a slice out of range.
	cases := []struct {
		name              string
		raw               string
		wantTranscription string
		wantNotes         string
	}{
		{
			name:              "growing mapping before marker",
			raw:               strings.Repeat("Ⱥ", 50) + "Transcripción Fiel: hola",
			wantTranscription: "hola",
			wantNotes:         FallbackNotes,
		},
		{
			name:              "shrinking mapping before markers",
			raw:               "İİİİ Transcripción Fiel: hola Notas de Observación: nota",
			wantTranscription: "hola",
			wantNotes:         "nota",
		},
		{
			name:              "mixed mappings between sections",
			raw:               "Transcripción Fiel: İȺİ texto Notas de Observación: Ⱥ nota",
			wantTranscription: "İȺİ texto",
			wantNotes:         "Ⱥ nota",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ParseResponse(tc.raw)
			if res.Transcription != tc.wantTranscription {
				t.Errorf("transcription = %q, want %q", res.Transcription, tc.wantTranscription)
			}
			if res.Notes != tc.wantNotes {
				t.Errorf("notes = %q, want %q", res.Notes, tc.wantNotes)
			}
		})
	}
}

func TestParseResponseNeverPanicsOnArbitraryInput(t *testing.T) {
	// A marker at the very end legitimately yields an empty section, so
	// this only asserts the call returns for inputs that would break
	// offset arithmetic: length-changing case mappings, invalid UTF-8
	// and out-of-order markers.
	inputs := []string{
		strings.Repeat("Ⱥ", 200),
		strings.Repeat("İ", 200) + "Transcripción Fiel:",
		"Transcripción Fiel: \xff\xfe truncado",
		"notas de observaciÓn: Transcripción fiel: invertidas",
	}
	for _, raw := range inputs {
		res := ParseResponse(raw)
		if res.Notes == "" && res.Transcription == "" {
			t.Errorf("both fields empty for input %q", raw)
		}
	}
}

func TestParseResponseHeadersWithoutColon(t *testing.T) {
	raw := "Transcripción Fiel\ntexto\nNotas de Observación\nnota"

	res := ParseResponse(raw)

	if res.Transcription != "texto" {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Notes != "nota" {
		t.Errorf("notes = %q", res.Notes)
	}
}
