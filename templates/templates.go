// Package templates renders the server pages. The pages are thin shells:
// all pipeline state arrives over the session websocket.
package templates

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"

	"transcriptorClinico/internal/models"
)

func layout(title string, body func(w io.Writer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<link rel="stylesheet" href="/static/styles.css">
</head>
<body>
<header><h1>Transcriptor Clínico</h1></header>
<main>
`, html.EscapeString(title)); err != nil {
			return err
		}
		if err := body(w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</main>\n<footer>Optimización de audio + transcripción asistida</footer>\n</body>\n</html>\n")
		return err
	})
}

// IndexPage shows the upload form and the latest sessions.
func IndexPage(recent []*models.Session) templ.Component {
	return layout("Transcriptor Clínico", func(w io.Writer) error {
		if _, err := io.WriteString(w, `<section class="uploader">
<p>Sube tu video o audio. El sistema extraerá y optimizará el audio automáticamente para el análisis.</p>
<form action="/upload" method="post" enctype="multipart/form-data">
<input type="file" name="media" accept="video/*,audio/*" required>
<button type="submit">Procesar archivo</button>
</form>
</section>
`); err != nil {
			return err
		}

		if len(recent) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, "<section class=\"recent\">\n<h2>Sesiones recientes</h2>\n<ul>\n"); err != nil {
			return err
		}
		for _, s := range recent {
			if _, err := fmt.Fprintf(w, "<li><a href=\"/session/%s\">%s</a> — %s</li>\n",
				html.EscapeString(s.ID), html.EscapeString(s.InputFileName), html.EscapeString(string(s.Status))); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>\n</section>\n")
		return err
	})
}

// SessionPage shows one session: progress bar, transcribe trigger and the
// two-field result table, all driven by websocket events.
func SessionPage(s *models.Session) templ.Component {
	return layout("Sesión "+s.ID, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<section class="session" data-session-id="%s">
<h2>%s</h2>
<div class="progress"><div id="bar" style="width:%d%%"></div></div>
<p id="status">%s</p>
<p id="error" class="error"></p>
<button id="transcribe" disabled>Iniciar Transcripción Clínica</button>
<table id="result" hidden>
<tr><th>Transcripción Fiel</th><th>Notas de Observación</th></tr>
<tr><td id="transcription"></td><td id="notes"></td></tr>
</table>
</section>
`, html.EscapeString(s.ID), html.EscapeString(s.InputFileName), s.Progress, html.EscapeString(string(s.Status))); err != nil {
			return err
		}

		_, err := io.WriteString(w, `<script>
(function () {
  const section = document.querySelector('.session');
  const id = section.dataset.sessionId;
  const bar = document.getElementById('bar');
  const status = document.getElementById('status');
  const errBox = document.getElementById('error');
  const button = document.getElementById('transcribe');
  const table = document.getElementById('result');

  button.addEventListener('click', function () {
    button.disabled = true;
    fetch('/transcribe/' + id);
  });

  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/ws/' + id);
  ws.onmessage = function (msg) {
    const evt = JSON.parse(msg.data);
    errBox.textContent = evt.error || '';
    status.textContent = evt.message || evt.status;
    if (evt.stage === 'transcode') {
      bar.style.width = (evt.progress || 0) + '%';
      button.disabled = evt.status !== 'completed';
    }
    if (evt.stage === 'transcription') {
      button.disabled = evt.status === 'queued' || evt.status === 'processing';
      if (evt.status === 'completed' && evt.result) {
        document.getElementById('transcription').textContent = evt.result.transcription;
        document.getElementById('notes').textContent = evt.result.notes;
        table.hidden = false;
      }
    }
  };
})();
</script>
`)
		return err
	})
}
