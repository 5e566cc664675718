package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"transcriptorClinico/internal/inference"
	"transcriptorClinico/internal/models"
	"transcriptorClinico/internal/pipeline"
	"transcriptorClinico/templates"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const defaultMaxUploadBytes = 500 * 1024 * 1024

type App struct {
	logger *slog.Logger

	router   *chi.Mux
	pipeline *pipeline.Pipeline
	provider inference.Provider

	maxUploadBytes int64

	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

func NewApp(logger *slog.Logger, pl *pipeline.Pipeline, provider inference.Provider, maxUploadBytes int64) *App {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}

	app := &App{
		logger:         logger,
		router:         chi.NewRouter(),
		pipeline:       pl,
		provider:       provider,
		maxUploadBytes: maxUploadBytes,
		subs:           make(map[string]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	pl.SetNotifier(app.broadcast)
	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(45 * time.Minute))
	a.router.Use(a.corsMiddleware)

	a.router.Get("/", a.index)
	a.router.Post("/upload", a.upload)
	a.router.Get("/session/{id}", a.sessionPage)
	a.router.Get("/transcribe/{id}", a.startTranscription)
	a.router.Get("/ws/{id}", a.sessionWS)
	a.router.Get("/healthz", a.health)

	a.router.Post("/api/transcribe", a.apiTranscribe)

	staticFS := http.FileServer(http.Dir("static"))
	a.router.Handle("/static/*", http.StripPrefix("/static/", staticFS))
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, templates.IndexPage(a.pipeline.RecentSessions(10)))
}

func (a *App) sessionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := a.pipeline.Session(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.render(w, r, templates.SessionPage(s))
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+1024)
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		a.logger.Warn("invalid multipart upload", "error", err)
		http.Error(w, "upload inválido o demasiado grande", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("media")
	if err != nil {
		http.Error(w, "el archivo de video o audio es obligatorio", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "video/") && !strings.HasPrefix(mimeType, "audio/") {
		http.Error(w, "solo se aceptan archivos de video o audio", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.logger.Error("failed to read upload", "error", err)
		http.Error(w, "error al leer el archivo", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		http.Error(w, "el archivo está vacío", http.StatusBadRequest)
		return
	}

	s := a.pipeline.NewSession(sanitizeFileName(header.Filename), mimeType, int64(len(data)))

	if err := a.pipeline.StartTranscode(s.ID, data); err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			http.Error(w, "ya hay un procesamiento en curso, intenta de nuevo en unos momentos", http.StatusConflict)
			return
		}
		a.logger.Error("failed to start transcode", "session_id", s.ID, "error", err)
		http.Error(w, "error interno al iniciar el procesamiento", http.StatusInternalServerError)
		return
	}

	a.logger.Info("upload accepted", "session_id", s.ID, "file", s.InputFileName, "mime", mimeType, "size", s.InputSize)
	http.Redirect(w, r, "/session/"+s.ID, http.StatusSeeOther)
}

func (a *App) startTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := a.pipeline.StartTranscribe(id)
	switch {
	case err == nil:
		a.respondJSON(w, http.StatusAccepted, map[string]string{"status": "transcription_started", "session_id": id})
	case errors.Is(err, pipeline.ErrSessionNotFound):
		http.Error(w, "sesión no encontrada", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrBusy):
		a.respondJSON(w, http.StatusAccepted, map[string]string{"status": "transcription_already_processing"})
	case errors.Is(err, pipeline.ErrNoAudio):
		http.Error(w, "el audio optimizado aún no está listo", http.StatusConflict)
	default:
		a.logger.Error("failed to start transcription", "session_id", id, "error", err)
		http.Error(w, "error interno al iniciar la transcripción", http.StatusInternalServerError)
	}
}

// apiTranscribe is the inference boundary: it holds the provider
// credential, validates the payload and forwards the instruction pair
// verbatim alongside the decoded audio.
func (a *App) apiTranscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MediaData         string `json:"mediaData"`
		MimeType          string `json:"mimeType"`
		SystemInstruction string `json:"systemInstruction"`
		UserPrompt        string `json:"userPrompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "cuerpo de solicitud inválido"})
		return
	}
	if req.MediaData == "" || req.MimeType == "" {
		a.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "faltan datos (mediaData o mimeType)"})
		return
	}

	if a.provider == nil {
		a.logger.Error("inference provider is not configured")
		a.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "error de configuración del servidor"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.MediaData)
	if err != nil || len(data) == 0 {
		a.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "mediaData inválido"})
		return
	}

	text, err := a.provider.Generate(r.Context(), inference.Request{
		MIMEType:          req.MimeType,
		Data:              data,
		SystemInstruction: req.SystemInstruction,
		UserPrompt:        req.UserPrompt,
	})
	if err != nil {
		a.logger.Error("inference provider failed", "provider", a.provider.Name(), "error", err)
		a.respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "falló la consulta al proveedor de inferencia",
			"details": err.Error(),
		})
		return
	}

	a.respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (a *App) sessionWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := a.pipeline.Session(id)
	if !ok {
		http.Error(w, "sesión no encontrada", http.StatusNotFound)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	a.mu.Lock()
	if a.subs[id] == nil {
		a.subs[id] = make(map[*websocket.Conn]struct{})
	}
	a.subs[id][conn] = struct{}{}
	a.mu.Unlock()

	_ = conn.WriteJSON(currentProgressEvent(s))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.mu.Lock()
	delete(a.subs[id], conn)
	a.mu.Unlock()
	_ = conn.Close()
}

// currentProgressEvent snapshots the session for a freshly connected
// subscriber.
func currentProgressEvent(s *models.Session) models.ProgressEvent {
	evt := models.ProgressEvent{
		ID:       s.ID,
		Stage:    "transcode",
		Status:   s.Status,
		Progress: s.Progress,
		Error:    s.Error,
	}
	if s.TranscriptStatus != models.StatusNotStarted {
		evt.Stage = "transcription"
		evt.Status = s.TranscriptStatus
		evt.Error = s.TranscriptError
		evt.Result = s.Result
	}
	return evt
}

func (a *App) broadcast(sessionID string, evt models.ProgressEvent) {
	a.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(a.subs[sessionID]))
	for c := range a.subs[sessionID] {
		conns = append(conns, c)
	}
	a.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(evt); err != nil {
			a.mu.Lock()
			delete(a.subs[sessionID], c)
			a.mu.Unlock()
			_ = c.Close()
		}
	}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "error al renderizar la página", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "media.bin"
	}
	return name
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
