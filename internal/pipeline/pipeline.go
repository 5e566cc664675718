package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"transcriptorClinico/internal/engine"
	"transcriptorClinico/internal/media"
	"transcriptorClinico/internal/models"
	"transcriptorClinico/internal/transcoder"
	"transcriptorClinico/internal/transcribe"
)

var (
	ErrSessionNotFound = errors.New("sesión no encontrada")

	// ErrBusy enforces the single-flight discipline: the engine staging
	// area has fixed names and exactly one mutator, and one submission at
	// a time per session.
	ErrBusy = errors.New("ya hay un intento en curso")

	// ErrNoAudio gates the transcribe action on a present artifact.
	ErrNoAudio = errors.New("no hay audio optimizado disponible")
)

// Transcoder reduces raw media to the optimized artifact.
type Transcoder interface {
	Transcode(ctx context.Context, raw media.RawMedia, cb transcoder.ProgressCallback) (*media.OptimizedAudio, error)
}

// Submitter sends encoded audio to the inference boundary and returns the
// raw model text.
type Submitter interface {
	Submit(ctx context.Context, enc media.Encoded) (string, error)
}

// Pipeline orchestrates the transcode, encode, submit and parse stages and
// owns all session state, including the one optimized-audio artifact per
// session.
type Pipeline struct {
	logger     *slog.Logger
	transcoder Transcoder
	submitter  Submitter

	mu            sync.RWMutex
	sessions      map[string]*models.Session
	transcodeBusy bool

	notify func(sessionID string, evt models.ProgressEvent)
}

func New(logger *slog.Logger, tc Transcoder, sub Submitter) *Pipeline {
	return &Pipeline{
		logger:     logger,
		transcoder: tc,
		submitter:  sub,
		sessions:   make(map[string]*models.Session),
		notify:     func(string, models.ProgressEvent) {},
	}
}

// SetNotifier installs the progress event sink (the websocket broadcaster).
func (p *Pipeline) SetNotifier(fn func(sessionID string, evt models.ProgressEvent)) {
	if fn != nil {
		p.notify = fn
	}
}

// NewSession registers a fresh attempt for an uploaded file.
func (p *Pipeline) NewSession(fileName, mimeType string, size int64) *models.Session {
	now := time.Now()
	s := &models.Session{
		ID:               uuid.NewString(),
		InputFileName:    fileName,
		InputMIME:        mimeType,
		InputSize:        size,
		Status:           models.StatusUploaded,
		TranscriptStatus: models.StatusNotStarted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	p.mu.Lock()
	p.sessions[s.ID] = s
	clone := p.cloneLocked(s)
	p.mu.Unlock()
	return clone
}

// Session returns a copy of the session's current state.
func (p *Pipeline) Session(id string) (*models.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	return p.cloneLocked(s), true
}

// RecentSessions lists sessions newest-first for the index page.
func (p *Pipeline) RecentSessions(limit int) []*models.Session {
	p.mu.RLock()
	out := make([]*models.Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, p.cloneLocked(s))
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// StartTranscode begins the transcode attempt for a session. The staging
// area is shared, so at most one transcode runs process-wide.
func (p *Pipeline) StartTranscode(id string, data []byte) error {
	p.mu.Lock()
	s, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.transcodeBusy || s.Status.InFlight() {
		p.mu.Unlock()
		return ErrBusy
	}

	p.transcodeBusy = true
	s.Status = models.StatusQueued
	s.Progress = 0
	s.Error = ""
	s.Audio = nil
	s.Result = nil
	s.TranscriptStatus = models.StatusNotStarted
	s.TranscriptError = ""
	s.UpdatedAt = time.Now()
	raw := media.RawMedia{Name: s.InputFileName, MIME: s.InputMIME, Size: s.InputSize, Data: data}
	p.mu.Unlock()

	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcode", Status: models.StatusQueued, Progress: 0, Message: "en fila"})
	go p.runTranscode(id, raw)
	return nil
}

func (p *Pipeline) runTranscode(id string, raw media.RawMedia) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	p.update(id, func(s *models.Session) {
		s.Status = models.StatusProcessing
	})
	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcode", Status: models.StatusProcessing, Progress: 0, Message: "extrayendo audio"})

	audio, err := p.transcoder.Transcode(ctx, raw, func(percent int, status, message string) {
		p.update(id, func(s *models.Session) {
			if percent > s.Progress {
				s.Progress = percent
			}
		})
		p.notify(id, models.ProgressEvent{ID: id, Stage: "transcode", Status: models.StatusProcessing, Progress: percent, Message: message})
	})

	p.mu.Lock()
	p.transcodeBusy = false
	s, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	if err != nil {
		s.Status = models.StatusFailed
		s.Progress = 0
		s.Error = userMessage(err)
		s.Audio = nil
		s.UpdatedAt = time.Now()
		evt := models.ProgressEvent{ID: id, Stage: "transcode", Status: models.StatusFailed, Progress: 0, Error: s.Error, Message: "falló el procesamiento"}
		p.mu.Unlock()
		p.logger.Error("transcode failed", "session_id", id, "error", err)
		p.notify(id, evt)
		return
	}

	s.Status = models.StatusCompleted
	s.Progress = 100
	s.Error = ""
	s.Audio = audio
	s.UpdatedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info("transcode completed", "session_id", id, "bytes", len(audio.Data))
	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcode", Status: models.StatusCompleted, Progress: 100, Message: "audio optimizado listo"})
}

// StartTranscribe triggers the submission flow for a session. It is gated
// on the artifact being present and on no submission already in flight. A
// failed submission keeps the artifact, so the user can re-trigger.
func (p *Pipeline) StartTranscribe(id string) error {
	p.mu.Lock()
	s, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.TranscriptStatus.InFlight() {
		p.mu.Unlock()
		return ErrBusy
	}
	if !s.AudioReady() {
		p.mu.Unlock()
		return ErrNoAudio
	}

	s.TranscriptStatus = models.StatusQueued
	s.TranscriptError = ""
	s.Result = nil
	s.UpdatedAt = time.Now()
	audio := s.Audio
	p.mu.Unlock()

	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcription", Status: models.StatusQueued, Message: "transcripción en fila"})
	go p.runTranscribe(id, audio)
	return nil
}

func (p *Pipeline) runTranscribe(id string, audio *media.OptimizedAudio) {
	ctx := context.Background()

	p.update(id, func(s *models.Session) {
		s.TranscriptStatus = models.StatusProcessing
	})
	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcription", Status: models.StatusProcessing, Message: "transcribiendo"})

	result, err := p.transcribeOnce(ctx, audio)
	if err != nil {
		p.update(id, func(s *models.Session) {
			s.TranscriptStatus = models.StatusFailed
			s.TranscriptError = userMessage(err)
		})
		p.logger.Error("transcription failed", "session_id", id, "error", err)
		p.notify(id, models.ProgressEvent{ID: id, Stage: "transcription", Status: models.StatusFailed, Error: userMessage(err), Message: "falló la transcripción"})
		return
	}

	p.update(id, func(s *models.Session) {
		s.TranscriptStatus = models.StatusCompleted
		s.TranscriptError = ""
		s.Result = result
	})
	p.logger.Info("transcription completed", "session_id", id)
	p.notify(id, models.ProgressEvent{ID: id, Stage: "transcription", Status: models.StatusCompleted, Message: "transcripción lista", Result: result})
}

// transcribeOnce encodes the artifact, submits it and parses the response.
// Parsing never fails; it degrades to placeholder sections instead.
func (p *Pipeline) transcribeOnce(ctx context.Context, audio *media.OptimizedAudio) (*transcribe.Result, error) {
	enc, err := media.EncodeBase64(audio)
	if err != nil {
		return nil, err
	}
	text, err := p.submitter.Submit(ctx, enc)
	if err != nil {
		return nil, err
	}
	result := transcribe.ParseResponse(text)
	return &result, nil
}

func (p *Pipeline) update(id string, fn func(*models.Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		fn(s)
		s.UpdatedAt = time.Now()
	}
}

func (p *Pipeline) cloneLocked(s *models.Session) *models.Session {
	clone := *s
	return &clone
}

// StartCleanupLoop expires sessions that have not been touched within ttl.
func (p *Pipeline) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Cleanup(ttl)
			}
		}
	}()
}

// Cleanup drops sessions whose last update is older than ttl.
func (p *Pipeline) Cleanup(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	removed := 0

	p.mu.Lock()
	for id, s := range p.sessions {
		if s.UpdatedAt.Before(cutoff) && !s.Status.InFlight() && !s.TranscriptStatus.InFlight() {
			delete(p.sessions, id)
			removed++
		}
	}
	p.mu.Unlock()

	if removed > 0 {
		p.logger.Info("cleanup completed", "removed_sessions", removed)
	}
}

// userMessage maps a stage error to the single user-visible message for
// that failure class.
func userMessage(err error) string {
	var srvErr *transcribe.ServerError
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		return "el motor de procesamiento no está disponible"
	case errors.Is(err, transcoder.ErrFailed):
		return "falló el procesamiento del archivo"
	case errors.Is(err, media.ErrEmptyPayload):
		return "no se pudo codificar el audio"
	case errors.As(err, &srvErr):
		return srvErr.Message
	case errors.Is(err, transcribe.ErrNoText):
		return "la respuesta del servicio no contiene texto"
	case errors.Is(err, transcribe.ErrCommunication):
		return "no se pudo comunicar con el servicio de transcripción"
	default:
		return err.Error()
	}
}
