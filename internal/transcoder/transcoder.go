package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"transcriptorClinico/internal/engine"
	"transcriptorClinico/internal/media"
)

const (
	stagedInputName  = "input_file"
	stagedOutputName = "output.mp3"

	// OutputFilename and OutputMIME describe the artifact handed to the
	// transcription flow.
	OutputFilename = "audio_optimizado.mp3"
	OutputMIME     = "audio/mp3"
)

// ErrFailed covers any staging, execution or read-back failure. No partial
// artifact ever accompanies it.
var ErrFailed = errors.New("falló el procesamiento del archivo")

// ProgressCallback receives updates while ffmpeg runs.
type ProgressCallback func(percent int, status, message string)

// Service reduces arbitrary media to the compact mono 16 kHz mp3 the
// inference boundary accepts.
type Service struct {
	logger *slog.Logger
	engine *engine.Engine
}

func NewService(logger *slog.Logger, eng *engine.Engine) *Service {
	return &Service{logger: logger, engine: eng}
}

// Transcode stages raw into the engine sandbox, runs the fixed
// audio-extraction pass and reads back the result. The parameter set
// (mono, 16 kHz, ~32 kbit/s) trades fidelity for payload size and is not
// tunable. On any failure the staging area is cleared and progress is
// reported back at zero.
func (s *Service) Transcode(ctx context.Context, raw media.RawMedia, cb ProgressCallback) (*media.OptimizedAudio, error) {
	if err := s.engine.Load(ctx); err != nil {
		return nil, err
	}

	out, err := s.run(ctx, raw, cb)
	if err != nil {
		s.clearStaged()
		if cb != nil {
			cb(0, "failed", "falló el procesamiento")
		}
		if errors.Is(err, engine.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return out, nil
}

func (s *Service) run(ctx context.Context, raw media.RawMedia, cb ProgressCallback) (*media.OptimizedAudio, error) {
	// Leftovers from a prior attempt are stale, never reusable.
	if err := s.clearStaged(); err != nil {
		return nil, fmt.Errorf("failed to clear staging area: %w", err)
	}

	if len(raw.Data) == 0 {
		return nil, errors.New("empty input media")
	}
	if err := s.engine.WriteFile(stagedInputName, raw.Data); err != nil {
		return nil, fmt.Errorf("failed to stage input: %w", err)
	}

	duration, err := s.probeDuration(ctx)
	if err != nil {
		s.logger.Warn("could not probe duration, progress will be coarse", "error", err)
	}

	cmd := s.engine.Command(ctx,
		"-y",
		"-i", stagedInputName,
		"-vn", "-ac", "1", "-ar", "16000", "-ab", "32k",
		"-progress", "pipe:1",
		"-nostats",
		stagedOutputName,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}

	reporter := newProgressReporter(cb)
	reporter.report(0, "processing", "extrayendo audio")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	stderrLine := captureLastLine(stderr)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if pct, ok := progressPercent(line, duration); ok {
			reporter.report(pct, "processing", "extrayendo audio")
		}
		if strings.HasPrefix(line, "progress=end") {
			reporter.report(100, "processing", "finalizando archivo")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading ffmpeg output: %w", err)
	}

	// Both pipes must be drained before Wait closes them.
	lastErrLine := <-stderrLine

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErrLine != "" {
			return nil, fmt.Errorf("ffmpeg failed: %s", lastErrLine)
		}
		return nil, fmt.Errorf("ffmpeg failed: %w", err)
	}

	data, err := s.engine.ReadFile(stagedOutputName)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoded audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("transcoded audio is empty")
	}

	reporter.report(100, "completed", "procesamiento completado")
	return &media.OptimizedAudio{
		Filename: OutputFilename,
		MIME:     OutputMIME,
		Data:     data,
	}, nil
}

func (s *Service) clearStaged() error {
	if err := s.engine.RemoveFile(stagedInputName); err != nil {
		return err
	}
	return s.engine.RemoveFile(stagedOutputName)
}

func (s *Service) probeDuration(ctx context.Context) (float64, error) {
	cmd := s.engine.ProbeCommand(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		stagedInputName,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w", err)
	}
	val := strings.TrimSpace(string(out))
	if val == "" {
		return 0, errors.New("empty duration response")
	}
	dur, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration from ffprobe: %w", err)
	}
	return dur, nil
}

// captureLastLine drains r in the background and delivers the last
// non-empty trimmed line once r is exhausted. The channel hand-off keeps
// the value out of reach until the reader goroutine is done with it.
func captureLastLine(r io.Reader) <-chan string {
	out := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		var last string
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				last = line
			}
		}
		out <- last
	}()
	return out
}

// progressPercent turns an "out_time_ms=N" line from ffmpeg's progress
// stream into an integer percent against the probed duration.
func progressPercent(line string, duration float64) (int, bool) {
	if !strings.HasPrefix(line, "out_time_ms=") || duration <= 0 {
		return 0, false
	}
	outMs, err := strconv.ParseFloat(strings.TrimPrefix(line, "out_time_ms="), 64)
	if err != nil {
		return 0, false
	}
	ratio := (outMs / 1_000_000.0) / duration
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return int(ratio * 100), true
}

// progressReporter keeps progress monotonically non-decreasing within one
// attempt regardless of what ffmpeg emits.
type progressReporter struct {
	cb   ProgressCallback
	last int
}

func newProgressReporter(cb ProgressCallback) *progressReporter {
	return &progressReporter{cb: cb, last: -1}
}

func (r *progressReporter) report(pct int, status, message string) {
	if r.cb == nil {
		return
	}
	if pct < r.last {
		return
	}
	r.last = pct
	r.cb(pct, status, message)
}
