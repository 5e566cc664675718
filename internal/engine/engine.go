package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// ErrUnavailable wraps any failure to bring the transcoding engine up.
var ErrUnavailable = errors.New("motor de transcodificación no disponible")

// DefaultAssetBaseURL is the pinned distribution used when ffmpeg/ffprobe
// are not already installed on the host.
const DefaultAssetBaseURL = "https://github.com/eugeneware/ffmpeg-static/releases/download/b6.0"

// lookPath is stubbed in tests to force the fetch path.
var lookPath = exec.LookPath

// Engine owns the transcoding binaries and a private working directory that
// acts as the staging area for transcode attempts. Loading is exactly-once
// per process: concurrent callers block on the same initialization and a
// failure is remembered for the lifetime of the Engine.
type Engine struct {
	logger  *slog.Logger
	dir     string
	baseURL string
	client  *http.Client

	once    sync.Once
	loadErr error
	ffmpeg  string
	ffprobe string
}

func New(logger *slog.Logger, dir, assetBaseURL string) *Engine {
	if assetBaseURL == "" {
		assetBaseURL = DefaultAssetBaseURL
	}
	return &Engine{
		logger:  logger,
		dir:     dir,
		baseURL: assetBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Load resolves the ffmpeg and ffprobe binaries, fetching them from the
// pinned distribution when the host does not provide them. Safe to call
// repeatedly and from multiple goroutines; only the first call does work.
func (e *Engine) Load(ctx context.Context) error {
	e.once.Do(func() {
		e.loadErr = e.load(ctx)
		if e.loadErr != nil {
			e.logger.Error("engine bootstrap failed", "error", e.loadErr)
		}
	})
	if e.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, e.loadErr)
	}
	return nil
}

func (e *Engine) load(ctx context.Context) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create engine dir: %w", err)
	}

	ffmpeg, err := e.resolve(ctx, "ffmpeg")
	if err != nil {
		return err
	}
	ffprobe, err := e.resolve(ctx, "ffprobe")
	if err != nil {
		return err
	}

	e.ffmpeg = ffmpeg
	e.ffprobe = ffprobe
	e.logger.Info("engine ready", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return nil
}

func (e *Engine) resolve(ctx context.Context, name string) (string, error) {
	if path, err := lookPath(name); err == nil {
		return path, nil
	}

	dest := filepath.Join(e.dir, name)
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		return dest, nil
	}

	url := fmt.Sprintf("%s/%s-%s-%s", e.baseURL, name, runtime.GOOS, archLabel())
	e.logger.Info("fetching engine asset", "asset", name, "url", url)
	if err := e.fetch(ctx, url, dest); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	return dest, nil
}

func (e *Engine) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// Command builds an ffmpeg invocation rooted at the staging directory.
// Load must have succeeded first.
func (e *Engine) Command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)
	cmd.Dir = e.dir
	return cmd
}

// ProbeCommand builds an ffprobe invocation rooted at the staging directory.
func (e *Engine) ProbeCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.ffprobe, args...)
	cmd.Dir = e.dir
	return cmd
}

func archLabel() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	default:
		return runtime.GOARCH
	}
}
