package transcoder

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"transcriptorClinico/internal/engine"
	"transcriptorClinico/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		duration float64
		want     int
		ok       bool
	}{
		{"halfway", "out_time_ms=5000000", 10, 50, true},
		{"done", "out_time_ms=10000000", 10, 100, true},
		{"overshoot clamps", "out_time_ms=12000000", 10, 100, true},
		{"negative clamps", "out_time_ms=-100", 10, 0, true},
		{"unknown duration", "out_time_ms=5000000", 0, 0, false},
		{"other line", "frame=42", 10, 0, false},
		{"garbage value", "out_time_ms=abc", 10, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := progressPercent(tc.line, tc.duration)
			if ok != tc.ok || got != tc.want {
				t.Errorf("progressPercent(%q, %v) = (%d, %v), want (%d, %v)",
					tc.line, tc.duration, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestProgressReporterIsMonotonic(t *testing.T) {
	var seen []int
	r := newProgressReporter(func(pct int, status, message string) {
		seen = append(seen, pct)
	})

	for _, pct := range []int{0, 10, 5, 30, 30, 20, 100} {
		r.report(pct, "processing", "")
	}

	want := []int{0, 10, 30, 30, 100}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("progress decreased: %v", seen)
		}
	}
}

func TestProgressReporterNilCallback(t *testing.T) {
	r := newProgressReporter(nil)
	r.report(50, "processing", "")
}

func TestCaptureLastLine(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"last non-empty wins", "first error\nsecond error\n", "second error"},
		{"trailing blanks ignored", "real error\n\n   \n", "real error"},
		{"whitespace trimmed", "  padded error  \n", "padded error"},
		{"empty stream", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := <-captureLastLine(strings.NewReader(tc.input))
			if got != tc.want {
				t.Errorf("captureLastLine = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClearStagedRemovesBothNames(t *testing.T) {
	eng := engine.New(testLogger(), t.TempDir(), "")
	svc := NewService(testLogger(), eng)

	if err := eng.WriteFile(stagedInputName, []byte("old input")); err != nil {
		t.Fatalf("stage input: %v", err)
	}
	if err := eng.WriteFile(stagedOutputName, []byte("old output")); err != nil {
		t.Fatalf("stage output: %v", err)
	}

	if err := svc.clearStaged(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := eng.ReadFile(stagedInputName); err == nil {
		t.Error("input still staged after clear")
	}
	if _, err := eng.ReadFile(stagedOutputName); err == nil {
		t.Error("output still staged after clear")
	}

	// A clean staging area clears without error.
	if err := svc.clearStaged(); err != nil {
		t.Errorf("clear of clean staging area: %v", err)
	}
}

func TestTranscodeSilentClip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	in := filepath.Join(t.TempDir(), "silencio.wav")
	gen := exec.Command("ffmpeg", "-f", "lavfi", "-i", "anullsrc=r=8000:cl=mono", "-t", "1", in)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate test clip: %v: %s", err, out)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}

	eng := engine.New(testLogger(), t.TempDir(), "")
	svc := NewService(testLogger(), eng)

	last := -1
	audio, err := svc.Transcode(context.Background(),
		media.RawMedia{Name: "silencio.wav", MIME: "audio/wav", Size: int64(len(data)), Data: data},
		func(pct int, status, message string) {
			if pct < last {
				t.Errorf("progress decreased: %d after %d", pct, last)
			}
			last = pct
		})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}

	if audio.MIME != "audio/mp3" {
		t.Errorf("mime = %q, want audio/mp3", audio.MIME)
	}
	if audio.Filename != OutputFilename {
		t.Errorf("filename = %q, want %q", audio.Filename, OutputFilename)
	}
	if len(audio.Data) == 0 {
		t.Error("optimized audio is empty")
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}
