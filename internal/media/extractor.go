// Package media isolates container/codec handling behind a narrow audio
// extraction interface so the pipeline never touches ffmpeg directly.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/King-fly/subtitle-api/internal/domain"
)

// Extractor produces a normalized mono 16 kHz WAV file from an input media
// file. The returned cleanup func removes every intermediate artifact and is
// safe to call on all exit paths.
type Extractor interface {
	Extract(ctx context.Context, mediaPath string) (wavPath string, cleanup func(), err error)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// FFmpegExtractor shells out to ffmpeg for demuxing and resampling.
type FFmpegExtractor struct {
	bin      string
	maxBytes int64
	runner   commandRunner
}

// NewFFmpegExtractor creates an extractor using the given ffmpeg binary and
// maximum accepted input size in bytes.
func NewFFmpegExtractor(bin string, maxBytes int64) *FFmpegExtractor {
	return &FFmpegExtractor{bin: bin, maxBytes: maxBytes, runner: execRunner{}}
}

// Extract validates the input cheaply, then demuxes and resamples it to
// pcm_s16le mono 16 kHz, the sample layout the recognition engine expects.
//
// The pre-checks run before a worker burns time on ffmpeg: the file must
// exist, fit the size limit, and sniff as an audio or video container.
func (e *FFmpegExtractor) Extract(ctx context.Context, mediaPath string) (string, func(), error) {
	noop := func() {}

	info, err := os.Stat(mediaPath)
	if err != nil {
		return "", noop, fmt.Errorf("%w: stat input: %v", domain.ErrExtractionFailed, err)
	}
	if e.maxBytes > 0 && info.Size() > e.maxBytes {
		return "", noop, fmt.Errorf("%w: input is %d bytes, limit %d", domain.ErrInvalidRequest, info.Size(), e.maxBytes)
	}

	mime, err := mimetype.DetectFile(mediaPath)
	if err != nil {
		return "", noop, fmt.Errorf("%w: sniff input: %v", domain.ErrExtractionFailed, err)
	}
	if !isMediaMIME(mime) {
		return "", noop, fmt.Errorf("%w: detected %s", domain.ErrUnsupportedFormat, mime.String())
	}

	tempDir, err := os.MkdirTemp("", "subtitle-extract-*")
	if err != nil {
		return "", noop, fmt.Errorf("%w: temp dir: %v", domain.ErrExtractionFailed, err)
	}
	cleanup := func() { _ = os.RemoveAll(tempDir) }

	wavPath := filepath.Join(tempDir, "audio.wav")
	stderr, err := e.runner.Run(ctx, e.bin,
		"-hide_banner", "-nostdin",
		"-i", mediaPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-y", wavPath,
	)
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return "", noop, fmt.Errorf("%w: ffmpeg: %v", domain.ErrTimeout, ctx.Err())
		}
		return "", noop, fmt.Errorf("%w: ffmpeg: %v (%s)", domain.ErrExtractionFailed, err, firstLine(stderr))
	}

	return wavPath, cleanup, nil
}

// isMediaMIME accepts anything that sniffs as an audio or video container.
// Finer codec rejection is left to ffmpeg itself.
func isMediaMIME(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if strings.HasPrefix(cur.String(), "audio/") || strings.HasPrefix(cur.String(), "video/") {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
