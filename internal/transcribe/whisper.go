// Package transcribe wraps the offline recognition engine behind a stable
// interface: audio in, chronologically ordered timed segments out.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/King-fly/subtitle-api/internal/domain"
)

// Transcriber converts extracted audio into a transcript. The language hint
// is optional; empty or unknown hints mean auto-detect.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath, languageHint string) (domain.Transcript, error)
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

// WhisperCLI runs a whisper.cpp style binary with JSON output.
type WhisperCLI struct {
	bin       string
	modelPath string
	runner    commandRunner
}

// NewWhisperCLI creates an adapter for the given binary and model file.
func NewWhisperCLI(bin, modelPath string) *WhisperCLI {
	return &WhisperCLI{bin: bin, modelPath: modelPath, runner: execRunner{}}
}

// whisperOutput mirrors the JSON document whisper-cli emits with -oj.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs the engine as one bounded call: whisper-cli offers no
// incremental output over this interface, so cancellation takes effect at
// the surrounding stage boundary and runaway calls are cut by the caller's
// context deadline.
func (w *WhisperCLI) Transcribe(ctx context.Context, wavPath, languageHint string) (domain.Transcript, error) {
	if _, err := os.Stat(w.modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", domain.ErrModelUnavailable, w.modelPath, err)
	}
	if _, err := exec.LookPath(w.bin); err != nil {
		return nil, fmt.Errorf("%w: binary %s: %v", domain.ErrModelUnavailable, w.bin, err)
	}

	outDir, err := os.MkdirTemp("", "subtitle-transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", domain.ErrTranscriptionFailed, err)
	}
	defer os.RemoveAll(outDir)

	outPrefix := filepath.Join(outDir, "result")
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"--output-json",
		"--output-file", outPrefix,
	}
	if lang := NormalizeLanguage(languageHint); lang != "" {
		args = append(args, "-l", lang)
	}

	stderr, err := w.runner.Run(ctx, w.bin, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: whisper: %v", domain.ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: whisper: %v (%s)", domain.ErrTranscriptionFailed, err, firstLine(stderr))
	}

	raw, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: read engine output: %v", domain.ErrTranscriptionFailed, err)
	}
	return parseSegments(raw)
}

// parseSegments decodes engine output and normalizes it into the transcript
// contract: chronological order, no empty segments. Ordering is enforced
// here rather than trusted from the engine.
func parseSegments(raw []byte) (domain.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode engine output: %v", domain.ErrTranscriptionFailed, err)
	}

	transcript := make(domain.Transcript, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.Offsets.To <= seg.Offsets.From {
			continue
		}
		transcript = append(transcript, domain.Segment{
			StartMS: seg.Offsets.From,
			EndMS:   seg.Offsets.To,
			Text:    text,
		})
	}
	sort.SliceStable(transcript, func(i, j int) bool {
		return transcript[i].StartMS < transcript[j].StartMS
	})

	if len(transcript) == 0 {
		return nil, fmt.Errorf("%w: engine produced no usable segments", domain.ErrTranscriptionFailed)
	}
	return transcript, nil
}

// NormalizeLanguage reduces a caller-supplied hint to the engine's two-letter
// code. Empty, "auto", or unparseable hints select auto-detection.
func NormalizeLanguage(hint string) string {
	hint = strings.TrimSpace(strings.ToLower(hint))
	if hint == "" || hint == "auto" {
		return ""
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
