package videoproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"promptfinder/internal/config"
)

const (
	MaxFileSize    = 100 << 20
	MaxDuration    = 300 * time.Second
	DefaultBox     = 600
	versionTimeout = 10 * time.Second
)

var (
	ErrUnavailable = errors.New("transcoder unavailable")
	ErrTimeout     = errors.New("transcoder timed out")
	ErrProbe       = errors.New("probe failed")
	ErrNoVideo     = errors.New("no video stream")
	ErrEmptyOutput = errors.New("transcoder produced empty output")
)

var allowedMIME = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
}

var allowedExt = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mov":  {},
}

// ValidationError is a client-side violation of the video limits.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Format   string  `json:"format"`
	Codec    string  `json:"codec"`
	FileSize int64   `json:"file_size"`
}

// Fit controls how a thumbnail fills its box.
type Fit int

const (
	// FitContain keeps the whole frame; the longest side matches the box.
	FitContain Fit = iota
	// FitCover fills the box and crops the overflow.
	FitCover
)

type ThumbnailOptions struct {
	Width  int
	Height int
	At     time.Duration
	Fit    Fit
}

// Runner executes an external binary and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return out, err
	}
	return out, nil
}

type Processor struct {
	cfg    config.TranscoderConfig
	runner Runner
}

func New(cfg config.TranscoderConfig) *Processor {
	return NewWithRunner(cfg, execRunner{})
}

func NewWithRunner(cfg config.TranscoderConfig, runner Runner) *Processor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 30 * time.Second
	}
	if cfg.ThumbnailAt <= 0 {
		cfg.ThumbnailAt = time.Second
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = DefaultBox
	}
	return &Processor{cfg: cfg, runner: runner}
}

// Validate runs the cheap pre-checks on the declared name, type and size.
func (p *Processor) Validate(name, mime string, size int64) error {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if _, ok := allowedMIME[mime]; !ok {
		return &ValidationError{Reason: fmt.Sprintf("Invalid video type: %s. Allowed: MP4, WebM, MOV", mime)}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExt[ext]; !ok {
		return &ValidationError{Reason: fmt.Sprintf("Invalid file extension: %s", ext)}
	}
	if size > MaxFileSize {
		return &ValidationError{Reason: fmt.Sprintf("Video too large: %.1fMB. Maximum: 100MB", float64(size)/(1<<20))}
	}
	if size <= 0 {
		return &ValidationError{Reason: "Empty video file"}
	}
	return nil
}

// Available checks both binaries answer -version.
func (p *Processor) Available(ctx context.Context) error {
	for _, bin := range []string{p.cfg.FFmpegPath, p.cfg.FFprobePath} {
		runCtx, cancel := context.WithTimeout(ctx, versionTimeout)
		_, err := p.runner.Run(runCtx, bin, "-version")
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, bin, err)
		}
	}
	return nil
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Probe extracts metadata and enforces the duration and stream rules.
func (p *Processor) Probe(ctx context.Context, path string) (Metadata, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	out, err := p.runner.Run(runCtx, p.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Metadata{}, fmt.Errorf("%w: probe after %s", ErrTimeout, p.cfg.ProbeTimeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Metadata{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Metadata{}, fmt.Errorf("%w: %v", ErrProbe, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse output: %v", ErrProbe, err)
	}

	meta := Metadata{
		Format: strings.SplitN(probe.Format.FormatName, ",", 2)[0],
	}
	meta.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	meta.FileSize, _ = strconv.ParseInt(probe.Format.Size, 10, 64)

	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		meta.Width = s.Width
		meta.Height = s.Height
		meta.Codec = s.CodecName
		if meta.Duration == 0 {
			meta.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}

	if meta.FileSize == 0 {
		if info, err := os.Stat(path); err == nil {
			meta.FileSize = info.Size()
		}
	}

	if !found || meta.Width == 0 || meta.Height == 0 {
		return meta, ErrNoVideo
	}
	if time.Duration(meta.Duration*float64(time.Second)) > MaxDuration {
		return meta, &ValidationError{Reason: fmt.Sprintf("Video too long: %.1fs. Maximum: %ds", meta.Duration, int(MaxDuration.Seconds()))}
	}
	return meta, nil
}

// Thumbnail extracts one frame into output as a JPEG. An empty result is removed and reported.
func (p *Processor) Thumbnail(ctx context.Context, input, output string, opts ThumbnailOptions) error {
	if opts.Width <= 0 {
		opts.Width = p.cfg.ThumbnailSize
	}
	if opts.Height <= 0 {
		opts.Height = p.cfg.ThumbnailSize
	}
	if opts.At <= 0 {
		opts.At = p.cfg.ThumbnailAt
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	_, err := p.runner.Run(runCtx, p.cfg.FFmpegPath,
		"-y",
		"-ss", Timestamp(opts.At),
		"-i", input,
		"-vframes", "1",
		"-vf", scaleFilter(opts),
		"-q:v", "2",
		output,
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: thumbnail after %s", ErrTimeout, p.cfg.ExtractTimeout)
		}
		return fmt.Errorf("extract thumbnail: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if info.Size() == 0 {
		_ = os.Remove(output)
		return ErrEmptyOutput
	}
	return nil
}

// Frame grabs a single JPEG frame at the given offset and returns it in memory.
// input may be a local path or an http(s) URL.
func (p *Processor) Frame(ctx context.Context, input string, at time.Duration) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	out, err := p.runner.Run(runCtx, p.cfg.FFmpegPath,
		"-ss", Timestamp(at),
		"-i", input,
		"-vframes", "1",
		"-f", "image2",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: frame after %s", ErrTimeout, p.cfg.ExtractTimeout)
		}
		return nil, fmt.Errorf("extract frame: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	return out, nil
}

func scaleFilter(opts ThumbnailOptions) string {
	if opts.Fit == FitCover {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
			opts.Width, opts.Height, opts.Width, opts.Height)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", opts.Width, opts.Height)
}

// Timestamp formats d as HH:MM:SS with milliseconds when needed.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	ms := int(d % time.Second / time.Millisecond)
	if ms == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return lines[len(lines)-1]
}
