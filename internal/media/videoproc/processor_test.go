package videoproc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"promptfinder/internal/config"
)

type fakeRunner struct {
	calls  [][]string
	output map[string][]byte
	err    map[string]error
	// write is called for ffmpeg thumbnail runs with the output path.
	write func(path string)
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.err[name]; err != nil {
		return nil, err
	}
	if f.write != nil && name == "ffmpeg" && len(args) > 0 && args[0] == "-y" {
		f.write(args[len(args)-1])
	}
	return f.output[name], nil
}

func newTestProcessor(r Runner) *Processor {
	return NewWithRunner(config.TranscoderConfig{
		ProbeTimeout:   time.Second,
		ExtractTimeout: time.Second,
	}, r)
}

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "duration": "20.000"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "20.020000", "size": "10485760"}
}`

func TestValidate(t *testing.T) {
	p := newTestProcessor(&fakeRunner{})
	if err := p.Validate("clip.mp4", "video/mp4", 10<<20); err != nil {
		t.Errorf("Expected valid video, got %v", err)
	}

	cases := []struct {
		name, mime string
		size       int64
	}{
		{"clip.avi", "video/mp4", 1},
		{"clip.mp4", "video/x-msvideo", 1},
		{"clip.mov", "video/quicktime", 101 << 20},
		{"clip.webm", "video/webm", 0},
	}
	for _, tc := range cases {
		var verr *ValidationError
		if err := p.Validate(tc.name, tc.mime, tc.size); !errors.As(err, &verr) {
			t.Errorf("%s/%s: Expected ValidationError, got %v", tc.name, tc.mime, err)
		}
	}
}

func TestProbe(t *testing.T) {
	r := &fakeRunner{output: map[string][]byte{"ffprobe": []byte(probeJSON)}}
	meta, err := newTestProcessor(r).Probe(context.Background(), "/tmp/in.mp4")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if meta.Width != 1080 || meta.Height != 1920 {
		t.Errorf("Expected 1080x1920, got %dx%d", meta.Width, meta.Height)
	}
	if meta.Format != "mov" || meta.Codec != "h264" {
		t.Errorf("Unexpected format/codec %s/%s", meta.Format, meta.Codec)
	}
	if meta.Duration < 20 || meta.Duration > 20.1 {
		t.Errorf("Expected ~20s, got %f", meta.Duration)
	}
	if meta.FileSize != 10485760 {
		t.Errorf("Expected size from format, got %d", meta.FileSize)
	}

	got := strings.Join(r.calls[0], " ")
	if got != "ffprobe -v quiet -print_format json -show_format -show_streams /tmp/in.mp4" {
		t.Errorf("Unexpected probe command %q", got)
	}
}

func TestProbeStreamDurationFallbackAndLimits(t *testing.T) {
	long := `{"streams":[{"codec_type":"video","codec_name":"vp9","width":640,"height":360,"duration":"301.5"}],"format":{"format_name":"matroska,webm"}}`
	r := &fakeRunner{output: map[string][]byte{"ffprobe": []byte(long)}}
	meta, err := newTestProcessor(r).Probe(context.Background(), "in.webm")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected duration ValidationError, got %v", err)
	}
	if meta.Duration != 301.5 || meta.Format != "matroska" {
		t.Errorf("Expected stream duration fallback, got %+v", meta)
	}

	audioOnly := `{"streams":[{"codec_type":"audio"}],"format":{"format_name":"mp3","duration":"3"}}`
	r = &fakeRunner{output: map[string][]byte{"ffprobe": []byte(audioOnly)}}
	if _, err := newTestProcessor(r).Probe(context.Background(), "a.mp4"); !errors.Is(err, ErrNoVideo) {
		t.Errorf("Expected ErrNoVideo, got %v", err)
	}
}

func TestProbeTimeout(t *testing.T) {
	p := NewWithRunner(config.TranscoderConfig{ProbeTimeout: 10 * time.Millisecond}, &fakeRunner{block: true})
	if _, err := p.Probe(context.Background(), "in.mp4"); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestThumbnail(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "thumb.jpg")
	r := &fakeRunner{write: func(path string) { _ = os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o600) }}

	if err := newTestProcessor(r).Thumbnail(context.Background(), "in.mp4", out, ThumbnailOptions{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got := strings.Join(r.calls[0], " ")
	want := "ffmpeg -y -ss 00:00:01 -i in.mp4 -vframes 1 -vf scale=600:600:force_original_aspect_ratio=decrease -q:v 2 " + out
	if got != want {
		t.Errorf("Unexpected command:\n got %s\nwant %s", got, want)
	}
}

func TestThumbnailCoverCrops(t *testing.T) {
	out := filepath.Join(t.TempDir(), "thumb.jpg")
	r := &fakeRunner{write: func(path string) { _ = os.WriteFile(path, []byte{1}, 0o600) }}
	opts := ThumbnailOptions{Width: 400, Height: 300, Fit: FitCover, At: 2500 * time.Millisecond}
	if err := newTestProcessor(r).Thumbnail(context.Background(), "in.mp4", out, opts); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	cmd := strings.Join(r.calls[0], " ")
	if !strings.Contains(cmd, "scale=400:300:force_original_aspect_ratio=increase,crop=400:300") {
		t.Errorf("Expected cover filter, got %s", cmd)
	}
	if !strings.Contains(cmd, "-ss 00:00:02.500") {
		t.Errorf("Expected fractional timestamp, got %s", cmd)
	}
}

func TestThumbnailEmptyOutputRemoved(t *testing.T) {
	out := filepath.Join(t.TempDir(), "thumb.jpg")
	r := &fakeRunner{write: func(path string) { _ = os.WriteFile(path, nil, 0o600) }}
	err := newTestProcessor(r).Thumbnail(context.Background(), "in.mp4", out, ThumbnailOptions{})
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("Expected ErrEmptyOutput, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("Expected empty output file removed")
	}
}

func TestFrame(t *testing.T) {
	r := &fakeRunner{output: map[string][]byte{"ffmpeg": {0xff, 0xd8, 0xff, 0xd9}}}
	data, err := newTestProcessor(r).Frame(context.Background(), "https://cdn/v.mp4", 10*time.Second)
	if err != nil || len(data) != 4 {
		t.Fatalf("Expected frame bytes, got %d %v", len(data), err)
	}
	if !strings.Contains(strings.Join(r.calls[0], " "), "-ss 00:00:10 -i https://cdn/v.mp4") {
		t.Errorf("Unexpected frame command %v", r.calls[0])
	}
}

func TestAvailable(t *testing.T) {
	ok := &fakeRunner{}
	if err := newTestProcessor(ok).Available(context.Background()); err != nil {
		t.Errorf("Expected available, got %v", err)
	}
	if len(ok.calls) != 2 {
		t.Errorf("Expected both binaries checked, got %d calls", len(ok.calls))
	}

	missing := &fakeRunner{err: map[string]error{"ffprobe": errors.New("executable file not found")}}
	if err := newTestProcessor(missing).Available(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestTimestamp(t *testing.T) {
	cases := map[time.Duration]string{
		time.Second:                          "00:00:01",
		90 * time.Minute:                     "01:30:00",
		10*time.Second + 10*time.Millisecond: "00:00:10.010",
	}
	for d, want := range cases {
		if got := Timestamp(d); got != want {
			t.Errorf("Timestamp(%s): Expected %s, got %s", d, want, got)
		}
	}
}
