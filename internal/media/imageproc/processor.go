package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/chai2010/webp"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"promptfinder/internal/media/sniffer"
	"promptfinder/internal/models"
)

const (
	MaxDimension = 10_000
	MaxPixels    = 50_000_000

	JPEGQuality = 85
	WebPQuality = 80
)

var ErrInvalidImage = errors.New("invalid image")

type Size struct {
	Variant string
	Box     int
}

// Sizes are the fit-within boxes for derived variants.
var Sizes = []Size{
	{Variant: models.VariantThumb, Box: 300},
	{Variant: models.VariantMedium, Box: 600},
	{Variant: models.VariantLarge, Box: 1200},
}

// lanczos3 is the Lanczos kernel with a = 3.
var lanczos3 = &draw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t == 0 {
			return 1
		}
		if t >= 3 {
			return 0
		}
		x := math.Pi * t
		return 3 * math.Sin(x) * math.Sin(x/3) / (x * x)
	},
}

type Output struct {
	Variant     string
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
}

type Result struct {
	Format   sniffer.MediaType
	Width    int
	Height   int
	Checksum []byte
	Outputs  []Output
}

func (r Result) Output(variant string) (Output, bool) {
	for _, o := range r.Outputs {
		if o.Variant == variant {
			return o, true
		}
	}
	return Output{}, false
}

type Processor struct {
	JPEGQuality int
	WebPQuality int
}

func New() *Processor {
	return &Processor{JPEGQuality: JPEGQuality, WebPQuality: WebPQuality}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidImage, fmt.Sprintf(format, args...))
}

// Dimensions reads only the image header.
func Dimensions(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, invalid("read header: %v", err)
	}
	return cfg.Width, cfg.Height, nil
}

func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return invalid("empty image %dx%d", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return invalid("dimensions %dx%d exceed %d px", width, height, MaxDimension)
	}
	if int64(width)*int64(height) > MaxPixels {
		return invalid("%d pixels exceed %d", int64(width)*int64(height), MaxPixels)
	}
	return nil
}

// Process validates data and renders the full variant set. Bounds are checked before the
// pixel data is decoded.
func (p *Processor) Process(data []byte) (Result, error) {
	detected, err := sniffer.DetectHead(head(data))
	if err != nil || detected.IsVideo() {
		return Result{}, invalid("unsupported format")
	}

	width, height, err := Dimensions(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	if err := ValidateDimensions(width, height); err != nil {
		return Result{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, invalid("decode: %v", err)
	}

	sum := blake2b.Sum256(data)
	result := Result{
		Format:   detected.Type,
		Width:    width,
		Height:   height,
		Checksum: sum[:],
	}

	original, err := p.encodeJPEG(src)
	if err != nil {
		return Result{}, err
	}
	result.Outputs = append(result.Outputs, Output{
		Variant:     models.VariantOriginal,
		Data:        original,
		ContentType: "image/jpeg",
		Ext:         "jpg",
		Width:       width,
		Height:      height,
	})

	for _, size := range Sizes {
		resized := Fit(src, size.Box)
		out, err := p.encodeAs(detected.Type, resized)
		if err != nil {
			return Result{}, err
		}
		out.Variant = size.Variant
		out.Width = resized.Bounds().Dx()
		out.Height = resized.Bounds().Dy()
		result.Outputs = append(result.Outputs, out)
	}

	alt, err := p.encodeWebP(src, p.WebPQuality)
	if err != nil {
		return Result{}, err
	}
	result.Outputs = append(result.Outputs, Output{
		Variant:     models.VariantAlt,
		Data:        alt,
		ContentType: "image/webp",
		Ext:         "webp",
		Width:       width,
		Height:      height,
	})

	return result, nil
}

// Fit scales src to fit within a box×box square, preserving aspect ratio. Images already
// inside the box are returned unchanged.
func Fit(src image.Image, box int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= box && h <= box {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = box
		nh = int(math.Round(float64(h) * float64(box) / float64(w)))
	} else {
		nh = box
		nw = int(math.Round(float64(w) * float64(box) / float64(h)))
	}
	nw = max(nw, 1)
	nh = max(nh, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	lanczos3.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Flatten composites src over an opaque white background.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func (p *Processor) encodeAs(format sniffer.MediaType, img image.Image) (Output, error) {
	var buf bytes.Buffer
	switch format {
	case sniffer.TypePNG:
		if err := png.Encode(&buf, img); err != nil {
			return Output{}, invalid("encode png: %v", err)
		}
		return Output{Data: buf.Bytes(), ContentType: "image/png", Ext: "png"}, nil
	case sniffer.TypeGIF:
		if err := gif.Encode(&buf, img, &gif.Options{NumColors: 256}); err != nil {
			return Output{}, invalid("encode gif: %v", err)
		}
		return Output{Data: buf.Bytes(), ContentType: "image/gif", Ext: "gif"}, nil
	case sniffer.TypeWEBP:
		data, err := p.encodeWebP(img, p.JPEGQuality)
		if err != nil {
			return Output{}, err
		}
		return Output{Data: data, ContentType: "image/webp", Ext: "webp"}, nil
	default:
		data, err := p.encodeJPEG(img)
		if err != nil {
			return Output{}, err
		}
		return Output{Data: data, ContentType: "image/jpeg", Ext: "jpg"}, nil
	}
}

func (p *Processor) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Flatten(img), &jpeg.Options{Quality: p.JPEGQuality}); err != nil {
		return nil, invalid("encode jpeg: %v", err)
	}
	return buf.Bytes(), nil
}

func (p *Processor) encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, invalid("encode webp: %v", err)
	}
	return buf.Bytes(), nil
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
