package inference

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"

	"github.com/ayusman/mudra/internal/detector"
)

// Request is the body of a prediction request. Which field is read depends
// on the configured Preprocessor.
type Request struct {
	Landmarks   []float64 `json:"landmarks,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}

// Preprocessor turns a request into the network's input vector.
type Preprocessor interface {
	Name() string
	// InputSize is the length of the vectors Prepare returns.
	InputSize() int
	Prepare(req Request) ([]float64, error)
}

// RawLandmarks passes a 63-value landmark vector through unchanged.
type RawLandmarks struct{}

func (RawLandmarks) Name() string   { return "landmarks" }
func (RawLandmarks) InputSize() int { return detector.VectorLen }

// Prepare requires req.Landmarks to hold exactly detector.VectorLen values.
func (RawLandmarks) Prepare(req Request) ([]float64, error) {
	if req.Landmarks == nil {
		return nil, fmt.Errorf("%w: landmarks", ErrMissingInput)
	}
	v := detector.Vector(req.Landmarks)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// DefaultImageSize is the square side images are resized to.
const DefaultImageSize = 224

// MaxImagePixels bounds the decoded size of an uploaded image.
const MaxImagePixels = 4096 * 4096

// ImageBytes decodes a base64 JPEG or PNG, resizes it to Size x Size and
// emits RGB values scaled to [0,1] in height, width, channel order.
type ImageBytes struct {
	Size int
}

func (p ImageBytes) size() int {
	if p.Size <= 0 {
		return DefaultImageSize
	}
	return p.Size
}

func (ImageBytes) Name() string { return "image" }

func (p ImageBytes) InputSize() int {
	s := p.size()
	return s * s * 3
}

func (p ImageBytes) Prepare(req Request) ([]float64, error) {
	if req.ImageBase64 == "" {
		return nil, fmt.Errorf("%w: image_base64", ErrMissingInput)
	}

	raw, err := decodeBase64(req.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	return p.Vector(img), nil
}

// Vector resizes img and flattens it to normalized RGB values.
func (p ImageBytes) Vector(img image.Image) []float64 {
	size := p.size()
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	out := make([]float64, 0, size*size*3)
	bounds := resized.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out = append(out, float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
		}
	}
	return out
}

// decodeBase64 accepts padded or unpadded standard and URL alphabets and an
// optional data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)

	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
