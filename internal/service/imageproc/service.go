package imageproc

import (
	"bytes"
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// Source records which path produced a canonical image.
type Source string

const (
	SourceUpload Source = "image"
	SourcePrompt Source = "prompt"
)

// CanonicalImage is the normalized RGBA raster the shape stage consumes:
// background-neutral, bounded to MaxDimension on the long edge.
type CanonicalImage struct {
	Image  *image.NRGBA
	Source Source
}

// PNG encodes the raster for the inference wire contracts.
func (c *CanonicalImage) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, c.Image, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode canonical image")
	}
	return buf.Bytes(), nil
}

// BackgroundRemover isolates the subject of an image. Output is authoritative
// RGBA regardless of input state.
type BackgroundRemover interface {
	Remove(ctx context.Context, png []byte) ([]byte, error)
}

// Enhancement factors mirror the upstream pipeline's fixed constants
// (saturation x1.2, brightness x1.1, contrast x1.1, in that order).
const (
	saturationBoost = 20
	brightnessBoost = 10
	contrastBoost   = 10
)

type Service struct {
	rembg        BackgroundRemover
	maxDimension int
	enhance      bool
	logger       *logger.Logger
}

func New(rembg BackgroundRemover, maxDimension int, enhance bool, log *logger.Logger) *Service {
	return &Service{
		rembg:        rembg,
		maxDimension: maxDimension,
		enhance:      enhance,
		logger:       log,
	}
}

// Normalize turns raw image bytes into the canonical form: decode, bounded
// resize, white compositing, background removal, optional color enhancement.
// On any failure it returns a typed error and no partial image.
func (s *Service) Normalize(ctx context.Context, data []byte) (*CanonicalImage, error) {
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeImageDecode, "failed to decode input image")
	}

	img := imaging.Clone(decoded)
	img = Bound(img, s.maxDimension)

	// The removal service expects an opaque input; flatten any transparency
	// onto white before the call.
	if hasTransparency(img) {
		img = compositeOnWhite(img)
	}

	png, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	removed, err := s.rembg.Remove(ctx, png)
	if err != nil {
		return nil, err
	}

	img, err = decodeRGBA(removed)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeImageProcess, "background removal returned an undecodable image")
	}

	if s.enhance {
		img = s.enhanceColors(img)
	}

	s.logger.Debug("image normalized",
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"enhanced", s.enhance,
	)

	return &CanonicalImage{Image: img, Source: SourceUpload}, nil
}

// Bound downscales proportionally so the long edge does not exceed maxDim.
// Images already within the bound are returned unchanged.
func Bound(img *image.NRGBA, maxDim int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// enhanceColors applies the fixed saturation/brightness/contrast boosts. The
// ops run on an opaque view, so transparency is flattened onto white first.
func (s *Service) enhanceColors(img *image.NRGBA) *image.NRGBA {
	if hasTransparency(img) {
		img = compositeOnWhite(img)
	}
	img = imaging.AdjustSaturation(img, saturationBoost)
	img = imaging.AdjustBrightness(img, brightnessBoost)
	img = imaging.AdjustContrast(img, contrastBoost)
	return img
}

func compositeOnWhite(img *image.NRGBA) *image.NRGBA {
	canvas := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func hasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

func encodePNG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeImageProcess, "failed to encode image")
	}
	return buf.Bytes(), nil
}

func decodeRGBA(data []byte) (*image.NRGBA, error) {
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return imaging.Clone(decoded), nil
}
